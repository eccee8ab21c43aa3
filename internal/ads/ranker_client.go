package ads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/atharv404/kumele-ads/internal/models"
)

// RankerClient calls the external personalized ranking service. The call is
// advisory: the orchestrator treats every failure as a reason to fall
// through, so this client only needs to report what happened.
type RankerClient struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewRankerClient creates a client for the ranking endpoint. An empty URL
// produces an unconfigured client the orchestrator skips.
func NewRankerClient(url string, timeout time.Duration) *RankerClient {
	return &RankerClient{
		url:     url,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Configured reports whether a ranker endpoint is set.
func (c *RankerClient) Configured() bool {
	return c != nil && c.url != ""
}

type rankRequest struct {
	UserID    string                   `json:"user_id"`
	Placement string                   `json:"placement"`
	Context   *models.TargetingContext `json:"context"`
	Limit     int                      `json:"limit"`
}

type rankResponse struct {
	AdIDs []string `json:"ad_ids"`
}

// Rank asks the ranking service for ad IDs ordered best first. The call is
// bounded by the configured deadline regardless of the parent context; once
// it fires the request is abandoned, not retried.
func (c *RankerClient) Rank(ctx context.Context, userID, placement string, tc *models.TargetingContext, limit int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(rankRequest{
		UserID:    userID,
		Placement: placement,
		Context:   tc,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode ranker request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build ranker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ranker call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ranker returned status %d", resp.StatusCode)
	}

	var rr rankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("failed to decode ranker response: %w", err)
	}
	return rr.AdIDs, nil
}
