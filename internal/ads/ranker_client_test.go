package ads

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/atharv404/kumele-ads/internal/models"
)

func TestRankerClient_Configured(t *testing.T) {
	assert.False(t, NewRankerClient("", 50*time.Millisecond).Configured())
	assert.True(t, NewRankerClient("http://ranker:8080/rank", 50*time.Millisecond).Configured())

	var c *RankerClient
	assert.False(t, c.Configured())
}

func TestRankerClient_Rank_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req rankRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "u1", req.UserID)
		assert.Equal(t, "feed", req.Placement)
		assert.Equal(t, 3, req.Limit)

		_ = json.NewEncoder(w).Encode(map[string][]string{"ad_ids": {"a", "b", "c"}})
	}))
	defer srv.Close()

	c := NewRankerClient(srv.URL, 500*time.Millisecond)
	tc := &models.TargetingContext{UserID: "u1", Language: "en"}

	ids, err := c.Rank(context.Background(), "u1", "feed", tc, 3)
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestRankerClient_Rank_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewRankerClient(srv.URL, 30*time.Millisecond)

	start := time.Now()
	ids, err := c.Rank(context.Background(), "u1", "feed", &models.TargetingContext{UserID: "u1"}, 1)
	elapsed := time.Since(start)

	assert.Error(t, err)
	assert.Nil(t, ids)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, elapsed, 200*time.Millisecond, "call must give up at the deadline")
}

func TestRankerClient_Rank_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewRankerClient(srv.URL, 500*time.Millisecond)

	ids, err := c.Rank(context.Background(), "u1", "feed", &models.TargetingContext{UserID: "u1"}, 1)
	assert.Error(t, err)
	assert.Nil(t, ids)
	assert.Contains(t, err.Error(), "status 502")
}

func TestRankerClient_Rank_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{"))
	}))
	defer srv.Close()

	c := NewRankerClient(srv.URL, 500*time.Millisecond)

	ids, err := c.Rank(context.Background(), "u1", "feed", &models.TargetingContext{UserID: "u1"}, 1)
	assert.Error(t, err)
	assert.Nil(t, ids)
}
