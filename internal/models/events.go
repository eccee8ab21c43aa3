package models

import (
	"time"
)

type EventType string

const (
	EventTypeView       EventType = "view"
	EventTypeClick      EventType = "click"
	EventTypeConversion EventType = "conversion"
)

// Valid reports whether the event type is one the tracker accepts.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeView, EventTypeClick, EventTypeConversion:
		return true
	}
	return false
}

// AdEvent records one user interaction with one ad. The
// (UserID, AdID, EventType, ImpressionID) tuple is unique; a replay with the
// same tuple is a no-op. Rows are immutable once written.
type AdEvent struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	AdID         string    `json:"ad_id"`
	CampaignID   string    `json:"campaign_id"`
	ImpressionID string    `json:"impression_id"`
	EventType    EventType `json:"event_type"`
	Placement    string    `json:"placement,omitempty"`
	HobbyContext string    `json:"hobby_context,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// DedupKey returns the identity tuple used for idempotent ingestion.
func (e *AdEvent) DedupKey() string {
	return e.UserID + "|" + e.AdID + "|" + string(e.EventType) + "|" + e.ImpressionID
}

// AdDailyStat is the per-ad daily rollup fed by the tracker and read by the
// ranking engine over a trailing window. Counters only ever increase.
type AdDailyStat struct {
	AdID           string    `json:"ad_id"`
	StatDate       string    `json:"stat_date"` // UTC day, 2006-01-02
	Impressions    int64     `json:"impressions"`
	Clicks         int64     `json:"clicks"`
	Conversions    int64     `json:"conversions"`
	CTR            float64   `json:"ctr"`             // clicks/impressions, 0 when no impressions
	ConversionRate float64   `json:"conversion_rate"` // conversions/clicks, 0 when no clicks
	UpdatedAt      time.Time `json:"updated_at"`
}

// StatDateOf formats a timestamp as the UTC day key used by AdDailyStat.
func StatDateOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
