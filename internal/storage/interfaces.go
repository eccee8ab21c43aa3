package storage

import (
	"context"
	"errors"
	"time"

	"github.com/atharv404/kumele-ads/internal/models"
)

// ErrNotFound is returned by lookups whose subject record does not exist.
var ErrNotFound = errors.New("record not found")

// =============================================
// AD INVENTORY
// =============================================

// AdRepo reads the campaign/ad inventory. Writes happen in the advertiser
// CRUD subsystem; the decision engine only consumes.
type AdRepo interface {
	// ListEligible returns approved ads in active campaigns that match the
	// context's language and age constraints. Campaigns whose daily
	// impression cap is already met for the current UTC day are excluded.
	ListEligible(ctx context.Context, tc *models.TargetingContext) ([]*models.Ad, error)

	GetByID(ctx context.Context, id string) (*models.Ad, error)

	// GetServableByIDs returns the subset of ids that may serve right now:
	// approved ads inside active campaigns. Order is unspecified.
	GetServableByIDs(ctx context.Context, ids []string) ([]*models.Ad, error)

	// GetAdvertiserID resolves the advertiser owning a campaign.
	// Returns ErrNotFound when the campaign does not exist.
	GetAdvertiserID(ctx context.Context, campaignID string) (string, error)
}

// =============================================
// USER PROFILES
// =============================================

// ProfileStore reads user targeting profiles.
type ProfileStore interface {
	// GetProfile returns ErrNotFound when the user record is missing.
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

// =============================================
// EVENT STORE
// =============================================

// EventStore persists interaction events and answers the frequency-cap
// queries derived from them.
type EventStore interface {
	// InsertEvent writes the event unless its identity tuple
	// (user, ad, type, impression) already exists. The bool reports
	// whether a new row was created.
	InsertEvent(ctx context.Context, ev *models.AdEvent) (bool, error)

	// Cap queries
	CountUserAdEvents(ctx context.Context, userID, adID string, et models.EventType, since time.Time) (int64, error)
	LastUserAdEvent(ctx context.Context, userID, adID string, et models.EventType) (*time.Time, error)
	CountUserAdvertiserEvents(ctx context.Context, userID, advertiserID string, et models.EventType, since time.Time) (int64, error)
}

// =============================================
// DAILY STATS
// =============================================

// StatStore maintains and serves the per-ad daily rollups.
type StatStore interface {
	// ApplyEvent increments the counter matching the event type on the
	// (adID, statDate) row, creating the row if absent, and recomputes the
	// derived rates from the updated counters. The whole step is atomic
	// with respect to concurrent events on the same row.
	ApplyEvent(ctx context.Context, adID, statDate string, et models.EventType) error

	// ListRecent returns stat rows with stat_date >= since for each ad,
	// newest first. Ads without rows are absent from the map.
	ListRecent(ctx context.Context, adIDs []string, since string) (map[string][]*models.AdDailyStat, error)
}

// =============================================
// APP CONFIG
// =============================================

// ConfigStore reads feature flags and ad-network configuration.
type ConfigStore interface {
	// GetFlag returns false for flags that were never defined.
	GetFlag(ctx context.Context, name string) (bool, error)

	// GetAdNetworkConfig returns (nil, nil) when no row exists for the
	// network; callers fall back to defaults.
	GetAdNetworkConfig(ctx context.Context, name string) (*models.AdNetworkConfig, error)
}
