package models

import (
	"time"
)

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
)

type ModerationStatus string

const (
	ModerationStatusPending  ModerationStatus = "pending"
	ModerationStatusApproved ModerationStatus = "approved"
	ModerationStatusRejected ModerationStatus = "rejected"
	ModerationStatusTakedown ModerationStatus = "takedown"
)

// Advertiser owns campaigns. Managed by the account subsystem; read-only here.
type Advertiser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Campaign groups ads under one advertiser. Only active campaigns may serve.
type Campaign struct {
	ID           string         `json:"id"`
	AdvertiserID string         `json:"advertiser_id"`
	Name         string         `json:"name"`
	Status       CampaignStatus `json:"status"`

	// DailyImpressionCap limits impressions across the campaign's ads per
	// UTC day. Nil means uncapped.
	DailyImpressionCap *int64 `json:"daily_impression_cap,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the campaign is in a servable state.
func (c *Campaign) IsActive() bool {
	return c.Status == CampaignStatusActive
}

// Creative is the renderable payload of an ad.
type Creative struct {
	Title    string `json:"title"`
	Body     string `json:"body,omitempty"`
	MediaURL string `json:"media_url,omitempty"`
}

// Ad is one servable unit belonging to exactly one campaign.
type Ad struct {
	ID          string           `json:"id"`
	CampaignID  string           `json:"campaign_id"`
	Creative    Creative         `json:"creative"`
	Destination string           `json:"destination,omitempty"` // link opened on click
	Status      ModerationStatus `json:"status"`

	// Per-ad targeting constraints.
	TargetLanguages []string `json:"target_languages,omitempty"` // empty = all languages
	TargetAgeMin    *int     `json:"target_age_min,omitempty"`
	TargetAgeMax    *int     `json:"target_age_max,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Approved reports whether moderation allows the ad to serve.
func (a *Ad) Approved() bool {
	return a.Status == ModerationStatusApproved
}

// MatchesLanguage reports whether the ad targets the given language.
// An ad with no language targets matches everyone.
func (a *Ad) MatchesLanguage(lang string) bool {
	if len(a.TargetLanguages) == 0 {
		return true
	}
	for _, l := range a.TargetLanguages {
		if l == lang {
			return true
		}
	}
	return false
}

// MatchesAge reports whether the given age falls inside the ad's age window.
// A nil age passes unconditionally, as does a missing bound.
func (a *Ad) MatchesAge(age *int) bool {
	if age == nil {
		return true
	}
	if a.TargetAgeMin != nil && *age < *a.TargetAgeMin {
		return false
	}
	if a.TargetAgeMax != nil && *age > *a.TargetAgeMax {
		return false
	}
	return true
}
