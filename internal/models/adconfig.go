package models

import (
	"time"
)

// AdNetworkConfig holds third-party ad-network settings keyed by network
// name. Written by the app-config admin surface; read-only here.
type AdNetworkConfig struct {
	Name      string            `json:"name"`
	Enabled   bool              `json:"enabled"`
	UnitIDs   map[string]string `json:"unit_ids,omitempty"` // placement -> unit ID override
	Priority  int               `json:"priority,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// FeatureFlag is a named on/off switch read at decision time.
type FeatureFlag struct {
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}
