package models

import (
	"time"
)

// UserProfile is the stored profile slice the targeting resolver reads.
// Owned by the user subsystem; read-only here.
type UserProfile struct {
	UserID      string     `json:"user_id"`
	Location    string     `json:"location,omitempty"`
	Language    string     `json:"language,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Hobbies     []string   `json:"hobbies,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TargetingContext is the effective targeting input for one decision:
// stored profile data merged with per-request overrides.
type TargetingContext struct {
	UserID   string   `json:"user_id"`
	Location string   `json:"location,omitempty"`
	Language string   `json:"language,omitempty"`
	Age      *int     `json:"age,omitempty"` // nil when date of birth is unknown
	Hobbies  []string `json:"hobbies,omitempty"`
}
