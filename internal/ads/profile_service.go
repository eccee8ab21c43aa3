package ads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/atharv404/kumele-ads/internal/geo"
	"github.com/atharv404/kumele-ads/internal/metrics"
	"github.com/atharv404/kumele-ads/internal/models"
	"github.com/atharv404/kumele-ads/internal/storage"
)

// Overrides carries the per-request targeting overrides accepted by the
// decision endpoint. Empty fields fall back to the stored profile.
type Overrides struct {
	Location string
	Language string
	Hobbies  []string

	// ClientIP feeds the GeoIP fallback when neither the profile nor the
	// request carries a location.
	ClientIP string
}

// ProfileService builds effective targeting contexts from stored profiles
// merged with request overrides.
type ProfileService struct {
	profiles storage.ProfileStore
	geo      geo.Provider
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewProfileService creates a profile resolver. geoProvider may be nil to
// disable location enrichment.
func NewProfileService(profiles storage.ProfileStore, geoProvider geo.Provider, m *metrics.Metrics, logger *zap.Logger) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		geo:      geoProvider,
		metrics:  m,
		logger:   logger,
	}
}

// Resolve returns the targeting context for a user. storage.ErrNotFound
// passes through untouched when the user record is missing; callers
// short-circuit the whole decision on it.
func (s *ProfileService) Resolve(ctx context.Context, userID string, ov Overrides) (*models.TargetingContext, error) {
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	tc := &models.TargetingContext{
		UserID:   userID,
		Location: p.Location,
		Language: p.Language,
		Hobbies:  p.Hobbies,
	}
	if ov.Location != "" {
		tc.Location = ov.Location
	}
	if ov.Language != "" {
		tc.Language = ov.Language
	}
	if len(ov.Hobbies) > 0 {
		tc.Hobbies = ov.Hobbies
	}

	if p.DateOfBirth != nil {
		age := ageAt(*p.DateOfBirth, time.Now().UTC())
		tc.Age = &age
	}

	if tc.Location == "" && ov.ClientIP != "" && s.geo != nil {
		tc.Location = s.locationFromIP(ov.ClientIP)
	}

	return tc, nil
}

// locationFromIP resolves a coarse location for the client IP. Lookup
// failures leave the location empty; they never fail the decision.
func (s *ProfileService) locationFromIP(ip string) string {
	info, err := s.geo.Lookup(ip)
	if err != nil {
		s.metrics.RecordGeoLookup("error")
		s.logger.Debug("geo lookup failed", zap.String("ip", ip), zap.Error(err))
		return ""
	}
	if info.City == "" && info.Country == "" {
		s.metrics.RecordGeoLookup("miss")
		return ""
	}
	s.metrics.RecordGeoLookup("hit")
	if info.City != "" {
		return info.City
	}
	return info.Country
}

// ageAt returns whole years between a birth date and now using calendar
// comparison, so a year counts only once the birthday has passed.
func ageAt(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
