package ads

import (
	"context"

	"go.uber.org/zap"

	"github.com/atharv404/kumele-ads/internal/storage"
)

// PlaceholderAdMobUnitID is served when no unit is configured anywhere. It
// follows the AdMob test-unit format, so a misconfigured deployment shows
// test ads instead of breaking the client.
const PlaceholderAdMobUnitID = "ca-app-pub-0000000000000000/0000000000"

const (
	adMobConfigName = "admob"
	adMobFlagName   = "admob_enabled"
)

// NetworkService builds the third-party ad-network context served when no
// first-party ad is eligible.
type NetworkService struct {
	configs       storage.ConfigStore
	defaultUnitID string
	logger        *zap.Logger
}

// NewNetworkService creates the fallback resolver. defaultUnitID may be
// empty; the placeholder then covers the no-configuration case.
func NewNetworkService(configs storage.ConfigStore, defaultUnitID string, logger *zap.Logger) *NetworkService {
	return &NetworkService{
		configs:       configs,
		defaultUnitID: defaultUnitID,
		logger:        logger,
	}
}

// Enabled reports the ad-network feature flag. A read failure counts as
// disabled; the network tier is optional by contract.
func (s *NetworkService) Enabled(ctx context.Context) bool {
	enabled, err := s.configs.GetFlag(ctx, adMobFlagName)
	if err != nil {
		s.logger.Warn("failed to read ad network flag", zap.Error(err))
		return false
	}
	return enabled
}

// BuildContext assembles the network context for a placement. It always
// succeeds: absent or unreadable configuration degrades to the default
// unit, never to an error.
func (s *NetworkService) BuildContext(ctx context.Context, placement, location string) map[string]any {
	unitID := s.defaultUnitID
	if unitID == "" {
		unitID = PlaceholderAdMobUnitID
	}

	out := map[string]any{
		"enabled":   true,
		"placement": placement,
		"location":  location,
		"unitId":    unitID,
	}

	cfg, err := s.configs.GetAdNetworkConfig(ctx, adMobConfigName)
	if err != nil {
		s.logger.Warn("failed to read ad network config, using defaults", zap.Error(err))
		return out
	}
	if cfg == nil {
		return out
	}

	if override := cfg.UnitIDs[placement]; override != "" {
		out["unitId"] = override
	} else if def := cfg.UnitIDs["default"]; def != "" {
		out["unitId"] = def
	}
	if cfg.Priority > 0 {
		out["priority"] = cfg.Priority
	}
	return out
}
