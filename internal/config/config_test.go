package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 300*time.Millisecond, cfg.Ads.RankerTimeout)
	assert.Equal(t, 10, cfg.Ads.MaxCandidates)
	assert.Equal(t, int64(50), cfg.Ads.MinTrailingImpressions)
	assert.Equal(t, 7, cfg.Ads.TrailingWindowDays)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_ENV", "production")
	t.Setenv("ADS_RANKER_URL", "http://ranker.internal/rank")
	t.Setenv("ADS_CAP_MAX_VIEWS_PER_AD", "5")
	t.Setenv("DATABASE_NAME", "ads_test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "http://ranker.internal/rank", cfg.Ads.RankerURL)
	assert.Equal(t, int64(5), cfg.Ads.CapMaxViewsPerAd)
	assert.Contains(t, cfg.Database.DSN(), "/ads_test?")
}

func TestValidate(t *testing.T) {
	t.Setenv("ADS_RANKER_TIMEOUT", "0s")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateAuthNeedsKey(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "true")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateMetricsPath(t *testing.T) {
	t.Setenv("METRICS_PATH", "metrics")
	_, err := Load()
	assert.Error(t, err)
}
