package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the ad server.
type Config struct {
	Server     ServerConfig     `envPrefix:"SERVER_"`
	Database   DatabaseConfig   `envPrefix:"DATABASE_"`
	Redis      RedisConfig      `envPrefix:"REDIS_"`
	ClickHouse ClickHouseConfig `envPrefix:"CLICKHOUSE_"`
	Ads        AdsConfig        `envPrefix:"ADS_"`
	Geo        GeoConfig        `envPrefix:"GEOIP_"`
	Auth       AuthConfig       `envPrefix:"AUTH_"`
	RateLimit  RateLimitConfig  `envPrefix:"RATE_LIMIT_"`
	Metrics    MetricsConfig    `envPrefix:"METRICS_"`
	Log        LogConfig        `envPrefix:"LOG_"`
}

type ServerConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	Env             string        `env:"ENV" envDefault:"development"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

type DatabaseConfig struct {
	// Enabled gates PostgreSQL entirely; when false the server runs on
	// in-memory stores.
	Enabled  bool   `env:"ENABLED" envDefault:"true"`
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"adserver"`
	Password string `env:"PASSWORD" envDefault:"adserver_secret"`
	DBName   string `env:"NAME" envDefault:"adserver"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
	MaxConns int    `env:"MAX_CONNS" envDefault:"25"`
	MinConns int    `env:"MIN_CONNS" envDefault:"5"`

	RunMigrations bool `env:"RUN_MIGRATIONS" envDefault:"true"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `env:"ENABLED" envDefault:"false"`
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB" envDefault:"0"`
}

// ClickHouseConfig configures the optional event archive.
type ClickHouseConfig struct {
	Enabled  bool   `env:"ENABLED" envDefault:"false"`
	Addr     string `env:"ADDR" envDefault:"localhost:9000"`
	Database string `env:"DATABASE" envDefault:"adserver"`
	Username string `env:"USERNAME" envDefault:"default"`
	Password string `env:"PASSWORD" envDefault:""`

	BatchSize     int           `env:"BATCH_SIZE" envDefault:"500"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"5s"`
	BufferSize    int           `env:"BUFFER_SIZE" envDefault:"10000"`
}

// AdsConfig holds the decision-engine knobs.
type AdsConfig struct {
	// RankerURL points at the personalized ranking service; empty skips
	// the personalized tier entirely.
	RankerURL     string        `env:"RANKER_URL" envDefault:""`
	RankerTimeout time.Duration `env:"RANKER_TIMEOUT" envDefault:"300ms"`

	// Deterministic ranking
	MaxCandidates          int   `env:"MAX_CANDIDATES" envDefault:"10"`
	MinTrailingImpressions int64 `env:"MIN_TRAILING_IMPRESSIONS" envDefault:"50"`
	TrailingWindowDays     int   `env:"TRAILING_WINDOW_DAYS" envDefault:"7"`

	// Frequency caps
	CapMaxViewsPerAd         int64         `env:"CAP_MAX_VIEWS_PER_AD" envDefault:"3"`
	CapViewWindow            time.Duration `env:"CAP_VIEW_WINDOW" envDefault:"24h"`
	CapRepeatInterval        time.Duration `env:"CAP_REPEAT_INTERVAL" envDefault:"6h"`
	CapMaxViewsPerAdvertiser int64         `env:"CAP_MAX_VIEWS_PER_ADVERTISER" envDefault:"10"`

	// AdMobUnitID overrides the built-in placeholder when the config
	// store has no row for the network.
	AdMobUnitID string `env:"ADMOB_UNIT_ID" envDefault:""`
}

// GeoConfig configures GeoIP lookup for location enrichment.
type GeoConfig struct {
	Enabled      bool          `env:"ENABLED" envDefault:"false"`
	DatabasePath string        `env:"DATABASE_PATH" envDefault:"/var/lib/geoip/GeoLite2-City.mmdb"`
	CacheSize    int           `env:"CACHE_SIZE" envDefault:"10000"`
	CacheTTL     time.Duration `env:"CACHE_TTL" envDefault:"1h"`
}

type AuthConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"false"`
	APIKey  string `env:"API_KEY" envDefault:""`
}

type RateLimitConfig struct {
	Enabled bool    `env:"ENABLED" envDefault:"false"`
	RPS     float64 `env:"RPS" envDefault:"500"`
	Burst   int     `env:"BURST" envDefault:"100"`
}

type MetricsConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Path    string `env:"PATH" envDefault:"/metrics"`
}

type LogConfig struct {
	Level string `env:"LEVEL" envDefault:"info"`
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr must not be empty")
	}
	if c.Ads.RankerTimeout <= 0 {
		return fmt.Errorf("ranker timeout must be positive")
	}
	if c.Ads.MaxCandidates <= 0 {
		return fmt.Errorf("max candidates must be positive")
	}
	if c.Ads.TrailingWindowDays < 1 {
		return fmt.Errorf("trailing window must cover at least one day")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth enabled but no API key configured")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.BatchSize <= 0 {
		return fmt.Errorf("clickhouse batch size must be positive")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with /")
	}
	return nil
}

// IsDevelopment returns true when running in a development environment.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true when running in a production environment.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}
