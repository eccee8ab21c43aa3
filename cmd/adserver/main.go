package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atharv404/kumele-ads/internal/ads"
	"github.com/atharv404/kumele-ads/internal/archive"
	"github.com/atharv404/kumele-ads/internal/config"
	"github.com/atharv404/kumele-ads/internal/database"
	"github.com/atharv404/kumele-ads/internal/geo"
	"github.com/atharv404/kumele-ads/internal/httpserver"
	"github.com/atharv404/kumele-ads/internal/metrics"
	"github.com/atharv404/kumele-ads/internal/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg)
	defer logger.Sync()

	logger.Info("starting ad server",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
	)

	m := metrics.NewMetrics("adserver")

	// Try to connect to PostgreSQL
	var db *database.PostgresDB
	if cfg.Database.Enabled {
		db, err = database.NewPostgresDB(cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			logger.Warn("PostgreSQL not available, using in-memory storage", zap.Error(err))
			db = nil
		} else {
			defer db.Close()
			logger.Info("connected to PostgreSQL")

			if cfg.Database.RunMigrations {
				if err := database.Migrate(cfg.Database.DSN()); err != nil {
					logger.Fatal("failed to run migrations", zap.Error(err))
				}
				logger.Info("migrations applied")
			}
		}
	}

	// Try to connect to Redis
	var redis *database.RedisDB
	if cfg.Redis.Enabled {
		redis, err = database.NewRedisDB(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("Redis not available, frequency caps fall back to the event store", zap.Error(err))
			redis = nil
		} else {
			defer redis.Close()
			logger.Info("connected to Redis")
		}
	}

	// Try to connect to ClickHouse and start the event archive
	var eventArchive ads.EventArchiver
	var archiveWriter *archive.BatchWriter
	if cfg.ClickHouse.Enabled {
		ch, err := database.NewClickHouseDB(cfg.ClickHouse.Addr, cfg.ClickHouse.Database, cfg.ClickHouse.Username, cfg.ClickHouse.Password)
		if err != nil {
			logger.Warn("ClickHouse not available, event archive disabled", zap.Error(err))
		} else {
			defer ch.Close()

			sink := archive.NewClickHouseArchive(ch.Conn, logger)
			if err := sink.InitSchema(context.Background()); err != nil {
				logger.Warn("failed to init archive schema", zap.Error(err))
			}

			archiveWriter = archive.NewBatchWriter(sink, cfg.ClickHouse, m, logger)
			archiveWriter.Start()
			eventArchive = archiveWriter
			logger.Info("connected to ClickHouse, event archive running")
		}
	}

	// Open the GeoIP database for location enrichment
	var geoProvider geo.Provider
	if cfg.Geo.Enabled {
		mmdb, err := geo.NewMaxMindProvider(cfg.Geo.DatabasePath)
		if err != nil {
			logger.Warn("GeoIP database not available, location enrichment disabled", zap.Error(err))
		} else {
			cached := geo.NewCachedProvider(mmdb, cfg.Geo.CacheSize, cfg.Geo.CacheTTL)
			defer cached.Close()
			geoProvider = cached
			logger.Info("GeoIP database loaded", zap.String("path", cfg.Geo.DatabasePath))
		}
	}

	// Create HTTP server
	deps := &httpserver.Dependencies{
		DB:      db,
		Redis:   redis,
		Archive: eventArchive,
		Geo:     geoProvider,
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
	}

	handler := httpserver.NewServer(deps)

	// Chain: Recovery -> Logging -> RateLimit -> Auth -> Handler
	authMw := middleware.NewAuthMiddleware(&cfg.Auth, logger)
	rateLimitMw := middleware.NewRateLimitMiddleware(&cfg.RateLimit, m, logger)
	loggingMw := middleware.NewLoggingMiddleware(logger)
	recoveryMw := middleware.NewRecoveryMiddleware(logger)

	chained := recoveryMw.Handler(loggingMw.Handler(rateLimitMw.Handler(authMw.Handler(handler))))

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      chained,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown: stop accepting requests, then drain the archive
	// before the deferred connection closes run.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	if archiveWriter != nil {
		archiveWriter.Close()
	}

	logger.Info("server stopped")
}

func setupLogger(cfg *config.Config) *zap.Logger {
	var zapCfg zap.Config

	if cfg.IsDevelopment() {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	switch cfg.Log.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}

	return logger
}
