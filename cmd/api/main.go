package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/late24/playrank/internal/aggregator"
	"github.com/late24/playrank/internal/api/middleware"
	"github.com/late24/playrank/internal/api/server"
	"github.com/late24/playrank/internal/broadcast"
	"github.com/late24/playrank/internal/config"
	"github.com/late24/playrank/internal/domain"
	"github.com/late24/playrank/internal/logger"
	"github.com/late24/playrank/internal/providers/natsbus"
	redisprovider "github.com/late24/playrank/internal/providers/redis"
	"github.com/late24/playrank/internal/ranking"
	"github.com/late24/playrank/internal/service"
	"github.com/late24/playrank/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "playrank-api",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Playrank API")

	// Connect to database, retrying while it comes up
	var db *gorm.DB
	err = backoff.Retry(func() error {
		var dialErr error
		db, dialErr = gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
		return dialErr
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx))
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	dataStore := store.NewPGStore(db)

	// Connect to Redis, retrying while it comes up
	var redisClient *goredis.Client
	err = backoff.Retry(func() error {
		var dialErr error
		redisClient, dialErr = redisprovider.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		return dialErr
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx))
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}()
	logger.InfoCtx(ctx, "Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// Select the broadcast bus
	var bus broadcast.Broadcaster
	switch cfg.Broadcast.Provider {
	case "nats":
		bus, err = natsbus.NewBus(cfg.NATS.URL,
			nats.Name(cfg.NATS.ConnectionName),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
			nats.ReconnectWait(cfg.NATS.ReconnectWait),
		)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err))
		}
		logger.InfoCtx(ctx, "Broadcast bus on NATS", zap.String("url", cfg.NATS.URL))
	default:
		bus = redisprovider.NewBus(redisClient)
		logger.InfoCtx(ctx, "Broadcast bus on Redis pub/sub")
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Warn("Failed to close broadcast bus", zap.Error(err))
		}
	}()

	// Wire the core
	dedupLog := redisprovider.NewKV(redisClient)
	agg := aggregator.New(dataStore, dedupLog, cfg.Aggregator.DedupWindow, cfg.Aggregator.BatchSize)

	coord := ranking.NewCoordinator(
		dataStore,
		agg,
		redisprovider.NewListCache(redisClient, domain.RANKING_CACHE_KEY),
		dedupLog,
		bus,
		ranking.Config{
			CacheTTL:        cfg.Ranking.CacheTTL,
			RefreshGuardTTL: cfg.Ranking.RefreshGuardTTL,
			RecomputeWindow: cfg.Ranking.RecomputeWindow,
			UpsertWorkers:   cfg.Ranking.UpsertWorkers,
		},
	)
	defer coord.Close()

	svc := service.New(dataStore, agg, coord)
	if err := svc.Start(ctx); err != nil {
		logger.FatalCtx(ctx, "Failed to register broadcast handlers", zap.Error(err))
	}

	// Create server config
	serverConfig := server.Config{
		Debug:            cfg.Debug,
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		ReadTimeout:      time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:     time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:      time.Duration(cfg.Server.IdleTimeout) * time.Second,
		IngestRatePerSec: cfg.Server.IngestRatePerSec,
		Auth: middleware.AuthConfig{
			JWTPublicKey: cfg.Auth.JWTPublicKey,
			APIKeys:      cfg.Auth.APIKeys,
		},
	}

	// Create and start server
	srv := server.New(serverConfig, svc, redisprovider.NewRateLimiter(redisClient))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "server"))
		cancel()
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	logger.InfoCtx(shutdownCtx, "Shutting down server...")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.FatalCtx(shutdownCtx, "Server forced to shutdown", zap.Error(err))
	}

	// Use non-context logger for final message since original ctx is canceled
	logger.Info("API server stopped")
}
