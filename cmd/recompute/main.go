// Command recompute publishes a full-window ranking recompute command to all
// running instances. Useful for backfilling snapshots after an outage or
// after bulk-loading historical play events.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/late24/playrank/internal/broadcast"
	"github.com/late24/playrank/internal/config"
	"github.com/late24/playrank/internal/domain"
	"github.com/late24/playrank/internal/logger"
	"github.com/late24/playrank/internal/providers/natsbus"
	redisprovider "github.com/late24/playrank/internal/providers/redis"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
	sinceFlag  = flag.String("since", "", "Window start, RFC3339 (default: until minus 24h)")
	untilFlag  = flag.String("until", "", "Window end, RFC3339 (default: now)")
)

func main() {
	flag.Parse()

	config.ChdirRepoRoot()
	cfg, err := config.LoadRecomputeConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx := context.Background()

	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "playrank-recompute",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)

	r, err := parseWindow(*sinceFlag, *untilFlag)
	if err != nil {
		logger.Fatal("Invalid window", zap.Error(err))
	}

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
	default:
		var redisClient *goredis.Client
		err = backoff.Retry(func() error {
			var dialErr error
			redisClient, dialErr = redisprovider.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			return dialErr
		}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx))
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to Redis", zap.Error(err))
		}
		bus = redisprovider.NewBus(redisClient)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Warn("Failed to close broadcast bus", zap.Error(err))
		}
	}()

	cmd := domain.RecomputeCommand{
		ID:    ulid.Make().String(),
		Since: r.Since,
		Until: r.Until,
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to marshal command", zap.Error(err))
	}
	if err := bus.Publish(ctx, domain.CHANNEL_UPDATE_ALL_SNAPSHOT, data); err != nil {
		logger.FatalCtx(ctx, "Failed to publish command", zap.Error(err))
	}

	logger.InfoCtx(ctx, "Published recompute command",
		zap.String("command_id", cmd.ID),
		zap.Time("since", cmd.Since),
		zap.Time("until", cmd.Until))
}

// parseWindow resolves the since/until flags into a valid range
func parseWindow(sinceRaw, untilRaw string) (domain.TimeRange, error) {
	until := time.Now().UTC()
	if untilRaw != "" {
		parsed, err := time.Parse(time.RFC3339, untilRaw)
		if err != nil {
			return domain.TimeRange{}, fmt.Errorf("failed to parse until: %w", err)
		}
		until = parsed
	}

	since := until.Add(-24 * time.Hour)
	if sinceRaw != "" {
		parsed, err := time.Parse(time.RFC3339, sinceRaw)
		if err != nil {
			return domain.TimeRange{}, fmt.Errorf("failed to parse since: %w", err)
		}
		since = parsed
	}

	r := domain.TimeRange{Since: since, Until: until}
	if !r.Valid() {
		return domain.TimeRange{}, fmt.Errorf("since %s is after until %s", since, until)
	}
	return r, nil
}
