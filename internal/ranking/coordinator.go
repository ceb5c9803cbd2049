package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/late24/playrank/internal/aggregator"
	"github.com/late24/playrank/internal/broadcast"
	"github.com/late24/playrank/internal/domain"
	"github.com/late24/playrank/internal/logger"
	"github.com/late24/playrank/internal/store"
	"github.com/late24/playrank/internal/ttlkv"
)

const (
	// DefaultCacheTTL bounds how stale a served ranking can get
	DefaultCacheTTL = 10 * time.Minute

	// DefaultRefreshGuardTTL is the stampede window: at most one recompute is
	// requested per window no matter how many instances miss the cache
	DefaultRefreshGuardTTL = 30 * time.Second

	// DefaultRecomputeWindow is the look-back for cache-miss triggered
	// recomputes; explicit triggers carry their own range
	DefaultRecomputeWindow = 24 * time.Hour

	// DefaultUpsertWorkers bounds concurrent snapshot writes during recompute
	DefaultUpsertWorkers = 8
)

// Config tunes the coordinator; zero values fall back to the defaults
type Config struct {
	CacheTTL        time.Duration
	RefreshGuardTTL time.Duration
	RecomputeWindow time.Duration
	UpsertWorkers   int
}

func (c Config) withDefaults() Config {
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.RefreshGuardTTL <= 0 {
		c.RefreshGuardTTL = DefaultRefreshGuardTTL
	}
	if c.RecomputeWindow <= 0 {
		c.RecomputeWindow = DefaultRecomputeWindow
	}
	if c.UpsertWorkers <= 0 {
		c.UpsertWorkers = DefaultUpsertWorkers
	}
	return c
}

// Coordinator answers ranking reads from the cache, falls back to the
// snapshot store, and drives snapshot recomputation on every instance through
// the broadcast bus.
type Coordinator struct {
	store store.Store
	agg   *aggregator.Aggregator
	cache ListCache
	flags ttlkv.Store
	bus   broadcast.Broadcaster
	pool  pond.Pool
	cfg   Config
	now   func() time.Time
}

// NewCoordinator creates a ranking coordinator
func NewCoordinator(s store.Store, agg *aggregator.Aggregator, cache ListCache, flags ttlkv.Store, bus broadcast.Broadcaster, cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		store: s,
		agg:   agg,
		cache: cache,
		flags: flags,
		bus:   bus,
		pool:  pond.NewPool(cfg.UpsertWorkers),
		cfg:   cfg,
		now:   time.Now,
	}
}

// RegisterHandlers subscribes the recompute handlers on the broadcast bus.
// Must be called once per instance before serving traffic.
func (c *Coordinator) RegisterHandlers(ctx context.Context) error {
	if err := c.bus.Subscribe(ctx, domain.CHANNEL_UPDATE_SNAPSHOT, c.handleMakerUpdate); err != nil {
		return fmt.Errorf("failed to subscribe maker update handler: %w", err)
	}
	if err := c.bus.Subscribe(ctx, domain.CHANNEL_UPDATE_ALL_SNAPSHOT, c.handleRecompute); err != nil {
		return fmt.Errorf("failed to subscribe recompute handler: %w", err)
	}
	return nil
}

// GetRanking returns up to limit makers ordered by play count descending,
// maker id ascending on ties. limit <= 0 returns the full ranking.
//
// Every read first requests a background recompute behind the stampede
// guard, so heavy read traffic keeps the snapshots fresh without exceeding
// one recompute per guard window. A recompute command handled within the
// window also satisfies the guard, so reads never override a freshly
// applied explicit-window recompute. Reads are then served from the cache
// when possible; on a miss the snapshot store answers and the cache is
// rebuilt. Cache failures degrade to store reads.
func (c *Coordinator) GetRanking(ctx context.Context, limit int) ([]domain.MakerPlayCount, error) {
	c.requestRefresh(ctx)

	entries, hit, err := c.cache.Fetch(ctx, limit)
	if err != nil {
		logger.WarnCtx(ctx, "ranking cache read failed, serving from store", zap.Error(err))
	} else if hit {
		return entries, nil
	}

	snapshots, err := c.store.ListSnapshots(ctx)
	if err != nil {
		return nil, &domain.StorageUnavailableError{Err: fmt.Errorf("failed to list snapshots: %w", err)}
	}

	full := make([]domain.MakerPlayCount, 0, len(snapshots))
	for _, snap := range snapshots {
		full = append(full, domain.MakerPlayCount{MakerID: snap.MakerID, PlayCount: snap.PlayCount})
	}

	if err := c.cache.Replace(ctx, full, c.cfg.CacheTTL); err != nil {
		logger.WarnCtx(ctx, "ranking cache rebuild failed", zap.Error(err))
	}

	if limit > 0 && limit < len(full) {
		full = full[:limit]
	}
	return full, nil
}

// requestRefresh asks for a full recompute unless another instance already
// did within the guard window
func (c *Coordinator) requestRefresh(ctx context.Context) {
	set, err := c.flags.SetIfAbsent(ctx, domain.RANKING_UPDATE_FLAG_KEY, []byte("1"), c.cfg.RefreshGuardTTL)
	if err != nil {
		logger.WarnCtx(ctx, "failed to set ranking refresh guard", zap.Error(err))
		return
	}
	if !set {
		return
	}

	until := c.now().UTC()
	cmd := domain.RecomputeCommand{
		ID:    ulid.Make().String(),
		Since: until.Add(-c.cfg.RecomputeWindow),
		Until: until,
	}
	if err := c.publishRecompute(ctx, cmd); err != nil {
		logger.WarnCtx(ctx, "failed to request ranking refresh", zap.Error(err), zap.String("command_id", cmd.ID))
	}
}

// TriggerRecompute fans out a full-window recompute command to every
// instance, this one included. Fire-and-forget: a successful return means the
// command was published, not that any instance finished recomputing.
func (c *Coordinator) TriggerRecompute(ctx context.Context, r domain.TimeRange) (domain.RecomputeCommand, error) {
	if !r.Valid() {
		return domain.RecomputeCommand{}, domain.NewValidationError("range", "since must not be after until")
	}

	cmd := domain.RecomputeCommand{
		ID:    ulid.Make().String(),
		Since: r.Since,
		Until: r.Until,
	}
	if err := c.publishRecompute(ctx, cmd); err != nil {
		return domain.RecomputeCommand{}, err
	}
	return cmd, nil
}

func (c *Coordinator) publishRecompute(ctx context.Context, cmd domain.RecomputeCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal recompute command: %w", err)
	}
	if err := c.bus.Publish(ctx, domain.CHANNEL_UPDATE_ALL_SNAPSHOT, data); err != nil {
		return fmt.Errorf("failed to publish recompute command: %w", err)
	}
	logger.InfoCtx(ctx, "published ranking recompute command",
		zap.String("command_id", cmd.ID),
		zap.Time("since", cmd.Since),
		zap.Time("until", cmd.Until))
	return nil
}

// PublishMakerUpdate asks every instance to refresh one maker's snapshot from
// the running count
func (c *Coordinator) PublishMakerUpdate(ctx context.Context, makerID int64) error {
	payload := strconv.FormatInt(makerID, 10)
	if err := c.bus.Publish(ctx, domain.CHANNEL_UPDATE_SNAPSHOT, []byte(payload)); err != nil {
		return fmt.Errorf("failed to publish maker update: %w", err)
	}
	return nil
}

// UpdateSnapshot copies the maker's running count into its snapshot row
func (c *Coordinator) UpdateSnapshot(ctx context.Context, makerID int64) error {
	count, err := c.store.GetPlayCount(ctx, makerID)
	if err != nil {
		return fmt.Errorf("failed to read play count for maker %d: %w", makerID, err)
	}
	if err := c.store.UpsertSnapshot(ctx, makerID, count); err != nil {
		return fmt.Errorf("failed to upsert snapshot for maker %d: %w", makerID, err)
	}
	return nil
}

// RecomputeAll rebuilds every maker's snapshot from the event log over the
// command's range, then refreshes the cache. Snapshot writes run on the
// worker pool; a failed write for one maker does not stop the others.
func (c *Coordinator) RecomputeAll(ctx context.Context, cmd domain.RecomputeCommand) error {
	makerIDs, err := c.store.GetMakerIDs(ctx)
	if err != nil {
		return &domain.StorageUnavailableError{Err: fmt.Errorf("failed to list maker ids: %w", err)}
	}
	if len(makerIDs) == 0 {
		return nil
	}

	counts, err := c.agg.BulkWindowedDistinctCounts(ctx, makerIDs, domain.TimeRange{Since: cmd.Since, Until: cmd.Until})
	if err != nil {
		return fmt.Errorf("failed to recompute play counts: %w", err)
	}

	group := c.pool.NewGroup()
	for makerID, count := range counts {
		group.SubmitErr(func() error {
			if err := c.store.UpsertSnapshot(ctx, makerID, count); err != nil {
				return &domain.AggregationPartialFailureError{MakerID: makerID, Err: err}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("failed to upsert snapshots: %w", err)
	}

	return c.refreshCache(ctx)
}

// refreshCache rebuilds the cached ranking from the snapshot store
func (c *Coordinator) refreshCache(ctx context.Context) error {
	snapshots, err := c.store.ListSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	entries := make([]domain.MakerPlayCount, 0, len(snapshots))
	for _, snap := range snapshots {
		entries = append(entries, domain.MakerPlayCount{MakerID: snap.MakerID, PlayCount: snap.PlayCount})
	}
	if err := c.cache.Replace(ctx, entries, c.cfg.CacheTTL); err != nil {
		return fmt.Errorf("failed to refresh ranking cache: %w", err)
	}
	return nil
}

// handleMakerUpdate consumes maker-update broadcasts; the payload is the
// maker id in decimal
func (c *Coordinator) handleMakerUpdate(ctx context.Context, data []byte) {
	makerID, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		logger.WarnCtx(ctx, "dropping malformed maker update", zap.ByteString("payload", data))
		return
	}
	if err := c.UpdateSnapshot(ctx, makerID); err != nil {
		logger.ErrorCtx(ctx, err, zap.Int64("maker_id", makerID))
	}
}

// handleRecompute consumes full-window recompute broadcasts
func (c *Coordinator) handleRecompute(ctx context.Context, data []byte) {
	var cmd domain.RecomputeCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		logger.WarnCtx(ctx, "dropping malformed recompute command", zap.ByteString("payload", data))
		return
	}

	// a handled command counts as a recent recompute: reads inside the guard
	// window must not fan out another one over a different range
	if _, err := c.flags.SetIfAbsent(ctx, domain.RANKING_UPDATE_FLAG_KEY, []byte("1"), c.cfg.RefreshGuardTTL); err != nil {
		logger.WarnCtx(ctx, "failed to mark ranking refresh guard", zap.Error(err))
	}

	logger.InfoCtx(ctx, "recomputing ranking snapshots",
		zap.String("command_id", cmd.ID),
		zap.Time("since", cmd.Since),
		zap.Time("until", cmd.Until))

	if err := c.RecomputeAll(ctx, cmd); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("command_id", cmd.ID))
	}
}

// Close stops the snapshot worker pool, waiting for submitted writes
func (c *Coordinator) Close() {
	c.pool.StopAndWait()
}
