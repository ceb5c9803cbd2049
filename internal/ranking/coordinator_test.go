package ranking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/late24/playrank/internal/aggregator"
	"github.com/late24/playrank/internal/broadcast"
	"github.com/late24/playrank/internal/domain"
	"github.com/late24/playrank/internal/logger"
	"github.com/late24/playrank/internal/store"
	"github.com/late24/playrank/internal/store/schema"
	"github.com/late24/playrank/internal/ttlkv"
)

func TestMain(m *testing.M) {
	if err := logger.Initialize(logger.Config{Debug: true}); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

type fixture struct {
	store *countingStore
	agg   *aggregator.Aggregator
	cache ListCache
	flags ttlkv.Store
	bus   *countingBus
	coord *Coordinator
}

func newFixture(t *testing.T, cfg Config) *fixture {
	f := &fixture{
		store: &countingStore{Store: store.NewMemoryStore()},
		cache: NewMemoryListCache(),
		flags: ttlkv.NewMemory(),
		bus:   &countingBus{Broadcaster: broadcast.NewMemory()},
	}
	f.agg = aggregator.New(f.store, ttlkv.NewMemory(), time.Hour, 100)
	f.coord = NewCoordinator(f.store, f.agg, f.cache, f.flags, f.bus, cfg)
	t.Cleanup(f.coord.Close)
	return f
}

func seedSnapshots(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertSnapshot(ctx, 1, 5))
	require.NoError(t, s.UpsertSnapshot(ctx, 2, 9))
	require.NoError(t, s.UpsertSnapshot(ctx, 3, 5))
}

func TestGetRanking(t *testing.T) {
	ctx := context.Background()

	t.Run("miss falls back to the snapshot store in order", func(t *testing.T) {
		f := newFixture(t, Config{})
		seedSnapshots(t, f.store)

		got, err := f.coord.GetRanking(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, []domain.MakerPlayCount{
			{MakerID: 2, PlayCount: 9},
			{MakerID: 1, PlayCount: 5},
			{MakerID: 3, PlayCount: 5},
		}, got)
	})

	t.Run("limit truncates the ranking", func(t *testing.T) {
		f := newFixture(t, Config{})
		seedSnapshots(t, f.store)

		got, err := f.coord.GetRanking(ctx, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, int64(2), got[0].MakerID)
		assert.Equal(t, int64(1), got[1].MakerID)
	})

	t.Run("second read is served from the cache", func(t *testing.T) {
		f := newFixture(t, Config{})
		seedSnapshots(t, f.store)

		_, err := f.coord.GetRanking(ctx, 0)
		require.NoError(t, err)
		listsAfterFirst := f.store.listSnapshotCalls

		got, err := f.coord.GetRanking(ctx, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, listsAfterFirst, f.store.listSnapshotCalls)
	})

	t.Run("only one refresh is requested per guard window", func(t *testing.T) {
		f := newFixture(t, Config{RefreshGuardTTL: time.Minute})
		seedSnapshots(t, f.store)

		// every read checks the guard, hit or miss
		for range 3 {
			_, err := f.coord.GetRanking(ctx, 0)
			require.NoError(t, err)
		}

		assert.Equal(t, 1, f.bus.published(domain.CHANNEL_UPDATE_ALL_SNAPSHOT))
	})

	t.Run("read keeps a just-handled explicit recompute intact", func(t *testing.T) {
		f := newFixture(t, Config{RefreshGuardTTL: time.Minute})
		require.NoError(t, f.coord.RegisterHandlers(ctx))

		// the only play sits in a historical window, far outside the
		// default look-back of a guard-triggered refresh
		base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, f.store.CreateItem(ctx, &schema.Item{
			ID: "itm0000000000001", MakerID: 1, PlayerHash: "p1", CreatedAt: base,
		}))

		_, err := f.coord.TriggerRecompute(ctx, domain.TimeRange{Since: base, Until: base.Add(time.Hour)})
		require.NoError(t, err)

		got, err := f.coord.GetRanking(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, []domain.MakerPlayCount{{MakerID: 1, PlayCount: 1}}, got)

		// the read must not have fanned out a second recompute
		assert.Equal(t, 1, f.bus.published(domain.CHANNEL_UPDATE_ALL_SNAPSHOT))
	})

	t.Run("cache failure degrades to store reads", func(t *testing.T) {
		f := newFixture(t, Config{})
		seedSnapshots(t, f.store)
		f.coord.cache = &failingCache{}

		got, err := f.coord.GetRanking(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("store failure surfaces as storage unavailable", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.store.failListSnapshots = true

		_, err := f.coord.GetRanking(ctx, 0)
		require.Error(t, err)

		var unavailable *domain.StorageUnavailableError
		assert.ErrorAs(t, err, &unavailable)
	})
}

func TestTriggerRecompute(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("publishes the command as JSON", func(t *testing.T) {
		f := newFixture(t, Config{})

		var got domain.RecomputeCommand
		require.NoError(t, f.bus.Subscribe(ctx, domain.CHANNEL_UPDATE_ALL_SNAPSHOT, func(ctx context.Context, data []byte) {
			require.NoError(t, json.Unmarshal(data, &got))
		}))

		cmd, err := f.coord.TriggerRecompute(ctx, domain.TimeRange{Since: base, Until: base.Add(time.Hour)})
		require.NoError(t, err)
		assert.NotEmpty(t, cmd.ID)
		assert.Equal(t, cmd, got)
	})

	t.Run("inverted range is rejected", func(t *testing.T) {
		f := newFixture(t, Config{})

		_, err := f.coord.TriggerRecompute(ctx, domain.TimeRange{Since: base.Add(time.Hour), Until: base})
		require.Error(t, err)

		var validation *domain.ValidationError
		assert.ErrorAs(t, err, &validation)
	})
}

func TestRecomputeAll(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("rebuilds snapshots from the event log", func(t *testing.T) {
		f := newFixture(t, Config{})

		items := []*schema.Item{
			{ID: "itm0000000000001", MakerID: 1, PlayerHash: "p1", CreatedAt: base},
			{ID: "itm0000000000002", MakerID: 1, PlayerHash: "p1", CreatedAt: base.Add(time.Minute)},
			{ID: "itm0000000000003", MakerID: 1, PlayerHash: "p2", CreatedAt: base.Add(2 * time.Minute)},
			{ID: "itm0000000000004", MakerID: 2, PlayerHash: "p1", CreatedAt: base.Add(3 * time.Minute)},
		}
		for _, item := range items {
			require.NoError(t, f.store.CreateItem(ctx, item))
		}
		// stale snapshot for a maker with no plays in the window
		require.NoError(t, f.store.UpsertSnapshot(ctx, 1, 99))

		cmd := domain.RecomputeCommand{ID: "cmd", Since: base, Until: base.Add(time.Hour)}
		require.NoError(t, f.coord.RecomputeAll(ctx, cmd))

		got, err := f.coord.GetRanking(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, []domain.MakerPlayCount{
			{MakerID: 1, PlayCount: 2},
			{MakerID: 2, PlayCount: 1},
		}, got)
	})

	t.Run("recompute command over the bus reaches the handler", func(t *testing.T) {
		f := newFixture(t, Config{})
		require.NoError(t, f.coord.RegisterHandlers(ctx))

		require.NoError(t, f.store.CreateItem(ctx, &schema.Item{
			ID: "itm0000000000001", MakerID: 7, PlayerHash: "p1", CreatedAt: base,
		}))

		_, err := f.coord.TriggerRecompute(ctx, domain.TimeRange{Since: base, Until: base.Add(time.Hour)})
		require.NoError(t, err)

		snapshots, err := f.store.ListSnapshots(ctx)
		require.NoError(t, err)
		require.Len(t, snapshots, 1)
		assert.Equal(t, int64(7), snapshots[0].MakerID)
		assert.Equal(t, int64(1), snapshots[0].PlayCount)
	})

	t.Run("no makers is a no-op", func(t *testing.T) {
		f := newFixture(t, Config{})

		cmd := domain.RecomputeCommand{ID: "cmd", Since: base, Until: base.Add(time.Hour)}
		assert.NoError(t, f.coord.RecomputeAll(ctx, cmd))
	})
}

func TestMakerUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("copies the running count into the snapshot", func(t *testing.T) {
		f := newFixture(t, Config{})
		require.NoError(t, f.coord.RegisterHandlers(ctx))

		require.NoError(t, f.store.IncrementPlayCount(ctx, 5))
		require.NoError(t, f.store.IncrementPlayCount(ctx, 5))

		require.NoError(t, f.coord.PublishMakerUpdate(ctx, 5))

		snapshots, err := f.store.ListSnapshots(ctx)
		require.NoError(t, err)
		require.Len(t, snapshots, 1)
		assert.Equal(t, int64(5), snapshots[0].MakerID)
		assert.Equal(t, int64(2), snapshots[0].PlayCount)
	})

	t.Run("malformed payload is dropped", func(t *testing.T) {
		f := newFixture(t, Config{})
		require.NoError(t, f.coord.RegisterHandlers(ctx))

		require.NoError(t, f.bus.Publish(ctx, domain.CHANNEL_UPDATE_SNAPSHOT, []byte("not-a-number")))

		snapshots, err := f.store.ListSnapshots(ctx)
		require.NoError(t, err)
		assert.Empty(t, snapshots)
	})
}

// countingStore wraps a real store and counts ListSnapshots calls
type countingStore struct {
	store.Store
	listSnapshotCalls int
	failListSnapshots bool
}

func (s *countingStore) ListSnapshots(ctx context.Context) ([]schema.PlayCountSnapshot, error) {
	s.listSnapshotCalls++
	if s.failListSnapshots {
		return nil, errors.New("connection refused")
	}
	return s.Store.ListSnapshots(ctx)
}

// countingBus wraps a real bus and counts publishes per channel
type countingBus struct {
	broadcast.Broadcaster
	mu     sync.Mutex
	counts map[string]int
}

func (b *countingBus) Publish(ctx context.Context, channel string, data []byte) error {
	b.mu.Lock()
	if b.counts == nil {
		b.counts = make(map[string]int)
	}
	b.counts[channel]++
	b.mu.Unlock()
	return b.Broadcaster.Publish(ctx, channel, data)
}

func (b *countingBus) published(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[channel]
}

// failingCache fails every operation
type failingCache struct{}

func (c *failingCache) Replace(ctx context.Context, entries []domain.MakerPlayCount, ttl time.Duration) error {
	return errors.New("connection refused")
}

func (c *failingCache) Fetch(ctx context.Context, limit int) ([]domain.MakerPlayCount, bool, error) {
	return nil, false, errors.New("connection refused")
}
