package aggregator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/late24/playrank/internal/domain"
	"github.com/late24/playrank/internal/store"
	"github.com/late24/playrank/internal/store/schema"
	"github.com/late24/playrank/internal/ttlkv"
)

func newTestAggregator() (*Aggregator, store.Store) {
	s := store.NewMemoryStore()
	return New(s, ttlkv.NewMemory(), time.Minute, 3), s
}

func buildItem(id string, makerID int64, playerHash string, createdAt time.Time) *schema.Item {
	return &schema.Item{
		ID:         id,
		Text:       "play result",
		MakerID:    makerID,
		PlayerHash: playerHash,
		CreatedAt:  createdAt,
	}
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("first play of a pair is counted", func(t *testing.T) {
		agg, s := newTestAggregator()

		counted, err := agg.Ingest(ctx, buildItem("aaaaaaaaaaaaaaaa", 1, "p1", now))
		require.NoError(t, err)
		assert.True(t, counted)

		count, err := s.GetPlayCount(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("repeat play within the window is stored but not counted", func(t *testing.T) {
		agg, s := newTestAggregator()

		_, err := agg.Ingest(ctx, buildItem("aaaaaaaaaaaaaaaa", 1, "p1", now))
		require.NoError(t, err)

		counted, err := agg.Ingest(ctx, buildItem("bbbbbbbbbbbbbbbb", 1, "p1", now))
		require.NoError(t, err)
		assert.False(t, counted)

		// the repeat event itself is durable
		item, err := s.GetItem(ctx, "bbbbbbbbbbbbbbbb")
		require.NoError(t, err)
		require.NotNil(t, item)

		count, err := s.GetPlayCount(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("same player counts once per maker", func(t *testing.T) {
		agg, s := newTestAggregator()

		counted, err := agg.Ingest(ctx, buildItem("aaaaaaaaaaaaaaaa", 1, "p1", now))
		require.NoError(t, err)
		assert.True(t, counted)

		counted, err = agg.Ingest(ctx, buildItem("bbbbbbbbbbbbbbbb", 2, "p1", now))
		require.NoError(t, err)
		assert.True(t, counted)

		count, err := s.GetPlayCount(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("play counts again after the window expires", func(t *testing.T) {
		s := store.NewMemoryStore()
		agg := New(s, ttlkv.NewMemory(), 10*time.Millisecond, 3)

		_, err := agg.Ingest(ctx, buildItem("aaaaaaaaaaaaaaaa", 1, "p1", now))
		require.NoError(t, err)

		time.Sleep(20 * time.Millisecond)

		counted, err := agg.Ingest(ctx, buildItem("bbbbbbbbbbbbbbbb", 1, "p1", now))
		require.NoError(t, err)
		assert.True(t, counted)

		count, err := s.GetPlayCount(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("item insert failure is storage unavailable", func(t *testing.T) {
		agg := New(&failingStore{Store: store.NewMemoryStore(), failCreate: true}, ttlkv.NewMemory(), time.Minute, 3)

		_, err := agg.Ingest(ctx, buildItem("aaaaaaaaaaaaaaaa", 1, "p1", now))
		require.Error(t, err)

		var unavailable *domain.StorageUnavailableError
		assert.ErrorAs(t, err, &unavailable)
	})

	t.Run("dedup log failure is a partial failure", func(t *testing.T) {
		s := store.NewMemoryStore()
		agg := New(s, &failingKV{}, time.Minute, 3)

		_, err := agg.Ingest(ctx, buildItem("aaaaaaaaaaaaaaaa", 1, "p1", now))
		require.Error(t, err)

		var partial *domain.AggregationPartialFailureError
		require.ErrorAs(t, err, &partial)
		assert.Equal(t, int64(1), partial.MakerID)

		// the event made it into the log before the failure
		item, err := s.GetItem(ctx, "aaaaaaaaaaaaaaaa")
		require.NoError(t, err)
		assert.NotNil(t, item)
	})

	t.Run("increment failure is a partial failure", func(t *testing.T) {
		agg := New(&failingStore{Store: store.NewMemoryStore(), failIncrement: true}, ttlkv.NewMemory(), time.Minute, 3)

		_, err := agg.Ingest(ctx, buildItem("aaaaaaaaaaaaaaaa", 1, "p1", now))
		require.Error(t, err)

		var partial *domain.AggregationPartialFailureError
		assert.ErrorAs(t, err, &partial)
	})
}

func TestBulkWindowedDistinctCounts(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	seed := func(t *testing.T, s store.Store) {
		items := []*schema.Item{
			buildItem("itm0000000000001", 1, "p1", base),
			buildItem("itm0000000000002", 1, "p1", base.Add(time.Hour)), // duplicate player
			buildItem("itm0000000000003", 1, "p2", base.Add(2*time.Hour)),
			buildItem("itm0000000000004", 2, "p1", base.Add(3*time.Hour)),
			buildItem("itm0000000000005", 1, "p3", base.Add(30*time.Hour)), // outside window
		}
		for _, item := range items {
			require.NoError(t, s.CreateItem(ctx, item))
		}
	}

	t.Run("counts distinct players per maker within the window", func(t *testing.T) {
		agg, s := newTestAggregator()
		seed(t, s)

		counts, err := agg.BulkWindowedDistinctCounts(ctx, []int64{1, 2, 9}, domain.TimeRange{
			Since: base,
			Until: base.Add(24 * time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, map[int64]int64{1: 2, 2: 1, 9: 0}, counts)
	})

	t.Run("duplicates across batch boundaries count once", func(t *testing.T) {
		s := store.NewMemoryStore()
		agg := New(s, ttlkv.NewMemory(), time.Minute, 2) // batch size 2

		for i := range 6 {
			player := "p1"
			if i >= 4 {
				player = fmt.Sprintf("p%d", i)
			}
			require.NoError(t, s.CreateItem(ctx, buildItem(fmt.Sprintf("itm00000000000%02d", i), 1, player, base.Add(time.Duration(i)*time.Minute))))
		}

		count, err := agg.WindowedDistinctCount(ctx, 1, domain.TimeRange{Since: base, Until: base.Add(time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})

	t.Run("empty maker list yields empty counts", func(t *testing.T) {
		agg, s := newTestAggregator()
		seed(t, s)

		counts, err := agg.BulkWindowedDistinctCounts(ctx, nil, domain.TimeRange{Since: base, Until: base.Add(time.Hour)})
		require.NoError(t, err)
		assert.Empty(t, counts)
	})

	t.Run("inverted range is a validation error", func(t *testing.T) {
		agg, _ := newTestAggregator()

		_, err := agg.BulkWindowedDistinctCounts(ctx, []int64{1}, domain.TimeRange{
			Since: base.Add(time.Hour),
			Until: base,
		})
		require.Error(t, err)

		var validation *domain.ValidationError
		assert.ErrorAs(t, err, &validation)
	})
}

// failingStore wraps a real store and fails selected operations
type failingStore struct {
	store.Store
	failCreate    bool
	failIncrement bool
}

func (s *failingStore) CreateItem(ctx context.Context, item *schema.Item) error {
	if s.failCreate {
		return errors.New("connection refused")
	}
	return s.Store.CreateItem(ctx, item)
}

func (s *failingStore) IncrementPlayCount(ctx context.Context, makerID int64) error {
	if s.failIncrement {
		return errors.New("connection refused")
	}
	return s.Store.IncrementPlayCount(ctx, makerID)
}

// failingKV fails every operation
type failingKV struct{}

func (kv *failingKV) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func (kv *failingKV) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (kv *failingKV) Delete(ctx context.Context, key string) error {
	return errors.New("connection refused")
}
