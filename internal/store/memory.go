package store

import (
	"context"
	"sort"
	"sync"

	"github.com/late24/playrank/internal/domain"
	"github.com/late24/playrank/internal/store/schema"
)

// memoryStore is an in-memory Store used by unit tests and local development.
// It mirrors the PostgreSQL implementation's ordering and upsert semantics.
type memoryStore struct {
	mu        sync.RWMutex
	items     map[string]schema.Item
	counters  map[int64]int64
	snapshots map[int64]schema.PlayCountSnapshot
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() Store {
	return &memoryStore{
		items:     make(map[string]schema.Item),
		counters:  make(map[int64]int64),
		snapshots: make(map[int64]schema.PlayCountSnapshot),
	}
}

func (s *memoryStore) CreateItem(ctx context.Context, item *schema.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = *item
	return nil
}

func (s *memoryStore) GetItem(ctx context.Context, id string) (*schema.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *memoryStore) DeleteItem(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *memoryStore) GetMakerIDs(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]bool)
	for _, item := range s.items {
		seen[item.MakerID] = true
	}
	makerIDs := make([]int64, 0, len(seen))
	for id := range seen {
		makerIDs = append(makerIDs, id)
	}
	sort.Slice(makerIDs, func(i, j int) bool { return makerIDs[i] < makerIDs[j] })
	return makerIDs, nil
}

func (s *memoryStore) StreamItemsByRange(ctx context.Context, r domain.TimeRange, batchSize int, fn func(items []*schema.Item) error) error {
	s.mu.RLock()
	matched := make([]schema.Item, 0)
	for _, item := range s.items {
		if r.Contains(item.CreatedAt) {
			matched = append(matched, item)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	for start := 0; start < len(matched); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(matched))
		batch := make([]*schema.Item, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, &matched[i])
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

func (s *memoryStore) IncrementPlayCount(ctx context.Context, makerID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[makerID]++
	return nil
}

func (s *memoryStore) GetPlayCount(ctx context.Context, makerID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[makerID], nil
}

func (s *memoryStore) GetPlayCounts(ctx context.Context, makerIDs []int64) ([]schema.MakerPlayCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	counters := make([]schema.MakerPlayCount, 0, len(makerIDs))
	for _, id := range makerIDs {
		count, ok := s.counters[id]
		if !ok {
			continue
		}
		counters = append(counters, schema.MakerPlayCount{MakerID: id, PlayCount: count})
	}
	sort.Slice(counters, func(i, j int) bool { return counters[i].MakerID < counters[j].MakerID })
	return counters, nil
}

func (s *memoryStore) UpsertSnapshot(ctx context.Context, makerID int64, playCount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[makerID] = schema.PlayCountSnapshot{MakerID: makerID, PlayCount: playCount}
	return nil
}

func (s *memoryStore) ListSnapshots(ctx context.Context) ([]schema.PlayCountSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshots := make([]schema.PlayCountSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		snapshots = append(snapshots, snap)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].PlayCount == snapshots[j].PlayCount {
			return snapshots[i].MakerID < snapshots[j].MakerID
		}
		return snapshots[i].PlayCount > snapshots[j].PlayCount
	})
	return snapshots, nil
}
