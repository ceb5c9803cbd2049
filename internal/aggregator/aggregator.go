// Package aggregator owns the play-counting rules: the dedup window on ingest
// and the windowed distinct-count recomputation over the event log.
package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/late24/playrank/internal/domain"
	"github.com/late24/playrank/internal/store"
	"github.com/late24/playrank/internal/store/schema"
	"github.com/late24/playrank/internal/ttlkv"
)

const (
	// DefaultDedupWindow is how long a (maker, player) pair stays counted
	DefaultDedupWindow = 24 * time.Hour

	// DefaultBatchSize bounds memory during windowed recomputation
	DefaultBatchSize = 1000
)

// Aggregator applies the counting rules on top of the event log
type Aggregator struct {
	store       store.Store
	dedupLog    ttlkv.Store
	dedupWindow time.Duration
	batchSize   int
}

// New creates an aggregator. Zero dedupWindow and batchSize fall back to the
// defaults.
func New(s store.Store, dedupLog ttlkv.Store, dedupWindow time.Duration, batchSize int) *Aggregator {
	if dedupWindow <= 0 {
		dedupWindow = DefaultDedupWindow
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Aggregator{
		store:       s,
		dedupLog:    dedupLog,
		dedupWindow: dedupWindow,
		batchSize:   batchSize,
	}
}

// Ingest records a play event and bumps the maker's running count unless the
// same (maker, player) pair was already counted within the dedup window.
//
// The item insert is the durability boundary: if it fails, nothing happened
// and a StorageUnavailableError is returned. Failures past that point return
// an AggregationPartialFailureError; the event is safe in the log and the
// running count self-heals on the next full recompute. The returned bool
// reports whether the play was counted.
func (a *Aggregator) Ingest(ctx context.Context, item *schema.Item) (bool, error) {
	if err := a.store.CreateItem(ctx, item); err != nil {
		return false, &domain.StorageUnavailableError{Err: fmt.Errorf("failed to create item: %w", err)}
	}

	// The marker is written before the increment: losing the increment only
	// undercounts until the next recompute, while the reverse order could
	// double count under concurrent ingests of the same pair.
	key := domain.DedupKey(item.MakerID, item.PlayerHash)
	set, err := a.dedupLog.SetIfAbsent(ctx, key, []byte(item.ID), a.dedupWindow)
	if err != nil {
		return false, &domain.AggregationPartialFailureError{MakerID: item.MakerID, Err: fmt.Errorf("failed to write dedup marker: %w", err)}
	}
	if !set {
		return false, nil
	}

	if err := a.store.IncrementPlayCount(ctx, item.MakerID); err != nil {
		return false, &domain.AggregationPartialFailureError{MakerID: item.MakerID, Err: fmt.Errorf("failed to increment play count: %w", err)}
	}
	return true, nil
}

// WindowedDistinctCount recomputes one maker's distinct-player count over the
// given range by scanning the event log.
func (a *Aggregator) WindowedDistinctCount(ctx context.Context, makerID int64, r domain.TimeRange) (int64, error) {
	counts, err := a.BulkWindowedDistinctCounts(ctx, []int64{makerID}, r)
	if err != nil {
		return 0, err
	}
	return counts[makerID], nil
}

// BulkWindowedDistinctCounts recomputes distinct-player counts for the given
// makers over the range in a single streamed pass. Every requested maker is
// present in the result, zero when it had no plays in the window.
func (a *Aggregator) BulkWindowedDistinctCounts(ctx context.Context, makerIDs []int64, r domain.TimeRange) (map[int64]int64, error) {
	if !r.Valid() {
		return nil, domain.NewValidationError("range", "since must not be after until")
	}

	wanted := make(map[int64]struct{}, len(makerIDs))
	counts := make(map[int64]int64, len(makerIDs))
	for _, id := range makerIDs {
		wanted[id] = struct{}{}
		counts[id] = 0
	}
	if len(wanted) == 0 {
		return counts, nil
	}

	seen := make(map[int64]map[string]struct{}, len(makerIDs))
	err := a.store.StreamItemsByRange(ctx, r, a.batchSize, func(items []*schema.Item) error {
		for _, item := range items {
			if _, ok := wanted[item.MakerID]; !ok {
				continue
			}
			players := seen[item.MakerID]
			if players == nil {
				players = make(map[string]struct{})
				seen[item.MakerID] = players
			}
			if _, counted := players[item.PlayerHash]; counted {
				continue
			}
			players[item.PlayerHash] = struct{}{}
			counts[item.MakerID]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stream items: %w", err)
	}
	return counts, nil
}
