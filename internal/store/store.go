package store

import (
	"context"

	"github.com/late24/playrank/internal/domain"
	"github.com/late24/playrank/internal/store/schema"
)

// Store defines the interface for database operations
type Store interface {
	// CreateItem appends one play event to the event log
	CreateItem(ctx context.Context, item *schema.Item) error
	// GetItem retrieves an item by its key, nil when absent
	GetItem(ctx context.Context, id string) (*schema.Item, error)
	// DeleteItem removes an item by its key; deleting a missing item is not an error
	DeleteItem(ctx context.Context, id string) error
	// GetMakerIDs lists all distinct maker ids known to the event log
	GetMakerIDs(ctx context.Context) ([]int64, error)
	// StreamItemsByRange walks all items with created_at in the closed range,
	// delivering them in fixed-size batches ordered by creation time. The scan
	// stops when fn returns an error or ctx is canceled.
	StreamItemsByRange(ctx context.Context, r domain.TimeRange, batchSize int, fn func(items []*schema.Item) error) error

	// IncrementPlayCount atomically adds one to a maker's running counter,
	// creating it at 1 when absent
	IncrementPlayCount(ctx context.Context, makerID int64) error
	// GetPlayCount returns a maker's running counter, 0 when absent
	GetPlayCount(ctx context.Context, makerID int64) (int64, error)
	// GetPlayCounts returns the running counters for the given makers; makers
	// without a counter row are omitted
	GetPlayCounts(ctx context.Context, makerIDs []int64) ([]schema.MakerPlayCount, error)

	// UpsertSnapshot overwrites one maker's ranking snapshot row
	UpsertSnapshot(ctx context.Context, makerID int64, playCount int64) error
	// ListSnapshots returns all snapshot rows ordered by play_count descending,
	// ties broken by ascending maker_id
	ListSnapshots(ctx context.Context) ([]schema.PlayCountSnapshot, error)
}
