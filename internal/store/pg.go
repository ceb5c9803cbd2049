package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/late24/playrank/internal/domain"
	"github.com/late24/playrank/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to defaults.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings
// into safe values.
//
// Defaults (when zero):
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
//
// Notes:
//   - database/sql treats MaxOpenConns=0 as "unlimited"
//   - database/sql treats MaxIdleConns=0 as "no idle connections"
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	// Ensure MaxIdleConns doesn't exceed MaxOpenConns
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// CreateItem appends one play event to the event log
func (s *pgStore) CreateItem(ctx context.Context, item *schema.Item) error {
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// GetItem retrieves an item by its key
func (s *pgStore) GetItem(ctx context.Context, id string) (*schema.Item, error) {
	var item schema.Item
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

// DeleteItem removes an item by its key
func (s *pgStore) DeleteItem(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&schema.Item{}).Error; err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

// GetMakerIDs lists all distinct maker ids known to the event log
func (s *pgStore) GetMakerIDs(ctx context.Context) ([]int64, error) {
	var makerIDs []int64
	err := s.db.WithContext(ctx).
		Model(&schema.Item{}).
		Distinct().
		Order("maker_id").
		Pluck("maker_id", &makerIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list maker ids: %w", err)
	}
	return makerIDs, nil
}

// StreamItemsByRange walks items in the closed range as a bounded-memory
// forward cursor. Each batch is handed to fn before the next one is fetched;
// fn returning an error aborts the scan without leaking the cursor.
func (s *pgStore) StreamItemsByRange(ctx context.Context, r domain.TimeRange, batchSize int, fn func(items []*schema.Item) error) error {
	var batch []*schema.Item
	result := s.db.WithContext(ctx).
		Where("created_at >= ? AND created_at <= ?", r.Since, r.Until).
		Order("created_at, id").
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			return fn(batch)
		})
	if result.Error != nil {
		return fmt.Errorf("failed to stream items: %w", result.Error)
	}
	return nil
}

// IncrementPlayCount atomically adds one to a maker's running counter
func (s *pgStore) IncrementPlayCount(ctx context.Context, makerID int64) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "maker_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"play_count": gorm.Expr("maker_play_counts.play_count + 1"),
			}),
		}).
		Create(&schema.MakerPlayCount{MakerID: makerID, PlayCount: 1}).Error
	if err != nil {
		return fmt.Errorf("failed to increment play count: %w", err)
	}
	return nil
}

// GetPlayCount returns a maker's running counter, 0 when absent
func (s *pgStore) GetPlayCount(ctx context.Context, makerID int64) (int64, error) {
	var counter schema.MakerPlayCount
	err := s.db.WithContext(ctx).Where("maker_id = ?", makerID).First(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get play count: %w", err)
	}
	return counter.PlayCount, nil
}

// GetPlayCounts returns the running counters for the given makers
func (s *pgStore) GetPlayCounts(ctx context.Context, makerIDs []int64) ([]schema.MakerPlayCount, error) {
	if len(makerIDs) == 0 {
		return []schema.MakerPlayCount{}, nil
	}

	var counters []schema.MakerPlayCount
	err := s.db.WithContext(ctx).
		Where("maker_id IN ?", makerIDs).
		Order("maker_id").
		Find(&counters).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get play counts: %w", err)
	}
	return counters, nil
}

// UpsertSnapshot overwrites one maker's ranking snapshot row. Idempotent:
// concurrent identical writes from redundant recompute cycles converge.
func (s *pgStore) UpsertSnapshot(ctx context.Context, makerID int64, playCount int64) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "maker_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"play_count", "updated_at"}),
		}).
		Create(&schema.PlayCountSnapshot{MakerID: makerID, PlayCount: playCount}).Error
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns all snapshot rows in ranking order: play_count
// descending, ties broken by ascending maker_id for a stable ordering.
func (s *pgStore) ListSnapshots(ctx context.Context) ([]schema.PlayCountSnapshot, error) {
	var snapshots []schema.PlayCountSnapshot
	err := s.db.WithContext(ctx).
		Order("play_count DESC, maker_id ASC").
		Find(&snapshots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snapshots, nil
}
