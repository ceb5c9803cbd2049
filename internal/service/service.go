// Package service wires the event log, dedup log, ranking coordinator, and
// broadcast bus behind the API handlers.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/late24/playrank/internal/aggregator"
	"github.com/late24/playrank/internal/domain"
	"github.com/late24/playrank/internal/logger"
	"github.com/late24/playrank/internal/ranking"
	"github.com/late24/playrank/internal/store"
	"github.com/late24/playrank/internal/store/schema"
)

// Service is the orchestrator behind the HTTP surface
type Service struct {
	store store.Store
	agg   *aggregator.Aggregator
	coord *ranking.Coordinator
}

// New creates a service
func New(s store.Store, agg *aggregator.Aggregator, coord *ranking.Coordinator) *Service {
	return &Service{store: s, agg: agg, coord: coord}
}

// Start registers the broadcast handlers. Must be called once before serving.
func (s *Service) Start(ctx context.Context) error {
	return s.coord.RegisterHandlers(ctx)
}

// IngestItem validates, stores, and counts one play event. It returns the
// stored item even when the counting path partially fails: the event is
// durable and the count self-heals on the next recompute.
func (s *Service) IngestItem(ctx context.Context, text string, createdAt time.Time, makerID int64, playerHash string) (*schema.Item, error) {
	if makerID <= 0 {
		return nil, domain.NewValidationError("maker_id", "must be a positive integer")
	}
	if playerHash == "" {
		return nil, domain.NewValidationError("user_hash", "must not be empty")
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	id, err := domain.NewItemID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate item id: %w", err)
	}

	item := &schema.Item{
		ID:         id,
		Text:       text,
		MakerID:    makerID,
		PlayerHash: playerHash,
		CreatedAt:  createdAt,
	}

	counted, err := s.agg.Ingest(ctx, item)
	if err != nil {
		var partial *domain.AggregationPartialFailureError
		if errors.As(err, &partial) {
			logger.ErrorCtx(ctx, err, zap.String("item_id", item.ID))
			return item, nil
		}
		return nil, err
	}

	if counted {
		// let every instance fold the new running count into its snapshot
		if err := s.coord.PublishMakerUpdate(ctx, item.MakerID); err != nil {
			logger.WarnCtx(ctx, "failed to publish maker update", zap.Error(err), zap.Int64("maker_id", item.MakerID))
		}
	}
	return item, nil
}

// GetItem looks up one play event by its key
func (s *Service) GetItem(ctx context.Context, id string) (*schema.Item, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, &domain.StorageUnavailableError{Err: fmt.Errorf("failed to get item: %w", err)}
	}
	if item == nil {
		return nil, domain.ErrItemNotFound
	}
	return item, nil
}

// DeleteItem removes one play event. Idempotent: deleting a missing item
// succeeds. The running count is never decremented; the gap closes on the
// next windowed recompute.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	if err := s.store.DeleteItem(ctx, id); err != nil {
		return &domain.StorageUnavailableError{Err: fmt.Errorf("failed to delete item: %w", err)}
	}
	return nil
}

// GetPlayCount returns one maker's running distinct-player count
func (s *Service) GetPlayCount(ctx context.Context, makerID int64) (int64, error) {
	count, err := s.store.GetPlayCount(ctx, makerID)
	if err != nil {
		return 0, &domain.StorageUnavailableError{Err: fmt.Errorf("failed to get play count: %w", err)}
	}
	return count, nil
}

// GetPlayCounts returns running counts for the given makers; makers without
// a counter are omitted
func (s *Service) GetPlayCounts(ctx context.Context, makerIDs []int64) ([]domain.MakerPlayCount, error) {
	rows, err := s.store.GetPlayCounts(ctx, makerIDs)
	if err != nil {
		return nil, &domain.StorageUnavailableError{Err: fmt.Errorf("failed to get play counts: %w", err)}
	}

	counts := make([]domain.MakerPlayCount, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, domain.MakerPlayCount{MakerID: row.MakerID, PlayCount: row.PlayCount})
	}
	return counts, nil
}

// GetRanking returns up to limit makers ordered by play count
func (s *Service) GetRanking(ctx context.Context, limit int) ([]domain.MakerPlayCount, error) {
	return s.coord.GetRanking(ctx, limit)
}

// TriggerRankingUpdate fans out an asynchronous full-window recompute and
// returns as soon as the command is published
func (s *Service) TriggerRankingUpdate(ctx context.Context, r domain.TimeRange) (domain.RecomputeCommand, error) {
	return s.coord.TriggerRecompute(ctx, r)
}
