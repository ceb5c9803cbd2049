// Package ranking serves the maker leaderboard and keeps its snapshots fresh
// across instances via the broadcast bus.
package ranking

import (
	"context"
	"time"

	"github.com/late24/playrank/internal/domain"
)

// ListCache is the TTL-bounded cache holding the fully ordered ranking.
// Fetch's bool return distinguishes a miss from an empty ranking read.
type ListCache interface {
	Replace(ctx context.Context, entries []domain.MakerPlayCount, ttl time.Duration) error
	Fetch(ctx context.Context, limit int) ([]domain.MakerPlayCount, bool, error)
}
