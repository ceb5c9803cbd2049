package ranking

import (
	"context"
	"sync"
	"time"

	"github.com/late24/playrank/internal/domain"
)

// memoryListCache is an in-process ListCache for unit tests and local
// development without Redis
type memoryListCache struct {
	mu        sync.Mutex
	entries   []domain.MakerPlayCount
	expiresAt time.Time
	now       func() time.Time
}

// NewMemoryListCache creates an empty in-memory ranking cache
func NewMemoryListCache() ListCache {
	return &memoryListCache{now: time.Now}
}

func (c *memoryListCache) Replace(ctx context.Context, entries []domain.MakerPlayCount, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(entries) == 0 {
		c.entries = nil
		return nil
	}
	c.entries = append([]domain.MakerPlayCount(nil), entries...)
	c.expiresAt = c.now().Add(ttl)
	return nil
}

func (c *memoryListCache) Fetch(ctx context.Context, limit int) ([]domain.MakerPlayCount, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) == 0 || !c.expiresAt.After(c.now()) {
		c.entries = nil
		return nil, false, nil
	}

	entries := c.entries
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return append([]domain.MakerPlayCount(nil), entries...), true, nil
}
