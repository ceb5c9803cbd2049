package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/late24/playrank/internal/domain"
)

// ListCache keeps the ranked maker list as a Redis list under a single key
// with a TTL. Replace swaps the whole list atomically in one transaction so
// readers never observe a partially written ranking.
type ListCache struct {
	client *goredis.Client
	key    string
}

// NewListCache creates a ranking list cache under the given key
func NewListCache(client *goredis.Client, key string) *ListCache {
	return &ListCache{client: client, key: key}
}

// Replace overwrites the cached ranking with entries and resets the TTL.
// An empty ranking clears the key, so the next read is a miss.
func (c *ListCache) Replace(ctx context.Context, entries []domain.MakerPlayCount, ttl time.Duration) error {
	values := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal ranking entry: %w", err)
		}
		values = append(values, data)
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, c.key)
	if len(values) > 0 {
		pipe.RPush(ctx, c.key, values...)
		pipe.Expire(ctx, c.key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to replace ranking cache: %w", err)
	}
	return nil
}

// Fetch reads up to limit entries from the cached ranking; limit <= 0 reads
// all of them. The second return reports a cache hit.
func (c *ListCache) Fetch(ctx context.Context, limit int) ([]domain.MakerPlayCount, bool, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	raw, err := c.client.LRange(ctx, c.key, 0, stop).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read ranking cache: %w", err)
	}
	if len(raw) == 0 {
		return nil, false, nil
	}

	entries := make([]domain.MakerPlayCount, 0, len(raw))
	for _, item := range raw {
		var entry domain.MakerPlayCount
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, false, fmt.Errorf("failed to unmarshal ranking entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, true, nil
}
