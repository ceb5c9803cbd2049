// Package redis backs the TTL key-value store, the broadcast bus, and the
// ranking list cache with a shared Redis connection.
package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis_rate/v10"
	goredis "github.com/redis/go-redis/v9"
)

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// NewRateLimiter creates a distributed rate limiter on the shared client
func NewRateLimiter(client *goredis.Client) *redis_rate.Limiter {
	return redis_rate.NewLimiter(client)
}
