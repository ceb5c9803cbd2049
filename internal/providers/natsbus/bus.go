// Package natsbus implements the broadcast bus on NATS core pub/sub, for
// deployments that already run NATS instead of Redis. Core NATS delivery is
// at-most-once, matching the broadcast contract.
package natsbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/late24/playrank/internal/broadcast"
)

type Bus struct {
	conn     *nats.Conn
	registry *broadcast.HandlerRegistry

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewBus connects to NATS and returns a broadcast bus
func NewBus(url string, options ...nats.Option) (*Bus, error) {
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Bus{
		conn:     conn,
		registry: broadcast.NewHandlerRegistry(),
	}, nil
}

func (b *Bus) Subscribe(ctx context.Context, channel string, handler broadcast.Handler) error {
	isNew := b.registry.Set(channel, handler)
	if !isNew {
		return nil
	}

	sub, err := b.conn.Subscribe(channel, func(msg *nats.Msg) {
		b.registry.Dispatch(context.Background(), msg.Subject, msg.Data)
	})
	if err != nil {
		b.registry.Unset(channel)
		return fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

func (b *Bus) Publish(ctx context.Context, channel string, data []byte) error {
	if err := b.conn.Publish(channel, data); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}
	return nil
}

// Close drains pending messages and closes the connection
func (b *Bus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil && !b.conn.IsClosed() {
			return fmt.Errorf("failed to unsubscribe: %w", err)
		}
	}
	return b.conn.Drain()
}
