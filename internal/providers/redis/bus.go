package redis

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/late24/playrank/internal/broadcast"
	"github.com/late24/playrank/internal/logger"
)

// Bus implements broadcast.Broadcaster on Redis pub/sub. The underlying
// subscription per channel is made once; later Subscribe calls only swap the
// handler in the registry. Redis pub/sub is at-most-once by nature, which
// matches the contract.
type Bus struct {
	client   *goredis.Client
	registry *broadcast.HandlerRegistry

	mu     sync.Mutex
	pubsub *goredis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBus creates a Redis-backed broadcast bus
func NewBus(client *goredis.Client) *Bus {
	return &Bus{
		client:   client,
		registry: broadcast.NewHandlerRegistry(),
	}
}

func (b *Bus) Subscribe(ctx context.Context, channel string, handler broadcast.Handler) error {
	isNew := b.registry.Set(channel, handler)
	if !isNew {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pubsub == nil {
		b.pubsub = b.client.Subscribe(ctx)

		receiveCtx, cancel := context.WithCancel(context.Background())
		b.cancel = cancel
		b.done = make(chan struct{})
		go b.receive(receiveCtx, b.pubsub)
	}

	if err := b.pubsub.Subscribe(ctx, channel); err != nil {
		b.registry.Unset(channel)
		return fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}
	return nil
}

func (b *Bus) Publish(ctx context.Context, channel string, data []byte) error {
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}
	return nil
}

func (b *Bus) receive(ctx context.Context, pubsub *goredis.PubSub) {
	defer close(b.done)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.registry.Dispatch(ctx, msg.Channel, []byte(msg.Payload))
		}
	}
}

// Close stops the receive loop and tears down the subscription
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pubsub == nil {
		return nil
	}

	b.cancel()
	if err := b.pubsub.Close(); err != nil {
		logger.Warn("failed to close redis pubsub", zap.Error(err))
	}
	<-b.done
	b.pubsub = nil
	return nil
}
