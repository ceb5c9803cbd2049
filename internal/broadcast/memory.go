package broadcast

import (
	"context"
	"sync"
)

// memoryBus is an in-process Broadcaster for unit tests and single-instance
// development. Handlers run synchronously on the publishing goroutine.
type memoryBus struct {
	registry *HandlerRegistry

	mu     sync.Mutex
	closed bool
}

// NewMemory creates an in-process bus
func NewMemory() Broadcaster {
	return &memoryBus{registry: NewHandlerRegistry()}
}

func (b *memoryBus) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.registry.Set(channel, handler)
	return nil
}

func (b *memoryBus) Publish(ctx context.Context, channel string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil
	}

	b.registry.Dispatch(ctx, channel, data)
	return nil
}

func (b *memoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
