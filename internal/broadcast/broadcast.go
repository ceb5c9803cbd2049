// Package broadcast fans out fire-and-forget messages to every running
// instance, this one included. Delivery is at most once; subscribers that are
// down or slow simply miss the message.
package broadcast

import (
	"context"
	"sync"
)

// Handler consumes one message from a channel. It runs on the bus's receive
// goroutine, so long work should be handed off.
type Handler func(ctx context.Context, data []byte)

// Broadcaster is the instance-to-instance fan-out contract
type Broadcaster interface {
	// Subscribe registers handler for channel. Each channel holds one handler;
	// subscribing again replaces the previous one without re-subscribing the
	// underlying transport.
	Subscribe(ctx context.Context, channel string, handler Handler) error
	// Publish sends data to every subscribed instance, fire-and-forget
	Publish(ctx context.Context, channel string, data []byte) error
	Close() error
}

// HandlerRegistry keeps the channel-to-handler map shared by every bus
// implementation. Replacing a handler is silent; dispatch on a channel with no
// handler is a no-op.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

// Set registers handler for channel and reports whether the channel is new,
// meaning the caller still needs to subscribe the transport.
func (r *HandlerRegistry) Set(channel string, handler Handler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.handlers[channel]
	r.handlers[channel] = handler
	return !exists
}

// Unset removes the handler for channel, so the next Set reports it as new
// again. Buses call this to roll back a registration whose transport
// subscription failed; without it a retry would be treated as a handler swap
// and never subscribe the transport.
func (r *HandlerRegistry) Unset(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, channel)
}

// Dispatch invokes the current handler for channel, if any
func (r *HandlerRegistry) Dispatch(ctx context.Context, channel string, data []byte) {
	r.mu.RLock()
	handler := r.handlers[channel]
	r.mu.RUnlock()

	if handler != nil {
		handler(ctx, data)
	}
}
