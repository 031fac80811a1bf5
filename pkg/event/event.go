// Package event provides a small in-process publish-subscribe bus used to
// report plugin lifecycle progress.
package event

import (
	"context"
	"sync"
)

// Handler handles one published event.
type Handler func(ctx context.Context, data any)

// EventBus defines the interface for an event system.
type EventBus interface {
	Subscribe(event string, handler Handler)
	Publish(ctx context.Context, event string, data any)
}

// Bus is the default EventBus.
//
// Publish delivers synchronously in subscription order, so a single
// publisher's events reach each handler in the order they were published.
// Handlers may be called from several goroutines when several publishers
// share a bus and must be safe for that.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
}

var _ EventBus = (*Bus)(nil)

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string][]Handler),
	}
}

// Subscribe adds a handler for event.
func (b *Bus) Subscribe(event string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[event] = append(b.subscribers[event], handler)
}

// Publish calls every handler subscribed to event and returns when all of
// them have returned.
func (b *Bus) Publish(ctx context.Context, event string, data any) {
	for _, handler := range b.handlers(event) {
		handler(ctx, data)
	}
}

func (b *Bus) handlers(event string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Handler(nil), b.subscribers[event]...) // copy to avoid race
}
