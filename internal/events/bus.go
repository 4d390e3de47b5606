// Package events carries the "sales data changed" side channel. Payloads
// identify what changed; subscribers re-query rather than receive embedded
// data, so delivery only needs to be at-least-once and handlers must be
// idempotent (recomputing metrics twice is harmless).
package events

import (
	"context"
	"sync"
	"time"
)

const KindSalesChanged = "sales.changed"

type Event struct {
	Kind     string    `json:"kind"`
	EntityID string    `json:"entity_id"`
	At       time.Time `json:"at"`
}

type Handler func(Event)

type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(handler Handler) (unsubscribe func())
	Close() error
}

// MemoryBus is the in-process fan-out bus used when no broker is configured.
type MemoryBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[int]Handler)}
}

func (b *MemoryBus) Publish(_ context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

func (b *MemoryBus) Subscribe(handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.handlers = make(map[int]Handler)
	b.mu.Unlock()
	return nil
}
