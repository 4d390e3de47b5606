package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryBusFanOut(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	var mu sync.Mutex
	var got []Event
	unsub := bus.Subscribe(func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})

	err := bus.Publish(context.Background(), Event{Kind: KindSalesChanged, EntityID: "sale-1"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	mu.Lock()
	if len(got) != 1 || got[0].EntityID != "sale-1" {
		t.Fatalf("expected one delivery for sale-1, got %+v", got)
	}
	if got[0].At.IsZero() {
		t.Fatalf("expected publish to stamp At")
	}
	mu.Unlock()

	unsub()
	if err := bus.Publish(context.Background(), Event{Kind: KindSalesChanged, EntityID: "sale-2"}); err != nil {
		t.Fatalf("publish after unsubscribe: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("unsubscribed handler still received events: %+v", got)
	}
}

func TestMemoryBusUnsubscribeIsIdempotent(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	unsub := bus.Subscribe(func(Event) {})
	unsub()
	unsub()
}

func TestLatestGateSupersedes(t *testing.T) {
	gate := NewLatestGate()

	first := gate.Begin("user-1")
	second := gate.Begin("user-1")

	if gate.Current("user-1", first) {
		t.Fatalf("first ticket should be superseded")
	}
	if !gate.Current("user-1", second) {
		t.Fatalf("second ticket should be current")
	}

	// Tickets are per key: another user's requests do not interfere.
	other := gate.Begin("user-2")
	if !gate.Current("user-2", other) {
		t.Fatalf("other key's ticket should be current")
	}
	if !gate.Current("user-1", second) {
		t.Fatalf("second ticket should survive activity on other keys")
	}
}

func TestLatestGateDiscardsLateFinisher(t *testing.T) {
	gate := NewLatestGate()

	slow := gate.Begin("dash")
	fast := gate.Begin("dash")

	// The fast computation finishes first and publishes.
	if !gate.Current("dash", fast) {
		t.Fatalf("fast ticket should be current")
	}
	// The slow one finishes later; its result must be dropped even though it
	// completes after the winner.
	time.Sleep(time.Millisecond)
	if gate.Current("dash", slow) {
		t.Fatalf("slow ticket must stay superseded")
	}
}
