package events

import "sync"

// LatestGate implements last-request-wins per key: a computation takes a
// ticket when it starts and checks it is still current before publishing its
// result. A superseded computation's result is discarded by ticket identity,
// never merged, regardless of completion order.
type LatestGate struct {
	mu      sync.Mutex
	tickets map[string]uint64
}

func NewLatestGate() *LatestGate {
	return &LatestGate{tickets: make(map[string]uint64)}
}

// Begin registers a new in-flight computation for key and returns its ticket.
func (g *LatestGate) Begin(key string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tickets[key]++
	return g.tickets[key]
}

// Current reports whether ticket is still the newest one issued for key.
func (g *LatestGate) Current(key string, ticket uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tickets[key] == ticket
}
