package fetch

import (
	"context"
	"sync"
)

// DomainGate serializes fetches against the same domain so concurrent
// requests cannot hammer one site. Different domains proceed independently.
type DomainGate struct {
	mu    sync.Mutex
	limit int
	slots map[string]chan struct{}
}

// NewDomainGate creates a gate allowing limit concurrent fetches per domain.
func NewDomainGate(limit int) *DomainGate {
	if limit <= 0 {
		limit = 1
	}
	return &DomainGate{
		limit: limit,
		slots: make(map[string]chan struct{}),
	}
}

// Acquire blocks until a slot for the domain is free or the context is
// cancelled. The returned release function must be called exactly once.
func (g *DomainGate) Acquire(ctx context.Context, domain string) (func(), error) {
	g.mu.Lock()
	sem, ok := g.slots[domain]
	if !ok {
		sem = make(chan struct{}, g.limit)
		g.slots[domain] = sem
	}
	g.mu.Unlock()

	select {
	case sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-sem })
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
