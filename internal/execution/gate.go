package execution

import (
	"context"
	"sync"

	"hl-signal-bot/internal/errs"
)

// Gate serializes work per key. Different keys never block each other.
type Gate struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewGate() *Gate {
	return &Gate{slots: make(map[string]chan struct{})}
}

func (g *Gate) slot(key string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		g.slots[key] = ch
	}
	return ch
}

// Acquire blocks until key is free or ctx is done. The returned release must
// be called exactly once.
func (g *Gate) Acquire(ctx context.Context, key string) (func(), error) {
	ch := g.slot(key)
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, errs.Wrap(errs.UpstreamTimeout, "acquire account gate", ctx.Err())
	}
}
