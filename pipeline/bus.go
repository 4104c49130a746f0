package pipeline

import (
	"context"
	"sync"

	"github.com/gavelworks/gavel/core"
)

// Publisher fans committed events out to subscribers. Events for one
// auction are always delivered in commit order, after the store append has
// succeeded.
type Publisher interface {
	Publish(ctx context.Context, events []core.Event)
}

// Handler consumes one committed event. Handlers must not block for long;
// the bus delivers synchronously on the committing goroutine.
type Handler func(ctx context.Context, e core.Event)

// MemoryBus is a synchronous in-process Publisher.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewMemoryBus() *MemoryBus { return &MemoryBus{} }

func (b *MemoryBus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *MemoryBus) Publish(ctx context.Context, events []core.Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, e := range events {
		for _, h := range handlers {
			h(ctx, e)
		}
	}
}
