package pipeline

import (
	"context"
	"sync"

	"github.com/gavelworks/gavel/core"
)

// Sequencer allocates the server-side arrival order for bids and
// commitments on one auction. Sequence numbers start at 1 and never
// repeat; price-time priority tie-breaks depend on them.
type Sequencer interface {
	Next(ctx context.Context, auction core.AuctionID) (uint64, error)
}

// MemorySequencer counts in-process.
type MemorySequencer struct {
	mu       sync.Mutex
	counters map[core.AuctionID]uint64
}

func NewMemorySequencer() *MemorySequencer {
	return &MemorySequencer{counters: make(map[core.AuctionID]uint64)}
}

func (s *MemorySequencer) Next(ctx context.Context, auction core.AuctionID) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[auction]++
	return s.counters[auction], nil
}
