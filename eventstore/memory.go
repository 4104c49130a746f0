package eventstore

import (
	"context"
	"sync"

	"github.com/gavelworks/gavel/core"
)

// MemoryStore is an in-process Store for tests and single-node development.
// Events pass through the codec on the way in and out, so anything that
// would not survive persistence fails here too.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[core.AuctionID][]envelope
}

type envelope struct {
	eventType string
	payload   []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{streams: make(map[core.AuctionID][]envelope)}
}

func (s *MemoryStore) Append(ctx context.Context, auction core.AuctionID, events []core.Event, expectedVersion uint64) error {
	if len(events) == 0 {
		return nil
	}
	encoded := make([]envelope, 0, len(events))
	for _, e := range events {
		eventType, payload, err := Encode(e)
		if err != nil {
			return err
		}
		encoded = append(encoded, envelope{eventType: eventType, payload: payload})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stream := s.streams[auction]
	if uint64(len(stream)) != expectedVersion {
		return &VersionConflictError{
			Auction:  auction,
			Expected: expectedVersion,
			Actual:   uint64(len(stream)),
		}
	}
	s.streams[auction] = append(stream, encoded...)
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, auction core.AuctionID) ([]core.Event, error) {
	s.mu.RLock()
	stream := s.streams[auction]
	encoded := make([]envelope, len(stream))
	copy(encoded, stream)
	s.mu.RUnlock()

	events := make([]core.Event, 0, len(encoded))
	for _, env := range encoded {
		e, err := Decode(env.eventType, env.payload)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}
