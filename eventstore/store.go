// Package eventstore persists auction event streams. The store is
// append-only: an auction's state is only ever derived by replaying its
// events in order, and concurrent writers are serialized by optimistic
// version checks.
package eventstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/gavelworks/gavel/core"
)

// Store is an append-only, per-aggregate-ordered event log.
type Store interface {
	// Append atomically writes a batch of events to one auction's stream.
	// expectedVersion is the number of events the caller believes the
	// stream already holds; on mismatch the whole batch is rejected with
	// a VersionConflictError and nothing is written.
	Append(ctx context.Context, auction core.AuctionID, events []core.Event, expectedVersion uint64) error

	// Load returns the full ordered history of one auction. A missing
	// stream is an empty slice, not an error.
	Load(ctx context.Context, auction core.AuctionID) ([]core.Event, error)
}

// VersionConflictError reports a lost optimistic-concurrency race: another
// writer appended to the stream between this caller's read and write.
type VersionConflictError struct {
	Auction  core.AuctionID
	Expected uint64
	Actual   uint64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on auction %s: expected %d, stream is at %d",
		e.Auction, e.Expected, e.Actual)
}

// IsVersionConflict reports whether err is (or wraps) a VersionConflictError.
func IsVersionConflict(err error) bool {
	var v *VersionConflictError
	return errors.As(err, &v)
}
