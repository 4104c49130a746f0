// Package pgstore backs the auction engine with Postgres: the append-only
// event log, durable scheduled jobs, per-auction advisory locks and bid
// sequence allocation.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gavelworks/gavel/core"
	"github.com/gavelworks/gavel/eventstore"
)

const pgUniqueViolation = "23505"

// EventStore is the Postgres eventstore.Store. Each event is one row keyed
// by (auction_id, version); the primary key turns concurrent appends into
// unique violations, which surface as version conflicts.
type EventStore struct {
	pool *pgxpool.Pool
}

func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

func (s *EventStore) Append(ctx context.Context, auction core.AuctionID, events []core.Event, expectedVersion uint64) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, e := range events {
		eventType, payload, err := eventstore.Encode(e)
		if err != nil {
			return err
		}
		version := expectedVersion + uint64(i) + 1
		_, err = tx.Exec(ctx, `
			INSERT INTO auction_events (auction_id, version, event_id, event_type, payload, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			auction.UUID, version, e.EventID(), eventType, payload, e.OccurredAt())
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return s.conflict(ctx, auction, expectedVersion)
			}
			return fmt.Errorf("append event %d to auction %s: %w", version, auction, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append to auction %s: %w", auction, err)
	}
	return nil
}

// conflict builds the VersionConflictError with the stream's actual head.
func (s *EventStore) conflict(ctx context.Context, auction core.AuctionID, expected uint64) error {
	var actual uint64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM auction_events WHERE auction_id = $1`,
		auction.UUID).Scan(&actual)
	if err != nil {
		actual = expected // unknown; the conflict itself still stands
	}
	return &eventstore.VersionConflictError{Auction: auction, Expected: expected, Actual: actual}
}

func (s *EventStore) Load(ctx context.Context, auction core.AuctionID) ([]core.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_type, payload
		FROM auction_events
		WHERE auction_id = $1
		ORDER BY version`,
		auction.UUID)
	if err != nil {
		return nil, fmt.Errorf("load auction %s: %w", auction, err)
	}
	defer rows.Close()

	var events []core.Event
	for rows.Next() {
		var eventType string
		var payload []byte
		if err := rows.Scan(&eventType, &payload); err != nil {
			return nil, fmt.Errorf("scan event row for auction %s: %w", auction, err)
		}
		e, err := eventstore.Decode(eventType, payload)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events for auction %s: %w", auction, err)
	}
	return events, nil
}
