package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gavelworks/gavel/core"
)

// Sequencer allocates per-auction bid sequence numbers from a counter row.
// The upsert keeps allocation atomic across nodes; numbers start at 1 and
// never repeat for one auction.
type Sequencer struct {
	pool *pgxpool.Pool
}

func NewSequencer(pool *pgxpool.Pool) *Sequencer {
	return &Sequencer{pool: pool}
}

func (s *Sequencer) Next(ctx context.Context, auction core.AuctionID) (uint64, error) {
	var n uint64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO bid_sequences (auction_id, n)
		VALUES ($1, 1)
		ON CONFLICT (auction_id) DO UPDATE SET n = bid_sequences.n + 1
		RETURNING n`,
		auction.UUID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next sequence for auction %s: %w", auction, err)
	}
	return n, nil
}
