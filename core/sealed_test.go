package core

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func newSealed(t *testing.T, clk *testClock, mutate func(*CreateAuction)) *SealedAuction {
	t.Helper()
	agg := NewSealedAuction()
	agg.now = clk.Now
	cmd := &CreateAuction{
		CommandMeta:  CommandMeta{AuctionID: NewAuctionID()},
		Item:         NewItemID(),
		Seller:       NewSellerID(),
		Type:         SealedBid,
		StartTime:    t0,
		EndTime:      t0.Add(time.Hour),
		RevealWindow: 30 * time.Minute,
	}
	if mutate != nil {
		mutate(cmd)
	}
	assert.NoError(t, agg.Handle(cmd))
	return agg
}

func commitBid(agg *SealedAuction, bidder BidderID, hash string, at time.Time, seq uint64) error {
	return agg.Handle(&CommitBid{
		CommandMeta: CommandMeta{AuctionID: agg.ID()},
		Bidder:      bidder,
		Hash:        hash,
		ServerTime:  at,
		SeqNo:       seq,
	})
}

func revealBid(agg *SealedAuction, bidder BidderID, amount Money, salt string) error {
	return agg.Handle(&RevealBid{
		CommandMeta: CommandMeta{AuctionID: agg.ID()},
		Bidder:      bidder,
		Amount:      amount,
		Salt:        salt,
	})
}

func TestSealed_CommitRevealRoundTrip(t *testing.T) {
	clk := &testClock{now: t0}
	agg := newSealed(t, clk, nil)
	b := NewBidderID()
	amount := USD("50")

	assert.NoError(t, commitBid(agg, b, HashBid(amount, "salt1"), t0.Add(time.Minute), 1))
	check.Equal(t, StatusSealedBidding, agg.Status())

	clk.Advance(61 * time.Minute)
	assert.NoError(t, agg.Handle(&StartRevealPhase{CommandMeta: CommandMeta{AuctionID: agg.ID()}}))
	check.Equal(t, StatusRevealPhase, agg.Status())
	check.Equal(t, t0.Add(time.Hour+30*time.Minute), agg.RevealEndTime())

	// Wrong salt: the reveal is recorded but invalid, and does not block a
	// retry with the right one.
	assert.NoError(t, revealBid(agg, b, amount, "salt2"))
	check.Equal(t, 0, len(agg.ValidReveals()))

	assert.NoError(t, revealBid(agg, b, amount, "salt1"))
	check.Equal(t, 1, len(agg.ValidReveals()))
	check.True(t, agg.ValidReveals()[0].Amount.Equal(amount))

	// Both reveal attempts live in the stream for audit.
	reveals := countEvents(agg.Pending(), func(e Event) bool {
		_, ok := e.(*BidRevealed)
		return ok
	})
	check.Equal(t, 2, reveals)
}

func TestSealed_DuplicateCommitRejected(t *testing.T) {
	clk := &testClock{now: t0}
	agg := newSealed(t, clk, nil)
	b := NewBidderID()

	assert.NoError(t, commitBid(agg, b, HashBid(USD("50"), "s"), t0.Add(time.Minute), 1))
	err := commitBid(agg, b, HashBid(USD("80"), "s2"), t0.Add(2*time.Minute), 2)
	check.True(t, IsState(err))
	check.Equal(t, 1, len(agg.Commitments()))
}

func TestSealed_RevealRequiresCommitment(t *testing.T) {
	clk := &testClock{now: t0}
	agg := newSealed(t, clk, nil)

	clk.Advance(61 * time.Minute)
	assert.NoError(t, agg.Handle(&StartRevealPhase{CommandMeta: CommandMeta{AuctionID: agg.ID()}}))

	err := revealBid(agg, NewBidderID(), USD("50"), "salt")
	check.True(t, IsState(err))
}

func TestSealed_RevealPhaseGates(t *testing.T) {
	clk := &testClock{now: t0}
	agg := newSealed(t, clk, nil)
	b := NewBidderID()
	assert.NoError(t, commitBid(agg, b, HashBid(USD("50"), "s"), t0.Add(time.Minute), 1))

	// Reveal before the phase starts.
	err := revealBid(agg, b, USD("50"), "s")
	check.True(t, IsState(err))

	// Reveal phase cannot start before the bidding deadline.
	err = agg.Handle(&StartRevealPhase{CommandMeta: CommandMeta{AuctionID: agg.ID()}})
	check.True(t, IsState(err))

	// Commits bounce once bidding is over.
	clk.Advance(61 * time.Minute)
	assert.NoError(t, agg.Handle(&StartRevealPhase{CommandMeta: CommandMeta{AuctionID: agg.ID()}}))
	err = commitBid(agg, NewBidderID(), "h", clk.Now(), 2)
	check.True(t, IsState(err))

	// Reveals bounce after the reveal deadline.
	clk.Advance(time.Hour)
	err = revealBid(agg, b, USD("50"), "s")
	check.True(t, IsState(err))
}

func TestSealed_WinnerHighestAmountTieByCommitOrder(t *testing.T) {
	clk := &testClock{now: t0}
	agg := newSealed(t, clk, nil)
	b1, b2, b3 := NewBidderID(), NewBidderID(), NewBidderID()

	assert.NoError(t, commitBid(agg, b1, HashBid(USD("70"), "s1"), t0.Add(time.Minute), 1))
	assert.NoError(t, commitBid(agg, b2, HashBid(USD("70"), "s2"), t0.Add(2*time.Minute), 2))
	assert.NoError(t, commitBid(agg, b3, HashBid(USD("60"), "s3"), t0.Add(3*time.Minute), 3))

	clk.Advance(61 * time.Minute)
	assert.NoError(t, agg.Handle(&StartRevealPhase{CommandMeta: CommandMeta{AuctionID: agg.ID()}}))

	// Reveal in reverse order; ordering of reveals must not matter.
	assert.NoError(t, revealBid(agg, b3, USD("60"), "s3"))
	assert.NoError(t, revealBid(agg, b2, USD("70"), "s2"))
	assert.NoError(t, revealBid(agg, b1, USD("70"), "s1"))

	clk.Advance(time.Hour)
	assert.NoError(t, agg.Handle(&CloseAuction{CommandMeta: CommandMeta{AuctionID: agg.ID()}}))
	check.Equal(t, StatusClosed, agg.Status())
	// b1 and b2 tie at 70; b1 committed first (lower sequence) and wins.
	check.Equal(t, &b1, agg.Winner())
}

func TestSealed_InvalidRevealsNeverWin(t *testing.T) {
	clk := &testClock{now: t0}
	agg := newSealed(t, clk, nil)
	b1, b2 := NewBidderID(), NewBidderID()

	assert.NoError(t, commitBid(agg, b1, HashBid(USD("90"), "s1"), t0.Add(time.Minute), 1))
	assert.NoError(t, commitBid(agg, b2, HashBid(USD("40"), "s2"), t0.Add(2*time.Minute), 2))

	clk.Advance(61 * time.Minute)
	assert.NoError(t, agg.Handle(&StartRevealPhase{CommandMeta: CommandMeta{AuctionID: agg.ID()}}))

	// b1 claims a different amount than committed: invalid, excluded.
	assert.NoError(t, revealBid(agg, b1, USD("95"), "s1"))
	assert.NoError(t, revealBid(agg, b2, USD("40"), "s2"))

	clk.Advance(time.Hour)
	assert.NoError(t, agg.Handle(&CloseAuction{CommandMeta: CommandMeta{AuctionID: agg.ID()}}))
	check.Equal(t, &b2, agg.Winner())
}

func TestSealed_ReserveGatesTheWin(t *testing.T) {
	clk := &testClock{now: t0}
	reserve := USD("100")
	agg := newSealed(t, clk, func(c *CreateAuction) {
		c.ReservePrice = &reserve
	})
	b := NewBidderID()

	assert.NoError(t, commitBid(agg, b, HashBid(USD("80"), "s"), t0.Add(time.Minute), 1))
	clk.Advance(61 * time.Minute)
	assert.NoError(t, agg.Handle(&StartRevealPhase{CommandMeta: CommandMeta{AuctionID: agg.ID()}}))
	assert.NoError(t, revealBid(agg, b, USD("80"), "s"))

	clk.Advance(time.Hour)
	assert.NoError(t, agg.Handle(&CloseAuction{CommandMeta: CommandMeta{AuctionID: agg.ID()}}))
	check.Equal(t, StatusClosed, agg.Status())
	check.Nil(t, agg.Winner())
}
