package core

import (
	"time"

	"github.com/google/uuid"
)

// SealedAuction runs the commit-reveal flow. During SEALED_BIDDING bidders
// publish commitment hashes only; after the bidding deadline a reveal phase
// opens in which each bidder discloses the amount and salt behind their
// commitment. Only valid reveals compete for the win.
type SealedAuction struct {
	aggregateBase
	item         ItemID
	seller       SellerID
	reserve      *Money
	status       AuctionStatus
	start        time.Time
	end          time.Time
	revealWindow time.Duration
	revealEnd    time.Time
	commits      map[BidderID]SealedBidCommit
	reveals      []Bid
	revealedBy   map[BidderID]bool
	winner       *BidderID
}

func NewSealedAuction() *SealedAuction {
	return &SealedAuction{
		status:     StatusCreated,
		commits:    make(map[BidderID]SealedBidCommit),
		revealedBy: make(map[BidderID]bool),
	}
}

func (a *SealedAuction) Type() AuctionType     { return SealedBid }
func (a *SealedAuction) Status() AuctionStatus { return a.status }
func (a *SealedAuction) StartTime() time.Time  { return a.start }
func (a *SealedAuction) Winner() *BidderID     { return a.winner }

// EndTime returns the deadline of the current phase: the bidding deadline
// during SEALED_BIDDING, the reveal deadline once the reveal phase started.
func (a *SealedAuction) EndTime() time.Time {
	if !a.revealEnd.IsZero() {
		return a.revealEnd
	}
	return a.end
}

// BiddingEndTime is the commit deadline regardless of phase.
func (a *SealedAuction) BiddingEndTime() time.Time { return a.end }

// RevealEndTime is zero until the reveal phase has started.
func (a *SealedAuction) RevealEndTime() time.Time { return a.revealEnd }

// Commitments returns a copy of all registered commitments.
func (a *SealedAuction) Commitments() []SealedBidCommit {
	out := make([]SealedBidCommit, 0, len(a.commits))
	for _, c := range a.commits {
		out = append(out, c)
	}
	return out
}

// ValidReveals returns the bids backing valid reveals, in reveal order. Each
// carries the sequence number of its commitment.
func (a *SealedAuction) ValidReveals() []Bid {
	out := make([]Bid, len(a.reveals))
	copy(out, a.reveals)
	return out
}

func (a *SealedAuction) record(e Event) {
	a.Apply(e)
	a.pending = append(a.pending, e)
}

func (a *SealedAuction) Handle(cmd Command) error {
	switch c := cmd.(type) {
	case *CreateAuction:
		return a.create(c)
	case *CommitBid:
		return a.commitBid(c)
	case *StartRevealPhase:
		return a.startRevealPhase()
	case *RevealBid:
		return a.revealBid(c)
	case *CloseAuction:
		return a.close()
	case *PlaceBid:
		return stateErrorf("sealed auctions take commitments, not open bids")
	case *ExtendAuction:
		return stateErrorf("sealed auctions do not extend")
	case *ReducePrice:
		return stateErrorf("price reduction is not valid for sealed auctions")
	default:
		return stateErrorf("unsupported command %T", cmd)
	}
}

func (a *SealedAuction) create(c *CreateAuction) error {
	if !a.id.IsZero() {
		return stateErrorf("auction %s already created", a.id)
	}
	if c.Type != SealedBid {
		return stateErrorf("auction type %s does not belong on the sealed state machine", c.Type)
	}
	if !c.EndTime.After(c.StartTime) {
		return &ValidationError{Rule: RuleAuctionConfig, Msg: "end time must be after start time"}
	}
	revealWindow := c.RevealWindow
	if revealWindow <= 0 {
		revealWindow = time.Hour
	}

	a.record(&AuctionCreated{
		EventMeta:    EventMeta{Auction: c.AuctionID, ID: uuid.New(), At: a.clock(), Seq: 1},
		Item:         c.Item,
		Seller:       c.Seller,
		Type:         c.Type,
		ReservePrice: c.ReservePrice,
		StartTime:    c.StartTime,
		EndTime:      c.EndTime,
		RevealWindow: revealWindow,
	})
	return nil
}

func (a *SealedAuction) commitBid(c *CommitBid) error {
	if a.status != StatusSealedBidding {
		return stateErrorf("auction %s is not accepting commitments (status %s)", a.id, a.status)
	}
	if c.ServerTime.Before(a.start) || c.ServerTime.After(a.end) {
		return stateErrorf("auction %s is not active at %s", a.id, c.ServerTime.UTC().Format(time.RFC3339Nano))
	}
	if c.Hash == "" {
		return &ValidationError{Rule: RuleAuctionConfig, Msg: "commitment hash must not be empty"}
	}
	if _, exists := a.commits[c.Bidder]; exists {
		return stateErrorf("bidder %s already committed to auction %s", c.Bidder, a.id)
	}

	meta := a.nextMeta(a.id)
	meta.At = c.ServerTime
	a.record(&BidCommitted{
		EventMeta:    meta,
		Bidder:       c.Bidder,
		Hash:         c.Hash,
		SaltEnvelope: c.SaltEnvelope,
		CommitSeqNo:  c.SeqNo,
	})
	return nil
}

func (a *SealedAuction) startRevealPhase() error {
	if a.status != StatusSealedBidding {
		return stateErrorf("auction %s cannot enter reveal phase (status %s)", a.id, a.status)
	}
	if a.clock().Before(a.end) {
		return stateErrorf("auction %s bidding deadline %s has not passed", a.id, a.end)
	}
	a.record(&AuctionRevealPhaseStarted{
		EventMeta:     a.nextMeta(a.id),
		RevealEndTime: a.end.Add(a.revealWindow),
	})
	return nil
}

func (a *SealedAuction) revealBid(c *RevealBid) error {
	if a.status != StatusRevealPhase {
		return stateErrorf("auction %s is not in its reveal phase (status %s)", a.id, a.status)
	}
	if a.clock().After(a.revealEnd) {
		return stateErrorf("auction %s reveal deadline %s has passed", a.id, a.revealEnd)
	}
	commit, exists := a.commits[c.Bidder]
	if !exists {
		return stateErrorf("bidder %s has no commitment on auction %s", c.Bidder, a.id)
	}
	if a.revealedBy[c.Bidder] {
		return stateErrorf("bidder %s already revealed a valid bid on auction %s", c.Bidder, a.id)
	}

	// An invalid reveal is still recorded for audit; the bidder may retry
	// with the correct salt until the reveal deadline.
	valid := VerifyBid(c.Amount, c.Salt, commit.Hash)
	a.record(&BidRevealed{
		EventMeta: a.nextMeta(a.id),
		Bidder:    c.Bidder,
		Amount:    c.Amount,
		Salt:      c.Salt,
		Valid:     valid,
	})
	return nil
}

func (a *SealedAuction) close() error {
	if a.status != StatusRevealPhase {
		return stateErrorf("auction %s is not in its reveal phase (status %s)", a.id, a.status)
	}
	if a.clock().Before(a.revealEnd) {
		return stateErrorf("auction %s reveal deadline %s has not been reached", a.id, a.revealEnd)
	}

	var winner *BidderID
	var amount *Money
	if best := a.bestReveal(); best != nil {
		if a.reserve == nil || (best.Amount.SameCurrency(*a.reserve) && best.Amount.GreaterThanOrEqual(*a.reserve)) {
			w, m := best.Bidder, best.Amount
			winner, amount = &w, &m
		}
	}
	a.record(&AuctionClosed{EventMeta: a.nextMeta(a.id), Winner: winner, WinningAmount: amount})
	return nil
}

// bestReveal picks the winning reveal: highest amount, ties broken by the
// lower commitment sequence number.
func (a *SealedAuction) bestReveal() *Bid {
	var best *Bid
	for i := range a.reveals {
		b := &a.reveals[i]
		if best == nil ||
			b.Amount.GreaterThan(best.Amount) ||
			(b.Amount.Equal(best.Amount) && b.SeqNo < best.SeqNo) {
			best = b
		}
	}
	return best
}

func (a *SealedAuction) Apply(e Event) {
	switch ev := e.(type) {
	case *AuctionCreated:
		a.id = ev.Auction
		a.item = ev.Item
		a.seller = ev.Seller
		a.reserve = ev.ReservePrice
		a.start = ev.StartTime
		a.end = ev.EndTime
		a.revealWindow = ev.RevealWindow
		a.status = StatusSealedBidding
	case *BidCommitted:
		a.commits[ev.Bidder] = SealedBidCommit{
			Bidder:       ev.Bidder,
			Hash:         ev.Hash,
			SaltEnvelope: ev.SaltEnvelope,
			CommittedAt:  ev.At,
			SeqNo:        ev.CommitSeqNo,
		}
	case *AuctionRevealPhaseStarted:
		a.status = StatusRevealPhase
		a.revealEnd = ev.RevealEndTime
	case *BidRevealed:
		if ev.Valid {
			commit := a.commits[ev.Bidder]
			a.reveals = append(a.reveals, Bid{
				Bidder:   ev.Bidder,
				Amount:   ev.Amount,
				PlacedAt: ev.At,
				SeqNo:    commit.SeqNo,
			})
			a.revealedBy[ev.Bidder] = true
		}
	case *AuctionClosed:
		a.status = StatusClosed
		a.winner = ev.Winner
	case *BidPlaced, *ReserveMet, *AuctionExtended, *PriceReduced:
		// never emitted on this state machine
	}
	a.version++
}
