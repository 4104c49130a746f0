package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DutchAuction starts at a high asking price and decays it on a fixed
// schedule. The first bid matching the current asking price wins and closes
// the auction immediately; the price never drops below the configured
// minimum.
type DutchAuction struct {
	aggregateBase
	item         ItemID
	seller       SellerID
	status       AuctionStatus
	start        time.Time
	end          time.Time
	rules        DutchRules
	current      Money
	priceHistory []Money
	winner       *BidderID
	winningBid   *Bid
}

func NewDutchAuction() *DutchAuction {
	return &DutchAuction{status: StatusCreated}
}

func (a *DutchAuction) Type() AuctionType     { return Dutch }
func (a *DutchAuction) Status() AuctionStatus { return a.status }
func (a *DutchAuction) StartTime() time.Time  { return a.start }
func (a *DutchAuction) EndTime() time.Time    { return a.end }
func (a *DutchAuction) Winner() *BidderID     { return a.winner }
func (a *DutchAuction) Rules() DutchRules     { return a.rules }

// CurrentPrice is the asking price a bid must match exactly.
func (a *DutchAuction) CurrentPrice() Money { return a.current }

// PriceHistory returns every asking price the auction has had, starting
// price first.
func (a *DutchAuction) PriceHistory() []Money {
	out := make([]Money, len(a.priceHistory))
	copy(out, a.priceHistory)
	return out
}

// WinningBid returns a copy of the bid that closed the auction, if any.
func (a *DutchAuction) WinningBid() *Bid {
	if a.winningBid == nil {
		return nil
	}
	b := *a.winningBid
	return &b
}

func (a *DutchAuction) record(e Event) {
	a.Apply(e)
	a.pending = append(a.pending, e)
}

func (a *DutchAuction) Handle(cmd Command) error {
	switch c := cmd.(type) {
	case *CreateAuction:
		return a.create(c)
	case *PlaceBid:
		return a.placeBid(c)
	case *ReducePrice:
		return a.reducePrice()
	case *CloseAuction:
		return a.close()
	case *CommitBid, *RevealBid, *StartRevealPhase:
		return stateErrorf("sealed-bid commands are not valid for dutch auctions")
	case *ExtendAuction:
		return stateErrorf("dutch auctions do not extend")
	default:
		return stateErrorf("unsupported command %T", cmd)
	}
}

func (a *DutchAuction) create(c *CreateAuction) error {
	if !a.id.IsZero() {
		return stateErrorf("auction %s already created", a.id)
	}
	if c.Type != Dutch {
		return stateErrorf("auction type %s does not belong on the dutch state machine", c.Type)
	}
	if !c.EndTime.After(c.StartTime) {
		return &ValidationError{Rule: RuleAuctionConfig, Msg: "end time must be after start time"}
	}
	if c.StartingPrice == nil || !c.StartingPrice.IsPositive() {
		return &ValidationError{Rule: RuleAuctionConfig, Msg: "dutch auctions need a positive starting price"}
	}
	if c.Dutch == nil {
		return &ValidationError{Rule: RuleAuctionConfig, Msg: "dutch auctions need explicit decay rules"}
	}
	if err := c.Dutch.Validate(*c.StartingPrice); err != nil {
		return &ValidationError{Rule: RuleAuctionConfig, Msg: err.Error()}
	}

	a.record(&AuctionCreated{
		EventMeta:     EventMeta{Auction: c.AuctionID, ID: uuid.New(), At: a.clock(), Seq: 1},
		Item:          c.Item,
		Seller:        c.Seller,
		Type:          c.Type,
		StartingPrice: c.StartingPrice,
		StartTime:     c.StartTime,
		EndTime:       c.EndTime,
		Dutch:         c.Dutch,
	})
	return nil
}

func (a *DutchAuction) placeBid(c *PlaceBid) error {
	if a.status != StatusOpen {
		return stateErrorf("auction %s is not open for bidding (status %s)", a.id, a.status)
	}
	if c.ServerTime.Before(a.start) || c.ServerTime.After(a.end) {
		return stateErrorf("auction %s is not active at %s", a.id, c.ServerTime.UTC().Format(time.RFC3339Nano))
	}
	if !c.Amount.SameCurrency(a.current) {
		return &ValidationError{
			Rule: RuleCurrency,
			Msg:  fmt.Sprintf("bid currency %s does not match auction currency %s", c.Amount.Currency, a.current.Currency),
		}
	}
	if !c.Amount.Equal(a.current) {
		return &ValidationError{
			Rule: RuleDutchPrice,
			Msg:  fmt.Sprintf("dutch auctions sell at the asking price: bid %s, asking %s", c.Amount, a.current),
		}
	}

	// First match takes it. The winning bid and the close are one atomic
	// batch so no second bid can land in between.
	bidMeta := a.nextMeta(a.id)
	bidMeta.At = c.ServerTime
	a.record(&BidPlaced{EventMeta: bidMeta, Bidder: c.Bidder, Amount: c.Amount, SeqNo: c.SeqNo})

	winner, amount := c.Bidder, c.Amount
	a.record(&AuctionClosed{EventMeta: a.nextMeta(a.id), Winner: &winner, WinningAmount: &amount})
	return nil
}

func (a *DutchAuction) reducePrice() error {
	if a.status != StatusOpen {
		return stateErrorf("auction %s is not open (status %s)", a.id, a.status)
	}
	next := a.current.Sub(a.rules.DecrementAmount)
	if next.LessThan(a.rules.MinimumPrice) {
		next = a.rules.MinimumPrice
	}
	if next.Equal(a.current) {
		// already at the floor: a tick is a no-op, not an error
		return nil
	}
	a.record(&PriceReduced{EventMeta: a.nextMeta(a.id), NewPrice: next})
	return nil
}

func (a *DutchAuction) close() error {
	if a.status != StatusOpen {
		return stateErrorf("auction %s is not open (status %s)", a.id, a.status)
	}
	if a.clock().Before(a.end) {
		return stateErrorf("auction %s end time %s has not been reached", a.id, a.end)
	}
	// expired with no taker
	a.record(&AuctionClosed{EventMeta: a.nextMeta(a.id)})
	return nil
}

func (a *DutchAuction) Apply(e Event) {
	switch ev := e.(type) {
	case *AuctionCreated:
		a.id = ev.Auction
		a.item = ev.Item
		a.seller = ev.Seller
		a.start = ev.StartTime
		a.end = ev.EndTime
		if ev.Dutch != nil {
			a.rules = *ev.Dutch
		}
		if ev.StartingPrice != nil {
			a.current = *ev.StartingPrice
			a.priceHistory = append(a.priceHistory, a.current)
		}
		a.status = StatusOpen
	case *PriceReduced:
		a.current = ev.NewPrice
		a.priceHistory = append(a.priceHistory, ev.NewPrice)
	case *BidPlaced:
		bid := Bid{Bidder: ev.Bidder, Amount: ev.Amount, PlacedAt: ev.At, SeqNo: ev.SeqNo}
		a.winningBid = &bid
	case *AuctionClosed:
		a.status = StatusClosed
		a.winner = ev.Winner
	case *ReserveMet, *BidCommitted, *AuctionRevealPhaseStarted, *BidRevealed, *AuctionExtended:
		// never emitted on this state machine
	}
	a.version++
}
