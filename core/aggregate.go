package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Aggregate is the consistency boundary for one auction. An aggregate is
// only ever constructed by replaying its event history (or empty, for
// CreateAuction); Handle validates a command against current state and
// records new events, Apply folds one event into state.
//
// Aggregates are not safe for concurrent use. The execution pipeline
// serializes all commands for one auction behind a per-auction lock.
type Aggregate interface {
	ID() AuctionID
	Type() AuctionType
	Status() AuctionStatus
	EndTime() time.Time

	// Version is the number of events applied so far, including pending
	// ones. Version minus len(Pending) is the version the event store is
	// expected to be at when the pending batch is appended.
	Version() uint64
	Pending() []Event
	ClearPending()

	Apply(Event)
	Handle(Command) error
}

// NewAggregate returns an empty aggregate of the right shape for t.
func NewAggregate(t AuctionType) (Aggregate, error) {
	switch t {
	case Dutch:
		return NewDutchAuction(), nil
	case SealedBid:
		return NewSealedAuction(), nil
	case EnglishOpen, ReservePrice, BuyNow:
		return NewEnglishAuction(), nil
	default:
		return nil, fmt.Errorf("unknown auction type %q", t)
	}
}

// Rebuild replays a full event history into a fresh aggregate. The first
// event must be AuctionCreated; anything else means the stream is corrupt.
func Rebuild(events []Event) (Aggregate, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: empty history", ErrCorruptStream)
	}
	created, ok := events[0].(*AuctionCreated)
	if !ok {
		return nil, fmt.Errorf("%w: first event is %T, want AuctionCreated", ErrCorruptStream, events[0])
	}
	agg, err := NewAggregate(created.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStream, err)
	}
	for _, e := range events {
		agg.Apply(e)
	}
	return agg, nil
}

// aggregateBase holds the bookkeeping every aggregate shares.
type aggregateBase struct {
	id      AuctionID
	version uint64
	pending []Event
	now     func() time.Time
}

func (b *aggregateBase) ID() AuctionID    { return b.id }
func (b *aggregateBase) Version() uint64  { return b.version }
func (b *aggregateBase) Pending() []Event { return b.pending }
func (b *aggregateBase) ClearPending()    { b.pending = nil }

func (b *aggregateBase) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}

// nextMeta stamps the header for the next event in this stream.
func (b *aggregateBase) nextMeta(auction AuctionID) EventMeta {
	return EventMeta{Auction: auction, ID: uuid.New(), At: b.clock(), Seq: b.version + 1}
}

// EnglishAuction runs the open-outcry family: ENGLISH_OPEN, RESERVE_PRICE
// and BUY_NOW. Bids rank by price-time priority; a strictly greater amount
// wins, an equal amount wins only with a strictly lower sequence number.
type EnglishAuction struct {
	aggregateBase
	item          ItemID
	seller        SellerID
	typ           AuctionType
	reserve       *Money
	buyNow        *Money
	hiddenReserve bool
	reserveMet    bool
	status        AuctionStatus
	start         time.Time
	end           time.Time
	antiSnipe     AntiSnipePolicy
	incrementSpec IncrementSpec
	bids          []Bid
	highest       *Bid
	extensions    int
	winner        *BidderID
}

func NewEnglishAuction() *EnglishAuction {
	return &EnglishAuction{status: StatusCreated}
}

func (a *EnglishAuction) Type() AuctionType     { return a.typ }
func (a *EnglishAuction) Status() AuctionStatus { return a.status }
func (a *EnglishAuction) StartTime() time.Time  { return a.start }
func (a *EnglishAuction) EndTime() time.Time    { return a.end }
func (a *EnglishAuction) Extensions() int       { return a.extensions }
func (a *EnglishAuction) Winner() *BidderID     { return a.winner }

// ReserveSatisfied reports whether the reserve price has been crossed.
func (a *EnglishAuction) ReserveSatisfied() bool { return a.reserveMet }

// CurrentHighest returns a copy of the highest-priority bid, or nil before
// the first accepted bid.
func (a *EnglishAuction) CurrentHighest() *Bid {
	if a.highest == nil {
		return nil
	}
	top := *a.highest
	return &top
}

// Bids returns a copy of all accepted bids in acceptance order.
func (a *EnglishAuction) Bids() []Bid {
	out := make([]Bid, len(a.bids))
	copy(out, a.bids)
	return out
}

func (a *EnglishAuction) record(e Event) {
	a.Apply(e)
	a.pending = append(a.pending, e)
}

func (a *EnglishAuction) Handle(cmd Command) error {
	switch c := cmd.(type) {
	case *CreateAuction:
		return a.create(c)
	case *PlaceBid:
		return a.placeBid(c)
	case *ExtendAuction:
		return a.extend(c)
	case *CloseAuction:
		return a.close()
	case *CommitBid, *RevealBid, *StartRevealPhase:
		return stateErrorf("sealed-bid commands are not valid for auction type %s", a.typ)
	case *ReducePrice:
		return stateErrorf("price reduction is not valid for auction type %s", a.typ)
	default:
		return stateErrorf("unsupported command %T", cmd)
	}
}

func (a *EnglishAuction) create(c *CreateAuction) error {
	if !a.id.IsZero() {
		return stateErrorf("auction %s already created", a.id)
	}
	switch c.Type {
	case EnglishOpen, ReservePrice, BuyNow:
	default:
		return stateErrorf("auction type %s does not belong on the english state machine", c.Type)
	}
	if !c.EndTime.After(c.StartTime) {
		return &ValidationError{Rule: RuleAuctionConfig, Msg: "end time must be after start time"}
	}
	if _, err := c.Increment.Policy(); err != nil {
		return &ValidationError{Rule: RuleAuctionConfig, Msg: err.Error()}
	}
	if c.ReservePrice != nil && c.BuyNowPrice != nil && !c.ReservePrice.SameCurrency(*c.BuyNowPrice) {
		return &ValidationError{Rule: RuleAuctionConfig, Msg: "reserve and buy-now prices must share a currency"}
	}

	meta := EventMeta{Auction: c.AuctionID, ID: uuid.New(), At: a.clock(), Seq: 1}
	a.record(&AuctionCreated{
		EventMeta:     meta,
		Item:          c.Item,
		Seller:        c.Seller,
		Type:          c.Type,
		ReservePrice:  c.ReservePrice,
		BuyNowPrice:   c.BuyNowPrice,
		HiddenReserve: c.HiddenReserve,
		StartTime:     c.StartTime,
		EndTime:       c.EndTime,
		AntiSnipe:     c.AntiSnipe,
		Increment:     c.Increment,
	})
	return nil
}

func (a *EnglishAuction) placeBid(c *PlaceBid) error {
	if a.status != StatusOpen {
		return stateErrorf("auction %s is not open for bidding (status %s)", a.id, a.status)
	}
	if c.ServerTime.Before(a.start) || c.ServerTime.After(a.end) {
		return stateErrorf("auction %s is not active at %s", a.id, c.ServerTime.UTC().Format(time.RFC3339Nano))
	}
	if ref := a.referencePrice(); ref != nil && !c.Amount.SameCurrency(*ref) {
		return &ValidationError{
			Rule: RuleCurrency,
			Msg:  fmt.Sprintf("bid currency %s does not match auction currency %s", c.Amount.Currency, ref.Currency),
		}
	}
	policy, err := a.incrementSpec.Policy()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptStream, err)
	}
	var current *Money
	if a.highest != nil {
		current = &a.highest.Amount
	}
	if verr := ValidateBid(current, a.reserve, policy, c.Bidder, c.Amount); verr != nil {
		return verr
	}

	buyNowHit := a.buyNow != nil && c.Amount.GreaterThanOrEqual(*a.buyNow)

	bidMeta := a.nextMeta(a.id)
	bidMeta.At = c.ServerTime
	a.record(&BidPlaced{EventMeta: bidMeta, Bidder: c.Bidder, Amount: c.Amount, SeqNo: c.SeqNo})

	if !a.reserveMet && a.reserve != nil && c.Amount.GreaterThanOrEqual(*a.reserve) {
		meta := a.nextMeta(a.id)
		meta.At = c.ServerTime
		a.record(&ReserveMet{EventMeta: meta, Bidder: c.Bidder, Amount: c.Amount})
	}

	if buyNowHit {
		winner, amount := c.Bidder, c.Amount
		a.record(&AuctionClosed{EventMeta: a.nextMeta(a.id), Winner: &winner, WinningAmount: &amount})
		return nil
	}

	// Anti-snipe: a bid inside the extension window pushes the end time out,
	// bounded by the policy's extension budget.
	timeToEnd := a.end.Sub(c.ServerTime)
	if timeToEnd >= 0 && timeToEnd <= a.antiSnipe.ExtensionWindow && a.antiSnipe.ShouldExtend(a.extensions) {
		a.record(&AuctionExtended{EventMeta: a.nextMeta(a.id), NewEndTime: a.end.Add(a.antiSnipe.Extension)})
	}
	return nil
}

// referencePrice is the first configured price that pins the auction's
// currency, used to reject mixed-currency bids before any arithmetic.
func (a *EnglishAuction) referencePrice() *Money {
	if a.highest != nil {
		return &a.highest.Amount
	}
	if a.reserve != nil {
		return a.reserve
	}
	return a.buyNow
}

func (a *EnglishAuction) extend(c *ExtendAuction) error {
	if a.status != StatusOpen {
		return stateErrorf("auction %s is not open (status %s)", a.id, a.status)
	}
	if !c.NewEndTime.After(a.end) {
		return stateErrorf("new end time %s is not after current end time %s", c.NewEndTime, a.end)
	}
	a.record(&AuctionExtended{EventMeta: a.nextMeta(a.id), NewEndTime: c.NewEndTime})
	return nil
}

func (a *EnglishAuction) close() error {
	if a.status != StatusOpen {
		return stateErrorf("auction %s is not open (status %s)", a.id, a.status)
	}
	if a.clock().Before(a.end) {
		return stateErrorf("auction %s end time %s has not been reached", a.id, a.end)
	}
	var winner *BidderID
	var amount *Money
	if a.highest != nil {
		w, m := a.highest.Bidder, a.highest.Amount
		winner, amount = &w, &m
	}
	a.record(&AuctionClosed{EventMeta: a.nextMeta(a.id), Winner: winner, WinningAmount: amount})
	return nil
}

func (a *EnglishAuction) Apply(e Event) {
	switch ev := e.(type) {
	case *AuctionCreated:
		a.id = ev.Auction
		a.item = ev.Item
		a.seller = ev.Seller
		a.typ = ev.Type
		a.reserve = ev.ReservePrice
		a.buyNow = ev.BuyNowPrice
		a.hiddenReserve = ev.HiddenReserve
		a.start = ev.StartTime
		a.end = ev.EndTime
		a.antiSnipe = ev.AntiSnipe
		a.incrementSpec = ev.Increment
		a.status = StatusOpen
	case *BidPlaced:
		bid := Bid{Bidder: ev.Bidder, Amount: ev.Amount, PlacedAt: ev.At, SeqNo: ev.SeqNo}
		a.bids = append(a.bids, bid)
		if a.isHigherPriority(bid) {
			top := bid
			a.highest = &top
		}
	case *ReserveMet:
		a.reserveMet = true
	case *AuctionExtended:
		a.end = ev.NewEndTime
		a.extensions++
	case *AuctionClosed:
		a.status = StatusClosed
		a.winner = ev.Winner
	case *BidCommitted, *AuctionRevealPhaseStarted, *BidRevealed, *PriceReduced:
		// never emitted on this state machine
	}
	a.version++
}

// isHigherPriority implements price-time priority: strictly greater amount
// wins; an equal amount wins only with a strictly lower sequence number.
func (a *EnglishAuction) isHigherPriority(bid Bid) bool {
	if a.highest == nil {
		return true
	}
	if bid.Amount.GreaterThan(a.highest.Amount) {
		return true
	}
	return bid.Amount.Equal(a.highest.Amount) && bid.SeqNo < a.highest.SeqNo
}
