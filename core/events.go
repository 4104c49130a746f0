package core

import (
	"time"

	"github.com/google/uuid"
)

// Event is the closed set of domain events an auction stream can contain.
// Every event carries the aggregate id, a globally unique event id, a
// timestamp and a per-aggregate monotonically increasing sequence number.
//
// The set is sealed inside this package so dispatch sites can type-switch
// over pointer types exhaustively; Decode in the eventstore package and the
// aggregates' Apply methods enumerate every variant.
type Event interface {
	AggregateID() AuctionID
	EventID() uuid.UUID
	OccurredAt() time.Time
	Sequence() uint64
	isEvent()
}

// EventMeta is the header shared by all events.
type EventMeta struct {
	Auction AuctionID `json:"auction_id"`
	ID      uuid.UUID `json:"event_id"`
	At      time.Time `json:"at"`
	Seq     uint64    `json:"seq"`
}

func (m EventMeta) AggregateID() AuctionID { return m.Auction }
func (m EventMeta) EventID() uuid.UUID     { return m.ID }
func (m EventMeta) OccurredAt() time.Time  { return m.At }
func (m EventMeta) Sequence() uint64       { return m.Seq }
func (EventMeta) isEvent()                 {}

// AuctionCreated initializes a stream. It carries everything replay needs to
// reconstruct the aggregate's configuration, including the serialized
// increment policy and, for Dutch auctions, the decay rules.
type AuctionCreated struct {
	EventMeta
	Item          ItemID          `json:"item_id"`
	Seller        SellerID        `json:"seller_id"`
	Type          AuctionType     `json:"auction_type"`
	ReservePrice  *Money          `json:"reserve_price,omitempty"`
	BuyNowPrice   *Money          `json:"buy_now_price,omitempty"`
	StartingPrice *Money          `json:"starting_price,omitempty"`
	HiddenReserve bool            `json:"hidden_reserve,omitempty"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
	AntiSnipe     AntiSnipePolicy `json:"anti_snipe"`
	Increment     IncrementSpec   `json:"increment"`
	Dutch         *DutchRules     `json:"dutch,omitempty"`
	RevealWindow  time.Duration   `json:"reveal_window,omitempty"`
}

// BidPlaced records an accepted bid. The event timestamp is the
// server-assigned bid time; SeqNo is the server-assigned arrival order used
// for price-time priority tie-breaks.
type BidPlaced struct {
	EventMeta
	Bidder BidderID `json:"bidder_id"`
	Amount Money    `json:"amount"`
	SeqNo  uint64   `json:"seq_no"`
}

// ReserveMet marks the first time the reserve price was reached. Emitted at
// most once per auction.
type ReserveMet struct {
	EventMeta
	Bidder BidderID `json:"bidder_id"`
	Amount Money    `json:"amount"`
}

// BidCommitted stores a sealed-bid commitment hash without the amount.
type BidCommitted struct {
	EventMeta
	Bidder       BidderID `json:"bidder_id"`
	Hash         string   `json:"hash"`
	SaltEnvelope string   `json:"salt_envelope,omitempty"`
	CommitSeqNo  uint64   `json:"commit_seq_no"`
}

// AuctionRevealPhaseStarted transitions a sealed auction into its reveal
// phase and fixes the reveal deadline.
type AuctionRevealPhaseStarted struct {
	EventMeta
	RevealEndTime time.Time `json:"reveal_end_time"`
}

// BidRevealed records a reveal attempt. Invalid reveals are kept for audit
// but never participate in winner determination.
type BidRevealed struct {
	EventMeta
	Bidder BidderID `json:"bidder_id"`
	Amount Money    `json:"amount"`
	Salt   string   `json:"salt"`
	Valid  bool     `json:"valid"`
}

// AuctionExtended pushes the end time outward. End times only ever grow.
type AuctionExtended struct {
	EventMeta
	NewEndTime time.Time `json:"new_end_time"`
}

// PriceReduced lowers a Dutch auction's asking price.
type PriceReduced struct {
	EventMeta
	NewPrice Money `json:"new_price"`
}

// AuctionClosed terminates the auction. Winner is nil when no qualifying bid
// exists. Exactly one AuctionClosed is ever appended per stream.
type AuctionClosed struct {
	EventMeta
	Winner        *BidderID `json:"winner_id,omitempty"`
	WinningAmount *Money    `json:"winning_amount,omitempty"`
}
