package core

import "time"

// Command is the closed set of operations the execution pipeline accepts.
// Each is a plain data record; the result of executing one is either a batch
// of new events or a typed rejection.
type Command interface {
	Auction() AuctionID
	isCommand()
}

// CommandMeta carries the target aggregate id.
type CommandMeta struct {
	AuctionID AuctionID `json:"auction_id"`
}

func (m CommandMeta) Auction() AuctionID { return m.AuctionID }
func (CommandMeta) isCommand()           {}

// CreateAuction opens a new auction stream. The caller allocates the
// AuctionID up front so the pipeline can key its lock before any state
// exists.
type CreateAuction struct {
	CommandMeta
	Item          ItemID
	Seller        SellerID
	Type          AuctionType
	ReservePrice  *Money
	BuyNowPrice   *Money
	StartingPrice *Money
	HiddenReserve bool
	StartTime     time.Time
	EndTime       time.Time
	AntiSnipe     AntiSnipePolicy
	Increment     IncrementSpec
	Dutch         *DutchRules
	RevealWindow  time.Duration
}

// PlaceBid submits a bid. ServerTime and SeqNo are assigned by the server at
// command-creation time; client-submitted timestamps are never trusted.
type PlaceBid struct {
	CommandMeta
	Bidder     BidderID
	Amount     Money
	ServerTime time.Time
	SeqNo      uint64
}

// CommitBid registers a sealed-bid commitment.
type CommitBid struct {
	CommandMeta
	Bidder       BidderID
	Hash         string
	SaltEnvelope string
	ServerTime   time.Time
	SeqNo        uint64
}

// RevealBid discloses a previously committed amount and salt.
type RevealBid struct {
	CommandMeta
	Bidder BidderID
	Amount Money
	Salt   string
}

// StartRevealPhase moves a sealed auction from bidding to reveal. Issued by
// the scheduler once the bidding deadline has passed.
type StartRevealPhase struct {
	CommandMeta
}

// ExtendAuction pushes the end time to NewEndTime.
type ExtendAuction struct {
	CommandMeta
	NewEndTime time.Time
}

// ReducePrice applies one Dutch price decay tick.
type ReducePrice struct {
	CommandMeta
}

// CloseAuction finalizes the auction and determines the winner. Issued by
// the scheduler at the (possibly extended) end time.
type CloseAuction struct {
	CommandMeta
}
