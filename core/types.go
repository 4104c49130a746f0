package core

import (
	"fmt"
	"time"
)

// AuctionType selects the state machine an auction runs on. Fixed at
// creation, immutable afterwards.
type AuctionType string

const (
	EnglishOpen  AuctionType = "ENGLISH_OPEN"
	Dutch        AuctionType = "DUTCH"
	SealedBid    AuctionType = "SEALED_BID"
	ReservePrice AuctionType = "RESERVE_PRICE"
	BuyNow       AuctionType = "BUY_NOW"
)

// Valid reports whether t is one of the known auction types.
func (t AuctionType) Valid() bool {
	switch t {
	case EnglishOpen, Dutch, SealedBid, ReservePrice, BuyNow:
		return true
	}
	return false
}

type AuctionStatus string

const (
	StatusCreated       AuctionStatus = "CREATED"
	StatusOpen          AuctionStatus = "OPEN"
	StatusSealedBidding AuctionStatus = "SEALED_BIDDING"
	StatusRevealPhase   AuctionStatus = "REVEAL_PHASE"
	StatusClosed        AuctionStatus = "CLOSED"
)

// AntiSnipePolicy governs end-time extensions for bids landing close to the
// deadline. MaxExtensions < 0 means unlimited extensions.
type AntiSnipePolicy struct {
	ExtensionWindow time.Duration `json:"extension_window"`
	Extension       time.Duration `json:"extension"`
	MaxExtensions   int           `json:"max_extensions"`
}

// NoAntiSnipe disables extensions entirely.
func NoAntiSnipe() AntiSnipePolicy { return AntiSnipePolicy{} }

// Enabled reports whether the policy can ever extend an auction.
func (p AntiSnipePolicy) Enabled() bool {
	return p.ExtensionWindow > 0 && p.Extension > 0 && p.MaxExtensions != 0
}

// ShouldExtend reports whether another extension is permitted given the
// number already applied.
func (p AntiSnipePolicy) ShouldExtend(currentExtensions int) bool {
	if !p.Enabled() {
		return false
	}
	return p.MaxExtensions < 0 || currentExtensions < p.MaxExtensions
}

// BidIncrement maps the current highest bid to the smallest acceptable next
// bid. A tie with the current highest is never acceptable.
type BidIncrement interface {
	MinimumNext(currentHighest Money) Money
}

// FixedIncrement requires every bid to beat the highest by a constant step.
type FixedIncrement struct {
	Step Money
}

func (f FixedIncrement) MinimumNext(currentHighest Money) Money {
	return currentHighest.Add(f.Step)
}

// IncrementTier is one band of a tiered increment ladder: once the current
// highest bid reaches From, the next bid must beat it by Step.
type IncrementTier struct {
	From Money `json:"from"`
	Step Money `json:"step"`
}

// TieredIncrement picks the step from the highest tier whose From the
// current highest bid has reached. Tiers must be sorted by ascending From.
type TieredIncrement struct {
	Tiers []IncrementTier
}

func (t TieredIncrement) MinimumNext(currentHighest Money) Money {
	step := NewMoney(currentHighest.Amount.Sub(currentHighest.Amount), currentHighest.Currency)
	for _, tier := range t.Tiers {
		if currentHighest.GreaterThanOrEqual(tier.From) {
			step = tier.Step
		}
	}
	return currentHighest.Add(step)
}

// IncrementKind discriminates serialized increment policies.
type IncrementKind string

const (
	IncrementFixed  IncrementKind = "fixed"
	IncrementTiered IncrementKind = "tiered"
)

// IncrementSpec is the wire form of a BidIncrement, carried on the
// AuctionCreated event so replay reconstructs the same policy.
type IncrementSpec struct {
	Kind  IncrementKind   `json:"kind"`
	Step  Money           `json:"step,omitempty"`
	Tiers []IncrementTier `json:"tiers,omitempty"`
}

// FixedIncrementSpec builds the spec for a constant step.
func FixedIncrementSpec(step Money) IncrementSpec {
	return IncrementSpec{Kind: IncrementFixed, Step: step}
}

// TieredIncrementSpec builds the spec for a price-banded ladder.
func TieredIncrementSpec(tiers []IncrementTier) IncrementSpec {
	return IncrementSpec{Kind: IncrementTiered, Tiers: tiers}
}

// Policy materializes the runtime increment policy.
func (s IncrementSpec) Policy() (BidIncrement, error) {
	switch s.Kind {
	case IncrementFixed:
		if !s.Step.IsPositive() {
			return nil, fmt.Errorf("fixed increment step must be positive, got %s", s.Step)
		}
		return FixedIncrement{Step: s.Step}, nil
	case IncrementTiered:
		if len(s.Tiers) == 0 {
			return nil, fmt.Errorf("tiered increment needs at least one tier")
		}
		for _, tier := range s.Tiers {
			if !tier.Step.IsPositive() {
				return nil, fmt.Errorf("tier step must be positive, got %s", tier.Step)
			}
		}
		return TieredIncrement{Tiers: s.Tiers}, nil
	default:
		return nil, fmt.Errorf("unknown increment kind %q", s.Kind)
	}
}

// DutchRules drives downward price movement of a Dutch auction. Decrement
// and interval are explicit configuration, never derived from other prices.
type DutchRules struct {
	MinimumPrice      Money         `json:"minimum_price"`
	DecrementAmount   Money         `json:"decrement_amount"`
	DecrementInterval time.Duration `json:"decrement_interval"`
}

// Validate checks the rules against a starting price.
func (r DutchRules) Validate(startingPrice Money) error {
	if !r.DecrementAmount.IsPositive() {
		return fmt.Errorf("decrement amount must be positive, got %s", r.DecrementAmount)
	}
	if r.DecrementInterval <= 0 {
		return fmt.Errorf("decrement interval must be positive, got %s", r.DecrementInterval)
	}
	if !r.MinimumPrice.SameCurrency(startingPrice) {
		return fmt.Errorf("minimum price currency %s does not match starting price %s",
			r.MinimumPrice.Currency, startingPrice.Currency)
	}
	if r.MinimumPrice.GreaterThan(startingPrice) {
		return fmt.Errorf("minimum price %s exceeds starting price %s", r.MinimumPrice, startingPrice)
	}
	return nil
}

// Bid is an accepted bid. PlacedAt and SeqNo are assigned by the server when
// the command is created and are never taken from the client.
type Bid struct {
	Bidder   BidderID  `json:"bidder_id"`
	Amount   Money     `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
	SeqNo    uint64    `json:"seq_no"`
}

// SealedBidCommit binds a bidder to a hidden amount. SaltEnvelope is the
// opaque ciphertext handed over at commit time; verification happens only at
// reveal, against the plaintext salt the bidder discloses then.
type SealedBidCommit struct {
	Bidder       BidderID  `json:"bidder_id"`
	Hash         string    `json:"hash"`
	SaltEnvelope string    `json:"salt_envelope,omitempty"`
	CommittedAt  time.Time `json:"committed_at"`
	SeqNo        uint64    `json:"seq_no"`
}
