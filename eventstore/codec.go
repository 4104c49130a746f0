package eventstore

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/gavelworks/gavel/core"
)

// Events are stored as a type tag plus a CBOR payload. CBOR keeps the
// payloads compact and round-trips decimal amounts and UUIDs through their
// binary marshalers without precision loss.

// ErrUnknownEventType means a stored envelope names a type this build does
// not know. The stream cannot be replayed past it.
var ErrUnknownEventType = errors.New("unknown event type")

// Stored type tags. These are part of the persisted format: never renumber
// or reuse one.
const (
	TypeAuctionCreated            = "auction_created"
	TypeBidPlaced                 = "bid_placed"
	TypeReserveMet                = "reserve_met"
	TypeBidCommitted              = "bid_committed"
	TypeAuctionRevealPhaseStarted = "auction_reveal_phase_started"
	TypeBidRevealed               = "bid_revealed"
	TypeAuctionExtended           = "auction_extended"
	TypePriceReduced              = "price_reduced"
	TypeAuctionClosed             = "auction_closed"
)

var encMode cbor.EncMode

func init() {
	// Timestamps are stored as RFC3339 with nanoseconds; the default
	// integer epoch encoding would drop sub-second precision that bid
	// ordering audits rely on.
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("build cbor encode mode: %v", err))
	}
	encMode = em
}

// Encode serializes one event into its stored type tag and payload.
func Encode(e core.Event) (eventType string, payload []byte, err error) {
	switch e.(type) {
	case *core.AuctionCreated:
		eventType = TypeAuctionCreated
	case *core.BidPlaced:
		eventType = TypeBidPlaced
	case *core.ReserveMet:
		eventType = TypeReserveMet
	case *core.BidCommitted:
		eventType = TypeBidCommitted
	case *core.AuctionRevealPhaseStarted:
		eventType = TypeAuctionRevealPhaseStarted
	case *core.BidRevealed:
		eventType = TypeBidRevealed
	case *core.AuctionExtended:
		eventType = TypeAuctionExtended
	case *core.PriceReduced:
		eventType = TypePriceReduced
	case *core.AuctionClosed:
		eventType = TypeAuctionClosed
	default:
		return "", nil, fmt.Errorf("%w: %T", ErrUnknownEventType, e)
	}
	payload, err = encMode.Marshal(e)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return eventType, payload, nil
}

// Decode deserializes one stored envelope back into its concrete event.
func Decode(eventType string, payload []byte) (core.Event, error) {
	var e core.Event
	switch eventType {
	case TypeAuctionCreated:
		e = &core.AuctionCreated{}
	case TypeBidPlaced:
		e = &core.BidPlaced{}
	case TypeReserveMet:
		e = &core.ReserveMet{}
	case TypeBidCommitted:
		e = &core.BidCommitted{}
	case TypeAuctionRevealPhaseStarted:
		e = &core.AuctionRevealPhaseStarted{}
	case TypeBidRevealed:
		e = &core.BidRevealed{}
	case TypeAuctionExtended:
		e = &core.AuctionExtended{}
	case TypePriceReduced:
		e = &core.PriceReduced{}
	case TypeAuctionClosed:
		e = &core.AuctionClosed{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	if err := cbor.Unmarshal(payload, e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	return e, nil
}
