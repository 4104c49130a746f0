package core

import "github.com/google/uuid"

// Opaque UUID-backed identifiers. The embedded uuid.UUID provides String,
// text and binary marshalling, so the types serialize identically in JSON
// and in the event store's binary envelopes.

type AuctionID struct{ uuid.UUID }

type BidderID struct{ uuid.UUID }

type SellerID struct{ uuid.UUID }

type ItemID struct{ uuid.UUID }

func NewAuctionID() AuctionID { return AuctionID{uuid.New()} }
func NewBidderID() BidderID   { return BidderID{uuid.New()} }
func NewSellerID() SellerID   { return SellerID{uuid.New()} }
func NewItemID() ItemID       { return ItemID{uuid.New()} }

func ParseAuctionID(s string) (AuctionID, error) {
	u, err := uuid.Parse(s)
	return AuctionID{u}, err
}

func ParseBidderID(s string) (BidderID, error) {
	u, err := uuid.Parse(s)
	return BidderID{u}, err
}

func ParseSellerID(s string) (SellerID, error) {
	u, err := uuid.Parse(s)
	return SellerID{u}, err
}

func ParseItemID(s string) (ItemID, error) {
	u, err := uuid.Parse(s)
	return ItemID{u}, err
}

// IsZero reports whether the id is the all-zero UUID.
func (id AuctionID) IsZero() bool { return id.UUID == uuid.Nil }
func (id BidderID) IsZero() bool  { return id.UUID == uuid.Nil }
func (id SellerID) IsZero() bool  { return id.UUID == uuid.Nil }
func (id ItemID) IsZero() bool    { return id.UUID == uuid.Nil }
