package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gavelworks/gavel/core"
)

type bidView struct {
	BidderID string    `json:"bidder_id"`
	Amount   moneyJSON `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
	SeqNo    uint64    `json:"seq_no"`
}

func bidOut(b *core.Bid) *bidView {
	if b == nil {
		return nil
	}
	return &bidView{
		BidderID: b.Bidder.String(),
		Amount:   moneyOut(b.Amount),
		PlacedAt: b.PlacedAt,
		SeqNo:    b.SeqNo,
	}
}

type auctionView struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Version   uint64    `json:"version"`

	// English family.
	CurrentHighest *bidView `json:"current_highest,omitempty"`
	ReserveMet     *bool    `json:"reserve_met,omitempty"`
	Extensions     *int     `json:"extensions,omitempty"`

	// Sealed bid.
	Commitments   *int       `json:"commitments,omitempty"`
	RevealEndTime *time.Time `json:"reveal_end_time,omitempty"`

	// Dutch.
	CurrentPrice *moneyJSON `json:"current_price,omitempty"`

	WinnerID *string `json:"winner_id,omitempty"`
}

func (s *Server) respondWithAuction(c *gin.Context, status int, auction core.AuctionID) {
	history, err := s.store.Load(c.Request.Context(), auction)
	if err != nil {
		s.fail(c, err)
		return
	}
	if len(history) == 0 {
		c.JSON(404, gin.H{"error": "auction not found"})
		return
	}
	agg, err := core.Rebuild(history)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(status, viewOf(agg))
}

func viewOf(agg core.Aggregate) auctionView {
	view := auctionView{
		ID:      agg.ID().String(),
		Type:    string(agg.Type()),
		Status:  string(agg.Status()),
		EndTime: agg.EndTime(),
		Version: agg.Version(),
	}

	switch a := agg.(type) {
	case *core.EnglishAuction:
		view.StartTime = a.StartTime()
		view.CurrentHighest = bidOut(a.CurrentHighest())
		met := a.ReserveSatisfied()
		view.ReserveMet = &met
		ext := a.Extensions()
		view.Extensions = &ext
		view.WinnerID = bidderOut(a.Winner())
	case *core.SealedAuction:
		view.StartTime = a.StartTime()
		n := len(a.Commitments())
		view.Commitments = &n
		if !a.RevealEndTime().IsZero() {
			end := a.RevealEndTime()
			view.RevealEndTime = &end
		}
		view.WinnerID = bidderOut(a.Winner())
	case *core.DutchAuction:
		view.StartTime = a.StartTime()
		price := moneyOut(a.CurrentPrice())
		view.CurrentPrice = &price
		view.WinnerID = bidderOut(a.Winner())
	}
	return view
}

func bidderOut(id *core.BidderID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
