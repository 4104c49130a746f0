package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gavelworks/gavel/core"
)

type moneyJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (m moneyJSON) parse() (core.Money, error) {
	return core.ParseMoney(m.Amount, m.Currency)
}

func moneyOut(m core.Money) moneyJSON {
	return moneyJSON{Amount: m.Amount.String(), Currency: m.Currency}
}

func moneyPtrOut(m *core.Money) *moneyJSON {
	if m == nil {
		return nil
	}
	out := moneyOut(*m)
	return &out
}

type antiSnipeJSON struct {
	ExtensionWindow string `json:"extension_window"`
	Extension       string `json:"extension"`
	MaxExtensions   int    `json:"max_extensions"`
}

type tierJSON struct {
	From moneyJSON `json:"from"`
	Step moneyJSON `json:"step"`
}

type incrementJSON struct {
	Kind  string     `json:"kind"`
	Step  *moneyJSON `json:"step,omitempty"`
	Tiers []tierJSON `json:"tiers,omitempty"`
}

type dutchJSON struct {
	MinimumPrice      moneyJSON `json:"minimum_price"`
	DecrementAmount   moneyJSON `json:"decrement_amount"`
	DecrementInterval string    `json:"decrement_interval"`
}

type createAuctionRequest struct {
	ItemID        string         `json:"item_id"`
	SellerID      string         `json:"seller_id"`
	Type          string         `json:"type"`
	ReservePrice  *moneyJSON     `json:"reserve_price"`
	BuyNowPrice   *moneyJSON     `json:"buy_now_price"`
	StartingPrice *moneyJSON     `json:"starting_price"`
	HiddenReserve bool           `json:"hidden_reserve"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       time.Time      `json:"end_time"`
	AntiSnipe     *antiSnipeJSON `json:"anti_snipe"`
	Increment     *incrementJSON `json:"increment"`
	Dutch         *dutchJSON     `json:"dutch"`
	RevealWindow  string         `json:"reveal_window"`
}

func (s *Server) createAuction(c *gin.Context) {
	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	auctionType := core.AuctionType(req.Type)
	if !auctionType.Valid() {
		badRequest(c, "unknown auction type "+req.Type)
		return
	}
	seller, err := core.ParseSellerID(req.SellerID)
	if err != nil {
		badRequest(c, "invalid seller_id")
		return
	}
	item := core.NewItemID()
	if req.ItemID != "" {
		if item, err = core.ParseItemID(req.ItemID); err != nil {
			badRequest(c, "invalid item_id")
			return
		}
	}

	cmd := &core.CreateAuction{
		CommandMeta:   core.CommandMeta{AuctionID: core.NewAuctionID()},
		Item:          item,
		Seller:        seller,
		Type:          auctionType,
		HiddenReserve: req.HiddenReserve,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		RevealWindow:  s.defaultRevealWindow,
	}
	if cmd.ReservePrice, err = parseOptionalMoney(req.ReservePrice); err != nil {
		badRequest(c, "invalid reserve_price: "+err.Error())
		return
	}
	if cmd.BuyNowPrice, err = parseOptionalMoney(req.BuyNowPrice); err != nil {
		badRequest(c, "invalid buy_now_price: "+err.Error())
		return
	}
	if cmd.StartingPrice, err = parseOptionalMoney(req.StartingPrice); err != nil {
		badRequest(c, "invalid starting_price: "+err.Error())
		return
	}
	if req.AntiSnipe != nil {
		if cmd.AntiSnipe, err = parseAntiSnipe(*req.AntiSnipe); err != nil {
			badRequest(c, "invalid anti_snipe: "+err.Error())
			return
		}
	}
	switch auctionType {
	case core.EnglishOpen, core.ReservePrice, core.BuyNow:
		if req.Increment == nil {
			badRequest(c, "increment is required for "+req.Type+" auctions")
			return
		}
	}
	if req.Increment != nil {
		if cmd.Increment, err = parseIncrement(*req.Increment); err != nil {
			badRequest(c, "invalid increment: "+err.Error())
			return
		}
	}
	if req.Dutch != nil {
		if cmd.Dutch, err = parseDutch(*req.Dutch); err != nil {
			badRequest(c, "invalid dutch rules: "+err.Error())
			return
		}
	}
	if req.RevealWindow != "" {
		if cmd.RevealWindow, err = time.ParseDuration(req.RevealWindow); err != nil {
			badRequest(c, "invalid reveal_window: "+err.Error())
			return
		}
	}

	if _, err := s.runner.Execute(c.Request.Context(), cmd); err != nil {
		s.fail(c, err)
		return
	}
	s.respondWithAuction(c, http.StatusCreated, cmd.AuctionID)
}

type placeBidRequest struct {
	BidderID string    `json:"bidder_id"`
	Amount   moneyJSON `json:"amount"`
}

func (s *Server) placeBid(c *gin.Context) {
	auction, ok := s.auctionID(c)
	if !ok {
		return
	}
	var req placeBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	bidder, err := core.ParseBidderID(req.BidderID)
	if err != nil {
		badRequest(c, "invalid bidder_id")
		return
	}
	amount, err := req.Amount.parse()
	if err != nil {
		badRequest(c, "invalid amount: "+err.Error())
		return
	}
	seqNo, err := s.seq.Next(c.Request.Context(), auction)
	if err != nil {
		s.fail(c, err)
		return
	}

	cmd := &core.PlaceBid{
		CommandMeta: core.CommandMeta{AuctionID: auction},
		Bidder:      bidder,
		Amount:      amount,
		ServerTime:  s.now(),
		SeqNo:       seqNo,
	}
	if _, err := s.runner.Execute(c.Request.Context(), cmd); err != nil {
		s.fail(c, err)
		return
	}
	s.respondWithAuction(c, http.StatusOK, auction)
}

type commitBidRequest struct {
	BidderID     string `json:"bidder_id"`
	Hash         string `json:"hash"`
	SaltEnvelope string `json:"salt_envelope"`
}

func (s *Server) commitBid(c *gin.Context) {
	auction, ok := s.auctionID(c)
	if !ok {
		return
	}
	var req commitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	bidder, err := core.ParseBidderID(req.BidderID)
	if err != nil {
		badRequest(c, "invalid bidder_id")
		return
	}
	seqNo, err := s.seq.Next(c.Request.Context(), auction)
	if err != nil {
		s.fail(c, err)
		return
	}

	cmd := &core.CommitBid{
		CommandMeta:  core.CommandMeta{AuctionID: auction},
		Bidder:       bidder,
		Hash:         req.Hash,
		SaltEnvelope: req.SaltEnvelope,
		ServerTime:   s.now(),
		SeqNo:        seqNo,
	}
	if _, err := s.runner.Execute(c.Request.Context(), cmd); err != nil {
		s.fail(c, err)
		return
	}
	s.respondWithAuction(c, http.StatusOK, auction)
}

type revealBidRequest struct {
	BidderID string    `json:"bidder_id"`
	Amount   moneyJSON `json:"amount"`
	Salt     string    `json:"salt"`
}

func (s *Server) revealBid(c *gin.Context) {
	auction, ok := s.auctionID(c)
	if !ok {
		return
	}
	var req revealBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	bidder, err := core.ParseBidderID(req.BidderID)
	if err != nil {
		badRequest(c, "invalid bidder_id")
		return
	}
	amount, err := req.Amount.parse()
	if err != nil {
		badRequest(c, "invalid amount: "+err.Error())
		return
	}

	cmd := &core.RevealBid{
		CommandMeta: core.CommandMeta{AuctionID: auction},
		Bidder:      bidder,
		Amount:      amount,
		Salt:        req.Salt,
	}
	if _, err := s.runner.Execute(c.Request.Context(), cmd); err != nil {
		s.fail(c, err)
		return
	}
	s.respondWithAuction(c, http.StatusOK, auction)
}

type extendAuctionRequest struct {
	NewEndTime time.Time `json:"new_end_time"`
}

func (s *Server) extendAuction(c *gin.Context) {
	auction, ok := s.auctionID(c)
	if !ok {
		return
	}
	var req extendAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	cmd := &core.ExtendAuction{
		CommandMeta: core.CommandMeta{AuctionID: auction},
		NewEndTime:  req.NewEndTime,
	}
	if _, err := s.runner.Execute(c.Request.Context(), cmd); err != nil {
		s.fail(c, err)
		return
	}
	s.respondWithAuction(c, http.StatusOK, auction)
}

func (s *Server) getAuction(c *gin.Context) {
	auction, ok := s.auctionID(c)
	if !ok {
		return
	}
	s.respondWithAuction(c, http.StatusOK, auction)
}

func parseOptionalMoney(m *moneyJSON) (*core.Money, error) {
	if m == nil {
		return nil, nil
	}
	parsed, err := m.parse()
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseAntiSnipe(in antiSnipeJSON) (core.AntiSnipePolicy, error) {
	window, err := time.ParseDuration(in.ExtensionWindow)
	if err != nil {
		return core.AntiSnipePolicy{}, err
	}
	extension, err := time.ParseDuration(in.Extension)
	if err != nil {
		return core.AntiSnipePolicy{}, err
	}
	return core.AntiSnipePolicy{
		ExtensionWindow: window,
		Extension:       extension,
		MaxExtensions:   in.MaxExtensions,
	}, nil
}

func parseIncrement(in incrementJSON) (core.IncrementSpec, error) {
	spec := core.IncrementSpec{Kind: core.IncrementKind(in.Kind)}
	if in.Step != nil {
		step, err := in.Step.parse()
		if err != nil {
			return core.IncrementSpec{}, err
		}
		spec.Step = step
	}
	for _, tier := range in.Tiers {
		from, err := tier.From.parse()
		if err != nil {
			return core.IncrementSpec{}, err
		}
		step, err := tier.Step.parse()
		if err != nil {
			return core.IncrementSpec{}, err
		}
		spec.Tiers = append(spec.Tiers, core.IncrementTier{From: from, Step: step})
	}
	// Surface bad specs here as a 400 instead of letting the aggregate
	// reject them later.
	if _, err := spec.Policy(); err != nil {
		return core.IncrementSpec{}, err
	}
	return spec, nil
}

func parseDutch(in dutchJSON) (*core.DutchRules, error) {
	minimum, err := in.MinimumPrice.parse()
	if err != nil {
		return nil, err
	}
	decrement, err := in.DecrementAmount.parse()
	if err != nil {
		return nil, err
	}
	interval, err := time.ParseDuration(in.DecrementInterval)
	if err != nil {
		return nil, err
	}
	return &core.DutchRules{
		MinimumPrice:      minimum,
		DecrementAmount:   decrement,
		DecrementInterval: interval,
	}, nil
}
