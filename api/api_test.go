package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/gavelworks/gavel/core"
	"github.com/gavelworks/gavel/eventstore"
	"github.com/gavelworks/gavel/pipeline"
)

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := eventstore.NewMemoryStore()
	exec := pipeline.NewExecutor(store, pipeline.NewMemoryLocker(time.Minute), pipeline.NewMemoryBus(), nil, pipeline.Config{
		RetryInitialBackoff: time.Millisecond,
	})
	srv := NewServer(exec, store, pipeline.NewMemorySequencer(), nil, time.Hour)
	return srv.Router()
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		assert.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func usd(amount string) map[string]any {
	return map[string]any{"amount": amount, "currency": "USD"}
}

func createEnglishAuction(t *testing.T, router *gin.Engine, extra map[string]any) string {
	t.Helper()
	body := map[string]any{
		"seller_id":  core.NewSellerID().String(),
		"type":       "ENGLISH_OPEN",
		"start_time": time.Now().Add(-time.Minute).Format(time.RFC3339Nano),
		"end_time":   time.Now().Add(time.Hour).Format(time.RFC3339Nano),
		"increment":  map[string]any{"kind": "fixed", "step": usd("10")},
	}
	for k, v := range extra {
		body[k] = v
	}
	rec, resp := doJSON(t, router, http.MethodPost, "/v1/auctions", body)
	assert.Equal(t, http.StatusCreated, rec.Code)
	id, _ := resp["id"].(string)
	assert.NotEqual(t, "", id)
	return id
}

func TestAPI_CreateAndGetAuction(t *testing.T) {
	router := newTestServer(t)
	id := createEnglishAuction(t, router, nil)

	rec, resp := doJSON(t, router, http.MethodGet, "/v1/auctions/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	check.Equal(t, "ENGLISH_OPEN", resp["type"])
	check.Equal(t, "OPEN", resp["status"])
	check.Equal[any](t, float64(1), resp["version"])
}

func TestAPI_CreateRejectsUnknownType(t *testing.T) {
	router := newTestServer(t)
	rec, _ := doJSON(t, router, http.MethodPost, "/v1/auctions", map[string]any{
		"seller_id": core.NewSellerID().String(),
		"type":      "VICKREY",
	})
	check.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_CreateRequiresIncrementForEnglish(t *testing.T) {
	router := newTestServer(t)
	rec, resp := doJSON(t, router, http.MethodPost, "/v1/auctions", map[string]any{
		"seller_id":  core.NewSellerID().String(),
		"type":       "ENGLISH_OPEN",
		"start_time": time.Now().Add(-time.Minute).Format(time.RFC3339Nano),
		"end_time":   time.Now().Add(time.Hour).Format(time.RFC3339Nano),
	})
	check.Equal(t, http.StatusBadRequest, rec.Code)
	msg, _ := resp["error"].(string)
	check.Equal(t, "increment is required for ENGLISH_OPEN auctions", msg)
}

func TestAPI_PlaceBidFlow(t *testing.T) {
	router := newTestServer(t)
	id := createEnglishAuction(t, router, nil)
	bidder := core.NewBidderID().String()

	rec, resp := doJSON(t, router, http.MethodPost, "/v1/auctions/"+id+"/bids", map[string]any{
		"bidder_id": bidder,
		"amount":    usd("100"),
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	highest := resp["current_highest"].(map[string]any)
	check.Equal[any](t, bidder, highest["bidder_id"])
	check.Equal[any](t, float64(1), highest["seq_no"])

	// Too small an increase: 422 naming the rule.
	rec, resp = doJSON(t, router, http.MethodPost, "/v1/auctions/"+id+"/bids", map[string]any{
		"bidder_id": core.NewBidderID().String(),
		"amount":    usd("105"),
	})
	check.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	check.Equal(t, "below_minimum_increment", resp["rule"])
}

func TestAPI_BidOnUnknownAuction(t *testing.T) {
	router := newTestServer(t)
	rec, _ := doJSON(t, router, http.MethodPost, "/v1/auctions/"+core.NewAuctionID().String()+"/bids", map[string]any{
		"bidder_id": core.NewBidderID().String(),
		"amount":    usd("100"),
	})
	check.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, router, http.MethodGet, "/v1/auctions/not-a-uuid", nil)
	check.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_SealedCommitFlow(t *testing.T) {
	router := newTestServer(t)
	body := map[string]any{
		"seller_id":     core.NewSellerID().String(),
		"type":          "SEALED_BID",
		"start_time":    time.Now().Add(-time.Minute).Format(time.RFC3339Nano),
		"end_time":      time.Now().Add(time.Hour).Format(time.RFC3339Nano),
		"reveal_window": "30m",
	}
	rec, resp := doJSON(t, router, http.MethodPost, "/v1/auctions", body)
	assert.Equal(t, http.StatusCreated, rec.Code)
	check.Equal(t, "SEALED_BIDDING", resp["status"])
	id := resp["id"].(string)

	bidder := core.NewBidderID().String()
	amount, err := core.ParseMoney("50", "USD")
	assert.NoError(t, err)
	commit := map[string]any{
		"bidder_id": bidder,
		"hash":      core.HashBid(amount, "salt1"),
	}
	rec, resp = doJSON(t, router, http.MethodPost, "/v1/auctions/"+id+"/commits", commit)
	assert.Equal(t, http.StatusOK, rec.Code)
	check.Equal[any](t, float64(1), resp["commitments"])

	// A second commitment from the same bidder conflicts.
	rec, _ = doJSON(t, router, http.MethodPost, "/v1/auctions/"+id+"/commits", commit)
	check.Equal(t, http.StatusConflict, rec.Code)

	// Reveals are not accepted while bidding is open.
	rec, _ = doJSON(t, router, http.MethodPost, "/v1/auctions/"+id+"/reveals", map[string]any{
		"bidder_id": bidder,
		"amount":    usd("50"),
		"salt":      "salt1",
	})
	check.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_DutchBidMustMatchAskingPrice(t *testing.T) {
	router := newTestServer(t)
	body := map[string]any{
		"seller_id":      core.NewSellerID().String(),
		"type":           "DUTCH",
		"start_time":     time.Now().Add(-time.Minute).Format(time.RFC3339Nano),
		"end_time":       time.Now().Add(time.Hour).Format(time.RFC3339Nano),
		"starting_price": usd("100"),
		"dutch": map[string]any{
			"minimum_price":      usd("20"),
			"decrement_amount":   usd("10"),
			"decrement_interval": "1m",
		},
	}
	rec, resp := doJSON(t, router, http.MethodPost, "/v1/auctions", body)
	assert.Equal(t, http.StatusCreated, rec.Code)
	id := resp["id"].(string)
	price := resp["current_price"].(map[string]any)
	check.Equal(t, "100", price["amount"])

	rec, resp = doJSON(t, router, http.MethodPost, "/v1/auctions/"+id+"/bids", map[string]any{
		"bidder_id": core.NewBidderID().String(),
		"amount":    usd("90"),
	})
	check.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	check.Equal(t, "amount_not_current_price", resp["rule"])

	// The asking price itself wins and closes.
	rec, resp = doJSON(t, router, http.MethodPost, "/v1/auctions/"+id+"/bids", map[string]any{
		"bidder_id": core.NewBidderID().String(),
		"amount":    usd("100"),
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	check.Equal(t, "CLOSED", resp["status"])
	check.NotEqual(t, nil, resp["winner_id"])
}

func TestAPI_ExtendAuction(t *testing.T) {
	router := newTestServer(t)
	id := createEnglishAuction(t, router, nil)

	newEnd := time.Now().Add(3 * time.Hour).UTC()
	rec, resp := doJSON(t, router, http.MethodPost, fmt.Sprintf("/v1/auctions/%s/extend", id), map[string]any{
		"new_end_time": newEnd.Format(time.RFC3339Nano),
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	gotEnd, err := time.Parse(time.RFC3339Nano, resp["end_time"].(string))
	assert.NoError(t, err)
	check.True(t, gotEnd.Equal(newEnd))

	// Shrinking the end time conflicts.
	rec, _ = doJSON(t, router, http.MethodPost, fmt.Sprintf("/v1/auctions/%s/extend", id), map[string]any{
		"new_end_time": time.Now().Add(time.Minute).Format(time.RFC3339Nano),
	})
	check.Equal(t, http.StatusConflict, rec.Code)
}
