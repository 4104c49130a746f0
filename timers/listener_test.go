package timers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/gavelworks/gavel/core"
)

// An unstarted wheel arms timers without ever firing them, which keeps
// these tests about job bookkeeping only.
func newTestListener(t *testing.T) (*Listener, *MemoryJobStore) {
	t.Helper()
	w := NewWheel(WheelConfig{Tick: time.Hour, Size: 8}, nil)
	store := NewMemoryJobStore()
	sched := NewScheduler(w, store, newScriptedRunner(nil), nil, SchedulerConfig{})
	return NewListener(sched, nil), store
}

func createdEvent(auction core.AuctionID, typ core.AuctionType) *core.AuctionCreated {
	start := time.Now()
	return &core.AuctionCreated{
		EventMeta: core.EventMeta{Auction: auction, ID: uuid.New(), At: start, Seq: 1},
		Item:      core.NewItemID(),
		Seller:    core.NewSellerID(),
		Type:      typ,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Increment: core.FixedIncrementSpec(core.USD("10")),
	}
}

func TestListener_EnglishCreationArmsClose(t *testing.T) {
	listener, store := newTestListener(t)
	ctx := context.Background()
	auction := core.NewAuctionID()
	ev := createdEvent(auction, core.EnglishOpen)

	listener.Handle(ctx, ev)

	jobs, err := store.FindPending(ctx, auction, JobClose)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(jobs))
	check.True(t, jobs[0].ExecuteAt.Equal(ev.EndTime))

	none, err := store.FindPending(ctx, auction, JobRevealStart)
	assert.NoError(t, err)
	check.Equal(t, 0, len(none))
}

func TestListener_SealedCreationArmsRevealStartOnly(t *testing.T) {
	listener, store := newTestListener(t)
	ctx := context.Background()
	auction := core.NewAuctionID()
	ev := createdEvent(auction, core.SealedBid)
	ev.RevealWindow = 30 * time.Minute

	listener.Handle(ctx, ev)

	reveals, err := store.FindPending(ctx, auction, JobRevealStart)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(reveals))
	check.True(t, reveals[0].ExecuteAt.Equal(ev.EndTime))

	closes, err := store.FindPending(ctx, auction, JobClose)
	assert.NoError(t, err)
	check.Equal(t, 0, len(closes))

	// Entering the reveal phase arms the final close.
	revealEnd := ev.EndTime.Add(ev.RevealWindow)
	listener.Handle(ctx, &core.AuctionRevealPhaseStarted{
		EventMeta:     core.EventMeta{Auction: auction, ID: uuid.New(), At: ev.EndTime, Seq: 2},
		RevealEndTime: revealEnd,
	})
	closes, err = store.FindPending(ctx, auction, JobClose)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(closes))
	check.True(t, closes[0].ExecuteAt.Equal(revealEnd))
}

func TestListener_DutchCreationArmsCloseAndTicks(t *testing.T) {
	listener, store := newTestListener(t)
	ctx := context.Background()
	auction := core.NewAuctionID()
	ev := createdEvent(auction, core.Dutch)
	starting := core.USD("100")
	ev.StartingPrice = &starting
	ev.Dutch = &core.DutchRules{
		MinimumPrice:      core.USD("20"),
		DecrementAmount:   core.USD("10"),
		DecrementInterval: time.Minute,
	}

	listener.Handle(ctx, ev)

	closes, err := store.FindPending(ctx, auction, JobClose)
	assert.NoError(t, err)
	check.Equal(t, 1, len(closes))

	ticks, err := store.FindPending(ctx, auction, JobPriceReduce)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(ticks))
	check.True(t, ticks[0].ExecuteAt.Equal(ev.StartTime.Add(time.Minute)))
	check.Equal(t, time.Minute, ticks[0].Every)
}

func TestListener_ExtensionMovesClose(t *testing.T) {
	listener, store := newTestListener(t)
	ctx := context.Background()
	auction := core.NewAuctionID()
	ev := createdEvent(auction, core.EnglishOpen)
	listener.Handle(ctx, ev)

	newEnd := ev.EndTime.Add(5 * time.Minute)
	listener.Handle(ctx, &core.AuctionExtended{
		EventMeta:  core.EventMeta{Auction: auction, ID: uuid.New(), At: time.Now(), Seq: 2},
		NewEndTime: newEnd,
	})

	jobs, err := store.FindPending(ctx, auction, JobClose)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(jobs))
	check.True(t, jobs[0].ExecuteAt.Equal(newEnd))
}

func TestListener_CloseCancelsEverythingPending(t *testing.T) {
	listener, store := newTestListener(t)
	ctx := context.Background()
	auction := core.NewAuctionID()
	ev := createdEvent(auction, core.Dutch)
	starting := core.USD("100")
	ev.StartingPrice = &starting
	ev.Dutch = &core.DutchRules{
		MinimumPrice:      core.USD("20"),
		DecrementAmount:   core.USD("10"),
		DecrementInterval: time.Minute,
	}
	listener.Handle(ctx, ev)

	winner := core.NewBidderID()
	amount := core.USD("80")
	listener.Handle(ctx, &core.AuctionClosed{
		EventMeta:     core.EventMeta{Auction: auction, ID: uuid.New(), At: time.Now(), Seq: 5},
		Winner:        &winner,
		WinningAmount: &amount,
	})

	for _, kind := range []JobKind{JobClose, JobPriceReduce, JobRevealStart} {
		jobs, err := store.FindPending(ctx, auction, kind)
		assert.NoError(t, err)
		check.Equal(t, 0, len(jobs))
	}
}
