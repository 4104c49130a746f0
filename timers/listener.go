package timers

import (
	"context"
	"log/slog"

	"github.com/gavelworks/gavel/core"
)

// Listener arms timers off the committed event stream. Subscribed to the
// pipeline bus, it is the only bridge from auction lifecycle events to the
// scheduler: creation arms the deadline timers, extension moves the close,
// the reveal transition arms the reveal deadline, and closing cancels
// whatever is still pending.
type Listener struct {
	sched *Scheduler
	log   *slog.Logger
}

func NewListener(sched *Scheduler, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{sched: sched, log: log}
}

// Handle is a pipeline.Handler.
func (l *Listener) Handle(ctx context.Context, e core.Event) {
	switch ev := e.(type) {
	case *core.AuctionCreated:
		if ev.Type == core.SealedBid {
			// The close timer for sealed auctions is armed later, once
			// the reveal phase fixes its deadline.
			l.try(ctx, "schedule reveal start", ev.Auction,
				l.sched.ScheduleRevealStart(ctx, ev.Auction, ev.EndTime))
		} else {
			l.try(ctx, "schedule close", ev.Auction,
				l.sched.ScheduleClose(ctx, ev.Auction, ev.EndTime))
		}
		if ev.Type == core.Dutch && ev.Dutch != nil {
			first := ev.StartTime.Add(ev.Dutch.DecrementInterval)
			l.try(ctx, "schedule price tick", ev.Auction,
				l.sched.SchedulePriceTick(ctx, ev.Auction, first, ev.Dutch.DecrementInterval))
		}
	case *core.AuctionExtended:
		l.try(ctx, "reschedule close", ev.Auction,
			l.sched.RescheduleClose(ctx, ev.Auction, ev.NewEndTime))
	case *core.AuctionRevealPhaseStarted:
		l.try(ctx, "schedule reveal close", ev.Auction,
			l.sched.ScheduleClose(ctx, ev.Auction, ev.RevealEndTime))
	case *core.AuctionClosed:
		for _, kind := range []JobKind{JobClose, JobRevealStart, JobPriceReduce} {
			l.try(ctx, "cancel pending jobs", ev.Auction,
				l.sched.CancelPending(ctx, ev.Auction, kind))
		}
	}
}

func (l *Listener) try(ctx context.Context, what string, auction core.AuctionID, err error) {
	if err != nil {
		l.log.Error(what, "auction", auction, "error", err)
	}
}
