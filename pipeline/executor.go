package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/gavelworks/gavel/core"
	"github.com/gavelworks/gavel/eventstore"
)

// ErrNotFound means a command targeted an auction with no event stream.
var ErrNotFound = errors.New("auction not found")

// Config tunes the executor. Zero values fall back to defaults.
type Config struct {
	// LockWait bounds how long a command waits for the per-auction lock.
	LockWait time.Duration
	// RetryMax is the number of retries after a version conflict.
	RetryMax uint64
	// RetryInitialBackoff seeds the exponential backoff between retries.
	RetryInitialBackoff time.Duration
}

const (
	defaultLockWait            = 5 * time.Second
	defaultRetryMax            = 3
	defaultRetryInitialBackoff = 50 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.LockWait <= 0 {
		c.LockWait = defaultLockWait
	}
	if c.RetryMax == 0 {
		c.RetryMax = defaultRetryMax
	}
	if c.RetryInitialBackoff <= 0 {
		c.RetryInitialBackoff = defaultRetryInitialBackoff
	}
	return c
}

// Executor runs the command pipeline: acquire the auction's lock, replay
// its history, let the aggregate decide, append the new events with an
// optimistic version check, publish. Version conflicts retry with
// exponential backoff; validation and state rejections never do.
type Executor struct {
	store  eventstore.Store
	locker Locker
	bus    Publisher
	log    *slog.Logger
	cfg    Config
}

func NewExecutor(store eventstore.Store, locker Locker, bus Publisher, log *slog.Logger, cfg Config) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{store: store, locker: locker, bus: bus, log: log, cfg: cfg.withDefaults()}
}

// Execute runs one command to completion and returns the committed events.
// A command that decides nothing (such as a price tick already at the
// floor) returns an empty batch and no error.
func (x *Executor) Execute(ctx context.Context, cmd core.Command) ([]core.Event, error) {
	auction := cmd.Auction()

	lockCtx, cancel := context.WithTimeout(ctx, x.cfg.LockWait)
	defer cancel()
	lock, err := x.locker.Acquire(lockCtx, lockKey(auction))
	if err != nil {
		return nil, err
	}
	// Release must not inherit a cancelled request context.
	defer func() {
		if rerr := lock.Release(context.Background()); rerr != nil {
			x.log.Warn("release auction lock", "auction", auction, "error", rerr)
		}
	}()

	var committed []core.Event
	attempts := 0
	op := func() error {
		attempts++
		events, err := x.attempt(ctx, cmd)
		if err != nil {
			if eventstore.IsVersionConflict(err) {
				x.log.Warn("version conflict, retrying",
					"auction", auction, "command", fmt.Sprintf("%T", cmd), "attempt", attempts)
				return err
			}
			return backoff.Permanent(err)
		}
		committed = events
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = x.cfg.RetryInitialBackoff
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, x.cfg.RetryMax), ctx)); err != nil {
		return nil, err
	}

	if len(committed) > 0 {
		x.bus.Publish(ctx, committed)
	}
	x.log.Debug("command executed",
		"auction", auction, "command", fmt.Sprintf("%T", cmd), "events", len(committed), "attempts", attempts)
	return committed, nil
}

// attempt is one optimistic pass: load, replay, decide, append.
func (x *Executor) attempt(ctx context.Context, cmd core.Command) ([]core.Event, error) {
	auction := cmd.Auction()
	history, err := x.store.Load(ctx, auction)
	if err != nil {
		return nil, err
	}

	var agg core.Aggregate
	if create, ok := cmd.(*core.CreateAuction); ok {
		if len(history) > 0 {
			return nil, &core.StateError{Msg: fmt.Sprintf("auction %s already exists", auction)}
		}
		agg, err = core.NewAggregate(create.Type)
		if err != nil {
			return nil, &core.ValidationError{Rule: core.RuleAuctionConfig, Msg: err.Error()}
		}
	} else {
		if len(history) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, auction)
		}
		agg, err = core.Rebuild(history)
		if err != nil {
			return nil, err
		}
	}

	expectedVersion := agg.Version()
	if err := agg.Handle(cmd); err != nil {
		return nil, err
	}
	pending := agg.Pending()
	if len(pending) == 0 {
		return nil, nil
	}
	if err := x.store.Append(ctx, auction, pending, expectedVersion); err != nil {
		return nil, err
	}
	agg.ClearPending()
	return pending, nil
}

func lockKey(auction core.AuctionID) string {
	return "auction:" + auction.String()
}
