// gaveld is the auction engine daemon: it serves the HTTP API, runs the
// command pipeline against Postgres, and keeps auction deadlines armed on
// the durable timing wheel.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"

	"github.com/gavelworks/gavel/api"
	"github.com/gavelworks/gavel/config"
	"github.com/gavelworks/gavel/eventstore"
	"github.com/gavelworks/gavel/pgstore"
	"github.com/gavelworks/gavel/pipeline"
	"github.com/gavelworks/gavel/timers"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gaveld: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage: Postgres when configured, in-memory otherwise.
	var (
		store  eventstore.Store
		jobs   timers.JobStore
		locker pipeline.Locker
		seq    pipeline.Sequencer
	)
	if cfg.DatabaseURL != "" {
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			return err
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		store = pgstore.NewEventStore(pool)
		jobs = pgstore.NewJobStore(pool)
		locker = pgstore.NewAdvisoryLocker(pool, cfg.LockHold)
		seq = pgstore.NewSequencer(pool)
		log.Info("storage ready", "backend", "postgres")
	} else {
		store = eventstore.NewMemoryStore()
		jobs = timers.NewMemoryJobStore()
		locker = pipeline.NewMemoryLocker(cfg.LockHold)
		seq = pipeline.NewMemorySequencer()
		log.Warn("no GAVEL_DATABASE_URL set, running on in-memory storage")
	}

	bus := pipeline.NewMemoryBus()
	exec := pipeline.NewExecutor(store, locker, bus, log, pipeline.Config{
		LockWait:            cfg.LockWait,
		RetryMax:            cfg.RetryMax,
		RetryInitialBackoff: cfg.RetryInitialBackoff,
	})

	wheel := timers.NewWheel(timers.WheelConfig{
		Tick:    cfg.WheelTick,
		Size:    cfg.WheelSize,
		Workers: cfg.DispatchWorkers,
		Queue:   cfg.DispatchQueue,
	}, log)
	wheel.Start()
	defer wheel.Stop()

	sched := timers.NewScheduler(wheel, jobs, exec, log, timers.SchedulerConfig{
		Lease:         cfg.JobLease,
		MaxAttempts:   cfg.JobMaxAttempts,
		SweepInterval: cfg.JobSweepInterval,
	})
	bus.Subscribe(timers.NewListener(sched, log).Handle)

	// Pick up deadlines persisted before the last shutdown.
	if n, err := sched.Recover(ctx); err != nil {
		return fmt.Errorf("recover scheduled jobs: %w", err)
	} else if n > 0 {
		log.Info("re-armed persisted deadlines", "count", n)
	}
	go sched.Run(ctx)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewServer(exec, store, seq, log, cfg.DefaultRevealWindow).Router(),
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr, "node", sched.NodeID())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
