package timers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gavelworks/gavel/core"
	"github.com/gavelworks/gavel/pipeline"
)

// CommandRunner executes an auction command. The pipeline executor
// satisfies it.
type CommandRunner interface {
	Execute(ctx context.Context, cmd core.Command) ([]core.Event, error)
}

// SchedulerConfig tunes the durable scheduler. Zero values fall back to
// defaults.
type SchedulerConfig struct {
	// Lease is how long a node owns a job past its execute time before
	// another node may recover it.
	Lease time.Duration
	// MaxAttempts caps retries of a failing job before it is marked
	// failed for good.
	MaxAttempts int
	// SweepInterval is how often the recovery sweep looks for lapsed
	// leases.
	SweepInterval time.Duration
	// FireTimeout bounds one job execution.
	FireTimeout time.Duration
}

const (
	defaultLease         = 5 * time.Minute
	defaultMaxAttempts   = 3
	defaultSweepInterval = 30 * time.Second
	defaultFireTimeout   = 30 * time.Second
)

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Lease <= 0 {
		c.Lease = defaultLease
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	if c.FireTimeout <= 0 {
		c.FireTimeout = defaultFireTimeout
	}
	return c
}

// Scheduler pairs the timing wheel with a durable job store. Every timer
// is persisted before it is armed; firing turns the job into a command for
// the execution pipeline. A job whose command is rejected as a state error
// is complete: the deadline already happened (a buy-now close, an earlier
// node's timer), so the no-op is the correct outcome.
type Scheduler struct {
	wheel  *Wheel
	jobs   JobStore
	runner CommandRunner
	log    *slog.Logger
	cfg    SchedulerConfig
	nodeID string
	clock  func() time.Time

	mu     sync.Mutex
	active map[uuid.UUID]*Timeout
}

func NewScheduler(wheel *Wheel, jobs JobStore, runner CommandRunner, log *slog.Logger, cfg SchedulerConfig) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		wheel:  wheel,
		jobs:   jobs,
		runner: runner,
		log:    log,
		cfg:    cfg.withDefaults(),
		nodeID: uuid.NewString(),
		clock:  time.Now,
		active: make(map[uuid.UUID]*Timeout),
	}
}

// NodeID identifies this scheduler instance in job leases.
func (s *Scheduler) NodeID() string { return s.nodeID }

// ScheduleClose arms the auction's close timer.
func (s *Scheduler) ScheduleClose(ctx context.Context, auction core.AuctionID, at time.Time) error {
	return s.schedule(ctx, auction, JobClose, at, 0)
}

// ScheduleRevealStart arms the sealed auction's transition into its reveal
// phase.
func (s *Scheduler) ScheduleRevealStart(ctx context.Context, auction core.AuctionID, at time.Time) error {
	return s.schedule(ctx, auction, JobRevealStart, at, 0)
}

// SchedulePriceTick arms one Dutch price reduction; each successful run
// chains the next tick `every` later until the auction closes.
func (s *Scheduler) SchedulePriceTick(ctx context.Context, auction core.AuctionID, at time.Time, every time.Duration) error {
	return s.schedule(ctx, auction, JobPriceReduce, at, every)
}

// RescheduleClose cancels the auction's pending close jobs and arms a new
// one at the extended deadline.
func (s *Scheduler) RescheduleClose(ctx context.Context, auction core.AuctionID, newAt time.Time) error {
	if err := s.CancelPending(ctx, auction, JobClose); err != nil {
		return err
	}
	return s.ScheduleClose(ctx, auction, newAt)
}

// CancelPending cancels every pending job of one kind for an auction, both
// the durable record and the armed timer.
func (s *Scheduler) CancelPending(ctx context.Context, auction core.AuctionID, kind JobKind) error {
	pending, err := s.jobs.FindPending(ctx, auction, kind)
	if err != nil {
		return fmt.Errorf("find pending %s jobs: %w", kind, err)
	}
	for _, job := range pending {
		s.disarm(job.ID)
		job.Status = JobCancelled
		job.UpdatedAt = s.clock()
		if err := s.jobs.Save(ctx, job); err != nil {
			return fmt.Errorf("cancel job %s: %w", job.ID, err)
		}
	}
	return nil
}

func (s *Scheduler) schedule(ctx context.Context, auction core.AuctionID, kind JobKind, at time.Time, every time.Duration) error {
	now := s.clock()
	job := ScheduledJob{
		ID:        uuid.New(),
		Auction:   auction,
		Kind:      kind,
		ExecuteAt: at,
		Every:     every,
		Status:    JobPending,
		LeasedBy:  s.nodeID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	job.LeaseUntil = s.leaseUntil(job)

	// Durability first: the record must exist before the in-memory timer
	// does, so a crash in between is recoverable.
	if err := s.jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("persist %s job for auction %s: %w", kind, auction, err)
	}
	s.arm(job)
	return nil
}

// leaseUntil computes the lease expiry: the job may legitimately sit armed
// until ExecuteAt, so the lease only starts counting from the later of now
// and the execute time.
func (s *Scheduler) leaseUntil(job ScheduledJob) *time.Time {
	base := s.clock()
	if job.ExecuteAt.After(base) {
		base = job.ExecuteAt
	}
	t := base.Add(s.cfg.Lease)
	return &t
}

func (s *Scheduler) arm(job ScheduledJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.active[job.ID]; exists {
		return
	}
	id := job.ID
	s.active[id] = s.wheel.Schedule(job.ExecuteAt.Sub(s.clock()), func() {
		s.fire(id)
	})
}

func (s *Scheduler) disarm(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.active[id]; ok {
		t.Cancel()
		delete(s.active, id)
	}
}

// fire executes one due job.
func (s *Scheduler) fire(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FireTimeout)
	defer cancel()

	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()

	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		s.log.Error("load scheduled job", "job", id, "error", err)
		return
	}
	if job.Status != JobPending {
		return
	}

	_, err = s.runner.Execute(ctx, s.commandFor(job))
	switch {
	case err == nil:
		s.complete(ctx, job)
		if job.Every > 0 {
			next := job.ExecuteAt.Add(job.Every)
			if rerr := s.schedule(ctx, job.Auction, job.Kind, next, job.Every); rerr != nil {
				s.log.Error("chain recurring job", "auction", job.Auction, "kind", job.Kind, "error", rerr)
			}
		}
	case core.IsState(err), core.IsValidation(err), errors.Is(err, pipeline.ErrNotFound):
		// The aggregate says the action no longer applies (already
		// closed, already in reveal). The job's purpose is served.
		s.log.Debug("scheduled job was a no-op", "job", id, "kind", job.Kind, "reason", err)
		s.complete(ctx, job)
	default:
		s.failure(ctx, job, err)
	}
}

func (s *Scheduler) complete(ctx context.Context, job ScheduledJob) {
	job.Status = JobCompleted
	job.UpdatedAt = s.clock()
	if err := s.jobs.Save(ctx, job); err != nil {
		s.log.Error("mark job completed", "job", job.ID, "error", err)
	}
}

// failure counts an attempt. Under the ceiling the job goes back to
// pending with its lease released, so the next sweep retries it; at the
// ceiling it is marked failed for operator attention.
func (s *Scheduler) failure(ctx context.Context, job ScheduledJob, cause error) {
	job.Attempts++
	job.UpdatedAt = s.clock()
	if job.Attempts >= s.cfg.MaxAttempts {
		job.Status = JobFailed
		s.log.Error("scheduled job failed permanently",
			"job", job.ID, "auction", job.Auction, "kind", job.Kind, "attempts", job.Attempts, "error", cause)
	} else {
		job.LeaseUntil = nil
		job.LeasedBy = ""
		s.log.Warn("scheduled job failed, will retry",
			"job", job.ID, "auction", job.Auction, "kind", job.Kind, "attempts", job.Attempts, "error", cause)
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		s.log.Error("persist job failure", "job", job.ID, "error", err)
	}
}

// Recover leases and re-arms every pending job whose lease has lapsed.
// Called once at startup and periodically by Run.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	jobs, err := s.jobs.Recoverable(ctx, s.clock())
	if err != nil {
		return 0, fmt.Errorf("list recoverable jobs: %w", err)
	}
	recovered := 0
	for _, job := range jobs {
		job.LeasedBy = s.nodeID
		job.LeaseUntil = s.leaseUntil(job)
		job.UpdatedAt = s.clock()
		if err := s.jobs.Save(ctx, job); err != nil {
			s.log.Error("lease recoverable job", "job", job.ID, "error", err)
			continue
		}
		s.arm(job)
		recovered++
	}
	if recovered > 0 {
		s.log.Info("recovered scheduled jobs", "count", recovered)
	}
	return recovered, nil
}

// Run sweeps for recoverable jobs until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Recover(ctx); err != nil {
				s.log.Error("recovery sweep", "error", err)
			}
		}
	}
}

func (s *Scheduler) commandFor(job ScheduledJob) core.Command {
	meta := core.CommandMeta{AuctionID: job.Auction}
	switch job.Kind {
	case JobRevealStart:
		return &core.StartRevealPhase{CommandMeta: meta}
	case JobPriceReduce:
		return &core.ReducePrice{CommandMeta: meta}
	default:
		return &core.CloseAuction{CommandMeta: meta}
	}
}
