package timers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gavelworks/gavel/core"
)

// JobKind is the action a scheduled job performs when it fires.
type JobKind string

const (
	JobClose       JobKind = "close"
	JobRevealStart JobKind = "reveal_start"
	JobPriceReduce JobKind = "price_reduce"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
	JobFailed    JobStatus = "failed"
)

// ErrJobNotFound is returned by JobStore.Get for an unknown job id.
var ErrJobNotFound = errors.New("scheduled job not found")

// ScheduledJob is the durable record behind one armed timer. The job is
// persisted before the in-memory timer is armed, so a crash between the
// two loses nothing: recovery re-arms every pending job whose lease has
// lapsed.
type ScheduledJob struct {
	ID        uuid.UUID
	Auction   core.AuctionID
	Kind      JobKind
	ExecuteAt time.Time
	// Every repeats the job at a fixed interval after each successful
	// run; zero means one-shot. Dutch price ticks use it.
	Every      time.Duration
	Status     JobStatus
	Attempts   int
	LeaseUntil *time.Time
	LeasedBy   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// JobStore persists scheduled jobs.
type JobStore interface {
	// Save upserts a job by id.
	Save(ctx context.Context, job ScheduledJob) error
	Get(ctx context.Context, id uuid.UUID) (ScheduledJob, error)
	// FindPending returns the pending jobs for one auction and kind.
	FindPending(ctx context.Context, auction core.AuctionID, kind JobKind) ([]ScheduledJob, error)
	// Recoverable returns every pending job whose lease is absent or has
	// expired at now, ordered by ExecuteAt.
	Recoverable(ctx context.Context, now time.Time) ([]ScheduledJob, error)
}

// MemoryJobStore keeps jobs in-process, for tests and single-node use.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]ScheduledJob
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[uuid.UUID]ScheduledJob)}
}

func (s *MemoryJobStore) Save(ctx context.Context, job ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryJobStore) Get(ctx context.Context, id uuid.UUID) (ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return ScheduledJob{}, ErrJobNotFound
	}
	return job, nil
}

func (s *MemoryJobStore) FindPending(ctx context.Context, auction core.AuctionID, kind JobKind) ([]ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ScheduledJob
	for _, job := range s.jobs {
		if job.Status == JobPending && job.Auction == auction && job.Kind == kind {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecuteAt.Before(out[j].ExecuteAt) })
	return out, nil
}

func (s *MemoryJobStore) Recoverable(ctx context.Context, now time.Time) ([]ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ScheduledJob
	for _, job := range s.jobs {
		if job.Status != JobPending {
			continue
		}
		if job.LeaseUntil == nil || !job.LeaseUntil.After(now) {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecuteAt.Before(out[j].ExecuteAt) })
	return out, nil
}
