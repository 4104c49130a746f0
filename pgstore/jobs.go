package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gavelworks/gavel/core"
	"github.com/gavelworks/gavel/timers"
)

// JobStore is the Postgres timers.JobStore. Repeat intervals are stored as
// nanoseconds.
type JobStore struct {
	pool *pgxpool.Pool
}

func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

func (s *JobStore) Save(ctx context.Context, job timers.ScheduledJob) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_jobs
			(id, auction_id, kind, execute_at, every_interval, status, attempts, lease_until, leased_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			execute_at = EXCLUDED.execute_at,
			every_interval = EXCLUDED.every_interval,
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			lease_until = EXCLUDED.lease_until,
			leased_by = EXCLUDED.leased_by,
			updated_at = EXCLUDED.updated_at`,
		job.ID, job.Auction.UUID, string(job.Kind), job.ExecuteAt, job.Every.Nanoseconds(),
		string(job.Status), job.Attempts, job.LeaseUntil, job.LeasedBy, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (timers.ScheduledJob, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, auction_id, kind, execute_at, every_interval, status, attempts, lease_until, leased_by, created_at, updated_at
		FROM scheduled_jobs
		WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return timers.ScheduledJob{}, timers.ErrJobNotFound
	}
	if err != nil {
		return timers.ScheduledJob{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

func (s *JobStore) FindPending(ctx context.Context, auction core.AuctionID, kind timers.JobKind) ([]timers.ScheduledJob, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, auction_id, kind, execute_at, every_interval, status, attempts, lease_until, leased_by, created_at, updated_at
		FROM scheduled_jobs
		WHERE auction_id = $1 AND kind = $2 AND status = $3
		ORDER BY execute_at`,
		auction.UUID, string(kind), string(timers.JobPending))
	if err != nil {
		return nil, fmt.Errorf("find pending %s jobs for auction %s: %w", kind, auction, err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *JobStore) Recoverable(ctx context.Context, now time.Time) ([]timers.ScheduledJob, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, auction_id, kind, execute_at, every_interval, status, attempts, lease_until, leased_by, created_at, updated_at
		FROM scheduled_jobs
		WHERE status = $1 AND (lease_until IS NULL OR lease_until <= $2)
		ORDER BY execute_at`,
		string(timers.JobPending), now)
	if err != nil {
		return nil, fmt.Errorf("find recoverable jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]timers.ScheduledJob, error) {
	var jobs []timers.ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (timers.ScheduledJob, error) {
	var (
		job       timers.ScheduledJob
		auctionID uuid.UUID
		kind      string
		status    string
		everyNs   int64
	)
	err := row.Scan(&job.ID, &auctionID, &kind, &job.ExecuteAt, &everyNs,
		&status, &job.Attempts, &job.LeaseUntil, &job.LeasedBy, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return timers.ScheduledJob{}, err
	}
	job.Auction = core.AuctionID{UUID: auctionID}
	job.Kind = timers.JobKind(kind)
	job.Status = timers.JobStatus(status)
	job.Every = time.Duration(everyNs)
	return job, nil
}
