package pgstore

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gavelworks/gavel/pipeline"
)

// AdvisoryLocker implements pipeline.Locker on Postgres session advisory
// locks. Each held lock pins one pooled connection; losing the connection
// (crash, network) releases the lock server-side, which is exactly the
// liveness property the pipeline needs across nodes.
type AdvisoryLocker struct {
	pool *pgxpool.Pool
	// hold force-releases a lock held longer than this; 0 disables.
	hold time.Duration
	// poll is the retry cadence while waiting for a contended lock.
	poll time.Duration
}

func NewAdvisoryLocker(pool *pgxpool.Pool, holdTimeout time.Duration) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool, hold: holdTimeout, poll: 50 * time.Millisecond}
}

func (l *AdvisoryLocker) Acquire(ctx context.Context, key string) (pipeline.Lock, error) {
	id := lockID(key)
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	for {
		var locked bool
		if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, id).Scan(&locked); err != nil {
			conn.Release()
			return nil, fmt.Errorf("try advisory lock %s: %w", key, err)
		}
		if locked {
			break
		}
		select {
		case <-ctx.Done():
			conn.Release()
			return nil, fmt.Errorf("%w: %s", pipeline.ErrLockTimeout, key)
		case <-time.After(l.poll):
		}
	}

	lock := &advisoryLock{conn: conn, id: id}
	if l.hold > 0 {
		lock.timer = time.AfterFunc(l.hold, func() { _ = lock.Release(context.Background()) })
	}
	return lock, nil
}

type advisoryLock struct {
	once  sync.Once
	timer *time.Timer
	conn  *pgxpool.Conn
	id    int64
}

func (l *advisoryLock) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		if l.timer != nil {
			l.timer.Stop()
		}
		_, err = l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.id)
		l.conn.Release()
	})
	if err != nil {
		return fmt.Errorf("advisory unlock %d: %w", l.id, err)
	}
	return nil
}

// lockID maps a lock key onto the signed 64-bit advisory lock space.
func lockID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
