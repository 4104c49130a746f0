// Package pipeline executes auction commands: one per-auction lock, an
// optimistic append with bounded retries, then publication of the committed
// events to in-process subscribers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLockTimeout means the per-auction lock could not be acquired within
// the caller's deadline.
var ErrLockTimeout = errors.New("timed out waiting for auction lock")

// Locker hands out named mutual-exclusion locks. Implementations must
// bound how long a holder can keep a lock so a crashed node never wedges
// an auction forever.
type Locker interface {
	Acquire(ctx context.Context, key string) (Lock, error)
}

// Lock is one held lock. Release is idempotent.
type Lock interface {
	Release(ctx context.Context) error
}

// MemoryLocker serializes commands in-process. Each key is a one-slot
// channel; a hold timer force-releases abandoned locks. Slots are
// refcounted by holders and waiters so the map does not grow one entry per
// auction ever seen.
type MemoryLocker struct {
	mu    sync.Mutex
	hold  time.Duration
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker builds a locker whose locks auto-release after
// holdTimeout (0 means hold forever until released).
func NewMemoryLocker(holdTimeout time.Duration) *MemoryLocker {
	return &MemoryLocker{hold: holdTimeout, slots: make(map[string]*lockSlot)}
}

func (l *MemoryLocker) ref(key string) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *MemoryLocker) unref(key string, s *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string) (Lock, error) {
	s := l.ref(key)
	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, s)
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
	}
	lock := &memoryLock{locker: l, key: key, slot: s}
	if l.hold > 0 {
		lock.timer = time.AfterFunc(l.hold, lock.release)
	}
	return lock, nil
}

type memoryLock struct {
	once   sync.Once
	timer  *time.Timer
	locker *MemoryLocker
	key    string
	slot   *lockSlot
}

// release drains this acquisition's token exactly once, whether called by
// Release or by the hold timer; a later holder's token is never stolen.
// The slot reference is dropped afterwards so idle keys are pruned.
func (l *memoryLock) release() {
	l.once.Do(func() {
		if l.timer != nil {
			l.timer.Stop()
		}
		<-l.slot.ch
		l.locker.unref(l.key, l.slot)
	})
}

func (l *memoryLock) Release(ctx context.Context) error {
	l.release()
	return nil
}
