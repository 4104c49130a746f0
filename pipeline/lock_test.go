package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/gavelworks/gavel/core"
)

func TestMemoryLocker_MutualExclusion(t *testing.T) {
	locker := NewMemoryLocker(0)
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "auction:a")
	assert.NoError(t, err)

	// Second acquire on the same key blocks until released.
	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(waitCtx, "auction:a")
	check.True(t, errors.Is(err, ErrLockTimeout))

	// A different key is independent.
	other, err := locker.Acquire(ctx, "auction:b")
	assert.NoError(t, err)
	assert.NoError(t, other.Release(ctx))

	assert.NoError(t, lock.Release(ctx))
	relocked, err := locker.Acquire(ctx, "auction:a")
	assert.NoError(t, err)
	assert.NoError(t, relocked.Release(ctx))
}

func TestMemoryLocker_ReleaseIsIdempotent(t *testing.T) {
	locker := NewMemoryLocker(0)
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "auction:a")
	assert.NoError(t, err)
	assert.NoError(t, lock.Release(ctx))
	assert.NoError(t, lock.Release(ctx))

	// The double release did not free someone else's hold.
	next, err := locker.Acquire(ctx, "auction:a")
	assert.NoError(t, err)
	assert.NoError(t, lock.Release(ctx))

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(waitCtx, "auction:a")
	check.True(t, errors.Is(err, ErrLockTimeout))
	assert.NoError(t, next.Release(ctx))
}

func TestMemoryLocker_HoldTimeoutForcesRelease(t *testing.T) {
	locker := NewMemoryLocker(30 * time.Millisecond)
	ctx := context.Background()

	// Acquire and abandon.
	_, err := locker.Acquire(ctx, "auction:a")
	assert.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	lock, err := locker.Acquire(waitCtx, "auction:a")
	assert.NoError(t, err)
	assert.NoError(t, lock.Release(ctx))
}

func TestMemoryLocker_PrunesIdleSlots(t *testing.T) {
	locker := NewMemoryLocker(0)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		lock, err := locker.Acquire(ctx, "auction:"+core.NewAuctionID().String())
		assert.NoError(t, err)
		assert.NoError(t, lock.Release(ctx))
	}

	locker.mu.Lock()
	n := len(locker.slots)
	locker.mu.Unlock()
	check.Equal(t, 0, n)
}

func TestMemoryLocker_SlotSurvivesWhileContended(t *testing.T) {
	locker := NewMemoryLocker(0)
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "auction:a")
	assert.NoError(t, err)

	acquired := make(chan Lock, 1)
	go func() {
		next, err := locker.Acquire(ctx, "auction:a")
		if err != nil {
			panic(err)
		}
		acquired <- next
	}()

	// Give the waiter time to park on the slot, then hand over. The waiter's
	// reference must keep it on the same slot, preserving mutual exclusion.
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, lock.Release(ctx))

	select {
	case next := <-acquired:
		assert.NoError(t, next.Release(ctx))
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the released lock")
	}

	locker.mu.Lock()
	n := len(locker.slots)
	locker.mu.Unlock()
	check.Equal(t, 0, n)
}

func TestMemorySequencer(t *testing.T) {
	seq := NewMemorySequencer()
	ctx := context.Background()
	a, b := core.NewAuctionID(), core.NewAuctionID()

	n1, err := seq.Next(ctx, a)
	assert.NoError(t, err)
	n2, err := seq.Next(ctx, a)
	assert.NoError(t, err)
	other, err := seq.Next(ctx, b)
	assert.NoError(t, err)

	check.Equal(t, uint64(1), n1)
	check.Equal(t, uint64(2), n2)
	check.Equal(t, uint64(1), other)
}
