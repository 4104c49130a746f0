// Package timers drives auction deadlines: a hashed timing wheel fires
// in-memory callbacks, and a lease-based scheduler keeps every timer backed
// by a persisted job so deadlines survive restarts.
package timers

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TimerTask is a callback fired when a timeout expires. Tasks run on a
// bounded worker pool, never on the wheel's tick goroutine.
type TimerTask func()

// Timeout states.
const (
	statePending int32 = iota
	stateCancelled
	stateFired
)

// Timeout is one scheduled callback. Cancel is best-effort: it only wins
// if the task has not been handed to a worker yet.
type Timeout struct {
	state  atomic.Int32
	rounds int
	task   TimerTask
}

// Cancel marks the timeout so it will not fire. It reports whether the
// cancellation won the race against dispatch.
func (t *Timeout) Cancel() bool {
	return t.state.CompareAndSwap(statePending, stateCancelled)
}

// Fired reports whether the task was dispatched.
func (t *Timeout) Fired() bool { return t.state.Load() == stateFired }

// WheelConfig tunes the wheel. Zero values fall back to defaults.
type WheelConfig struct {
	// Tick is the wheel resolution; timeouts fire within one tick of
	// their deadline.
	Tick time.Duration
	// Size is the number of buckets.
	Size int
	// Workers is the dispatch pool size.
	Workers int
	// Queue bounds the dispatch backlog before overflow spill.
	Queue int
}

const (
	defaultTick    = 100 * time.Millisecond
	defaultSize    = 512
	defaultWorkers = 10
	defaultQueue   = 1000
)

func (c WheelConfig) withDefaults() WheelConfig {
	if c.Tick <= 0 {
		c.Tick = defaultTick
	}
	if c.Size <= 0 {
		c.Size = defaultSize
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.Queue <= 0 {
		c.Queue = defaultQueue
	}
	return c
}

// Wheel is a hashed timing wheel. Each bucket holds the timeouts landing
// on that slot; a timeout further than one revolution away carries a
// remaining-rounds counter and is skipped until it reaches zero.
type Wheel struct {
	cfg WheelConfig
	log *slog.Logger

	mu      sync.Mutex
	buckets [][]*Timeout
	cursor  int

	dispatch   chan TimerTask
	stop       chan struct{}
	tickerDone chan struct{}
	workersWG  sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
}

func NewWheel(cfg WheelConfig, log *slog.Logger) *Wheel {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Wheel{
		cfg:        cfg,
		log:        log,
		buckets:    make([][]*Timeout, cfg.Size),
		dispatch:   make(chan TimerTask, cfg.Queue),
		stop:       make(chan struct{}),
		tickerDone: make(chan struct{}),
	}
}

// Start launches the tick loop and the dispatch workers.
func (w *Wheel) Start() {
	w.startOnce.Do(func() {
		for i := 0; i < w.cfg.Workers; i++ {
			w.workersWG.Add(1)
			go w.worker()
		}
		go w.run()
	})
}

// Stop halts the tick loop, drains the dispatch queue and waits for the
// workers. Pending timeouts never fire after Stop returns.
func (w *Wheel) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		<-w.tickerDone
		close(w.dispatch)
		w.workersWG.Wait()
	})
}

// Schedule arms a callback to fire after delay, rounded up to the wheel
// resolution.
func (w *Wheel) Schedule(delay time.Duration, task TimerTask) *Timeout {
	if delay < 0 {
		delay = 0
	}
	ticks := int(delay / w.cfg.Tick)
	if delay%w.cfg.Tick != 0 {
		ticks++
	}
	if ticks == 0 {
		ticks = 1
	}

	t := &Timeout{task: task}
	w.mu.Lock()
	// ticks is >= 1 here. A delay of exactly one revolution lands in the
	// cursor's own slot and must fire on the first pass, not carry a round.
	t.rounds = (ticks - 1) / w.cfg.Size
	slot := (w.cursor + ticks) % w.cfg.Size
	w.buckets[slot] = append(w.buckets[slot], t)
	w.mu.Unlock()
	return t
}

func (w *Wheel) run() {
	defer close(w.tickerDone)
	ticker := time.NewTicker(w.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.advance()
		}
	}
}

// advance moves the cursor one slot and expires that bucket.
func (w *Wheel) advance() {
	w.mu.Lock()
	w.cursor = (w.cursor + 1) % w.cfg.Size
	bucket := w.buckets[w.cursor]
	var remaining []*Timeout
	var due []*Timeout
	for _, t := range bucket {
		switch {
		case t.state.Load() == stateCancelled:
			// drop
		case t.rounds > 0:
			t.rounds--
			remaining = append(remaining, t)
		default:
			due = append(due, t)
		}
	}
	w.buckets[w.cursor] = remaining
	w.mu.Unlock()

	for _, t := range due {
		w.expire(t)
	}
}

func (w *Wheel) expire(t *Timeout) {
	if !t.state.CompareAndSwap(statePending, stateFired) {
		return
	}
	select {
	case w.dispatch <- t.task:
	default:
		// Queue full. Spill to a fresh goroutine rather than stall the
		// tick loop and skew every other timer.
		w.log.Warn("timer dispatch queue full, spilling task to goroutine")
		go t.task()
	}
}

func (w *Wheel) worker() {
	defer w.workersWG.Done()
	for task := range w.dispatch {
		task()
	}
}
