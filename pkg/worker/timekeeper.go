package worker

import (
	"sync"
	"time"
)

// TimeKeeper accumulates a worker's busy time over a rolling sampling
// window and reports the fraction of the window spent busy, for the
// load-average computation spec.md §4.4 step 7 delegates to a "time-keeper
// collaborator". Grounded on the teacher's health_monitor.go ticker-loop
// shape (interval-driven sampling into a rolling counter), generalized
// here from "poll container health" to "sample busy duration".
type TimeKeeper struct {
	mu          sync.Mutex
	busy        time.Duration
	windowStart time.Time
}

// NewTimeKeeper creates a TimeKeeper with its window starting now.
func NewTimeKeeper() *TimeKeeper {
	return &TimeKeeper{windowStart: time.Now()}
}

// RecordBusy adds d to the current window's busy accumulator. Call once
// per dispatched task with the wall-clock time the Checker call took.
func (tk *TimeKeeper) RecordBusy(d time.Duration) {
	if d <= 0 {
		return
	}
	tk.mu.Lock()
	defer tk.mu.Unlock()
	tk.busy += d
}

// Sample reports the busy fraction (0..1) since the last Sample call and
// resets the window. Intended to be called by a ticker-driven Pool, not by
// the worker itself.
func (tk *TimeKeeper) Sample() float64 {
	tk.mu.Lock()
	defer tk.mu.Unlock()

	elapsed := time.Since(tk.windowStart)
	tk.windowStart = time.Now()
	if elapsed <= 0 {
		return 0
	}
	frac := float64(tk.busy) / float64(elapsed)
	tk.busy = 0
	if frac > 1 {
		frac = 1
	}
	if frac < 0 {
		frac = 0
	}
	return frac
}

// Pool owns one TimeKeeper per worker and periodically samples all of them
// into the discoverer_worker_busy_fraction gauge, caching the last sample
// so the USAGE_STATS IPC handler can read a stable per-worker fraction
// list (spec.md §4.5 step 7, §6) without racing the sampling ticker.
type Pool struct {
	mu       sync.Mutex
	keepers  map[string]*TimeKeeper
	order    []string
	snapshot []float64

	ticker *time.Ticker
	stop   chan struct{}
}

// NewPool creates an empty Pool.
func NewPool() *Pool {
	return &Pool{keepers: make(map[string]*TimeKeeper), stop: make(chan struct{})}
}

// Register adds a worker's TimeKeeper to the pool, preserving registration
// order so USAGE_STATS replies are stable across calls.
func (p *Pool) Register(workerID string, tk *TimeKeeper) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.keepers[workerID]; !exists {
		p.order = append(p.order, workerID)
	}
	p.keepers[workerID] = tk
}

// sample reads and resets every registered TimeKeeper, publishes each
// fraction to the discoverer_worker_busy_fraction gauge, and updates the
// cached snapshot Fractions returns.
func (p *Pool) sample(onSample func(workerID string, fraction float64)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]float64, 0, len(p.order))
	for _, id := range p.order {
		f := p.keepers[id].Sample()
		out = append(out, f)
		if onSample != nil {
			onSample(id, f)
		}
	}
	p.snapshot = out
}

// StartSampling begins a ticker-driven loop that samples every
// TimeKeeper at the given interval, matching the teacher health_monitor's
// ticker shape (spec.md SPEC_FULL.md §6.4).
func (p *Pool) StartSampling(interval time.Duration, onSample func(workerID string, fraction float64)) {
	p.ticker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-p.ticker.C:
				p.sample(onSample)
			case <-p.stop:
				return
			}
		}
	}()
}

// StopSampling halts the sampling loop started by StartSampling.
func (p *Pool) StopSampling() {
	if p.ticker != nil {
		p.ticker.Stop()
	}
	close(p.stop)
}

// Fractions returns the most recently sampled busy fraction for each
// registered worker, in registration order (spec.md §6 USAGE_STATS reply).
func (p *Pool) Fractions() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snapshot == nil {
		out := make([]float64, len(p.order))
		return out
	}
	out := make([]float64, len(p.snapshot))
	copy(out, p.snapshot)
	return out
}

// Count reports the number of registered workers.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}
