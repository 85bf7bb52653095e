// Package governor gates when virtual users may start their next iteration.
//
// A Governor combines two limits:
//   - a concurrency ceiling: at most Target iterations hold a slot at once
//   - an optional rate gate shared by every VU (leaky or token bucket)
//
// Waiting never spins. Slot waiters park on a broadcast channel that is
// replaced every time a slot frees up or the target changes; rate waiters
// sleep on a timer. Both give up as soon as the caller's context ends.
package governor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrDeniedPermanently is returned when a permit can never be granted.
// It indicates a scheduling bug or an impossible configuration, not a
// workload failure.
var ErrDeniedPermanently = errors.New("governor: permit can never be granted")

// Gate rate-limits iteration starts.
type Gate interface {
	Wait(ctx context.Context) error
	Stats() GateStats
}

// Config configures a Governor.
type Config struct {
	// Rate is the maximum aggregate iteration starts per second (0 = unlimited).
	Rate float64

	// Burst selects the token bucket when > 1; otherwise starts are spaced
	// at a fixed interval by a leaky bucket.
	Burst int

	// Target is the initial concurrency ceiling.
	Target int
}

// Governor enforces the concurrency ceiling and rate limit.
type Governor struct {
	mu      sync.Mutex
	target  int
	active  int
	peak    int
	changed chan struct{}

	gate    Gate
	granted atomic.Int64
}

// New creates a governor from config.
func New(config Config) *Governor {
	var gate Gate
	switch {
	case config.Rate <= 0:
	case config.Burst > 1:
		gate = NewTokenBucket(config.Rate, config.Burst)
	default:
		gate = NewLeakyBucket(config.Rate)
	}
	return NewWithGate(config.Target, gate)
}

// NewWithGate creates a governor around an explicit rate gate (nil = unlimited).
func NewWithGate(target int, gate Gate) *Governor {
	if target < 0 {
		target = 0
	}
	return &Governor{
		target:  target,
		changed: make(chan struct{}),
		gate:    gate,
	}
}

// notifyLocked wakes every slot waiter. Caller holds mu.
func (g *Governor) notifyLocked() {
	close(g.changed)
	g.changed = make(chan struct{})
}

// SetTarget changes the concurrency ceiling.
//
// Lowering the target does not interrupt iterations already holding a slot;
// it only stops new slots from being granted until active drops below it.
func (g *Governor) SetTarget(n int) {
	if n < 0 {
		n = 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if n == g.target {
		return
	}
	g.target = n
	g.notifyLocked()
}

// Target returns the current concurrency ceiling.
func (g *Governor) Target() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.target
}

// InFlight returns the number of slots currently held.
func (g *Governor) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Peak returns the highest number of slots ever held at once.
func (g *Governor) Peak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

// Granted returns the number of permits handed out.
func (g *Governor) Granted() int64 {
	return g.granted.Load()
}

// GateStats returns the rate gate's statistics, if a gate is configured.
func (g *Governor) GateStats() (GateStats, bool) {
	if g.gate == nil {
		return GateStats{}, false
	}
	return g.gate.Stats(), true
}

// Acquire blocks until the caller may start an iteration.
//
// On success it returns a release func that must be called once the
// iteration's workload call has returned; calling it more than once is
// harmless. If ctx ends first, Acquire returns ctx's error and holds nothing.
func (g *Governor) Acquire(ctx context.Context) (func(), error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		g.mu.Lock()
		if g.active < g.target {
			g.active++
			if g.active > g.peak {
				g.peak = g.active
			}
			g.mu.Unlock()
			break
		}
		wake := g.changed
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}

	release := sync.OnceFunc(g.release)
	if g.gate != nil {
		if err := g.gate.Wait(ctx); err != nil {
			release()
			return nil, err
		}
	}
	g.granted.Add(1)
	return release, nil
}

func (g *Governor) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active--
	g.notifyLocked()
}
