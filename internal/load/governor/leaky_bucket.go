package governor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// LeakyBucket is a fixed-interval gate: iteration starts are spaced 1/rate
// apart across every caller.
//
// The bucket keeps a virtual "drip" time that advances at the configured
// rate. Each Next call reserves the next drip; if callers fell behind, the
// reservation is immediate but accumulated credit is capped at maxBurst so a
// stall is never followed by an unbounded burst.
//
// LeakyBucket is safe for concurrent use.
type LeakyBucket struct {
	rate        float64
	lastDrip    time.Time
	accumulated float64
	maxBurst    float64
	mu          sync.Mutex

	granted   atomic.Int64
	totalWait atomic.Int64
}

// NewLeakyBucket creates a bucket granting rate starts per second.
// A non-positive rate falls back to 1/s. The first reservation is immediate.
func NewLeakyBucket(rate float64) *LeakyBucket {
	return NewLeakyBucketWithBurst(rate, 1)
}

// NewLeakyBucketWithBurst creates a bucket that may bank up to maxBurst
// starts while callers are slow.
func NewLeakyBucketWithBurst(rate float64, maxBurst float64) *LeakyBucket {
	if rate <= 0 {
		rate = 1.0
	}
	if maxBurst < 1.0 {
		maxBurst = 1.0
	}
	return &LeakyBucket{
		rate:        rate,
		lastDrip:    time.Now(),
		accumulated: 1.0,
		maxBurst:    maxBurst,
	}
}

// Next reserves a start and returns when it may happen. The returned time
// may be now (or in the past) when the caller is behind schedule.
func (lb *LeakyBucket) Next() time.Time {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	now := time.Now()
	lb.granted.Add(1)

	// Reservations already handed out push the drip into the future; the
	// next one queues behind them.
	base := now
	if lb.lastDrip.After(now) {
		base = lb.lastDrip
	} else {
		lb.accumulated += now.Sub(lb.lastDrip).Seconds() * lb.rate
		if lb.accumulated > lb.maxBurst {
			lb.accumulated = lb.maxBurst
		}
		if lb.accumulated >= 1.0 {
			lb.accumulated -= 1.0
			lb.lastDrip = now
			return now
		}
	}

	deficit := 1.0 - lb.accumulated
	next := base.Add(time.Duration(deficit / lb.rate * float64(time.Second)))
	lb.accumulated = 0
	// The drip is moved to the reserved slot so waking at next does not
	// credit the same interval twice.
	lb.lastDrip = next
	lb.totalWait.Add(int64(next.Sub(now)))
	return next
}

// Wait reserves a start and sleeps until it is due or ctx ends.
func (lb *LeakyBucket) Wait(ctx context.Context) error {
	wait := time.Until(lb.Next())
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Rate returns the configured starts per second.
func (lb *LeakyBucket) Rate() float64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.rate
}

// Stats returns reservation statistics.
func (lb *LeakyBucket) Stats() GateStats {
	return GateStats{
		Rate:      lb.Rate(),
		Granted:   lb.granted.Load(),
		TotalWait: time.Duration(lb.totalWait.Load()),
	}
}
