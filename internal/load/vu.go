// Package load is the staged virtual-user load engine.
//
// An Orchestrator walks a Plan's stages, scaling a pool of VirtualUsers up
// and down through a Scheduler. Each VU loops: take a permit from the
// governor, run one workload iteration, record the Outcome, pause, repeat.
// When the plan's deadline passes (or the caller cancels) the orchestrator
// drains in-flight iterations within a grace period and returns a final
// metrics.Snapshot.
package load

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/volley/internal/load/metrics"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is between iterations.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is executing an iteration.
	VUStateRunning
	// VUStateStopping indicates the VU has been asked to stop after its
	// current iteration.
	VUStateStopping
	// VUStateStopped indicates the VU's loop has exited.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser is one simulated client. It owns nothing beyond its stop
// signal and the bookkeeping for its in-flight iteration.
type VirtualUser struct {
	// Unique, sequential identifier
	ID int

	state atomic.Int32

	// ctx is cancelled to ask the VU to stop. It gates permits and pacing,
	// never the workload call itself.
	ctx    context.Context
	cancel context.CancelFunc

	doneCh chan struct{}

	iteration atomic.Int64
	inflight  atomic.Pointer[flight]
}

// flight tracks the iteration a VU is currently executing. settled is won
// exactly once, either by the VU when the workload returns or by the drain
// when it gives up on the VU; the winner records the outcome.
type flight struct {
	it      *Iteration
	start   time.Time
	cancel  context.CancelFunc
	settled atomic.Bool
}

func newVirtualUser(parent context.Context, id int) *VirtualUser {
	ctx, cancel := context.WithCancel(parent)
	return &VirtualUser{
		ID:     id,
		ctx:    ctx,
		cancel: cancel,
		doneCh: make(chan struct{}),
	}
}

// State returns the current VU state.
func (vu *VirtualUser) State() VUState {
	return VUState(vu.state.Load())
}

// Iterations returns how many iterations this VU has started.
func (vu *VirtualUser) Iterations() int64 {
	return vu.iteration.Load()
}

// RequestStop asks the VU to stop after its current iteration. A pending
// permit wait or pacing pause is abandoned immediately.
func (vu *VirtualUser) RequestStop() {
	for {
		cur := vu.state.Load()
		if VUState(cur) == VUStateStopping || VUState(cur) == VUStateStopped {
			break
		}
		if vu.state.CompareAndSwap(cur, int32(VUStateStopping)) {
			break
		}
	}
	vu.cancel()
}

// stopping reports whether a stop was requested.
func (vu *VirtualUser) stopping() bool {
	return vu.ctx.Err() != nil
}

// Done is closed when the VU's loop exits.
func (vu *VirtualUser) Done() <-chan struct{} {
	return vu.doneCh
}

func (vu *VirtualUser) markStopped() {
	vu.state.Store(int32(VUStateStopped))
	vu.cancel()
	close(vu.doneCh)
}

// runIteration executes one workload call and builds its outcome.
//
// hardCtx is cancelled only when the drain gives up; the workload's context
// additionally carries the per-iteration timeout. release is called by the
// workload goroutine once Run returns, so a timed-out call that ignores its
// context keeps its slot. ok is false when the drain already recorded this
// iteration as aborted.
func (vu *VirtualUser) runIteration(hardCtx context.Context, w Workload, timeout time.Duration, release func()) (outcome metrics.Outcome, ok bool) {
	n := vu.iteration.Add(1)
	it := &Iteration{VU: vu.ID, Number: n}

	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(hardCtx, timeout)
	} else {
		ctx, cancel = context.WithCancel(hardCtx)
	}
	defer cancel()

	f := &flight{it: it, start: time.Now(), cancel: cancel}
	vu.inflight.Store(f)
	vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning))
	defer func() {
		vu.inflight.CompareAndSwap(f, nil)
		vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))
	}()

	done := make(chan error, 1)
	go func() {
		var err error
		defer func() {
			if p := recover(); p != nil {
				err = &WorkloadError{VU: vu.ID, Iteration: n, Panic: p}
			}
			release()
			done <- err
		}()
		err = w.Run(ctx, it)
	}()

	var err error
	timedOut := false
	select {
	case err = <-done:
		// A call that gives up on its own expired context is still a timeout.
		timedOut = timeout > 0 && err != nil && hardCtx.Err() == nil &&
			errors.Is(err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded)
	case <-ctx.Done():
		// Timed out or abandoned. The workload goroutine is left to finish
		// on its own; its result is discarded.
		err = ctx.Err()
		timedOut = timeout > 0 && hardCtx.Err() == nil && errors.Is(err, context.DeadlineExceeded)
	}
	end := time.Now()

	if !f.settled.CompareAndSwap(false, true) {
		return metrics.Outcome{}, false
	}
	return vu.outcome(f, end, err, timedOut, timeout), true
}

// outcome classifies a settled iteration by what the runner observed: a
// timeout only when the wait ended on the deadline, otherwise by Run's error.
func (vu *VirtualUser) outcome(f *flight, end time.Time, err error, timedOut bool, timeout time.Duration) metrics.Outcome {
	n := f.it.Number
	outcome := metrics.Outcome{
		VU:        vu.ID,
		Iteration: n,
		Start:     f.start,
		End:       end,
		Success:   true,
		Checks:    f.it.seal(),
	}

	switch {
	case timedOut:
		outcome.Success = false
		outcome.Kind = metrics.KindTimeout
		outcome.Err = &TimeoutError{VU: vu.ID, Iteration: n, Timeout: timeout}
	case err != nil:
		var we *WorkloadError
		if !errors.As(err, &we) {
			we = &WorkloadError{VU: vu.ID, Iteration: n, Err: err}
		}
		outcome.Success = false
		outcome.Kind = metrics.KindWorkload
		outcome.Err = we
	}
	return outcome
}

// abort settles the in-flight iteration, if any, as aborted and cancels its
// workload context.
func (vu *VirtualUser) abort(now time.Time) (metrics.Outcome, bool) {
	f := vu.inflight.Load()
	if f == nil || !f.settled.CompareAndSwap(false, true) {
		return metrics.Outcome{}, false
	}
	f.cancel()
	return metrics.Outcome{
		VU:        vu.ID,
		Iteration: f.it.Number,
		Start:     f.start,
		End:       now,
		Success:   false,
		Err:       ErrAborted,
		Kind:      metrics.KindAborted,
		Checks:    f.it.seal(),
	}, true
}
