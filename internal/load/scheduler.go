package load

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/volley/internal/load/governor"
	"github.com/wesleyorama2/volley/internal/load/metrics"
)

// Scheduler manages the lifecycle of Virtual Users.
//
// It provides:
// - VU pool management (spawning/ stopping VUs)
// - The per-VU iteration loop
// - Drain coordination at the end of a run
type Scheduler struct {
	workload Workload
	governor *governor.Governor
	recorder *metrics.Recorder
	pacing   Pacing
	timeout  time.Duration
	logger   *zap.Logger

	// hardCtx is the parent of every workload context. It is cancelled only
	// when the drain gives up.
	hardCtx context.Context

	// Active VUs
	vus   map[int]*VirtualUser
	vusMu sync.RWMutex

	// VU ID counter
	nextVUID atomic.Int32

	wg sync.WaitGroup

	// fatal receives the first error that makes further permits impossible.
	fatal chan error
}

// SchedulerConfig holds the collaborators a Scheduler drives.
type SchedulerConfig struct {
	Workload Workload
	Governor *governor.Governor
	Recorder *metrics.Recorder
	Pacing   Pacing
	Timeout  time.Duration
	Logger   *zap.Logger

	// HardContext parents workload contexts. Defaults to context.Background.
	HardContext context.Context
}

// NewScheduler creates a new VU scheduler.
func NewScheduler(config SchedulerConfig) *Scheduler {
	hard := config.HardContext
	if hard == nil {
		hard = context.Background()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		workload: config.Workload,
		governor: config.Governor,
		recorder: config.Recorder,
		pacing:   config.Pacing,
		timeout:  config.Timeout,
		logger:   logger,
		hardCtx:  hard,
		vus:      make(map[int]*VirtualUser),
		fatal:    make(chan error, 1),
	}
}

// Fatal delivers an error after which no VU can make progress.
func (s *Scheduler) Fatal() <-chan error {
	return s.fatal
}

// SpawnVU creates a VU and starts its loop.
//
// ctx is the VU's stop signal parent: cancelling it stops the VU after its
// current iteration.
func (s *Scheduler) SpawnVU(ctx context.Context) *VirtualUser {
	id := int(s.nextVUID.Add(1))
	vu := newVirtualUser(ctx, id)

	s.vusMu.Lock()
	s.vus[id] = vu
	s.vusMu.Unlock()

	s.wg.Add(1)
	go s.RunVU(vu)
	return vu
}

// GetVU returns a VU by ID, or nil if not found.
func (s *Scheduler) GetVU(id int) *VirtualUser {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()
	return s.vus[id]
}

// ActiveVUCount returns the count of VUs that have not been asked to stop.
func (s *Scheduler) ActiveVUCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	count := 0
	for _, vu := range s.vus {
		if !vu.stopping() {
			count++
		}
	}
	return count
}

// LiveVUCount returns the count of VUs whose loop has not exited, including
// those finishing their last iteration.
func (s *Scheduler) LiveVUCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()
	return len(s.vus)
}

// RunVU runs a VU's loop until it's asked to stop.
//
// Each pass takes a permit, executes one iteration, records the outcome and
// applies pacing. The permit goes back when the workload call returns, which
// for a timed-out call may be after the VU has moved on. A stop request never interrupts
// an iteration that has started.
func (s *Scheduler) RunVU(vu *VirtualUser) {
	defer s.wg.Done()
	defer s.remove(vu)

	for {
		if vu.stopping() {
			return
		}

		release, err := s.governor.Acquire(vu.ctx)
		if err != nil {
			if errors.Is(err, governor.ErrDeniedPermanently) {
				s.reportFatal(err)
			}
			return
		}

		outcome, ok := vu.runIteration(s.hardCtx, s.workload, s.timeout, release)
		if !ok {
			// Recorded as aborted by the drain.
			return
		}
		s.recorder.Record(outcome)

		if pause := s.pacing.next(); pause > 0 {
			timer := time.NewTimer(pause)
			select {
			case <-vu.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

func (s *Scheduler) reportFatal(err error) {
	select {
	case s.fatal <- err:
	default:
	}
}

func (s *Scheduler) remove(vu *VirtualUser) {
	s.vusMu.Lock()
	delete(s.vus, vu.ID)
	s.vusMu.Unlock()
	vu.markStopped()
}

// ScaleVUs adjusts the VU count to the target.
//
// It spawns new VUs or asks the newest ones to stop, and moves the
// governor's concurrency ceiling to target. Returns the active count after
// adjustment.
func (s *Scheduler) ScaleVUs(ctx context.Context, target int) int {
	if target < 0 {
		target = 0
	}
	s.governor.SetTarget(target)

	current := s.ActiveVUCount()
	if target > current {
		for i := current; i < target; i++ {
			s.SpawnVU(ctx)
		}
	} else if target < current {
		excess := current - target

		s.vusMu.RLock()
		active := make([]*VirtualUser, 0, len(s.vus))
		for _, vu := range s.vus {
			if !vu.stopping() {
				active = append(active, vu)
			}
		}
		s.vusMu.RUnlock()

		slices.SortFunc(active, func(a, b *VirtualUser) int { return b.ID - a.ID })
		for _, vu := range active[:excess] {
			vu.RequestStop()
		}
		s.logger.Debug("stopping vus", zap.Int("count", excess), zap.Int("target", target))
	}

	return s.ActiveVUCount()
}

// StopAllVUs requests all VUs to stop.
func (s *Scheduler) StopAllVUs() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// WaitForAllVUs waits for every VU loop to exit.
//
// Returns false if the timeout expired first.
func (s *Scheduler) WaitForAllVUs(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// AbortInFlight records every iteration still executing as aborted, ending
// at now, and cancels their workload contexts. It returns the number of
// VUs left behind and the number of iterations aborted.
func (s *Scheduler) AbortInFlight(now time.Time) (abandoned, aborted int) {
	s.vusMu.RLock()
	vus := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		vus = append(vus, vu)
	}
	s.vusMu.RUnlock()

	for _, vu := range vus {
		abandoned++
		if o, ok := vu.abort(now); ok {
			s.recorder.Record(o)
			aborted++
		}
	}
	return abandoned, aborted
}
