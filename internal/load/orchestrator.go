package load

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wesleyorama2/volley/internal/load/governor"
	"github.com/wesleyorama2/volley/internal/load/metrics"
)

// ErrAlreadyStarted is returned when Run is called twice on an Orchestrator.
var ErrAlreadyStarted = errors.New("orchestrator already started")

// Result is the outcome of a run.
type Result struct {
	RunID string    `json:"runId"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// Snapshot is the final aggregate.
	Snapshot *metrics.Snapshot `json:"snapshot"`

	// Cancelled is true when the caller's context ended the run early.
	Cancelled bool `json:"cancelled"`

	// Abandoned counts VUs still running when the grace period expired.
	Abandoned int `json:"abandoned"`

	// PeakInFlight is the highest number of concurrent iterations observed.
	PeakInFlight int `json:"peakInFlight"`
}

// Duration returns the wall-clock length of the run.
func (r *Result) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Orchestrator drives one run of a plan against a workload.
type Orchestrator struct {
	plan     Plan
	workload Workload
	opts     Options
	logger   *zap.Logger

	runID     string
	recorder  *metrics.Recorder
	governor  *governor.Governor
	scheduler atomic.Pointer[Scheduler]

	started   atomic.Bool
	startTime atomic.Int64
	stage     atomic.Int32
	target    atomic.Int32

	observersMu sync.Mutex
}

// New validates plan and opts and returns an Orchestrator ready to Run.
func New(plan Plan, workload Workload, opts Options) (*Orchestrator, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if workload == nil {
		return nil, errors.New("workload is required")
	}
	if opts.Rate < 0 {
		return nil, fmt.Errorf("rate must be >= 0, got %v", opts.Rate)
	}
	if opts.IterationTimeout < 0 {
		return nil, fmt.Errorf("iteration timeout must be >= 0, got %v", opts.IterationTimeout)
	}
	if opts.Pacing.Type == PacingRandom && opts.Pacing.Max < opts.Pacing.Min {
		return nil, fmt.Errorf("random pacing max (%v) must be >= min (%v)", opts.Pacing.Max, opts.Pacing.Min)
	}
	opts = opts.withDefaults()

	return &Orchestrator{
		plan:     plan,
		workload: workload,
		opts:     opts,
		logger:   opts.Logger,
		runID:    uuid.NewString(),
		recorder: metrics.NewRecorder(metrics.RecorderConfig{RetentionCap: opts.RetentionCap}),
		governor: governor.New(governor.Config{Rate: opts.Rate, Burst: opts.Burst}),
	}, nil
}

// Run executes plan against workload and returns the final result.
func Run(ctx context.Context, plan Plan, workload Workload, opts Options) (*Result, error) {
	o, err := New(plan, workload, opts)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx)
}

// RunID returns the run's unique identifier.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Recorder exposes the live outcome recorder.
func (o *Orchestrator) Recorder() *metrics.Recorder {
	return o.recorder
}

// Progress returns how far through the plan the run is, from 0 to 1.
func (o *Orchestrator) Progress() float64 {
	start := o.startTime.Load()
	if start == 0 {
		return 0
	}
	p := float64(time.Since(time.Unix(0, start))) / float64(o.plan.TotalDuration())
	if p > 1 {
		return 1
	}
	return p
}

// Live is a point-in-time view of a running orchestrator.
type Live struct {
	Elapsed    time.Duration
	Stage      int
	TargetVUs  int
	ActiveVUs  int
	InFlight   int
	Iterations int64
	Failures   int64
}

// Live returns the current run state. It is safe to call concurrently with Run.
func (o *Orchestrator) Live() Live {
	l := Live{
		Stage:     int(o.stage.Load()),
		TargetVUs: int(o.target.Load()),
		InFlight:  o.governor.InFlight(),
	}
	if start := o.startTime.Load(); start != 0 {
		l.Elapsed = time.Since(time.Unix(0, start))
	}
	if s := o.scheduler.Load(); s != nil {
		l.ActiveVUs = s.ActiveVUCount()
	}
	l.Iterations, l.Failures = o.recorder.Counts()
	return l
}

// Run executes the plan. It may be called once.
//
// The run lasts the plan's total duration unless ctx ends first. Either way
// in-flight iterations are given Options.GracePeriod to finish; any still
// running after that are recorded as aborted and left behind. The error is
// non-nil only when the run could not make progress at all.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	if !o.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}

	total := o.plan.TotalDuration()
	start := time.Now()

	// Workloads see neither the plan deadline nor the caller's cancellation,
	// only the hard stop when the drain gives up.
	hardCtx, hardStop := context.WithCancel(context.WithoutCancel(ctx))
	defer hardStop()

	runCtx, cancelRun := context.WithDeadline(ctx, start.Add(total))
	defer cancelRun()

	sched := NewScheduler(SchedulerConfig{
		Workload:    o.workload,
		Governor:    o.governor,
		Recorder:    o.recorder,
		Pacing:      o.opts.Pacing,
		Timeout:     o.opts.IterationTimeout,
		Logger:      o.logger,
		HardContext: hardCtx,
	})
	o.scheduler.Store(sched)
	o.startTime.Store(start.UnixNano())

	o.logger.Info("run started",
		zap.String("run_id", o.runID),
		zap.Int("stages", len(o.plan.Stages)),
		zap.Duration("duration", total),
		zap.Int("max_vus", o.plan.MaxTarget()),
	)
	o.emit(Event{Type: EventRunStarted, Stage: 0})

	fatalErr := o.control(runCtx, sched, start)

	cancelled := ctx.Err() != nil
	if cancelled {
		o.logger.Warn("run cancelled", zap.String("run_id", o.runID), zap.Error(context.Cause(ctx)))
		o.emit(Event{Type: EventCancelled, Err: context.Cause(ctx)})
	}

	// Drain: stop issuing permits, let in-flight iterations finish.
	cancelRun()
	sched.StopAllVUs()
	o.target.Store(0)

	abandoned := 0
	if !sched.WaitForAllVUs(o.opts.GracePeriod) {
		var aborted int
		abandoned, aborted = sched.AbortInFlight(time.Now())
		hardStop()
		o.logger.Warn("drain grace period exceeded",
			zap.String("run_id", o.runID),
			zap.Duration("grace_period", o.opts.GracePeriod),
			zap.Int("abandoned_vus", abandoned),
			zap.Int("aborted_iterations", aborted),
		)
		o.emit(Event{Type: EventDrainTimeout, Abandoned: abandoned})
	}

	end := time.Now()
	snap := o.recorder.SnapshotAt(end)
	result := &Result{
		RunID:        o.runID,
		Start:        start,
		End:          end,
		Snapshot:     snap,
		Cancelled:    cancelled,
		Abandoned:    abandoned,
		PeakInFlight: o.governor.Peak(),
	}

	o.logger.Info("run completed",
		zap.String("run_id", o.runID),
		zap.Duration("elapsed", end.Sub(start)),
		zap.Int64("iterations", snap.TotalIterations),
		zap.Int64("failures", snap.Failures),
		zap.Bool("cancelled", cancelled),
	)
	o.emit(Event{Type: EventCompleted, Snapshot: snap, Err: fatalErr})

	if fatalErr != nil {
		return result, fmt.Errorf("run %s: %w", o.runID, fatalErr)
	}
	return result, nil
}

// control walks the plan until ctx ends, adjusting the VU pool at each stage
// boundary and every control interval in between.
func (o *Orchestrator) control(ctx context.Context, sched *Scheduler, start time.Time) error {
	interval := o.opts.ControlInterval
	lastStage, lastTarget := -1, -1

	apply := func() {
		elapsed := time.Since(start)
		stage, target := o.plan.TargetAt(elapsed, interval)
		for i := lastStage + 1; i <= stage; i++ {
			o.stage.Store(int32(i))
			o.logger.Debug("stage started",
				zap.Int("stage", i),
				zap.String("name", o.plan.Stages[i].Name),
				zap.Int("target", o.plan.Stages[i].Target),
			)
			o.emit(Event{Type: EventStageStarted, Stage: i})
		}
		lastStage = stage

		if target != lastTarget {
			o.target.Store(int32(target))
			active := sched.ScaleVUs(ctx, target)
			lastTarget = target
			o.emit(Event{Type: EventVUsChanged, Stage: stage, ActiveVUs: active, TargetVUs: target})
		}
	}

	var snapC <-chan time.Time
	if o.opts.SnapshotInterval > 0 {
		ticker := time.NewTicker(o.opts.SnapshotInterval)
		defer ticker.Stop()
		snapC = ticker.C
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sched.Fatal():
			o.logger.Error("run cannot make progress", zap.String("run_id", o.runID), zap.Error(err))
			return err
		case <-snapC:
			o.emit(Event{Type: EventSnapshot, Snapshot: o.recorder.SnapshotAt(time.Now())})
		case <-timer.C:
			apply()
			timer.Reset(o.nextTick(time.Since(start), interval))
		}
	}
}

// nextTick returns the wait until the next control adjustment: the control
// interval, or sooner if a stage boundary comes first.
func (o *Orchestrator) nextTick(elapsed, interval time.Duration) time.Duration {
	var boundary time.Duration
	for _, s := range o.plan.Stages {
		boundary += s.Duration
		if boundary > elapsed {
			if until := boundary - elapsed; until < interval {
				return until
			}
			break
		}
	}
	return interval
}

func (o *Orchestrator) emit(e Event) {
	if len(o.opts.Observers) == 0 {
		return
	}
	e.RunID = o.runID
	e.Time = time.Now()
	if start := o.startTime.Load(); start != 0 {
		e.Elapsed = e.Time.Sub(time.Unix(0, start))
	}
	if s := o.scheduler.Load(); e.Type != EventVUsChanged && s != nil {
		e.ActiveVUs = s.ActiveVUCount()
		e.TargetVUs = int(o.target.Load())
	}
	if e.Type != EventStageStarted && e.Type != EventVUsChanged {
		e.Stage = int(o.stage.Load())
	}
	if e.Stage >= 0 && e.Stage < len(o.plan.Stages) {
		e.StageName = o.plan.Stages[e.Stage].Name
	}

	o.observersMu.Lock()
	defer o.observersMu.Unlock()
	for _, obs := range o.opts.Observers {
		obs.OnEvent(e)
	}
}
