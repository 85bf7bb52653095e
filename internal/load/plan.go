package load

import (
	"fmt"
	"math"
	"time"
)

// RampMode selects how the VU count moves toward a stage's target.
type RampMode string

const (
	// RampStep jumps to the stage target as soon as the stage starts.
	RampStep RampMode = "step"

	// RampLinear interpolates from the previous stage's target (0 for the
	// first stage) and reaches the target by the end of the stage.
	RampLinear RampMode = "linear"
)

// Stage is one segment of a Plan.
type Stage struct {
	// Target VU count at the end of the stage.
	Target int `json:"target" yaml:"target"`

	// Duration of this stage.
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Ramp mode; empty means RampStep.
	Ramp RampMode `json:"ramp,omitempty" yaml:"ramp,omitempty"`

	// Optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

func (s Stage) mode() RampMode {
	if s.Ramp == "" {
		return RampStep
	}
	return s.Ramp
}

// Plan is the immutable stage list of a test run.
//
// Example:
//
//	load.Plan{Stages: []load.Stage{
//	    {Target: 10, Duration: 30 * time.Second, Ramp: load.RampLinear}, // 0 -> 10 over 30s
//	    {Target: 10, Duration: 2 * time.Minute},                          // hold 10
//	    {Target: 0, Duration: 30 * time.Second, Ramp: load.RampLinear},  // 10 -> 0
//	}}
type Plan struct {
	Stages []Stage `json:"stages" yaml:"stages"`
}

// ConstantPlan is the plan for "vus for duration".
func ConstantPlan(vus int, duration time.Duration) Plan {
	return Plan{Stages: []Stage{{Target: vus, Duration: duration}}}
}

// InvalidPlanError reports a malformed plan. It is returned before any VU
// is spawned.
type InvalidPlanError struct {
	// Stage is the offending stage index, or -1 for plan-level problems.
	Stage   int
	Field   string
	Message string
}

func (e *InvalidPlanError) Error() string {
	if e.Stage < 0 {
		return "invalid plan: " + e.Message
	}
	return fmt.Sprintf("invalid plan: stages[%d].%s: %s", e.Stage, e.Field, e.Message)
}

// Validate checks the plan and returns an *InvalidPlanError on the first problem.
func (p Plan) Validate() error {
	if len(p.Stages) == 0 {
		return &InvalidPlanError{Stage: -1, Field: "stages", Message: "at least one stage is required"}
	}
	for i, s := range p.Stages {
		if s.Target < 0 {
			return &InvalidPlanError{Stage: i, Field: "target", Message: fmt.Sprintf("target must be >= 0, got %d", s.Target)}
		}
		if s.Duration < 0 {
			return &InvalidPlanError{Stage: i, Field: "duration", Message: fmt.Sprintf("duration must be >= 0, got %v", s.Duration)}
		}
		switch s.mode() {
		case RampStep, RampLinear:
		default:
			return &InvalidPlanError{Stage: i, Field: "ramp", Message: "unknown ramp mode: " + string(s.Ramp)}
		}
	}
	if p.TotalDuration() <= 0 {
		return &InvalidPlanError{Stage: -1, Field: "stages", Message: "total duration must be > 0"}
	}
	return nil
}

// TotalDuration is the sum of all stage durations.
func (p Plan) TotalDuration() time.Duration {
	var total time.Duration
	for _, s := range p.Stages {
		total += s.Duration
	}
	return total
}

// MaxTarget returns the largest stage target.
func (p Plan) MaxTarget() int {
	maxVUs := 0
	for _, s := range p.Stages {
		if s.Target > maxVUs {
			maxVUs = s.Target
		}
	}
	return maxVUs
}

// TargetAt returns the stage index and VU target at elapsed time.
//
// snap is the controller's tick interval: a linear stage reports its final
// target once less than snap remains, so the target is reached within the
// stage even when the last tick lands just before the boundary.
// Past the end of the plan it returns the last stage and its target.
func (p Plan) TargetAt(elapsed, snap time.Duration) (stage int, target int) {
	var stageStart time.Duration
	prevTarget := 0

	for i, s := range p.Stages {
		stageEnd := stageStart + s.Duration
		if elapsed < stageEnd {
			if s.mode() == RampStep || stageEnd-elapsed <= snap {
				return i, s.Target
			}
			progress := float64(elapsed-stageStart) / float64(s.Duration)
			if progress < 0 {
				progress = 0
			}
			vus := float64(prevTarget) + float64(s.Target-prevTarget)*progress
			return i, int(math.Round(vus))
		}
		prevTarget = s.Target
		stageStart = stageEnd
	}

	last := len(p.Stages) - 1
	if last < 0 {
		return 0, 0
	}
	return last, p.Stages[last].Target
}
