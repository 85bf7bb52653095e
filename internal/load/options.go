package load

import (
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// PacingType identifies the type of pacing.
type PacingType string

const (
	PacingNone     PacingType = "none"
	PacingConstant PacingType = "constant"
	PacingRandom   PacingType = "random"
)

// Pacing controls the pause a VU takes after each iteration.
type Pacing struct {
	// Type of pacing: "none", "constant", "random"
	Type PacingType `json:"type" yaml:"type"`

	// Duration for constant pacing
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min duration for random pacing
	Min time.Duration `json:"min,omitempty" yaml:"min,omitempty"`

	// Max duration for random pacing
	Max time.Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// ConstantPacing pauses d after every iteration.
func ConstantPacing(d time.Duration) Pacing {
	return Pacing{Type: PacingConstant, Duration: d}
}

// next returns the pause before the next iteration.
func (p Pacing) next() time.Duration {
	switch p.Type {
	case PacingConstant:
		return p.Duration
	case PacingRandom:
		diff := p.Max - p.Min
		if diff > 0 {
			return p.Min + time.Duration(rand.Int63n(int64(diff)))
		}
		return p.Min
	default:
		return 0
	}
}

// Options configures a run. The zero value is usable: no rate limit, no
// pacing, no iteration timeout, unbounded retention.
type Options struct {
	// Pacing between iterations of the same VU.
	Pacing Pacing

	// Rate caps aggregate iteration starts per second across all VUs (0 = unlimited).
	Rate float64

	// Burst > 1 allows bursts of that many starts (token bucket); otherwise
	// starts are spaced evenly (leaky bucket).
	Burst int

	// IterationTimeout bounds a single workload call (0 = no timeout).
	IterationTimeout time.Duration

	// GracePeriod bounds the drain at the end of the run (default: 30s).
	GracePeriod time.Duration

	// RetentionCap bounds raw outcome retention; see metrics.RecorderConfig.
	RetentionCap int

	// SnapshotInterval > 0 emits a snapshot event at that interval.
	SnapshotInterval time.Duration

	// ControlInterval is the ramp adjustment cadence (default: 100ms).
	ControlInterval time.Duration

	// Logger for lifecycle logging (default: no-op).
	Logger *zap.Logger

	// Observers receive lifecycle events.
	Observers []Observer
}

// DefaultGracePeriod is used when Options.GracePeriod is zero.
const DefaultGracePeriod = 30 * time.Second

// DefaultControlInterval is used when Options.ControlInterval is zero.
const DefaultControlInterval = 100 * time.Millisecond

func (o Options) withDefaults() Options {
	if o.GracePeriod <= 0 {
		o.GracePeriod = DefaultGracePeriod
	}
	if o.ControlInterval <= 0 {
		o.ControlInterval = DefaultControlInterval
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
