package report

import (
	"sync"
	"time"

	"github.com/wesleyorama2/volley/internal/load"
)

// TimelinePoint is one periodic sample of a run.
type TimelinePoint struct {
	Elapsed    time.Duration `json:"elapsed"`
	Stage      int           `json:"stage"`
	ActiveVUs  int           `json:"activeVUs"`
	TargetVUs  int           `json:"targetVUs"`
	Iterations int64         `json:"iterations"`
	Failures   int64         `json:"failures"`

	// Interval values cover the time since the previous point.
	IntervalIterations int64   `json:"intervalIterations"`
	IntervalRate       float64 `json:"intervalRate"`

	P50 time.Duration `json:"p50"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
}

// Timeline collects a point from every snapshot event of a run.
// Register it as a load.Observer with a non-zero snapshot interval.
type Timeline struct {
	mu     sync.Mutex
	points []TimelinePoint
}

var _ load.Observer = (*Timeline)(nil)

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{}
}

// OnEvent implements load.Observer.
func (t *Timeline) OnEvent(e load.Event) {
	if e.Snapshot == nil {
		return
	}
	if e.Type != load.EventSnapshot && e.Type != load.EventCompleted {
		return
	}

	s := e.Snapshot
	p := TimelinePoint{
		Elapsed:    e.Elapsed,
		Stage:      e.Stage,
		ActiveVUs:  e.ActiveVUs,
		TargetVUs:  e.TargetVUs,
		Iterations: s.TotalIterations,
		Failures:   s.Failures,
		P50:        s.Latency.P50,
		P95:        s.Latency.P95,
		P99:        s.Latency.P99,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var prev TimelinePoint
	if n := len(t.points); n > 0 {
		prev = t.points[n-1]
		if e.Elapsed <= prev.Elapsed {
			return
		}
	}
	p.IntervalIterations = p.Iterations - prev.Iterations
	if dt := (p.Elapsed - prev.Elapsed).Seconds(); dt > 0 {
		p.IntervalRate = float64(p.IntervalIterations) / dt
	}
	t.points = append(t.points, p)
}

// Points returns a copy of the collected points.
func (t *Timeline) Points() []TimelinePoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TimelinePoint, len(t.points))
	copy(out, t.points)
	return out
}
