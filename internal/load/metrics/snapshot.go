package metrics

import (
	"encoding/json"
	"fmt"
	"time"
)

// PercentileMethod names how latency percentiles were computed.
type PercentileMethod string

const (
	// MethodNearestRank is used when every latency is retained: the p-th
	// percentile is the value at rank ceil(p/100 * n) in the sorted sample.
	MethodNearestRank PercentileMethod = "nearest-rank"

	// MethodHistogram is used in streaming mode: the rank is located in the
	// HDR histogram's buckets and linearly interpolated within the bucket.
	MethodHistogram PercentileMethod = "histogram-interpolated"
)

// Ratio is a fraction that may be undefined (zero denominator).
//
// It never produces NaN; callers must check ok from Value.
type Ratio struct {
	Num int64 `json:"num"`
	Den int64 `json:"den"`
}

// Value returns the ratio and whether it is defined.
func (r Ratio) Value() (float64, bool) {
	if r.Den == 0 {
		return 0, false
	}
	return float64(r.Num) / float64(r.Den), true
}

// String formats the ratio as a percentage, or "n/a" when undefined.
func (r Ratio) String() string {
	v, ok := r.Value()
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}

// MarshalJSON encodes the ratio as a number, or null when undefined.
func (r Ratio) MarshalJSON() ([]byte, error) {
	v, ok := r.Value()
	if !ok {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration    `json:"min"`
	Max    time.Duration    `json:"max"`
	Mean   time.Duration    `json:"mean"`
	StdDev time.Duration    `json:"stdDev"`
	P50    time.Duration    `json:"p50"`
	P90    time.Duration    `json:"p90"`
	P95    time.Duration    `json:"p95"`
	P99    time.Duration    `json:"p99"`
	Count  int64            `json:"count"`
	Method PercentileMethod `json:"method"`
}

// CheckStats counts passes and failures of one named check.
type CheckStats struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// PassRate returns passes over evaluations.
func (c CheckStats) PassRate() Ratio {
	return Ratio{Num: c.Passes, Den: c.Passes + c.Fails}
}

// Snapshot is a point-in-time aggregate over recorded outcomes.
//
// Snapshots are computed fresh on every call and never updated in place.
type Snapshot struct {
	TotalIterations int64 `json:"totalIterations"`
	Successes       int64 `json:"successes"`
	Failures        int64 `json:"failures"`
	Timeouts        int64 `json:"timeouts"`
	Aborted         int64 `json:"aborted"`

	SuccessRate Ratio `json:"successRate"`

	// Checks are sorted by name.
	Checks        []CheckStats `json:"checks,omitempty"`
	CheckPassRate Ratio        `json:"checkPassRate"`

	Latency LatencyStats `json:"latency"`

	// First is the earliest iteration start, Last the latest iteration end.
	First time.Time `json:"first,omitempty"`
	Last  time.Time `json:"last,omitempty"`

	// Streaming is true when the snapshot was computed from running aggregates.
	Streaming bool `json:"streaming"`
}

// Throughput returns iterations per second over the observed window.
func (s *Snapshot) Throughput() float64 {
	if s.TotalIterations == 0 || s.First.IsZero() {
		return 0
	}
	window := s.Last.Sub(s.First).Seconds()
	if window <= 0 {
		return 0
	}
	return float64(s.TotalIterations) / window
}

// Check returns the stats for a named check.
func (s *Snapshot) Check(name string) (CheckStats, bool) {
	for _, c := range s.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckStats{}, false
}
