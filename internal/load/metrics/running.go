package metrics

import (
	"math"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Histogram range in microseconds: 1µs to 1 hour, 3 significant figures.
const (
	histogramMin     = 1
	histogramMax     = 3600000000
	histogramSigFigs = 3
)

// Running holds streaming aggregates for outcomes that are no longer retained.
//
// Latencies go into an HDR histogram whose bucket boundaries are fixed at
// construction; count, sum and sum of squares are kept exactly so the mean
// and standard deviation do not depend on bucket resolution.
//
// Running is not safe for concurrent use; the Recorder guards it.
type Running struct {
	hist *hdrhistogram.Histogram

	count     int64
	successes int64
	failures  int64
	timeouts  int64
	aborted   int64

	// Sums in microseconds.
	sum   float64
	sumSq float64
	min   time.Duration
	max   time.Duration

	first time.Time
	last  time.Time

	checks map[string]*CheckStats
}

// NewRunning creates empty running aggregates.
func NewRunning() *Running {
	return &Running{
		hist:   hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs),
		checks: make(map[string]*CheckStats),
	}
}

// Add folds one outcome into the aggregates.
func (r *Running) Add(o Outcome) {
	lat := o.Latency()
	micros := clampMicros(lat)
	r.hist.RecordValue(micros)

	r.count++
	switch {
	case o.Success:
		r.successes++
	default:
		r.failures++
	}
	switch o.Kind {
	case KindTimeout:
		r.timeouts++
	case KindAborted:
		r.aborted++
	}

	us := float64(lat) / float64(time.Microsecond)
	r.sum += us
	r.sumSq += us * us
	if r.count == 1 || lat < r.min {
		r.min = lat
	}
	if lat > r.max {
		r.max = lat
	}
	if r.first.IsZero() || o.Start.Before(r.first) {
		r.first = o.Start
	}
	if o.End.After(r.last) {
		r.last = o.End
	}

	for _, c := range o.Checks {
		cs, ok := r.checks[c.Name]
		if !ok {
			cs = &CheckStats{Name: c.Name}
			r.checks[c.Name] = cs
		}
		if c.Passed {
			cs.Passes++
		} else {
			cs.Fails++
		}
	}
}

// Merge adds other's aggregates into r. other is left unchanged.
func (r *Running) Merge(other *Running) {
	if other == nil || other.count == 0 {
		return
	}
	r.hist.Merge(other.hist)

	if r.count == 0 || other.min < r.min {
		r.min = other.min
	}
	if other.max > r.max {
		r.max = other.max
	}
	if r.first.IsZero() || (!other.first.IsZero() && other.first.Before(r.first)) {
		r.first = other.first
	}
	if other.last.After(r.last) {
		r.last = other.last
	}

	r.count += other.count
	r.successes += other.successes
	r.failures += other.failures
	r.timeouts += other.timeouts
	r.aborted += other.aborted
	r.sum += other.sum
	r.sumSq += other.sumSq

	for name, oc := range other.checks {
		cs, ok := r.checks[name]
		if !ok {
			cs = &CheckStats{Name: name}
			r.checks[name] = cs
		}
		cs.Passes += oc.Passes
		cs.Fails += oc.Fails
	}
}

// Count returns the number of folded outcomes.
func (r *Running) Count() int64 {
	return r.count
}

// interpolatedQuantile estimates the p-th percentile (0 < p <= 100) in
// microseconds. The target rank is ceil(p/100 * n), matching nearest-rank;
// the value is interpolated linearly inside the bucket holding that rank.
func (r *Running) interpolatedQuantile(p float64) float64 {
	total := r.hist.TotalCount()
	if total == 0 {
		return 0
	}
	rank := math.Ceil(p / 100 * float64(total))
	if rank < 1 {
		rank = 1
	}

	var cum float64
	for _, bar := range r.hist.Distribution() {
		if bar.Count == 0 {
			continue
		}
		next := cum + float64(bar.Count)
		if next >= rank {
			frac := (rank - cum) / float64(bar.Count)
			return float64(bar.From) + frac*float64(bar.To-bar.From)
		}
		cum = next
	}
	return float64(r.hist.Max())
}

// quantile is interpolatedQuantile as a duration, kept within the exact
// min and max since a bucket may extend past the observed extremes.
func (r *Running) quantile(p float64) time.Duration {
	d := microsToDuration(r.interpolatedQuantile(p))
	if d < r.min {
		return r.min
	}
	if d > r.max {
		return r.max
	}
	return d
}

func clampMicros(d time.Duration) int64 {
	us := d.Microseconds()
	if us < histogramMin {
		return histogramMin
	}
	if us > histogramMax {
		return histogramMax
	}
	return us
}
