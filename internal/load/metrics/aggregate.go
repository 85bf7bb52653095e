package metrics

import (
	"math"
	"slices"
	"sort"
	"time"
)

// Aggregate computes a snapshot from retained outcomes.
//
// Percentiles use the nearest-rank method on the sorted latencies.
func Aggregate(outcomes []Outcome) *Snapshot {
	s := &Snapshot{}
	if len(outcomes) == 0 {
		s.Latency.Method = MethodNearestRank
		return s
	}

	latencies := make([]time.Duration, 0, len(outcomes))
	checks := make(map[string]*CheckStats)
	var sum, sumSq float64

	for _, o := range outcomes {
		s.TotalIterations++
		if o.Success {
			s.Successes++
		} else {
			s.Failures++
		}
		switch o.Kind {
		case KindTimeout:
			s.Timeouts++
		case KindAborted:
			s.Aborted++
		}
		if s.First.IsZero() || o.Start.Before(s.First) {
			s.First = o.Start
		}
		if o.End.After(s.Last) {
			s.Last = o.End
		}

		lat := o.Latency()
		latencies = append(latencies, lat)
		us := float64(lat) / float64(time.Microsecond)
		sum += us
		sumSq += us * us

		for _, c := range o.Checks {
			cs, ok := checks[c.Name]
			if !ok {
				cs = &CheckStats{Name: c.Name}
				checks[c.Name] = cs
			}
			if c.Passed {
				cs.Passes++
			} else {
				cs.Fails++
			}
		}
	}

	slices.Sort(latencies)
	n := len(latencies)
	s.Latency = LatencyStats{
		Min:    latencies[0],
		Max:    latencies[n-1],
		Mean:   microsToDuration(sum / float64(n)),
		StdDev: microsToDuration(stdDev(sum, sumSq, int64(n))),
		P50:    nearestRank(latencies, 50),
		P90:    nearestRank(latencies, 90),
		P95:    nearestRank(latencies, 95),
		P99:    nearestRank(latencies, 99),
		Count:  int64(n),
		Method: MethodNearestRank,
	}

	finish(s, checks)
	return s
}

// AggregateRunning computes a snapshot from streaming aggregates.
//
// Percentiles are interpolated within histogram buckets, so they can differ
// from the nearest-rank value of the same data by up to one bucket width.
func AggregateRunning(r *Running) *Snapshot {
	s := &Snapshot{Streaming: true}
	s.Latency.Method = MethodHistogram
	if r == nil || r.count == 0 {
		return s
	}

	s.TotalIterations = r.count
	s.Successes = r.successes
	s.Failures = r.failures
	s.Timeouts = r.timeouts
	s.Aborted = r.aborted
	s.First = r.first
	s.Last = r.last

	s.Latency = LatencyStats{
		Min:    r.min,
		Max:    r.max,
		Mean:   microsToDuration(r.sum / float64(r.count)),
		StdDev: microsToDuration(stdDev(r.sum, r.sumSq, r.count)),
		P50:    r.quantile(50),
		P90:    r.quantile(90),
		P95:    r.quantile(95),
		P99:    r.quantile(99),
		Count:  r.count,
		Method: MethodHistogram,
	}

	checks := make(map[string]*CheckStats, len(r.checks))
	for name, cs := range r.checks {
		c := *cs
		checks[name] = &c
	}
	finish(s, checks)
	return s
}

// finish fills the derived ratios and the sorted check list.
func finish(s *Snapshot, checks map[string]*CheckStats) {
	s.SuccessRate = Ratio{Num: s.Successes, Den: s.TotalIterations}

	s.Checks = make([]CheckStats, 0, len(checks))
	var passes, total int64
	for _, cs := range checks {
		s.Checks = append(s.Checks, *cs)
		passes += cs.Passes
		total += cs.Passes + cs.Fails
	}
	sort.Slice(s.Checks, func(i, j int) bool { return s.Checks[i].Name < s.Checks[j].Name })
	s.CheckPassRate = Ratio{Num: passes, Den: total}
}

// nearestRank returns the p-th percentile of sorted using rank ceil(p/100*n).
func nearestRank(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

func stdDev(sum, sumSq float64, n int64) float64 {
	if n < 2 {
		return 0
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		return 0
	}
	return math.Sqrt(variance)
}

func microsToDuration(us float64) time.Duration {
	return time.Duration(us * float64(time.Microsecond))
}
