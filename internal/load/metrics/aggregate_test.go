package metrics

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// outcome builds an outcome starting at offset with the given latency.
func outcome(vu int, offset, latency time.Duration, success bool, checks ...Check) Outcome {
	o := Outcome{
		VU:      vu,
		Start:   base.Add(offset),
		End:     base.Add(offset + latency),
		Success: success,
		Checks:  checks,
	}
	if !success {
		o.Kind = KindWorkload
		o.Err = errors.New("boom")
	}
	return o
}

func TestAggregate_Empty(t *testing.T) {
	s := Aggregate(nil)

	assert.Zero(t, s.TotalIterations)
	_, ok := s.SuccessRate.Value()
	assert.False(t, ok, "success rate of no iterations is undefined")
	assert.Equal(t, "n/a", s.SuccessRate.String())
	assert.Equal(t, MethodNearestRank, s.Latency.Method)
	assert.Zero(t, s.Throughput())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"successRate":null`)
}

func TestAggregate_NearestRank(t *testing.T) {
	// Latencies 1ms..100ms.
	var outcomes []Outcome
	for i := 1; i <= 100; i++ {
		outcomes = append(outcomes, outcome(1, time.Duration(i)*time.Second, time.Duration(i)*time.Millisecond, true))
	}

	s := Aggregate(outcomes)
	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"min", s.Latency.Min, time.Millisecond},
		{"max", s.Latency.Max, 100 * time.Millisecond},
		{"p50", s.Latency.P50, 50 * time.Millisecond},
		{"p90", s.Latency.P90, 90 * time.Millisecond},
		{"p95", s.Latency.P95, 95 * time.Millisecond},
		{"p99", s.Latency.P99, 99 * time.Millisecond},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	// mean of 1..100ms
	assert.InDelta(t, float64(50500*time.Microsecond), float64(s.Latency.Mean), float64(time.Microsecond))
	assert.Equal(t, int64(100), s.Latency.Count)
}

func TestAggregate_NearestRankSmallSample(t *testing.T) {
	outcomes := []Outcome{
		outcome(1, 0, 30*time.Millisecond, true),
		outcome(1, 0, 10*time.Millisecond, true),
		outcome(1, 0, 20*time.Millisecond, true),
	}
	s := Aggregate(outcomes)

	// rank ceil(0.5*3)=2, ceil(0.99*3)=3
	assert.Equal(t, 20*time.Millisecond, s.Latency.P50)
	assert.Equal(t, 30*time.Millisecond, s.Latency.P99)
}

func TestAggregate_CountsAndChecks(t *testing.T) {
	timeout := outcome(2, 0, time.Second, false)
	timeout.Kind = KindTimeout
	aborted := outcome(3, 0, time.Second, false)
	aborted.Kind = KindAborted

	outcomes := []Outcome{
		outcome(1, 0, time.Millisecond, true, Check{"status", true}, Check{"body", true}),
		outcome(1, time.Second, time.Millisecond, true, Check{"status", true}, Check{"body", false}),
		outcome(2, 0, time.Millisecond, false, Check{"status", false}),
		timeout,
		aborted,
	}

	s := Aggregate(outcomes)
	assert.Equal(t, int64(5), s.TotalIterations)
	assert.Equal(t, int64(2), s.Successes)
	assert.Equal(t, int64(3), s.Failures)
	assert.Equal(t, int64(1), s.Timeouts)
	assert.Equal(t, int64(1), s.Aborted)
	assert.Equal(t, s.TotalIterations, s.Successes+s.Failures)

	rate, ok := s.SuccessRate.Value()
	require.True(t, ok)
	assert.InDelta(t, 0.4, rate, 1e-9)

	require.Len(t, s.Checks, 2)
	assert.Equal(t, "body", s.Checks[0].Name, "checks are sorted by name")
	status, ok := s.Check("status")
	require.True(t, ok)
	assert.Equal(t, int64(2), status.Passes)
	assert.Equal(t, int64(1), status.Fails)

	// 3 passes of 5 check results
	v, ok := s.CheckPassRate.Value()
	require.True(t, ok)
	assert.InDelta(t, 0.6, v, 1e-9)

	_, ok = s.Check("missing")
	assert.False(t, ok)
}

func TestSnapshot_Throughput(t *testing.T) {
	outcomes := []Outcome{
		outcome(1, 0, 100*time.Millisecond, true),
		outcome(1, 1900*time.Millisecond, 100*time.Millisecond, true),
		outcome(2, time.Second, 100*time.Millisecond, true),
		outcome(2, 1500*time.Millisecond, 100*time.Millisecond, true),
	}
	s := Aggregate(outcomes)

	// 4 iterations over First..Last = 2s
	assert.InDelta(t, 2.0, s.Throughput(), 1e-9)
}

func TestOutcome_LatencyNeverNegative(t *testing.T) {
	o := Outcome{Start: base.Add(time.Second), End: base}
	assert.Equal(t, time.Duration(0), o.Latency())
}

func TestRatio(t *testing.T) {
	tests := []struct {
		name  string
		ratio Ratio
		str   string
		json  string
	}{
		{"undefined", Ratio{}, "n/a", "null"},
		{"half", Ratio{Num: 1, Den: 2}, "50.00%", "0.5"},
		{"all", Ratio{Num: 3, Den: 3}, "100.00%", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.str, tt.ratio.String())
			data, err := json.Marshal(tt.ratio)
			require.NoError(t, err)
			assert.Equal(t, tt.json, string(data))
		})
	}
}

func TestAggregateRunning_MatchesExactCounts(t *testing.T) {
	var outcomes []Outcome
	r := NewRunning()
	for i := 1; i <= 1000; i++ {
		o := outcome(i%7, time.Duration(i)*time.Millisecond, time.Duration(i)*time.Millisecond, i%10 != 0, Check{"c", i%3 == 0})
		outcomes = append(outcomes, o)
		r.Add(o)
	}

	exact := Aggregate(outcomes)
	streamed := AggregateRunning(r)

	assert.True(t, streamed.Streaming)
	assert.Equal(t, MethodHistogram, streamed.Latency.Method)
	assert.Equal(t, exact.TotalIterations, streamed.TotalIterations)
	assert.Equal(t, exact.Successes, streamed.Successes)
	assert.Equal(t, exact.Failures, streamed.Failures)
	assert.Equal(t, exact.Checks, streamed.Checks)
	assert.Equal(t, exact.Latency.Min, streamed.Latency.Min)
	assert.Equal(t, exact.Latency.Max, streamed.Latency.Max)
	assert.InDelta(t, float64(exact.Latency.Mean), float64(streamed.Latency.Mean), float64(time.Microsecond))
	assert.Equal(t, exact.First, streamed.First)
	assert.Equal(t, exact.Last, streamed.Last)

	// 3 significant figures: within 0.1% plus a bucket.
	for _, pair := range [][2]time.Duration{
		{exact.Latency.P50, streamed.Latency.P50},
		{exact.Latency.P95, streamed.Latency.P95},
		{exact.Latency.P99, streamed.Latency.P99},
	} {
		assert.InEpsilon(t, float64(pair[0]), float64(pair[1]), 0.01)
	}
}

func TestRunning_Merge(t *testing.T) {
	a, b := NewRunning(), NewRunning()
	a.Add(outcome(1, 0, 5*time.Millisecond, true))
	b.Add(outcome(2, time.Second, 50*time.Millisecond, false))
	b.Add(outcome(2, 2*time.Second, time.Millisecond, true))

	a.Merge(b)
	a.Merge(nil)
	a.Merge(NewRunning())

	s := AggregateRunning(a)
	assert.Equal(t, int64(3), s.TotalIterations)
	assert.Equal(t, int64(1), s.Failures)
	assert.Equal(t, time.Millisecond, s.Latency.Min)
	assert.Equal(t, 50*time.Millisecond, s.Latency.Max)
	assert.Equal(t, base, s.First)
	assert.Equal(t, int64(2), b.Count(), "merge source is unchanged")
}
