package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/volley/internal/load/metrics"
)

func testSnapshot() *metrics.Snapshot {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &metrics.Snapshot{
		TotalIterations: 200,
		Successes:       190,
		Failures:        10,
		SuccessRate:     metrics.Ratio{Num: 190, Den: 200},
		CheckPassRate:   metrics.Ratio{Num: 399, Den: 400},
		Latency: metrics.LatencyStats{
			Min:   5 * time.Millisecond,
			Max:   900 * time.Millisecond,
			Mean:  80 * time.Millisecond,
			P50:   60 * time.Millisecond,
			P90:   200 * time.Millisecond,
			P95:   350 * time.Millisecond,
			P99:   700 * time.Millisecond,
			Count: 200,
		},
		First: start,
		Last:  start.Add(10 * time.Second),
	}
}

func TestParseThreshold(t *testing.T) {
	tests := []struct {
		name    string
		metric  string
		expr    string
		want    Threshold
		wantErr string
	}{
		{
			name:   "duration",
			metric: MetricIterationDuration,
			expr:   "p95 < 500ms",
			want:   Threshold{Metric: MetricIterationDuration, Stat: "p95", Op: "<", Value: float64(500 * time.Millisecond)},
		},
		{
			name:   "rate without spaces",
			metric: MetricIterationsFailed,
			expr:   "rate<=0.05",
			want:   Threshold{Metric: MetricIterationsFailed, Stat: "rate", Op: "<=", Value: 0.05},
		},
		{
			name:   "count",
			metric: MetricIterations,
			expr:   "  count > 100 ",
			want:   Threshold{Metric: MetricIterations, Stat: "count", Op: ">", Value: 100},
		},
		{name: "unknown metric", metric: "http_reqs", expr: "count > 1", wantErr: "unknown metric"},
		{name: "bad format", metric: MetricChecks, expr: "rate", wantErr: "invalid expression format"},
		{name: "unsupported stat", metric: MetricChecks, expr: "p95 > 0.9", wantErr: "only supports rate"},
		{name: "bad operator", metric: MetricChecks, expr: "rate =< 0.9", wantErr: "unknown operator"},
		{name: "bad duration", metric: MetricIterationDuration, expr: "p95 < fast", wantErr: "failed to parse threshold value"},
		{name: "bad number", metric: MetricIterationsFailed, expr: "rate < 5%", wantErr: "failed to parse threshold value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseThreshold(tt.metric, tt.expr)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate(t *testing.T) {
	th := &Thresholds{
		IterationDuration: []string{"p95 < 500ms", "p99 < 500ms", "med <= 60ms"},
		IterationsFailed:  []string{"rate < 0.1"},
		Iterations:        []string{"count >= 200", "rate > 50"},
		Checks:            []string{"rate > 0.99"},
	}

	results := Evaluate(th, testSnapshot())
	require.Len(t, results, 7)

	byExpr := make(map[string]ThresholdResult)
	for _, r := range results {
		byExpr[r.Metric+" "+r.Expression] = r
	}

	assert.True(t, byExpr["iteration_duration p95 < 500ms"].Passed)
	assert.Equal(t, "350ms", byExpr["iteration_duration p95 < 500ms"].Value)

	p99 := byExpr["iteration_duration p99 < 500ms"]
	assert.False(t, p99.Passed)
	assert.Contains(t, p99.Message, "p99 is 700ms")

	assert.True(t, byExpr["iteration_duration med <= 60ms"].Passed)

	failed := byExpr["iterations_failed rate < 0.1"]
	assert.True(t, failed.Passed)
	assert.Equal(t, "0.0500", failed.Value)

	assert.True(t, byExpr["iterations count >= 200"].Passed)
	rate := byExpr["iterations rate > 50"]
	assert.False(t, rate.Passed, "200 iterations over 10s is 20/s")
	assert.Equal(t, "20.00", rate.Value)

	assert.True(t, byExpr["checks rate > 0.99"].Passed)

	assert.False(t, AllPassed(results))
}

func TestEvaluate_UndefinedRatioFails(t *testing.T) {
	th := &Thresholds{
		IterationsFailed: []string{"rate < 0.05"},
		Checks:           []string{"rate > 0.9"},
	}

	results := Evaluate(th, &metrics.Snapshot{})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Passed)
		assert.Equal(t, "n/a", r.Value)
		assert.Contains(t, r.Message, "undefined")
	}
}

func TestEvaluate_InvalidExpressionFails(t *testing.T) {
	results := Evaluate(&Thresholds{Checks: []string{"bogus"}}, testSnapshot())
	require.Len(t, results, 1)
	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].Message, "invalid expression format")
}

func TestEvaluate_Empty(t *testing.T) {
	assert.Nil(t, Evaluate(nil, testSnapshot()))
	assert.Nil(t, Evaluate(&Thresholds{}, testSnapshot()))
	assert.True(t, AllPassed(nil))
}

func TestThresholds_Validate(t *testing.T) {
	var nilThresholds *Thresholds
	assert.Empty(t, nilThresholds.Validate())

	th := &Thresholds{
		IterationDuration: []string{"p95 < 500ms", "p42 < 1s"},
		Checks:            []string{"rate > x"},
	}
	errs := th.Validate()
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "iteration_duration:")
	assert.Contains(t, errs[1].Error(), "checks:")
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		actual    float64
		op        string
		threshold float64
		want      bool
	}{
		{1, "<", 2, true},
		{2, "<", 2, false},
		{2, "<=", 2, true},
		{3, ">", 2, true},
		{2, ">=", 2, true},
		{2, "==", 2, true},
		{2, "=", 2, true},
		{2, "!=", 2, false},
		{1, "<>", 2, true},
		{1, "~", 2, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, compareValues(tt.actual, tt.op, tt.threshold), "%v %s %v", tt.actual, tt.op, tt.threshold)
	}
}
