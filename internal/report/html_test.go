package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/volley/internal/load"
	"github.com/wesleyorama2/volley/internal/load/metrics"
)

func htmlSummary() *Summary {
	snap := testSnapshot()
	snap.Checks = []metrics.CheckStats{
		{Name: "status is 201 or 409", Passes: 200},
		{Name: "body contains <Deal>", Passes: 199, Fails: 1},
	}
	return &Summary{
		Name: "Deal API",
		Result: &load.Result{
			RunID:        "run-123",
			Start:        snap.First,
			End:          snap.Last,
			Snapshot:     snap,
			PeakInFlight: 10,
		},
		Thresholds: []ThresholdResult{
			{Metric: MetricIterationsFailed, Expression: "rate < 0.1", Passed: true, Value: "0.0500"},
		},
	}
}

func TestGenerateHTMLString(t *testing.T) {
	timeline := []TimelinePoint{
		{Elapsed: time.Second, ActiveVUs: 5, TargetVUs: 10, IntervalRate: 12.5, P95: 20 * time.Millisecond},
		{Elapsed: 2 * time.Second, ActiveVUs: 10, TargetVUs: 10, IntervalRate: 25, P95: 30 * time.Millisecond},
	}

	html, err := GenerateHTMLString(htmlSummary(), timeline)
	require.NoError(t, err)

	for _, want := range []string{
		"<!DOCTYPE html>",
		"<title>Deal API - Load Test Report</title>",
		"Run run-123",
		"&#10003; PASSED",
		"Throughput",
		"20.00 it/s",
		"95.00%",
		"350.00ms",
		"chart.js",
		"rateChart",
		"latencyChart",
		"vusChart",
		`"rate":12.5`,
		`"p95":30`,
		"status is 201 or 409",
		"body contains &lt;Deal&gt;",
		"rate &lt; 0.1",
	} {
		assert.Contains(t, html, want)
	}
}

func TestGenerateHTMLString_Failed(t *testing.T) {
	s := htmlSummary()
	s.Thresholds[0].Passed = false

	html, err := GenerateHTMLString(s, nil)
	require.NoError(t, err)
	assert.Contains(t, html, "&#10007; FAILED")
	assert.Contains(t, html, "const timeline = [];")
}

func TestGenerateHTMLString_NoIterations(t *testing.T) {
	s := &Summary{Name: "Empty", Result: &load.Result{Snapshot: &metrics.Snapshot{}}}

	html, err := GenerateHTMLString(s, nil)
	require.NoError(t, err)
	assert.Contains(t, html, "No iterations recorded.")
	assert.Contains(t, html, "n/a")
}

func TestGenerateHTMLString_NilResult(t *testing.T) {
	_, err := GenerateHTMLString(nil, nil)
	assert.Error(t, err)

	_, err = GenerateHTMLString(&Summary{Name: "x"}, nil)
	assert.Error(t, err)
}

func TestGenerateHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, GenerateHTML(htmlSummary(), nil, path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "<!DOCTYPE html>"))

	err = GenerateHTML(htmlSummary(), nil, filepath.Join(t.TempDir(), "missing", "report.html"))
	assert.Error(t, err)
}

func TestTimeline(t *testing.T) {
	tl := NewTimeline()

	snap := func(n int64) *metrics.Snapshot {
		return &metrics.Snapshot{TotalIterations: n, Latency: metrics.LatencyStats{P95: time.Duration(n) * time.Millisecond}}
	}

	tl.OnEvent(load.Event{Type: load.EventRunStarted})
	tl.OnEvent(load.Event{Type: load.EventSnapshot, Elapsed: time.Second, ActiveVUs: 2, Snapshot: snap(10)})
	tl.OnEvent(load.Event{Type: load.EventSnapshot, Elapsed: 3 * time.Second, ActiveVUs: 4, Snapshot: snap(50)})
	// Out-of-order sample is dropped.
	tl.OnEvent(load.Event{Type: load.EventSnapshot, Elapsed: 2 * time.Second, Snapshot: snap(30)})
	tl.OnEvent(load.Event{Type: load.EventCancelled, Elapsed: 4 * time.Second, Snapshot: snap(60)})
	tl.OnEvent(load.Event{Type: load.EventCompleted, Elapsed: 4 * time.Second, Snapshot: snap(60)})

	points := tl.Points()
	require.Len(t, points, 3)

	assert.Equal(t, int64(10), points[0].IntervalIterations)
	assert.InDelta(t, 10.0, points[0].IntervalRate, 1e-9)

	assert.Equal(t, int64(40), points[1].IntervalIterations)
	assert.InDelta(t, 20.0, points[1].IntervalRate, 1e-9)
	assert.Equal(t, 4, points[1].ActiveVUs)
	assert.Equal(t, 50*time.Millisecond, points[1].P95)

	assert.Equal(t, int64(60), points[2].Iterations)
	assert.InDelta(t, 10.0, points[2].IntervalRate, 1e-9)

	points[0].Iterations = 999
	assert.Equal(t, int64(10), tl.Points()[0].Iterations)
}
