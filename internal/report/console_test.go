package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/volley/internal/load"
	"github.com/wesleyorama2/volley/internal/load/metrics"
)

func testSummary() *Summary {
	snap := testSnapshot()
	snap.Checks = []metrics.CheckStats{
		{Name: "response body contains Deal", Passes: 200, Fails: 0},
		{Name: "status is 201 or 409", Passes: 196, Fails: 4},
	}
	snap.Timeouts = 3
	snap.Latency.Method = metrics.MethodNearestRank
	return &Summary{
		Name: "deal api",
		Result: &load.Result{
			RunID:        "run-1",
			Start:        snap.First,
			End:          snap.Last,
			Snapshot:     snap,
			PeakInFlight: 10,
		},
		Thresholds: Evaluate(&Thresholds{IterationDuration: []string{"p95 < 500ms"}}, snap),
	}
}

func TestConsole_PrintSummary(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{TestName: "deal api", Writer: &buf, NoColor: true})

	c.PrintSummary(testSummary())
	out := buf.String()

	assert.Contains(t, out, "deal api - Completed ✓")
	assert.Contains(t, out, "Run ID:        run-1")
	assert.Contains(t, out, "Duration:      10.0s")
	assert.Contains(t, out, "Iterations:    200 (190 ok, 10 failed)")
	assert.Contains(t, out, "Timeouts:    3")
	assert.Contains(t, out, "Success Rate:  95.00%")
	assert.Contains(t, out, "Throughput:    20.00 it/s")
	assert.Contains(t, out, "✓ response body contains Deal  100.00% (200/200)")
	assert.Contains(t, out, "✗ status is 201 or 409  98.00% (196/200)")
	assert.Contains(t, out, "Latency Distribution (nearest-rank):")
	assert.Contains(t, out, "P95:       350.00ms")
	assert.Contains(t, out, "✓ iteration_duration p95 < 500ms (actual: 350ms)")
	assert.NotContains(t, out, "\033[", "colors disabled")
}

func TestConsole_PrintSummary_Failed(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{TestName: "x", Writer: &buf, NoColor: true})

	s := testSummary()
	s.Thresholds = Evaluate(&Thresholds{IterationDuration: []string{"p99 < 1ms"}}, s.Result.Snapshot)
	c.PrintSummary(s)

	assert.Contains(t, buf.String(), "Failed ✗")
	assert.Contains(t, buf.String(), "✗ iteration_duration p99 < 1ms")
}

func TestConsole_EmptySnapshot(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{TestName: "empty", Writer: &buf, NoColor: true})

	now := time.Now()
	c.PrintSummary(&Summary{
		Name:   "empty",
		Result: &load.Result{Start: now, End: now, Snapshot: &metrics.Snapshot{}},
	})

	assert.Contains(t, buf.String(), "Success Rate:  n/a")
	assert.Contains(t, buf.String(), "no iterations recorded")
}

func TestConsole_Quiet(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, Quiet: true, NoColor: true})

	c.PrintHeader(load.ConstantPlan(2, time.Second))
	c.Update(&LiveStats{Progress: 0.5})
	c.PrintSummary(testSummary())

	assert.Equal(t, "PASSED\n", buf.String())
}

func TestConsole_UpdateNonTTY(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true})
	require.False(t, c.IsTTY())

	c.Update(StatsFromLive(load.Live{
		Elapsed:    1500 * time.Millisecond,
		Stage:      0,
		TargetVUs:  10,
		ActiveVUs:  8,
		Iterations: 1234,
		Failures:   5,
	}, 0.25, 6*time.Second, 2))

	assert.Equal(t, "[1.5s] Progress: 25% | Stage: 1/2 | VUs: 8/10 | Iterations: 1234 | Failures: 5\n", buf.String())
}

func TestConsole_UpdateTTYRedraws(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true, ForceTTY: true})

	stats := &LiveStats{Progress: 0.5, CurrentStage: 1, TotalStages: 1, Iterations: 10}
	c.Update(stats)
	first := buf.Len()
	assert.Contains(t, buf.String(), "[████████████████████░░░░░░░░░░░░░░░░░░░░]")

	c.Update(stats)
	assert.Contains(t, buf.String()[first:], "\033[4A", "second update moves the cursor up over the previous block")
}

func TestPrintHeader(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{TestName: "ramp", Writer: &buf, NoColor: true})

	c.PrintHeader(load.Plan{Stages: []load.Stage{
		{Duration: 30 * time.Second, Target: 10, Ramp: load.RampLinear},
		{Duration: time.Minute, Target: 10},
	}})

	assert.Contains(t, buf.String(), "ramp - Running")
	assert.Contains(t, buf.String(), "Stages: 2 | Max VUs: 10 | Duration: 1m 30s")
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1,000", formatNumber(1000))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
	assert.Equal(t, "-12,345", formatNumber(-12345))

	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "2m 05s", formatDuration(125*time.Second))
	assert.Equal(t, "1h 01m 01s", formatDuration(time.Hour+61*time.Second))

	assert.Equal(t, "0ms", formatDurationShort(0))
	assert.Equal(t, "15µs", formatDurationShort(15*time.Microsecond))
	assert.Equal(t, "1.50s", formatDurationShort(1500*time.Millisecond))

	assert.Equal(t, "[░░░░]", renderProgressBar(-1, 4))
	assert.Equal(t, "[████]", renderProgressBar(2, 4))
}

func TestWriteJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteJSONFile(path, testSummary()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "run-1", got["runId"])
	assert.Equal(t, true, got["passed"])
	assert.EqualValues(t, 10000, got["durationMs"])
	assert.InDelta(t, 20.0, got["throughput"], 1e-9)

	snap := got["snapshot"].(map[string]any)
	assert.EqualValues(t, 200, snap["totalIterations"])
	assert.InDelta(t, 0.95, snap["successRate"], 1e-9)
}

func TestWriteJSON_UndefinedRatesAreNull(t *testing.T) {
	var buf bytes.Buffer
	now := time.Now()
	require.NoError(t, WriteJSON(&buf, &Summary{
		Result: &load.Result{Start: now, End: now, Snapshot: &metrics.Snapshot{}},
	}))
	assert.Contains(t, buf.String(), `"successRate": null`)
	assert.NotContains(t, buf.String(), "NaN")
}
