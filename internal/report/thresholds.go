// Package report renders run results and evaluates pass/fail thresholds.
package report

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/volley/internal/load/metrics"
)

// Metric names accepted in a thresholds block.
const (
	MetricIterationDuration = "iteration_duration"
	MetricIterationsFailed  = "iterations_failed"
	MetricIterations        = "iterations"
	MetricChecks            = "checks"
)

// Thresholds define pass/fail criteria for a run.
//
// Example YAML:
//
//	thresholds:
//	  iteration_duration: ["p95 < 500ms"]
//	  iterations_failed: ["rate < 0.05"]
//	  checks: ["rate > 0.99"]
type Thresholds struct {
	// IterationDuration thresholds (e.g., "p95 < 500ms")
	IterationDuration []string `yaml:"iteration_duration,omitempty" json:"iteration_duration,omitempty"`

	// IterationsFailed thresholds on the failure ratio (e.g., "rate < 0.01")
	IterationsFailed []string `yaml:"iterations_failed,omitempty" json:"iterations_failed,omitempty"`

	// Iterations thresholds on count or throughput (e.g., "count > 1000")
	Iterations []string `yaml:"iterations,omitempty" json:"iterations,omitempty"`

	// Checks thresholds on the overall check pass ratio (e.g., "rate > 0.99")
	Checks []string `yaml:"checks,omitempty" json:"checks,omitempty"`
}

// ThresholdResult is the outcome of one threshold expression.
type ThresholdResult struct {
	Metric     string `json:"metric"`
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Value      string `json:"value"`
	Message    string `json:"message,omitempty"`
}

// Threshold is a parsed threshold expression.
type Threshold struct {
	Metric string
	Stat   string
	Op     string
	// Value is in nanoseconds for iteration_duration.
	Value float64
}

var expressionPattern = regexp.MustCompile(`^(\w+)\s*([<>=!]+)\s*(.+)$`)

var validStats = map[string][]string{
	MetricIterationDuration: {"min", "max", "avg", "med", "p50", "p90", "p95", "p99"},
	MetricIterationsFailed:  {"rate"},
	MetricIterations:        {"count", "rate"},
	MetricChecks:            {"rate"},
}

// ParseThreshold parses an expression like "p95 < 500ms" for metric.
func ParseThreshold(metric, expr string) (Threshold, error) {
	stats, ok := validStats[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unknown metric: %s", metric)
	}

	matches := expressionPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if len(matches) != 4 {
		return Threshold{}, fmt.Errorf("invalid expression format: %s", expr)
	}
	t := Threshold{Metric: metric, Stat: matches[1], Op: matches[2]}

	if !slices.Contains(stats, t.Stat) {
		return Threshold{}, fmt.Errorf("%s only supports %s, got: %s", metric, strings.Join(stats, ", "), t.Stat)
	}
	switch t.Op {
	case "<", "<=", ">", ">=", "==", "=", "!=", "<>":
	default:
		return Threshold{}, fmt.Errorf("unknown operator: %s", t.Op)
	}

	valueStr := strings.TrimSpace(matches[3])
	if metric == MetricIterationDuration {
		d, err := time.ParseDuration(valueStr)
		if err != nil {
			return Threshold{}, fmt.Errorf("failed to parse threshold value: %w", err)
		}
		t.Value = float64(d)
		return t, nil
	}
	v, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("failed to parse threshold value: %w", err)
	}
	t.Value = v
	return t, nil
}

// Validate parses every expression and returns the errors found, each
// prefixed with its metric name.
func (t *Thresholds) Validate() []error {
	if t == nil {
		return nil
	}
	var errs []error
	t.each(func(metric, expr string) {
		if _, err := ParseThreshold(metric, expr); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", metric, err))
		}
	})
	return errs
}

// Empty reports whether no expression is configured.
func (t *Thresholds) Empty() bool {
	return t == nil || len(t.IterationDuration)+len(t.IterationsFailed)+len(t.Iterations)+len(t.Checks) == 0
}

func (t *Thresholds) each(fn func(metric, expr string)) {
	for _, e := range t.IterationDuration {
		fn(MetricIterationDuration, e)
	}
	for _, e := range t.IterationsFailed {
		fn(MetricIterationsFailed, e)
	}
	for _, e := range t.Iterations {
		fn(MetricIterations, e)
	}
	for _, e := range t.Checks {
		fn(MetricChecks, e)
	}
}

// Evaluate checks every threshold against a snapshot.
//
// A ratio threshold over an undefined ratio (no iterations, or no check
// evaluations) fails with value "n/a".
func Evaluate(t *Thresholds, snap *metrics.Snapshot) []ThresholdResult {
	if t.Empty() {
		return nil
	}
	var results []ThresholdResult
	t.each(func(metric, expr string) {
		results = append(results, evaluate(metric, expr, snap))
	})
	return results
}

func evaluate(metric, expr string, snap *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{Metric: metric, Expression: expr}

	th, err := ParseThreshold(metric, expr)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	switch metric {
	case MetricIterationDuration:
		actual := durationStat(th.Stat, snap.Latency)
		result.Value = actual.String()
		result.Passed = compareValues(float64(actual), th.Op, th.Value)
		if !result.Passed {
			result.Message = fmt.Sprintf("%s is %s, threshold: %s %s", th.Stat, actual, th.Op, time.Duration(th.Value))
		}

	case MetricIterationsFailed, MetricChecks:
		ratio := failureRatio(snap)
		if metric == MetricChecks {
			ratio = snap.CheckPassRate
		}
		actual, ok := ratio.Value()
		if !ok {
			result.Value = "n/a"
			result.Message = "rate is undefined: nothing was recorded"
			return result
		}
		result.Value = fmt.Sprintf("%.4f", actual)
		result.Passed = compareValues(actual, th.Op, th.Value)
		if !result.Passed {
			result.Message = fmt.Sprintf("rate is %.4f, threshold: %s %.4f", actual, th.Op, th.Value)
		}

	case MetricIterations:
		actual := float64(snap.TotalIterations)
		if th.Stat == "rate" {
			actual = snap.Throughput()
		}
		result.Value = fmt.Sprintf("%.2f", actual)
		result.Passed = compareValues(actual, th.Op, th.Value)
		if !result.Passed {
			result.Message = fmt.Sprintf("%s is %.2f, threshold: %s %.2f", th.Stat, actual, th.Op, th.Value)
		}
	}
	return result
}

// AllPassed reports whether every threshold passed.
func AllPassed(results []ThresholdResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

func failureRatio(snap *metrics.Snapshot) metrics.Ratio {
	return metrics.Ratio{Num: snap.Failures, Den: snap.TotalIterations}
}

func durationStat(stat string, l metrics.LatencyStats) time.Duration {
	switch stat {
	case "min":
		return l.Min
	case "max":
		return l.Max
	case "avg":
		return l.Mean
	case "med", "p50":
		return l.P50
	case "p90":
		return l.P90
	case "p95":
		return l.P95
	default:
		return l.P99
	}
}

// compareValues compares two values using the given operator.
func compareValues(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==", "=":
		return actual == threshold
	case "!=", "<>":
		return actual != threshold
	default:
		return false
	}
}
