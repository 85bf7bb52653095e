package observe

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wesleyorama2/volley/internal/load"
	"github.com/wesleyorama2/volley/internal/load/metrics"
)

const namespace = "volley"

// Prometheus exposes run progress as Prometheus metrics.
//
// VU gauges follow every event; iteration, latency and check series are
// refreshed from the snapshot carried by snapshot and completed events.
// Snapshots carry running totals, so the iteration and check counters are
// advanced by the difference from the last total seen. Both counter vectors
// are reset when a new run starts.
type Prometheus struct {
	registry *prometheus.Registry

	runInfo    *prometheus.GaugeVec
	activeVUs  prometheus.Gauge
	targetVUs  prometheus.Gauge
	stage      prometheus.Gauge
	iterations *prometheus.CounterVec
	latency    *prometheus.GaugeVec
	checks     *prometheus.CounterVec
	throughput prometheus.Gauge
	abandoned  prometheus.Gauge

	mu   sync.Mutex
	seen map[string]float64
}

var _ load.Observer = (*Prometheus)(nil)

// NewPrometheus creates the collectors on a private registry.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		seen:     make(map[string]float64),
		runInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_info",
			Help:      "Set to 1 for the current run.",
		}, []string{"run_id"}),
		activeVUs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_vus",
			Help:      "Virtual users currently running.",
		}),
		targetVUs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_vus",
			Help:      "Virtual users the current stage asks for.",
		}),
		stage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage",
			Help:      "Index of the current stage.",
		}),
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Iterations recorded in the current run, by result.",
		}, []string{"result"}),
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "iteration_duration_seconds",
			Help:      "Iteration latency statistics from the latest snapshot.",
		}, []string{"stat"}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Check evaluations recorded in the current run, by check and result.",
		}, []string{"check", "result"}),
		throughput: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "iterations_per_second",
			Help:      "Iterations per second over the observed window.",
		}),
		abandoned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "abandoned_vus",
			Help:      "VUs still running when the drain grace period expired.",
		}),
	}

	p.registry.MustRegister(
		p.runInfo,
		p.activeVUs,
		p.targetVUs,
		p.stage,
		p.iterations,
		p.latency,
		p.checks,
		p.throughput,
		p.abandoned,
	)
	return p
}

// Registry returns the registry the collectors are registered on.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// OnEvent updates the collectors from e.
func (p *Prometheus) OnEvent(e load.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Type {
	case load.EventRunStarted:
		p.runInfo.Reset()
		p.runInfo.WithLabelValues(e.RunID).Set(1)
		p.iterations.Reset()
		p.checks.Reset()
		clear(p.seen)
	case load.EventDrainTimeout:
		p.abandoned.Set(float64(e.Abandoned))
	}

	p.activeVUs.Set(float64(e.ActiveVUs))
	p.targetVUs.Set(float64(e.TargetVUs))
	p.stage.Set(float64(e.Stage))

	if e.Snapshot != nil {
		p.observeSnapshot(e.Snapshot)
	}
}

func (p *Prometheus) observeSnapshot(s *metrics.Snapshot) {
	p.advance(p.iterations, s.Successes, "success")
	p.advance(p.iterations, s.Failures, "failure")
	p.advance(p.iterations, s.Timeouts, "timeout")
	p.advance(p.iterations, s.Aborted, "aborted")
	p.throughput.Set(s.Throughput())

	if s.Latency.Count > 0 {
		for stat, d := range map[string]float64{
			"min":  s.Latency.Min.Seconds(),
			"mean": s.Latency.Mean.Seconds(),
			"p50":  s.Latency.P50.Seconds(),
			"p90":  s.Latency.P90.Seconds(),
			"p95":  s.Latency.P95.Seconds(),
			"p99":  s.Latency.P99.Seconds(),
			"max":  s.Latency.Max.Seconds(),
		} {
			p.latency.WithLabelValues(stat).Set(d)
		}
	}

	for _, c := range s.Checks {
		p.advance(p.checks, c.Passes, c.Name, "pass")
		p.advance(p.checks, c.Fails, c.Name, "fail")
	}
}

// advance moves the counter up to total. A total below the last one seen
// is ignored; counters never go down within a run.
func (p *Prometheus) advance(c *prometheus.CounterVec, total int64, labels ...string) {
	counter := c.WithLabelValues(labels...)
	key := strings.Join(labels, "\xff")
	if c == p.checks {
		key = "checks\xff" + key
	}
	if d := float64(total) - p.seen[key]; d > 0 {
		counter.Add(d)
		p.seen[key] = float64(total)
	}
}
