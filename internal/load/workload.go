package load

import (
	"context"
	"sync"

	"github.com/wesleyorama2/volley/internal/load/metrics"
)

// Workload is the unit of work one iteration executes.
//
// Run is called repeatedly and independently, once per iteration, from many
// VUs at the same time. A non-nil error marks the iteration failed; named
// checks are reported through it.Check and do not affect success.
//
// ctx is not cancelled when the run ends or an operator interrupts it: the
// iteration is allowed to finish. It is cancelled when the per-iteration
// timeout expires or the shutdown grace period runs out.
//
// Run must honor ctx. A timed-out iteration is recorded when the timeout
// fires, but its VU slot stays taken until Run actually returns, so a Run
// that ignores ctx throttles its VU rather than piling up calls.
type Workload interface {
	Run(ctx context.Context, it *Iteration) error
}

// WorkloadFunc adapts a function to Workload.
type WorkloadFunc func(ctx context.Context, it *Iteration) error

// Run calls f(ctx, it).
func (f WorkloadFunc) Run(ctx context.Context, it *Iteration) error {
	return f(ctx, it)
}

// Iteration is the context handed to a workload for one execution.
type Iteration struct {
	// VU is the ID of the virtual user running this iteration.
	VU int

	// Number is the VU-local iteration counter, starting at 1.
	Number int64

	mu     sync.Mutex
	checks []metrics.Check
	sealed bool
}

// Check records a named assertion and returns passed, so it can be used
// inline:
//
//	if !it.Check("status is 201", resp.StatusCode == 201) { ... }
//
// Checks made after the iteration has been recorded (a workload still
// running past its timeout) are ignored.
func (it *Iteration) Check(name string, passed bool) bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if !it.sealed {
		it.checks = append(it.checks, metrics.Check{Name: name, Passed: passed})
	}
	return passed
}

// seal freezes the check list and returns it.
func (it *Iteration) seal() []metrics.Check {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.sealed = true
	return it.checks
}
