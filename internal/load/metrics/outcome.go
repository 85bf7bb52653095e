// Package metrics records iteration outcomes and aggregates them into snapshots.
package metrics

import (
	"time"
)

// ErrorKind tags why an iteration failed.
type ErrorKind string

const (
	// KindNone marks a successful iteration.
	KindNone ErrorKind = ""
	// KindWorkload marks an error returned (or panic raised) by the workload.
	KindWorkload ErrorKind = "workload"
	// KindTimeout marks an iteration that exceeded the per-iteration timeout.
	KindTimeout ErrorKind = "timeout"
	// KindAborted marks an iteration abandoned when the drain grace period ran out.
	KindAborted ErrorKind = "aborted"
)

// Check is a single named assertion made by the workload during an iteration.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// Outcome is the result of exactly one iteration.
//
// Outcomes are values; once handed to Record they are never modified.
type Outcome struct {
	VU        int       `json:"vu"`
	Iteration int64     `json:"iteration"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Success   bool      `json:"success"`
	Err       error     `json:"-"`
	Kind      ErrorKind `json:"kind,omitempty"`
	Checks    []Check   `json:"checks,omitempty"`
}

// Latency returns the wall-clock duration of the iteration.
func (o Outcome) Latency() time.Duration {
	d := o.End.Sub(o.Start)
	if d < 0 {
		return 0
	}
	return d
}
