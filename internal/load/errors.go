package load

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAborted is the cause recorded for iterations abandoned when the drain
// grace period expired.
var ErrAborted = errors.New("iteration aborted: shutdown grace period exceeded")

// WorkloadError wraps an error returned, or a panic raised, by the workload.
type WorkloadError struct {
	VU        int
	Iteration int64
	Err       error
	Panic     any
}

func (e *WorkloadError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("vu %d iteration %d: workload panicked: %v", e.VU, e.Iteration, e.Panic)
	}
	return fmt.Sprintf("vu %d iteration %d: %v", e.VU, e.Iteration, e.Err)
}

func (e *WorkloadError) Unwrap() error {
	return e.Err
}

// TimeoutError reports an iteration that exceeded the per-iteration timeout.
type TimeoutError struct {
	VU        int
	Iteration int64
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("vu %d iteration %d: timed out after %v", e.VU, e.Iteration, e.Timeout)
}

// Is reports true for context.DeadlineExceeded.
func (e *TimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}
