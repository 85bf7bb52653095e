package governor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket is a rate gate that allows bursts of up to burst starts.
type TokenBucket struct {
	limiter *rate.Limiter
	granted atomic.Int64
}

// NewTokenBucket creates a token bucket refilling at r tokens per second.
func NewTokenBucket(r float64, burst int) *TokenBucket {
	return &TokenBucket{limiter: rate.NewLimiter(rate.Limit(r), burst)}
}

// Wait blocks until a token is available or ctx ends.
//
// A limiter whose burst is below one can never hand out a token; that is
// reported as ErrDeniedPermanently rather than as a stop.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	if err := tb.limiter.Wait(ctx); err != nil {
		if tb.limiter.Burst() < 1 {
			return fmt.Errorf("%w: %v", ErrDeniedPermanently, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// The next token lies beyond ctx's deadline.
		return context.DeadlineExceeded
	}
	tb.granted.Add(1)
	return nil
}

// Stats returns reservation statistics.
func (tb *TokenBucket) Stats() GateStats {
	return GateStats{
		Rate:    float64(tb.limiter.Limit()),
		Burst:   tb.limiter.Burst(),
		Granted: tb.granted.Load(),
	}
}

// GateStats describes a rate gate's activity.
type GateStats struct {
	Rate      float64       `json:"rate"`
	Burst     int           `json:"burst,omitempty"`
	Granted   int64         `json:"granted"`
	TotalWait time.Duration `json:"totalWait,omitempty"`
}
