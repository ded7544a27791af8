package services

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy bounds automatic redispatch after transport failures. It is
// consulted by the dispatcher directly instead of leaning on a task queue's
// retry annotations, so it can be exercised in tests without one.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseBackoff: 2 * time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

// Allows reports whether another attempt may run given how many have already
// completed.
func (p RetryPolicy) Allows(attempts int) bool {
	return attempts < p.MaxAttempts
}

// Backoff returns the jittered delay before the given attempt number.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			d = p.MaxBackoff
			break
		}
	}
	// +/- 20% jitter
	delta := time.Duration(float64(d) * 0.2)
	if delta > 0 {
		d = d - delta + time.Duration(rand.Int63n(int64(2*delta)))
	}
	return d
}

// Sleep waits out the backoff for the given attempt, returning early if the
// context is done.
func (p RetryPolicy) Sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(p.Backoff(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
