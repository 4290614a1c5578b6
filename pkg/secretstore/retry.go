package secretstore

import (
	"context"
	"time"

	"github.com/googleapis/gax-go/v2"
)

// RetryPolicy bounds retries of transient failures. The zero value means a
// single attempt per call.
//
// AddVersion is never retried: a lost response would otherwise create a
// second version for one logical write.
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy is a conservative policy suitable for interactive use.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Initial:     200 * time.Millisecond,
		Max:         2 * time.Second,
		Multiplier:  2,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backoff() *gax.Backoff {
	return &gax.Backoff{
		Initial:    p.Initial,
		Max:        p.Max,
		Multiplier: p.Multiplier,
	}
}

// retry runs fn until it succeeds, fails with a non-transient error, or the
// attempt budget is spent. fn receives the 1-based attempt number.
func (p RetryPolicy) retry(ctx context.Context, fn func(attempt int) error) error {
	bo := p.backoff()
	max := p.attempts()
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil || !IsTransient(err) || attempt >= max {
			return err
		}
		if serr := gax.Sleep(ctx, bo.Pause()); serr != nil {
			return err
		}
	}
}
