package essync

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// RetryPolicy is an exponential backoff applied to the infrastructure calls
// of the pipeline.
type RetryPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is the randomization factor, between 0 and 1.
	Jitter float64
	// MaxAttempts bounds the number of calls. Zero retries forever.
	MaxAttempts int
}

// DefaultRetryPolicy retries forever, starting at one second and doubling up
// to a minute between attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Initial:    time.Second,
		Max:        time.Minute,
		Multiplier: 2,
		Jitter:     0.1,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	eb.MaxInterval = p.Max
	eb.Multiplier = p.Multiplier
	eb.RandomizationFactor = p.Jitter
	eb.MaxElapsedTime = 0
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = backoff.DefaultInitialInterval
	}
	if eb.MaxInterval < eb.InitialInterval {
		eb.MaxInterval = eb.InitialInterval
	}
	if eb.Multiplier < 1 {
		eb.Multiplier = 1
	}
	var b backoff.BackOff = eb
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// Do calls fn until it succeeds, returns a permanent error, the attempts run
// out or ctx is done. Each failed attempt which will be retried is logged.
// The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, log logrus.FieldLogger, stats Statter, op string, fn func() error) error {
	attempt := 0
	wrapped := func() error {
		attempt++
		err := fn()
		if err != nil && IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		stats.Count(StatRetries, 1, 1, "op:"+op)
		log.WithError(err).WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"wait":    wait,
		}).Warn("retrying")
	}
	return backoff.RetryNotify(wrapped, p.backOff(ctx), notify)
}
