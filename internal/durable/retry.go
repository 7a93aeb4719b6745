package durable

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
)

const (
	defaultMaxRetryInterval = time.Minute
	defaultBackoffCoeff     = 1.0
)

// RetryOptions bounds how often a failed activity or sub-orchestration is retried.
type RetryOptions struct {
	FirstRetryInterval  time.Duration
	MaxNumberOfAttempts int
	BackoffCoefficient  float64
	MaxRetryInterval    time.Duration
}

func NewRetryOptions(firstRetryInterval time.Duration, maxNumberOfAttempts int) RetryOptions {
	return RetryOptions{
		FirstRetryInterval:  firstRetryInterval,
		MaxNumberOfAttempts: maxNumberOfAttempts,
		BackoffCoefficient:  defaultBackoffCoeff,
		MaxRetryInterval:    defaultMaxRetryInterval,
	}
}

func (o RetryOptions) attempts() int {
	if o.MaxNumberOfAttempts < 1 {
		return 1
	}
	return o.MaxNumberOfAttempts
}

func (o RetryOptions) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.FirstRetryInterval
	eb.RandomizationFactor = 0
	eb.Multiplier = o.BackoffCoefficient
	if eb.Multiplier < 1 {
		eb.Multiplier = defaultBackoffCoeff
	}
	eb.MaxInterval = o.MaxRetryInterval
	if eb.MaxInterval <= 0 {
		eb.MaxInterval = defaultMaxRetryInterval
	}
	eb.MaxElapsedTime = 0
	eb.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(o.attempts()-1)), ctx)
}

// retry runs op until it succeeds, the attempts are used up, the context ends,
// or op returns an error that can never succeed.
func retry(ctx context.Context, opts RetryOptions, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, opts.backOff(ctx))
}

func isPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm) ||
		errors.Is(err, ErrUnknownName) ||
		errors.Is(err, ErrNonDeterministic) ||
		errors.Is(err, ErrLeaseLost) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
