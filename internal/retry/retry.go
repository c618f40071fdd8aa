// Package retry runs an operation until it succeeds or a bounded exponential
// backoff budget is spent.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Defaults mirror the contention profile of short-lived attribute locks.
const (
	DefaultInitialInterval = 5 * time.Millisecond
	DefaultMaxInterval     = 320 * time.Millisecond
	DefaultMaxRetries      = 20
)

// Policy describes the backoff schedule.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// DefaultPolicy returns the 5ms-doubling, 20-retry schedule.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		MaxRetries:      DefaultMaxRetries,
	}
}

// Notify is called before every retry with the 1-based number of the attempt
// about to run and the error of the previous one.
type Notify func(attempt int, err error)

// Do runs op with the default policy.
func Do(ctx context.Context, op func() error, notify Notify) error {
	return DefaultPolicy().Do(ctx, op, notify)
}

// Do runs op until it returns nil, the retries are exhausted or ctx is done.
// The last error is returned on failure. Errors wrapped with Permanent stop
// the loop immediately.
func (p Policy) Do(ctx context.Context, op func() error, notify Notify) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	attempt := 1
	return backoff.RetryNotify(op,
		backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx),
		func(err error, _ time.Duration) {
			attempt++
			if notify != nil {
				notify(attempt, err)
			}
		})
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
