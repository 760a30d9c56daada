// Package retry implements jittered exponential backoff for startup
// calls that have to survive flaky broker connectivity.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy bundles the attempt budget, the backoff curve and the error
// classifier for one class of calls.
type Policy struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration

	// Permanent reports errors that are not worth retrying, such as
	// rejected credentials. Nil retries every error. Context
	// cancellation is always permanent.
	Permanent func(error) bool
}

// Startup covers broker login and the instrument master download.
var Startup = Policy{
	Attempts:   3,
	Backoff:    100 * time.Millisecond,
	MaxBackoff: 2 * time.Second,
}

// Do runs fn until it succeeds, a permanent error surfaces or the
// attempt budget runs out. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	backoff := p.Backoff
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if p.Permanent != nil && p.Permanent(err) {
			return err
		}
		if attempt >= p.Attempts {
			return err
		}

		// up to 50% jitter on top of the doubling backoff
		wait := backoff + time.Duration(rand.Int63n(int64(backoff/2)+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		backoff = min(backoff*2, p.MaxBackoff)
	}
}
