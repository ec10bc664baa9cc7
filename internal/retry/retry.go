// Package retry runs fallible operations under a bounded retry policy.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// Policy bounds an operation to 1+MaxRetries attempts with a fixed Delay between them.
type Policy struct {
	MaxRetries int
	Delay      time.Duration
}

// Attempts is the total number of calls the policy allows.
func (p Policy) Attempts() int { return p.normalized().MaxRetries + 1 }

func (p Policy) normalized() Policy {
	// failsafe treats -1 as unlimited; a policy here is always bounded
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

type options struct {
	abortOn []error
	onRetry func()
}

type Option func(*options)

// AbortOn stops retrying as soon as fn returns an error matching one of errs.
func AbortOn(errs ...error) Option {
	return func(o *options) { o.abortOn = append(o.abortOn, errs...) }
}

// OnRetry is called before every retry attempt.
func OnRetry(f func()) Option {
	return func(o *options) { o.onRetry = f }
}

// ErrExhausted wraps the last error once the policy runs out of attempts.
var ErrExhausted = errors.New("retries exhausted")

// Do calls fn until it succeeds, hits an abort error, exhausts the policy or ctx ends.
func Do[T any](ctx context.Context, p Policy, fn func() (T, error), opts ...Option) (T, error) {
	p = p.normalized()
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	var lastErr error
	aborted := false
	b := retrypolicy.NewBuilder[T]().
		WithMaxRetries(p.MaxRetries)
	if p.Delay > 0 {
		b = b.WithDelay(p.Delay)
	}
	if len(o.abortOn) > 0 {
		b = b.AbortOnErrors(o.abortOn...)
	}
	if o.onRetry != nil {
		b = b.OnRetry(func(failsafe.ExecutionEvent[T]) { o.onRetry() })
	}
	out, err := failsafe.With[T](b.Build()).WithContext(ctx).Get(func() (T, error) {
		v, err := fn()
		lastErr = err
		if err != nil {
			for _, a := range o.abortOn {
				if errors.Is(err, a) {
					aborted = true
				}
			}
		}
		return v, err
	})
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, ctxErr
	}
	if lastErr == nil {
		return out, err
	}
	if aborted {
		return out, lastErr
	}
	return out, errors.Join(ErrExhausted, lastErr)
}
