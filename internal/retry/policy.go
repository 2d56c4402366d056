// Package retry centralizes timeout and backoff handling for remote steps.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Policy describes how a remote step is bounded and retried
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	StepTimeout     time.Duration

	// Limiter, when set, paces every attempt against the remote platform.
	Limiter *rate.Limiter
}

// DefaultPolicy returns the policy used when nothing is configured
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
		StepTimeout:     30 * time.Second,
	}
}

// TransientNetworkError is returned once a step exhausted its attempts
type TransientNetworkError struct {
	Step     string
	Attempts int
	Cause    error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network error: step %s failed after %d attempts: %v", e.Step, e.Attempts, e.Cause)
}

func (e *TransientNetworkError) Unwrap() error {
	return e.Cause
}

// Permanent marks an error as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	// attempts, not elapsed time, bound the loop
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempts run out.
// Each attempt gets its own StepTimeout-bounded context.
func (p Policy) Do(ctx context.Context, step string, fn func(ctx context.Context) error) error {
	attempt := 0
	var lastErr, permanent error

	operation := func() error {
		attempt++
		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				permanent = err
				return backoff.Permanent(err)
			}
		}

		attemptCtx := ctx
		cancel := func() {}
		if p.StepTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.StepTimeout)
		}
		defer cancel()

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		lastErr = err

		// the caller gave up, not the remote side
		if ctx.Err() != nil {
			permanent = ctx.Err()
			return backoff.Permanent(permanent)
		}
		if !IsTransient(err) {
			permanent = err
			return backoff.Permanent(err)
		}

		logrus.WithFields(logrus.Fields{
			"step":    step,
			"attempt": attempt,
		}).Debugf("Transient failure, will retry: %v", err)
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(p.attempts()-1)), ctx)
	err := backoff.Retry(operation, b)
	if err == nil {
		return nil
	}

	// Retry unwraps PermanentError itself, so the classification is kept here
	if permanent != nil {
		return permanent
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if lastErr == nil {
		lastErr = err
	}
	return &TransientNetworkError{Step: step, Attempts: attempt, Cause: lastErr}
}

var transientMarkers = []string{
	"timeout",
	"timed out",
	"connection reset",
	"temporarily unavailable",
	"eof",
	"timed_out",
	"err_network_changed",
}

// IsTransient reports whether err looks like a network hiccup that a retry can fix
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
