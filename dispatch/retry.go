/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"errors"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default retry parameters.
const (
	DefaultMaxRetryAttempts                  = 3
	DefaultExponentialBackoffInitialInterval = time.Second
	DefaultExponentialBackoffMaxInterval     = 30 * time.Second
	DefaultExponentialBackoffMultiplier      = 2
)

// NoRetries should be used as RetryPolicy.MaxAttempts value
// when failed upstream calls must not be retried at all.
const NoRetries = -1

// BackoffPolicy produces a fresh backoff schedule for one queued request.
type BackoffPolicy interface {
	NewBackOff() backoff.BackOff
}

// The BackoffPolicyFunc type is an adapter to allow the use of ordinary functions as BackoffPolicy.
type BackoffPolicyFunc func() backoff.BackOff

// NewBackOff implements BackoffPolicy.
func (f BackoffPolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// DefaultBackoffPolicy is a jittered exponential backoff with a capped interval.
var DefaultBackoffPolicy BackoffPolicy = BackoffPolicyFunc(func() backoff.BackOff {
	bf := backoff.NewExponentialBackOff()
	bf.InitialInterval = DefaultExponentialBackoffInitialInterval
	bf.Multiplier = DefaultExponentialBackoffMultiplier
	bf.MaxInterval = DefaultExponentialBackoffMaxInterval
	bf.MaxElapsedTime = 0
	bf.Reset()
	return bf
})

// ExponentialBackoffPolicy produces jittered exponential backoff schedules.
type ExponentialBackoffPolicy struct {
	initialInterval time.Duration
	maxInterval     time.Duration
}

// NewExponentialBackoffPolicy returns an exponential backoff policy with the
// given initial and maximum intervals.
func NewExponentialBackoffPolicy(initialInterval, maxInterval time.Duration) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{initialInterval, maxInterval}
}

// NewBackOff implements BackoffPolicy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	bf := backoff.NewExponentialBackOff()
	bf.InitialInterval = p.initialInterval
	bf.Multiplier = DefaultExponentialBackoffMultiplier
	bf.MaxInterval = p.maxInterval
	bf.MaxElapsedTime = 0
	bf.Reset()
	return bf
}

// Decision is the outcome of RetryPolicy.Decide for one failed attempt.
type Decision struct {
	// Retry tells the dispatcher to re-enqueue the request after Delay.
	Retry bool

	// Delay is the backoff delay before the next attempt.
	Delay time.Duration

	// Exhausted is set when the error was retryable but the attempt cap has
	// been reached; the dispatcher wraps the error in ExhaustedRetriesError.
	Exhausted bool
}

// RetryPolicy decides whether a failed attempt should be retried and with what
// delay. It is free of I/O and side effects: the dispatcher owns re-enqueueing,
// the policy only classifies errors and produces delays.
type RetryPolicy struct {
	// MaxAttempts is the number of retries after the first call.
	// DefaultMaxRetryAttempts is used when 0; NoRetries disables retries.
	MaxAttempts int

	// Backoff produces per-request delay schedules. DefaultBackoffPolicy is used when nil.
	Backoff BackoffPolicy

	// IsRetryable classifies errors worth retrying.
	// By default, timeouts, temporary transport errors and io.EOF are retryable.
	IsRetryable func(error) bool

	// IsRateLimit classifies upstream rate-limit errors. Such errors are never
	// retried by this policy; the dispatcher handles them via access-mode fallback.
	IsRateLimit func(error) bool
}

// Decide returns the retry decision for a failed attempt. attempt is the
// 0-based index of the attempt that just failed; nextDelay provides the next
// delay from the request's own backoff schedule.
func (p RetryPolicy) Decide(err error, attempt int, nextDelay func() time.Duration) Decision {
	if p.isRateLimit(err) || !p.isRetryable(err) {
		return Decision{}
	}
	if attempt >= p.maxAttempts() {
		return Decision{Exhausted: true}
	}
	delay := nextDelay()
	if delay == backoff.Stop {
		return Decision{Exhausted: true}
	}
	return Decision{Retry: true, Delay: delay}
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts == 0 {
		return DefaultMaxRetryAttempts
	}
	if p.MaxAttempts < 0 {
		return 0
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backoffPolicy() BackoffPolicy {
	if p.Backoff != nil {
		return p.Backoff
	}
	return DefaultBackoffPolicy
}

func (p RetryPolicy) isRetryable(err error) bool {
	if p.IsRetryable != nil {
		return p.IsRetryable(err)
	}
	return CheckErrorIsTemporary(err)
}

func (p RetryPolicy) isRateLimit(err error) bool {
	if p.IsRateLimit != nil {
		return p.IsRateLimit(err)
	}
	return false
}

// CheckErrorIsTemporary checks either error is temporary or not.
func CheckErrorIsTemporary(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return true
	}
	var tempErr interface{ Temporary() bool }
	return errors.As(err, &tempErr) && tempErr.Temporary()
}
