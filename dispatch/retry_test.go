/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

func constDelay(d time.Duration) func() time.Duration {
	return func() time.Duration { return d }
}

func TestRetryPolicyDecide(t *testing.T) {
	errTransient := errors.New("transient")
	errFatal := errors.New("fatal")
	errThrottle := errors.New("throttle")

	policy := RetryPolicy{
		MaxAttempts: 3,
		IsRetryable: func(err error) bool { return errors.Is(err, errTransient) },
		IsRateLimit: func(err error) bool { return errors.Is(err, errThrottle) },
	}

	// Non-retryable errors fail immediately without being marked exhausted.
	d := policy.Decide(errFatal, 0, constDelay(time.Second))
	require.False(t, d.Retry)
	require.False(t, d.Exhausted)

	// Rate-limit errors are never retried by the policy.
	d = policy.Decide(errThrottle, 0, constDelay(time.Second))
	require.False(t, d.Retry)
	require.False(t, d.Exhausted)

	// Retryable errors are retried until the attempt cap.
	for attempt := 0; attempt < 3; attempt++ {
		d = policy.Decide(errTransient, attempt, constDelay(time.Second))
		require.True(t, d.Retry, "attempt %d should be retried", attempt)
		require.Equal(t, time.Second, d.Delay)
	}
	d = policy.Decide(errTransient, 3, constDelay(time.Second))
	require.False(t, d.Retry)
	require.True(t, d.Exhausted)
}

func TestRetryPolicyNoRetries(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: NoRetries, IsRetryable: func(error) bool { return true }}

	// Even a retryable first failure is terminal.
	d := policy.Decide(errors.New("transient"), 0, constDelay(time.Second))
	require.False(t, d.Retry)
	require.True(t, d.Exhausted)
}

func TestRetryPolicyDecideBackoffStop(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, IsRetryable: func(error) bool { return true }}
	d := policy.Decide(errors.New("transient"), 0, constDelay(backoff.Stop))
	require.False(t, d.Retry)
	require.True(t, d.Exhausted)
}

func TestRetryPolicyDefaults(t *testing.T) {
	var policy RetryPolicy
	require.Equal(t, DefaultMaxRetryAttempts, policy.maxAttempts())
	require.NotNil(t, policy.backoffPolicy())

	require.True(t, policy.isRetryable(io.EOF))
	require.True(t, policy.isRetryable(context.DeadlineExceeded))
	require.False(t, policy.isRetryable(errors.New("boom")))
	require.False(t, policy.isRateLimit(errors.New("boom")))
}

func TestExponentialBackoffPolicyDelays(t *testing.T) {
	policy := NewExponentialBackoffPolicy(time.Second, 10*time.Second)
	bf := policy.NewBackOff()

	// Jittered around 1s, 2s, 4s with the default randomization factor 0.5.
	for i, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		delay := bf.NextBackOff()
		require.NotEqual(t, backoff.Stop, delay)
		require.GreaterOrEqual(t, delay, want/2, "delay #%d", i)
		require.LessOrEqual(t, delay, want+want/2, "delay #%d", i)
	}
}

func TestDefaultBackoffPolicyNeverStops(t *testing.T) {
	bf := DefaultBackoffPolicy.NewBackOff()
	for i := 0; i < 50; i++ {
		delay := bf.NextBackOff()
		require.NotEqual(t, backoff.Stop, delay)
		require.LessOrEqual(t, delay, DefaultExponentialBackoffMaxInterval*3/2)
	}
}
