/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"errors"
	"fmt"
)

// ErrQueueSaturated is returned by Enqueue when the configured maximum number
// of pending requests is exceeded. Callers fail fast instead of growing the
// queue without bound.
var ErrQueueSaturated = errors.New("dispatch: request queue is saturated")

// ErrDispatcherClosed is returned by Enqueue after the dispatcher has been stopped.
var ErrDispatcherClosed = errors.New("dispatch: dispatcher is closed")

// errAbandoned resolves entries whose waiters all stopped waiting before dispatch.
var errAbandoned = errors.New("dispatch: request abandoned by all waiters")

// ValidationError is returned for requests with bad parameters.
// Such requests are never enqueued and never retried.
type ValidationError struct {
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "invalid request: " + e.Message
}

// ExhaustedRetriesError is a terminal error wrapping the last underlying
// failure after the retry budget has been spent.
type ExhaustedRetriesError struct {
	// Attempts is the total number of physical calls made.
	Attempts int

	// Err is the error of the last attempt.
	Err error
}

// Error implements the error interface.
func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %s", e.Attempts, e.Err.Error())
}

// Unwrap returns the next error in the error chain.
func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Err
}
