/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package stackexchange

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Stack Exchange API error identifiers (the error_id envelope field).
const (
	ErrorIDBadParameter      = 400
	ErrorIDAccessTokenError  = 401
	ErrorIDKeyRevoked        = 403
	ErrorIDThrottleViolation = 502
)

const errorNameThrottleViolation = "throttle_violation"

// APIError is an error returned by a Stack Exchange API endpoint.
// The API reports errors both via HTTP status codes and via the
// error_id/error_name/error_message envelope fields.
type APIError struct {
	StatusCode   int
	ErrorID      int
	ErrorName    string
	ErrorMessage string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.ErrorID != 0 {
		return fmt.Sprintf("stackexchange api error: status: [%d] error_id: [%d] %s: %s",
			e.StatusCode, e.ErrorID, e.ErrorName, e.ErrorMessage)
	}
	return fmt.Sprintf("stackexchange api error: status: [%d]", e.StatusCode)
}

// IsThrottle reports whether the error is the API's rate-limit response.
func (e *APIError) IsThrottle() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.ErrorID == ErrorIDThrottleViolation ||
		e.ErrorName == errorNameThrottleViolation
}

// RequestError is returned when the HTTP request itself fails
// (transport-level error, no API response was received).
type RequestError struct {
	Inner error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("stackexchange request: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RequestError) Unwrap() error {
	return e.Inner
}

// IsRateLimitError reports whether err is the API's throttle response,
// distinguishable from generic HTTP errors by status code and/or envelope marker.
func IsRateLimitError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsThrottle()
}

// IsRetryableError reports whether err is worth retrying: upstream 5xx
// responses and temporary transport errors (including timeouts).
// Rate-limit errors are not retryable here, they are handled by mode fallback.
func IsRetryableError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !apiErr.IsThrottle() && apiErr.StatusCode >= http.StatusInternalServerError
	}
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
