package detection

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by detector implementations.
var (
	// ErrImageNotFound is returned when the input image does not exist.
	ErrImageNotFound = errors.New("image file not found")

	// ErrImageTooLarge is returned when the input image exceeds the
	// provider's upload limit.
	ErrImageTooLarge = errors.New("image exceeds maximum upload size")

	// ErrEmptyResponse is returned when the model produces no usable text.
	ErrEmptyResponse = errors.New("empty response from vision model")

	// ErrMalformedResponse is returned when the model's output cannot be
	// parsed as a detection list. Such calls are worth retrying.
	ErrMalformedResponse = errors.New("malformed detection response")

	// ErrInvalidConfig is returned when a detector is constructed with an
	// unusable configuration.
	ErrInvalidConfig = errors.New("invalid detector configuration")
)

// RateLimitError reports provider throttling. It carries the HTTP status
// and the server's suggested wait, when one was supplied.
type RateLimitError struct {
	Message string
	Status  int
	Hint    time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.Hint > 0 {
		return fmt.Sprintf("rate limited (%d): %s (retry after %s)", e.Status, e.Message, e.Hint)
	}
	return fmt.Sprintf("rate limited (%d): %s", e.Status, e.Message)
}

// StatusCode returns the HTTP status associated with the throttle.
func (e *RateLimitError) StatusCode() int {
	return e.Status
}

// RetryAfter returns the server-suggested wait, or 0 when none was given.
func (e *RateLimitError) RetryAfter() time.Duration {
	return e.Hint
}
