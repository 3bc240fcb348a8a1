package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/domain"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/task"
	"github.com/yizhengyuan/Traffic-AutoLabel/internal/video"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status
// codes based on the error type. This prevents leaking internal error
// types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, task.ErrTaskNotFound),
		errors.Is(err, video.ErrVideoNotFound),
		errors.Is(err, domain.ErrFrameNotFound):
		return http.StatusNotFound

	// Lifecycle conflicts
	case errors.Is(err, task.ErrTaskAlreadyRunning),
		errors.Is(err, task.ErrTaskFinished),
		errors.Is(err, task.ErrTaskNotRunning),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrEmptyPrefix),
		errors.Is(err, domain.ErrNoFrames):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. Domain validation errors are safe to show as-is;
// anything unexpected collapses to a generic message.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, video.ErrVideoNotFound):
		return "Video not found"
	case errors.Is(err, domain.ErrFrameNotFound):
		return "Frame not found"
	case errors.Is(err, task.ErrTaskAlreadyRunning):
		return "Task is already running"
	case errors.Is(err, task.ErrTaskFinished):
		return "Task has already finished"
	case errors.Is(err, task.ErrTaskNotRunning):
		return "Task is not running"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "Task cannot change state right now"
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrEmptyPrefix),
		errors.Is(err, domain.ErrNoFrames):
		// Validation messages name the offending input, nothing internal.
		return err.Error()
	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns a validator error into a user-facing
// message naming the field and the constraint, without the struct paths the
// raw error carries.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	if strings.Contains(errMsg, "Field validation") {
		// Example: "Key: 'CreateTaskRequest.Prefix' Error:Field validation
		// for 'Prefix' failed on the 'required' tag"
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}
				if tag != "" {
					return "Invalid " + field + ": " + validationTagMessage(tag)
				}
				return "Invalid " + field
			}
		}
	}

	return "Validation error"
}

// validationTagMessage maps validation tags to user-friendly error messages.
func validationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min", "gte":
		return "too small"
	case "max", "lte":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
