package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrEmptyPrefix is returned when a task is created without a name prefix.
	ErrEmptyPrefix = errors.New("task prefix cannot be empty")

	// ErrNoFrames is returned when a task is created with an empty item set.
	ErrNoFrames = errors.New("no frames to process")

	// ErrInvalidTransition is returned when a task status change does not
	// follow the lifecycle graph.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrFrameNotFound is returned when a frame result is not present in a
	// task's recent-frame window.
	ErrFrameNotFound = errors.New("frame result not found")
)
