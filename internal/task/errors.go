package task

import "errors"

// Task lifecycle errors returned by the Manager. The API layer maps these
// to HTTP status codes.
var (
	// ErrTaskNotFound indicates the task ID is not in the registry.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskAlreadyRunning indicates a start was attempted while the
	// task occupies the pipeline.
	ErrTaskAlreadyRunning = errors.New("task already running")

	// ErrTaskFinished indicates a start was attempted on a task in a
	// terminal state.
	ErrTaskFinished = errors.New("task already finished")

	// ErrTaskNotRunning indicates a stop was attempted on a task that
	// holds no active run.
	ErrTaskNotRunning = errors.New("task not running")
)
