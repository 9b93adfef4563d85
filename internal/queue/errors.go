package queue

import "errors"

// Errors surfaced synchronously to callers of queue operations.
// Collaborator failures during execution never appear here; they are
// recorded on the task itself.
var (
	// ErrValidation marks bad input to add/create operations.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition marks a status change with no edge in the
	// task state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidState marks an operation applied to a task whose
	// current status does not permit it (e.g. retrying a pending task).
	ErrInvalidState = errors.New("invalid task state for operation")

	// ErrConflict marks an operation incompatible with the current
	// concurrency state, such as deleting a running task.
	ErrConflict = errors.New("operation conflicts with current queue state")

	// ErrNotFound marks an unknown task or bookmark ID.
	ErrNotFound = errors.New("not found")
)
