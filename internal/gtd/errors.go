package gtd

import "errors"

// Data-layer sentinel errors. Any task store implementation returns
// these (possibly wrapped) so callers can compare with errors.Is.
var (
	// ErrNotFound is returned when the target row does not exist for
	// the user (never created, deleted, or owned by someone else).
	ErrNotFound = errors.New("not found")

	// ErrExists is returned when a create or restore would collide with
	// an existing row.
	ErrExists = errors.New("already exists")

	// ErrAlreadyDone is returned when completing a completed task.
	ErrAlreadyDone = errors.New("task already completed")

	// ErrNotDone is returned when un-completing an active task.
	ErrNotDone = errors.New("task is not completed")
)
