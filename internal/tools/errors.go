package tools

import (
	"errors"
	"fmt"

	"github.com/nugget/errand/internal/gtd"
)

// ErrToolUnavailable is returned when a tool call targets a tool that
// is not present in the registry. It indicates a capability mismatch,
// not a transient execution failure, so callers should not retry.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}

// ValidationError describes why arguments do not match a tool schema.
// Path is the dotted location of the offending value ("items.2.type").
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// storeFailure turns a data-layer error into a result the model can act
// on. Expected conditions get specific text; anything else is logged by
// the caller and reported generically.
func storeFailure(what string, err error) Result {
	switch {
	case errors.Is(err, gtd.ErrNotFound):
		return fail("%s not found", what)
	case errors.Is(err, gtd.ErrExists):
		return fail("%s already exists", what)
	case errors.Is(err, gtd.ErrAlreadyDone):
		return fail("%s is already completed", what)
	case errors.Is(err, gtd.ErrNotDone):
		return fail("%s is not completed", what)
	default:
		return fail("could not update %s: storage error", what)
	}
}
