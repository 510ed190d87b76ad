package tools

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nugget/errand/internal/gtd"
)

func TestErrToolUnavailable_Error(t *testing.T) {
	err := &ErrToolUnavailable{ToolName: "launch_rocket"}
	want := `tool "launch_rocket" is not available`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrToolUnavailable_WrappedErrorsAs(t *testing.T) {
	orig := &ErrToolUnavailable{ToolName: "create_task"}
	wrapped := fmt.Errorf("tool execution: %w", orig)

	var target *ErrToolUnavailable
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed to match wrapped *ErrToolUnavailable")
	}
	if target.ToolName != "create_task" {
		t.Errorf("ToolName = %q, want %q", target.ToolName, "create_task")
	}
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		err  *ValidationError
		want string
	}{
		{&ValidationError{Message: "expected object"}, "expected object"},
		{&ValidationError{Path: "items.2.type", Message: "must be one of [a b]"}, "items.2.type: must be one of [a b]"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestStoreFailure(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{gtd.ErrNotFound, "task not found"},
		{fmt.Errorf("wrapped: %w", gtd.ErrAlreadyDone), "task is already completed"},
		{gtd.ErrExists, "task already exists"},
		{errors.New("disk I/O error"), "could not update task: storage error"},
	}
	for _, tt := range tests {
		res := storeFailure("task", tt.err)
		if res.Success || res.Error != tt.want {
			t.Errorf("storeFailure(%v) = %+v, want error %q", tt.err, res, tt.want)
		}
	}
}
