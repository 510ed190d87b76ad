package undo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrNothingToUndo is returned when the user's stack is empty.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrAlreadyGone is returned when the action's target no longer
	// exists or has already been reverted by other means.
	ErrAlreadyGone = errors.New("already gone")
)

// StackStore persists each user's undo stack. The session manager
// implements it.
type StackStore interface {
	PushUndo(ctx context.Context, userID string, a Action) error
	PopUndo(ctx context.Context, userID string) (Action, bool, error)
}

// Inverter reverses one kind of action and returns a short confirmation
// for the user. Inverters return ErrAlreadyGone (possibly wrapped) for
// stale targets.
type Inverter func(ctx context.Context, userID string, a Action) (string, error)

// Manager pushes undo actions and replays their inverses.
type Manager struct {
	stack     StackStore
	inverters map[Kind]Inverter
	logger    *slog.Logger
}

// NewManager returns a manager that dispatches on action kind. Every
// kind in [Kinds] must have an inverter; a missing one is a wiring bug
// reported here rather than on the first undo that needs it.
func NewManager(stack StackStore, inverters map[Kind]Inverter, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, k := range Kinds {
		if inverters[k] == nil {
			return nil, fmt.Errorf("undo: no inverter registered for %q", k)
		}
	}
	return &Manager{
		stack:     stack,
		inverters: inverters,
		logger:    logger.With("component", "undo"),
	}, nil
}

// Push validates a and records it on the user's stack.
func (m *Manager) Push(ctx context.Context, userID string, a Action) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("push undo: %w", err)
	}
	if err := m.stack.PushUndo(ctx, userID, a); err != nil {
		return fmt.Errorf("push undo: %w", err)
	}
	m.logger.Debug("undo recorded", "user", userID, "kind", a.Kind, "label", a.Label)
	return nil
}

// PopAndInvert removes the most recent action and reverses it. The
// action is consumed even when its target turns out to be gone, so a
// second undo moves on to the next entry instead of failing forever.
func (m *Manager) PopAndInvert(ctx context.Context, userID string) (string, error) {
	a, ok, err := m.stack.PopUndo(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("pop undo: %w", err)
	}
	if !ok {
		return "", ErrNothingToUndo
	}

	inv := m.inverters[a.Kind]
	if inv == nil {
		return "", fmt.Errorf("undo: no inverter for %q", a.Kind)
	}

	msg, err := inv(ctx, userID, a)
	if err != nil {
		m.logger.Info("undo failed", "user", userID, "kind", a.Kind, "error", err)
		return "", err
	}
	m.logger.Info("undo applied", "user", userID, "kind", a.Kind, "label", a.Label)
	return msg, nil
}

// Message renders the outcome of PopAndInvert as user-facing text.
// Expected failures become soft messages; anything else is reported
// generically so internal detail never reaches the user.
func Message(msg string, err error) string {
	switch {
	case err == nil:
		return msg
	case errors.Is(err, ErrNothingToUndo):
		return "Nothing to undo."
	case errors.Is(err, ErrAlreadyGone):
		return "That's already gone, so there was nothing to undo."
	default:
		return "Sorry, I couldn't undo that."
	}
}
