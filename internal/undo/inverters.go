package undo

import (
	"context"
	"errors"
	"fmt"

	"github.com/nugget/errand/internal/gtd"
)

// TaskTarget is the slice of the data layer the inverters need.
type TaskTarget interface {
	RevertCreate(ctx context.Context, userID, id string) error
	RestoreTask(ctx context.Context, userID string, snapshot gtd.Task) (*gtd.Task, error)
	UpdateTask(ctx context.Context, userID, id string, fields gtd.Fields) (*gtd.Task, gtd.Fields, error)
	UncompleteTask(ctx context.Context, userID, id string) (*gtd.Task, error)
	RestorePerson(ctx context.Context, userID string, snapshot gtd.Person) (*gtd.Person, error)
	DeletePerson(ctx context.Context, userID, id string) (*gtd.Person, error)
	UpdatePerson(ctx context.Context, userID, id string, fields gtd.PersonFields) (*gtd.Person, gtd.PersonFields, error)
}

// PreferenceTarget restores a preference without recording a new undo
// entry. The session manager implements it.
type PreferenceTarget interface {
	RestorePreference(ctx context.Context, userID, key, value string, existed bool) error
}

// Inverters returns the inverter for every kind, backed by the given
// targets.
func Inverters(tasks TaskTarget, prefs PreferenceTarget) map[Kind]Inverter {
	return map[Kind]Inverter{
		KindDeleteCreatedTask: func(ctx context.Context, userID string, a Action) (string, error) {
			if err := tasks.RevertCreate(ctx, userID, a.TaskID); err != nil {
				return "", stale(err)
			}
			return fmt.Sprintf("Undone: %s.", a.Label), nil
		},

		KindDeleteCreatedTasks: func(ctx context.Context, userID string, a Action) (string, error) {
			removed := 0
			for _, id := range a.TaskIDs {
				err := tasks.RevertCreate(ctx, userID, id)
				if err == nil {
					removed++
					continue
				}
				if !errors.Is(err, gtd.ErrNotFound) {
					return "", err
				}
			}
			switch {
			case removed == 0:
				return "", ErrAlreadyGone
			case removed < len(a.TaskIDs):
				return fmt.Sprintf("Undone: removed %d of %d tasks (the rest were already gone).", removed, len(a.TaskIDs)), nil
			default:
				return fmt.Sprintf("Undone: removed %d tasks.", removed), nil
			}
		},

		KindRestoreDeletedTask: func(ctx context.Context, userID string, a Action) (string, error) {
			if _, err := tasks.RestoreTask(ctx, userID, *a.Task); err != nil {
				if errors.Is(err, gtd.ErrExists) {
					return "", ErrAlreadyGone
				}
				return "", err
			}
			return fmt.Sprintf("Restored %q.", a.Task.Title), nil
		},

		KindRevertTaskUpdate: func(ctx context.Context, userID string, a Action) (string, error) {
			t, _, err := tasks.UpdateTask(ctx, userID, a.TaskID, *a.TaskFields)
			if err != nil {
				return "", stale(err)
			}
			return fmt.Sprintf("Reverted the edit to %q.", t.Title), nil
		},

		KindUncompleteTask: func(ctx context.Context, userID string, a Action) (string, error) {
			t, err := tasks.UncompleteTask(ctx, userID, a.TaskID)
			if err != nil {
				if errors.Is(err, gtd.ErrNotDone) {
					return "", ErrAlreadyGone
				}
				return "", stale(err)
			}
			return fmt.Sprintf("Reopened %q.", t.Title), nil
		},

		KindRestorePerson: func(ctx context.Context, userID string, a Action) (string, error) {
			if _, err := tasks.RestorePerson(ctx, userID, *a.Person); err != nil {
				if errors.Is(err, gtd.ErrExists) {
					return "", ErrAlreadyGone
				}
				return "", err
			}
			return fmt.Sprintf("Restored %s.", a.Person.Name), nil
		},

		KindDeleteCreatedPerson: func(ctx context.Context, userID string, a Action) (string, error) {
			p, err := tasks.DeletePerson(ctx, userID, a.PersonID)
			if err != nil {
				return "", stale(err)
			}
			return fmt.Sprintf("Undone: removed %s.", p.Name), nil
		},

		KindRevertPersonUpdate: func(ctx context.Context, userID string, a Action) (string, error) {
			p, _, err := tasks.UpdatePerson(ctx, userID, a.PersonID, *a.PersonFields)
			if err != nil {
				return "", stale(err)
			}
			return fmt.Sprintf("Reverted the edit to %s.", p.Name), nil
		},

		KindRevertPreference: func(ctx context.Context, userID string, a Action) (string, error) {
			pref := a.Preference
			if err := prefs.RestorePreference(ctx, userID, pref.Key, pref.Value, pref.Existed); err != nil {
				return "", err
			}
			return fmt.Sprintf("Setting %s restored.", pref.Key), nil
		},
	}
}

// stale maps a data-layer not-found into ErrAlreadyGone, keeping the
// original error in the chain for logs.
func stale(err error) error {
	if errors.Is(err, gtd.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrAlreadyGone, err)
	}
	return err
}
