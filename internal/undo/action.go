// Package undo records how to reverse each successful mutation and
// replays those inverses on request.
//
// An [Action] is a tagged variant: Kind selects the case and exactly the
// payload fields that case needs are populated. Actions are built with
// the constructor for their kind and checked once with [Action.Validate]
// when pushed; inverters trust them afterwards.
package undo

import (
	"fmt"
	"time"

	"github.com/nugget/errand/internal/gtd"
)

// Kind tags an undo action.
type Kind string

const (
	KindDeleteCreatedTask   Kind = "delete_created_task"
	KindDeleteCreatedTasks  Kind = "delete_created_tasks"
	KindRestoreDeletedTask  Kind = "restore_deleted_task"
	KindRevertTaskUpdate    Kind = "revert_task_update"
	KindUncompleteTask      Kind = "uncomplete_task"
	KindRestorePerson       Kind = "restore_person"
	KindDeleteCreatedPerson Kind = "delete_created_person"
	KindRevertPersonUpdate  Kind = "revert_person_update"
	KindRevertPreference    Kind = "revert_preference"
)

// Kinds lists every action kind. An inverter must exist for each.
var Kinds = []Kind{
	KindDeleteCreatedTask,
	KindDeleteCreatedTasks,
	KindRestoreDeletedTask,
	KindRevertTaskUpdate,
	KindUncompleteTask,
	KindRestorePerson,
	KindDeleteCreatedPerson,
	KindRevertPersonUpdate,
	KindRevertPreference,
}

// Action is one reversible step.
type Action struct {
	Kind Kind `json:"kind"`

	// Label is a short human description of what will be reversed,
	// e.g. `created "Call dentist"`.
	Label    string    `json:"label"`
	Recorded time.Time `json:"recorded"`

	TaskID       string            `json:"task_id,omitempty"`
	TaskIDs      []string          `json:"task_ids,omitempty"`
	Task         *gtd.Task         `json:"task,omitempty"`
	TaskFields   *gtd.Fields       `json:"task_fields,omitempty"`
	PersonID     string            `json:"person_id,omitempty"`
	Person       *gtd.Person       `json:"person,omitempty"`
	PersonFields *gtd.PersonFields `json:"person_fields,omitempty"`
	Preference   *PreferenceState  `json:"preference,omitempty"`
}

// PreferenceState is a preference value as it was before a change.
type PreferenceState struct {
	Key     string `json:"key"`
	Value   string `json:"value,omitempty"`
	Existed bool   `json:"existed"`
}

// DeleteCreatedTask undoes a task creation.
func DeleteCreatedTask(taskID, title string) Action {
	return Action{Kind: KindDeleteCreatedTask, TaskID: taskID, Label: fmt.Sprintf("created %q", title)}
}

// DeleteCreatedTasks undoes a batch creation as one step.
func DeleteCreatedTasks(taskIDs []string) Action {
	return Action{
		Kind:    KindDeleteCreatedTasks,
		TaskIDs: append([]string(nil), taskIDs...),
		Label:   fmt.Sprintf("created %d tasks", len(taskIDs)),
	}
}

// RestoreDeletedTask undoes a deletion using the full task snapshot.
func RestoreDeletedTask(snapshot gtd.Task) Action {
	return Action{Kind: KindRestoreDeletedTask, Task: &snapshot, Label: fmt.Sprintf("deleted %q", snapshot.Title)}
}

// RevertTaskUpdate restores the previous values of the changed fields.
func RevertTaskUpdate(taskID, title string, previous gtd.Fields) Action {
	return Action{Kind: KindRevertTaskUpdate, TaskID: taskID, TaskFields: &previous, Label: fmt.Sprintf("edited %q", title)}
}

// UncompleteTask reopens a completed task.
func UncompleteTask(taskID, title string) Action {
	return Action{Kind: KindUncompleteTask, TaskID: taskID, Label: fmt.Sprintf("completed %q", title)}
}

// RestorePerson undoes a person deletion.
func RestorePerson(snapshot gtd.Person) Action {
	return Action{Kind: KindRestorePerson, Person: &snapshot, Label: fmt.Sprintf("removed %s", snapshot.Name)}
}

// DeleteCreatedPerson undoes adding a person.
func DeleteCreatedPerson(personID, name string) Action {
	return Action{Kind: KindDeleteCreatedPerson, PersonID: personID, Label: fmt.Sprintf("added %s", name)}
}

// RevertPersonUpdate restores the previous values of a person's fields.
func RevertPersonUpdate(personID, name string, previous gtd.PersonFields) Action {
	return Action{Kind: KindRevertPersonUpdate, PersonID: personID, PersonFields: &previous, Label: fmt.Sprintf("edited %s", name)}
}

// RevertPreference restores a preference to its previous state.
func RevertPreference(key, previous string, existed bool) Action {
	return Action{
		Kind:       KindRevertPreference,
		Preference: &PreferenceState{Key: key, Value: previous, Existed: existed},
		Label:      fmt.Sprintf("changed setting %s", key),
	}
}

// Validate checks that the payload matches the kind.
func (a Action) Validate() error {
	switch a.Kind {
	case KindDeleteCreatedTask, KindUncompleteTask:
		if a.TaskID == "" {
			return fmt.Errorf("%s: task_id is required", a.Kind)
		}
	case KindDeleteCreatedTasks:
		if len(a.TaskIDs) == 0 {
			return fmt.Errorf("%s: task_ids is required", a.Kind)
		}
	case KindRestoreDeletedTask:
		if a.Task == nil || a.Task.ID == "" {
			return fmt.Errorf("%s: task snapshot is required", a.Kind)
		}
	case KindRevertTaskUpdate:
		if a.TaskID == "" || a.TaskFields == nil {
			return fmt.Errorf("%s: task_id and previous fields are required", a.Kind)
		}
	case KindRestorePerson:
		if a.Person == nil || a.Person.ID == "" {
			return fmt.Errorf("%s: person snapshot is required", a.Kind)
		}
	case KindDeleteCreatedPerson:
		if a.PersonID == "" {
			return fmt.Errorf("%s: person_id is required", a.Kind)
		}
	case KindRevertPersonUpdate:
		if a.PersonID == "" || a.PersonFields == nil {
			return fmt.Errorf("%s: person_id and previous fields are required", a.Kind)
		}
	case KindRevertPreference:
		if a.Preference == nil || a.Preference.Key == "" {
			return fmt.Errorf("%s: preference key is required", a.Kind)
		}
	default:
		return fmt.Errorf("unknown undo kind %q", a.Kind)
	}
	return nil
}
