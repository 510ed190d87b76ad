// Package intent defines the non-capture requests a message can carry
// (queries, edits, settings, undo) and routes each to its handler.
package intent

import (
	"strings"

	"github.com/nugget/errand/internal/gtd"
)

// Type names an intent.
type Type string

const (
	QueryTasks    Type = "query_tasks"
	QueryToday    Type = "query_today"
	QueryPerson   Type = "query_person"
	QueryStats    Type = "query_stats"
	CompleteTask  Type = "complete_task"
	UpdateTask    Type = "update_task"
	DeleteTask    Type = "delete_task"
	DeletePerson  Type = "delete_person"
	UpdatePerson  Type = "update_person"
	CreatePerson  Type = "create_person"
	Undo          Type = "undo"
	SetPreference Type = "set_preference"
	ShowHelp      Type = "show_help"
	CorrectLast   Type = "correct_last"
)

// needsLookup says, per intent, whether answering requires reading
// current data. It is the only source for that decision: whatever the
// model claims is overridden by this table.
var needsLookup = map[Type]bool{
	QueryTasks:    true,
	QueryToday:    true,
	QueryPerson:   true,
	QueryStats:    true,
	CompleteTask:  true,
	UpdateTask:    true,
	DeleteTask:    true,
	DeletePerson:  true,
	UpdatePerson:  true,
	CreatePerson:  false,
	Undo:          false,
	SetPreference: false,
	ShowHelp:      false,
	CorrectLast:   false,
}

// Types lists every intent in a stable order.
var Types = []Type{
	QueryTasks, QueryToday, QueryPerson, QueryStats,
	CompleteTask, UpdateTask, DeleteTask,
	DeletePerson, UpdatePerson, CreatePerson,
	Undo, SetPreference, ShowHelp, CorrectLast,
}

// Parse returns the intent type for s and whether it is known.
func Parse(s string) (Type, bool) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	_, ok := needsLookup[t]
	return t, ok
}

// NeedsDataLookup reports whether handling t requires live data.
func (t Type) NeedsDataLookup() bool {
	return needsLookup[t]
}

// Intent is a classified request with its entities.
type Intent struct {
	Type     Type     `json:"type"`
	Entities Entities `json:"entities"`
}

// Entities are the typed arguments extracted with an intent. Enumerated
// fields hold only valid values; anything unrecognized is dropped when
// parsed.
type Entities struct {
	// TaskQuery is the words identifying an existing task ("the dentist one").
	TaskQuery string `json:"task_query,omitempty"`
	TaskID    string `json:"task_id,omitempty"`

	PersonName string `json:"person_name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`

	Title     string       `json:"title,omitempty"`
	TaskType  gtd.TaskType `json:"task_type,omitempty"`
	Context   gtd.Context  `json:"context,omitempty"`
	Priority  gtd.Priority `json:"priority,omitempty"`
	DueDate   string       `json:"due_date,omitempty"`
	DayOfWeek string       `json:"day_of_week,omitempty"`

	Frequency       gtd.Frequency `json:"frequency,omitempty"`
	PreferenceKey   string        `json:"preference_key,omitempty"`
	PreferenceValue string        `json:"preference_value,omitempty"`

	// Field and Value carry a correct_last override.
	Field string `json:"field,omitempty"`
	Value string `json:"value,omitempty"`
}

// ParseEntities builds Entities from loosely typed model output.
// Unrecognized enum values are dropped rather than guessed.
func ParseEntities(raw map[string]any) Entities {
	var e Entities
	e.TaskQuery = str(raw, "task_query")
	e.TaskID = str(raw, "task_id")
	e.PersonName = str(raw, "person_name")
	e.Phone = str(raw, "phone")
	e.Email = str(raw, "email")
	e.Title = str(raw, "title")
	e.PreferenceKey = strings.ToLower(str(raw, "preference_key"))
	e.PreferenceValue = str(raw, "preference_value")
	e.Field = strings.ToLower(str(raw, "field"))
	e.Value = str(raw, "value")

	if v, ok := gtd.ParseTaskType(str(raw, "task_type")); ok {
		e.TaskType = v
	}
	if v, ok := gtd.ParseContext(str(raw, "context")); ok {
		e.Context = v
	}
	if v, ok := gtd.ParsePriority(str(raw, "priority")); ok {
		e.Priority = v
	}
	if v, ok := gtd.ParseWeekday(str(raw, "day_of_week")); ok {
		e.DayOfWeek = v
	}
	if v, ok := gtd.ParseFrequency(str(raw, "frequency")); ok {
		e.Frequency = v
	}
	if d := str(raw, "due_date"); gtd.ValidDate(d) {
		e.DueDate = d
	}
	return e
}

func str(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return strings.TrimSpace(s)
}
