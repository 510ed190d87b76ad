// Package gtd defines the task and person model shared by the classifier,
// the tool layer, and the task store. Enumerated fields are plain string
// types with Parse helpers; anything that fails to parse is treated as
// absent rather than passed through to persistence.
package gtd

import (
	"strings"
	"time"
)

// TaskType is the GTD bucket a task belongs to.
type TaskType string

const (
	TypeAction  TaskType = "action"
	TypeProject TaskType = "project"
	TypeWaiting TaskType = "waiting"
	TypeSomeday TaskType = "someday"
	TypeAgenda  TaskType = "agenda"
)

// TaskTypes lists every valid task type in display order.
var TaskTypes = []TaskType{TypeAction, TypeProject, TypeWaiting, TypeSomeday, TypeAgenda}

// NeedsPerson reports whether tasks of this type must name a person.
// Waiting-for items track who owes us something; agenda items track who
// we need to talk to.
func (t TaskType) NeedsPerson() bool {
	return t == TypeWaiting || t == TypeAgenda
}

// Context is the GTD context (where or with what a task can be done).
type Context string

const (
	ContextComputer Context = "computer"
	ContextPhone    Context = "phone"
	ContextHome     Context = "home"
	ContextOutside  Context = "outside"
	ContextErrands  Context = "errands"
)

// Contexts lists every valid context.
var Contexts = []Context{ContextComputer, ContextPhone, ContextHome, ContextOutside, ContextErrands}

// Priority is a coarse urgency bucket.
type Priority string

const (
	PriorityToday    Priority = "today"
	PriorityThisWeek Priority = "this_week"
	PrioritySoon     Priority = "soon"
)

// Priorities lists every valid priority.
var Priorities = []Priority{PriorityToday, PriorityThisWeek, PrioritySoon}

// Weekday names accepted in intent entities.
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// Frequency is a recurrence cadence used by preference intents
// (review cadence, digest cadence).
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Frequencies lists every valid frequency.
var Frequencies = []Frequency{FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly}

// Status is the lifecycle state of a stored task.
type Status string

const (
	StatusActive Status = "active"
	StatusDone   Status = "done"
)

// ParseTaskType returns the task type for s and whether it was valid.
// Matching is case-insensitive and tolerates a leading "@".
func ParseTaskType(s string) (TaskType, bool) {
	v := TaskType(normalize(s))
	for _, t := range TaskTypes {
		if v == t {
			return t, true
		}
	}
	return "", false
}

// ParseContext returns the context for s and whether it was valid.
func ParseContext(s string) (Context, bool) {
	v := Context(normalize(s))
	for _, c := range Contexts {
		if v == c {
			return c, true
		}
	}
	return "", false
}

// ParsePriority returns the priority for s and whether it was valid.
// "this week" and "this-week" are accepted for this_week.
func ParsePriority(s string) (Priority, bool) {
	v := Priority(normalize(s))
	for _, p := range Priorities {
		if v == p {
			return p, true
		}
	}
	return "", false
}

// ParseWeekday returns the lowercase weekday name for s. Three-letter
// abbreviations are accepted.
func ParseWeekday(s string) (string, bool) {
	v := normalize(s)
	for _, d := range Weekdays {
		if v == d || (len(v) == 3 && strings.HasPrefix(d, v)) {
			return d, true
		}
	}
	return "", false
}

// ParseFrequency returns the frequency for s and whether it was valid.
func ParseFrequency(s string) (Frequency, bool) {
	v := Frequency(normalize(s))
	for _, f := range Frequencies {
		if v == f {
			return f, true
		}
	}
	return "", false
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "@")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

// TaskDraft is a task as understood from a message, before it is stored.
// PersonName is the raw name the user typed; it is resolved to a stored
// person by the task tools, never by the classifier.
type TaskDraft struct {
	Title      string   `json:"title"`
	Type       TaskType `json:"type,omitempty"`
	Context    Context  `json:"context,omitempty"`
	Priority   Priority `json:"priority,omitempty"`
	DueDate    string   `json:"due_date,omitempty"` // YYYY-MM-DD
	PersonName string   `json:"person_name,omitempty"`
	Notes      string   `json:"notes,omitempty"`

	// Missing lists fields the classifier could not supply. A draft with
	// anything missing must not be persisted without asking the user.
	Missing []string `json:"missing,omitempty"`
}

// Missing field names used in TaskDraft.Missing.
const (
	FieldType       = "type"
	FieldPersonName = "person_name"
)

// Complete reports whether the draft can be stored as-is.
func (d TaskDraft) Complete() bool {
	return len(d.Missing) == 0 && d.Title != "" && d.Type != ""
}

// HasMissing reports whether field is listed in Missing.
func (d TaskDraft) HasMissing(field string) bool {
	for _, m := range d.Missing {
		if m == field {
			return true
		}
	}
	return false
}

// DateLayout is the wire format for due dates.
const DateLayout = "2006-01-02"

// ValidDate reports whether s is a YYYY-MM-DD calendar date.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// Task is a stored task.
type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"-"`
	Title       string     `json:"title"`
	Type        TaskType   `json:"type"`
	Status      Status     `json:"status"`
	Context     Context    `json:"context,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	DueDate     string     `json:"due_date,omitempty"`
	PersonID    string     `json:"person_id,omitempty"`
	PersonName  string     `json:"person_name,omitempty"`
	ProjectID   string     `json:"project_id,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Fields is the mutable subset of a task. Nil pointers mean "leave
// unchanged" in an update, and "was unset" is represented by a pointer
// to the empty string.
type Fields struct {
	Title      *string   `json:"title,omitempty"`
	Type       *TaskType `json:"type,omitempty"`
	Context    *Context  `json:"context,omitempty"`
	Priority   *Priority `json:"priority,omitempty"`
	DueDate    *string   `json:"due_date,omitempty"`
	PersonID   *string   `json:"person_id,omitempty"`
	PersonName *string   `json:"person_name,omitempty"`
	Notes      *string   `json:"notes,omitempty"`
}

// Empty reports whether no field is set.
func (f Fields) Empty() bool {
	return f.Title == nil && f.Type == nil && f.Context == nil && f.Priority == nil &&
		f.DueDate == nil && f.PersonID == nil && f.PersonName == nil && f.Notes == nil
}

// Snapshot returns the current values of the fields set in f, taken
// from t. It is what an update must restore to be undone.
func (f Fields) Snapshot(t *Task) Fields {
	var prev Fields
	if f.Title != nil {
		prev.Title = ptr(t.Title)
	}
	if f.Type != nil {
		prev.Type = ptr(t.Type)
	}
	if f.Context != nil {
		prev.Context = ptr(t.Context)
	}
	if f.Priority != nil {
		prev.Priority = ptr(t.Priority)
	}
	if f.DueDate != nil {
		prev.DueDate = ptr(t.DueDate)
	}
	if f.PersonID != nil {
		prev.PersonID = ptr(t.PersonID)
	}
	if f.PersonName != nil {
		prev.PersonName = ptr(t.PersonName)
	}
	if f.Notes != nil {
		prev.Notes = ptr(t.Notes)
	}
	return prev
}

// Apply writes the set fields of f onto t.
func (f Fields) Apply(t *Task) {
	if f.Title != nil {
		t.Title = *f.Title
	}
	if f.Type != nil {
		t.Type = *f.Type
	}
	if f.Context != nil {
		t.Context = *f.Context
	}
	if f.Priority != nil {
		t.Priority = *f.Priority
	}
	if f.DueDate != nil {
		t.DueDate = *f.DueDate
	}
	if f.PersonID != nil {
		t.PersonID = *f.PersonID
	}
	if f.PersonName != nil {
		t.PersonName = *f.PersonName
	}
	if f.Notes != nil {
		t.Notes = *f.Notes
	}
}

func ptr[T any](v T) *T { return &v }

// Person is someone the user waits on or keeps an agenda for.
type Person struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Name      string    `json:"name"`
	Aliases   []string  `json:"aliases,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PersonFields is the mutable subset of a person, with the same nil
// semantics as Fields.
type PersonFields struct {
	Name    *string   `json:"name,omitempty"`
	Aliases *[]string `json:"aliases,omitempty"`
	Phone   *string   `json:"phone,omitempty"`
	Email   *string   `json:"email,omitempty"`
	Notes   *string   `json:"notes,omitempty"`
}

// Snapshot returns the current values of the fields set in f, taken from p.
func (f PersonFields) Snapshot(p *Person) PersonFields {
	var prev PersonFields
	if f.Name != nil {
		prev.Name = ptr(p.Name)
	}
	if f.Aliases != nil {
		a := append([]string(nil), p.Aliases...)
		prev.Aliases = &a
	}
	if f.Phone != nil {
		prev.Phone = ptr(p.Phone)
	}
	if f.Email != nil {
		prev.Email = ptr(p.Email)
	}
	if f.Notes != nil {
		prev.Notes = ptr(p.Notes)
	}
	return prev
}

// Apply writes the set fields of f onto p.
func (f PersonFields) Apply(p *Person) {
	if f.Name != nil {
		p.Name = *f.Name
	}
	if f.Aliases != nil {
		p.Aliases = append([]string(nil), (*f.Aliases)...)
	}
	if f.Phone != nil {
		p.Phone = *f.Phone
	}
	if f.Email != nil {
		p.Email = *f.Email
	}
	if f.Notes != nil {
		p.Notes = *f.Notes
	}
}

// Stats are the per-user counters reported by the stats tool. Undo paths
// must leave them as if the undone action never happened.
type Stats struct {
	Created   int `json:"created"`
	Completed int `json:"completed"`
	Deleted   int `json:"deleted"`
}

// Filter selects tasks in a query. Zero values mean "any".
type Filter struct {
	Query       string   // case-insensitive substring of the title
	Type        TaskType // exact type
	Context     Context
	Priority    Priority
	PersonID    string
	PersonName  string // case-insensitive match on the stored raw name
	DueBefore   string // inclusive, YYYY-MM-DD
	DueOn       string // exact, YYYY-MM-DD
	IncludeDone bool
	Limit       int
}
