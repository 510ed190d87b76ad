package intent

import (
	"context"
	"testing"

	"github.com/nugget/errand/internal/gtd"
)

func TestNeedsDataLookupTable(t *testing.T) {
	tests := []struct {
		intent Type
		want   bool
	}{
		{QueryTasks, true},
		{QueryToday, true},
		{QueryPerson, true},
		{QueryStats, true},
		{CompleteTask, true},
		{UpdateTask, true},
		{DeleteTask, true},
		{DeletePerson, true},
		{UpdatePerson, true},
		{CreatePerson, false},
		{Undo, false},
		{SetPreference, false},
		{ShowHelp, false},
		{CorrectLast, false},
	}
	if len(tests) != len(Types) {
		t.Fatalf("table covers %d intents, Types has %d", len(tests), len(Types))
	}
	for _, tc := range tests {
		if got := tc.intent.NeedsDataLookup(); got != tc.want {
			t.Errorf("%s.NeedsDataLookup() = %v, want %v", tc.intent, got, tc.want)
		}
	}
}

func TestParse(t *testing.T) {
	if got, ok := Parse(" Query_Tasks "); !ok || got != QueryTasks {
		t.Errorf("Parse() = %q, %v", got, ok)
	}
	if _, ok := Parse("launch_rocket"); ok {
		t.Error("Parse() accepted an unknown intent")
	}
}

func TestParseEntitiesDropsInvalidEnums(t *testing.T) {
	e := ParseEntities(map[string]any{
		"task_query":  "dentist",
		"context":     "@Phone",
		"priority":    "whenever",
		"day_of_week": "Tue",
		"frequency":   "hourly",
		"task_type":   "waiting",
		"due_date":    "next tuesday",
		"person_name": 42,
	})
	if e.TaskQuery != "dentist" {
		t.Errorf("TaskQuery = %q", e.TaskQuery)
	}
	if e.Context != gtd.ContextPhone {
		t.Errorf("Context = %q, want phone", e.Context)
	}
	if e.Priority != "" {
		t.Errorf("Priority = %q, want dropped", e.Priority)
	}
	if e.DayOfWeek != "tuesday" {
		t.Errorf("DayOfWeek = %q", e.DayOfWeek)
	}
	if e.Frequency != "" {
		t.Errorf("Frequency = %q, want dropped", e.Frequency)
	}
	if e.TaskType != gtd.TypeWaiting {
		t.Errorf("TaskType = %q", e.TaskType)
	}
	if e.DueDate != "" {
		t.Errorf("DueDate = %q, want dropped", e.DueDate)
	}
	if e.PersonName != "" {
		t.Errorf("PersonName = %q, want dropped non-string", e.PersonName)
	}
}

func TestNewRouterExhaustive(t *testing.T) {
	noop := func(context.Context, *Call) (Outcome, error) { return Outcome{}, nil }

	handlers := make(map[Type]Handler)
	for _, it := range Types {
		handlers[it] = noop
	}
	if _, err := NewRouter(handlers, nil, nil); err != nil {
		t.Fatalf("NewRouter() with every handler: %v", err)
	}

	delete(handlers, CorrectLast)
	if _, err := NewRouter(handlers, nil, nil); err == nil {
		t.Fatal("NewRouter() with a missing handler should fail")
	}
	if _, err := NewRouter(handlers, noop, nil); err != nil {
		t.Fatalf("NewRouter() with fallback: %v", err)
	}

	handlers["teleport"] = noop
	if _, err := NewRouter(handlers, noop, nil); err == nil {
		t.Fatal("NewRouter() with an unknown intent should fail")
	}
}

func TestDispatch(t *testing.T) {
	var got Type
	handlers := map[Type]Handler{
		ShowHelp: func(_ context.Context, c *Call) (Outcome, error) {
			got = c.Intent.Type
			return Outcome{Text: "help"}, nil
		},
	}
	fallback := func(context.Context, *Call) (Outcome, error) { return Outcome{Text: "fallback"}, nil }
	r, err := NewRouter(handlers, fallback, nil)
	if err != nil {
		t.Fatalf("NewRouter() error: %v", err)
	}

	out, _ := r.Dispatch(context.Background(), &Call{Intent: Intent{Type: ShowHelp}})
	if out.Text != "help" || got != ShowHelp {
		t.Errorf("Dispatch(show_help) = %q", out.Text)
	}
	out, _ = r.Dispatch(context.Background(), &Call{Intent: Intent{Type: QueryStats}})
	if out.Text != "fallback" {
		t.Errorf("Dispatch(query_stats) = %q, want fallback", out.Text)
	}
}
