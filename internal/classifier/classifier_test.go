package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/nugget/errand/internal/gtd"
	"github.com/nugget/errand/internal/intent"
	"github.com/nugget/errand/internal/session"
)

type fakeGenerator struct {
	out     string
	err     error
	prompts []string
	block   bool
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, _ map[string]any) (json.RawMessage, error) {
	f.prompts = append(f.prompts, prompt)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.out), nil
}

var testNow = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func TestNormalizeConfidence(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want float64
	}{
		{"in range", 0.7, 0.7},
		{"above one", 3.5, 1},
		{"negative", -0.2, 0},
		{"missing", nil, 0.5},
		{"string", "high", 0.5},
		{"nan", math.NaN(), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := map[string]any{"type": "unknown"}
			if tt.raw != nil {
				raw["confidence"] = tt.raw
			}
			r := Normalize(raw, "x", Limits{})
			if r.Confidence != tt.want {
				t.Errorf("Confidence = %v, want %v", r.Confidence, tt.want)
			}
		})
	}
}

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want Type
	}{
		{"bogus type", map[string]any{"type": "reminder", "confidence": 0.9}, TypeUnknown},
		{"missing type", map[string]any{"confidence": 0.9}, TypeUnknown},
		{"upper case task", map[string]any{"type": "TASK", "task": map[string]any{"title": "x", "type": "action"}}, TypeTask},
		{"unknown intent", map[string]any{"type": "intent", "intent": map[string]any{"type": "launch_rocket"}}, TypeUnknown},
		{"empty batch", map[string]any{"type": "multi_item", "items": []any{}}, TypeUnknown},
		{"clarification", map[string]any{"type": "needs_clarification"}, TypeNeedsClarification},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.raw, "msg", Limits{}).Type; got != tt.want {
				t.Errorf("Type = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeTask(t *testing.T) {
	r := Normalize(map[string]any{
		"type":       "task",
		"confidence": 0.9,
		"task": map[string]any{
			"type":     "action",
			"context":  "@Phone",
			"priority": "urgent",
			"due_date": "next friday",
		},
	}, "call the dentist", Limits{})

	if r.Task == nil {
		t.Fatal("Task payload missing")
	}
	if r.Task.Title != "call the dentist" {
		t.Errorf("Title = %q, want message fallback", r.Task.Title)
	}
	if r.Task.Context != gtd.ContextPhone {
		t.Errorf("Context = %q, want phone", r.Task.Context)
	}
	if r.Task.Priority != "" || r.Task.DueDate != "" {
		t.Errorf("invalid priority/due date kept: %+v", r.Task)
	}
	if !r.Task.Complete() {
		t.Errorf("draft should be complete: %+v", r.Task)
	}
	if r.NeedsDataLookup || r.Items != nil || r.Intent != nil {
		t.Errorf("task result carries other payloads: %+v", r)
	}
}

func TestNormalizeWaitingWithoutPerson(t *testing.T) {
	r := Normalize(map[string]any{
		"type": "task",
		"task": map[string]any{"title": "Something", "type": "waiting"},
	}, "waiting on something", Limits{})

	if r.Task.PersonName != "" {
		t.Errorf("PersonName = %q, want unset", r.Task.PersonName)
	}
	if !r.Task.HasMissing(gtd.FieldPersonName) {
		t.Errorf("Missing = %v, want person_name flagged", r.Task.Missing)
	}
}

func TestNormalizeTaskWithoutType(t *testing.T) {
	r := Normalize(map[string]any{"type": "task", "task": map[string]any{"title": "Paint", "type": "chore"}}, "paint", Limits{})
	if r.Task.Type != "" || !r.Task.HasMissing(gtd.FieldType) {
		t.Errorf("draft = %+v, want type missing, not defaulted", r.Task)
	}
}

func TestNormalizeMultiItem(t *testing.T) {
	items := []any{
		map[string]any{"title": "Buy milk", "type": "action", "context": "errands"},
		map[string]any{"title": "Eggs"},
		map[string]any{"title": "Report from Sam", "type": "waiting", "person_name": "Sam"},
		map[string]any{"type": "action"},
		"not an object",
	}
	r := Normalize(map[string]any{"type": "multi_item", "confidence": 0.8, "items": items}, "x", Limits{})
	if r.Type != TypeMultiItem || len(r.Items) != 3 {
		t.Fatalf("result = %+v, want 3 items", r)
	}
	if r.Untitled != 2 {
		t.Errorf("Untitled = %d, want 2", r.Untitled)
	}
	if r.Items[0].Type != gtd.TypeAction {
		t.Errorf("item 0 type = %q", r.Items[0].Type)
	}
	if r.Items[1].Type != "" || !r.Items[1].HasMissing(gtd.FieldType) {
		t.Errorf("item without type was defaulted: %+v", r.Items[1])
	}
	if r.Items[2].PersonName != "Sam" || len(r.Items[2].Missing) != 0 {
		t.Errorf("item 2 = %+v", r.Items[2])
	}
}

func TestNormalizeMultiItemCap(t *testing.T) {
	var items []any
	for i := 0; i < 13; i++ {
		items = append(items, map[string]any{"title": "item", "type": "action"})
	}
	r := Normalize(map[string]any{"type": "multi_item", "items": items}, "x", Limits{MaxItems: 10})
	if len(r.Items) != 10 || r.Truncated != 3 {
		t.Errorf("items = %d truncated = %d, want 10 and 3", len(r.Items), r.Truncated)
	}
}

func TestNormalizeIntent(t *testing.T) {
	r := Normalize(map[string]any{
		"type":       "intent",
		"confidence": 0.9,
		"intent": map[string]any{
			"type": "update_task",
			"entities": map[string]any{
				"task_query":  "dentist",
				"context":     "spaceship",
				"priority":    "today",
				"day_of_week": "Fri",
				"frequency":   "hourly",
			},
		},
		"required_lookups": []any{"lookup_tasks", "LOOKUP_TASKS", 7},
		"needs_data_lookup": false,
	}, "move dentist to today", Limits{})

	if r.Type != TypeIntent || r.Intent.Type != intent.UpdateTask {
		t.Fatalf("result = %+v", r)
	}
	e := r.Intent.Entities
	if e.Context != "" || e.Frequency != "" {
		t.Errorf("invalid enums kept: context=%q frequency=%q", e.Context, e.Frequency)
	}
	if e.Priority != gtd.PriorityToday || e.DayOfWeek != "friday" || e.TaskQuery != "dentist" {
		t.Errorf("entities = %+v", e)
	}
	if !r.NeedsDataLookup {
		t.Error("update_task needs a lookup whatever the model says")
	}
	if len(r.RequiredLookups) != 1 || r.RequiredLookups[0] != "lookup_tasks" {
		t.Errorf("RequiredLookups = %v", r.RequiredLookups)
	}
}

func TestNormalizeStaticIntentSkipsLookup(t *testing.T) {
	for _, typ := range []string{"show_help", "set_preference", "undo", "create_person", "correct_last"} {
		r := Normalize(map[string]any{"type": "intent", "intent": typ, "needs_data_lookup": true}, "x", Limits{})
		if r.Type != TypeIntent || r.NeedsDataLookup {
			t.Errorf("%s: NeedsDataLookup = %v, want false", typ, r.NeedsDataLookup)
		}
	}
}

func TestNormalizeClarificationDefault(t *testing.T) {
	r := Normalize(map[string]any{"type": "needs_clarification"}, "hmm", Limits{})
	if r.ClarificationQuestion != DefaultClarification {
		t.Errorf("ClarificationQuestion = %q", r.ClarificationQuestion)
	}
}

func TestFastPath(t *testing.T) {
	tests := []struct {
		in   string
		want intent.Type
		ok   bool
	}{
		{"undo", intent.Undo, true},
		{"  Undo! ", intent.Undo, true},
		{"stop that", intent.Undo, true},
		{"help", intent.ShowHelp, true},
		{"?", intent.ShowHelp, true},
		{"undo the dentist task", "", false},
		{"buy milk", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, ok := FastPath(tt.in)
			if ok != tt.ok {
				t.Fatalf("FastPath(%q) ok = %v", tt.in, ok)
			}
			if ok && (r.Intent.Type != tt.want || r.Source != SourceFastPath || r.Confidence != 1) {
				t.Errorf("FastPath(%q) = %+v", tt.in, r)
			}
		})
	}
}

func TestClassifyUsesModel(t *testing.T) {
	gen := &fakeGenerator{out: `{"type":"task","confidence":0.92,"task":{"title":"Call mom","type":"action","context":"phone"}}`}
	c := New(gen, Options{}, nil)

	conv := &session.ConversationContext{
		UserID:      "u1",
		Preferences: map[string]string{"timezone": "America/New_York"},
		Session:     &session.Session{RecentTasks: []session.TaskRef{{ID: "t7", Title: "Buy milk"}}},
	}
	r := c.Classify(context.Background(), "call mom", conv, testNow)
	if r.Type != TypeTask || r.Task.Title != "Call mom" || r.Source != SourceModel {
		t.Fatalf("Classify() = %+v", r)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("model called %d times", len(gen.prompts))
	}
	for _, want := range []string{"call mom", "t7 Buy milk", "11:00 EDT"} {
		if !strings.Contains(gen.prompts[0], want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestClassifyFastPathSkipsModel(t *testing.T) {
	gen := &fakeGenerator{}
	r := New(gen, Options{}, nil).Classify(context.Background(), "undo", nil, testNow)
	if r.Intent == nil || r.Intent.Type != intent.Undo {
		t.Fatalf("Classify(undo) = %+v", r)
	}
	if len(gen.prompts) != 0 {
		t.Error("fast path called the model")
	}
}

func TestClassifyFailuresBecomeUnknown(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
		opts Options
	}{
		{"model error", &fakeGenerator{err: errors.New("connection refused")}, Options{}},
		{"not json", &fakeGenerator{out: `[1,2,3]`}, Options{}},
		{"timeout", &fakeGenerator{block: true}, Options{Timeout: 10 * time.Millisecond}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.gen, tt.opts, nil).Classify(context.Background(), "blah", nil, testNow)
			if r.Type != TypeUnknown || r.Confidence != 0 || r.Reasoning == "" {
				t.Errorf("Classify() = %+v, want unknown with zero confidence", r)
			}
		})
	}
}

func TestSchemaListsEveryType(t *testing.T) {
	props := Schema()["properties"].(map[string]any)
	enum := props["type"].(map[string]any)["enum"].([]string)
	if len(enum) != 5 {
		t.Errorf("type enum = %v", enum)
	}
}
