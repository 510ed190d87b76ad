package classifier

import (
	"fmt"
	"math"
	"strings"

	"github.com/nugget/errand/internal/gtd"
	"github.com/nugget/errand/internal/intent"
)

// Type discriminates a Result.
type Type string

const (
	TypeTask               Type = "task"
	TypeMultiItem          Type = "multi_item"
	TypeIntent             Type = "intent"
	TypeNeedsClarification Type = "needs_clarification"
	TypeUnknown            Type = "unknown"
)

// Source says where a Result came from.
type Source string

const (
	SourceModel    Source = "model"
	SourceFastPath Source = "fast_path"
)

// DefaultMaxItems caps a multi-item capture.
const DefaultMaxItems = 10

// defaultConfidence is used when the model gives no usable confidence.
const defaultConfidence = 0.5

// DefaultClarification is asked when the model wants clarification but
// did not say what to ask.
const DefaultClarification = "Sorry, could you say that another way?"

// Result is a normalized classification. Exactly one payload is set,
// matching Type: Task for task, Items for multi_item, Intent for intent,
// ClarificationQuestion for needs_clarification, nothing for unknown.
type Result struct {
	Type       Type    `json:"type"`
	Confidence float64 `json:"confidence"`

	Task                  *gtd.TaskDraft  `json:"task,omitempty"`
	Items                 []gtd.TaskDraft `json:"items,omitempty"`
	Intent                *intent.Intent  `json:"intent,omitempty"`
	RequiredLookups       []string        `json:"required_lookups,omitempty"`
	ClarificationQuestion string          `json:"clarification_question,omitempty"`

	// NeedsDataLookup comes from the intent table, never from the model.
	NeedsDataLookup bool   `json:"needs_data_lookup"`
	Reasoning       string `json:"reasoning,omitempty"`

	// Truncated counts multi-item entries dropped by the item cap.
	// Untitled counts those dropped for having no title.
	Truncated int    `json:"truncated,omitempty"`
	Untitled  int    `json:"untitled,omitempty"`
	Source    Source `json:"source"`
}

// Unknown returns an unknown result with the given cause.
func Unknown(confidence float64, reasoning string) Result {
	return Result{
		Type:       TypeUnknown,
		Confidence: clamp(confidence),
		Reasoning:  reasoning,
		Source:     SourceModel,
	}
}

// Limits bounds normalization.
type Limits struct {
	MaxItems int
}

// Normalize turns raw model output into a Result. It never fails: what
// cannot be understood becomes unknown, and enumerated fields that do
// not parse are dropped.
func Normalize(raw map[string]any, message string, lim Limits) Result {
	if lim.MaxItems <= 0 {
		lim.MaxItems = DefaultMaxItems
	}
	conf := confidence(raw["confidence"])
	reasoning := str(raw, "reasoning")

	switch Type(strings.ToLower(str(raw, "type"))) {
	case TypeTask:
		m, _ := raw["task"].(map[string]any)
		if m == nil {
			// Some models put task fields at the top level.
			m = raw
		}
		d := draft(m)
		if d.Title == "" {
			d.Title = strings.TrimSpace(message)
		}
		FlagMissing(&d)
		return Result{Type: TypeTask, Confidence: conf, Task: &d, Reasoning: reasoning, Source: SourceModel}

	case TypeMultiItem:
		list, _ := raw["items"].([]any)
		var (
			items    []gtd.TaskDraft
			untitled int
		)
		for _, v := range list {
			m, _ := v.(map[string]any)
			d := draft(m)
			if d.Title == "" {
				untitled++
				continue
			}
			FlagMissing(&d)
			items = append(items, d)
		}
		if len(items) == 0 {
			return Unknown(conf, "multi_item with no usable items")
		}
		r := Result{Type: TypeMultiItem, Confidence: conf, Reasoning: reasoning, Source: SourceModel, Untitled: untitled}
		if len(items) > lim.MaxItems {
			r.Truncated = len(items) - lim.MaxItems
			items = items[:lim.MaxItems]
		}
		r.Items = items
		return r

	case TypeIntent:
		var typeName string
		var entities map[string]any
		switch v := raw["intent"].(type) {
		case map[string]any:
			typeName = str(v, "type")
			entities, _ = v["entities"].(map[string]any)
		case string:
			typeName = v
		}
		if entities == nil {
			entities, _ = raw["entities"].(map[string]any)
		}
		t, ok := intent.Parse(typeName)
		if !ok {
			return Unknown(conf, fmt.Sprintf("unrecognized intent %q", typeName))
		}
		return Result{
			Type:            TypeIntent,
			Confidence:      conf,
			Intent:          &intent.Intent{Type: t, Entities: intent.ParseEntities(entities)},
			RequiredLookups: lookups(raw["required_lookups"]),
			NeedsDataLookup: t.NeedsDataLookup(),
			Reasoning:       reasoning,
			Source:          SourceModel,
		}

	case TypeNeedsClarification:
		q := str(raw, "clarification_question")
		if q == "" {
			q = DefaultClarification
		}
		return Result{Type: TypeNeedsClarification, Confidence: conf, ClarificationQuestion: q, Reasoning: reasoning, Source: SourceModel}

	case TypeUnknown:
		return Unknown(conf, reasoning)

	default:
		return Unknown(conf, fmt.Sprintf("unrecognized type %q", str(raw, "type")))
	}
}

func draft(m map[string]any) gtd.TaskDraft {
	d := gtd.TaskDraft{
		Title:      str(m, "title"),
		PersonName: str(m, "person_name"),
		Notes:      str(m, "notes"),
	}
	if v, ok := gtd.ParseTaskType(str(m, "type")); ok {
		d.Type = v
	}
	if v, ok := gtd.ParseContext(str(m, "context")); ok {
		d.Context = v
	}
	if v, ok := gtd.ParsePriority(str(m, "priority")); ok {
		d.Priority = v
	}
	if v := str(m, "due_date"); gtd.ValidDate(v) {
		d.DueDate = v
	}
	return d
}

// FlagMissing records what a draft still needs. A draft without a type
// is never defaulted to an action.
func FlagMissing(d *gtd.TaskDraft) {
	d.Missing = nil
	if d.Type == "" {
		d.Missing = append(d.Missing, gtd.FieldType)
	}
	if d.Type.NeedsPerson() && d.PersonName == "" {
		d.Missing = append(d.Missing, gtd.FieldPersonName)
	}
}

func confidence(v any) float64 {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) {
		return defaultConfidence
	}
	return clamp(f)
}

func clamp(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func lookups(v any) []string {
	list, _ := v.([]any)
	var out []string
	seen := make(map[string]bool)
	for _, item := range list {
		s, ok := item.(string)
		s = strings.ToLower(strings.TrimSpace(s))
		if !ok || s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}
