package session

import (
	"strings"
	"time"

	"github.com/nugget/errand/internal/undo"
)

// TrackEntities names tasks and people a turn touched, most relevant
// first. Tools return one with each result.
type TrackEntities struct {
	Tasks       []TaskRef   `json:"tasks,omitempty"`
	People      []PersonRef `json:"people,omitempty"`
	LastCreated string      `json:"last_created,omitempty"`
}

// Add appends other's entities after t's. t's LastCreated wins when set.
func (t *TrackEntities) Add(other *TrackEntities) {
	if other == nil {
		return
	}
	t.Tasks = append(t.Tasks, other.Tasks...)
	t.People = append(t.People, other.People...)
	if t.LastCreated == "" {
		t.LastCreated = other.LastCreated
	}
}

// Correction records the user overriding an inferred field. Words are
// the significant words of the text the wrong value was inferred from.
type Correction struct {
	Words []string
	Field string
	Value string
}

// Delta is one turn's worth of changes to a context.
type Delta struct {
	Track    *TrackEntities
	PushUndo []undo.Action

	// Flow replaces the active flow; ClearFlow removes it. ClearFlow
	// wins when both are set.
	Flow      *Flow
	ClearFlow bool

	Preferences       map[string]string
	RemovePreferences []string
	Correction        *Correction
	Entities          *EntityCache
	Turns             []Turn
}

// Limits bounds the session lists.
type Limits struct {
	RecentTasks  int
	RecentPeople int
	UndoDepth    int
	RecentTurns  int
}

// Pattern learning constants.
const (
	initialConfidence = 0.3
	reinforceRate     = 0.25
)

// apply merges d into c at now. c must be a private copy.
func apply(c *ConversationContext, d Delta, lim Limits, now time.Time) {
	s := c.Session

	if d.Track != nil {
		s.RecentTasks = mergeRefs(d.Track.Tasks, s.RecentTasks, func(r TaskRef) string { return r.ID }, lim.RecentTasks)
		s.RecentPeople = mergeRefs(d.Track.People, s.RecentPeople, func(r PersonRef) string { return r.ID }, lim.RecentPeople)
		if d.Track.LastCreated != "" {
			s.LastCreatedTaskID = d.Track.LastCreated
		}
	}

	for _, a := range d.PushUndo {
		if a.Recorded.IsZero() {
			a.Recorded = now
		}
		s.UndoStack = s.UndoStack.Push(a, lim.UndoDepth)
	}

	switch {
	case d.ClearFlow:
		s.ActiveFlow = nil
	case d.Flow != nil:
		f := *d.Flow
		if f.Started.IsZero() {
			f.Started = now
		}
		s.ActiveFlow = &f
	}

	if c.Preferences == nil {
		c.Preferences = make(map[string]string)
	}
	for k, v := range d.Preferences {
		c.Preferences[k] = v
	}
	for _, k := range d.RemovePreferences {
		delete(c.Preferences, k)
	}

	if d.Correction != nil {
		c.Patterns = learn(c.Patterns, *d.Correction, now)
	}

	if d.Entities != nil {
		c.Entities = *d.Entities
	}

	if len(d.Turns) > 0 {
		s.RecentTurns = append(s.RecentTurns, d.Turns...)
		if over := len(s.RecentTurns) - lim.RecentTurns; lim.RecentTurns > 0 && over > 0 {
			s.RecentTurns = append([]Turn(nil), s.RecentTurns[over:]...)
		}
	}
}

// mergeRefs puts fresh in front of existing, keeps the first occurrence
// of each id, and truncates to limit.
func mergeRefs[T any](fresh, existing []T, id func(T) string, limit int) []T {
	out := make([]T, 0, len(fresh)+len(existing))
	seen := make(map[string]bool, len(fresh)+len(existing))
	for _, list := range [][]T{fresh, existing} {
		for _, r := range list {
			k := id(r)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// learn reinforces the pattern for each corrected word, or starts a new
// tentative one. Confidence approaches 1 and never exceeds it.
func learn(patterns []Pattern, c Correction, now time.Time) []Pattern {
	out := append([]Pattern(nil), patterns...)
	field := strings.ToLower(strings.TrimSpace(c.Field))
	value := strings.ToLower(strings.TrimSpace(c.Value))
	if field == "" || value == "" {
		return out
	}
	for _, w := range c.Words {
		word := strings.ToLower(strings.TrimSpace(w))
		if word == "" {
			continue
		}
		matched := false
		for i := range out {
			p := &out[i]
			if p.Word == word && p.Field == field && p.Value == value {
				p.Occurrences++
				p.Confidence = reinforce(p.Confidence)
				p.LastSeen = now
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, Pattern{
				Word:        word,
				Field:       field,
				Value:       value,
				Occurrences: 1,
				Confidence:  initialConfidence,
				LastSeen:    now,
			})
		}
	}
	return out
}

func reinforce(c float64) float64 {
	c += (1 - c) * reinforceRate
	if c > 1 {
		return 1
	}
	return c
}
