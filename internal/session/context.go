// Package session holds each user's conversation context: explicit
// preferences, learned word associations, cached entities, and a short
// lived session used for pronoun resolution, undo, and multi-turn flows.
//
// Contexts are read as snapshots and changed only through [Manager.Update],
// which merges a [Delta] under a per-user lock. Nothing outside this
// package mutates a stored context in place.
package session

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/nugget/errand/internal/undo"
)

// TaskRef is a task the user recently touched.
type TaskRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// PersonRef is a person the user recently mentioned.
type PersonRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Flow kinds.
const (
	FlowClarifyTask = "clarify_task"
)

// Flow is an in-progress multi-turn exchange. State is opaque to this
// package; the owner of Kind decodes it.
type Flow struct {
	Kind    string          `json:"kind"`
	State   json.RawMessage `json:"state,omitempty"`
	Started time.Time       `json:"started"`
}

// Turn is one line of recent conversation.
type Turn struct {
	Role string    `json:"role"` // "user" or "assistant"
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Session is the short-term memory that expires after inactivity.
type Session struct {
	RecentTasks       []TaskRef   `json:"recent_tasks,omitempty"`
	RecentPeople      []PersonRef `json:"recent_people,omitempty"`
	LastCreatedTaskID string      `json:"last_created_task_id,omitempty"`
	ActiveFlow        *Flow       `json:"active_flow,omitempty"`
	UndoStack         undo.Stack  `json:"undo_stack,omitempty"`
	RecentTurns       []Turn      `json:"recent_turns,omitempty"`
	ExpiresAt         time.Time   `json:"expires_at"`
}

// KnowsTask reports whether id is among the recent tasks.
func (s *Session) KnowsTask(id string) bool {
	for _, t := range s.RecentTasks {
		if t.ID == id {
			return true
		}
	}
	return id != "" && id == s.LastCreatedTaskID
}

// KnowsPerson reports whether id is among the recent people.
func (s *Session) KnowsPerson(id string) bool {
	for _, p := range s.RecentPeople {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Pattern is a learned association between a word the user writes and a
// field value they meant, e.g. "dentist" -> context=phone.
type Pattern struct {
	Word        string    `json:"word"`
	Field       string    `json:"field"`
	Value       string    `json:"value"`
	Occurrences int       `json:"occurrences"`
	Confidence  float64   `json:"confidence"`
	LastSeen    time.Time `json:"last_seen"`
}

// EntityCache is a cached copy of structure that lives in the task store.
type EntityCache struct {
	People      []PersonRef `json:"people,omitempty"`
	Projects    []TaskRef   `json:"projects,omitempty"`
	RefreshedAt time.Time   `json:"refreshed_at"`
}

// Stale reports whether the cache is older than ttl at now.
func (e EntityCache) Stale(now time.Time, ttl time.Duration) bool {
	return e.RefreshedAt.IsZero() || now.Sub(e.RefreshedAt) > ttl
}

// ConversationContext is everything remembered about one user.
type ConversationContext struct {
	UserID      string            `json:"user_id"`
	Preferences map[string]string `json:"preferences,omitempty"`
	Patterns    []Pattern         `json:"patterns,omitempty"`
	Session     *Session          `json:"session,omitempty"`
	Entities    EntityCache       `json:"entities"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TimezoneKey is the preference holding the user's IANA timezone.
const TimezoneKey = "timezone"

// Location returns the user's timezone, or fallback when none is set
// or the stored name no longer loads.
func (c *ConversationContext) Location(fallback *time.Location) *time.Location {
	if name, ok := c.Preference(TimezoneKey); ok && name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}

// Preference returns a preference value and whether it is set.
func (c *ConversationContext) Preference(key string) (string, bool) {
	v, ok := c.Preferences[key]
	return v, ok
}

// TopPatterns returns up to n patterns, highest confidence first.
// Patterns are ranking hints for prompts; callers must not treat a low
// confidence as a reason to ignore what the user said.
func (c *ConversationContext) TopPatterns(n int) []Pattern {
	out := append([]Pattern(nil), c.Patterns...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Occurrences > out[j].Occurrences
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func newContext(userID string) *ConversationContext {
	return &ConversationContext{
		UserID:      userID,
		Preferences: make(map[string]string),
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
