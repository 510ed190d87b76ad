package session

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSummary(t *testing.T) {
	c := newContext("u1")
	c.Session = &Session{
		RecentTasks:       []TaskRef{{ID: "t2", Title: "Call Sam"}, {ID: "t1", Title: "Buy milk"}},
		RecentPeople:      []PersonRef{{ID: "p1", Name: "Sarah"}},
		LastCreatedTaskID: "t2",
		ActiveFlow:        &Flow{Kind: FlowClarifyTask, State: json.RawMessage(`{"title":"Budget"}`)},
	}
	c.Entities.People = []PersonRef{{ID: "p1", Name: "Sarah"}, {ID: "p2", Name: "Alex"}}
	c.Patterns = []Pattern{
		{Word: "dentist", Field: "context", Value: "phone", Confidence: 0.8},
		{Word: "report", Field: "context", Value: "computer", Confidence: 0.3},
	}
	c.Preferences["timezone"] = "America/Chicago"

	got := c.Summary(0.6, 0)
	for _, want := range []string{
		"In progress: clarify_task",
		"- t2 Call Sam [just added]",
		"- t1 Buy milk\n",
		"- p1 Sarah",
		"Known people: Sarah, Alex",
		`"dentist" usually means context=phone (strong)`,
		`"report" usually means context=computer (tentative)`,
		"timezone=America/Chicago",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Summary() missing %q\n%s", want, got)
		}
	}
	if strings.Index(got, "dentist") > strings.Index(got, "report") {
		t.Error("patterns should be ranked by confidence")
	}
}

func TestSummaryEmpty(t *testing.T) {
	c := newContext("u1")
	c.Session = &Session{ExpiresAt: time.Now()}
	if got := c.Summary(0.6, 5); got != "" {
		t.Errorf("Summary() of empty context = %q, want empty", got)
	}
}

func TestTranscript(t *testing.T) {
	s := &Session{RecentTurns: []Turn{{Role: "user", Text: "buy milk"}, {Role: "assistant", Text: "Added."}}}
	if got := s.Transcript(); got != "user: buy milk\nassistant: Added." {
		t.Errorf("Transcript() = %q", got)
	}
}
