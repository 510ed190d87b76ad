package prompts

import (
	"strings"
	"testing"

	"github.com/nugget/errand/internal/gtd"
)

func TestClassifierPrompt(t *testing.T) {
	result := ClassifierPrompt("buy milk", "Sat 2026-03-14 10:00 EDT", "Recent tasks:\n- t1 Call Sam", 10)

	for _, want := range []string{"buy milk", "Sat 2026-03-14", "t1 Call Sam", "at most 10", "correct_last"} {
		if !strings.Contains(result, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if !strings.HasSuffix(result, "JSON:") {
		t.Error("prompt should end with the JSON cue")
	}
}

func TestClassifierPromptEmptyMemory(t *testing.T) {
	if !strings.Contains(ClassifierPrompt("x", "now", "", 5), "Memory: (none)") {
		t.Error("empty memory should render a placeholder")
	}
}

func TestAgentSystemPrompt(t *testing.T) {
	result := AgentSystemPrompt("Sat 10:00", "Recent people:\n- p1 Sarah", "complete_task task_query=dentist", "- get_task (lookup): Fetch one task.")
	for _, want := range []string{"Sat 10:00", "p1 Sarah", "task_query=dentist", "get_task (lookup)", "Never invent a task_id"} {
		if !strings.Contains(result, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestReplies(t *testing.T) {
	if !strings.Contains(WhoIsItForText("Budget", false), "waiting on") {
		t.Error("waiting clarification should ask who they are waiting on")
	}
	if !strings.Contains(WhoIsItForText("Budget", true), "discuss") {
		t.Error("agenda clarification should ask who to discuss with")
	}
	if got := UncertainActionNotice("complete_task"); !strings.Contains(got, "may not have completed") {
		t.Errorf("UncertainActionNotice() = %q", got)
	}
	if got := SkippedActionNote("delete_task", "t9"); !strings.Contains(got, `"t9"`) {
		t.Errorf("SkippedActionNote() = %q", got)
	}
}

func TestCapturedText(t *testing.T) {
	tests := []struct {
		name string
		task gtd.Task
		want string
	}{
		{"plain action", gtd.Task{Title: "Buy milk", Type: gtd.TypeAction}, `Added "Buy milk".`},
		{"details", gtd.Task{Title: "Call mom", Type: gtd.TypeAction, Context: gtd.ContextPhone, DueDate: "2026-03-20"}, `Added "Call mom" (@phone, due 2026-03-20).`},
		{"waiting", gtd.Task{Title: "Report", Type: gtd.TypeWaiting, PersonName: "Sam", Priority: gtd.PriorityThisWeek}, `Added "Report" (waiting, Sam, this week).`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CapturedText(tt.task); got != tt.want {
				t.Errorf("CapturedText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBatchText(t *testing.T) {
	got := BatchText([]string{"Milk", "Eggs"}, []BatchFailure{{Title: "Paint", Reason: "type is required"}}, 2)
	for _, want := range []string{"Added 2 tasks: Milk, Eggs.", `Skipped "Paint": type is required.`, "first 3", "other 2"} {
		if !strings.Contains(got, want) {
			t.Errorf("BatchText() = %q, missing %q", got, want)
		}
	}
	if got := BatchText(nil, nil, 0); got != "I couldn't add any of those." {
		t.Errorf("BatchText(empty) = %q", got)
	}
}
