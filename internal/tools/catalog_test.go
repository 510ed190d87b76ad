package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/nugget/errand/internal/gtd"
	"github.com/nugget/errand/internal/undo"
)

func TestCreateTaskResolvesPerson(t *testing.T) {
	ctx := context.Background()
	r, ec := testRegistry(), testExec(t)

	alice, err := ec.Store.CreatePerson(ctx, ec.UserID, gtd.Person{Name: "Alice Moreno", Aliases: []string{"Al"}})
	if err != nil {
		t.Fatalf("CreatePerson() error: %v", err)
	}

	res := r.Execute(ctx, ec, "create_task", map[string]any{
		"title": "Contract draft", "type": "waiting", "person_name": "al",
	})
	if !res.Success {
		t.Fatalf("create_task failed: %s", res.Error)
	}
	task := res.Data.(*gtd.Task)
	if task.PersonID != alice.ID || task.PersonName != "Alice Moreno" {
		t.Errorf("person = %q/%q, want resolved to %s", task.PersonID, task.PersonName, alice.ID)
	}
	if res.Undo == nil || res.Undo.Kind != undo.KindDeleteCreatedTask || res.Undo.TaskID != task.ID {
		t.Errorf("undo = %+v", res.Undo)
	}
	if res.Track == nil || res.Track.LastCreated != task.ID {
		t.Errorf("track = %+v", res.Track)
	}

	res = r.Execute(ctx, ec, "create_task", map[string]any{
		"title": "Ask about invoice", "type": "agenda", "person_name": "Bob",
	})
	if !res.Success {
		t.Fatalf("create_task failed: %s", res.Error)
	}
	if got := res.Data.(*gtd.Task); got.PersonID != "" || got.PersonName != "Bob" {
		t.Errorf("unmatched person = %q/%q, want raw name kept", got.PersonID, got.PersonName)
	}
}

func TestCreateTaskRequiresPersonForWaiting(t *testing.T) {
	r, ec := testRegistry(), testExec(t)
	res := r.Execute(context.Background(), ec, "create_task", map[string]any{"title": "Report", "type": "waiting"})
	if res.Success || !strings.Contains(res.Error, "person_name is required") {
		t.Errorf("create_task = %+v", res)
	}
}

func TestCreateTaskRejectsBadEnum(t *testing.T) {
	r, ec := testRegistry(), testExec(t)
	res := r.Execute(context.Background(), ec, "create_task", map[string]any{"title": "x", "type": "chore"})
	if res.Success || !strings.HasPrefix(res.Error, "invalid arguments") {
		t.Errorf("create_task = %+v", res)
	}
}

func TestBatchCreatePartialSuccess(t *testing.T) {
	ctx := context.Background()
	r, ec := testRegistry(), testExec(t)

	res := r.Execute(ctx, ec, "batch_create_tasks", map[string]any{
		"items": []any{
			map[string]any{"title": "Buy milk", "type": "action", "context": "errands"},
			map[string]any{"title": "Mystery item"},
			map[string]any{"title": "Learn piano", "type": "someday"},
			map[string]any{"title": "Budget", "type": "banana"},
		},
	})
	if !res.Success {
		t.Fatalf("batch failed: %s", res.Error)
	}
	data := res.Data.(map[string]any)
	created := data["created"].([]gtd.Task)
	failed := data["failed"].([]BatchFailure)
	if len(created) != 2 || len(failed) != 2 {
		t.Fatalf("created=%d failed=%d, want 2/2", len(created), len(failed))
	}
	if failed[0].Item["title"] != "Mystery item" || !strings.Contains(failed[0].Error, "type is required") {
		t.Errorf("failed[0] = %+v", failed[0])
	}
	if res.Undo == nil || res.Undo.Kind != undo.KindDeleteCreatedTasks || len(res.Undo.TaskIDs) != 2 {
		t.Errorf("undo = %+v", res.Undo)
	}

	stats, _ := ec.Store.Stats(ctx, ec.UserID)
	if stats.Created != 2 {
		t.Errorf("created stat = %d, want 2", stats.Created)
	}
}

func TestBatchCreateMalformedItem(t *testing.T) {
	tests := []struct {
		name    string
		bad     any
		wantErr string
	}{
		{"missing title", map[string]any{"type": "action"}, "title: is required"},
		{"bare string", "buy eggs", "item must be an object"},
		{"unknown key", map[string]any{"title": "Eggs", "type": "action", "due": "friday"}, "due: unknown property"},
		{"wrong type", map[string]any{"title": 42, "type": "action"}, "title: expected string"},
		{"null entry", nil, "item must be an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			r, ec := testRegistry(), testExec(t)

			res := r.Execute(ctx, ec, "batch_create_tasks", map[string]any{
				"items": []any{
					map[string]any{"title": "Milk", "type": "action"},
					map[string]any{"title": "Bread", "type": "action", "context": "errands"},
					map[string]any{"title": "Call mom", "type": "action", "context": "phone"},
					tt.bad,
				},
			})
			if !res.Success {
				t.Fatalf("batch rejected: %s", res.Error)
			}
			data := res.Data.(map[string]any)
			created := data["created"].([]gtd.Task)
			failed := data["failed"].([]BatchFailure)
			if len(created) != 3 || len(failed) != 1 {
				t.Fatalf("created=%d failed=%d, want 3/1", len(created), len(failed))
			}
			if failed[0].Index != 3 || !strings.Contains(failed[0].Error, tt.wantErr) {
				t.Errorf("failure = %+v, want index 3 and %q", failed[0], tt.wantErr)
			}
			if res.Undo == nil || len(res.Undo.TaskIDs) != 3 {
				t.Fatalf("undo = %+v", res.Undo)
			}
			for i, id := range res.Undo.TaskIDs {
				if id != created[i].ID {
					t.Errorf("undo id %d = %s, want %s", i, id, created[i].ID)
				}
			}
		})
	}
}

func TestBatchCreateOverLimit(t *testing.T) {
	r := NewRegistry(nil)
	RegisterCatalog(r, CatalogOptions{MaxBatchItems: 2})
	ec := testExec(t)

	items := []any{
		map[string]any{"title": "a", "type": "action"},
		map[string]any{"title": "b", "type": "action"},
		map[string]any{"title": "c", "type": "action"},
	}
	res := r.Execute(context.Background(), ec, "batch_create_tasks", map[string]any{"items": items})
	if res.Success || !strings.Contains(res.Error, "at most 2") {
		t.Errorf("batch over limit = %+v", res)
	}
}

func TestBatchCreateAllFail(t *testing.T) {
	r, ec := testRegistry(), testExec(t)
	res := r.Execute(context.Background(), ec, "batch_create_tasks", map[string]any{
		"items": []any{map[string]any{"title": "untyped"}},
	})
	if res.Success || res.Undo != nil {
		t.Errorf("batch all-fail = %+v", res)
	}
}

func TestUpdateTaskReturnsRevert(t *testing.T) {
	ctx := context.Background()
	r, ec := testRegistry(), testExec(t)

	created := r.Execute(ctx, ec, "create_task", map[string]any{"title": "Pay rent", "type": "action", "priority": "soon"}).Data.(*gtd.Task)

	res := r.Execute(ctx, ec, "update_task", map[string]any{"task_id": created.ID, "priority": "today", "clear": []any{"notes"}})
	if !res.Success {
		t.Fatalf("update_task failed: %s", res.Error)
	}
	if got := res.Data.(*gtd.Task); got.Priority != gtd.PriorityToday {
		t.Errorf("priority = %q", got.Priority)
	}
	if res.Undo == nil || res.Undo.TaskFields == nil || *res.Undo.TaskFields.Priority != gtd.PrioritySoon {
		t.Errorf("undo = %+v", res.Undo)
	}

	res = r.Execute(ctx, ec, "update_task", map[string]any{"task_id": created.ID})
	if res.Success || res.Error != "nothing to change" {
		t.Errorf("empty update = %+v", res)
	}

	res = r.Execute(ctx, ec, "update_task", map[string]any{"task_id": "nope", "title": "x"})
	if res.Success || res.Error != "task not found" {
		t.Errorf("missing task update = %+v", res)
	}
}

func TestCompleteAndDelete(t *testing.T) {
	ctx := context.Background()
	r, ec := testRegistry(), testExec(t)

	a := r.Execute(ctx, ec, "create_task", map[string]any{"title": "Water plants", "type": "action"}).Data.(*gtd.Task)
	b := r.Execute(ctx, ec, "create_task", map[string]any{"title": "Old idea", "type": "someday"}).Data.(*gtd.Task)

	res := r.Execute(ctx, ec, "complete_task", map[string]any{"task_id": a.ID})
	if !res.Success || res.Undo.Kind != undo.KindUncompleteTask {
		t.Fatalf("complete_task = %+v", res)
	}
	res = r.Execute(ctx, ec, "complete_task", map[string]any{"task_id": a.ID})
	if res.Success || res.Error != "task is already completed" {
		t.Errorf("second complete = %+v", res)
	}

	res = r.Execute(ctx, ec, "delete_task", map[string]any{"task_id": b.ID})
	if !res.Success || res.Undo.Kind != undo.KindRestoreDeletedTask || res.Undo.Task.Title != "Old idea" {
		t.Fatalf("delete_task = %+v", res)
	}
}

func TestLookupTasks(t *testing.T) {
	ctx := context.Background()
	r, ec := testRegistry(), testExec(t)

	for _, args := range []map[string]any{
		{"title": "Call dentist", "type": "action", "context": "phone"},
		{"title": "Email landlord", "type": "action", "context": "computer"},
		{"title": "Report from Sam", "type": "waiting", "person_name": "Sam"},
	} {
		if res := r.Execute(ctx, ec, "create_task", args); !res.Success {
			t.Fatalf("create_task(%v): %s", args, res.Error)
		}
	}

	tests := []struct {
		name string
		args map[string]any
		want int
	}{
		{"all", map[string]any{}, 3},
		{"query", map[string]any{"query": "DENTIST"}, 1},
		{"context", map[string]any{"context": "computer"}, 1},
		{"person raw name", map[string]any{"person": "sam"}, 1},
		{"no match", map[string]any{"query": "zebra"}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := r.Execute(ctx, ec, "lookup_tasks", tc.args)
			if !res.Success {
				t.Fatalf("lookup_tasks failed: %s", res.Error)
			}
			if got := res.Data.(map[string]any)["count"]; got != tc.want {
				t.Errorf("count = %v, want %d", got, tc.want)
			}
		})
	}
}

func TestGetToday(t *testing.T) {
	ctx := context.Background()
	r, ec := testRegistry(), testExec(t)

	for _, args := range []map[string]any{
		{"title": "Overdue bill", "type": "action", "due_date": "2026-03-10"},
		{"title": "Due today", "type": "action", "due_date": "2026-03-14"},
		{"title": "Flagged", "type": "action", "priority": "today"},
		{"title": "Later", "type": "action", "due_date": "2026-04-01"},
	} {
		r.Execute(ctx, ec, "create_task", args)
	}

	res := r.Execute(ctx, ec, "get_today", nil)
	if !res.Success {
		t.Fatalf("get_today failed: %s", res.Error)
	}
	data := res.Data.(map[string]any)
	if data["date"] != "2026-03-14" {
		t.Errorf("date = %v", data["date"])
	}
	for key, want := range map[string]int{"overdue": 1, "due": 1, "priority": 1} {
		if got := len(data[key].([]gtd.Task)); got != want {
			t.Errorf("%s = %d, want %d", key, got, want)
		}
	}
}

func TestPeopleTools(t *testing.T) {
	ctx := context.Background()
	r, ec := testRegistry(), testExec(t)

	res := r.Execute(ctx, ec, "create_person", map[string]any{"name": "Dana Scully", "aliases": []any{"Dana"}})
	if !res.Success || res.Undo.Kind != undo.KindDeleteCreatedPerson {
		t.Fatalf("create_person = %+v", res)
	}
	dana := res.Data.(*gtd.Person)

	res = r.Execute(ctx, ec, "create_person", map[string]any{"name": "dana scully"})
	if res.Success || res.Error != "person already exists" {
		t.Errorf("duplicate create_person = %+v", res)
	}

	res = r.Execute(ctx, ec, "find_people", map[string]any{"name": "dan"})
	if !res.Success || res.Data.(map[string]any)["count"] != 1 {
		t.Errorf("find_people = %+v", res)
	}

	res = r.Execute(ctx, ec, "update_person", map[string]any{"person_id": dana.ID, "phone": "555-0100"})
	if !res.Success || res.Undo.Kind != undo.KindRevertPersonUpdate {
		t.Errorf("update_person = %+v", res)
	}

	res = r.Execute(ctx, ec, "delete_person", map[string]any{"person_id": dana.ID})
	if !res.Success || res.Undo.Kind != undo.KindRestorePerson || res.Undo.Person.Phone != "555-0100" {
		t.Errorf("delete_person = %+v", res)
	}
}

func TestSetPreference(t *testing.T) {
	ctx := context.Background()
	r, ec := testRegistry(), testExec(t)

	res := r.Execute(ctx, ec, "set_preference", map[string]any{"key": "digest_time", "value": "7:30am"})
	if !res.Success {
		t.Fatalf("set_preference failed: %s", res.Error)
	}
	if got := res.Data.(map[string]any)["value"]; got != "07:30" {
		t.Errorf("value = %v, want 07:30", got)
	}
	if p := res.Undo.Preference; p == nil || p.Existed {
		t.Errorf("undo = %+v, want non-existing previous", res.Undo)
	}

	res = r.Execute(ctx, ec, "set_preference", map[string]any{"key": "timezone", "value": "Mars/Olympus"})
	if res.Success {
		t.Error("set_preference accepted an unknown timezone")
	}
}

func TestNormalizePreference(t *testing.T) {
	tests := []struct {
		key, value, want string
		wantErr          bool
	}{
		{PrefTimezone, "America/Denver", "America/Denver", false},
		{PrefTimezone, "", "", true},
		{PrefDigestTime, "18:05", "18:05", false},
		{PrefDigestTime, "6pm", "18:00", false},
		{PrefDigestTime, "dinner", "", true},
		{PrefReviewDay, "Fri", "friday", false},
		{PrefReviewFrequency, "Weekly", "weekly", false},
		{PrefDefaultContext, "@home", "home", false},
		{"volume", "11", "", true},
	}
	for _, tc := range tests {
		got, err := NormalizePreference(tc.key, tc.value)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("NormalizePreference(%q, %q) = %q, %v", tc.key, tc.value, got, err)
		}
	}
}
