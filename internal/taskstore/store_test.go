package taskstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nugget/errand/internal/gtd"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Each pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := New(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func mustCreate(t *testing.T, s *Store, userID string, task gtd.Task) *gtd.Task {
	t.Helper()
	created, err := s.CreateTask(context.Background(), userID, task)
	if err != nil {
		t.Fatalf("CreateTask(%q): %v", task.Title, err)
	}
	return created
}

func TestCreateAndGetTask(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created := mustCreate(t, s, "u1", gtd.Task{Title: "Call dentist", Type: gtd.TypeAction, Context: gtd.ContextPhone})
	if created.ID == "" {
		t.Fatal("CreateTask() returned empty id")
	}
	if created.Status != gtd.StatusActive {
		t.Errorf("Status = %q, want %q", created.Status, gtd.StatusActive)
	}

	got, err := s.GetTask(ctx, "u1", created.ID)
	if err != nil {
		t.Fatalf("GetTask() error: %v", err)
	}
	if got.Title != "Call dentist" || got.Context != gtd.ContextPhone {
		t.Errorf("GetTask() = %+v", got)
	}
}

func TestCreateTaskRequiresTitleAndType(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateTask(ctx, "u1", gtd.Task{Type: gtd.TypeAction}); err == nil {
		t.Error("CreateTask() without title should fail")
	}
	if _, err := s.CreateTask(ctx, "u1", gtd.Task{Title: "x"}); err == nil {
		t.Error("CreateTask() without type should fail")
	}
}

func TestUserScoping(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created := mustCreate(t, s, "alice", gtd.Task{Title: "secret", Type: gtd.TypeAction})

	if _, err := s.GetTask(ctx, "bob", created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTask(other user) error = %v, want ErrNotFound", err)
	}
	if _, err := s.DeleteTask(ctx, "bob", created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteTask(other user) error = %v, want ErrNotFound", err)
	}
	tasks, err := s.QueryTasks(ctx, "bob", gtd.Filter{})
	if err != nil {
		t.Fatalf("QueryTasks() error: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("QueryTasks(bob) returned %d tasks, want 0", len(tasks))
	}
}

func TestUpdateTaskReturnsPrevious(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created := mustCreate(t, s, "u1", gtd.Task{Title: "Draft report", Type: gtd.TypeAction, Priority: gtd.PrioritySoon})

	prio := gtd.PriorityToday
	title := "Finish report"
	updated, prev, err := s.UpdateTask(ctx, "u1", created.ID, gtd.Fields{Priority: &prio, Title: &title})
	if err != nil {
		t.Fatalf("UpdateTask() error: %v", err)
	}
	if updated.Priority != gtd.PriorityToday || updated.Title != "Finish report" {
		t.Errorf("updated = %+v", updated)
	}
	if prev.Priority == nil || *prev.Priority != gtd.PrioritySoon {
		t.Errorf("prev.Priority = %v, want soon", prev.Priority)
	}
	if prev.Title == nil || *prev.Title != "Draft report" {
		t.Errorf("prev.Title = %v, want Draft report", prev.Title)
	}
	if prev.Context != nil {
		t.Errorf("prev.Context should be nil for an unchanged field")
	}
}

func TestCompleteAndUncomplete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created := mustCreate(t, s, "u1", gtd.Task{Title: "Buy milk", Type: gtd.TypeAction})
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	done, err := s.CompleteTask(ctx, "u1", created.ID, at)
	if err != nil {
		t.Fatalf("CompleteTask() error: %v", err)
	}
	if done.Status != gtd.StatusDone || done.CompletedAt == nil {
		t.Errorf("CompleteTask() = %+v", done)
	}
	if _, err := s.CompleteTask(ctx, "u1", created.ID, at); !errors.Is(err, ErrAlreadyDone) {
		t.Errorf("second CompleteTask() error = %v, want ErrAlreadyDone", err)
	}

	st, _ := s.Stats(ctx, "u1")
	if st.Completed != 1 {
		t.Errorf("Completed = %d, want 1", st.Completed)
	}

	if _, err := s.UncompleteTask(ctx, "u1", created.ID); err != nil {
		t.Fatalf("UncompleteTask() error: %v", err)
	}
	if _, err := s.UncompleteTask(ctx, "u1", created.ID); !errors.Is(err, ErrNotDone) {
		t.Errorf("second UncompleteTask() error = %v, want ErrNotDone", err)
	}
	st, _ = s.Stats(ctx, "u1")
	if st.Completed != 0 {
		t.Errorf("Completed after uncomplete = %d, want 0", st.Completed)
	}
}

func TestRevertCreateLeavesNoTrace(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, "u1", gtd.Task{Title: "keep", Type: gtd.TypeAction})
	before, _ := s.Stats(ctx, "u1")

	created := mustCreate(t, s, "u1", gtd.Task{Title: "oops", Type: gtd.TypeAction})
	if err := s.RevertCreate(ctx, "u1", created.ID); err != nil {
		t.Fatalf("RevertCreate() error: %v", err)
	}

	after, _ := s.Stats(ctx, "u1")
	if after != before {
		t.Errorf("stats after revert = %+v, want %+v", after, before)
	}
	tasks, _ := s.QueryTasks(ctx, "u1", gtd.Filter{Query: "oops", IncludeDone: true})
	if len(tasks) != 0 {
		t.Errorf("reverted task still queryable: %+v", tasks)
	}
	if err := s.RevertCreate(ctx, "u1", created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second RevertCreate() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteAndRestore(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created := mustCreate(t, s, "u1", gtd.Task{Title: "Plan trip", Type: gtd.TypeProject, Notes: "Lisbon"})
	before, _ := s.Stats(ctx, "u1")

	snapshot, err := s.DeleteTask(ctx, "u1", created.ID)
	if err != nil {
		t.Fatalf("DeleteTask() error: %v", err)
	}
	if _, err := s.GetTask(ctx, "u1", created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetTask() after delete error = %v, want ErrNotFound", err)
	}

	restored, err := s.RestoreTask(ctx, "u1", *snapshot)
	if err != nil {
		t.Fatalf("RestoreTask() error: %v", err)
	}
	if restored.ID != created.ID || restored.Notes != "Lisbon" {
		t.Errorf("restored = %+v", restored)
	}
	if _, err := s.RestoreTask(ctx, "u1", *snapshot); !errors.Is(err, ErrExists) {
		t.Errorf("second RestoreTask() error = %v, want ErrExists", err)
	}

	after, _ := s.Stats(ctx, "u1")
	if after != before {
		t.Errorf("stats after delete+restore = %+v, want %+v", after, before)
	}
}

func TestQueryTasksFilters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, "u1", gtd.Task{Title: "Email Sam", Type: gtd.TypeAction, Context: gtd.ContextComputer, DueDate: "2026-03-02"})
	mustCreate(t, s, "u1", gtd.Task{Title: "Call mom", Type: gtd.TypeAction, Context: gtd.ContextPhone, DueDate: "2026-03-01"})
	mustCreate(t, s, "u1", gtd.Task{Title: "Contract from Sam", Type: gtd.TypeWaiting, PersonName: "Sam"})
	mustCreate(t, s, "u1", gtd.Task{Title: "Learn piano", Type: gtd.TypeSomeday})

	tests := []struct {
		name   string
		filter gtd.Filter
		want   []string
	}{
		{"all active, due first", gtd.Filter{}, []string{"Call mom", "Email Sam"}},
		{"by context", gtd.Filter{Context: gtd.ContextPhone}, []string{"Call mom"}},
		{"by type", gtd.Filter{Type: gtd.TypeWaiting}, []string{"Contract from Sam"}},
		{"by person name", gtd.Filter{PersonName: "sam"}, []string{"Contract from Sam"}},
		{"title substring", gtd.Filter{Query: "SAM"}, []string{"Email Sam", "Contract from Sam"}},
		{"due before", gtd.Filter{DueBefore: "2026-03-01"}, []string{"Call mom"}},
		{"due on", gtd.Filter{DueOn: "2026-03-02"}, []string{"Email Sam"}},
		{"limit", gtd.Filter{Limit: 1}, []string{"Call mom"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.QueryTasks(ctx, "u1", tc.filter)
			if err != nil {
				t.Fatalf("QueryTasks() error: %v", err)
			}
			if len(got) < len(tc.want) {
				t.Fatalf("QueryTasks() returned %d tasks, want at least %d", len(got), len(tc.want))
			}
			for i, title := range tc.want {
				if got[i].Title != title {
					t.Errorf("result[%d] = %q, want %q", i, got[i].Title, title)
				}
			}
			if tc.filter.Limit > 0 && len(got) > tc.filter.Limit {
				t.Errorf("limit %d ignored: got %d", tc.filter.Limit, len(got))
			}
		})
	}
}

func TestPeople(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sam, err := s.CreatePerson(ctx, "u1", gtd.Person{Name: "Samantha Reyes", Aliases: []string{"Sam"}})
	if err != nil {
		t.Fatalf("CreatePerson() error: %v", err)
	}
	if _, err := s.CreatePerson(ctx, "u1", gtd.Person{Name: "Bob"}); err != nil {
		t.Fatalf("CreatePerson(Bob) error: %v", err)
	}
	if _, err := s.CreatePerson(ctx, "u1", gtd.Person{Name: "samantha reyes"}); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate CreatePerson() error = %v, want ErrExists", err)
	}
	// Same name for a different user is fine.
	if _, err := s.CreatePerson(ctx, "u2", gtd.Person{Name: "Samantha Reyes"}); err != nil {
		t.Errorf("CreatePerson(other user) error: %v", err)
	}

	found, err := s.FindPeople(ctx, "u1", "sam")
	if err != nil {
		t.Fatalf("FindPeople() error: %v", err)
	}
	if len(found) != 1 || found[0].ID != sam.ID {
		t.Errorf("FindPeople(sam) = %+v, want Samantha", found)
	}

	phone := "+15551234"
	updated, prev, err := s.UpdatePerson(ctx, "u1", sam.ID, gtd.PersonFields{Phone: &phone})
	if err != nil {
		t.Fatalf("UpdatePerson() error: %v", err)
	}
	if updated.Phone != phone || prev.Phone == nil || *prev.Phone != "" {
		t.Errorf("UpdatePerson() = %+v prev=%+v", updated, prev)
	}

	snapshot, err := s.DeletePerson(ctx, "u1", sam.ID)
	if err != nil {
		t.Fatalf("DeletePerson() error: %v", err)
	}
	if _, err := s.GetPerson(ctx, "u1", sam.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPerson() after delete error = %v", err)
	}
	restored, err := s.RestorePerson(ctx, "u1", *snapshot)
	if err != nil {
		t.Fatalf("RestorePerson() error: %v", err)
	}
	if restored.ID != sam.ID || len(restored.Aliases) != 1 {
		t.Errorf("RestorePerson() = %+v", restored)
	}
}
