package taskstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/errand/internal/gtd"
)

const taskColumns = "id, user_id, title, type, status, context, priority, due_date, person_id, person_name, project_id, notes, created_at, updated_at, completed_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*gtd.Task, error) {
	var (
		t                    gtd.Task
		typ, status, ctx     string
		prio                 string
		createdAt, updatedAt string
		completedAt          sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &typ, &status, &ctx, &prio, &t.DueDate,
		&t.PersonID, &t.PersonName, &t.ProjectID, &t.Notes, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	t.Type = gtd.TaskType(typ)
	t.Status = gtd.Status(status)
	t.Context = gtd.Context(ctx)
	t.Priority = gtd.Priority(prio)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	if completedAt.Valid && completedAt.String != "" {
		c := parseTime(completedAt.String)
		t.CompletedAt = &c
	}
	return &t, nil
}

func insertTask(ctx context.Context, tx *sql.Tx, t *gtd.Task) error {
	var completed any
	if t.CompletedAt != nil {
		completed = formatTime(*t.CompletedAt)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Title, string(t.Type), string(t.Status), string(t.Context), string(t.Priority),
		t.DueDate, t.PersonID, t.PersonName, t.ProjectID, t.Notes,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt), completed)
	return err
}

func getTask(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, userID, id string) (*gtd.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = ? AND id = ?`, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// CreateTask stores a new task for userID and counts it in the user's
// created statistic. ID, timestamps, and status are assigned here.
func (s *Store) CreateTask(ctx context.Context, userID string, t gtd.Task) (*gtd.Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return nil, fmt.Errorf("create task: title is required")
	}
	if t.Type == "" {
		return nil, fmt.Errorf("create task: type is required")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}
	now := s.now()
	t.ID = id.String()
	t.UserID = userID
	t.Status = gtd.StatusActive
	t.CreatedAt = now
	t.UpdatedAt = now
	t.CompletedAt = nil

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertTask(ctx, tx, &t); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return bumpStat(ctx, tx, userID, statCreated, 1)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RestoreTask re-inserts a previously deleted task with its original id
// and timestamps. It is the undo path for DeleteTask: the deleted counter
// is reverted and the created counter is left alone, so a delete followed
// by a restore leaves statistics unchanged.
func (s *Store) RestoreTask(ctx context.Context, userID string, snapshot gtd.Task) (*gtd.Task, error) {
	if snapshot.ID == "" {
		return nil, fmt.Errorf("restore task: snapshot has no id")
	}
	snapshot.UserID = userID
	snapshot.UpdatedAt = s.now()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getTask(ctx, tx, userID, snapshot.ID); err == nil {
			return ErrExists
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := insertTask(ctx, tx, &snapshot); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return bumpStat(ctx, tx, userID, statDeleted, -1)
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// GetTask returns one task, or ErrNotFound.
func (s *Store) GetTask(ctx context.Context, userID, id string) (*gtd.Task, error) {
	return getTask(ctx, s.db, userID, id)
}

// UpdateTask applies fields to a task and returns the updated task along
// with the previous values of exactly the fields that were changed.
func (s *Store) UpdateTask(ctx context.Context, userID, id string, fields gtd.Fields) (*gtd.Task, gtd.Fields, error) {
	if fields.Empty() {
		return nil, gtd.Fields{}, fmt.Errorf("update task: no fields to change")
	}
	var (
		updated *gtd.Task
		prev    gtd.Fields
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := getTask(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		prev = fields.Snapshot(t)
		fields.Apply(t)
		t.UpdatedAt = s.now()
		_, err = tx.ExecContext(ctx, `UPDATE tasks SET title = ?, type = ?, context = ?, priority = ?,
			due_date = ?, person_id = ?, person_name = ?, notes = ?, updated_at = ?
			WHERE user_id = ? AND id = ?`,
			t.Title, string(t.Type), string(t.Context), string(t.Priority), t.DueDate,
			t.PersonID, t.PersonName, t.Notes, formatTime(t.UpdatedAt), userID, id)
		if err != nil {
			return fmt.Errorf("update task %s: %w", id, err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, gtd.Fields{}, err
	}
	return updated, prev, nil
}

// CompleteTask marks a task done at the given time.
func (s *Store) CompleteTask(ctx context.Context, userID, id string, at time.Time) (*gtd.Task, error) {
	var done *gtd.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := getTask(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if t.Status == gtd.StatusDone {
			return ErrAlreadyDone
		}
		t.Status = gtd.StatusDone
		t.CompletedAt = &at
		t.UpdatedAt = s.now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE tasks SET status = ?, completed_at = ?, updated_at = ? WHERE user_id = ? AND id = ?`,
			string(t.Status), formatTime(at), formatTime(t.UpdatedAt), userID, id); err != nil {
			return fmt.Errorf("complete task %s: %w", id, err)
		}
		done = t
		return bumpStat(ctx, tx, userID, statCompleted, 1)
	})
	if err != nil {
		return nil, err
	}
	return done, nil
}

// UncompleteTask reverts CompleteTask, including the completed counter.
func (s *Store) UncompleteTask(ctx context.Context, userID, id string) (*gtd.Task, error) {
	var active *gtd.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := getTask(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if t.Status != gtd.StatusDone {
			return ErrNotDone
		}
		t.Status = gtd.StatusActive
		t.CompletedAt = nil
		t.UpdatedAt = s.now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE tasks SET status = ?, completed_at = NULL, updated_at = ? WHERE user_id = ? AND id = ?`,
			string(t.Status), formatTime(t.UpdatedAt), userID, id); err != nil {
			return fmt.Errorf("uncomplete task %s: %w", id, err)
		}
		active = t
		return bumpStat(ctx, tx, userID, statCompleted, -1)
	})
	if err != nil {
		return nil, err
	}
	return active, nil
}

// DeleteTask removes a task and returns the snapshot needed to restore it.
func (s *Store) DeleteTask(ctx context.Context, userID, id string) (*gtd.Task, error) {
	var snapshot *gtd.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := getTask(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ? AND id = ?`, userID, id); err != nil {
			return fmt.Errorf("delete task %s: %w", id, err)
		}
		snapshot = t
		return bumpStat(ctx, tx, userID, statDeleted, 1)
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// RevertCreate removes a task that was just created, reverting the
// created counter (and the completed counter if it was finished in the
// meantime). Afterwards the store looks as if the task never existed.
func (s *Store) RevertCreate(ctx context.Context, userID, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := getTask(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ? AND id = ?`, userID, id); err != nil {
			return fmt.Errorf("delete task %s: %w", id, err)
		}
		if t.Status == gtd.StatusDone {
			if err := bumpStat(ctx, tx, userID, statCompleted, -1); err != nil {
				return err
			}
		}
		return bumpStat(ctx, tx, userID, statCreated, -1)
	})
}

// QueryTasks returns the user's tasks matching f, soonest due first, then
// newest first. Completed tasks are excluded unless f.IncludeDone.
func (s *Store) QueryTasks(ctx context.Context, userID string, f gtd.Filter) ([]gtd.Task, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if !f.IncludeDone {
		where = append(where, "status = ?")
		args = append(args, string(gtd.StatusActive))
	}
	if f.Query != "" {
		where = append(where, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Query)+"%")
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Context != "" {
		where = append(where, "context = ?")
		args = append(args, string(f.Context))
	}
	if f.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(f.Priority))
	}
	if f.PersonID != "" {
		where = append(where, "person_id = ?")
		args = append(args, f.PersonID)
	}
	if f.PersonName != "" {
		where = append(where, "LOWER(person_name) = ?")
		args = append(args, strings.ToLower(f.PersonName))
	}
	if f.DueBefore != "" {
		where = append(where, "due_date != '' AND due_date <= ?")
		args = append(args, f.DueBefore)
	}
	if f.DueOn != "" {
		where = append(where, "due_date = ?")
		args = append(args, f.DueOn)
	}

	q := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY CASE WHEN due_date = '' THEN 1 ELSE 0 END, due_date ASC, created_at DESC`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []gtd.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Stats returns the user's counters. A user with no activity has zeros.
func (s *Store) Stats(ctx context.Context, userID string) (gtd.Stats, error) {
	var st gtd.Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT created, completed, deleted FROM task_stats WHERE user_id = ?`, userID,
	).Scan(&st.Created, &st.Completed, &st.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return gtd.Stats{}, nil
	}
	if err != nil {
		return gtd.Stats{}, fmt.Errorf("get stats: %w", err)
	}
	return st, nil
}
