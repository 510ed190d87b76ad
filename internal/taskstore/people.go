package taskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/nugget/errand/internal/gtd"
)

const personColumns = "id, user_id, name, aliases, phone, email, notes, created_at, updated_at"

func scanPerson(row rowScanner) (*gtd.Person, error) {
	var (
		p                    gtd.Person
		aliases              string
		createdAt, updatedAt string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &aliases, &p.Phone, &p.Email, &p.Notes, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if aliases != "" {
		_ = json.Unmarshal([]byte(aliases), &p.Aliases)
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func encodeAliases(a []string) string {
	if len(a) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(a)
	return string(b)
}

func insertPerson(ctx context.Context, tx *sql.Tx, p *gtd.Person) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO people (`+personColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Name, encodeAliases(p.Aliases), p.Phone, p.Email, p.Notes,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
		return ErrExists
	}
	return err
}

func getPerson(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, userID, id string) (*gtd.Person, error) {
	p, err := scanPerson(q.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE user_id = ? AND id = ?`, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get person %s: %w", id, err)
	}
	return p, nil
}

// CreatePerson stores a new person. Names are unique per user,
// case-insensitively; a duplicate returns ErrExists.
func (s *Store) CreatePerson(ctx context.Context, userID string, p gtd.Person) (*gtd.Person, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, fmt.Errorf("create person: name is required")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}
	now := s.now()
	p.ID = id.String()
	p.UserID = userID
	p.CreatedAt = now
	p.UpdatedAt = now

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		return insertPerson(ctx, tx, &p)
	})
	if err != nil {
		if errors.Is(err, ErrExists) {
			return nil, fmt.Errorf("create person %q: %w", p.Name, ErrExists)
		}
		return nil, fmt.Errorf("insert person: %w", err)
	}
	return &p, nil
}

// RestorePerson re-inserts a deleted person with the original id.
func (s *Store) RestorePerson(ctx context.Context, userID string, snapshot gtd.Person) (*gtd.Person, error) {
	if snapshot.ID == "" {
		return nil, fmt.Errorf("restore person: snapshot has no id")
	}
	snapshot.UserID = userID
	snapshot.UpdatedAt = s.now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getPerson(ctx, tx, userID, snapshot.ID); err == nil {
			return ErrExists
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		return insertPerson(ctx, tx, &snapshot)
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// GetPerson returns one person, or ErrNotFound.
func (s *Store) GetPerson(ctx context.Context, userID, id string) (*gtd.Person, error) {
	return getPerson(ctx, s.db, userID, id)
}

// ListPeople returns every person for the user, sorted by name.
func (s *Store) ListPeople(ctx context.Context, userID string) ([]gtd.Person, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE user_id = ? ORDER BY LOWER(name)`, userID)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	defer rows.Close()

	var out []gtd.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// FindPeople resolves a name the user typed to stored people. Exact
// name or alias matches rank first, then prefix matches (so "Sam"
// finds "Samantha Reyes"), then substring matches.
func (s *Store) FindPeople(ctx context.Context, userID, name string) ([]gtd.Person, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, nil
	}
	all, err := s.ListPeople(ctx, userID)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		p    gtd.Person
		rank int
	}
	var hits []ranked
	for _, p := range all {
		if r := matchRank(p, needle); r > 0 {
			hits = append(hits, ranked{p, r})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].rank > hits[j].rank })

	out := make([]gtd.Person, len(hits))
	for i, h := range hits {
		out[i] = h.p
	}
	return out, nil
}

func matchRank(p gtd.Person, needle string) int {
	best := 0
	for _, candidate := range append([]string{p.Name}, p.Aliases...) {
		c := strings.ToLower(candidate)
		switch {
		case c == needle:
			return 3
		case strings.HasPrefix(c, needle):
			best = max(best, 2)
		case strings.Contains(c, needle):
			best = max(best, 1)
		}
	}
	return best
}

// UpdatePerson applies fields and returns the updated person plus the
// previous values of the changed fields.
func (s *Store) UpdatePerson(ctx context.Context, userID, id string, fields gtd.PersonFields) (*gtd.Person, gtd.PersonFields, error) {
	var (
		updated *gtd.Person
		prev    gtd.PersonFields
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := getPerson(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		prev = fields.Snapshot(p)
		fields.Apply(p)
		p.UpdatedAt = s.now()
		_, err = tx.ExecContext(ctx, `UPDATE people SET name = ?, aliases = ?, phone = ?, email = ?, notes = ?, updated_at = ?
			WHERE user_id = ? AND id = ?`,
			p.Name, encodeAliases(p.Aliases), p.Phone, p.Email, p.Notes, formatTime(p.UpdatedAt), userID, id)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unique") {
				return ErrExists
			}
			return fmt.Errorf("update person %s: %w", id, err)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, gtd.PersonFields{}, err
	}
	return updated, prev, nil
}

// DeletePerson removes a person and returns the snapshot needed to
// restore them. Tasks keep their person_id so a restore re-links them.
func (s *Store) DeletePerson(ctx context.Context, userID, id string) (*gtd.Person, error) {
	var snapshot *gtd.Person
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := getPerson(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM people WHERE user_id = ? AND id = ?`, userID, id); err != nil {
			return fmt.Errorf("delete person %s: %w", id, err)
		}
		snapshot = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}
