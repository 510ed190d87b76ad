package tools

import (
	"context"
	"time"

	"github.com/nugget/errand/internal/gtd"
	"github.com/nugget/errand/internal/undo"
)

// Store is the user-scoped data layer the task tools run against.
// taskstore.Store is the bundled implementation; a hosted task service
// can be plugged in by implementing the same methods. The undo paths
// (restore, revert) are part of the contract so every mutation a tool
// makes can be reversed against the same backend.
type Store interface {
	undo.TaskTarget

	CreateTask(ctx context.Context, userID string, t gtd.Task) (*gtd.Task, error)
	GetTask(ctx context.Context, userID, id string) (*gtd.Task, error)
	CompleteTask(ctx context.Context, userID, id string, at time.Time) (*gtd.Task, error)
	DeleteTask(ctx context.Context, userID, id string) (*gtd.Task, error)
	QueryTasks(ctx context.Context, userID string, f gtd.Filter) ([]gtd.Task, error)
	Stats(ctx context.Context, userID string) (gtd.Stats, error)

	CreatePerson(ctx context.Context, userID string, p gtd.Person) (*gtd.Person, error)
	GetPerson(ctx context.Context, userID, id string) (*gtd.Person, error)
	ListPeople(ctx context.Context, userID string) ([]gtd.Person, error)
	FindPeople(ctx context.Context, userID, name string) ([]gtd.Person, error)
}

// PreferenceStore changes a user's explicit preferences.
// session.Manager implements it.
type PreferenceStore interface {
	SetPreference(ctx context.Context, userID, key, value string) (previous string, existed bool, err error)
}
