package tools

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/nugget/errand/internal/gtd"
	"github.com/nugget/errand/internal/session"
	"github.com/nugget/errand/internal/undo"
)

// DefaultMaxBatchItems caps batch_create_tasks when no limit is configured.
const DefaultMaxBatchItems = 10

const (
	defaultLookupLimit = 20
	maxLookupLimit     = 50
)

// CatalogOptions configures the built-in tools.
type CatalogOptions struct {
	MaxBatchItems int
}

// RegisterCatalog installs every built-in tool.
func RegisterCatalog(r *Registry, opts CatalogOptions) {
	if opts.MaxBatchItems <= 0 {
		opts.MaxBatchItems = DefaultMaxBatchItems
	}
	r.registerTaskLookups()
	r.registerTaskActions(opts)
	r.registerPeopleTools()
	r.registerPreferenceTools()
}

func enumOf[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func enumProp(desc string, values []string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "enum": values}
}

// taskFieldProps are the settable task fields shared by create, batch,
// and update.
func taskFieldProps() map[string]any {
	return map[string]any{
		"title":       stringProp("Short imperative title, e.g. 'Call dentist about cleaning'"),
		"type":        enumProp("GTD bucket", enumOf(gtd.TaskTypes)),
		"context":     enumProp("Where or with what the task can be done", enumOf(gtd.Contexts)),
		"priority":    enumProp("Urgency bucket", enumOf(gtd.Priorities)),
		"due_date":    stringProp("Due date as YYYY-MM-DD in the user's timezone"),
		"person_name": stringProp("Person the task involves, as the user wrote it. Required for waiting and agenda tasks"),
		"notes":       stringProp("Extra detail"),
	}
}

// describeFields flattens a property map into one line for models that
// only read descriptions.
func describeFields(props map[string]any) string {
	parts := make([]string, 0, len(props))
	for _, name := range slices.Sorted(maps.Keys(props)) {
		desc, _ := props[name].(map[string]any)["description"].(string)
		parts = append(parts, fmt.Sprintf("%s (%s)", name, desc))
	}
	return strings.Join(parts, "; ")
}

func trackTasks(tasks ...gtd.Task) *session.TrackEntities {
	tr := &session.TrackEntities{}
	for _, t := range tasks {
		tr.Tasks = append(tr.Tasks, session.TaskRef{ID: t.ID, Title: t.Title})
		if t.PersonID != "" {
			tr.People = append(tr.People, session.PersonRef{ID: t.PersonID, Name: t.PersonName})
		}
	}
	return tr
}

func (r *Registry) registerTaskLookups() {
	r.Register(&Tool{
		Name:        "lookup_tasks",
		Kind:        KindLookup,
		Description: "Search the user's tasks. All filters are optional and combine with AND. Returns open tasks unless include_done is true.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":        stringProp("Case-insensitive text to find in task titles"),
				"type":         enumProp("Only tasks of this type", enumOf(gtd.TaskTypes)),
				"context":      enumProp("Only tasks in this context", enumOf(gtd.Contexts)),
				"priority":     enumProp("Only tasks with this priority", enumOf(gtd.Priorities)),
				"person":       stringProp("Only tasks involving this person (name or alias)"),
				"due_before":   stringProp("Only tasks due on or before this YYYY-MM-DD date"),
				"include_done": map[string]any{"type": "boolean", "description": "Include completed tasks"},
				"limit":        map[string]any{"type": "integer", "description": "Maximum results (default 20, max 50)"},
			},
		},
		Handler: r.handleLookupTasks,
	})

	r.Register(&Tool{
		Name:        "get_today",
		Kind:        KindLookup,
		Description: "List what needs attention today: tasks due today or overdue, and tasks marked priority today.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		Handler:     r.handleGetToday,
	})

	r.Register(&Tool{
		Name:        "get_person_agenda",
		Kind:        KindLookup,
		Description: "Show what the user is waiting on from a person and what they want to discuss with them.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"person": stringProp("Person's name or alias"),
			},
			"required": []string{"person"},
		},
		Handler: r.handleGetPersonAgenda,
	})

	r.Register(&Tool{
		Name:        "get_task",
		Kind:        KindLookup,
		Description: "Fetch one task by id.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id": stringProp("Task id"),
			},
			"required": []string{"task_id"},
		},
		Handler: r.handleGetTask,
	})

	r.Register(&Tool{
		Name:        "get_stats",
		Kind:        KindLookup,
		Description: "Report how many tasks the user has created, completed, and deleted, plus how many are open.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		Handler:     r.handleGetStats,
	})
}

func (r *Registry) registerTaskActions(opts CatalogOptions) {
	create := taskFieldProps()
	r.Register(&Tool{
		Name:        "create_task",
		Kind:        KindAction,
		Description: "Create one task.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": create,
			"required":   []string{"title", "type"},
		},
		Handler: r.handleCreateTask,
	})

	// The advertised item schema is left open; each item is checked
	// against itemSchema inside the handler.
	itemProps := taskFieldProps()
	for _, field := range []string{"type", "context", "priority"} {
		prop := itemProps[field].(map[string]any)
		itemProps[field] = stringProp(fmt.Sprintf("%s (one of %v)", prop["description"], prop["enum"]))
	}
	itemSchema := map[string]any{
		"type":       "object",
		"properties": itemProps,
		"required":   []string{"title"},
	}
	r.Register(&Tool{
		Name:        "batch_create_tasks",
		Kind:        KindAction,
		Description: fmt.Sprintf("Create several tasks at once (at most %d). Items that fail are reported individually; the rest are still created.", opts.MaxBatchItems),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"items": map[string]any{
					"type":        "array",
					"maxItems":    opts.MaxBatchItems,
					"description": fmt.Sprintf("Tasks to create. Each item is an object with a title and any of: %s", describeFields(itemProps)),
					"items":       map[string]any{},
				},
			},
			"required": []string{"items"},
		},
		Handler: r.batchCreateTasks(itemSchema),
	})

	update := taskFieldProps()
	update["task_id"] = stringProp("Id of the task to change")
	update["clear"] = map[string]any{
		"type":        "array",
		"description": "Fields to unset",
		"items":       enumProp("Field name", []string{"context", "priority", "due_date", "person_name", "notes"}),
	}
	r.Register(&Tool{
		Name:        "update_task",
		Kind:        KindAction,
		Description: "Change fields of an existing task. Only the fields given are changed.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": update,
			"required":   []string{"task_id"},
		},
		Handler: r.handleUpdateTask,
	})

	r.Register(&Tool{
		Name:        "complete_task",
		Kind:        KindAction,
		Description: "Mark a task done.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id": stringProp("Id of the task to complete"),
			},
			"required": []string{"task_id"},
		},
		Handler: r.handleCompleteTask,
	})

	r.Register(&Tool{
		Name:        "delete_task",
		Kind:        KindAction,
		Description: "Delete a task. Use only when the user asks to remove it, not when it is done.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id": stringProp("Id of the task to delete"),
			},
			"required": []string{"task_id"},
		},
		Handler: r.handleDeleteTask,
	})
}

type lookupParams struct {
	Query       string `json:"query"`
	Type        string `json:"type"`
	Context     string `json:"context"`
	Priority    string `json:"priority"`
	Person      string `json:"person"`
	DueBefore   string `json:"due_before"`
	IncludeDone bool   `json:"include_done"`
	Limit       int    `json:"limit"`
}

func (r *Registry) handleLookupTasks(ctx context.Context, ec *ExecContext, args map[string]any) Result {
	var p lookupParams
	if err := decode(args, &p); err != nil {
		return fail("%v", err)
	}
	if p.DueBefore != "" && !gtd.ValidDate(p.DueBefore) {
		return fail("due_before must be YYYY-MM-DD")
	}

	f := gtd.Filter{
		Query:       p.Query,
		Type:        gtd.TaskType(p.Type),
		Context:     gtd.Context(p.Context),
		Priority:    gtd.Priority(p.Priority),
		DueBefore:   p.DueBefore,
		IncludeDone: p.IncludeDone,
		Limit:       p.Limit,
	}
	if f.Limit <= 0 {
		f.Limit = defaultLookupLimit
	}
	if f.Limit > maxLookupLimit {
		f.Limit = maxLookupLimit
	}

	var tasks []gtd.Task
	if p.Person != "" {
		found, err := r.tasksForPerson(ctx, ec, p.Person, f)
		if err != nil {
			r.logger.Error("lookup tasks failed", "user", ec.UserID, "error", err)
			return fail("lookup failed: storage error")
		}
		tasks = found
	} else {
		found, err := ec.Store.QueryTasks(ctx, ec.UserID, f)
		if err != nil {
			r.logger.Error("lookup tasks failed", "user", ec.UserID, "error", err)
			return fail("lookup failed: storage error")
		}
		tasks = found
	}

	res := ok(map[string]any{"tasks": nonNil(tasks), "count": len(tasks)})
	res.Track = trackTasks(firstN(tasks, session.DefaultRecentTasks)...)
	return res
}

// tasksForPerson matches tasks linked to any stored person matching name,
// plus tasks that only carry the raw name.
func (r *Registry) tasksForPerson(ctx context.Context, ec *ExecContext, name string, f gtd.Filter) ([]gtd.Task, error) {
	people, err := ec.Store.FindPeople(ctx, ec.UserID, name)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []gtd.Task
	add := func(filter gtd.Filter) error {
		found, err := ec.Store.QueryTasks(ctx, ec.UserID, filter)
		if err != nil {
			return err
		}
		for _, t := range found {
			if !seen[t.ID] {
				seen[t.ID] = true
				out = append(out, t)
			}
		}
		return nil
	}
	for _, p := range people {
		byID := f
		byID.PersonID = p.ID
		if err := add(byID); err != nil {
			return nil, err
		}
	}
	byName := f
	byName.PersonName = name
	if err := add(byName); err != nil {
		return nil, err
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *Registry) handleGetToday(ctx context.Context, ec *ExecContext, _ map[string]any) Result {
	today := ec.Today()
	due, err := ec.Store.QueryTasks(ctx, ec.UserID, gtd.Filter{DueBefore: today, Limit: maxLookupLimit})
	if err != nil {
		r.logger.Error("get today failed", "user", ec.UserID, "error", err)
		return fail("lookup failed: storage error")
	}
	flagged, err := ec.Store.QueryTasks(ctx, ec.UserID, gtd.Filter{Priority: gtd.PriorityToday, Limit: maxLookupLimit})
	if err != nil {
		r.logger.Error("get today failed", "user", ec.UserID, "error", err)
		return fail("lookup failed: storage error")
	}

	var overdue, dueToday, priority []gtd.Task
	seen := make(map[string]bool)
	for _, t := range due {
		seen[t.ID] = true
		if t.DueDate < today {
			overdue = append(overdue, t)
		} else {
			dueToday = append(dueToday, t)
		}
	}
	for _, t := range flagged {
		if !seen[t.ID] {
			priority = append(priority, t)
		}
	}

	res := ok(map[string]any{
		"date":     today,
		"overdue":  nonNil(overdue),
		"due":      nonNil(dueToday),
		"priority": nonNil(priority),
	})
	all := append(append(append([]gtd.Task(nil), dueToday...), overdue...), priority...)
	res.Track = trackTasks(firstN(all, session.DefaultRecentTasks)...)
	return res
}

func (r *Registry) handleGetPersonAgenda(ctx context.Context, ec *ExecContext, args map[string]any) Result {
	var p struct {
		Person string `json:"person"`
	}
	if err := decode(args, &p); err != nil {
		return fail("%v", err)
	}
	name := strings.TrimSpace(p.Person)
	if name == "" {
		return fail("person is required")
	}

	waiting, err := r.tasksForPerson(ctx, ec, name, gtd.Filter{Type: gtd.TypeWaiting})
	if err != nil {
		r.logger.Error("person agenda failed", "user", ec.UserID, "error", err)
		return fail("lookup failed: storage error")
	}
	agenda, err := r.tasksForPerson(ctx, ec, name, gtd.Filter{Type: gtd.TypeAgenda})
	if err != nil {
		r.logger.Error("person agenda failed", "user", ec.UserID, "error", err)
		return fail("lookup failed: storage error")
	}

	data := map[string]any{"waiting": nonNil(waiting), "agenda": nonNil(agenda)}
	track := trackTasks(firstN(append(append([]gtd.Task(nil), waiting...), agenda...), session.DefaultRecentTasks)...)
	if person, err := r.resolvePerson(ctx, ec, name); err == nil && person != nil {
		data["person"] = person
		track.People = append([]session.PersonRef{{ID: person.ID, Name: person.Name}}, track.People...)
	}
	res := ok(data)
	res.Track = track
	return res
}

func (r *Registry) handleGetTask(ctx context.Context, ec *ExecContext, args map[string]any) Result {
	var p struct {
		TaskID string `json:"task_id"`
	}
	if err := decode(args, &p); err != nil {
		return fail("%v", err)
	}
	t, err := ec.Store.GetTask(ctx, ec.UserID, p.TaskID)
	if err != nil {
		return r.storeError("get task", ec, "task", err)
	}
	res := ok(t)
	res.Track = trackTasks(*t)
	return res
}

func (r *Registry) handleGetStats(ctx context.Context, ec *ExecContext, _ map[string]any) Result {
	st, err := ec.Store.Stats(ctx, ec.UserID)
	if err != nil {
		r.logger.Error("get stats failed", "user", ec.UserID, "error", err)
		return fail("lookup failed: storage error")
	}
	open, err := ec.Store.QueryTasks(ctx, ec.UserID, gtd.Filter{})
	if err != nil {
		r.logger.Error("get stats failed", "user", ec.UserID, "error", err)
		return fail("lookup failed: storage error")
	}
	return ok(map[string]any{
		"created":   st.Created,
		"completed": st.Completed,
		"deleted":   st.Deleted,
		"open":      len(open),
	})
}

type taskParams struct {
	Title      string `json:"title"`
	Type       string `json:"type"`
	Context    string `json:"context"`
	Priority   string `json:"priority"`
	DueDate    string `json:"due_date"`
	PersonName string `json:"person_name"`
	Notes      string `json:"notes"`
}

// build checks p and turns it into a task, resolving the person name
// against stored people. An unmatched name is kept as written.
func (r *Registry) build(ctx context.Context, ec *ExecContext, p taskParams) (gtd.Task, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return gtd.Task{}, fmt.Errorf("title is required")
	}
	typ, valid := gtd.ParseTaskType(p.Type)
	if !valid {
		return gtd.Task{}, fmt.Errorf("type is required (one of %s)", strings.Join(enumOf(gtd.TaskTypes), ", "))
	}
	t := gtd.Task{Title: title, Type: typ, Notes: strings.TrimSpace(p.Notes)}
	if p.Context != "" {
		c, valid := gtd.ParseContext(p.Context)
		if !valid {
			return gtd.Task{}, fmt.Errorf("unknown context %q", p.Context)
		}
		t.Context = c
	}
	if p.Priority != "" {
		pr, valid := gtd.ParsePriority(p.Priority)
		if !valid {
			return gtd.Task{}, fmt.Errorf("unknown priority %q", p.Priority)
		}
		t.Priority = pr
	}
	if p.DueDate != "" {
		if !gtd.ValidDate(p.DueDate) {
			return gtd.Task{}, fmt.Errorf("due_date must be YYYY-MM-DD")
		}
		t.DueDate = p.DueDate
	}

	name := strings.TrimSpace(p.PersonName)
	if typ.NeedsPerson() && name == "" {
		return gtd.Task{}, fmt.Errorf("person_name is required for %s tasks", typ)
	}
	if name != "" {
		t.PersonName = name
		person, err := r.resolvePerson(ctx, ec, name)
		if err != nil {
			return gtd.Task{}, fmt.Errorf("resolve person: %w", err)
		}
		if person != nil {
			t.PersonID = person.ID
			t.PersonName = person.Name
		}
	}
	return t, nil
}

// resolvePerson returns the stored person name refers to, or nil when
// there is no unambiguous match.
func (r *Registry) resolvePerson(ctx context.Context, ec *ExecContext, name string) (*gtd.Person, error) {
	people, err := ec.Store.FindPeople(ctx, ec.UserID, name)
	if err != nil {
		return nil, err
	}
	if len(people) == 0 {
		return nil, nil
	}
	for _, p := range people {
		if strings.EqualFold(p.Name, name) {
			return &p, nil
		}
		for _, a := range p.Aliases {
			if strings.EqualFold(a, name) {
				return &p, nil
			}
		}
	}
	if len(people) == 1 {
		return &people[0], nil
	}
	return nil, nil
}

func (r *Registry) handleCreateTask(ctx context.Context, ec *ExecContext, args map[string]any) Result {
	var p taskParams
	if err := decode(args, &p); err != nil {
		return fail("%v", err)
	}
	t, err := r.build(ctx, ec, p)
	if err != nil {
		return fail("%v", err)
	}
	created, err := ec.Store.CreateTask(ctx, ec.UserID, t)
	if err != nil {
		return r.storeError("create task", ec, "task", err)
	}

	a := undo.DeleteCreatedTask(created.ID, created.Title)
	res := ok(created)
	res.Undo = &a
	res.Track = trackTasks(*created)
	res.Track.LastCreated = created.ID
	return res
}

// BatchFailure is one rejected batch item. Item is nil when the entry
// was not an object at all.
type BatchFailure struct {
	Index int            `json:"index"`
	Item  map[string]any `json:"item"`
	Error string         `json:"error"`
}

func (r *Registry) batchCreateTasks(itemSchema map[string]any) Handler {
	return func(ctx context.Context, ec *ExecContext, args map[string]any) Result {
		return r.handleBatchCreateTasks(ctx, ec, itemSchema, args)
	}
}

func (r *Registry) handleBatchCreateTasks(ctx context.Context, ec *ExecContext, itemSchema, args map[string]any) Result {
	items, _ := asSlice(args["items"])

	var (
		created []gtd.Task
		failed  []BatchFailure
	)
	for i, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			failed = append(failed, BatchFailure{Index: i, Error: "item must be an object"})
			continue
		}
		if err := Validate(itemSchema, item); err != nil {
			failed = append(failed, BatchFailure{Index: i, Item: item, Error: err.Error()})
			continue
		}
		var p taskParams
		if err := decode(item, &p); err != nil {
			failed = append(failed, BatchFailure{Index: i, Item: item, Error: err.Error()})
			continue
		}
		t, err := r.build(ctx, ec, p)
		if err != nil {
			failed = append(failed, BatchFailure{Index: i, Item: item, Error: err.Error()})
			continue
		}
		c, err := ec.Store.CreateTask(ctx, ec.UserID, t)
		if err != nil {
			r.logger.Error("batch create item failed", "user", ec.UserID, "index", i, "error", err)
			failed = append(failed, BatchFailure{Index: i, Item: item, Error: "storage error"})
			continue
		}
		created = append(created, *c)
	}

	res := Result{
		Success: len(created) > 0,
		Data:    map[string]any{"created": nonNil(created), "failed": nonNil(failed)},
	}
	if len(created) == 0 {
		res.Error = "no tasks were created"
		return res
	}

	ids := make([]string, len(created))
	for i, t := range created {
		ids[i] = t.ID
	}
	a := undo.DeleteCreatedTasks(ids)
	res.Undo = &a
	res.Track = trackTasks(firstN(reversed(created), session.DefaultRecentTasks)...)
	res.Track.LastCreated = created[len(created)-1].ID
	return res
}

type updateParams struct {
	taskParams
	TaskID string   `json:"task_id"`
	Clear  []string `json:"clear"`
}

func (r *Registry) handleUpdateTask(ctx context.Context, ec *ExecContext, args map[string]any) Result {
	var p updateParams
	if err := decode(args, &p); err != nil {
		return fail("%v", err)
	}

	var f gtd.Fields
	if s := strings.TrimSpace(p.Title); s != "" {
		f.Title = &s
	}
	if p.Type != "" {
		typ, valid := gtd.ParseTaskType(p.Type)
		if !valid {
			return fail("unknown type %q", p.Type)
		}
		f.Type = &typ
	}
	if p.Context != "" {
		c, _ := gtd.ParseContext(p.Context)
		f.Context = &c
	}
	if p.Priority != "" {
		pr, _ := gtd.ParsePriority(p.Priority)
		f.Priority = &pr
	}
	if p.DueDate != "" {
		if !gtd.ValidDate(p.DueDate) {
			return fail("due_date must be YYYY-MM-DD")
		}
		f.DueDate = &p.DueDate
	}
	if s := strings.TrimSpace(p.Notes); s != "" {
		f.Notes = &s
	}
	if name := strings.TrimSpace(p.PersonName); name != "" {
		id := ""
		person, err := r.resolvePerson(ctx, ec, name)
		if err != nil {
			return r.storeError("update task", ec, "person", err)
		}
		if person != nil {
			id, name = person.ID, person.Name
		}
		f.PersonID, f.PersonName = &id, &name
	}
	for _, field := range p.Clear {
		empty := ""
		switch field {
		case "context":
			c := gtd.Context("")
			f.Context = &c
		case "priority":
			pr := gtd.Priority("")
			f.Priority = &pr
		case "due_date":
			f.DueDate = &empty
		case "notes":
			f.Notes = &empty
		case "person_name":
			f.PersonID, f.PersonName = &empty, &empty
		}
	}
	if f.Empty() {
		return fail("nothing to change")
	}

	if f.Type != nil && f.Type.NeedsPerson() {
		current, err := ec.Store.GetTask(ctx, ec.UserID, p.TaskID)
		if err != nil {
			return r.storeError("update task", ec, "task", err)
		}
		name := current.PersonName
		if f.PersonName != nil {
			name = *f.PersonName
		}
		if name == "" {
			return fail("person_name is required for %s tasks", *f.Type)
		}
	}

	updated, prev, err := ec.Store.UpdateTask(ctx, ec.UserID, p.TaskID, f)
	if err != nil {
		return r.storeError("update task", ec, "task", err)
	}
	a := undo.RevertTaskUpdate(updated.ID, updated.Title, prev)
	res := ok(updated)
	res.Undo = &a
	res.Track = trackTasks(*updated)
	return res
}

func (r *Registry) handleCompleteTask(ctx context.Context, ec *ExecContext, args map[string]any) Result {
	var p struct {
		TaskID string `json:"task_id"`
	}
	if err := decode(args, &p); err != nil {
		return fail("%v", err)
	}
	done, err := ec.Store.CompleteTask(ctx, ec.UserID, p.TaskID, ec.Now)
	if err != nil {
		return r.storeError("complete task", ec, "task", err)
	}
	a := undo.UncompleteTask(done.ID, done.Title)
	res := ok(done)
	res.Undo = &a
	res.Track = trackTasks(*done)
	return res
}

func (r *Registry) handleDeleteTask(ctx context.Context, ec *ExecContext, args map[string]any) Result {
	var p struct {
		TaskID string `json:"task_id"`
	}
	if err := decode(args, &p); err != nil {
		return fail("%v", err)
	}
	snapshot, err := ec.Store.DeleteTask(ctx, ec.UserID, p.TaskID)
	if err != nil {
		return r.storeError("delete task", ec, "task", err)
	}
	a := undo.RestoreDeletedTask(*snapshot)
	res := ok(map[string]any{"deleted": snapshot.ID, "title": snapshot.Title})
	res.Undo = &a
	return res
}

// storeError logs unexpected data-layer failures and converts err into a
// result.
func (r *Registry) storeError(op string, ec *ExecContext, what string, err error) Result {
	res := storeFailure(what, err)
	if strings.HasSuffix(res.Error, "storage error") {
		r.logger.Error(op+" failed", "user", ec.UserID, "error", err)
	}
	return res
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func firstN[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func reversed[T any](s []T) []T {
	out := make([]T, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}
