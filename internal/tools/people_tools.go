package tools

import (
	"context"
	"strings"

	"github.com/nugget/errand/internal/gtd"
	"github.com/nugget/errand/internal/session"
	"github.com/nugget/errand/internal/undo"
)

func trackPerson(p *gtd.Person) *session.TrackEntities {
	return &session.TrackEntities{People: []session.PersonRef{{ID: p.ID, Name: p.Name}}}
}

func (r *Registry) registerPeopleTools() {
	r.Register(&Tool{
		Name:        "find_people",
		Kind:        KindLookup,
		Description: "Find stored people by name or alias. Best matches first. With no name, lists everyone.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": stringProp("Name, alias, or part of one"),
			},
		},
		Handler: r.handleFindPeople,
	})

	personProps := func() map[string]any {
		return map[string]any{
			"name": stringProp("Full name"),
			"aliases": map[string]any{
				"type":        "array",
				"description": "Other names the user calls this person",
				"items":       map[string]any{"type": "string"},
			},
			"phone": stringProp("Phone number"),
			"email": stringProp("Email address"),
			"notes": stringProp("Anything worth remembering about them"),
		}
	}

	r.Register(&Tool{
		Name:        "create_person",
		Kind:        KindAction,
		Description: "Add a person the user waits on or keeps an agenda for.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": personProps(),
			"required":   []string{"name"},
		},
		Handler: r.handleCreatePerson,
	})

	update := personProps()
	update["person_id"] = stringProp("Id of the person to change")
	r.Register(&Tool{
		Name:        "update_person",
		Kind:        KindAction,
		Description: "Change a stored person. Only the fields given are changed; aliases replace the existing list.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": update,
			"required":   []string{"person_id"},
		},
		Handler: r.handleUpdatePerson,
	})

	r.Register(&Tool{
		Name:        "delete_person",
		Kind:        KindAction,
		Description: "Remove a stored person. Their tasks keep the name as written.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"person_id": stringProp("Id of the person to remove"),
			},
			"required": []string{"person_id"},
		},
		Handler: r.handleDeletePerson,
	})
}

func (r *Registry) handleFindPeople(ctx context.Context, ec *ExecContext, args map[string]any) Result {
	var p struct {
		Name string `json:"name"`
	}
	if err := decode(args, &p); err != nil {
		return fail("%v", err)
	}

	var (
		people []gtd.Person
		err    error
	)
	if name := strings.TrimSpace(p.Name); name != "" {
		people, err = ec.Store.FindPeople(ctx, ec.UserID, name)
	} else {
		people, err = ec.Store.ListPeople(ctx, ec.UserID)
	}
	if err != nil {
		r.logger.Error("find people failed", "user", ec.UserID, "error", err)
		return fail("lookup failed: storage error")
	}

	res := ok(map[string]any{"people": nonNil(people), "count": len(people)})
	tr := &session.TrackEntities{}
	for _, person := range firstN(people, session.DefaultRecentPeople) {
		tr.People = append(tr.People, session.PersonRef{ID: person.ID, Name: person.Name})
	}
	res.Track = tr
	return res
}

type personParams struct {
	PersonID string    `json:"person_id"`
	Name     string    `json:"name"`
	Aliases  *[]string `json:"aliases"`
	Phone    string    `json:"phone"`
	Email    string    `json:"email"`
	Notes    string    `json:"notes"`
}

func (r *Registry) handleCreatePerson(ctx context.Context, ec *ExecContext, args map[string]any) Result {
	var p personParams
	if err := decode(args, &p); err != nil {
		return fail("%v", err)
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return fail("name is required")
	}
	person := gtd.Person{
		Name:  name,
		Phone: strings.TrimSpace(p.Phone),
		Email: strings.TrimSpace(p.Email),
		Notes: strings.TrimSpace(p.Notes),
	}
	if p.Aliases != nil {
		person.Aliases = *p.Aliases
	}

	created, err := ec.Store.CreatePerson(ctx, ec.UserID, person)
	if err != nil {
		return r.storeError("create person", ec, "person", err)
	}
	a := undo.DeleteCreatedPerson(created.ID, created.Name)
	res := ok(created)
	res.Undo = &a
	res.Track = trackPerson(created)
	return res
}

func (r *Registry) handleUpdatePerson(ctx context.Context, ec *ExecContext, args map[string]any) Result {
	var p personParams
	if err := decode(args, &p); err != nil {
		return fail("%v", err)
	}

	var f gtd.PersonFields
	if s := strings.TrimSpace(p.Name); s != "" {
		f.Name = &s
	}
	if p.Aliases != nil {
		f.Aliases = p.Aliases
	}
	if s := strings.TrimSpace(p.Phone); s != "" {
		f.Phone = &s
	}
	if s := strings.TrimSpace(p.Email); s != "" {
		f.Email = &s
	}
	if s := strings.TrimSpace(p.Notes); s != "" {
		f.Notes = &s
	}
	if f == (gtd.PersonFields{}) {
		return fail("nothing to change")
	}

	updated, prev, err := ec.Store.UpdatePerson(ctx, ec.UserID, p.PersonID, f)
	if err != nil {
		return r.storeError("update person", ec, "person", err)
	}
	a := undo.RevertPersonUpdate(updated.ID, updated.Name, prev)
	res := ok(updated)
	res.Undo = &a
	res.Track = trackPerson(updated)
	return res
}

func (r *Registry) handleDeletePerson(ctx context.Context, ec *ExecContext, args map[string]any) Result {
	var p struct {
		PersonID string `json:"person_id"`
	}
	if err := decode(args, &p); err != nil {
		return fail("%v", err)
	}
	snapshot, err := ec.Store.DeletePerson(ctx, ec.UserID, p.PersonID)
	if err != nil {
		return r.storeError("delete person", ec, "person", err)
	}
	a := undo.RestorePerson(*snapshot)
	res := ok(map[string]any{"deleted": snapshot.ID, "name": snapshot.Name})
	res.Undo = &a
	return res
}
