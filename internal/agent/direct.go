package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nugget/errand/internal/classifier"
	"github.com/nugget/errand/internal/gtd"
	"github.com/nugget/errand/internal/intent"
	"github.com/nugget/errand/internal/prompts"
	"github.com/nugget/errand/internal/session"
	"github.com/nugget/errand/internal/tools"
	"github.com/nugget/errand/internal/undo"
)

// intentHandlers maps every intent to its handler. Intents that need
// live data go through tool rounds; the rest are answered here.
func (l *Loop) intentHandlers() map[intent.Type]intent.Handler {
	h := map[intent.Type]intent.Handler{
		intent.ShowHelp:      l.handleHelp,
		intent.Undo:          l.handleUndo,
		intent.SetPreference: l.handleSetPreference,
		intent.CreatePerson:  l.handleCreatePerson,
		intent.CorrectLast:   l.handleCorrectLast,
	}
	for _, typ := range intent.Types {
		if typ.NeedsDataLookup() {
			h[typ] = l.handleWithTools
		}
	}
	return h
}

// captureDraft stores a complete draft or asks for what it is missing.
func (l *Loop) captureDraft(ctx context.Context, t *turn, d gtd.TaskDraft) (intent.Outcome, error) {
	classifier.FlagMissing(&d)
	switch {
	case d.HasMissing(gtd.FieldType):
		return clarify(t, d, prompts.WhatKindText(d.Title))
	case d.HasMissing(gtd.FieldPersonName):
		return clarify(t, d, prompts.WhoIsItForText(d.Title, d.Type == gtd.TypeAgenda))
	}

	t.state = StateDirect
	res := l.call(ctx, t, l.execContext(t), "create_task", draftArgs(d))
	if !res.Success {
		return intent.Outcome{Text: failureText(res)}, nil
	}
	created, _ := res.Data.(*gtd.Task)
	if created == nil {
		return intent.Outcome{Text: fmt.Sprintf("Added %q.", d.Title)}, nil
	}
	return intent.Outcome{Text: prompts.CapturedText(*created)}, nil
}

// clarify asks question and parks d in a flow until the answer arrives.
func clarify(t *turn, d gtd.TaskDraft, question string) (intent.Outcome, error) {
	t.state = StateClarify
	state, err := json.Marshal(d)
	if err != nil {
		return intent.Outcome{}, fmt.Errorf("encode draft: %w", err)
	}
	return intent.Outcome{
		Text:  question,
		Delta: session.Delta{Flow: &session.Flow{Kind: session.FlowClarifyTask, State: state, Started: t.now}},
	}, nil
}

// resumeDraft merges the message into a parked draft. ok is false when
// the message does not look like an answer to the open question.
func (l *Loop) resumeDraft(ctx context.Context, t *turn, f *session.Flow) (intent.Outcome, bool, error) {
	var d gtd.TaskDraft
	if err := json.Unmarshal(f.State, &d); err != nil || d.Title == "" {
		t.log.Warn("unreadable clarify state", "error", err)
		return intent.Outcome{}, false, nil
	}

	switch {
	case d.HasMissing(gtd.FieldType):
		typ, ok := parseTypeAnswer(t.text)
		if !ok {
			return intent.Outcome{}, false, nil
		}
		d.Type = typ
	case d.HasMissing(gtd.FieldPersonName):
		name, ok := parseNameAnswer(t.text)
		if !ok {
			return intent.Outcome{}, false, nil
		}
		if !l.knownPerson(ctx, t, name) && looksLikeTask(name) {
			return intent.Outcome{}, false, nil
		}
		d.PersonName = name
	default:
		return intent.Outcome{}, false, nil
	}

	t.log.Debug("clarify answer merged", "title", d.Title, "type", d.Type, "person", d.PersonName)
	t.clearFlow = true
	out, err := l.captureDraft(ctx, t, d)
	return out, true, err
}

// captureBatch stores several drafts with one batch call. untitled
// entries never reached the store and are reported as skipped.
func (l *Loop) captureBatch(ctx context.Context, t *turn, items []gtd.TaskDraft, truncated, untitled int) (intent.Outcome, error) {
	t.state = StateDirect
	list := make([]any, 0, len(items))
	for _, d := range items {
		list = append(list, draftArgs(d))
	}
	res := l.call(ctx, t, l.execContext(t), "batch_create_tasks", map[string]any{"items": list})

	data, _ := res.Data.(map[string]any)
	if data == nil {
		return intent.Outcome{Text: failureText(res)}, nil
	}
	created, _ := data["created"].([]gtd.Task)
	failed, _ := data["failed"].([]tools.BatchFailure)

	titles := make([]string, len(created))
	for i, c := range created {
		titles[i] = c.Title
	}
	misses := make([]prompts.BatchFailure, len(failed))
	for i, f := range failed {
		title, _ := f.Item["title"].(string)
		misses[i] = prompts.BatchFailure{Title: title, Reason: f.Error}
	}
	for range untitled {
		misses = append(misses, prompts.BatchFailure{Reason: "no title"})
	}
	return intent.Outcome{Text: prompts.BatchText(titles, misses, truncated)}, nil
}

func (l *Loop) handleHelp(_ context.Context, _ *intent.Call) (intent.Outcome, error) {
	return intent.Outcome{Text: prompts.HelpText}, nil
}

func (l *Loop) handleUndo(ctx context.Context, c *intent.Call) (intent.Outcome, error) {
	msg, err := l.undo.PopAndInvert(ctx, c.UserID)
	if err != nil && !errors.Is(err, undo.ErrNothingToUndo) && !errors.Is(err, undo.ErrAlreadyGone) {
		l.logger.Error("undo failed", "user", c.UserID, "error", err)
	}
	return intent.Outcome{Text: undo.Message(msg, err)}, nil
}

func (l *Loop) handleSetPreference(ctx context.Context, c *intent.Call) (intent.Outcome, error) {
	t := turnFrom(ctx)
	key, value := c.Intent.Entities.PreferenceKey, c.Intent.Entities.PreferenceValue
	if key == "" || value == "" {
		return intent.Outcome{Text: prompts.NeedSettingText}, nil
	}
	res := l.call(ctx, t, l.execContext(t), "set_preference", map[string]any{"key": key, "value": value})
	if !res.Success {
		return intent.Outcome{Text: failureText(res)}, nil
	}
	if data, ok := res.Data.(map[string]any); ok {
		if v, ok := data["value"].(string); ok {
			value = v
		}
	}
	return intent.Outcome{Text: prompts.PreferenceSetText(key, value)}, nil
}

func (l *Loop) handleCreatePerson(ctx context.Context, c *intent.Call) (intent.Outcome, error) {
	t := turnFrom(ctx)
	e := c.Intent.Entities
	if e.PersonName == "" {
		return intent.Outcome{Text: prompts.NeedNameText}, nil
	}
	args := map[string]any{"name": e.PersonName}
	if e.Phone != "" {
		args["phone"] = e.Phone
	}
	if e.Email != "" {
		args["email"] = e.Email
	}
	res := l.call(ctx, t, l.execContext(t), "create_person", args)
	if !res.Success {
		return intent.Outcome{Text: failureText(res)}, nil
	}
	name := e.PersonName
	if p, ok := res.Data.(*gtd.Person); ok {
		name = p.Name
	}
	return intent.Outcome{Text: prompts.PersonAddedText(name)}, nil
}

// correctable maps the field names a correction may use to update_task
// arguments.
var correctable = map[string]string{
	"type":        "type",
	"context":     "context",
	"priority":    "priority",
	"due_date":    "due_date",
	"due":         "due_date",
	"person":      "person_name",
	"person_name": "person_name",
	"title":       "title",
}

// learnable fields feed the pattern learner on correction.
var learnable = map[string]bool{"type": true, "context": true, "priority": true}

// handleCorrectLast overrides one field of the task created last and
// records the correction so the word association is learned.
func (l *Loop) handleCorrectLast(ctx context.Context, c *intent.Call) (intent.Outcome, error) {
	t := turnFrom(ctx)
	id := c.Conv.Session.LastCreatedTaskID
	if id == "" {
		return intent.Outcome{Text: prompts.NoRecentTaskText}, nil
	}
	field := correctable[c.Intent.Entities.Field]
	value := canonical(field, c.Intent.Entities.Value)
	if field == "" || value == "" {
		return intent.Outcome{Text: prompts.NeedCorrectionText}, nil
	}

	title := ""
	for _, ref := range c.Conv.Session.RecentTasks {
		if ref.ID == id {
			title = ref.Title
		}
	}

	res := l.call(ctx, t, l.execContext(t), "update_task", map[string]any{"task_id": id, field: value})
	if !res.Success {
		return intent.Outcome{Text: failureText(res)}, nil
	}
	updated, _ := res.Data.(*gtd.Task)
	if updated != nil && title == "" {
		title = updated.Title
	}

	out := intent.Outcome{Text: prompts.CorrectedText(title, field, value)}
	if learnable[field] {
		out.Delta.Correction = &session.Correction{Words: significantWords(title), Field: field, Value: strings.ToLower(value)}
	}
	return out, nil
}

// canonical normalizes an enumerated correction value so it passes the
// update_task schema; other fields are only trimmed.
func canonical(field, value string) string {
	value = strings.TrimSpace(value)
	switch field {
	case "type":
		if v, ok := gtd.ParseTaskType(value); ok {
			return string(v)
		}
	case "context":
		if v, ok := gtd.ParseContext(value); ok {
			return string(v)
		}
	case "priority":
		if v, ok := gtd.ParsePriority(value); ok {
			return string(v)
		}
	}
	return value
}

// draftArgs renders a draft as create_task arguments.
func draftArgs(d gtd.TaskDraft) map[string]any {
	args := map[string]any{"title": d.Title}
	set := func(k, v string) {
		if v != "" {
			args[k] = v
		}
	}
	set("type", string(d.Type))
	set("context", string(d.Context))
	set("priority", string(d.Priority))
	set("due_date", d.DueDate)
	set("person_name", d.PersonName)
	set("notes", d.Notes)
	return args
}

// failureText renders a failed direct call. Uncertain actions are
// reported by the turn's notice, so they add no text of their own.
func failureText(res tools.Result) string {
	if res.Uncertain {
		return ""
	}
	reason := strings.TrimPrefix(res.Error, "invalid arguments: ")
	if reason == "" {
		reason = "something went wrong"
	}
	return prompts.NotChangedText(reason)
}

var typeAnswers = map[string]gtd.TaskType{
	"todo":          gtd.TypeAction,
	"to do":         gtd.TypeAction,
	"do":            gtd.TypeAction,
	"do it":         gtd.TypeAction,
	"task":          gtd.TypeAction,
	"next action":   gtd.TypeAction,
	"maybe":         gtd.TypeSomeday,
	"later":         gtd.TypeSomeday,
	"someday/maybe": gtd.TypeSomeday,
	"someday maybe": gtd.TypeSomeday,
	"waiting on":    gtd.TypeWaiting,
	"waiting for":   gtd.TypeWaiting,
	"wait":          gtd.TypeWaiting,
	"discuss":       gtd.TypeAgenda,
	"talk":          gtd.TypeAgenda,
}

// parseTypeAnswer reads a reply to "what kind of task is this?".
func parseTypeAnswer(text string) (gtd.TaskType, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimRight(s, ".!?")
	for _, prefix := range []string{"it's ", "its ", "it is ", "a ", "an "} {
		s = strings.TrimPrefix(s, prefix)
	}
	if typ, ok := gtd.ParseTaskType(s); ok {
		return typ, true
	}
	typ, ok := typeAnswers[s]
	return typ, ok
}

// parseNameAnswer reads a reply to "who is this for?". Long replies are
// taken as a new message rather than a name.
func parseNameAnswer(text string) (string, bool) {
	s := strings.TrimSpace(text)
	s = strings.TrimRight(s, ".!?")
	lower := strings.ToLower(s)
	for _, prefix := range []string{"it's ", "its ", "it is ", "waiting on ", "waiting for ", "from ", "with ", "for ", "on "} {
		if strings.HasPrefix(lower, prefix) {
			s, lower = s[len(prefix):], lower[len(prefix):]
		}
	}
	s = strings.TrimSpace(s)
	if s == "" || len(strings.Fields(s)) > 4 || strings.ContainsAny(s, "0123456789@") {
		return "", false
	}
	return s, true
}

// knownPerson reports whether name matches someone the user has stored.
func (l *Loop) knownPerson(ctx context.Context, t *turn, name string) bool {
	people, err := l.store.FindPeople(ctx, t.userID, name)
	if err != nil {
		t.log.Warn("person lookup failed", "error", err)
		return false
	}
	return len(people) > 0
}

// taskWords are verbs and time words that do not appear in names.
var taskWords = map[string]bool{
	"buy": true, "call": true, "email": true, "text": true, "pick": true,
	"send": true, "finish": true, "schedule": true, "book": true, "pay": true,
	"get": true, "make": true, "fix": true, "clean": true, "write": true,
	"read": true, "check": true, "remember": true, "remind": true, "add": true,
	"delete": true, "remove": true, "undo": true, "help": true, "show": true,
	"list": true, "cancel": true, "stop": true, "done": true, "complete": true,
	"need": true, "want": true, "what": true, "when": true, "how": true,
	"today": true, "tomorrow": true, "tonight": true, "yesterday": true,
	"week": true, "weekend": true, "morning": true, "afternoon": true,
	"evening": true, "asap": true, "later": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

// looksLikeTask reports whether a short reply reads as a new request
// rather than a name.
func looksLikeTask(s string) bool {
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if taskWords[strings.Trim(w, ",.!?'\"")] {
			return true
		}
	}
	return false
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "about": true,
	"from": true, "that": true, "this": true, "some": true, "get": true,
}

// significantWords returns the lowercase words of title worth learning
// associations for.
func significantWords(title string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'')
	}) {
		if len(w) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
