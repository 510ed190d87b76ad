// Package agent runs one conversational turn: classify the message,
// answer it directly or through a bounded number of tool rounds, and
// merge what the turn learned back into the user's context.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/errand/internal/classifier"
	"github.com/nugget/errand/internal/gtd"
	"github.com/nugget/errand/internal/intent"
	"github.com/nugget/errand/internal/llm"
	"github.com/nugget/errand/internal/prompts"
	"github.com/nugget/errand/internal/router"
	"github.com/nugget/errand/internal/session"
	"github.com/nugget/errand/internal/tools"
	"github.com/nugget/errand/internal/undo"
)

// State is where a turn is in its lifecycle.
type State string

const (
	StateClassify  State = "classify"
	StateDirect    State = "direct_response"
	StateToolRound State = "tool_round"
	StateClarify   State = "clarify"
	StateFallback  State = "fallback"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultMaxToolRounds = 3
	DefaultModelTimeout  = 30 * time.Second
	DefaultEntitiesTTL   = time.Hour
	DefaultMaxPatterns   = 8

	lateSaveTimeout = 5 * time.Second
)

const (
	maxCachedPeople   = 50
	maxCachedProjects = 20
)

var (
	errTooManyRounds = errors.New("model still requesting tools after the last round")
	errEmptyReply    = errors.New("model returned an empty reply")
)

// Classifier classifies a message. classifier.Classifier implements it.
type Classifier interface {
	Classify(ctx context.Context, message string, conv *session.ConversationContext, now time.Time) classifier.Result
}

// Options tunes a Loop.
type Options struct {
	MaxToolRounds int
	ModelTimeout  time.Duration
	EntitiesTTL   time.Duration
	MaxPatterns   int

	// Location is used for users who have not set a timezone.
	Location *time.Location
}

func (o *Options) applyDefaults() {
	if o.MaxToolRounds <= 0 {
		o.MaxToolRounds = DefaultMaxToolRounds
	}
	if o.ModelTimeout <= 0 {
		o.ModelTimeout = DefaultModelTimeout
	}
	if o.EntitiesTTL <= 0 {
		o.EntitiesTTL = DefaultEntitiesTTL
	}
	if o.MaxPatterns <= 0 {
		o.MaxPatterns = DefaultMaxPatterns
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
}

// Deps are the collaborators a Loop drives.
type Deps struct {
	Classifier Classifier
	LLM        llm.Client
	Router     *router.Router
	Tools      *tools.Registry
	Store      tools.Store
	Sessions   *session.Manager
	Undo       *undo.Manager
}

// Loop handles turns. One turn per user runs at a time; different users
// proceed in parallel.
type Loop struct {
	classifier Classifier
	llm        llm.Client
	router     *router.Router
	tools      *tools.Registry
	store      tools.Store
	sessions   *session.Manager
	undo       *undo.Manager
	intents    *intent.Router

	opts   Options
	turns  session.KeyedMutex
	logger *slog.Logger
}

// NewLoop wires a loop. Every dependency is required.
func NewLoop(d Deps, opts Options, logger *slog.Logger) (*Loop, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case d.Classifier == nil:
		return nil, errors.New("agent: classifier is required")
	case d.LLM == nil:
		return nil, errors.New("agent: llm client is required")
	case d.Router == nil:
		return nil, errors.New("agent: model router is required")
	case d.Tools == nil:
		return nil, errors.New("agent: tool registry is required")
	case d.Store == nil:
		return nil, errors.New("agent: task store is required")
	case d.Sessions == nil:
		return nil, errors.New("agent: session manager is required")
	case d.Undo == nil:
		return nil, errors.New("agent: undo manager is required")
	}
	opts.applyDefaults()

	l := &Loop{
		classifier: d.Classifier,
		llm:        d.LLM,
		router:     d.Router,
		tools:      d.Tools,
		store:      d.Store,
		sessions:   d.Sessions,
		undo:       d.Undo,
		opts:       opts,
		logger:     logger.With("component", "agent"),
	}
	intents, err := intent.NewRouter(l.intentHandlers(), nil, logger)
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	l.intents = intents
	d.Tools.SetLateResult(l.lateResult)
	return l, nil
}

// lateResult keeps an action that finished after its timeout undoable.
func (l *Loop) lateResult(ec *tools.ExecContext, name string, res tools.Result) {
	log := l.logger.With("user", ec.UserID, "tool", name)
	if !res.Success {
		log.Info("late action failed", "error", res.Error)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), lateSaveTimeout)
	defer cancel()
	if res.Undo != nil {
		if err := l.undo.Push(ctx, ec.UserID, *res.Undo); err != nil {
			log.Error("record late undo failed", "error", err)
		}
	}
	if res.Track != nil {
		if _, err := l.sessions.Update(ctx, ec.UserID, session.Delta{Track: res.Track}); err != nil {
			log.Error("record late entities failed", "error", err)
		}
	}
	log.Info("late action recorded", "undoable", res.Undo != nil)
}

// turn is the state of one HandleTurn call.
type turn struct {
	id     string
	userID string
	text   string
	now    time.Time
	conv   *session.ConversationContext
	log    *slog.Logger

	state      State
	class      classifier.Result
	rounds     int
	tracks     []*session.TrackEntities
	notices    []string
	entities   *session.EntityCache
	clearFlow  bool
	known      map[string]bool
	foundEmpty bool
}

type turnKey struct{}

func withTurn(ctx context.Context, t *turn) context.Context {
	return context.WithValue(ctx, turnKey{}, t)
}

func turnFrom(ctx context.Context) *turn {
	t, _ := ctx.Value(turnKey{}).(*turn)
	return t
}

// HandleTurn answers one message from userID received at now. It always
// returns text to send: failures are logged and become a generic reply.
func (l *Loop) HandleTurn(ctx context.Context, userID, text string, now time.Time) (reply string) {
	unlock := l.turns.Lock(userID)
	defer unlock()

	t := &turn{
		id:     uuid.Must(uuid.NewV7()).String(),
		userID: userID,
		text:   strings.TrimSpace(text),
		now:    now,
		state:  StateClassify,
		known:  make(map[string]bool),
	}
	t.log = l.logger.With("user", userID, "turn", t.id)
	ctx = tools.WithTurnID(withTurn(ctx, t), t.id)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			t.log.Error("turn panicked", "state", t.state, "panic", p, "stack", string(debug.Stack()))
			t.state = StateFallback
			reply = prompts.FallbackText
		}
		t.log.Info("turn completed",
			"state", t.state,
			"class", t.class.Type,
			"rounds", t.rounds,
			"elapsed", time.Since(start),
		)
	}()

	conv, err := l.sessions.Load(ctx, userID)
	if err != nil {
		t.log.Error("load context failed", "error", err)
		t.state = StateFallback
		return prompts.FallbackText
	}
	t.conv = conv
	l.refreshEntities(ctx, t)

	out, err := l.run(ctx, t)
	if err != nil {
		t.log.Warn("turn fell back", "state", t.state, "error", err)
		t.state = StateFallback
		out = intent.Outcome{Text: prompts.FallbackText}
	}
	reply = t.reply(out.Text)

	d := out.Delta
	d.Track = mergeTracks(append(t.tracks, d.Track))
	if t.entities != nil {
		d.Entities = t.entities
	}
	if t.clearFlow && d.Flow == nil {
		d.ClearFlow = true
	}
	d.Turns = append(d.Turns,
		session.Turn{Role: "user", Text: t.text, At: now},
		session.Turn{Role: "assistant", Text: reply, At: now},
	)
	if _, err := l.sessions.Update(ctx, userID, d); err != nil {
		t.log.Error("save context failed", "error", err)
	}
	return reply
}

// run classifies the message and dispatches it.
func (l *Loop) run(ctx context.Context, t *turn) (intent.Outcome, error) {
	if f := t.conv.Session.ActiveFlow; f != nil {
		if isCancel(t.text) {
			t.state = StateDirect
			return intent.Outcome{Text: prompts.CancelledText, Delta: session.Delta{ClearFlow: true}}, nil
		}
		_, command := classifier.FastPath(t.text)
		if f.Kind == session.FlowClarifyTask && !command {
			if out, ok, err := l.resumeDraft(ctx, t, f); ok || err != nil {
				return out, err
			}
		}
		// The message did not answer the open question; treat it as new.
		t.log.Debug("abandoning flow", "kind", f.Kind)
		t.clearFlow = true
	}

	res := l.classifier.Classify(ctx, t.text, t.conv, t.now)
	t.class = res
	t.log.Debug("classified",
		"type", res.Type,
		"confidence", res.Confidence,
		"source", res.Source,
		"needs_lookup", res.NeedsDataLookup,
	)

	switch res.Type {
	case classifier.TypeTask:
		return l.captureDraft(ctx, t, *res.Task)

	case classifier.TypeMultiItem:
		return l.captureBatch(ctx, t, res.Items, res.Truncated, res.Untitled)

	case classifier.TypeIntent:
		t.state = StateDirect
		if res.NeedsDataLookup {
			t.state = StateToolRound
		}
		return l.intents.Dispatch(ctx, &intent.Call{
			UserID:          t.userID,
			Message:         t.text,
			Intent:          *res.Intent,
			RequiredLookups: res.RequiredLookups,
			Now:             t.now,
			Conv:            t.conv,
		})

	case classifier.TypeNeedsClarification:
		t.state = StateClarify
		return intent.Outcome{Text: res.ClarificationQuestion}, nil

	default:
		t.state = StateFallback
		return intent.Outcome{Text: prompts.FallbackText}, nil
	}
}

// reply joins the handler's text with any notices the turn collected.
func (t *turn) reply(text string) string {
	var parts []string
	if s := strings.TrimSpace(text); s != "" {
		parts = append(parts, s)
	}
	parts = append(parts, t.notices...)
	if len(parts) == 0 {
		return prompts.FallbackText
	}
	return strings.Join(parts, " ")
}

// knows reports whether id was seen in the session, the entity cache, or
// an earlier result this turn.
func (t *turn) knows(id string) bool {
	if t.known[id] {
		return true
	}
	if s := t.conv.Session; s != nil && (s.KnowsTask(id) || s.KnowsPerson(id)) {
		return true
	}
	for _, p := range t.conv.Entities.People {
		if p.ID == id {
			return true
		}
	}
	for _, p := range t.conv.Entities.Projects {
		if p.ID == id {
			return true
		}
	}
	return false
}

// execContext builds the tool environment for the turn's user.
func (l *Loop) execContext(t *turn) *tools.ExecContext {
	return &tools.ExecContext{
		UserID:   t.userID,
		Store:    l.store,
		Prefs:    l.sessions,
		Conv:     t.conv,
		Now:      t.now,
		Location: t.conv.Location(l.opts.Location),
	}
}

// refreshEntities reloads known people and projects when the cache is
// older than the configured TTL. Failures keep the stale cache.
func (l *Loop) refreshEntities(ctx context.Context, t *turn) {
	if !t.conv.Entities.Stale(t.now, l.opts.EntitiesTTL) {
		return
	}
	people, err := l.store.ListPeople(ctx, t.userID)
	if err != nil {
		t.log.Warn("refresh people failed", "error", err)
		return
	}
	projects, err := l.store.QueryTasks(ctx, t.userID, gtd.Filter{Type: gtd.TypeProject, Limit: maxCachedProjects})
	if err != nil {
		t.log.Warn("refresh projects failed", "error", err)
		return
	}

	cache := session.EntityCache{RefreshedAt: t.now}
	for i, p := range people {
		if i == maxCachedPeople {
			break
		}
		cache.People = append(cache.People, session.PersonRef{ID: p.ID, Name: p.Name})
	}
	for _, p := range projects {
		cache.Projects = append(cache.Projects, session.TaskRef{ID: p.ID, Title: p.Title})
	}
	t.conv.Entities = cache
	t.entities = &cache
	t.log.Debug("entities refreshed", "people", len(cache.People), "projects", len(cache.Projects))
}

// mergeTracks combines per-call tracks so the most recent call's
// entities come first. LastCreated is the last creation of the turn.
func mergeTracks(list []*session.TrackEntities) *session.TrackEntities {
	out := &session.TrackEntities{}
	for i := len(list) - 1; i >= 0; i-- {
		out.Add(list[i])
	}
	if len(out.Tasks) == 0 && len(out.People) == 0 && out.LastCreated == "" {
		return nil
	}
	return out
}

var cancelWords = map[string]bool{
	"cancel":       true,
	"cancel that":  true,
	"never mind":   true,
	"nevermind":    true,
	"nvm":          true,
	"forget it":    true,
	"forget that":  true,
	"skip it":      true,
	"stop":         true,
	"don't bother": true,
}

func isCancel(text string) bool {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimRight(s, ".!")
	return cancelWords[s]
}
