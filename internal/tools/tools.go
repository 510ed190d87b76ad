// Package tools defines the tools available to the agent and the
// registry that validates and executes them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/nugget/errand/internal/gtd"
	"github.com/nugget/errand/internal/session"
	"github.com/nugget/errand/internal/undo"
)

// DefaultTimeout bounds a single tool call when the registry is not
// given one.
const DefaultTimeout = 10 * time.Second

// Kind separates tools that only read from tools that change state.
// Lookups are safe to run concurrently and to retry; actions are not.
type Kind string

const (
	KindLookup Kind = "lookup"
	KindAction Kind = "action"
)

// Handler runs a tool. args have already been validated against the
// tool's parameter schema.
type Handler func(ctx context.Context, ec *ExecContext, args map[string]any) Result

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Kind        Kind           `json:"kind"`
	Handler     Handler        `json:"-"`
}

// Result is the outcome of one tool call. Success, Data, Error, and
// TimedOut are shown to the model; the rest is for the agent.
type Result struct {
	Success  bool   `json:"success"`
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
	TimedOut bool   `json:"timed_out,omitempty"`

	// Uncertain is set when an action may or may not have taken effect.
	Uncertain bool `json:"-"`

	// Skipped is set when the agent declined to run the call.
	Skipped bool `json:"-"`

	// Undo reverses a successful action.
	Undo *undo.Action `json:"-"`

	// Track lists the entities the call touched.
	Track *session.TrackEntities `json:"-"`
}

// JSON renders the model-visible part of r.
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, "unencodable result: "+err.Error())
	}
	return string(b)
}

func ok(data any) Result {
	return Result{Success: true, Data: data}
}

func fail(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// ExecContext is the per-call environment a handler runs in.
type ExecContext struct {
	UserID string
	Store  Store
	Prefs  PreferenceStore

	// Conv is the caller's snapshot of the user's context. Handlers
	// read it; changes go back through Result.Track and Result.Undo.
	Conv *session.ConversationContext

	Now      time.Time
	Location *time.Location
}

// Today returns the user's local date.
func (ec *ExecContext) Today() string {
	loc := ec.Location
	if loc == nil {
		loc = time.UTC
	}
	return ec.Now.In(loc).Format(gtd.DateLayout)
}

// Registry holds available tools.
type Registry struct {
	tools   map[string]*Tool
	timeout time.Duration
	late    LateFunc
	logger  *slog.Logger
}

// LateFunc receives the result of an action that finished after Execute
// had already reported it as timed out.
type LateFunc func(ec *ExecContext, name string, res Result)

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:   make(map[string]*Tool),
		timeout: DefaultTimeout,
		logger:  logger.With("component", "tools"),
	}
}

// SetTimeout changes the per-call deadline. Non-positive values are ignored.
func (r *Registry) SetTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

// SetLateResult installs fn to receive actions that complete after
// their timeout. Set it before the registry is used.
func (r *Registry) SetLateResult(fn LateFunc) {
	r.late = fn
}

// Register adds a tool to the registry, replacing any tool of the same name.
func (r *Registry) Register(t *Tool) {
	if t.Kind == "" {
		t.Kind = KindAction
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// KindOf returns the kind of the named tool. Unknown tools are treated
// as actions.
func (r *Registry) KindOf(name string) Kind {
	if t := r.tools[name]; t != nil {
		return t.Kind
	}
	return KindAction
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all tools in the function-calling shape the LLM clients
// expect, in name order.
func (r *Registry) List() []map[string]any {
	var result []map[string]any
	for _, name := range r.Names() {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Describe returns a one-line-per-tool catalog for prompts.
func (r *Registry) Describe() string {
	var sb strings.Builder
	for _, name := range r.Names() {
		t := r.tools[name]
		fmt.Fprintf(&sb, "- %s (%s): %s\n", t.Name, t.Kind, t.Description)
	}
	return sb.String()
}

// Execute validates args and runs the named tool under the registry's
// deadline. It never panics and never returns a Go error: every failure
// is a Result with Success=false.
func (r *Registry) Execute(ctx context.Context, ec *ExecContext, name string, args map[string]any) Result {
	log := r.logger.With("tool", name, "turn", TurnIDFromContext(ctx))

	t := r.tools[name]
	if t == nil {
		err := &ErrToolUnavailable{ToolName: name}
		log.Warn("unknown tool requested")
		return Result{Error: err.Error()}
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := Validate(t.Parameters, args); err != nil {
		log.Debug("tool arguments rejected", "error", err)
		return Result{Error: "invalid arguments: " + err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				log.Error("tool panicked", "panic", p, "stack", string(debug.Stack()))
				done <- Result{Error: "internal error"}
			}
		}()
		done <- t.Handler(ctx, ec, args)
	}()

	select {
	case res := <-done:
		log.Debug("tool executed", "kind", t.Kind, "success", res.Success, "elapsed", time.Since(start))
		return res
	case <-ctx.Done():
		log.Warn("tool timed out", "kind", t.Kind, "timeout", r.timeout)
		if t.Kind == KindAction {
			go r.awaitLate(log, ec, name, start, done)
		}
		return Result{
			Error:     "timeout",
			TimedOut:  true,
			Uncertain: t.Kind == KindAction,
		}
	}
}

// awaitLate reports an action that outlived its timeout. The handler
// may still have changed data, and its undo entry is the only way back.
func (r *Registry) awaitLate(log *slog.Logger, ec *ExecContext, name string, start time.Time, done <-chan Result) {
	res := <-done
	log.Warn("tool finished after timeout",
		"success", res.Success, "error", res.Error, "elapsed", time.Since(start))
	if r.late != nil {
		r.late(ec, name, res)
	}
}

// decode copies validated args into a typed parameter struct.
func decode(args map[string]any, v any) error {
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}
