package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nugget/errand/internal/intent"
	"github.com/nugget/errand/internal/llm"
	"github.com/nugget/errand/internal/prompts"
	"github.com/nugget/errand/internal/router"
	"github.com/nugget/errand/internal/session"
	"github.com/nugget/errand/internal/tools"
)

// promptTimeLayout renders the current time in prompts.
const promptTimeLayout = "Monday 2006-01-02 15:04 MST"

// handleWithTools answers an intent that needs live data by letting the
// model call tools for a bounded number of rounds.
func (l *Loop) handleWithTools(ctx context.Context, c *intent.Call) (intent.Outcome, error) {
	t := turnFrom(ctx)
	t.state = StateToolRound
	ec := l.execContext(t)

	system := prompts.AgentSystemPrompt(
		c.Now.In(ec.Location).Format(promptTimeLayout),
		c.Conv.Summary(l.sessions.PatternThreshold(), l.opts.MaxPatterns),
		describeRequest(c),
		l.tools.Describe(),
	)
	msgs := []llm.Message{{Role: "system", Content: system}}
	msgs = append(msgs, history(c.Conv.Session)...)
	msgs = append(msgs, llm.Message{Role: "user", Content: c.Message})
	defs := l.tools.List()

	for round := 1; round <= l.opts.MaxToolRounds; round++ {
		t.rounds = round
		resp, err := l.chat(ctx, c, msgs, defs)
		if err != nil {
			return intent.Outcome{}, fmt.Errorf("tool round %d: %w", round, err)
		}

		calls := resp.Message.ToolCalls
		if len(calls) == 0 {
			text := strings.TrimSpace(resp.Message.Content)
			if text == "" {
				return intent.Outcome{}, errEmptyReply
			}
			return intent.Outcome{Text: text}, nil
		}
		if round == l.opts.MaxToolRounds {
			// No round left to report results in, so nothing is run.
			t.log.Warn("tool round limit reached", "rounds", round, "pending_calls", len(calls))
			break
		}

		msgs = append(msgs, llm.Message{Role: "assistant", Content: resp.Message.Content, ToolCalls: calls})
		results := l.runRound(ctx, t, ec, calls)
		for i, call := range calls {
			msgs = append(msgs, llm.Message{
				Role:       "tool",
				Content:    toolContent(call.Function.Name, results[i]),
				ToolCallID: call.ID,
			})
		}
	}
	return intent.Outcome{}, errTooManyRounds
}

// chat makes one routed model call under the model deadline.
func (l *Loop) chat(ctx context.Context, c *intent.Call, msgs []llm.Message, defs []map[string]any) (*llm.ChatResponse, error) {
	size := 0
	for _, m := range msgs {
		size += len(m.Content)
	}
	model, d := l.router.Route(ctx, router.Request{
		Query:       c.Message,
		Stage:       router.StageToolRound,
		IntentType:  string(c.Intent.Type),
		Lookups:     len(c.RequiredLookups),
		ContextSize: size / 4,
		NeedsTools:  true,
		ToolCount:   len(defs),
		Priority:    router.PriorityInteractive,
	})

	callCtx, cancel := context.WithTimeout(ctx, l.opts.ModelTimeout)
	defer cancel()

	start := time.Now()
	resp, err := l.llm.Chat(callCtx, model, msgs, defs)
	tokens := 0
	if resp != nil {
		tokens = resp.InputTokens + resp.OutputTokens
	}
	l.router.RecordOutcome(d.RequestID, time.Since(start).Milliseconds(), tokens, err == nil)
	if err != nil {
		return nil, fmt.Errorf("chat %s: %w", model, err)
	}
	return resp, nil
}

// runRound executes one round of tool calls. A round of lookups only
// runs concurrently; a round with any action runs in request order so
// later calls can depend on earlier ones.
func (l *Loop) runRound(ctx context.Context, t *turn, ec *tools.ExecContext, calls []llm.ToolCall) []tools.Result {
	results := make([]tools.Result, len(calls))

	lookupsOnly := true
	for _, call := range calls {
		if l.tools.KindOf(call.Function.Name) != tools.KindLookup {
			lookupsOnly = false
			break
		}
	}

	if !lookupsOnly {
		for i, call := range calls {
			results[i] = l.call(ctx, t, ec, call.Function.Name, call.Function.Arguments)
		}
		return results
	}

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = l.tools.Execute(ctx, ec, call.Function.Name, call.Function.Arguments)
		}()
	}
	wg.Wait()
	for i, call := range calls {
		l.absorb(ctx, t, call.Function.Name, tools.KindLookup, results[i])
	}
	return results
}

// call runs one tool and records its effects on the turn. An action that
// names an id nobody has seen, after a lookup this turn came back empty,
// is skipped: the model is guessing.
func (l *Loop) call(ctx context.Context, t *turn, ec *tools.ExecContext, name string, args map[string]any) tools.Result {
	kind := l.tools.KindOf(name)
	if kind == tools.KindAction && t.foundEmpty {
		for _, key := range []string{"task_id", "person_id"} {
			id, _ := args[key].(string)
			if id != "" && !t.knows(id) {
				t.log.Info("skipping unverified action", "tool", name, key, id)
				return tools.Result{Skipped: true, Error: prompts.SkippedActionNote(name, id)}
			}
		}
	}
	res := l.tools.Execute(ctx, ec, name, args)
	l.absorb(ctx, t, name, kind, res)
	return res
}

// absorb records what a finished call means for the rest of the turn.
func (l *Loop) absorb(ctx context.Context, t *turn, name string, kind tools.Kind, res tools.Result) {
	if res.Track != nil {
		t.tracks = append(t.tracks, res.Track)
		for _, ref := range res.Track.Tasks {
			t.known[ref.ID] = true
		}
		for _, ref := range res.Track.People {
			t.known[ref.ID] = true
		}
	}
	if kind == tools.KindLookup && foundNothing(res) {
		t.foundEmpty = true
	}
	if res.Success && res.Undo != nil {
		if err := l.undo.Push(ctx, t.userID, *res.Undo); err != nil {
			t.log.Error("record undo failed", "tool", name, "error", err)
		}
	}
	if res.Uncertain {
		t.notices = append(t.notices, prompts.UncertainActionNotice(name))
	}
}

// foundNothing reports whether a lookup came back empty or failed.
// Lookups that report counters rather than entities carry no Track and
// never count as empty.
func foundNothing(res tools.Result) bool {
	if !res.Success {
		return !res.TimedOut
	}
	return res.Track != nil && len(res.Track.Tasks) == 0 && len(res.Track.People) == 0
}

// toolContent is what the model sees for a call's result.
func toolContent(name string, res tools.Result) string {
	switch {
	case res.Skipped:
		return res.Error
	case !res.Success:
		return prompts.ToolFailedNote(name, res.Error)
	default:
		return res.JSON()
	}
}

// describeRequest renders the classified intent for the system prompt.
func describeRequest(c *intent.Call) string {
	var b strings.Builder
	fmt.Fprintf(&b, "intent: %s", c.Intent.Type)
	if e, err := json.Marshal(c.Intent.Entities); err == nil && string(e) != "{}" {
		fmt.Fprintf(&b, "\nentities: %s", e)
	}
	if len(c.RequiredLookups) > 0 {
		fmt.Fprintf(&b, "\nsuggested lookups: %s", strings.Join(c.RequiredLookups, ", "))
	}
	return b.String()
}

// history replays the recent turns as chat messages.
func history(s *session.Session) []llm.Message {
	if s == nil {
		return nil
	}
	out := make([]llm.Message, 0, len(s.RecentTurns))
	for _, turn := range s.RecentTurns {
		if turn.Role != "user" && turn.Role != "assistant" {
			continue
		}
		out = append(out, llm.Message{Role: turn.Role, Content: turn.Text})
	}
	return out
}
