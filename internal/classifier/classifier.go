// Package classifier turns a text message into a [Result]: a task to
// capture, a batch of tasks, an intent over existing data, a question
// back to the user, or unknown.
package classifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/errand/internal/intent"
	"github.com/nugget/errand/internal/prompts"
	"github.com/nugget/errand/internal/session"
)

// Generator produces one JSON object for a prompt. llm.Structured and
// router.Generator implement it.
type Generator interface {
	Generate(ctx context.Context, prompt string, schema map[string]any) (json.RawMessage, error)
}

// Options configures a Classifier.
type Options struct {
	Limits           Limits
	Timeout          time.Duration  // per model call; zero means the caller's deadline
	PatternThreshold float64        // strong/tentative label for learned patterns
	MaxPatterns      int            // how many patterns go in the prompt
	Location         *time.Location // default when the user has no timezone set
}

// Classifier classifies messages with a model.
type Classifier struct {
	gen    Generator
	opts   Options
	logger *slog.Logger
}

// New returns a classifier that asks gen.
func New(gen Generator, opts Options, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Limits.MaxItems <= 0 {
		opts.Limits.MaxItems = DefaultMaxItems
	}
	if opts.MaxPatterns <= 0 {
		opts.MaxPatterns = 8
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Classifier{gen: gen, opts: opts, logger: logger.With("component", "classifier")}
}

// fastPath maps exact short commands to intents without a model call.
var fastPath = map[string]intent.Type{
	"undo":      intent.Undo,
	"undo that": intent.Undo,
	"stop that": intent.Undo,
	"help":      intent.ShowHelp,
	"?":         intent.ShowHelp,
}

// FastPath classifies message without a model when it is one of a few
// exact commands.
func FastPath(message string) (Result, bool) {
	key := strings.ToLower(strings.TrimSpace(message))
	if key != "?" {
		key = strings.TrimRight(key, ".!")
	}
	t, ok := fastPath[key]
	if !ok {
		return Result{}, false
	}
	return Result{
		Type:            TypeIntent,
		Confidence:      1,
		Intent:          &intent.Intent{Type: t},
		NeedsDataLookup: t.NeedsDataLookup(),
		Reasoning:       "exact command",
		Source:          SourceFastPath,
	}, true
}

// Classify classifies message for the user whose context is conv. It
// never returns an error: model failures and unparsable output become
// an unknown result with zero confidence.
func (c *Classifier) Classify(ctx context.Context, message string, conv *session.ConversationContext, now time.Time) Result {
	if r, ok := FastPath(message); ok {
		c.logger.Debug("fast path", "intent", r.Intent.Type)
		return r
	}

	loc := c.opts.Location
	memory := ""
	if conv != nil {
		loc = conv.Location(loc)
		memory = conv.Summary(c.opts.PatternThreshold, c.opts.MaxPatterns)
	}
	prompt := prompts.ClassifierPrompt(message, now.In(loc).Format("Monday 2006-01-02 15:04 MST"), memory, c.opts.Limits.MaxItems)

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	raw, err := c.gen.Generate(ctx, prompt, Schema())
	if err != nil {
		c.logger.Warn("classification failed", "error", err)
		return Unknown(0, "model error: "+err.Error())
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		c.logger.Warn("unparsable classification", "error", err, "raw", string(raw))
		return Unknown(0, "unparsable model output")
	}

	r := Normalize(fields, message, c.opts.Limits)
	c.logger.Debug("classified",
		"type", r.Type,
		"confidence", r.Confidence,
		"needs_lookup", r.NeedsDataLookup,
		"truncated", r.Truncated,
		"untitled", r.Untitled,
	)
	return r
}

// Schema is the JSON schema sent to providers that constrain output.
// It is deliberately loose; Normalize enforces the real rules.
func Schema() map[string]any {
	draft := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":       map[string]any{"type": "string"},
			"type":        map[string]any{"type": "string"},
			"context":     map[string]any{"type": "string"},
			"priority":    map[string]any{"type": "string"},
			"due_date":    map[string]any{"type": "string"},
			"person_name": map[string]any{"type": "string"},
			"notes":       map[string]any{"type": "string"},
		},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type": map[string]any{
				"type": "string",
				"enum": []string{string(TypeTask), string(TypeMultiItem), string(TypeIntent), string(TypeNeedsClarification), string(TypeUnknown)},
			},
			"confidence": map[string]any{"type": "number"},
			"task":       draft,
			"items":      map[string]any{"type": "array", "items": draft},
			"intent": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type":     map[string]any{"type": "string"},
					"entities": map[string]any{"type": "object"},
				},
			},
			"required_lookups":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"clarification_question": map[string]any{"type": "string"},
			"reasoning":              map[string]any{"type": "string"},
		},
		"required": []string{"type", "confidence"},
	}
}
