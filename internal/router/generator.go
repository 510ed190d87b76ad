package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nugget/errand/internal/llm"
)

// Generator asks a routed model for a JSON object. Each call is routed
// as a classification and its outcome recorded against the decision.
type Generator struct {
	client llm.Client
	router *Router
}

// NewGenerator returns a generator that picks models with r.
func NewGenerator(client llm.Client, r *Router) *Generator {
	return &Generator{client: client, router: r}
}

// Generate routes, generates, and records the outcome.
func (g *Generator) Generate(ctx context.Context, prompt string, schema map[string]any) (json.RawMessage, error) {
	model, d := g.router.Route(ctx, Request{
		Query:       prompt,
		Stage:       StageClassify,
		ContextSize: len(prompt) / 4,
		Priority:    PriorityInteractive,
	})

	start := time.Now()
	out, err := llm.NewStructured(g.client, model).Generate(ctx, prompt, schema)
	g.router.RecordOutcome(d.RequestID, time.Since(start).Milliseconds(), 0, err == nil)
	return out, err
}
