package intent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/errand/internal/session"
)

// Call is everything a handler gets for one classified intent.
type Call struct {
	UserID          string
	Message         string
	Intent          Intent
	RequiredLookups []string
	Now             time.Time
	Conv            *session.ConversationContext
}

// Outcome is a handler's reply and the context changes it wants merged.
type Outcome struct {
	Text  string
	Delta session.Delta
}

// Handler answers one intent.
type Handler func(ctx context.Context, c *Call) (Outcome, error)

// Router dispatches intents to handlers.
type Router struct {
	handlers map[Type]Handler
	fallback Handler
	logger   *slog.Logger
}

// NewRouter builds a router. Unless fallback is non-nil, every intent in
// [Types] must have a handler; a gap is reported here instead of on the
// first message that needs it.
func NewRouter(handlers map[Type]Handler, fallback Handler, logger *slog.Logger) (*Router, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if fallback == nil {
		for _, t := range Types {
			if handlers[t] == nil {
				return nil, fmt.Errorf("intent router: no handler for %q", t)
			}
		}
	}
	for t := range handlers {
		if _, ok := needsLookup[t]; !ok {
			return nil, fmt.Errorf("intent router: handler for unknown intent %q", t)
		}
	}
	hs := make(map[Type]Handler, len(handlers))
	for t, h := range handlers {
		hs[t] = h
	}
	return &Router{
		handlers: hs,
		fallback: fallback,
		logger:   logger.With("component", "intent"),
	}, nil
}

// Dispatch runs the handler for c.Intent.
func (r *Router) Dispatch(ctx context.Context, c *Call) (Outcome, error) {
	h := r.handlers[c.Intent.Type]
	if h == nil {
		h = r.fallback
	}
	if h == nil {
		return Outcome{}, fmt.Errorf("intent router: no handler for %q", c.Intent.Type)
	}
	r.logger.Debug("dispatching intent",
		"user", c.UserID,
		"intent", c.Intent.Type,
		"needs_lookup", c.Intent.Type.NeedsDataLookup(),
	)
	return h(ctx, c)
}
