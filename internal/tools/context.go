package tools

import "context"

type contextKey string

const turnIDKey contextKey = "turn_id"

// WithTurnID tags ctx with the id of the turn making tool calls, so tool
// logs can be correlated with the agent's.
func WithTurnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, turnIDKey, id)
}

// TurnIDFromContext extracts the turn id. Returns "" if not set.
func TurnIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(turnIDKey).(string); ok {
		return id
	}
	return ""
}
