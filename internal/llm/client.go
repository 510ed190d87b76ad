package llm

import (
	"context"
	"encoding/json"
)

// Client is the interface that all LLM providers must implement.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// JSONChatter is implemented by providers that can constrain a reply to
// a JSON schema natively. Structured uses it when available and falls
// back to prompting otherwise.
type JSONChatter interface {
	ChatJSON(ctx context.Context, model string, messages []Message, schema map[string]any) (json.RawMessage, error)
}
