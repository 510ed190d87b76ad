package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// MultiClient routes requests to the appropriate provider based on model name.
type MultiClient struct {
	clients  map[string]Client // provider name → client
	models   map[string]string // model name → provider name
	fallback Client            // default client for unknown models
}

// NewMultiClient creates a client that routes to multiple providers.
func NewMultiClient(fallback Client) *MultiClient {
	return &MultiClient{
		clients:  make(map[string]Client),
		models:   make(map[string]string),
		fallback: fallback,
	}
}

// AddProvider registers a client for a provider name.
func (m *MultiClient) AddProvider(name string, client Client) {
	m.clients[name] = client
}

// AddModel maps a model name to a provider.
func (m *MultiClient) AddModel(modelName, providerName string) {
	m.models[modelName] = providerName
}

// clientFor returns the appropriate client for a model.
func (m *MultiClient) clientFor(model string) Client {
	if provider, ok := m.models[model]; ok {
		if client, ok := m.clients[provider]; ok {
			return client
		}
	}
	return m.fallback
}

// Chat sends a request to the appropriate provider for the model.
func (m *MultiClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	client := m.clientFor(model)
	if client == nil {
		return nil, fmt.Errorf("no provider configured for model %q", model)
	}
	return client.Chat(ctx, model, messages, tools)
}

// ChatJSON uses the provider's native JSON mode when it has one and
// otherwise extracts the first JSON object from a plain chat reply.
func (m *MultiClient) ChatJSON(ctx context.Context, model string, messages []Message, schema map[string]any) (json.RawMessage, error) {
	client := m.clientFor(model)
	if client == nil {
		return nil, fmt.Errorf("no provider configured for model %q", model)
	}
	if jc, ok := client.(JSONChatter); ok {
		return jc.ChatJSON(ctx, model, messages, schema)
	}
	resp, err := client.Chat(ctx, model, messages, nil)
	if err != nil {
		return nil, err
	}
	return extractJSON(resp.Message.Content)
}

// Ping checks the fallback provider.
func (m *MultiClient) Ping(ctx context.Context) error {
	if m.fallback != nil {
		return m.fallback.Ping(ctx)
	}
	return fmt.Errorf("no fallback client configured")
}

// Providers returns the registered provider clients by name.
func (m *MultiClient) Providers() map[string]Client {
	out := make(map[string]Client, len(m.clients))
	for name, c := range m.clients {
		out[name] = c
	}
	return out
}
