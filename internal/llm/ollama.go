package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/errand/internal/httpkit"
)

// DefaultOllamaURL is used when no base URL is configured.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaClient is a client for the Ollama API.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(baseURL string, logger *slog.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	// Ollama is often still starting when errand comes up.
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger.With("provider", "ollama"),
		httpClient: httpkit.NewClient(httpkit.Retry(2, time.Second), httpkit.Logger(logger)),
	}
}

type ollamaRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Format   any              `json:"format,omitempty"`
	Options  *ollamaOptions   `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	Function FunctionCall `json:"function"`
}

type ollamaResponse struct {
	Model         string        `json:"model"`
	CreatedAt     string        `json:"created_at"`
	Message       ollamaMessage `json:"message"`
	Done          bool          `json:"done"`
	TotalDuration int64         `json:"total_duration,omitempty"`
	PromptEval    int           `json:"prompt_eval_count,omitempty"`
	EvalCount     int           `json:"eval_count,omitempty"`
	EvalDuration  int64         `json:"eval_duration,omitempty"`
}

// Chat sends a chat completion request to Ollama.
func (c *OllamaClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	resp, err := c.do(ctx, ollamaRequest{
		Model:    model,
		Messages: toOllama(messages),
		Tools:    tools,
	})
	if err != nil {
		return nil, err
	}
	out := fromOllama(resp)

	// Some models write tool calls into content instead of tool_calls.
	if len(out.Message.ToolCalls) == 0 && out.Message.Content != "" && len(tools) > 0 {
		if parsed := parseTextToolCalls(out.Message.Content); len(parsed) > 0 {
			out.Message.ToolCalls = parsed
			out.Message.Content = ""
		}
	}
	return out, nil
}

// ChatJSON asks Ollama to constrain the reply to schema.
func (c *OllamaClient) ChatJSON(ctx context.Context, model string, messages []Message, schema map[string]any) (json.RawMessage, error) {
	var format any = "json"
	if schema != nil {
		format = schema
	}
	resp, err := c.do(ctx, ollamaRequest{
		Model:    model,
		Messages: toOllama(messages),
		Format:   format,
		Options:  &ollamaOptions{Temperature: 0},
	})
	if err != nil {
		return nil, err
	}
	return extractJSON(resp.Message.Content)
}

func (c *OllamaClient) do(ctx context.Context, req ollamaRequest) (*ollamaResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.Close(resp.Body)

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ErrorText(resp.Body)
		return nil, fmt.Errorf("ollama API error %d: %s", resp.StatusCode, errBody)
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	c.logger.Debug("response received",
		"model", out.Model,
		"input_tokens", out.PromptEval,
		"output_tokens", out.EvalCount,
		"tool_calls", len(out.Message.ToolCalls),
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", out.Message.Content)
	return &out, nil
}

func toOllama(messages []Message) []ollamaMessage {
	// Ollama correlates tool results by tool name, not id.
	names := make(map[string]string)
	out := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		om := ollamaMessage{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			if tc.ID != "" {
				names[tc.ID] = tc.Function.Name
			}
			om.ToolCalls = append(om.ToolCalls, ollamaToolCall{Function: tc.Function})
		}
		if m.Role == "tool" {
			om.ToolName = names[m.ToolCallID]
		}
		out = append(out, om)
	}
	return out
}

func fromOllama(resp *ollamaResponse) *ChatResponse {
	created, _ := time.Parse(time.RFC3339Nano, resp.CreatedAt)
	out := &ChatResponse{
		Model:         resp.Model,
		CreatedAt:     created,
		Done:          resp.Done,
		InputTokens:   resp.PromptEval,
		OutputTokens:  resp.EvalCount,
		TotalDuration: time.Duration(resp.TotalDuration),
		EvalDuration:  time.Duration(resp.EvalDuration),
		Message: Message{
			Role:    resp.Message.Role,
			Content: resp.Message.Content,
		},
	}
	for i, tc := range resp.Message.ToolCalls {
		out.Message.ToolCalls = append(out.Message.ToolCalls, ToolCall{
			ID:       fmt.Sprintf("call_%d_%s", i, tc.Function.Name),
			Function: tc.Function,
		})
	}
	return out
}

// parseTextToolCalls extracts tool calls from content text. Handles a
// raw JSON object {"name": ..., "arguments": {...}}, a JSON array of
// those, and either wrapped in <tool_call> tags.
func parseTextToolCalls(content string) []ToolCall {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if start := strings.Index(content, "<tool_call>"); start != -1 {
		rest := content[start+len("<tool_call>"):]
		if end := strings.Index(rest, "</tool_call>"); end != -1 {
			rest = rest[:end]
		}
		content = strings.TrimSpace(rest)
	}

	var calls []FunctionCall
	if err := json.Unmarshal([]byte(content), &calls); err == nil && len(calls) > 0 {
		result := make([]ToolCall, 0, len(calls))
		for i, fc := range calls {
			if fc.Name == "" {
				continue
			}
			result = append(result, ToolCall{ID: fmt.Sprintf("call_%d_%s", i, fc.Name), Function: fc})
		}
		return result
	}

	var single FunctionCall
	if err := json.Unmarshal([]byte(content), &single); err == nil && single.Name != "" {
		return []ToolCall{{ID: "call_0_" + single.Name, Function: single}}
	}
	return nil
}

// Ping checks if Ollama is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.Close(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error %d", resp.StatusCode)
	}
	return nil
}
