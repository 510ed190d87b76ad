package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when a reply contains no JSON object.
var ErrNoJSON = errors.New("no JSON object in model output")

// Structured asks a model for a single JSON object.
type Structured struct {
	client Client
	model  string
}

// NewStructured returns a JSON generator bound to model.
func NewStructured(client Client, model string) *Structured {
	return &Structured{client: client, model: model}
}

// Generate sends prompt and returns the JSON object the model produced.
// Providers with native JSON mode are constrained to schema; others get
// the schema appended to the prompt.
func (s *Structured) Generate(ctx context.Context, prompt string, schema map[string]any) (json.RawMessage, error) {
	if jc, ok := s.client.(JSONChatter); ok {
		return jc.ChatJSON(ctx, s.model, []Message{{Role: "user", Content: prompt}}, schema)
	}

	if schema != nil {
		b, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("marshal schema: %w", err)
		}
		prompt += "\n\nReply with a single JSON object matching this schema and nothing else:\n" + string(b)
	}
	resp, err := s.client.Chat(ctx, s.model, []Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return nil, err
	}
	return extractJSON(resp.Message.Content)
}

// extractJSON returns the first balanced JSON object in s. Models wrap
// output in prose or code fences often enough that this is worth doing.
func extractJSON(s string) (json.RawMessage, error) {
	start := strings.IndexByte(s, '{')
	for start != -1 {
		depth := 0
		inString, escaped := false, false
	scan:
		for i := start; i < len(s); i++ {
			ch := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case ch == '\\':
					escaped = true
				case ch == '"':
					inString = false
				}
				continue
			}
			switch ch {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					candidate := s[start : i+1]
					if json.Valid([]byte(candidate)) {
						return json.RawMessage(candidate), nil
					}
					break scan
				}
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next == -1 {
			break
		}
		start += next + 1
	}
	return nil, ErrNoJSON
}
