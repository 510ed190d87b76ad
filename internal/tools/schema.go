package tools

import (
	"fmt"
	"math"
	"strconv"
)

// Validate checks args against a tool parameter schema. It supports the
// subset of JSON Schema the catalog uses: type (object, array, string,
// integer, number, boolean), properties, required, enum, items, maxItems,
// and additionalProperties. Objects reject properties their schema does
// not declare unless additionalProperties is true or a schema.
func Validate(schema map[string]any, args map[string]any) error {
	if schema == nil {
		return nil
	}
	return validateValue("", schema, args)
}

func validateValue(path string, schema map[string]any, v any) error {
	typ, _ := schema["type"].(string)
	switch typ {
	case "object":
		obj, ok := v.(map[string]any)
		if !ok {
			return &ValidationError{Path: path, Message: "expected object"}
		}
		return validateObject(path, schema, obj)
	case "array":
		items, ok := asSlice(v)
		if !ok {
			return &ValidationError{Path: path, Message: "expected array"}
		}
		if maxItems, ok := asInt(schema["maxItems"]); ok && len(items) > maxItems {
			return &ValidationError{Path: path, Message: fmt.Sprintf("at most %d items allowed", maxItems)}
		}
		if itemSchema, ok := schema["items"].(map[string]any); ok {
			for i, item := range items {
				if err := validateValue(join(path, strconv.Itoa(i)), itemSchema, item); err != nil {
					return err
				}
			}
		}
	case "string":
		s, ok := v.(string)
		if !ok {
			return &ValidationError{Path: path, Message: "expected string"}
		}
		if enum := asStrings(schema["enum"]); enum != nil && !contains(enum, s) {
			return &ValidationError{Path: path, Message: fmt.Sprintf("must be one of %v", enum)}
		}
	case "integer":
		if _, ok := asInt(v); !ok {
			return &ValidationError{Path: path, Message: "expected integer"}
		}
	case "number":
		if _, ok := asFloat(v); !ok {
			return &ValidationError{Path: path, Message: "expected number"}
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return &ValidationError{Path: path, Message: "expected boolean"}
		}
	case "":
		// Untyped schema accepts anything.
	default:
		return &ValidationError{Path: path, Message: fmt.Sprintf("unsupported schema type %q", typ)}
	}
	return nil
}

func validateObject(path string, schema map[string]any, obj map[string]any) error {
	props, _ := schema["properties"].(map[string]any)

	for _, name := range asStrings(schema["required"]) {
		if v, ok := obj[name]; !ok || v == nil {
			return &ValidationError{Path: join(path, name), Message: "is required"}
		}
	}

	extra := schema["additionalProperties"]
	for name, v := range obj {
		propSchema, declared := props[name].(map[string]any)
		if !declared {
			switch x := extra.(type) {
			case bool:
				if x {
					continue
				}
			case map[string]any:
				if err := validateValue(join(path, name), x, v); err != nil {
					return err
				}
				continue
			}
			return &ValidationError{Path: join(path, name), Message: "unknown property"}
		}
		if v == nil {
			// Explicit nulls for optional fields mean "not given".
			continue
		}
		if err := validateValue(join(path, name), propSchema, v); err != nil {
			return err
		}
	}
	return nil
}

func join(path, elem string) string {
	if path == "" {
		return elem
	}
	return path + "." + elem
}

func asSlice(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []map[string]any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, true
	case []string:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, true
	}
	return nil, false
}

func asStrings(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func asInt(v any) (int, bool) {
	f, ok := asFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
