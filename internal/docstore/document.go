package docstore

import (
	"encoding/json"
	"fmt"
)

// Document is a stored body plus its identity and version. Body values are in
// JSON-normal form: map[string]any, []any, string, float64, bool, or nil.
type Document struct {
	ID      string
	Version int64
	Body    map[string]any
}

// Decode copies the body into v using the JSON field names of v's type.
func (d Document) Decode(v any) error {
	raw, err := json.Marshal(d.Body)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", d.ID, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s body: %w", d.ID, err)
	}
	return nil
}

// Encode converts a struct (or map) into a document body.
func Encode(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		out, err := Normalize(m)
		if err != nil {
			return nil, err
		}
		return out.(map[string]any), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	if body == nil {
		return nil, fmt.Errorf("encode body: %T is not an object", v)
	}
	return body, nil
}

// Normalize converts an arbitrary value into JSON-normal form so that
// comparisons and deep copies behave the same for every caller.
func Normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	return out, nil
}

// Clone deep-copies a JSON-normal value.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Clone(val)
		}
		return out
	default:
		return v
	}
}

// CloneBody deep-copies a document body.
func CloneBody(body map[string]any) map[string]any {
	if body == nil {
		return map[string]any{}
	}
	return Clone(body).(map[string]any)
}
