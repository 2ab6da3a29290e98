package extract

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/jmylchreest/pagelift/internal/llm"
	"github.com/jmylchreest/pagelift/internal/schema"
)

// ParseCandidate parses model output into a container-shaped candidate,
// repairing the two malformed shapes models routinely produce:
//
//   - a JSON array where the container object was expected: the first
//     non-empty object in the array is taken
//   - a bare item object matching the item schema: wrapped as a single-item
//     container
//
// The result is not validated; it is the validator's input.
func ParseCandidate(content string, s *schema.Schema) (map[string]any, error) {
	raw := llm.StripFences(content)
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("output is not valid JSON")
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %w", err)
	}
	return NormalizeShape(parsed, s), nil
}

// NormalizeShape coerces a parsed value into container shape.
func NormalizeShape(parsed any, s *schema.Schema) map[string]any {
	switch v := parsed.(type) {
	case map[string]any:
		if _, ok := v[s.ContainerKey]; ok {
			return v
		}
		// A bare item gets wrapped as a single-item container when its
		// keys look like the item schema's.
		if looksLikeItem(v, s) {
			return map[string]any{s.ContainerKey: []any{v}}
		}
		return v

	case []any:
		if obj := firstNonEmptyObject(v); obj != nil {
			return NormalizeShape(obj, s)
		}
		return map[string]any{s.ContainerKey: []any{}}
	}

	return map[string]any{s.ContainerKey: []any{}}
}

// firstNonEmptyObject returns the first object in the list with at least
// one non-empty value, or nil.
func firstNonEmptyObject(list []any) map[string]any {
	for _, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		for _, v := range obj {
			if !emptyValue(v) {
				return obj
			}
		}
	}
	return nil
}

// looksLikeItem reports whether the object shares at least one key with the
// item schema and none with the container.
func looksLikeItem(obj map[string]any, s *schema.Schema) bool {
	for key := range obj {
		if _, ok := s.Field(key); ok {
			return true
		}
	}
	return false
}

// IsEmptyContainer reports whether a candidate holds no items with data.
func IsEmptyContainer(candidate map[string]any, s *schema.Schema) bool {
	if len(candidate) == 0 {
		return true
	}
	raw, ok := candidate[s.ContainerKey]
	if !ok {
		// No container key at all; empty unless some other value carries
		// data (the validator will reject it either way).
		for _, v := range candidate {
			if !emptyValue(v) {
				return false
			}
		}
		return true
	}
	items, ok := raw.([]any)
	if !ok {
		return emptyValue(raw)
	}
	for _, item := range items {
		if !emptyValue(item) {
			return false
		}
	}
	return true
}

func emptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		for _, inner := range t {
			if !emptyValue(inner) {
				return false
			}
		}
		return true
	}
	return false
}
