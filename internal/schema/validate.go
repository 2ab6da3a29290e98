package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FieldError describes a single uncoercible field.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError aggregates every offending field path from a validation
// pass. It is returned only when validation leaves the container empty.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Path + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validate checks a candidate container against the schema.
//
// Unknown fields are dropped, never errored. Required fields must be present
// and type-coercible. An item that fails validation is dropped from the
// container rather than aborting the whole result; only when every item is
// dropped (or the container is empty to begin with) does Validate return a
// ValidationError carrying each offending field path.
//
// Validation is idempotent: validating its own output yields the same
// container.
func Validate(candidate map[string]any, s *Schema) (map[string]any, error) {
	raw, _ := candidate[s.ContainerKey].([]any)

	var (
		items  []any
		errAcc ValidationError
	)
	for i, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok {
			errAcc.Fields = append(errAcc.Fields, FieldError{
				Path:    fmt.Sprintf("%s[%d]", s.ContainerKey, i),
				Message: "item is not an object",
			})
			continue
		}
		coerced, fieldErrs := coerceObject(obj, s.Fields, fmt.Sprintf("%s[%d]", s.ContainerKey, i))
		if len(fieldErrs) > 0 {
			errAcc.Fields = append(errAcc.Fields, fieldErrs...)
			continue
		}
		items = append(items, coerced)
	}

	if len(items) == 0 {
		if len(errAcc.Fields) == 0 {
			errAcc.Fields = append(errAcc.Fields, FieldError{
				Path:    s.ContainerKey,
				Message: "container is empty",
			})
		}
		return nil, &errAcc
	}

	return map[string]any{s.ContainerKey: items}, nil
}

// coerceObject validates one object against a field list, dropping unknown
// keys and coercing values. Returns the coerced object and any field errors.
func coerceObject(obj map[string]any, fields []Field, path string) (map[string]any, []FieldError) {
	out := make(map[string]any, len(fields))
	var errs []FieldError

	for _, f := range fields {
		fieldPath := path + "." + f.Name
		val, present := obj[f.Name]
		if !present || val == nil {
			if f.Required {
				errs = append(errs, FieldError{Path: fieldPath, Message: "required field missing"})
			}
			continue
		}

		coerced, err := coerceValue(val, f, fieldPath)
		if err != nil {
			errs = append(errs, *err)
			continue
		}
		out[f.Name] = coerced
	}

	return out, errs
}

func coerceValue(val any, f Field, path string) (any, *FieldError) {
	switch f.Type {
	case TypeString:
		switch v := val.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(v), nil
		}

	case TypeNumber:
		switch v := val.(type) {
		case float64:
			return v, nil
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return n, nil
			}
			return nil, &FieldError{Path: path, Message: fmt.Sprintf("cannot coerce %q to number", v)}
		}

	case TypeInteger:
		switch v := val.(type) {
		case float64:
			if v == math.Trunc(v) {
				return v, nil
			}
			return nil, &FieldError{Path: path, Message: fmt.Sprintf("number %v is not an integer", v)}
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return float64(n), nil
			}
			return nil, &FieldError{Path: path, Message: fmt.Sprintf("cannot coerce %q to integer", v)}
		}

	case TypeBoolean:
		switch v := val.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "yes", "1":
				return true, nil
			case "false", "no", "0":
				return false, nil
			}
			return nil, &FieldError{Path: path, Message: fmt.Sprintf("cannot coerce %q to boolean", v)}
		}

	case TypeObject:
		if obj, ok := val.(map[string]any); ok {
			coerced, errs := coerceObject(obj, f.Fields, path)
			if len(errs) > 0 {
				return nil, &errs[0]
			}
			return coerced, nil
		}

	case TypeArray:
		if arr, ok := val.([]any); ok {
			if len(f.Fields) == 0 {
				return arr, nil
			}
			out := make([]any, 0, len(arr))
			for i, el := range arr {
				obj, ok := el.(map[string]any)
				if !ok {
					return nil, &FieldError{Path: fmt.Sprintf("%s[%d]", path, i), Message: "element is not an object"}
				}
				coerced, errs := coerceObject(obj, f.Fields, fmt.Sprintf("%s[%d]", path, i))
				if len(errs) > 0 {
					return nil, &errs[0]
				}
				out = append(out, coerced)
			}
			return out, nil
		}
	}

	return nil, &FieldError{
		Path:    path,
		Message: fmt.Sprintf("value of type %T does not match %s", val, f.Type),
	}
}
