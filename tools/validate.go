package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Validate checks params against the descriptor's schema and returns a
// ValidationError listing every failing field, or nil when the
// invocation is well formed. It performs no network I/O.
func Validate(desc Descriptor, params map[string]any) *ValidationError {
	var fields []FieldError

	names := make([]string, 0, len(desc.Params))
	for name := range desc.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		schema := desc.Params[name]
		value, present := params[name]
		if !present {
			if schema.Required {
				fields = append(fields, FieldError{Param: name, Reason: "required parameter missing"})
			}
			continue
		}
		if reason := checkType(schema.Type, value); reason != "" {
			fields = append(fields, FieldError{Param: name, Reason: reason})
			continue
		}
		if len(schema.Enum) > 0 && !enumContains(schema.Enum, value) {
			fields = append(fields, FieldError{
				Param:  name,
				Reason: fmt.Sprintf("value %v is not one of the allowed values", value),
			})
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Tool: desc.Name, Fields: fields}
}

func checkType(declared string, value any) string {
	switch declared {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("expected a string, got %T", value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("expected a boolean, got %T", value)
		}
	case "number":
		if _, ok := asFloat(value); !ok {
			return fmt.Sprintf("expected a number, got %T", value)
		}
	case "integer":
		f, ok := asFloat(value)
		if !ok {
			return fmt.Sprintf("expected an integer, got %T", value)
		}
		if f != math.Trunc(f) {
			return fmt.Sprintf("expected an integer, got %v", value)
		}
	}
	// Unknown or empty declared types accept any value.
	return ""
}

// asFloat normalizes the numeric shapes a value can arrive in after
// JSON decoding or direct construction.
func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

func enumContains(enum []string, value any) bool {
	s, ok := value.(string)
	if !ok {
		s = fmt.Sprintf("%v", value)
	}
	for _, allowed := range enum {
		if allowed == s {
			return true
		}
	}
	return false
}
