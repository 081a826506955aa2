// Package tools discovers the backend's registered tools, validates
// invocation parameters against their declared schemas, and executes
// them through the backend's execution endpoint.
package tools

import (
	"fmt"
	"strings"
)

// Param describes one parameter of a tool schema.
type Param struct {
	// Type is the declared parameter type: "string", "number",
	// "integer", or "boolean". An unknown or empty type accepts any
	// value.
	Type string `json:"type,omitempty"`

	// Enum, when non-empty, restricts accepted values to this set.
	Enum []string `json:"enum,omitempty"`

	// Required marks the parameter as mandatory.
	Required bool `json:"required,omitempty"`

	// Format is a display hint (for example "date"). It is not
	// enforced during validation.
	Format string `json:"format,omitempty"`
}

// Descriptor describes one registered tool.
type Descriptor struct {
	Name        string           `json:"name"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Params      map[string]Param `json:"params"`
}

// Result is the backend's execution envelope. Executions that fail
// inside the tool come back with OK false and Error set; that is a
// result, not a transport error.
type Result struct {
	OK     bool           `json:"ok"`
	Tool   string         `json:"tool"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// FieldError is one per-parameter validation failure.
type FieldError struct {
	Param  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Param, e.Reason)
}

// ValidationError aggregates every field failure of one invocation so
// the caller can report them all at once.
type ValidationError struct {
	Tool   string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	reasons := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		reasons[i] = f.Error()
	}
	return fmt.Sprintf("invalid parameters for tool %q: %s", e.Tool, strings.Join(reasons, "; "))
}
