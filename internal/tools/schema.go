// ABOUTME: Strict object-schema validation for tool arguments.
// ABOUTME: Supports the subset the tool definitions use: types, required, closed objects.

package tools

import (
	"fmt"
	"math"
	"strings"
)

// Schema describes the shape of a JSON value. It covers the subset of JSON
// Schema the tool definitions need: primitive types, closed objects with
// required properties, arrays, enums, and numeric bounds.
type Schema struct {
	Type                 string             `json:"type"`
	Description          string             `json:"description,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	AdditionalProperties *bool              `json:"additionalProperties,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	Enum                 []string           `json:"enum,omitempty"`
	Minimum              *float64           `json:"minimum,omitempty"`
	Maximum              *float64           `json:"maximum,omitempty"`
}

// ValidationError collects every violation found in one pass so callers can
// report all problems at once.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid arguments: " + strings.Join(e.Issues, "; ")
}

// Validate checks value against the schema. A nil error means the value
// conforms.
func (s *Schema) Validate(value any) error {
	var issues []string
	s.validate("", value, &issues)
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func (s *Schema) validate(path string, value any, issues *[]string) {
	at := func(field string) string {
		if path == "" {
			return field
		}
		return path + "." + field
	}
	label := path
	if label == "" {
		label = "(root)"
	}

	switch s.Type {
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			*issues = append(*issues, fmt.Sprintf("%s: expected object", label))
			return
		}
		for _, req := range s.Required {
			if _, present := obj[req]; !present {
				*issues = append(*issues, fmt.Sprintf("%s: missing required property %q", label, req))
			}
		}
		closed := s.AdditionalProperties != nil && !*s.AdditionalProperties
		for key, val := range obj {
			prop, known := s.Properties[key]
			if !known {
				if closed {
					*issues = append(*issues, fmt.Sprintf("%s: unknown property %q", label, key))
				}
				continue
			}
			prop.validate(at(key), val, issues)
		}

	case "array":
		arr, ok := value.([]any)
		if !ok {
			*issues = append(*issues, fmt.Sprintf("%s: expected array", label))
			return
		}
		if s.Items != nil {
			for i, item := range arr {
				s.Items.validate(fmt.Sprintf("%s[%d]", label, i), item, issues)
			}
		}

	case "string":
		str, ok := value.(string)
		if !ok {
			*issues = append(*issues, fmt.Sprintf("%s: expected string", label))
			return
		}
		if len(s.Enum) > 0 {
			found := false
			for _, allowed := range s.Enum {
				if str == allowed {
					found = true
					break
				}
			}
			if !found {
				*issues = append(*issues, fmt.Sprintf("%s: value %q not in %v", label, str, s.Enum))
			}
		}

	case "integer":
		num, ok := value.(float64)
		if !ok || num != math.Trunc(num) {
			*issues = append(*issues, fmt.Sprintf("%s: expected integer", label))
			return
		}
		s.checkBounds(label, num, issues)

	case "number":
		num, ok := value.(float64)
		if !ok {
			*issues = append(*issues, fmt.Sprintf("%s: expected number", label))
			return
		}
		s.checkBounds(label, num, issues)

	case "boolean":
		if _, ok := value.(bool); !ok {
			*issues = append(*issues, fmt.Sprintf("%s: expected boolean", label))
		}
	}
}

func (s *Schema) checkBounds(label string, num float64, issues *[]string) {
	if s.Minimum != nil && num < *s.Minimum {
		*issues = append(*issues, fmt.Sprintf("%s: %v is below minimum %v", label, num, *s.Minimum))
	}
	if s.Maximum != nil && num > *s.Maximum {
		*issues = append(*issues, fmt.Sprintf("%s: %v is above maximum %v", label, num, *s.Maximum))
	}
}

// helpers for building schema literals

func boolPtr(b bool) *bool {
	return &b
}

func floatPtr(f float64) *float64 {
	return &f
}
