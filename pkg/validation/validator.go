// Package validation enforces a version's request spec against the raw
// request parameters. It is the sole parameter-trust boundary: downstream
// components consume its typed output and never re-validate.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rowapi/rowapi/pkg/apierr"
	"github.com/rowapi/rowapi/pkg/definition"
)

// Error codes attached to field violations.
const (
	CodeRequired  = "required"
	CodeType      = "type"
	CodeMinLength = "min_length"
	CodeMaxLength = "max_length"
	CodePattern   = "pattern"
	CodeMin       = "min"
	CodeMaxCode   = "max"
	CodeEnum      = "enum"
	CodeUnknown   = "unknown_field"
)

// Params is the validated, typed parameter mapping. Treat as immutable.
type Params map[string]any

// Clone returns a shallow copy so callers can extend a scope without
// mutating the validated mapping.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ValidateParams checks raw parameters against the spec: required-ness,
// type coercion, defaults, bounds and enums. All violations are collected
// and returned together, never just the first. Unknown parameters are
// ignored unless strict is set.
func ValidateParams(spec definition.RequestSpec, raw map[string]any, strict bool) (Params, error) {
	validated := make(Params, len(spec))
	var violations []apierr.FieldViolation

	for name, ps := range spec {
		value, present := raw[name]
		if !present || value == nil {
			if ps.Required {
				violations = append(violations, apierr.FieldViolation{
					Field: name, Code: CodeRequired, Message: "field is required",
				})
				continue
			}
			if ps.Default != nil {
				value = ps.Default
			} else {
				continue
			}
		}

		coerced, err := coerce(value, ps.Type)
		if err != nil {
			violations = append(violations, apierr.FieldViolation{
				Field: name, Code: CodeType,
				Message: fmt.Sprintf("expected %s", typeName(ps.Type)),
			})
			continue
		}

		violations = append(violations, checkBounds(name, coerced, ps)...)
		validated[name] = coerced
	}

	if strict {
		for name := range raw {
			if _, declared := spec[name]; !declared && !strings.HasPrefix(name, "_") {
				violations = append(violations, apierr.FieldViolation{
					Field: name, Code: CodeUnknown, Message: "parameter not declared",
				})
			}
		}
	}

	if len(violations) > 0 {
		return nil, apierr.Validation(violations...)
	}
	return validated, nil
}

func typeName(t string) string {
	if t == "" {
		return "string"
	}
	return t
}

// coerce converts a raw value (string from query, or JSON-decoded from body)
// into the declared type.
func coerce(value any, typ string) (any, error) {
	switch typ {
	case "", "string":
		switch v := value.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(v), nil
		default:
			return "", fmt.Errorf("not a string")
		}
	case "int":
		switch v := value.(type) {
		case int:
			return v, nil
		case float64:
			if v != math.Trunc(v) {
				return 0, fmt.Errorf("not an integer")
			}
			return int(v), nil
		case string:
			return strconv.Atoi(strings.TrimSpace(v))
		default:
			return 0, fmt.Errorf("not an integer")
		}
	case "float":
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case string:
			return strconv.ParseFloat(strings.TrimSpace(v), 64)
		default:
			return 0.0, fmt.Errorf("not a number")
		}
	case "bool":
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "1", "yes":
				return true, nil
			case "false", "0", "no":
				return false, nil
			}
			return false, fmt.Errorf("not a boolean")
		default:
			return false, fmt.Errorf("not a boolean")
		}
	case "date":
		s, ok := value.(string)
		if !ok {
			return time.Time{}, fmt.Errorf("not a date")
		}
		s = strings.TrimSpace(s)
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, nil
		}
		return time.Parse("2006-01-02", s)
	default:
		return nil, fmt.Errorf("unknown type %q", typ)
	}
}

func checkBounds(name string, value any, ps definition.ParamSpec) []apierr.FieldViolation {
	var out []apierr.FieldViolation

	if s, ok := value.(string); ok {
		if ps.MinLen != nil && len(s) < *ps.MinLen {
			out = append(out, apierr.FieldViolation{
				Field: name, Code: CodeMinLength,
				Message: fmt.Sprintf("must be at least %d characters", *ps.MinLen),
			})
		}
		if ps.MaxLen != nil && len(s) > *ps.MaxLen {
			out = append(out, apierr.FieldViolation{
				Field: name, Code: CodeMaxLength,
				Message: fmt.Sprintf("must be at most %d characters", *ps.MaxLen),
			})
		}
		if ps.Pattern != "" {
			re, err := regexp.Compile(ps.Pattern)
			if err != nil || !re.MatchString(s) {
				out = append(out, apierr.FieldViolation{
					Field: name, Code: CodePattern, Message: "value does not match pattern",
				})
			}
		}
	}

	if n, ok := numeric(value); ok {
		if ps.Min != nil && n < *ps.Min {
			out = append(out, apierr.FieldViolation{
				Field: name, Code: CodeMin,
				Message: fmt.Sprintf("must be >= %v", *ps.Min),
			})
		}
		if ps.Max != nil && n > *ps.Max {
			out = append(out, apierr.FieldViolation{
				Field: name, Code: CodeMaxCode,
				Message: fmt.Sprintf("must be <= %v", *ps.Max),
			})
		}
	}

	if len(ps.Enum) > 0 && !enumContains(ps.Enum, value) {
		out = append(out, apierr.FieldViolation{
			Field: name, Code: CodeEnum, Message: "value not in allowed set",
		})
	}

	return out
}

func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func enumContains(enum []any, value any) bool {
	for _, e := range enum {
		if fmt.Sprintf("%v", e) == fmt.Sprintf("%v", value) {
			return true
		}
	}
	return false
}
