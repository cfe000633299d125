// Package mapper shapes a raw dispatcher result into the response body a
// version's response spec declares, applies the status-code mapping, and
// redacts sensitive fields at this outermost boundary. Intermediate
// pipeline steps see real values, external responses never do.
package mapper

import (
	"strings"
	"time"

	"github.com/rowapi/rowapi/pkg/definition"
	"github.com/rowapi/rowapi/pkg/guard"
	"github.com/rowapi/rowapi/pkg/template"
)

// Redacted replaces sensitive values in response bodies.
const Redacted = "[REDACTED]"

// Mapper maps execution results into responses.
type Mapper struct {
	guard *guard.Guard
}

// New creates a mapper sharing the engine's guard for sensitive-field
// detection.
func New(g *guard.Guard) *Mapper {
	return &Mapper{guard: g}
}

// Map produces the response body and status code. With no response spec
// the default envelope is {"success": true, "data": ..., "count": ...}.
// Spec values may reference the result ($result, $result_count,
// $result.<path>) or the validated parameters ($params.<name>); everything
// else passes through literally.
func (m *Mapper) Map(value any, count int, params map[string]any, spec definition.ResponseSpec, codes definition.StatusCodes) (map[string]any, int) {
	scope := template.Scope{
		"result":       value,
		"result_count": count,
		"params":       params,
	}

	var body map[string]any
	if len(spec) == 0 {
		body = map[string]any{
			"success": true,
			"data":    value,
			"count":   count,
		}
	} else {
		body = make(map[string]any, len(spec))
		for key, tv := range spec {
			body[key] = m.mapValue(tv, scope)
		}
	}

	body = m.redact(normalize(body)).(map[string]any)

	status := 200
	if len(codes) > 0 {
		if count > 0 {
			if c, ok := codes["success"]; ok {
				status = c
			}
		} else if c, ok := codes["not_found"]; ok {
			status = c
		}
	}
	return body, status
}

func (m *Mapper) mapValue(tv any, scope template.Scope) any {
	s, isStr := tv.(string)
	if !isStr {
		return tv
	}
	if template.IsRef(s) {
		if v, ok := template.ResolveRef(s, scope); ok {
			return v
		}
		return nil
	}
	if strings.ContainsRune(s, '$') {
		return template.Render(s, scope)
	}
	return s
}

// normalize walks the body and rewrites values into the fixed textual
// forms: ISO-8601 for timestamps, plain decimal for numbers, UTF-8 for
// byte blobs. Round-tripping a response is therefore deterministic.
func normalize(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case []byte:
		return string(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, row := range t {
			out[i] = normalize(row)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

// redact blanks any map key matching the sensitive pattern set, at every
// nesting depth.
func (m *Mapper) redact(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if m.guard.IsSensitive(k) {
				out[k] = Redacted
				continue
			}
			out[k] = m.redact(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = m.redact(val)
		}
		return out
	default:
		return v
	}
}
