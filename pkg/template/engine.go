// Package template substitutes $-prefixed references into definition
// templates. References address a scope map by field path: $params.name,
// $users[0].cmpny_id, $result.total. Field paths are evaluated with ojg's
// jp package, so bracket indexing and nested fields work uniformly.
package template

import (
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Scope is the data a template draws from. Keys are reference roots:
// "params" for validated request parameters, result/output names for
// anything produced earlier in the same request.
type Scope map[string]any

// ResolveRef evaluates a single reference like "$users[0].cmpny_id"
// against the scope. Returns false when the path does not resolve.
func ResolveRef(ref string, scope Scope) (any, bool) {
	path := strings.TrimPrefix(ref, "$")
	if path == "" {
		return nil, false
	}
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, false
	}
	got := x.Get(map[string]any(scope))
	if len(got) == 0 {
		return nil, false
	}
	return got[0], true
}

// IsRef reports whether a template value is exactly one reference.
func IsRef(s string) bool {
	return len(s) > 1 && s[0] == '$' && !strings.ContainsAny(s, " \t\n")
}

// refToken scans s from a '$' and returns the reference token length:
// identifier segments joined by dots, with optional [n] indexes.
func refToken(s string) int {
	i := 1 // past '$'
	for i < len(s) {
		c := s[i]
		switch {
		case c == '_' || c == '.' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9'):
			i++
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return i
			}
			i += end + 1
		default:
			return i
		}
	}
	return i
}

// Render substitutes every $reference in a plain-text template. String
// values are inserted as-is; other values are JSON-encoded. Unresolved
// references are left untouched.
func Render(tmpl string, scope Scope) string {
	var b strings.Builder
	for {
		idx := strings.IndexByte(tmpl, '$')
		if idx < 0 {
			b.WriteString(tmpl)
			return b.String()
		}
		b.WriteString(tmpl[:idx])
		token := refToken(tmpl[idx:])
		// A trailing dot is sentence punctuation, not part of the path.
		for token > 1 && tmpl[idx+token-1] == '.' {
			token--
		}
		ref := tmpl[idx : idx+token]
		rest := tmpl[idx+token:]

		value, ok := ResolveRef(ref, scope)
		if !ok {
			b.WriteString(ref)
		} else if s, isStr := value.(string); isStr {
			b.WriteString(s)
		} else {
			b.WriteString(oj.JSON(value))
		}
		tmpl = rest
	}
}

// RenderJSON substitutes references inside a JSON template. A reference
// that occupies an entire JSON string ("$params.ids") is replaced by the
// JSON encoding of its value, preserving type; references embedded in a
// longer string ("Hello, $params.name") are rendered textually.
func RenderJSON(tmpl string, scope Scope) string {
	// Whole-token pass: "...": "$ref" -> typed JSON value.
	out := replaceQuotedRefs(tmpl, scope)
	// Inline pass over what remains.
	return Render(out, scope)
}

func replaceQuotedRefs(tmpl string, scope Scope) string {
	var b strings.Builder
	for {
		idx := strings.Index(tmpl, `"$`)
		if idx < 0 {
			b.WriteString(tmpl)
			return b.String()
		}
		token := refToken(tmpl[idx+1:])
		end := idx + 1 + token
		if end >= len(tmpl) || tmpl[end] != '"' {
			// Not a whole-string reference; leave for the inline pass.
			b.WriteString(tmpl[:end])
			tmpl = tmpl[end:]
			continue
		}
		ref := tmpl[idx+1 : end]
		value, ok := ResolveRef(ref, scope)
		b.WriteString(tmpl[:idx])
		if ok {
			b.WriteString(oj.JSON(value))
		} else {
			b.WriteString(tmpl[idx : end+1])
		}
		tmpl = tmpl[end+1:]
	}
}
