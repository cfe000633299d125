// CORS handling for dispatched routes. Allowed origins come from the route
// row, not server config, so every endpoint carries its own policy.

package engine

import (
	"net/http"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var defaultAllowHeaders = []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin"}

// matchOrigin reports whether origin is allowed by the route's patterns.
// Patterns use doublestar globs, so "https://*.example.com" covers every
// subdomain. An empty pattern list allows any origin.
func matchOrigin(patterns []string, origin string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if p == "*" || strings.EqualFold(p, origin) {
			return true
		}
		if ok, err := doublestar.Match(strings.ToLower(p), strings.ToLower(origin)); err == nil && ok {
			return true
		}
	}
	return false
}

// applyCORS sets the response CORS headers when the origin is allowed and
// reports whether it was. Requests without an Origin header are same-origin
// and need no headers.
func applyCORS(w http.ResponseWriter, patterns []string, origin string) bool {
	if origin == "" {
		return true
	}
	if !matchOrigin(patterns, origin) {
		return false
	}

	h := w.Header()
	if len(patterns) == 0 {
		h.Set("Access-Control-Allow-Origin", "*")
	} else {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	}
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", strings.Join(defaultAllowHeaders, ", "))
	h.Set("Access-Control-Max-Age", "86400")
	return true
}
