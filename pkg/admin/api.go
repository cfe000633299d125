// Package admin exposes the definition-management API: routes, versions,
// activation, rollback, status changes and the audit trail. It is the only
// write surface; the dispatch engine never mutates definitions.
package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rowapi/rowapi/pkg/definition"
	"github.com/rowapi/rowapi/pkg/logging"
	"github.com/rowapi/rowapi/pkg/resolver"
	"github.com/rowapi/rowapi/pkg/store"
)

// Runner executes a definition snapshot against raw parameters. The engine
// handler satisfies it; the try-it endpoint uses it to run stored sample
// parameters through the real dispatch pipeline.
type Runner interface {
	Try(ctx context.Context, snap *definition.Snapshot, raw map[string]any) (body map[string]any, status int, err error)
}

// API serves the definition-management endpoints.
type API struct {
	store    store.Store
	resolver *resolver.Resolver
	runner   Runner
	log      *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithRunner enables the try-it endpoint.
func WithRunner(r Runner) Option {
	return func(a *API) { a.runner = r }
}

// WithResolver lets write operations invalidate the dispatch cache, so
// activations take effect on this instance immediately instead of after
// the cache TTL.
func WithResolver(r *resolver.Resolver) Option {
	return func(a *API) { a.resolver = r }
}

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *API) {
		if log != nil {
			a.log = log
		}
	}
}

// New creates the admin API over the given store.
func New(s store.Store, opts ...Option) *API {
	a := &API{store: s, log: logging.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the routed http.Handler.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", a.handleHealth)

	mux.HandleFunc("GET /routes", a.handleListRoutes)
	mux.HandleFunc("POST /routes", a.handleCreateRoute)
	mux.HandleFunc("GET /routes/{id}", a.handleGetRoute)
	mux.HandleFunc("POST /routes/{id}/status", a.handleSetStatus)

	mux.HandleFunc("GET /routes/{id}/versions", a.handleListVersions)
	mux.HandleFunc("POST /routes/{id}/versions", a.handleCreateVersion)
	mux.HandleFunc("POST /routes/{id}/versions/{number}/activate", a.handleActivate)
	mux.HandleFunc("POST /routes/{id}/rollback", a.handleRollback)

	mux.HandleFunc("GET /routes/{id}/audit", a.handleAudit)
	mux.HandleFunc("POST /routes/{id}/try", a.handleTry)

	return mux
}

// invalidate drops the route's cached snapshots after a definition change.
func (a *API) invalidate(route *definition.Route) {
	if a.resolver != nil && route != nil {
		a.resolver.Invalidate(route.Path, route.Method)
	}
}
