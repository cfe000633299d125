// Core HTTP request handler: resolves the stored definition for the request
// path and method, then runs it through validation, guarding, execution and
// response mapping.

package engine

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rowapi/rowapi/pkg/apierr"
	"github.com/rowapi/rowapi/pkg/definition"
	"github.com/rowapi/rowapi/pkg/executor"
	"github.com/rowapi/rowapi/pkg/httputil"
	"github.com/rowapi/rowapi/pkg/logging"
	"github.com/rowapi/rowapi/pkg/mapper"
	"github.com/rowapi/rowapi/pkg/ratelimit"
	"github.com/rowapi/rowapi/pkg/resolver"
	"github.com/rowapi/rowapi/pkg/validation"
)

// Handler dispatches requests against stored route definitions.
type Handler struct {
	resolver *resolver.Resolver
	executor *executor.Executor
	mapper   *mapper.Mapper
	limiter  *ratelimit.RouteLimiter
	auth     *Authenticator
	log      *slog.Logger

	// strictParams rejects undeclared request parameters engine-wide.
	strictParams bool
}

// NewHandler creates a dispatch handler. limiter and auth may be nil, which
// disables rate limiting and makes auth-required routes unserveable.
func NewHandler(res *resolver.Resolver, exec *executor.Executor, m *mapper.Mapper, limiter *ratelimit.RouteLimiter, auth *Authenticator) *Handler {
	return &Handler{
		resolver: res,
		executor: exec,
		mapper:   m,
		limiter:  limiter,
		auth:     auth,
		log:      logging.Nop(),
	}
}

// SetLogger sets the operational logger.
func (h *Handler) SetLogger(log *slog.Logger) {
	if log != nil {
		h.log = log
	}
}

// SetStrictParams toggles rejection of undeclared parameters.
func (h *Handler) SetStrictParams(strict bool) {
	h.strictParams = strict
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h.preflight(w, r)
		return
	}

	snap, raw, err := h.resolveRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	applyCORS(w, snap.Origins, r.Header.Get("Origin"))

	if err := h.admit(w, r, snap); err != nil {
		h.writeError(w, r, err)
		return
	}

	params, err := validation.ValidateParams(snap.RequestSpec, raw, h.strictParams || snap.Config.StrictParams)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.executor.Execute(r.Context(), snap, params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	body, status := h.mapper.Map(result.Value, result.Count, params, snap.ResponseSpec, snap.StatusCodes)
	if len(snap.StatusCodes) == 0 && result.Status != 0 {
		status = result.Status
	}
	httputil.WriteJSON(w, status, body)
}

// Try executes a snapshot against raw parameters outside the HTTP dispatch
// path. The admin try-it endpoint uses it to run a version against its
// stored sample parameters.
func (h *Handler) Try(ctx context.Context, snap *definition.Snapshot, raw map[string]any) (map[string]any, int, error) {
	params, err := validation.ValidateParams(snap.RequestSpec, raw, h.strictParams || snap.Config.StrictParams)
	if err != nil {
		return nil, 0, err
	}
	result, err := h.executor.Execute(ctx, snap, params)
	if err != nil {
		return nil, 0, err
	}
	body, status := h.mapper.Map(result.Value, result.Count, params, snap.ResponseSpec, snap.StatusCodes)
	if len(snap.StatusCodes) == 0 && result.Status != 0 {
		status = result.Status
	}
	return body, status, nil
}

// resolveRequest resolves the snapshot for the request, honoring a _version
// query pin, and returns the raw merged parameters.
func (h *Handler) resolveRequest(r *http.Request) (*definition.Snapshot, map[string]any, error) {
	raw, pin, err := collectParams(r)
	if err != nil {
		return nil, nil, err
	}

	var snap *definition.Snapshot
	if pin > 0 {
		snap, err = h.resolver.ResolveVersion(r.Context(), r.URL.Path, r.Method, pin)
	} else {
		snap, err = h.resolver.Resolve(r.Context(), r.URL.Path, r.Method)
	}
	if err != nil {
		return nil, nil, err
	}
	return snap, raw, nil
}

// admit runs the per-route gate checks: bearer auth, then rate limit.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, snap *definition.Snapshot) error {
	if snap.Route.AuthRequired {
		if h.auth == nil {
			return apierr.Unauthorized("authentication is not configured")
		}
		if err := h.auth.Verify(r); err != nil {
			return err
		}
	}

	if h.limiter != nil {
		ip := h.limiter.ClientIP(r)
		allowed, remaining, retryAfter := h.limiter.Allow(snap.Route.ID, ip, snap.Route.RateLimit)
		if remaining >= 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(snap.Route.RateLimit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			return apierr.RateLimited()
		}
	}
	return nil
}

// preflight answers OPTIONS against the route registered for the requested
// method, so preflights succeed exactly where real requests can.
func (h *Handler) preflight(w http.ResponseWriter, r *http.Request) {
	method := r.Header.Get("Access-Control-Request-Method")
	if method == "" {
		method = http.MethodGet
	}

	snap, err := h.resolver.Resolve(r.Context(), r.URL.Path, method)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	origin := r.Header.Get("Origin")
	if !applyCORS(w, snap.Origins, origin) && origin != "" {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError logs the full error server-side and writes the sanitized
// public envelope.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apierr.From(err)
	level := slog.LevelWarn
	if e.Kind == apierr.KindInternal || e.Kind == apierr.KindExecution {
		level = slog.LevelError
	}
	h.log.Log(r.Context(), level, "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"kind", string(e.Kind),
		"error", e.Message,
		"detail", e.Detail,
	)
	httputil.WriteAPIError(w, err)
}
