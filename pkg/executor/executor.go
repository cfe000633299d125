// Package executor dispatches a resolved definition to its logic kind and
// produces the raw execution result. Dispatch is a closed switch over
// definition.LogicKind: every kind consumes only the typed parameter
// mapping and named outputs produced earlier in the same request, never
// strings that mix code and untrusted data outside of parameter binding.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rowapi/rowapi/pkg/apierr"
	"github.com/rowapi/rowapi/pkg/definition"
	"github.com/rowapi/rowapi/pkg/guard"
	"github.com/rowapi/rowapi/pkg/template"
)

// DataSource executes parameterized read queries against the primary store.
// Implementations must hold read-only credentials; the guard fails closed
// on any source that does not report ReadOnly.
type DataSource interface {
	// Query runs one read query with named parameter binding and returns
	// the rows as column-name keyed maps.
	Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)

	// ReadOnly reports whether the underlying connection can write.
	ReadOnly() bool
}

// Result is the raw dispatcher output consumed by the response mapper.
type Result struct {
	// Value is a row slice, a named mapping, or a single value.
	Value any

	// Count is the result size: rows for queries, totals for multi-query.
	Count int

	// Status is a status-code hint from the execution (external calls);
	// zero means no hint.
	Status int
}

// Executor runs version logic. Safe for concurrent use.
type Executor struct {
	ds     DataSource
	client *http.Client
	guard  *guard.Guard
	log    *slog.Logger
}

// New creates an executor. The HTTP client is used for EXTERNAL_CALL steps;
// nil falls back to http.DefaultClient (per-step contexts still bound every
// call).
func New(ds DataSource, client *http.Client, g *guard.Guard, log *slog.Logger) *Executor {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Executor{ds: ds, client: client, guard: g, log: log}
}

// Execute dispatches the snapshot's logic kind with the validated
// parameters and returns the raw result.
func (e *Executor) Execute(ctx context.Context, snap *definition.Snapshot, params map[string]any) (*Result, error) {
	scope := template.Scope{"params": cloneMap(params)}
	return e.executeKind(ctx, snap.Version.LogicKind, snap.Version.LogicPayload, snap.Config, scope)
}

// executeKind is the closed dispatch. Pipeline steps re-enter here with the
// shared scope so later steps see earlier outputs.
func (e *Executor) executeKind(ctx context.Context, kind definition.LogicKind, payload []byte, cfg definition.LogicConfig, scope template.Scope) (*Result, error) {
	if err := e.guard.CheckKind(kind); err != nil {
		return nil, err
	}

	switch kind {
	case definition.KindSingleQuery:
		return e.runSingleQuery(ctx, payload, cfg, scope)
	case definition.KindMultiQuery:
		return e.runMultiQuery(ctx, payload, cfg, scope)
	case definition.KindPipeline:
		return e.runPipeline(ctx, payload, cfg, scope)
	case definition.KindExternalCall:
		return e.runExternalCall(ctx, payload, cfg, scope)
	case definition.KindStaticResponse:
		return e.runStatic(payload, scope)
	default:
		// CheckKind already rejected EXPRESSION and unknown tags.
		return nil, apierr.Security("unsupported logic kind " + kind.String())
	}
}

// timeoutOr maps a step failure to the taxonomy: a deadline on the step's
// context becomes a distinguishable TimeoutError, everything else an
// ExecutionError with the raw cause kept server-side.
func timeoutOr(ctx context.Context, scope string, msg string, err error) error {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apierr.Timeout(scope)
	}
	return apierr.Execution(msg, err)
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func paramsOf(scope template.Scope) map[string]any {
	if p, ok := scope["params"].(map[string]any); ok {
		return p
	}
	return map[string]any{}
}
