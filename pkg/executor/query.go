package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rowapi/rowapi/pkg/apierr"
	"github.com/rowapi/rowapi/pkg/definition"
	"github.com/rowapi/rowapi/pkg/template"
)

func (e *Executor) runSingleQuery(ctx context.Context, payload []byte, cfg definition.LogicConfig, scope template.Scope) (*Result, error) {
	var p definition.SingleQueryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Execution("invalid SINGLE_QUERY payload", err)
	}

	rows, err := e.query(ctx, p.Query, paramsOf(scope), cfg)
	if err != nil {
		return nil, err
	}
	return &Result{Value: rows, Count: len(rows)}, nil
}

func (e *Executor) runMultiQuery(ctx context.Context, payload []byte, cfg definition.LogicConfig, scope template.Scope) (*Result, error) {
	var p definition.MultiQueryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Execution("invalid MULTI_QUERY payload", err)
	}
	if len(p.Queries) == 0 {
		return nil, apierr.Execution("MULTI_QUERY declares no queries", nil)
	}

	results := make(map[string]any, len(p.Queries))
	total := 0

	for _, q := range p.Queries {
		bind, err := resolveQueryParams(q, scope)
		if err != nil {
			return nil, err
		}

		rows, err := e.query(ctx, q.Query, bind, cfg)
		if err != nil {
			return nil, apierr.From(err)
		}

		// Expose the named result to subsequent queries by name.
		results[q.Name] = rows
		scope[q.Name] = rows
		total += len(rows)
	}

	return &Result{Value: results, Count: total}, nil
}

// resolveQueryParams builds a query's bind set. Declared params may carry
// references into validated parameters or earlier named results; data flow
// between queries is always explicit, never implicit scope sharing. With no
// declared params the validated parameter mapping binds as-is.
func resolveQueryParams(q definition.NamedQuery, scope template.Scope) (map[string]any, error) {
	if q.Params == nil {
		return paramsOf(scope), nil
	}

	bind := make(map[string]any, len(q.Params))
	for name, v := range q.Params {
		s, isStr := v.(string)
		if !isStr || !template.IsRef(s) {
			bind[name] = v
			continue
		}
		resolved, ok := template.ResolveRef(s, scope)
		if !ok {
			return nil, apierr.Execution(
				fmt.Sprintf("query %q: unresolved reference for parameter %q", q.Name, name), nil)
		}
		bind[name] = resolved
	}
	return bind, nil
}

// query screens, executes and clamps one read query under a step deadline.
func (e *Executor) query(ctx context.Context, sql string, params map[string]any, cfg definition.LogicConfig) ([]map[string]any, error) {
	if err := e.guard.CheckSource(e.ds); err != nil {
		return nil, err
	}
	if err := e.guard.ScreenQuery(sql); err != nil {
		return nil, err
	}

	sctx, cancel := e.guard.StepContext(ctx, cfg.TimeoutSeconds)
	defer cancel()

	rows, err := e.ds.Query(sctx, sql, params)
	if err != nil {
		return nil, timeoutOr(sctx, "query", "query execution failed", err)
	}

	// Re-check the actual result size: a declared limit can be bypassed by
	// an outer wrapping query, the ceiling cannot.
	clamped, truncated := e.guard.ClampRows(rows, cfg.MaxRows)
	if truncated {
		e.log.Warn("result truncated to row ceiling", "rows", len(rows), "ceiling", len(clamped))
	}
	return clamped, nil
}
