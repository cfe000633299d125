package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rowapi/rowapi/pkg/apierr"
	"github.com/rowapi/rowapi/pkg/definition"
	"github.com/rowapi/rowapi/pkg/template"
)

func (e *Executor) runPipeline(ctx context.Context, payload []byte, cfg definition.LogicConfig, scope template.Scope) (*Result, error) {
	var p definition.PipelinePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Execution("invalid PIPELINE payload", err)
	}
	if len(p.Steps) == 0 {
		return nil, apierr.Execution("PIPELINE declares no steps", nil)
	}

	// Aggregate wall-clock budget. Steps derive their own deadlines from
	// this context, so the budget can only shorten a step's allowance.
	pctx, cancel := e.guard.PipelineContext(ctx, cfg.PipelineTimeoutSeconds)
	defer cancel()

	var last *Result

	for i, step := range p.Steps {
		if step.Kind == definition.KindPipeline {
			return nil, apierr.Security("nested pipelines are not allowed")
		}

		stepCfg := cfg
		stepCfg.TimeoutSeconds = step.TimeoutSeconds

		res, err := e.executeKind(pctx, step.Kind, step.Payload, stepCfg, scope)
		if err != nil {
			if errors.Is(pctx.Err(), context.DeadlineExceeded) {
				return nil, apierr.Timeout("pipeline")
			}
			if step.Optional {
				e.log.Warn("optional pipeline step failed",
					"step", i, "output", step.Output, "error", err)
				continue
			}
			return nil, stepError(i, step, err)
		}

		last = res
		if step.Output != "" {
			// Named outputs are visible both as $<name> references and as
			// $params.<name> inside later static templates.
			scope[step.Output] = res.Value
			paramsOf(scope)[step.Output] = res.Value
		}
	}

	if last == nil {
		return &Result{Value: nil, Count: 0}, nil
	}
	return last, nil
}

func stepError(i int, step definition.PipelineStep, err error) error {
	apiErr := apierr.From(err)
	// Keep the step position server-side; the public message stays as the
	// underlying kind's sanitized message.
	apiErr.Detail = fmt.Sprintf("pipeline step %d (%s): %s", i, step.Kind, apiErr.Detail)
	return apiErr
}
