// Package guard enforces the engine's safety constraints: injection
// screening for query-bearing payloads, the read-only execution rule,
// the hard row ceiling, sensitive-column detection, and step/pipeline
// timeout budgets. Pattern screening is known-bypassable, so every check
// here is backed by a second line of defense (read-only credentials,
// post-execution truncation, response-boundary redaction).
package guard

import (
	"context"
	"time"

	"github.com/rowapi/rowapi/pkg/apierr"
	"github.com/rowapi/rowapi/pkg/definition"
)

// Defaults applied when config leaves a limit unset.
const (
	DefaultMaxRows         = 1000
	DefaultStepTimeout     = 30 * time.Second
	DefaultPipelineTimeout = 60 * time.Second
)

// Config tunes the guard's limits.
type Config struct {
	MaxRows         int
	StepTimeout     time.Duration
	PipelineTimeout time.Duration
}

// Guard screens definitions and clamps results. Safe for concurrent use.
type Guard struct {
	maxRows         int
	stepTimeout     time.Duration
	pipelineTimeout time.Duration
}

// New creates a guard, filling unset limits with defaults.
func New(cfg Config) *Guard {
	g := &Guard{
		maxRows:         cfg.MaxRows,
		stepTimeout:     cfg.StepTimeout,
		pipelineTimeout: cfg.PipelineTimeout,
	}
	if g.maxRows <= 0 {
		g.maxRows = DefaultMaxRows
	}
	if g.stepTimeout <= 0 {
		g.stepTimeout = DefaultStepTimeout
	}
	if g.pipelineTimeout <= 0 {
		g.pipelineTimeout = DefaultPipelineTimeout
	}
	return g
}

// MaxRows returns the hard row ceiling.
func (g *Guard) MaxRows() int { return g.maxRows }

// CheckKind rejects kinds that must never dispatch.
func (g *Guard) CheckKind(kind definition.LogicKind) error {
	if kind == definition.KindExpression {
		return apierr.Security("unsupported logic kind EXPRESSION: expression evaluation is permanently disabled")
	}
	if !kind.Executable() {
		return apierr.Security("unsupported logic kind " + kind.String())
	}
	return nil
}

// ReadOnlySource is the capability check for data-source adapters.
type ReadOnlySource interface {
	ReadOnly() bool
}

// CheckSource fails closed when the data source is not read-only. This is
// independent of pattern screening.
func (g *Guard) CheckSource(src ReadOnlySource) error {
	if src == nil || !src.ReadOnly() {
		return apierr.Security("data source is not read-only")
	}
	return nil
}

// ClampRows enforces the row ceiling on an actual result set, regardless of
// any limit the query itself declared. Returns the possibly truncated rows
// and whether truncation happened.
func (g *Guard) ClampRows(rows []map[string]any, declaredMax int) ([]map[string]any, bool) {
	limit := g.maxRows
	if declaredMax > 0 && declaredMax < limit {
		limit = declaredMax
	}
	if len(rows) <= limit {
		return rows, false
	}
	return rows[:limit], true
}

// StepTimeout resolves a step's allowance: the declared timeout if any,
// capped by the guard default.
func (g *Guard) StepTimeout(declaredSeconds int) time.Duration {
	d := time.Duration(declaredSeconds) * time.Second
	if d <= 0 || d > g.stepTimeout {
		return g.stepTimeout
	}
	return d
}

// StepContext derives a per-step deadline. Deriving from the caller's
// context means an aggregate pipeline budget can only shorten, never
// extend, a step's allowance.
func (g *Guard) StepContext(ctx context.Context, declaredSeconds int) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.StepTimeout(declaredSeconds))
}

// PipelineContext derives the aggregate wall-clock budget for a pipeline.
func (g *Guard) PipelineContext(ctx context.Context, declaredSeconds int) (context.Context, context.CancelFunc) {
	d := time.Duration(declaredSeconds) * time.Second
	if d <= 0 || d > g.pipelineTimeout {
		d = g.pipelineTimeout
	}
	return context.WithTimeout(ctx, d)
}
