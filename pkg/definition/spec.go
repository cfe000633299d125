package definition

import (
	"encoding/json"
	"fmt"
)

// ParamSpec declares validation rules for one request parameter.
type ParamSpec struct {
	Type     string  `json:"type"`
	Required bool    `json:"required"`
	Default  any     `json:"default,omitempty"`
	MinLen   *int    `json:"min_length,omitempty"`
	MaxLen   *int    `json:"max_length,omitempty"`
	Pattern  string  `json:"pattern,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Enum     []any   `json:"enum,omitempty"`
}

// RequestSpec maps parameter names to their rules.
type RequestSpec map[string]ParamSpec

// ResponseSpec is the response-mapping template. String values may be
// references ($result, $result_count, $result.<path>, $params.<name>);
// everything else is passed through literally.
type ResponseSpec map[string]any

// StatusCodes maps outcome names ("success", "not_found") to status codes.
type StatusCodes map[string]int

// LogicConfig holds kind-agnostic execution settings for a version.
type LogicConfig struct {
	// TimeoutSeconds bounds one execution step. Zero means the guard default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`

	// PipelineTimeoutSeconds bounds a whole pipeline's wall clock.
	PipelineTimeoutSeconds int `json:"pipeline_timeout_seconds,omitempty"`

	// MaxRows caps returned rows. Clamped to the guard ceiling regardless.
	MaxRows int `json:"max_rows,omitempty"`

	// StrictParams rejects parameters not declared in the request spec.
	StrictParams bool `json:"strict_params,omitempty"`
}

// SingleQueryPayload is the body of a SINGLE_QUERY version: one parameterized
// read query. Parameters bind by name (@name), never by interpolation.
type SingleQueryPayload struct {
	Query string `json:"query"`
}

// NamedQuery is one entry of a MULTI_QUERY sequence. Params values may be
// literals or references ($params.x, $<earlier_name>[0].col) resolved before
// binding.
type NamedQuery struct {
	Name   string         `json:"name"`
	Query  string         `json:"query"`
	Params map[string]any `json:"params,omitempty"`
}

// MultiQueryPayload is an ordered, named sequence of read queries.
type MultiQueryPayload struct {
	Queries []NamedQuery `json:"queries"`
}

// PipelineStep is one unit of a PIPELINE. Output names the step's result for
// later steps; Optional steps log and continue on failure.
type PipelineStep struct {
	Output         string          `json:"output,omitempty"`
	Kind           LogicKind       `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
	Optional       bool            `json:"optional,omitempty"`
	TimeoutSeconds int             `json:"timeout_seconds,omitempty"`
}

// PipelinePayload is an ordered sequence of heterogeneous steps.
type PipelinePayload struct {
	Steps []PipelineStep `json:"steps"`
}

// ExternalCallPayload describes one outbound HTTP call. URL, header values
// and body are templates over the parameter scope.
type ExternalCallPayload struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// Snapshot is a resolved route plus its version with all JSON columns
// decoded once. Snapshots are immutable and safe to share across requests.
type Snapshot struct {
	Route        *Route
	Version      *Version
	RequestSpec  RequestSpec
	Config       LogicConfig
	ResponseSpec ResponseSpec
	StatusCodes  StatusCodes
	Origins      []string
}

// NewSnapshot decodes the version's stored JSON into typed specs.
func NewSnapshot(route *Route, version *Version) (*Snapshot, error) {
	s := &Snapshot{Route: route, Version: version}

	if len(version.RequestSpec) > 0 {
		if err := json.Unmarshal(version.RequestSpec, &s.RequestSpec); err != nil {
			return nil, fmt.Errorf("decode request spec: %w", err)
		}
	}
	if len(version.LogicConfig) > 0 {
		if err := json.Unmarshal(version.LogicConfig, &s.Config); err != nil {
			return nil, fmt.Errorf("decode logic config: %w", err)
		}
	}
	if len(version.ResponseSpec) > 0 {
		if err := json.Unmarshal(version.ResponseSpec, &s.ResponseSpec); err != nil {
			return nil, fmt.Errorf("decode response spec: %w", err)
		}
	}
	if len(version.StatusCodes) > 0 {
		if err := json.Unmarshal(version.StatusCodes, &s.StatusCodes); err != nil {
			return nil, fmt.Errorf("decode status codes: %w", err)
		}
	}
	if len(route.AllowedOrigins) > 0 {
		if err := json.Unmarshal(route.AllowedOrigins, &s.Origins); err != nil {
			return nil, fmt.Errorf("decode allowed origins: %w", err)
		}
	}
	return s, nil
}
