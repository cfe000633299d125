package definition

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Per-kind JSON Schemas for logic payloads. Versions are validated against
// these at creation time so malformed payloads never reach the dispatcher.
var (
	singleQuerySchema = jsonschema.MustCompileString("single_query.json", `{
		"type": "object",
		"required": ["query"],
		"properties": {
			"query": {"type": "string", "minLength": 1}
		},
		"additionalProperties": false
	}`)

	multiQuerySchema = jsonschema.MustCompileString("multi_query.json", `{
		"type": "object",
		"required": ["queries"],
		"properties": {
			"queries": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["name", "query"],
					"properties": {
						"name": {"type": "string", "minLength": 1},
						"query": {"type": "string", "minLength": 1},
						"params": {"type": "object"}
					},
					"additionalProperties": false
				}
			}
		},
		"additionalProperties": false
	}`)

	pipelineSchema = jsonschema.MustCompileString("pipeline.json", `{
		"type": "object",
		"required": ["steps"],
		"properties": {
			"steps": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["kind", "payload"],
					"properties": {
						"output": {"type": "string"},
						"kind": {
							"type": "string",
							"enum": ["SINGLE_QUERY", "MULTI_QUERY", "EXTERNAL_CALL", "STATIC_RESPONSE"]
						},
						"payload": {},
						"optional": {"type": "boolean"},
						"timeout_seconds": {"type": "integer", "minimum": 1}
					},
					"additionalProperties": false
				}
			}
		},
		"additionalProperties": false
	}`)

	externalCallSchema = jsonschema.MustCompileString("external_call.json", `{
		"type": "object",
		"required": ["url"],
		"properties": {
			"method": {"type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE", ""]},
			"url": {"type": "string", "minLength": 1},
			"headers": {"type": "object", "additionalProperties": {"type": "string"}},
			"body": {}
		},
		"additionalProperties": false
	}`)
)

// ValidatePayload checks a logic payload against the schema for its kind.
// STATIC_RESPONSE payloads are free-form; EXPRESSION payloads are rejected
// outright since the kind can never execute.
func ValidatePayload(kind LogicKind, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("logic payload is required")
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		// Static templates may be plain text rather than JSON.
		if kind == KindStaticResponse {
			return nil
		}
		return fmt.Errorf("logic payload is not valid JSON: %w", err)
	}

	switch kind {
	case KindSingleQuery:
		return singleQuerySchema.Validate(decoded)
	case KindMultiQuery:
		return multiQuerySchema.Validate(decoded)
	case KindPipeline:
		return pipelineSchema.Validate(decoded)
	case KindExternalCall:
		return externalCallSchema.Validate(decoded)
	case KindStaticResponse:
		return nil
	case KindExpression:
		return fmt.Errorf("logic kind EXPRESSION is disabled")
	}
	return fmt.Errorf("unknown logic kind %q", kind)
}
