package executor

import (
	"encoding/json"

	"github.com/rowapi/rowapi/pkg/template"
)

// runStatic substitutes references into a literal template. No data-source
// access happens here. A template that renders to valid JSON is returned
// decoded; anything else is returned as the rendered string.
func (e *Executor) runStatic(payload []byte, scope template.Scope) (*Result, error) {
	rendered := template.RenderJSON(string(payload), scope)

	var value any
	if err := json.Unmarshal([]byte(rendered), &value); err != nil {
		value = rendered
	}
	return &Result{Value: value, Count: 1}, nil
}
