package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rowapi/rowapi/pkg/apierr"
	"github.com/rowapi/rowapi/pkg/definition"
	"github.com/rowapi/rowapi/pkg/template"
)

// maxCallBody caps how much of an external response is read.
const maxCallBody = 10 << 20

func (e *Executor) runExternalCall(ctx context.Context, payload []byte, cfg definition.LogicConfig, scope template.Scope) (*Result, error) {
	var p definition.ExternalCallPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apierr.Execution("invalid EXTERNAL_CALL payload", err)
	}

	method := strings.ToUpper(p.Method)
	if method == "" {
		method = http.MethodGet
	}

	url := expandURL(p.URL, scope)

	var body io.Reader
	if len(p.Body) > 0 {
		body = strings.NewReader(template.RenderJSON(string(p.Body), scope))
	}

	sctx, cancel := e.guard.StepContext(ctx, cfg.TimeoutSeconds)
	defer cancel()

	req, err := http.NewRequestWithContext(sctx, method, url, body)
	if err != nil {
		return nil, apierr.Execution("invalid external call target", err)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, template.Render(v, scope))
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, timeoutOr(sctx, "external call", "external call failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCallBody))
	if err != nil {
		return nil, timeoutOr(sctx, "external call", "reading external response failed", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apierr.Execution("external call returned an error status",
			fmt.Errorf("status %d from %s %s", resp.StatusCode, method, url))
	}

	var value any = string(raw)
	count := 1
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			value = decoded
			if list, ok := decoded.([]any); ok {
				count = len(list)
			}
		}
	}

	return &Result{Value: value, Count: count, Status: resp.StatusCode}, nil
}

// expandURL substitutes both $-references and {name} path placeholders
// from the validated parameters.
func expandURL(url string, scope template.Scope) string {
	url = template.Render(url, scope)
	for name, v := range paramsOf(scope) {
		url = strings.ReplaceAll(url, "{"+name+"}", fmt.Sprintf("%v", v))
	}
	return url
}
