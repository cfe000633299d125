package engine

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rowapi/rowapi/pkg/apierr"
)

// MaxRequestBodySize is the maximum accepted JSON body (10MB).
const MaxRequestBodySize = 10 << 20

// versionParam pins a request to a specific version number instead of the
// current one. It is reserved and never reaches validation.
const versionParam = "_version"

// collectParams merges query parameters with the JSON body for body-bearing
// methods. Body values win on conflict. Returns the merged raw parameters
// and the version pin, if any.
func collectParams(r *http.Request) (map[string]any, int, error) {
	raw := make(map[string]any)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			raw[key] = values[0]
		}
	}

	if hasBody(r.Method) && r.Body != nil {
		data, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
		if err != nil {
			return nil, 0, apierr.Execution("reading request body", err)
		}
		if len(data) > MaxRequestBodySize {
			return nil, 0, apierr.Validation(apierr.FieldViolation{
				Field: "body", Message: "request body too large",
			})
		}
		if len(data) > 0 {
			var body map[string]any
			if err := json.Unmarshal(data, &body); err != nil {
				return nil, 0, apierr.Validation(apierr.FieldViolation{
					Field: "body", Message: "request body is not a JSON object",
				})
			}
			for key, value := range body {
				raw[key] = value
			}
		}
	}

	pin, err := extractPin(raw)
	if err != nil {
		return nil, 0, err
	}
	return raw, pin, nil
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

func extractPin(raw map[string]any) (int, error) {
	value, ok := raw[versionParam]
	if !ok {
		return 0, nil
	}
	delete(raw, versionParam)

	badPin := apierr.Validation(apierr.FieldViolation{
		Field: versionParam, Message: "must be a positive integer",
	})

	var pin int
	switch v := value.(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, badPin
		}
		pin = n
	case float64:
		pin = int(v)
		if float64(pin) != v {
			return 0, badPin
		}
	default:
		return 0, badPin
	}
	if pin <= 0 {
		return 0, badPin
	}
	return pin, nil
}
