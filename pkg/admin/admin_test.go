package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowapi/rowapi/internal/storage"
	"github.com/rowapi/rowapi/pkg/definition"
)

type echoRunner struct{}

func (echoRunner) Try(_ context.Context, _ *definition.Snapshot, raw map[string]any) (map[string]any, int, error) {
	return map[string]any{"echo": raw}, 200, nil
}

func newTestAPI(t *testing.T) (*API, http.Handler) {
	t.Helper()
	api := New(storage.NewMemory(), WithRunner(echoRunner{}))
	return api, api.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.Header.Set("X-Actor", "alice")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const createUsersRoute = `{
  "path": "/users",
  "method": "get",
  "name": "list users",
  "version": {
    "logicKind": "SINGLE_QUERY",
    "logicPayload": {"query": "SELECT id, name FROM users"}
  }
}`

func createRoute(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, "POST", "/routes", createUsersRoute)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	route := body["route"].(map[string]any)
	return route["id"].(string)
}

func TestCreateAndGetRoute(t *testing.T) {
	_, h := newTestAPI(t)
	id := createRoute(t, h)

	rec := do(t, h, "GET", "/routes/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "/users", body["path"])
	assert.Equal(t, "GET", body["method"])

	rec = do(t, h, "GET", "/routes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])
}

func TestCreateRouteValidation(t *testing.T) {
	_, h := newTestAPI(t)

	rec := do(t, h, "POST", "/routes", `{"path": "nope", "method": "YEET"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", body["error"])
	assert.Len(t, body["fields"], 3)
}

func TestCreateRouteRejectsExpressionKind(t *testing.T) {
	_, h := newTestAPI(t)

	rec := do(t, h, "POST", "/routes", `{
	  "path": "/calc", "method": "GET",
	  "version": {"logicKind": "EXPRESSION", "logicPayload": {"expression": "1+1"}}
	}`)
	require.NotEqual(t, http.StatusCreated, rec.Code)
}

func TestCreateRouteRejectsBadPayloadShape(t *testing.T) {
	_, h := newTestAPI(t)

	rec := do(t, h, "POST", "/routes", `{
	  "path": "/q", "method": "GET",
	  "version": {"logicKind": "SINGLE_QUERY", "logicPayload": {"wrong": "shape"}}
	}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDuplicateRouteConflicts(t *testing.T) {
	_, h := newTestAPI(t)
	createRoute(t, h)

	rec := do(t, h, "POST", "/routes", createUsersRoute)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_ERROR", decode(t, rec)["error"])
}

func TestVersionLifecycle(t *testing.T) {
	_, h := newTestAPI(t)
	id := createRoute(t, h)

	rec := do(t, h, "POST", "/routes/"+id+"/versions", `{
	  "logicKind": "STATIC_RESPONSE",
	  "logicPayload": {"response": "v2"},
	  "changeNote": "static fallback"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), decode(t, rec)["number"])

	rec = do(t, h, "POST", "/routes/"+id+"/versions/2/activate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["current"])

	rec = do(t, h, "GET", "/routes/"+id+"/versions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["count"])

	rec = do(t, h, "POST", "/routes/"+id+"/versions/9/activate", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRollback(t *testing.T) {
	_, h := newTestAPI(t)
	id := createRoute(t, h)

	rec := do(t, h, "POST", "/routes/"+id+"/versions", `{
	  "logicKind": "STATIC_RESPONSE", "logicPayload": {"response": "v2"}
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, "POST", "/routes/"+id+"/versions/2/activate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, "POST", "/routes/"+id+"/rollback", `{"targetNumber": 1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(3), body["number"])
	assert.Equal(t, true, body["current"])

	rec = do(t, h, "POST", "/routes/"+id+"/rollback", `{"targetNumber": 0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusAndAudit(t *testing.T) {
	_, h := newTestAPI(t)
	id := createRoute(t, h)

	rec := do(t, h, "POST", "/routes/"+id+"/status", `{"active": false, "deleted": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["active"])

	rec = do(t, h, "GET", "/routes/"+id+"/audit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	entries := body["entries"].([]any)
	require.NotEmpty(t, entries)
	first := entries[0].(map[string]any)
	assert.Equal(t, "alice", first["actor"])
}

func TestTryEndpoint(t *testing.T) {
	_, h := newTestAPI(t)

	rec := do(t, h, "POST", "/routes", `{
	  "path": "/greet", "method": "GET",
	  "version": {
	    "logicKind": "STATIC_RESPONSE",
	    "logicPayload": {"response": "hi"},
	    "sampleParams": {"name": "Ada"}
	  }
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["route"].(map[string]any)["id"].(string)

	rec = do(t, h, "POST", "/routes/"+id+"/try", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	echo := body["body"].(map[string]any)["echo"].(map[string]any)
	assert.Equal(t, "Ada", echo["name"])
}
