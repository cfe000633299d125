package definition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestParseLogicKind(t *testing.T) {
	for _, tag := range []string{"SINGLE_QUERY", "MULTI_QUERY", "PIPELINE", "EXTERNAL_CALL", "STATIC_RESPONSE", "EXPRESSION"} {
		k, err := ParseLogicKind(tag)
		require.NoError(t, err, tag)
		assert.Equal(t, tag, k.String())
	}

	_, err := ParseLogicKind("PYTHON_EXPR")
	assert.Error(t, err)
	_, err = ParseLogicKind("")
	assert.Error(t, err)
}

func TestLogicKindExecutable(t *testing.T) {
	assert.True(t, KindSingleQuery.Executable())
	assert.True(t, KindPipeline.Executable())
	assert.False(t, KindExpression.Executable(), "disabled kind must never be executable")
	assert.False(t, LogicKind("BOGUS").Executable())
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		kind    LogicKind
		payload string
		wantErr bool
	}{
		{"single query ok", KindSingleQuery, `{"query": "SELECT id FROM users WHERE id = @id"}`, false},
		{"single query empty", KindSingleQuery, `{"query": ""}`, true},
		{"single query missing", KindSingleQuery, `{}`, true},
		{"multi query ok", KindMultiQuery, `{"queries": [{"name": "users", "query": "SELECT 1"}]}`, false},
		{"multi query no name", KindMultiQuery, `{"queries": [{"query": "SELECT 1"}]}`, true},
		{"pipeline ok", KindPipeline, `{"steps": [{"kind": "STATIC_RESPONSE", "payload": {"ok": true}, "output": "a"}]}`, false},
		{"pipeline nested pipeline", KindPipeline, `{"steps": [{"kind": "PIPELINE", "payload": {}}]}`, true},
		{"external call ok", KindExternalCall, `{"method": "GET", "url": "https://example.com/{id}"}`, false},
		{"external call no url", KindExternalCall, `{"method": "GET"}`, true},
		{"static free-form", KindStaticResponse, `{"message": "Hello, $params.name"}`, false},
		{"static plain text", KindStaticResponse, `hello`, false},
		{"expression rejected", KindExpression, `{"expr": "1+1"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(tt.kind, []byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewSnapshot(t *testing.T) {
	route := &Route{
		ID:             "r1",
		Path:           "user-info",
		Method:         "GET",
		Active:         true,
		AllowedOrigins: datatypes.JSON(`["https://*.example.com"]`),
	}
	version := &Version{
		ID:           "v1",
		RouteID:      "r1",
		Number:       1,
		Current:      true,
		LogicKind:    KindSingleQuery,
		LogicPayload: datatypes.JSON(`{"query": "SELECT 1"}`),
		RequestSpec:  datatypes.JSON(`{"name": {"type": "string", "required": false, "default": "World"}}`),
		LogicConfig:  datatypes.JSON(`{"timeout_seconds": 5, "max_rows": 10}`),
		ResponseSpec: datatypes.JSON(`{"data": "$result", "count": "$result_count"}`),
		StatusCodes:  datatypes.JSON(`{"success": 200, "not_found": 404}`),
	}

	snap, err := NewSnapshot(route, version)
	require.NoError(t, err)

	require.Contains(t, snap.RequestSpec, "name")
	assert.Equal(t, "World", snap.RequestSpec["name"].Default)
	assert.Equal(t, 5, snap.Config.TimeoutSeconds)
	assert.Equal(t, 10, snap.Config.MaxRows)
	assert.Equal(t, "$result", snap.ResponseSpec["data"])
	assert.Equal(t, 404, snap.StatusCodes["not_found"])
	assert.Equal(t, []string{"https://*.example.com"}, snap.Origins)
}

func TestNewSnapshotBadSpec(t *testing.T) {
	route := &Route{ID: "r1"}
	version := &Version{ID: "v1", RequestSpec: datatypes.JSON(`[1,2]`)}
	_, err := NewSnapshot(route, version)
	assert.Error(t, err)
}
