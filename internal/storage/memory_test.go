package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/rowapi/rowapi/pkg/apierr"
	"github.com/rowapi/rowapi/pkg/definition"
	"github.com/rowapi/rowapi/pkg/store"
)

var actor = store.Actor{Name: "tester", IP: "127.0.0.1"}

func staticVersion(body string) *definition.Version {
	return &definition.Version{
		LogicKind:    definition.KindStaticResponse,
		LogicPayload: datatypes.JSON(`{"response": "` + body + `"}`),
	}
}

func TestCreateAndFindRoute(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	route := &definition.Route{Path: "/hello", Method: "get"}
	require.NoError(t, s.CreateRoute(ctx, route, staticVersion("hi"), actor))

	got, err := s.FindRoute(ctx, "/hello", "GET")
	require.NoError(t, err)
	assert.Equal(t, "GET", got.Method, "method is stored normalized")
	assert.True(t, got.Active)

	cur, err := s.CurrentVersion(ctx, route.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cur.Number)

	_, err = s.FindRoute(ctx, "/hello", "POST")
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
}

func TestDuplicatePathMethodRejected(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.CreateRoute(ctx, &definition.Route{Path: "/a", Method: "GET"}, staticVersion("1"), actor))
	err := s.CreateRoute(ctx, &definition.Route{Path: "/a", Method: "GET"}, staticVersion("2"), actor)
	assert.Equal(t, apierr.KindDuplicate, apierr.KindOf(err))

	// Different method on the same path is fine.
	require.NoError(t, s.CreateRoute(ctx, &definition.Route{Path: "/a", Method: "POST"}, staticVersion("3"), actor))
}

func TestVersionSequenceAndActivation(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	route := &definition.Route{Path: "/seq", Method: "GET"}
	require.NoError(t, s.CreateRoute(ctx, route, staticVersion("v1"), actor))

	v2 := staticVersion("v2")
	v2.RouteID = route.ID
	require.NoError(t, s.CreateVersion(ctx, v2, actor))
	assert.Equal(t, 2, v2.Number)
	assert.False(t, v2.Current)

	cur, err := s.CurrentVersion(ctx, route.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cur.Number, "creation must not change the current version")

	activated, err := s.ActivateVersion(ctx, route.ID, 2, actor)
	require.NoError(t, err)
	assert.True(t, activated.Current)

	versions, err := s.ListVersions(ctx, route.ID)
	require.NoError(t, err)
	currents := 0
	for _, v := range versions {
		if v.Current {
			currents++
		}
	}
	assert.Equal(t, 1, currents)
}

func TestRollbackAppendsCopy(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	route := &definition.Route{Path: "/rb", Method: "GET"}
	require.NoError(t, s.CreateRoute(ctx, route, staticVersion("v1"), actor))
	v2 := staticVersion("v2")
	v2.RouteID = route.ID
	require.NoError(t, s.CreateVersion(ctx, v2, actor))
	_, err := s.ActivateVersion(ctx, route.ID, 2, actor)
	require.NoError(t, err)

	rolled, err := s.Rollback(ctx, route.ID, 1, actor)
	require.NoError(t, err)
	assert.Equal(t, 3, rolled.Number)
	assert.True(t, rolled.Current)
	assert.JSONEq(t, `{"response": "v1"}`, string(rolled.LogicPayload))

	old, err := s.GetVersion(ctx, route.ID, 2)
	require.NoError(t, err)
	assert.False(t, old.Current)

	audit, err := s.ListAudit(ctx, rolled.ID, 10)
	require.NoError(t, err)
	require.Len(t, audit, 2)
	assert.Equal(t, definition.ActionRollback, audit[0].Action, "newest entry first")
}

func TestSoftDeleteHidesRoute(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	route := &definition.Route{Path: "/gone", Method: "GET"}
	require.NoError(t, s.CreateRoute(ctx, route, staticVersion("x"), actor))

	_, err := s.SetRouteStatus(ctx, route.ID, false, true, actor)
	require.NoError(t, err)

	_, err = s.FindRoute(ctx, "/gone", "GET")
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))

	routes, err := s.ListRoutes(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, routes)

	routes, err = s.ListRoutes(ctx, true)
	require.NoError(t, err)
	assert.Len(t, routes, 1)

	// The freed pair can be reused.
	require.NoError(t, s.CreateRoute(ctx, &definition.Route{Path: "/gone", Method: "GET"}, staticVersion("y"), actor))
}

func TestReturnedCopiesDoNotAliasStore(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	route := &definition.Route{Path: "/alias", Method: "GET"}
	require.NoError(t, s.CreateRoute(ctx, route, staticVersion("x"), actor))

	got, err := s.GetRoute(ctx, route.ID)
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := s.GetRoute(ctx, route.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Name)
}
