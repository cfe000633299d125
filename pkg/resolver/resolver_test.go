package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/rowapi/rowapi/internal/storage"
	"github.com/rowapi/rowapi/pkg/apierr"
	"github.com/rowapi/rowapi/pkg/definition"
	"github.com/rowapi/rowapi/pkg/store"
)

var actor = store.Actor{Name: "tester"}

func seed(t *testing.T) (*storage.Memory, *definition.Route) {
	t.Helper()
	s := storage.NewMemory()
	route := &definition.Route{Path: "/users", Method: "GET"}
	v1 := &definition.Version{
		LogicKind:    definition.KindStaticResponse,
		LogicPayload: datatypes.JSON(`{"response": "v1"}`),
	}
	require.NoError(t, s.CreateRoute(context.Background(), route, v1, actor))
	return s, route
}

func TestResolveCurrentVersion(t *testing.T) {
	s, _ := seed(t)
	r := New(s, time.Second, nil)
	defer r.Stop()

	snap, err := r.Resolve(context.Background(), "/users", "GET")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Version.Number)
	assert.Equal(t, definition.KindStaticResponse, snap.Version.LogicKind)
}

func TestResolveUnknownRoute(t *testing.T) {
	s, _ := seed(t)
	r := New(s, time.Second, nil)
	defer r.Stop()

	_, err := r.Resolve(context.Background(), "/nope", "GET")
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
}

func TestResolveInactiveRoute(t *testing.T) {
	s, route := seed(t)
	r := New(s, time.Second, nil)
	defer r.Stop()

	_, err := s.SetRouteStatus(context.Background(), route.ID, false, false, actor)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "/users", "GET")
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
}

func TestResolvePinnedVersion(t *testing.T) {
	s, route := seed(t)
	r := New(s, time.Second, nil)
	defer r.Stop()

	ctx := context.Background()
	v2 := &definition.Version{
		RouteID:      route.ID,
		LogicKind:    definition.KindStaticResponse,
		LogicPayload: datatypes.JSON(`{"response": "v2"}`),
	}
	require.NoError(t, s.CreateVersion(ctx, v2, actor))
	_, err := s.ActivateVersion(ctx, route.ID, 2, actor)
	require.NoError(t, err)
	r.Invalidate("/users", "GET")

	snap, err := r.Resolve(ctx, "/users", "GET")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Version.Number)

	pinned, err := r.ResolveVersion(ctx, "/users", "GET", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, pinned.Version.Number)

	_, err = r.ResolveVersion(ctx, "/users", "GET", 9)
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
}

func TestCacheServesUntilInvalidated(t *testing.T) {
	s, route := seed(t)
	r := New(s, time.Minute, nil)
	defer r.Stop()

	ctx := context.Background()
	snap, err := r.Resolve(ctx, "/users", "GET")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Version.Number)

	v2 := &definition.Version{
		RouteID:      route.ID,
		LogicKind:    definition.KindStaticResponse,
		LogicPayload: datatypes.JSON(`{"response": "v2"}`),
	}
	require.NoError(t, s.CreateVersion(ctx, v2, actor))
	_, err = s.ActivateVersion(ctx, route.ID, 2, actor)
	require.NoError(t, err)

	// Activation is not yet visible through the warm cache.
	snap, err = r.Resolve(ctx, "/users", "GET")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Version.Number)

	r.Invalidate("/users", "GET")
	snap, err = r.Resolve(ctx, "/users", "GET")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Version.Number)
}
