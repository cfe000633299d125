package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/rowapi/rowapi/pkg/apierr"
	"github.com/rowapi/rowapi/pkg/definition"
)

// Lifecycle tests need a real postgres; they are skipped unless
// ROWAPI_TEST_DATABASE_URL is set.
func testStore(t *testing.T) *DBStore {
	t.Helper()
	dsn := os.Getenv("ROWAPI_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ROWAPI_TEST_DATABASE_URL not set")
	}
	s, err := Open(dsn)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	return s
}

func testRoute(t *testing.T) *definition.Route {
	t.Helper()
	return &definition.Route{
		Path:   fmt.Sprintf("/test/%d", time.Now().UnixNano()),
		Method: "GET",
		Name:   "lifecycle test route",
	}
}

func testVersion(kind definition.LogicKind, payload string) *definition.Version {
	return &definition.Version{
		LogicKind:    kind,
		LogicPayload: datatypes.JSON(payload),
	}
}

var testActor = Actor{Name: "tester", IP: "127.0.0.1"}

func TestCreateRouteWithInitialVersion(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	route := testRoute(t)
	initial := testVersion(definition.KindStaticResponse, `{"response": "ok"}`)
	require.NoError(t, s.CreateRoute(ctx, route, initial, testActor))
	require.NotEmpty(t, route.ID)

	got, err := s.FindRoute(ctx, route.Path, "GET")
	require.NoError(t, err)
	assert.Equal(t, route.ID, got.ID)
	assert.True(t, got.Active)

	cur, err := s.CurrentVersion(ctx, route.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cur.Number)
	assert.True(t, cur.Current)

	// The initial version and the route each get a CREATE entry.
	audit, err := s.ListAudit(ctx, route.ID, 10)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, definition.ActionCreate, audit[0].Action)
}

func TestCreateRouteRejectsLiveDuplicate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	route := testRoute(t)
	require.NoError(t, s.CreateRoute(ctx, route, testVersion(definition.KindStaticResponse, `{"response": "a"}`), testActor))

	dup := &definition.Route{Path: route.Path, Method: "GET"}
	err := s.CreateRoute(ctx, dup, testVersion(definition.KindStaticResponse, `{"response": "b"}`), testActor)
	require.Error(t, err)
	assert.Equal(t, apierr.KindDuplicate, apierr.KindOf(err))

	// Soft-deleting the first route frees the (path, method) pair.
	_, err = s.SetRouteStatus(ctx, route.ID, false, true, testActor)
	require.NoError(t, err)
	dup = &definition.Route{Path: route.Path, Method: "GET"}
	require.NoError(t, s.CreateRoute(ctx, dup, testVersion(definition.KindStaticResponse, `{"response": "b"}`), testActor))
}

func TestVersionNumbersAreSequential(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	route := testRoute(t)
	require.NoError(t, s.CreateRoute(ctx, route, testVersion(definition.KindStaticResponse, `{"response": "v1"}`), testActor))

	for i := 2; i <= 4; i++ {
		v := testVersion(definition.KindStaticResponse, fmt.Sprintf(`{"response": "v%d"}`, i))
		v.RouteID = route.ID
		require.NoError(t, s.CreateVersion(ctx, v, testActor))
		assert.Equal(t, i, v.Number)
		assert.False(t, v.Current)
	}

	versions, err := s.ListVersions(ctx, route.ID)
	require.NoError(t, err)
	require.Len(t, versions, 4)

	// Still exactly one current version, and it is still number 1.
	cur, err := s.CurrentVersion(ctx, route.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cur.Number)
}

func TestActivateVersionFlipsExactlyOne(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	route := testRoute(t)
	require.NoError(t, s.CreateRoute(ctx, route, testVersion(definition.KindStaticResponse, `{"response": "v1"}`), testActor))
	v2 := testVersion(definition.KindStaticResponse, `{"response": "v2"}`)
	v2.RouteID = route.ID
	require.NoError(t, s.CreateVersion(ctx, v2, testActor))

	activated, err := s.ActivateVersion(ctx, route.ID, 2, testActor)
	require.NoError(t, err)
	assert.True(t, activated.Current)

	versions, err := s.ListVersions(ctx, route.ID)
	require.NoError(t, err)
	currents := 0
	for _, v := range versions {
		if v.Current {
			currents++
			assert.Equal(t, 2, v.Number)
		}
	}
	assert.Equal(t, 1, currents)
}

func TestActivateVersionUnknownNumber(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	route := testRoute(t)
	require.NoError(t, s.CreateRoute(ctx, route, testVersion(definition.KindStaticResponse, `{"response": "v1"}`), testActor))

	_, err := s.ActivateVersion(ctx, route.ID, 7, testActor)
	require.Error(t, err)
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
}

func TestRollbackCopiesForward(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	route := testRoute(t)
	require.NoError(t, s.CreateRoute(ctx, route, testVersion(definition.KindStaticResponse, `{"response": "v1"}`), testActor))
	v2 := testVersion(definition.KindStaticResponse, `{"response": "v2"}`)
	v2.RouteID = route.ID
	require.NoError(t, s.CreateVersion(ctx, v2, testActor))
	_, err := s.ActivateVersion(ctx, route.ID, 2, testActor)
	require.NoError(t, err)

	rolled, err := s.Rollback(ctx, route.ID, 1, testActor)
	require.NoError(t, err)
	assert.Equal(t, 3, rolled.Number)
	assert.True(t, rolled.Current)
	assert.JSONEq(t, `{"response": "v1"}`, string(rolled.LogicPayload))

	// The rolled-back-from version is untouched and no longer current.
	old, err := s.GetVersion(ctx, route.ID, 2)
	require.NoError(t, err)
	assert.False(t, old.Current)

	audit, err := s.ListAudit(ctx, rolled.ID, 10)
	require.NoError(t, err)
	actions := make([]string, 0, len(audit))
	for _, e := range audit {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, definition.ActionCreate)
	assert.Contains(t, actions, definition.ActionRollback)
}

func TestSetRouteStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	route := testRoute(t)
	require.NoError(t, s.CreateRoute(ctx, route, testVersion(definition.KindStaticResponse, `{"response": "ok"}`), testActor))

	updated, err := s.SetRouteStatus(ctx, route.ID, false, false, testActor)
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.False(t, updated.Deleted)

	updated, err = s.SetRouteStatus(ctx, route.ID, false, true, testActor)
	require.NoError(t, err)
	assert.True(t, updated.Deleted)

	_, err = s.FindRoute(ctx, route.Path, "GET")
	require.Error(t, err)
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
}

func TestVersionRowsRejectDirectUpdates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	route := testRoute(t)
	require.NoError(t, s.CreateRoute(ctx, route, testVersion(definition.KindStaticResponse, `{"response": "ok"}`), testActor))
	cur, err := s.CurrentVersion(ctx, route.ID)
	require.NoError(t, err)

	cur.ChangeNote = "tampered"
	err = s.db.WithContext(ctx).Save(cur).Error
	require.Error(t, err)
	assert.Equal(t, apierr.KindImmutablePolicy, apierr.KindOf(err))

	err = s.db.WithContext(ctx).Delete(cur).Error
	require.Error(t, err)
	assert.Equal(t, apierr.KindImmutablePolicy, apierr.KindOf(err))
}
