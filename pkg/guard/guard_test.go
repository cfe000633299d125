package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowapi/rowapi/pkg/apierr"
	"github.com/rowapi/rowapi/pkg/definition"
)

func TestScreenQuery(t *testing.T) {
	g := New(Config{})

	ok := []string{
		"SELECT id, name FROM app_user_l WHERE cmpny_id = @cmpny_id",
		"SELECT created_at, updated_at FROM orders LIMIT 10",
		"select * from products where price > @min_price;",
	}
	for _, q := range ok {
		assert.NoError(t, g.ScreenQuery(q), q)
	}

	bad := []string{
		`"; DROP TABLE x;--`,
		"SELECT * FROM users; DELETE FROM users",
		"SELECT id FROM a UNION SELECT password FROM users",
		"SELECT id FROM a UNION ALL SELECT 1",
		"SELECT * FROM t WHERE id = 1 OR SLEEP(5)",
		"SELECT BENCHMARK(1000000, MD5('x'))",
		"INSERT INTO users VALUES (1)",
		"UPDATE users SET name = 'x'",
		"SELECT * FROM t INTO OUTFILE '/tmp/x'",
		"GRANT ALL ON *.* TO 'x'",
		"SELECT /* sneaky */ 1; TRUNCATE t",
		"",
	}
	for _, q := range bad {
		err := g.ScreenQuery(q)
		require.Error(t, err, q)
		assert.Equal(t, apierr.KindSecurity, apierr.KindOf(err), q)
	}
}

func TestScreenQueryErrorIsSanitized(t *testing.T) {
	g := New(Config{})
	err := g.ScreenQuery("SELECT 1; DROP TABLE x")

	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "request rejected", apiErr.Message, "threat detail must stay out of the public message")
	assert.NotEmpty(t, apiErr.Detail)
}

func TestNormalizeQuery(t *testing.T) {
	q := "SELECT * -- trailing\nFROM   t /* block\ncomment */ WHERE a=1"
	assert.Equal(t, "SELECT * FROM T WHERE A=1", NormalizeQuery(q))
}

func TestCheckKind(t *testing.T) {
	g := New(Config{})

	assert.NoError(t, g.CheckKind(definition.KindSingleQuery))
	assert.NoError(t, g.CheckKind(definition.KindStaticResponse))

	err := g.CheckKind(definition.KindExpression)
	require.Error(t, err)
	assert.Equal(t, apierr.KindSecurity, apierr.KindOf(err))

	assert.Error(t, g.CheckKind(definition.LogicKind("BOGUS")))
}

type fakeSource struct{ readOnly bool }

func (f fakeSource) ReadOnly() bool { return f.readOnly }

func TestCheckSource(t *testing.T) {
	g := New(Config{})
	assert.NoError(t, g.CheckSource(fakeSource{readOnly: true}))
	assert.Error(t, g.CheckSource(fakeSource{readOnly: false}))
	assert.Error(t, g.CheckSource(nil))
}

func TestClampRows(t *testing.T) {
	g := New(Config{MaxRows: 3})

	rows := []map[string]any{{"i": 1}, {"i": 2}, {"i": 3}, {"i": 4}}

	clamped, truncated := g.ClampRows(rows, 0)
	assert.True(t, truncated)
	assert.Len(t, clamped, 3)

	// A declared limit below the ceiling applies ...
	clamped, truncated = g.ClampRows(rows, 2)
	assert.True(t, truncated)
	assert.Len(t, clamped, 2)

	// ... but a declared limit above the ceiling does not raise it.
	clamped, truncated = g.ClampRows(rows, 100)
	assert.True(t, truncated)
	assert.Len(t, clamped, 3)

	_, truncated = g.ClampRows(rows[:2], 0)
	assert.False(t, truncated)
}

func TestStepTimeout(t *testing.T) {
	g := New(Config{StepTimeout: 10 * time.Second})

	assert.Equal(t, 10*time.Second, g.StepTimeout(0))
	assert.Equal(t, 2*time.Second, g.StepTimeout(2))
	assert.Equal(t, 10*time.Second, g.StepTimeout(300), "declared timeout cannot exceed the cap")
}

func TestPipelineContextShortensSteps(t *testing.T) {
	g := New(Config{StepTimeout: 10 * time.Second, PipelineTimeout: time.Second})

	pctx, pcancel := g.PipelineContext(context.Background(), 0)
	defer pcancel()
	sctx, scancel := g.StepContext(pctx, 0)
	defer scancel()

	deadline, ok := sctx.Deadline()
	require.True(t, ok)
	assert.LessOrEqual(t, time.Until(deadline), time.Second,
		"aggregate budget must bound each step's allowance")
}

func TestIsSensitive(t *testing.T) {
	g := New(Config{})

	for _, col := range []string{"password", "user_passwd", "PWD", "api_key", "apikey", "access_token", "client_secret", "private_key", "ssn", "resident_reg_no", "national_id"} {
		assert.True(t, g.IsSensitive(col), col)
	}
	for _, col := range []string{"name", "email", "cmpny_id", "created_at", "keyboard"} {
		assert.False(t, g.IsSensitive(col), col)
	}
}
