package manager

import (
	"context"
	stdsql "database/sql"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/orbql"
	"github.com/syssam/orbql/dialect"
	"github.com/syssam/orbql/dialect/sql"
	"github.com/syssam/orbql/execution"
	"github.com/syssam/orbql/query"
	"github.com/syssam/orbql/schema"
)

func testRegistry(t testing.TB) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry(
		schema.New("Role", schema.String("name").Unique()).
			WithIndexes(schema.NewIndex("", "name")),
		schema.New("Category", schema.String("code"), schema.String("label").Translatable()),
	)
	require.NoError(t, err)
	return reg
}

// testPool counts acquired connections and refuses them once failAfter
// connections were handed out.
type testPool struct {
	*sql.Driver
	acquired  atomic.Int32
	failAfter int32
}

func (p *testPool) Acquire(ctx context.Context) (*sql.ConnDriver, error) {
	if n := p.acquired.Add(1); p.failAfter >= 0 && n > p.failAfter {
		return nil, errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	}
	return p.Driver.Acquire(ctx)
}

type env struct {
	m    *Manager
	mock sqlmock.Sqlmock
	pool *testPool
	reg  *schema.Registry
}

func newEnv(t *testing.T, name string, opts ...Option) *env {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	pool := &testPool{Driver: sql.OpenDB(name, db), failAfter: -1}
	reg := testRegistry(t)
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithBackoff(0),
	}, opts...)
	m, err := New(pool, reg, opts...)
	require.NoError(t, err)
	return &env{m: m, mock: mock, pool: pool, reg: reg}
}

func (e *env) schema(t *testing.T, name string) *schema.Schema {
	t.Helper()
	s, err := e.reg.Lookup(name)
	require.NoError(t, err)
	return s
}

func (e *env) session(t *testing.T) *Session {
	t.Helper()
	s, err := e.m.NewSession()
	require.NoError(t, err)
	return s
}

func byName(name string) *execution.Context {
	return execution.New(execution.WithWhere(query.C("name").Is(name)))
}

const selectRoles = `SELECT .+ FROM "roles" WHERE "roles"\."name" = \$1`

func TestSelect(t *testing.T) {
	e := newEnv(t, dialect.Postgres)
	s := e.session(t)
	assert.Equal(t, StateClosed, s.State())

	e.mock.ExpectQuery(selectRoles).
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "admin"))
	res, err := s.Select(context.Background(), e.schema(t, "Role"), byName("admin"))
	require.NoError(t, err)
	assert.False(t, res.DryRun)
	assert.Equal(t, []map[string]any{{"id": int64(1), "name": "admin"}}, res.Records)
	assert.Equal(t, StateOpen, s.State())
	assert.EqualValues(t, 1, e.m.Stats().TotalQueries)
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestSelectStaticallyEmpty(t *testing.T) {
	e := newEnv(t, dialect.Postgres)
	s := e.session(t)
	ectx := execution.New(execution.WithWhere(query.And(query.C("name").Is("a"), query.C("id").IsIn())))
	res, err := s.Select(context.Background(), e.schema(t, "Role"), ectx)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	res, err = s.Count(context.Background(), e.schema(t, "Role"), ectx)
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.Equal(t, StateClosed, s.State(), "no connection is opened")
	assert.Zero(t, e.pool.acquired.Load())
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestCountExists(t *testing.T) {
	e := newEnv(t, dialect.Postgres)
	s := e.session(t)
	role := e.schema(t, "Role")

	e.mock.ExpectQuery(`SELECT COUNT\(\*\) AS "count" FROM`).
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	res, err := s.Count(context.Background(), role, byName("admin"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Count)

	e.mock.ExpectQuery(`SELECT COUNT\(\*\) AS "count" FROM`).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
	ok, err := s.Exists(context.Background(), role, byName("nobody"))
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestDryRun(t *testing.T) {
	e := newEnv(t, dialect.Postgres)
	s := e.session(t)
	role := e.schema(t, "Role")
	dry := execution.New(execution.WithDryRun())

	res, err := s.Insert(context.Background(), role, []schema.Record{
		schema.NewValues(role, map[string]any{"name": "admin"}),
	}, dry)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, []string{`INSERT INTO "roles" ("name") VALUES ($1) RETURNING "id"`}, res.Statements)
	assert.Empty(t, res.IDs)
	assert.Zero(t, res.Affected)

	res, err = s.Delete(context.Background(), role, execution.New(
		execution.WithDryRun(),
		execution.WithWhere(query.C("name").Is("admin")),
	))
	require.NoError(t, err)
	assert.Equal(t, []string{`DELETE FROM "roles" WHERE "roles"."name" = $1`}, res.Statements)

	res, err = s.CreateTable(context.Background(), role, dry)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.NotEmpty(t, res.Statements)

	assert.Equal(t, StateClosed, s.State())
	assert.Zero(t, e.pool.acquired.Load())
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestInsert(t *testing.T) {
	records := func(role *schema.Schema) []schema.Record {
		return []schema.Record{
			schema.NewValues(role, map[string]any{"name": "admin"}),
			schema.NewValues(role, map[string]any{"name": "staff"}),
		}
	}
	t.Run("returning", func(t *testing.T) {
		e := newEnv(t, dialect.Postgres)
		role := e.schema(t, "Role")
		e.mock.ExpectBegin()
		e.mock.ExpectQuery(`INSERT INTO "roles"`).
			WithArgs("admin", "staff").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))
		e.mock.ExpectCommit()
		res, err := e.session(t).Insert(context.Background(), role, records(role), nil)
		require.NoError(t, err)
		assert.Equal(t, []any{int64(1), int64(2)}, res.IDs)
		assert.EqualValues(t, 2, res.Affected)
		require.NoError(t, e.mock.ExpectationsWereMet())
	})
	t.Run("last insert id", func(t *testing.T) {
		e := newEnv(t, dialect.MySQL)
		role := e.schema(t, "Role")
		e.mock.ExpectBegin()
		e.mock.ExpectExec("INSERT INTO `roles`").
			WithArgs("admin", "staff").
			WillReturnResult(sqlmock.NewResult(10, 2))
		e.mock.ExpectQuery(`SELECT LAST_INSERT_ID\(\)`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))
		e.mock.ExpectCommit()
		res, err := e.session(t).Insert(context.Background(), role, records(role), nil)
		require.NoError(t, err)
		assert.Equal(t, []any{int64(10), int64(11)}, res.IDs)
		require.NoError(t, e.mock.ExpectationsWereMet())
	})
	t.Run("chunks", func(t *testing.T) {
		e := newEnv(t, dialect.MySQL)
		role := e.schema(t, "Role")
		e.mock.ExpectBegin()
		e.mock.ExpectExec("INSERT INTO `roles`").
			WithArgs("admin", "staff").
			WillReturnResult(sqlmock.NewResult(10, 2))
		e.mock.ExpectQuery(`SELECT LAST_INSERT_ID\(\)`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))
		e.mock.ExpectExec("INSERT INTO `roles`").
			WithArgs("guest").
			WillReturnResult(sqlmock.NewResult(20, 1))
		e.mock.ExpectQuery(`SELECT LAST_INSERT_ID\(\)`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(20)))
		e.mock.ExpectCommit()
		res, err := e.session(t).Insert(context.Background(), role,
			append(records(role), schema.NewValues(role, map[string]any{"name": "guest"})),
			execution.New(execution.WithBatchSize(2)))
		require.NoError(t, err)
		assert.Equal(t, []any{int64(10), int64(11), int64(20)}, res.IDs)
		assert.EqualValues(t, 3, res.Affected)
		require.NoError(t, e.mock.ExpectationsWereMet())
	})
	t.Run("explicit ids", func(t *testing.T) {
		e := newEnv(t, dialect.Postgres)
		role := e.schema(t, "Role")
		e.mock.ExpectBegin()
		e.mock.ExpectExec(`INSERT INTO "roles" \("id", "name"\)`).
			WithArgs(7, "admin").
			WillReturnResult(sqlmock.NewResult(0, 1))
		e.mock.ExpectCommit()
		res, err := e.session(t).Insert(context.Background(), role, []schema.Record{
			schema.NewValues(role, map[string]any{"id": 7, "name": "admin"}),
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, []any{7}, res.IDs)
		require.NoError(t, e.mock.ExpectationsWereMet())
	})
}

func TestConstraintRollback(t *testing.T) {
	e := newEnv(t, dialect.Postgres, WithRetries(3))
	role := e.schema(t, "Role")
	e.mock.ExpectBegin()
	e.mock.ExpectQuery(`INSERT INTO "roles"`).
		WillReturnError(&pq.Error{Code: "23505", Detail: "Key (name)=(admin) already exists."})
	e.mock.ExpectRollback()

	_, err := e.session(t).Insert(context.Background(), role, []schema.Record{
		schema.NewValues(role, map[string]any{"name": "admin"}),
	}, nil)
	require.Error(t, err)
	assert.True(t, orbql.IsDuplicateEntry(err))
	var dup *orbql.DuplicateEntryError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "name", dup.Field)
	assert.Equal(t, "admin", dup.Value)
	assert.EqualValues(t, 1, e.pool.acquired.Load(), "constraint errors are not retried")
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestRetry(t *testing.T) {
	t.Run("reconnect", func(t *testing.T) {
		e := newEnv(t, dialect.Postgres, WithRetries(3))
		e.mock.ExpectQuery(selectRoles).WillReturnError(&pq.Error{Code: "08006"})
		e.mock.ExpectQuery(selectRoles).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "admin"))
		res, err := e.session(t).Select(context.Background(), e.schema(t, "Role"), byName("admin"))
		require.NoError(t, err)
		assert.Len(t, res.Records, 1)
		assert.EqualValues(t, 2, e.pool.acquired.Load(), "exactly one reconnect")
		require.NoError(t, e.mock.ExpectationsWereMet())
	})
	t.Run("reconnect fails", func(t *testing.T) {
		e := newEnv(t, dialect.Postgres, WithRetries(3))
		e.pool.failAfter = 1
		e.mock.ExpectQuery(selectRoles).WillReturnError(&pq.Error{Code: "08006"})
		_, err := e.session(t).Select(context.Background(), e.schema(t, "Role"), byName("admin"))
		require.Error(t, err)
		assert.True(t, orbql.IsConnectionFailed(err))
		assert.EqualValues(t, 3, e.pool.acquired.Load(), "one connection per attempt")
		require.NoError(t, e.mock.ExpectationsWereMet())
	})
	t.Run("single attempt", func(t *testing.T) {
		e := newEnv(t, dialect.Postgres, WithRetries(1))
		e.mock.ExpectQuery(selectRoles).WillReturnError(&pq.Error{Code: "08006"})
		_, err := e.session(t).Select(context.Background(), e.schema(t, "Role"), byName("admin"))
		require.Error(t, err)
		assert.True(t, orbql.IsConnectionLost(err))
		assert.EqualValues(t, 1, e.pool.acquired.Load())
		require.NoError(t, e.mock.ExpectationsWereMet())
	})
	t.Run("retries exhausted", func(t *testing.T) {
		e := newEnv(t, dialect.Postgres, WithRetries(2))
		e.mock.ExpectQuery(selectRoles).WillReturnError(&pq.Error{Code: "08006"})
		e.mock.ExpectQuery(selectRoles).WillReturnError(&pq.Error{Code: "57P01"})
		_, err := e.session(t).Select(context.Background(), e.schema(t, "Role"), byName("admin"))
		require.Error(t, err)
		assert.True(t, orbql.IsConnectionLost(err))
		require.NoError(t, e.mock.ExpectationsWereMet())
	})
	t.Run("first connect", func(t *testing.T) {
		e := newEnv(t, dialect.Postgres, WithRetries(3))
		e.pool.failAfter = 0
		_, err := e.session(t).Select(context.Background(), e.schema(t, "Role"), byName("admin"))
		require.Error(t, err)
		assert.True(t, orbql.IsConnectionFailed(err))
		assert.EqualValues(t, 1, e.pool.acquired.Load())
	})
	t.Run("other errors", func(t *testing.T) {
		e := newEnv(t, dialect.Postgres, WithRetries(3))
		e.mock.ExpectQuery(selectRoles).WillReturnError(errors.New("syntax error at or near"))
		_, err := e.session(t).Select(context.Background(), e.schema(t, "Role"), byName("admin"))
		var failed *orbql.QueryFailedError
		require.ErrorAs(t, err, &failed)
		assert.Contains(t, failed.Statement, `FROM "roles"`)
		assert.Equal(t, map[string]any{"name_1": "admin"}, failed.Params)
		assert.EqualValues(t, 1, e.pool.acquired.Load())
		require.NoError(t, e.mock.ExpectationsWereMet())
	})
}

func TestInterrupt(t *testing.T) {
	e := newEnv(t, dialect.Postgres)
	s := e.session(t)
	role := e.schema(t, "Role")
	e.mock.ExpectQuery(selectRoles).
		WillDelayFor(10 * time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	done := make(chan error, 1)
	go func() {
		_, err := s.Select(context.Background(), role, byName("admin"))
		done <- err
	}()
	require.Eventually(t, func() bool { return e.m.Interrupt(s.ID()) }, 2*time.Second, time.Millisecond)
	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, orbql.IsInterrupted(err), "unexpected error %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("interrupted call did not return")
	}
	assert.Equal(t, StateOpen, s.State())
	assert.False(t, e.m.Interrupt(s.ID()), "idle sessions have nothing to interrupt")
	assert.False(t, e.m.Interrupt("unknown"))
}

func TestStatementTimeout(t *testing.T) {
	e := newEnv(t, dialect.Postgres, WithStatementTimeout(20*time.Millisecond), WithRetries(3))
	e.mock.ExpectQuery(selectRoles).
		WillDelayFor(time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err := e.session(t).Select(context.Background(), e.schema(t, "Role"), byName("admin"))
	require.Error(t, err)
	assert.True(t, orbql.IsQueryTimeout(err), "unexpected error %v", err)
	assert.False(t, orbql.IsQueryFailed(err))
	assert.EqualValues(t, 1, e.pool.acquired.Load(), "timeouts are not retried")
}

func TestDelete(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		e := newEnv(t, dialect.Postgres)
		e.mock.ExpectBegin()
		e.mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "roles" WHERE "roles"."name" = $1`)).
			WithArgs("admin").
			WillReturnResult(sqlmock.NewResult(0, 3))
		e.mock.ExpectCommit()
		res, err := e.session(t).Delete(context.Background(), e.schema(t, "Role"), byName("admin"))
		require.NoError(t, err)
		assert.EqualValues(t, 3, res.Affected)
		require.NoError(t, e.mock.ExpectationsWereMet())
	})
	t.Run("lookup", func(t *testing.T) {
		e := newEnv(t, dialect.Postgres)
		category := e.schema(t, "Category")
		e.mock.ExpectBegin()
		e.mock.ExpectQuery(`SELECT "categories"\."id" FROM "categories"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))
		e.mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "categories_i18n" WHERE "categories_id" IN ($1, $2)`)).
			WithArgs(int64(1), int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 4))
		e.mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "categories" WHERE "id" IN ($1, $2)`)).
			WithArgs(int64(1), int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		e.mock.ExpectCommit()
		res, err := e.session(t).Delete(context.Background(), category,
			execution.New(execution.WithWhere(query.C("label").Is("X"))))
		require.NoError(t, err)
		assert.EqualValues(t, 2, res.Affected)
		require.NoError(t, e.mock.ExpectationsWereMet())
	})
	t.Run("lookup without match", func(t *testing.T) {
		e := newEnv(t, dialect.Postgres)
		e.mock.ExpectBegin()
		e.mock.ExpectQuery(`SELECT "categories"\."id" FROM "categories"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		e.mock.ExpectCommit()
		res, err := e.session(t).Delete(context.Background(), e.schema(t, "Category"),
			execution.New(execution.WithWhere(query.C("label").Is("X"))))
		require.NoError(t, err)
		assert.Zero(t, res.Affected)
		require.NoError(t, e.mock.ExpectationsWereMet())
	})
	t.Run("refused", func(t *testing.T) {
		e := newEnv(t, dialect.Postgres)
		_, err := e.session(t).Delete(context.Background(), e.schema(t, "Role"), nil)
		assert.True(t, orbql.IsQueryInvalid(err))
		assert.Zero(t, e.pool.acquired.Load())
	})
}

func TestUpdate(t *testing.T) {
	e := newEnv(t, dialect.Postgres)
	role := e.schema(t, "Role")
	r := &schema.Values{Of: role, ID: 1, Data: map[string]any{"name": "owner"}, Changed: []string{"name"}}
	e.mock.ExpectBegin()
	e.mock.ExpectExec(`UPDATE "roles" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	e.mock.ExpectCommit()
	res, err := e.session(t).Update(context.Background(), []schema.Record{r}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Affected)
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestCreateIndex(t *testing.T) {
	e := newEnv(t, dialect.MySQL)
	role := e.schema(t, "Role")
	s := e.session(t)

	e.mock.ExpectQuery("SELECT COUNT\\(\\*\\) AS `count` FROM information_schema.statistics").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	_, err := s.CreateIndex(context.Background(), role, role.Indexes[0], true, nil)
	require.NoError(t, err)
	require.NoError(t, e.mock.ExpectationsWereMet(), "an existing index is kept")

	e.mock.ExpectQuery("SELECT COUNT\\(\\*\\) AS `count` FROM information_schema.statistics").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
	e.mock.ExpectExec("ALTER TABLE `roles` ADD INDEX `roles_name_idx` \\(`name`\\)").
		WillReturnResult(sqlmock.NewResult(0, 0))
	_, err = s.CreateIndex(context.Background(), role, role.Indexes[0], true, nil)
	require.NoError(t, err)
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestCreateNamespace(t *testing.T) {
	e := newEnv(t, dialect.Postgres)
	e.mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "tenant"`).WillReturnResult(sqlmock.NewResult(0, 0))
	_, err := e.session(t).CreateNamespace(context.Background(), "tenant", nil)
	require.NoError(t, err)
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestSessionVars(t *testing.T) {
	e := newEnv(t, dialect.Postgres, WithSessionVar("search_path", "tenant"))
	e.mock.ExpectExec("SET search_path = 'tenant'").WillReturnResult(sqlmock.NewResult(0, 0))
	e.mock.ExpectQuery(selectRoles).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err := e.session(t).Select(context.Background(), e.schema(t, "Role"), byName("admin"))
	require.NoError(t, err)
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestSessions(t *testing.T) {
	e := newEnv(t, dialect.Postgres)
	a, err := e.m.Session("worker-1")
	require.NoError(t, err)
	b, err := e.m.Session("worker-1")
	require.NoError(t, err)
	assert.Same(t, a, b)
	c, err := e.m.NewSession()
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), c.ID())
	assert.Equal(t, 2, e.m.Sessions())

	e.mock.ExpectQuery(selectRoles).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = a.Select(context.Background(), e.schema(t, "Role"), byName("admin"))
	require.NoError(t, err)
	assert.Equal(t, StateOpen, a.State())

	require.NoError(t, e.m.Release("worker-1"))
	assert.Equal(t, StateClosed, a.State())
	assert.Equal(t, 1, e.m.Sessions())
	_, err = a.Select(context.Background(), e.schema(t, "Role"), byName("admin"))
	assert.ErrorIs(t, err, ErrReleased)
	require.NoError(t, e.m.Release("unknown"))

	e.mock.ExpectClose()
	require.NoError(t, e.m.Close())
	_, err = e.m.Session("worker-2")
	assert.ErrorIs(t, err, ErrClosed)
	require.NoError(t, e.m.Close())
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestCloseErrors(t *testing.T) {
	e := newEnv(t, dialect.Postgres)
	role := e.schema(t, "Role")
	for range 2 {
		s := e.session(t)
		e.mock.ExpectQuery(selectRoles).WillReturnRows(sqlmock.NewRows([]string{"id"}))
		_, err := s.Select(context.Background(), role, byName("admin"))
		require.NoError(t, err)
		// Hand the connection back behind the session.
		require.NoError(t, s.conn.Close())
	}
	e.mock.ExpectClose()
	err := e.m.Close()
	var agg *orbql.AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Errors, 2, "one error per session")
	for _, err := range agg.Errors {
		assert.ErrorIs(t, err, stdsql.ErrConnDone)
		assert.Contains(t, err.Error(), "release session")
	}
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestMaxSessions(t *testing.T) {
	e := newEnv(t, dialect.Postgres, WithMaxSessions(1))
	role := e.schema(t, "Role")
	a, b := e.session(t), e.session(t)

	e.mock.ExpectQuery(selectRoles).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err := a.Select(context.Background(), role, byName("admin"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = b.Select(ctx, role, byName("admin"))
	assert.True(t, orbql.IsConnectionFailed(err), "unexpected error %v", err)

	require.NoError(t, a.Close())
	e.mock.ExpectQuery(selectRoles).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = b.Select(context.Background(), role, byName("admin"))
	require.NoError(t, err)
	require.NoError(t, e.mock.ExpectationsWereMet())
}

func TestNew(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := sql.OpenDB(dialect.Postgres, db)
	reg := testRegistry(t)

	_, err = New(nil, reg)
	require.Error(t, err)
	_, err = New(drv, reg, WithRetries(-1))
	require.Error(t, err)
	cfg := Defaults()
	cfg.Dialect = dialect.MySQL
	_, err = New(drv, reg, WithConfig(cfg))
	require.Error(t, err)
	_, err = New(drv, nil)
	require.Error(t, err)

	m, err := New(drv, reg)
	require.NoError(t, err)
	assert.Equal(t, dialect.Postgres, m.Dialect())
	assert.Equal(t, dialect.Postgres, m.Compiler().Dialect())
	assert.Same(t, reg, m.Registry())
}

func TestTableLocks(t *testing.T) {
	l := newTableLocks()
	unlock := l.Lock("users", "roles", "users")

	acquired := make(chan struct{})
	go func() {
		release := l.Lock("roles")
		close(acquired)
		release()
	}()
	select {
	case <-acquired:
		t.Fatal("writers of the same table must not interleave")
	case <-time.After(50 * time.Millisecond):
	}

	other := make(chan struct{})
	go func() {
		release := l.Lock("groups")
		close(other)
		release()
	}()
	select {
	case <-other:
	case <-time.After(time.Second):
		t.Fatal("writers of other tables must not wait")
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock was not released")
	}
	l.Lock()()
}

// levels records the levels of the handled records.
type levels struct {
	got []slog.Level
}

func (h *levels) Enabled(context.Context, slog.Level) bool { return true }

func (h *levels) Handle(_ context.Context, r slog.Record) error {
	h.got = append(h.got, r.Level)
	return nil
}

func (h *levels) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *levels) WithGroup(string) slog.Handler { return h }

func TestLogLevels(t *testing.T) {
	h := &levels{}
	r := &runner{
		s:   &Session{id: "s", m: &Manager{log: slog.New(h)}},
		ctx: context.Background(),
	}
	stmt := &sql.Statement{Text: "SELECT 1"}
	r.log(stmt, time.Millisecond, nil)
	r.log(stmt, 4*time.Second, nil)
	r.log(stmt, 7*time.Second, errors.New("slow"))
	assert.Equal(t, []slog.Level{slog.LevelDebug, slog.LevelWarn, slog.LevelError}, h.got)
}

func TestDecode(t *testing.T) {
	v, err := decodeJSON(`{"id":1,"name":"admin"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": float64(1), "name": "admin"}, v)
	v, err = decodeJSON(nil)
	require.NoError(t, err)
	assert.Nil(t, v)
	_, err = decodeJSON("{")
	require.Error(t, err)

	tests := []struct {
		in   any
		want int64
	}{
		{int64(3), 3},
		{7, 7},
		{int32(2), 2},
		{uint64(9), 9},
		{float64(4), 4},
		{"12", 12},
	}
	for _, tt := range tests {
		got, err := toInt64(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err = toInt64(true)
	require.Error(t, err)
}
