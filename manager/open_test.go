package manager

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/orbql"
	"github.com/syssam/orbql/dialect"
	"github.com/syssam/orbql/execution"
	"github.com/syssam/orbql/query"
	"github.com/syssam/orbql/schema"
)

func TestParseConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := ParseConfig(nil)
		require.NoError(t, err)
		assert.Equal(t, Defaults(), cfg)
	})
	t.Run("values", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(`
dialect: mysql
dsn: root:pass@tcp(localhost:3306)/app
retries: 5
backoff: 250ms
statement_timeout: 30s
max_sessions: 8
slow_threshold: 1s
session_vars:
  time_zone: "+00:00"
`))
		require.NoError(t, err)
		assert.Equal(t, dialect.MySQL, cfg.Dialect)
		assert.Equal(t, 5, cfg.Retries)
		assert.Equal(t, 250*time.Millisecond, cfg.Backoff)
		assert.Equal(t, 30*time.Second, cfg.StatementTimeout)
		assert.Equal(t, 8, cfg.MaxSessions)
		assert.Equal(t, 2, cfg.MaxIdleConns, "unset keys keep their default")
		assert.Equal(t, time.Second, cfg.SlowThreshold)
		assert.Equal(t, map[string]string{"time_zone": "+00:00"}, cfg.SessionVars)
	})
	tests := []struct {
		name string
		data string
	}{
		{"unknown key", "dialect: postgres\nretry: 3\n"},
		{"unknown dialect", "dialect: oracle\n"},
		{"negative retries", "retries: -1\n"},
		{"negative timeout", "statement_timeout: -1s\n"},
		{"sqlite session vars", "dialect: sqlite\nsession_vars:\n  a: b\n"},
		{"malformed", "retries: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data))
			require.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orbql.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dialect: sqlite\ndsn: file::memory:\n"), 0o600))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, dialect.SQLite, cfg.Dialect)
	assert.Equal(t, "file::memory:", cfg.DSN)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestNormalizeDSN(t *testing.T) {
	dsn, err := normalizeDSN(dialect.MySQL, "root:pass@tcp(localhost:3306)/app")
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")
	_, err = normalizeDSN(dialect.MySQL, "not a dsn")
	require.Error(t, err)

	tests := []struct {
		in, want string
	}{
		{"file:app.db", "file:app.db?_pragma=foreign_keys(1)"},
		{"file:app.db?cache=shared", "file:app.db?cache=shared&_pragma=foreign_keys(1)"},
		{"file:app.db?_pragma=foreign_keys(0)", "file:app.db?_pragma=foreign_keys(0)"},
	}
	for _, tt := range tests {
		dsn, err := normalizeDSN(dialect.SQLite, tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, dsn)
	}
	dsn, err = normalizeDSN(dialect.Postgres, "postgres://localhost/app")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/app", dsn)
}

func TestOpen(t *testing.T) {
	reg := testRegistry(t)
	_, err := Open(Config{Dialect: dialect.SQLite}, reg)
	require.Error(t, err, "missing dsn")

	cfg := Defaults()
	cfg.Dialect = dialect.SQLite
	cfg.DSN = "file:" + filepath.Join(t.TempDir(), "orbql.db")
	m, err := Open(cfg, reg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	s, err := m.Session("main")
	require.NoError(t, err)
	role, err := reg.Lookup("Role")
	require.NoError(t, err)

	_, err = s.CreateTable(ctx, role, nil)
	require.NoError(t, err)
	res, err := s.Insert(ctx, role, []schema.Record{
		schema.NewValues(role, map[string]any{"name": "admin"}),
		schema.NewValues(role, map[string]any{"name": "staff"}),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, res.IDs)

	res, err = s.Select(ctx, role, execution.New(execution.WithWhere(query.C("name").Is("staff"))))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.EqualValues(t, 2, res.Records[0]["id"])
	assert.Equal(t, "staff", res.Records[0]["name"])

	_, err = s.Insert(ctx, role, []schema.Record{
		schema.NewValues(role, map[string]any{"name": "admin"}),
	}, nil)
	assert.True(t, orbql.IsDuplicateEntry(err), "unexpected error %v", err)

	res, err = s.Delete(ctx, role, execution.New(execution.WithWhere(query.C("name").Is("admin"))))
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Affected)
	res, err = s.Count(ctx, role, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Count)
}

func TestOpenInsertChunks(t *testing.T) {
	reg := testRegistry(t)
	cfg := Defaults()
	cfg.Dialect = dialect.SQLite
	cfg.DSN = "file:" + filepath.Join(t.TempDir(), "orbql.db")
	m, err := Open(cfg, reg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	s, err := m.Session("main")
	require.NoError(t, err)
	role, err := reg.Lookup("Role")
	require.NoError(t, err)
	_, err = s.CreateTable(ctx, role, nil)
	require.NoError(t, err)

	const n = 12000
	records := make([]schema.Record, n)
	for i := range records {
		records[i] = schema.NewValues(role, map[string]any{"name": fmt.Sprintf("role-%05d", i)})
	}
	res, err := s.Insert(ctx, role, records, nil)
	require.NoError(t, err)
	require.Len(t, res.IDs, n)
	for i, id := range res.IDs {
		require.EqualValues(t, i+1, id)
	}

	res, err = s.Count(ctx, role, nil)
	require.NoError(t, err)
	assert.EqualValues(t, n, res.Count)
	res, err = s.Select(ctx, role, execution.New(execution.WithWhere(query.C("name").Is("role-11999"))))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.EqualValues(t, n, res.Records[0]["id"])
}
