package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/orbql"
	"github.com/syssam/orbql/dialect"
)

func TestTranslateError(t *testing.T) {
	stmt := &Statement{Text: `INSERT INTO "users" ("email") VALUES ($1)`, Params: map[string]any{"email_1": "a@b.c"}}
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"nil", nil, func(err error) bool { return err == nil }},
		{"deadline", fmt.Errorf("exec: %w", context.DeadlineExceeded), orbql.IsQueryTimeout},
		{"canceled", context.Canceled, orbql.IsInterrupted},
		{"bad conn", driver.ErrBadConn, orbql.IsConnectionLost},
		{"mysql invalid conn", mysql.ErrInvalidConn, orbql.IsConnectionLost},
		{"pq unique", &pq.Error{Code: "23505", Detail: "Key (email)=(a@b.c) already exists."}, orbql.IsDuplicateEntry},
		{"pq foreign key", &pq.Error{Code: "23503"}, orbql.IsInvalidReference},
		{"pq canceled", &pq.Error{Code: "57014"}, orbql.IsQueryTimeout},
		{"pq connection", &pq.Error{Code: "08006"}, orbql.IsConnectionLost},
		{"pq shutdown", &pq.Error{Code: "57P01"}, orbql.IsConnectionLost},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'a@b.c' for key 'users.email'"}, orbql.IsDuplicateEntry},
		{"mysql parent row", &mysql.MySQLError{Number: 1451}, orbql.IsCannotDelete},
		{"mysql child row", &mysql.MySQLError{Number: 1452}, orbql.IsInvalidReference},
		{"mysql timeout", &mysql.MySQLError{Number: 3024}, orbql.IsQueryTimeout},
		{"mysql interrupted", &mysql.MySQLError{Number: 1317}, orbql.IsInterrupted},
		{"mysql gone", &mysql.MySQLError{Number: 2006}, orbql.IsConnectionLost},
		{"sqlite message", errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"), orbql.IsDuplicateEntry},
		{"sqlite foreign key message", errors.New("FOREIGN KEY constraint failed"), orbql.IsInvalidReference},
		{"broken pipe", errors.New("write tcp: broken pipe"), orbql.IsConnectionLost},
		{"other", errors.New("syntax error"), orbql.IsQueryFailed},
		{"classified", orbql.NewQueryInvalidError("bad"), orbql.IsQueryInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := TranslateError(tt.err, stmt)
			assert.True(t, tt.check(err), "unexpected error %v", err)
			if tt.err != nil && !errors.Is(tt.err, orbql.ErrQueryInvalid) {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestTranslateForeignKey(t *testing.T) {
	var (
		insert = &Statement{Text: `INSERT INTO "user_roles" ("user_id") VALUES ($1)`}
		update = &Statement{Text: "UPDATE `posts` SET `author_id` = ?"}
		remove = &Statement{Text: `DELETE FROM "users" WHERE "id" IN ($1)`}
	)
	tests := []struct {
		name      string
		err       error
		stmt      *Statement
		cannotDel bool
	}{
		{"pq insert", &pq.Error{Code: "23503"}, insert, false},
		{"pq update", &pq.Error{Code: "23503"}, update, false},
		{"pq delete", &pq.Error{Code: "23503"}, remove, true},
		{"mysql child row", &mysql.MySQLError{Number: 1452}, insert, false},
		{"mysql parent row", &mysql.MySQLError{Number: 1451}, remove, true},
		{"message on insert", errors.New("FOREIGN KEY constraint failed"), insert, false},
		{"message on delete", errors.New("FOREIGN KEY constraint failed"), &Statement{Text: "  delete from `users`"}, true},
		{"no statement", errors.New(`violates foreign key constraint "fk"`), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := TranslateError(tt.err, tt.stmt)
			assert.Equal(t, tt.cannotDel, orbql.IsCannotDelete(err), "unexpected error %v", err)
			assert.Equal(t, !tt.cannotDel, orbql.IsInvalidReference(err), "unexpected error %v", err)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestTranslateErrorDetails(t *testing.T) {
	stmt := &Statement{Text: `SELECT 1`, Params: map[string]any{"a_1": 1}}

	var dup *orbql.DuplicateEntryError
	require.ErrorAs(t, TranslateError(&pq.Error{Code: "23505", Detail: "Key (email)=(a@b.c) already exists."}, stmt), &dup)
	assert.Equal(t, "email", dup.Field)
	assert.Equal(t, "a@b.c", dup.Value)

	require.ErrorAs(t, TranslateError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'users.users_email_idx'"}, stmt), &dup)
	assert.Equal(t, "users_email_idx", dup.Field)
	assert.Equal(t, "x", dup.Value)

	var failed *orbql.QueryFailedError
	require.ErrorAs(t, TranslateError(errors.New("syntax error"), stmt), &failed)
	assert.Equal(t, "SELECT 1", failed.Statement)
	assert.Equal(t, map[string]any{"a_1": 1}, failed.Params)

	var timeout *orbql.QueryTimeoutError
	require.ErrorAs(t, TranslateError(context.DeadlineExceeded, stmt), &timeout)
	assert.Equal(t, "SELECT 1", timeout.Statement)

	assert.True(t, orbql.IsQueryFailed(TranslateError(errors.New("x"), nil)))
}

func TestDuplicateParsers(t *testing.T) {
	field, value := pgDuplicate("Key (lower(email))=(a@b.c) already exists.")
	assert.Equal(t, "lower(email)", field)
	assert.Equal(t, "a@b.c", value)
	field, value = pgDuplicate("unexpected")
	assert.Empty(t, field)
	assert.Empty(t, value)

	field, value = mysqlDuplicate("Duplicate entry 'it's' for key 'email'")
	assert.Equal(t, "email", field)
	assert.Equal(t, "it's", value)

	assert.Equal(t, "email, name", sqliteDuplicate("UNIQUE constraint failed: users.email, users.name"))
	assert.Empty(t, sqliteDuplicate("other"))
}

func TestStatementArgs(t *testing.T) {
	f := Join(" ", Param("a", 1), Param("a", 1), Param("b", 2))
	tests := []struct {
		dialect string
		text    string
		args    []any
	}{
		{dialect.Postgres, "$1 $1 $2", []any{1, 2}},
		{dialect.MySQL, "? ? ?", []any{1, 1, 2}},
		{dialect.SQLite, ":a :a :b", []any{sql.Named("a", 1), sql.Named("b", 2)}},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			stmt := Render(tt.dialect, f)
			assert.Equal(t, tt.text, stmt.Text)
			assert.Equal(t, tt.args, stmt.Args())
			assert.Equal(t, []string{"a", "a", "b"}, stmt.Names())
		})
	}
	assert.Equal(t, "`a``b`.`c`", Render(dialect.MySQL, Ident("a`b", "c")).Text)
	assert.Equal(t, `"a""b"`, Render(dialect.Postgres, Ident("a\"b")).Text)
	assert.Equal(t, `'it''s'`, Render(dialect.SQLite, Literal("it's")).Text)
}

func TestIdentity(t *testing.T) {
	assert.Equal(t, []int64{10, 11, 12}, IdentityFirst.IDs(10, 3))
	assert.Equal(t, []int64{10, 11, 12}, IdentityLast.IDs(12, 3))
	assert.Empty(t, IdentityLast.IDs(12, 0))
}

func TestBatch(t *testing.T) {
	b := &Batch{}
	assert.True(t, b.Empty())
	b.Add(&Statement{}, &Statement{Text: "SELECT 1"}, nil)
	require.Len(t, b.Statements, 1)
	b.Add(&Statement{Text: "SELECT 2"})
	assert.Equal(t, "SELECT 1;\nSELECT 2", b.Text())
	b.Write("users", "users_i18n", "users")
	assert.Equal(t, []string{"users", "users_i18n"}, b.Tables)
	assert.False(t, b.Empty())
	assert.True(t, (*Batch)(nil).Empty())
}
