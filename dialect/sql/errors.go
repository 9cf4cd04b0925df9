package sql

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/syssam/orbql"
)

// PostgreSQL SQLSTATE codes.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgQueryCanceled       = "57014"
	pgConnectionClass     = "08"
	pgAdminShutdown       = "57P01"
)

// MySQL error numbers.
const (
	mysqlDuplicateEntry   = 1062
	mysqlForeignKeyParent = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild  = 1452 // Cannot add or update a child row
	mysqlQueryInterrupted = 1317
	mysqlQueryTimeout     = 3024
	mysqlServerGone       = 2006
	mysqlServerLost       = 2013
)

// TranslateError classifies a driver error raised by stmt into the typed
// errors of the orbql package. Errors that are already classified are
// returned as is.
func TranslateError(err error, stmt *Statement) error {
	if err == nil || classified(err) {
		return err
	}
	var text string
	if stmt != nil {
		text = stmt.Text
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &orbql.QueryTimeoutError{Statement: text, Err: err}
	case errors.Is(err, context.Canceled):
		return &orbql.InterruptedError{Err: err}
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, mysql.ErrInvalidConn):
		return &orbql.ConnectionLostError{Err: err}
	}
	if e, ok := asError[*pq.Error](err); ok {
		switch {
		case e.Code == pgUniqueViolation:
			field, value := pgDuplicate(e.Detail)
			return &orbql.DuplicateEntryError{Field: field, Value: value, Err: err}
		case e.Code == pgForeignKeyViolation:
			return foreignKeyError(err, text)
		case e.Code == pgQueryCanceled:
			return &orbql.QueryTimeoutError{Statement: text, Err: err}
		case e.Code == pgAdminShutdown, string(e.Code.Class()) == pgConnectionClass:
			return &orbql.ConnectionLostError{Err: err}
		}
	}
	if e, ok := asError[*mysql.MySQLError](err); ok {
		switch e.Number {
		case mysqlDuplicateEntry:
			field, value := mysqlDuplicate(e.Message)
			return &orbql.DuplicateEntryError{Field: field, Value: value, Err: err}
		case mysqlForeignKeyParent:
			return &orbql.CannotDeleteError{Err: err}
		case mysqlForeignKeyChild:
			return &orbql.InvalidReferenceError{Err: err}
		case mysqlQueryTimeout:
			return &orbql.QueryTimeoutError{Statement: text, Err: err}
		case mysqlQueryInterrupted:
			return &orbql.InterruptedError{Err: err}
		case mysqlServerGone, mysqlServerLost:
			return &orbql.ConnectionLostError{Err: err}
		}
	}
	if e, ok := asError[*sqlite.Error](err); ok {
		switch e.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return &orbql.DuplicateEntryError{Field: sqliteDuplicate(e.Error()), Err: err}
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return foreignKeyError(err, text)
		case sqlite3.SQLITE_INTERRUPT:
			return &orbql.InterruptedError{Err: err}
		}
	}
	// Drivers wrapped by proxies may only keep the message.
	msg := err.Error()
	switch {
	case containsAny(msg, "Error 1062", "violates unique constraint", "UNIQUE constraint failed"):
		return &orbql.DuplicateEntryError{Err: err}
	case containsAny(msg, "Error 1451"):
		return &orbql.CannotDeleteError{Err: err}
	case containsAny(msg, "Error 1452"):
		return &orbql.InvalidReferenceError{Err: err}
	case containsAny(msg, "violates foreign key constraint", "FOREIGN KEY constraint failed"):
		return foreignKeyError(err, text)
	case containsAny(msg, "broken pipe", "connection reset by peer", "bad connection"):
		return &orbql.ConnectionLostError{Err: err}
	}
	qe := &orbql.QueryFailedError{Err: err}
	if stmt != nil {
		qe.Statement, qe.Params = stmt.Text, stmt.Params
	}
	return qe
}

// foreignKeyError classifies a foreign key violation by the statement
// that raised it: removals hit rows still referenced, other writes
// reference missing rows.
func foreignKeyError(err error, text string) error {
	if isDelete(text) {
		return &orbql.CannotDeleteError{Err: err}
	}
	return &orbql.InvalidReferenceError{Err: err}
}

func isDelete(text string) bool {
	text = strings.TrimSpace(text)
	return len(text) >= 6 && strings.EqualFold(text[:6], "DELETE")
}

// classified reports if err already carries an orbql error.
func classified(err error) bool {
	for _, target := range []error{
		orbql.ErrConnectionLost,
		orbql.ErrConnectionFailed,
		orbql.ErrInterrupted,
		orbql.ErrQueryTimeout,
		orbql.ErrQueryInvalid,
		orbql.ErrQueryIsNull,
		orbql.ErrColumnNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return orbql.IsDuplicateEntry(err) || orbql.IsCannotDelete(err) || orbql.IsInvalidReference(err) ||
		orbql.IsQueryFailed(err) || orbql.IsDatabaseError(err)
}

// pgDuplicate parses `Key (email)=(a@b.c) already exists.`.
func pgDuplicate(detail string) (field, value string) {
	rest, ok := strings.CutPrefix(detail, "Key (")
	if !ok {
		return "", ""
	}
	field, rest, ok = strings.Cut(rest, ")=(")
	if !ok {
		return "", ""
	}
	value, _, _ = strings.Cut(rest, ") already exists")
	return field, value
}

// mysqlDuplicate parses `Duplicate entry 'a@b.c' for key 'users.email'`.
func mysqlDuplicate(msg string) (field, value string) {
	rest, ok := strings.CutPrefix(msg, "Duplicate entry '")
	if !ok {
		return "", ""
	}
	i := strings.LastIndex(rest, "' for key '")
	if i < 0 {
		return "", ""
	}
	value, field = rest[:i], strings.TrimSuffix(rest[i+len("' for key '"):], "'")
	if _, f, ok := strings.Cut(field, "."); ok {
		field = f
	}
	return field, value
}

// sqliteDuplicate parses `UNIQUE constraint failed: users.email`.
func sqliteDuplicate(msg string) string {
	_, cols, ok := strings.Cut(msg, "constraint failed: ")
	if !ok {
		return ""
	}
	cols, _, _ = strings.Cut(cols, " (")
	var fields []string
	for _, c := range strings.Split(cols, ",") {
		if _, f, ok := strings.Cut(strings.TrimSpace(c), "."); ok {
			c = f
		}
		fields = append(fields, strings.TrimSpace(c))
	}
	return strings.Join(fields, ", ")
}

// asError extracts an error of type T from the error chain.
func asError[T error](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
