package manager

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/syssam/orbql"
	"github.com/syssam/orbql/dialect"
	"github.com/syssam/orbql/dialect/sql"
)

// Statement durations above which executions are logged as warnings and
// errors.
const (
	warnAfter  = 3 * time.Second
	errorAfter = 6 * time.Second
)

// runner executes the statements of one call of a session.
type runner struct {
	s   *Session
	ctx context.Context
	drv dialect.Driver
	ex  dialect.ExecQuerier
	// inTx is set on the runners of an open transaction.
	inTx bool
}

// tx runs fn in a transaction. The transaction is rolled back when fn
// fails. A runner of an open transaction runs fn in it.
func (r *runner) tx(fn func(*runner) error) error {
	if r.inTx {
		return fn(r)
	}
	tx, err := r.drv.Tx(r.ctx)
	if err != nil {
		return r.s.fail(r.ctx, err, nil)
	}
	if err := fn(&runner{s: r.s, ctx: r.ctx, drv: r.drv, ex: tx, inTx: true}); err != nil {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, stdsql.ErrTxDone) {
			err = errors.Join(err, &orbql.RollbackError{Err: rerr})
		}
		r.s.m.log.LogAttrs(r.ctx, slog.LevelDebug, "transaction rolled back",
			slog.String("session", string(r.s.id)), slog.Any("error", err))
		return err
	}
	if err := tx.Commit(); err != nil {
		return r.s.fail(r.ctx, err, nil)
	}
	return nil
}

// exec executes a statement that returns no rows.
func (r *runner) exec(stmt *sql.Statement) (int64, error) {
	var res sql.Result
	start := time.Now()
	err := r.ex.Exec(r.ctx, stmt.Text, stmt.Args(), &res)
	r.log(stmt, time.Since(start), err)
	if err != nil {
		return 0, r.s.fail(r.ctx, err, stmt)
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Not every driver reports affected rows.
		return 0, nil
	}
	return n, nil
}

// query executes stmt and scans its rows into records. The columns listed
// in stmt.JSON are decoded.
func (r *runner) query(stmt *sql.Statement) ([]map[string]any, error) {
	rows := &sql.Rows{}
	start := time.Now()
	err := r.ex.Query(r.ctx, stmt.Text, stmt.Args(), rows)
	if err != nil {
		r.log(stmt, time.Since(start), err)
		return nil, r.s.fail(r.ctx, err, stmt)
	}
	records, err := scanRecords(rows, stmt.JSON)
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	r.log(stmt, time.Since(start), err)
	if err != nil {
		return nil, r.s.fail(r.ctx, err, stmt)
	}
	return records, nil
}

// column executes stmt and returns the values of its first column.
func (r *runner) column(stmt *sql.Statement) ([]any, error) {
	rows := &sql.Rows{}
	start := time.Now()
	err := r.ex.Query(r.ctx, stmt.Text, stmt.Args(), rows)
	if err != nil {
		r.log(stmt, time.Since(start), err)
		return nil, r.s.fail(r.ctx, err, stmt)
	}
	var values []any
	for rows.Next() {
		var v any
		if err = rows.Scan(&v); err != nil {
			break
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		values = append(values, v)
	}
	if err == nil {
		err = rows.Err()
	}
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	r.log(stmt, time.Since(start), err)
	if err != nil {
		return nil, r.s.fail(r.ctx, err, stmt)
	}
	return values, nil
}

// count executes a statement returning a single count.
func (r *runner) count(stmt *sql.Statement) (int64, error) {
	values, err := r.column(stmt)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	return toInt64(values[0])
}

// batch executes the statements of b in order. It returns the values of
// the statements returning rows and the rows affected by the others.
func (r *runner) batch(b *sql.Batch) (values []any, affected []int64, err error) {
	for _, stmt := range b.Statements {
		if stmt.Rows {
			vs, err := r.column(stmt)
			if err != nil {
				return nil, nil, err
			}
			values = append(values, vs...)
			continue
		}
		n, err := r.exec(stmt)
		if err != nil {
			return nil, nil, err
		}
		affected = append(affected, n)
	}
	return values, affected, nil
}

// log reports the execution of stmt at a level depending on its duration.
func (r *runner) log(stmt *sql.Statement, d time.Duration, err error) {
	level := slog.LevelDebug
	switch {
	case d >= errorAfter:
		level = slog.LevelError
	case d >= warnAfter:
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("session", string(r.s.id)),
		slog.String("statement", stmt.Text),
		slog.Duration("duration", d),
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	r.s.m.log.LogAttrs(r.ctx, level, "statement executed", attrs...)
}

func scanRecords(rows *sql.Rows, jsonColumns []string) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var records []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		record := make(map[string]any, len(columns))
		for i, name := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if slices.Contains(jsonColumns, name) {
				if v, err = decodeJSON(v); err != nil {
					return nil, fmt.Errorf("manager: decode column %s: %w", name, err)
				}
			}
			record[name] = v
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func decodeJSON(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toInt64(v any) (int64, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("manager: unexpected integer value %T", v)
	}
}
