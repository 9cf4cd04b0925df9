package manager

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/syssam/orbql/dialect/sql"
	"github.com/syssam/orbql/execution"
	"github.com/syssam/orbql/schema"
)

// Result is the outcome of a call. A dry run reports the compiled
// statements and is otherwise the result of a call matching no rows.
type Result struct {
	// DryRun marks results of calls that executed nothing.
	DryRun bool
	// Statements holds the statements of a dry run.
	Statements []string
	// Records holds the selected records.
	Records []map[string]any
	// IDs holds the ids of inserted records, in input order.
	IDs []any
	// Count is the number of counted records.
	Count int64
	// Affected is the number of records changed by a mutation.
	Affected int64
}

func (s *Session) dryRun(ctx context.Context, ectx *execution.Context, stmts ...*sql.Statement) (*Result, bool) {
	if ectx == nil || !ectx.DryRun {
		return nil, false
	}
	res := &Result{DryRun: true}
	for _, stmt := range stmts {
		if stmt.Empty() {
			continue
		}
		res.Statements = append(res.Statements, stmt.Text)
		s.m.log.LogAttrs(ctx, slog.LevelInfo, "dry run",
			slog.String("session", string(s.id)), slog.String("statement", stmt.Text))
	}
	return res, true
}

// batchStatements lists the statements of b as they are run.
func batchStatements(b *sql.Batch) []*sql.Statement {
	var stmts []*sql.Statement
	if b.Guard != nil {
		stmts = append(stmts, b.Guard)
	}
	if b.Lookup != nil {
		stmts = append(stmts, b.Lookup)
	}
	return append(stmts, b.Statements...)
}

// ops runs record operations through run, either on the session
// connection or in an open transaction.
type ops struct {
	s   *Session
	run func(ctx context.Context, tables []string, fn func(*runner) error) error
}

func (s *Session) ops() ops { return ops{s: s, run: s.run} }

// Select returns the records of sc matching the context.
func (s *Session) Select(ctx context.Context, sc *schema.Schema, ectx *execution.Context) (*Result, error) {
	return s.ops().Select(ctx, sc, ectx)
}

// Count counts the records of sc matching the context.
func (s *Session) Count(ctx context.Context, sc *schema.Schema, ectx *execution.Context) (*Result, error) {
	return s.ops().Count(ctx, sc, ectx)
}

// Exists reports if a record of sc matches the context.
func (s *Session) Exists(ctx context.Context, sc *schema.Schema, ectx *execution.Context) (bool, error) {
	return s.ops().Exists(ctx, sc, ectx)
}

// Insert stores records of sc in one transaction and returns their ids.
func (s *Session) Insert(ctx context.Context, sc *schema.Schema, records []schema.Record, ectx *execution.Context) (*Result, error) {
	return s.ops().Insert(ctx, sc, records, ectx)
}

// Update stores the changed columns of records in one transaction.
func (s *Session) Update(ctx context.Context, records []schema.Record, ectx *execution.Context) (*Result, error) {
	return s.ops().Update(ctx, records, ectx)
}

// Delete removes the records of sc matching the context filter.
func (s *Session) Delete(ctx context.Context, sc *schema.Schema, ectx *execution.Context) (*Result, error) {
	return s.ops().Delete(ctx, sc, ectx)
}

// DeleteIDs removes the records of sc with the given ids.
func (s *Session) DeleteIDs(ctx context.Context, sc *schema.Schema, ids []any, ectx *execution.Context) (*Result, error) {
	return s.ops().DeleteIDs(ctx, sc, ids, ectx)
}

// Select returns the records of sc matching the context. A statically
// empty filter returns no records without touching the connection.
func (o ops) Select(ctx context.Context, sc *schema.Schema, ectx *execution.Context) (*Result, error) {
	stmt, err := o.s.m.compiler.Select(sc, ectx)
	if err != nil {
		return nil, err
	}
	if stmt.Empty() {
		return &Result{}, nil
	}
	if res, ok := o.s.dryRun(ctx, ectx, stmt); ok {
		return res, nil
	}
	res := &Result{}
	err = o.run(ctx, nil, func(r *runner) error {
		records, err := r.query(stmt)
		res.Records = records
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Count counts the records of sc matching the context.
func (o ops) Count(ctx context.Context, sc *schema.Schema, ectx *execution.Context) (*Result, error) {
	stmt, err := o.s.m.compiler.Count(sc, ectx)
	if err != nil {
		return nil, err
	}
	if stmt.Empty() {
		return &Result{}, nil
	}
	if res, ok := o.s.dryRun(ctx, ectx, stmt); ok {
		return res, nil
	}
	res := &Result{}
	err = o.run(ctx, nil, func(r *runner) error {
		n, err := r.count(stmt)
		res.Count = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Exists reports if a record of sc matches the context.
func (o ops) Exists(ctx context.Context, sc *schema.Schema, ectx *execution.Context) (bool, error) {
	res, err := o.Count(ctx, sc, ectx)
	if err != nil {
		return false, err
	}
	return res.Count > 0, nil
}

// Insert stores records of sc in one transaction and returns their ids.
func (o ops) Insert(ctx context.Context, sc *schema.Schema, records []schema.Record, ectx *execution.Context) (*Result, error) {
	b, err := o.s.m.compiler.Insert(sc, records, ectx)
	if err != nil {
		return nil, err
	}
	if b.Empty() {
		return &Result{}, nil
	}
	if res, ok := o.s.dryRun(ctx, ectx, batchStatements(b)...); ok {
		return res, nil
	}
	res := &Result{}
	err = o.run(ctx, b.Tables, func(r *runner) error {
		return r.tx(func(r *runner) error {
			values, _, err := r.batch(b)
			if err != nil {
				return err
			}
			res.IDs, err = insertedIDs(b, values, records)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	res.Affected = int64(b.Count)
	return res, nil
}

func insertedIDs(b *sql.Batch, values []any, records []schema.Record) ([]any, error) {
	switch b.Identity {
	case sql.IdentityReturning:
		return values, nil
	case sql.IdentityFirst, sql.IdentityLast:
		if len(values) == 0 {
			return nil, nil
		}
		chunks := b.Chunks
		if len(chunks) == 0 {
			chunks = []int{b.Count}
		}
		if len(values) != len(chunks) {
			return nil, fmt.Errorf("manager: got %d identities for %d inserts", len(values), len(chunks))
		}
		ids := make([]any, 0, b.Count)
		for k, v := range values {
			id, err := toInt64(v)
			if err != nil {
				return nil, err
			}
			for _, id := range b.Identity.IDs(id, chunks[k]) {
				ids = append(ids, id)
			}
		}
		return ids, nil
	default:
		ids := make([]any, len(records))
		for i, r := range records {
			ids[i] = r.PrimaryKey()
		}
		return ids, nil
	}
}

// Update stores the changed columns of records in one transaction.
func (o ops) Update(ctx context.Context, records []schema.Record, ectx *execution.Context) (*Result, error) {
	b, err := o.s.m.compiler.Update(records, ectx)
	if err != nil {
		return nil, err
	}
	if b.Empty() {
		return &Result{}, nil
	}
	if res, ok := o.s.dryRun(ctx, ectx, batchStatements(b)...); ok {
		return res, nil
	}
	res := &Result{}
	err = o.run(ctx, b.Tables, func(r *runner) error {
		return r.tx(func(r *runner) error {
			_, affected, err := r.batch(b)
			res.Affected = 0
			for _, n := range affected {
				res.Affected += n
			}
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Delete removes the records of sc matching the context filter in one
// transaction. Affected counts the rows removed from the root table.
func (o ops) Delete(ctx context.Context, sc *schema.Schema, ectx *execution.Context) (*Result, error) {
	b, err := o.s.m.compiler.Delete(sc, ectx)
	if err != nil {
		return nil, err
	}
	return o.delete(ctx, sc, b, ectx)
}

// DeleteIDs removes the records of sc with the given ids.
func (o ops) DeleteIDs(ctx context.Context, sc *schema.Schema, ids []any, ectx *execution.Context) (*Result, error) {
	b, err := o.s.m.compiler.DeleteIDs(sc, ids, ectx)
	if err != nil {
		return nil, err
	}
	return o.delete(ctx, sc, b, ectx)
}

func (o ops) delete(ctx context.Context, sc *schema.Schema, b *sql.Batch, ectx *execution.Context) (*Result, error) {
	if b.Empty() {
		return &Result{}, nil
	}
	if res, ok := o.s.dryRun(ctx, ectx, batchStatements(b)...); ok {
		return res, nil
	}
	res := &Result{}
	err := o.run(ctx, b.Tables, func(r *runner) error {
		return r.tx(func(r *runner) error {
			todo := b
			if b.Lookup != nil {
				ids, err := r.column(b.Lookup)
				if err != nil || len(ids) == 0 {
					return err
				}
				if todo, err = o.s.m.compiler.DeleteIDs(sc, ids, ectx); err != nil {
					return err
				}
			}
			_, affected, err := r.batch(todo)
			if err != nil {
				return err
			}
			if n := len(affected); n > 0 {
				res.Affected = affected[n-1]
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CreateTable creates the tables of sc. Only DryRun is read from ectx.
func (s *Session) CreateTable(ctx context.Context, sc *schema.Schema, ectx *execution.Context) (*Result, error) {
	b, err := s.m.compiler.CreateTable(sc)
	if err != nil {
		return nil, err
	}
	return s.ddl(ctx, b, ectx)
}

// AlterTable adds columns to the tables of sc.
func (s *Session) AlterTable(ctx context.Context, sc *schema.Schema, columns []*schema.Column, ectx *execution.Context) (*Result, error) {
	b, err := s.m.compiler.AlterTable(sc, columns)
	if err != nil {
		return nil, err
	}
	return s.ddl(ctx, b, ectx)
}

// CreateIndex creates an index of sc. With checkFirst, an existing index
// of the same name is kept.
func (s *Session) CreateIndex(ctx context.Context, sc *schema.Schema, idx *schema.Index, checkFirst bool, ectx *execution.Context) (*Result, error) {
	b, err := s.m.compiler.CreateIndex(sc, idx, checkFirst)
	if err != nil {
		return nil, err
	}
	return s.ddl(ctx, b, ectx)
}

// CreateNamespace creates a database namespace.
func (s *Session) CreateNamespace(ctx context.Context, name string, ectx *execution.Context) (*Result, error) {
	b, err := s.m.compiler.CreateNamespace(name)
	if err != nil {
		return nil, err
	}
	return s.ddl(ctx, b, ectx)
}

// CreateView creates a view named name over the records of sc selected
// by ectx. An existing table or view of the same name is kept.
func (s *Session) CreateView(ctx context.Context, name string, sc *schema.Schema, ectx *execution.Context) (*Result, error) {
	b, err := s.m.compiler.CreateView(name, sc, ectx)
	if err != nil {
		return nil, err
	}
	return s.ddl(ctx, b, ectx)
}

// ddl runs schema statements outside of a transaction; MySQL commits
// them implicitly.
func (s *Session) ddl(ctx context.Context, b *sql.Batch, ectx *execution.Context) (*Result, error) {
	if b.Empty() {
		return &Result{}, nil
	}
	if res, ok := s.dryRun(ctx, ectx, batchStatements(b)...); ok {
		return res, nil
	}
	err := s.run(ctx, b.Tables, func(r *runner) error {
		if b.Guard != nil {
			n, err := r.count(b.Guard)
			if err != nil || n > 0 {
				return err
			}
		}
		_, _, err := r.batch(b)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Result{}, nil
}
