package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/syssam/orbql"
	"github.com/syssam/orbql/execution"
	"github.com/syssam/orbql/schema"
)

// errDryRun rolls back the transaction of a dry run.
var errDryRun = errors.New("manager: dry run")

// TxOption configures Session.Tx.
type TxOption func(*txOptions)

type txOptions struct {
	dryRun bool
}

// TxDryRun executes the operations of the transaction and rolls them
// back when the function succeeds.
func TxDryRun() TxOption {
	return func(o *txOptions) { o.dryRun = true }
}

// Tx is an open transaction of a session. Its operations run on the
// connection of the session and are committed together when the
// function given to Session.Tx returns nil.
type Tx struct {
	s    *Session
	r    *runner
	done atomic.Bool
}

// Tx runs fn in a transaction of the session. The transaction is rolled
// back when fn fails and committed otherwise. A transaction is
// never retried after a lost connection. Operations of the session
// itself block until Tx returns, so fn must use the Tx only.
func (s *Session) Tx(ctx context.Context, fn func(*Tx) error, opts ...TxOption) error {
	var o txOptions
	for _, opt := range opts {
		opt(&o)
	}
	err := s.retry(ctx, nil, 1, func(r *runner) error {
		return r.tx(func(r *runner) error {
			tx := &Tx{s: s, r: r}
			defer tx.done.Store(true)
			if err := fn(tx); err != nil {
				return err
			}
			if o.dryRun {
				return errDryRun
			}
			return nil
		})
	})
	if errors.Is(err, errDryRun) {
		s.m.log.LogAttrs(ctx, slog.LevelInfo, "dry run transaction rolled back",
			slog.String("session", string(s.id)))
		return nil
	}
	return err
}

// run executes fn in the transaction while holding the write locks of
// tables.
func (tx *Tx) run(ctx context.Context, tables []string, fn func(*runner) error) error {
	if tx.done.Load() {
		return ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return &orbql.InterruptedError{Err: err}
	}
	unlock := tx.s.m.locks.Lock(tables...)
	defer unlock()
	return fn(tx.r)
}

func (tx *Tx) ops() ops { return ops{s: tx.s, run: tx.run} }

// Select returns the records of sc matching the context.
func (tx *Tx) Select(ctx context.Context, sc *schema.Schema, ectx *execution.Context) (*Result, error) {
	return tx.ops().Select(ctx, sc, ectx)
}

// Count counts the records of sc matching the context.
func (tx *Tx) Count(ctx context.Context, sc *schema.Schema, ectx *execution.Context) (*Result, error) {
	return tx.ops().Count(ctx, sc, ectx)
}

// Exists reports if a record of sc matches the context.
func (tx *Tx) Exists(ctx context.Context, sc *schema.Schema, ectx *execution.Context) (bool, error) {
	return tx.ops().Exists(ctx, sc, ectx)
}

// Insert stores records of sc and returns their ids.
func (tx *Tx) Insert(ctx context.Context, sc *schema.Schema, records []schema.Record, ectx *execution.Context) (*Result, error) {
	return tx.ops().Insert(ctx, sc, records, ectx)
}

// Update stores the changed columns of records.
func (tx *Tx) Update(ctx context.Context, records []schema.Record, ectx *execution.Context) (*Result, error) {
	return tx.ops().Update(ctx, records, ectx)
}

// Delete removes the records of sc matching the context filter.
func (tx *Tx) Delete(ctx context.Context, sc *schema.Schema, ectx *execution.Context) (*Result, error) {
	return tx.ops().Delete(ctx, sc, ectx)
}

// DeleteIDs removes the records of sc with the given ids.
func (tx *Tx) DeleteIDs(ctx context.Context, sc *schema.Schema, ids []any, ectx *execution.Context) (*Result, error) {
	return tx.ops().DeleteIDs(ctx, sc, ids, ectx)
}
