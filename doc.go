// Package orbql is a database agnostic query abstraction layer.
//
// Application code builds boolean query expressions with the query package,
// parameterizes them with an execution.Context, and hands them to a
// dialect compiler (dialect/sql) which renders parameterized SQL for
// Postgres, MySQL or SQLite. The manager package executes the compiled
// statements over pooled sessions with retry, transaction discipline and
// per-table write locks.
//
// This package holds the error taxonomy shared by all layers. Callers
// branch on the Is* helpers or errors.Is against the sentinels:
//
//	res, err := s.Insert(ctx, users, records, nil)
//	switch {
//	case orbql.IsDuplicateEntry(err):
//	    // present to the user
//	case orbql.IsRetryable(err):
//	    // retry later
//	}
package orbql
