package sql

import (
	"database/sql"

	"github.com/syssam/orbql/dialect"
)

// Statement is a compiled SQL statement with its named parameters.
type Statement struct {
	Dialect string
	Text    string
	Params  map[string]any
	// Rows reports if the statement returns rows.
	Rows bool
	// JSON lists the output columns holding JSON documents.
	JSON []string

	names []string
}

// Empty reports if the statement is statically empty and must not be
// executed.
func (s *Statement) Empty() bool { return s == nil || s.Text == "" }

// String returns the statement text.
func (s *Statement) String() string {
	if s == nil {
		return ""
	}
	return s.Text
}

// Names returns the parameter names in order of appearance.
func (s *Statement) Names() []string { return append([]string(nil), s.names...) }

// Args returns the driver arguments in the binding style of the dialect:
// one positional value per distinct name for Postgres ($n), one value per
// occurrence for MySQL (?) and sql.NamedArg values for SQLite (:name).
func (s *Statement) Args() []any {
	if s == nil {
		return nil
	}
	args := make([]any, 0, len(s.names))
	if s.Dialect == dialect.MySQL {
		for _, n := range s.names {
			args = append(args, s.Params[n])
		}
		return args
	}
	seen := make(map[string]bool, len(s.names))
	for _, n := range s.names {
		if seen[n] {
			continue
		}
		seen[n] = true
		if s.Dialect == dialect.SQLite {
			args = append(args, sql.Named(n, s.Params[n]))
		} else {
			args = append(args, s.Params[n])
		}
	}
	return args
}

// Identity describes how the ids of inserted rows are read back.
type Identity uint8

const (
	// IdentityNone means no ids are generated, or they were bound explicitly.
	IdentityNone Identity = iota
	// IdentityReturning means the insert returns one id per row.
	IdentityReturning
	// IdentityFirst means the identity query returns the first id of the batch.
	IdentityFirst
	// IdentityLast means the identity query returns the last id of the batch.
	IdentityLast
)

// IDs expands the id returned by an identity query into n consecutive ids.
func (i Identity) IDs(id int64, n int) []int64 {
	ids := make([]int64, n)
	for k := range ids {
		switch i {
		case IdentityLast:
			ids[k] = id - int64(n-1-k)
		default:
			ids[k] = id + int64(k)
		}
	}
	return ids
}

// Batch is an ordered list of statements executed in one transaction.
type Batch struct {
	Statements []*Statement
	// Tables lists the tables written by the batch, in write order.
	Tables []string
	// Identity and Count describe the rows inserted by the batch.
	Identity Identity
	Count    int
	// Chunks holds the number of rows of each INSERT of generated ids,
	// in statement order.
	Chunks []int
	// Guard, if set, is a count query run before the batch. The batch is
	// skipped when it returns a non-zero count.
	Guard *Statement
	// Lookup, if set, is an id query run before the batch. Its result must
	// be passed to the compiler to build the statements, which are empty
	// until then.
	Lookup *Statement
}

// Empty reports if the batch has nothing to execute.
func (b *Batch) Empty() bool {
	if b == nil {
		return true
	}
	if b.Lookup != nil {
		return false
	}
	for _, s := range b.Statements {
		if !s.Empty() {
			return false
		}
	}
	return true
}

// Add appends the non-empty statements.
func (b *Batch) Add(stmts ...*Statement) {
	for _, s := range stmts {
		if !s.Empty() {
			b.Statements = append(b.Statements, s)
		}
	}
}

// Write records a written table once.
func (b *Batch) Write(tables ...string) {
	for _, t := range tables {
		found := false
		for _, w := range b.Tables {
			if w == t {
				found = true
				break
			}
		}
		if !found {
			b.Tables = append(b.Tables, t)
		}
	}
}

// Text returns the statements joined by ";\n", as reported by dry runs.
func (b *Batch) Text() string {
	if b == nil {
		return ""
	}
	var s string
	for i, st := range b.Statements {
		if i > 0 {
			s += ";\n"
		}
		s += st.Text
	}
	return s
}
