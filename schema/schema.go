package schema

import (
	"github.com/go-openapi/inflect"

	"github.com/syssam/orbql/query"
)

// Schema is the read-only description of a table consumed by the
// compilers.
type Schema struct {
	Name string
	// Table is the storage table name. It defaults to the pluralized
	// snake case of Name.
	Table     string
	Namespace string
	// Inherits names the parent schema in a table-per-type hierarchy.
	// Child rows share the id of their parent row.
	Inherits       string
	Columns        []*Column
	Indexes        []*Index
	ReverseLookups []*ReverseLookup
	Pipes          []*Pipe
	// BaseQuery is merged into every SELECT unless the execution context
	// disables it.
	BaseQuery query.Expr
}

// New returns a schema with the given columns. An "id" primary key is
// prepended unless one of the columns is flagged Primary.
func New(name string, columns ...*Column) *Schema {
	s := &Schema{
		Name:  name,
		Table: inflect.Underscore(inflect.Pluralize(name)),
	}
	primary := false
	for _, c := range columns {
		primary = primary || c.Is(Primary)
	}
	if !primary {
		columns = append([]*Column{ID()}, columns...)
	}
	for _, c := range columns {
		c.schema = s
	}
	s.Columns = columns
	return s
}

// WithTable overrides the storage table name.
func (s *Schema) WithTable(table string) *Schema {
	s.Table = table
	return s
}

// InNamespace places the table in a namespace (Postgres schema, MySQL
// database).
func (s *Schema) InNamespace(ns string) *Schema {
	s.Namespace = ns
	return s
}

// Extends declares the parent schema.
func (s *Schema) Extends(parent string) *Schema {
	s.Inherits = parent
	return s
}

// WithIndexes declares indexes.
func (s *Schema) WithIndexes(indexes ...*Index) *Schema {
	s.Indexes = append(s.Indexes, indexes...)
	return s
}

// WithReverseLookups declares reverse lookups.
func (s *Schema) WithReverseLookups(lookups ...*ReverseLookup) *Schema {
	s.ReverseLookups = append(s.ReverseLookups, lookups...)
	return s
}

// WithPipes declares pipes.
func (s *Schema) WithPipes(pipes ...*Pipe) *Schema {
	s.Pipes = append(s.Pipes, pipes...)
	return s
}

// WithBaseQuery sets the default filter.
func (s *Schema) WithBaseQuery(q query.Expr) *Schema {
	s.BaseQuery = q
	return s
}

// ID returns the primary key column.
func (s *Schema) ID() *Column {
	for _, c := range s.Columns {
		if c.Is(Primary) {
			return c
		}
	}
	return nil
}

// Column returns the column declared by s with the given logical name or
// storage field.
func (s *Schema) Column(name string) *Column {
	for _, c := range s.Columns {
		if c.Name == name {
			return c
		}
	}
	for _, c := range s.Columns {
		if c.Field == name {
			return c
		}
	}
	return nil
}

// Stored returns the non-virtual columns declared by s, split into
// standard and translatable.
func (s *Schema) Stored() (standard, translatable []*Column) {
	for _, c := range s.Columns {
		switch {
		case c.Is(Virtual):
		case c.Is(Translatable):
			translatable = append(translatable, c)
		default:
			standard = append(standard, c)
		}
	}
	return standard, translatable
}

// HasTranslations reports if s declares translatable columns.
func (s *Schema) HasTranslations() bool {
	_, tr := s.Stored()
	return len(tr) > 0
}

// I18nTable returns the name of the locale side table.
func (s *Schema) I18nTable() string { return s.Table + "_i18n" }

// I18nKey returns the side table column referencing the owning row.
func (s *Schema) I18nKey() string { return s.Table + "_id" }

// ReverseLookup returns the reverse lookup with the given name.
func (s *Schema) ReverseLookup(name string) *ReverseLookup {
	for _, r := range s.ReverseLookups {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Pipe returns the pipe with the given name.
func (s *Schema) Pipe(name string) *Pipe {
	for _, p := range s.Pipes {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Index describes a table index.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// NewIndex returns an index over the given logical columns.
func NewIndex(name string, columns ...string) *Index {
	return &Index{Name: name, Columns: columns}
}

// WithUnique marks the index as unique.
func (i *Index) WithUnique() *Index {
	i.Unique = true
	return i
}

// ReverseLookup collects the records of From whose Column references the
// owning schema, e.g. Group.users collects User records by User.group.
type ReverseLookup struct {
	Name   string
	From   string
	Column string
	// Unique lookups resolve to a single record.
	Unique bool
}

// Pipe collects Target records through a join schema, e.g. User.groups
// through GroupUser(user -> group).
type Pipe struct {
	Name    string
	Through string
	// From is the column of Through referencing the owning schema.
	From string
	// To is the column of Through referencing Target.
	To     string
	Target string
	Unique bool
}
