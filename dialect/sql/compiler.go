package sql

import (
	"fmt"
	"strings"

	"github.com/syssam/orbql"
	"github.com/syssam/orbql/dialect"
	"github.com/syssam/orbql/execution"
	"github.com/syssam/orbql/query"
	"github.com/syssam/orbql/schema"
)

// WhereCompiler compiles query expressions into predicates.
type WhereCompiler interface {
	// CompileWhere returns the predicate of expr against s, without the
	// WHERE keyword. An empty statement matches every row. A statically
	// empty expression returns orbql.ErrQueryIsNull.
	CompileWhere(s *schema.Schema, expr query.Expr, ctx *execution.Context) (*Statement, error)
}

// SelectCompiler compiles record lookups.
type SelectCompiler interface {
	// Select returns the statement selecting the records of s. The
	// statement is empty when the filter is statically empty.
	Select(s *schema.Schema, ctx *execution.Context) (*Statement, error)
	// Count returns the statement counting the records of s.
	Count(s *schema.Schema, ctx *execution.Context) (*Statement, error)
}

// InsertCompiler compiles record creation.
type InsertCompiler interface {
	Insert(s *schema.Schema, records []schema.Record, ctx *execution.Context) (*Batch, error)
}

// UpdateCompiler compiles changes of stored records.
type UpdateCompiler interface {
	Update(records []schema.Record, ctx *execution.Context) (*Batch, error)
}

// DeleteCompiler compiles record removal.
type DeleteCompiler interface {
	// Delete removes the records of s matching the context filter.
	Delete(s *schema.Schema, ctx *execution.Context) (*Batch, error)
	// DeleteIDs removes the records of s with the given ids.
	DeleteIDs(s *schema.Schema, ids []any, ctx *execution.Context) (*Batch, error)
}

// SchemaCompiler compiles schema definition statements.
type SchemaCompiler interface {
	CreateTable(s *schema.Schema) (*Batch, error)
	AlterTable(s *schema.Schema, columns []*schema.Column) (*Batch, error)
	CreateIndex(s *schema.Schema, idx *schema.Index, checkFirst bool) (*Batch, error)
	CreateNamespace(name string) (*Batch, error)
	// CreateView creates a view named name over the records of s
	// selected by the context.
	CreateView(name string, s *schema.Schema, ctx *execution.Context) (*Batch, error)
}

// Compiler compiles every statement kind for one dialect.
type Compiler interface {
	WhereCompiler
	SelectCompiler
	InsertCompiler
	UpdateCompiler
	DeleteCompiler
	SchemaCompiler
	// Dialect returns the dialect name.
	Dialect() string
}

// NewCompiler returns the compiler of the given dialect over the schemas
// of reg.
func NewCompiler(name string, reg *schema.Registry) (Compiler, error) {
	if reg == nil {
		return nil, fmt.Errorf("dialect/sql: nil schema registry")
	}
	switch name {
	case dialect.Postgres:
		return &compiler{flavor: pgFlavor{}, reg: reg}, nil
	case dialect.MySQL:
		return &compiler{flavor: mysqlFlavor{}, reg: reg}, nil
	case dialect.SQLite:
		return &compiler{flavor: sqliteFlavor{}, reg: reg}, nil
	default:
		return nil, dialect.Validate(name)
	}
}

// compiler implements Compiler. The dialect differences are confined to
// its flavor.
type compiler struct {
	flavor
	reg *schema.Registry
}

var _ Compiler = (*compiler)(nil)

// Dialect implements Compiler.
func (c *compiler) Dialect() string { return c.name() }

// state holds what is shared by all fragments of one statement: the
// parameter and alias counters and the resolved locales.
type state struct {
	*compiler
	ctx              *execution.Context
	params, aliases  int
	locale, fallback string
}

func (c *compiler) newState(ctx *execution.Context) (*state, error) {
	if ctx == nil {
		ctx = execution.New()
	}
	if err := ctx.Validate(); err != nil {
		return nil, err
	}
	current, fallback, err := ctx.Locales()
	if err != nil {
		return nil, err
	}
	return &state{compiler: c, ctx: ctx, locale: current, fallback: fallback}, nil
}

// bind returns a placeholder named after field with a statement wide
// unique suffix.
func (st *state) bind(field string, v any) Fragment {
	st.params++
	return Param(fmt.Sprintf("%s_%d", paramName(field), st.params), bindValue(v))
}

// alias returns a statement wide unique alias for table.
func (st *state) alias(table string) string {
	st.aliases++
	return fmt.Sprintf("%s_%d", table, st.aliases)
}

func (st *state) render(f Fragment) *Statement { return Render(st.name(), f) }

// allLocales reports if translatable values are requested for every locale.
func (st *state) allLocales() bool { return st.locale == execution.AllLocales }

// namespace returns the namespace of s in the current context.
func (st *state) namespace(s *schema.Schema) string {
	if st.ctx.Namespace != "" {
		return st.ctx.Namespace
	}
	return s.Namespace
}

// table returns the qualified table of s.
func (st *state) table(s *schema.Schema) Fragment {
	return Ident(st.namespace(s), s.Table)
}

// i18nTable returns the qualified locale side table of s.
func (st *state) i18nTable(s *schema.Schema) Fragment {
	return Ident(st.namespace(s), s.I18nTable())
}

func paramName(field string) string {
	var b strings.Builder
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "p"
	}
	return b.String()
}

// bindValue converts query values to driver values.
func bindValue(v any) any {
	v = query.Resolve(v)
	switch v := v.(type) {
	case interface{ Nanoseconds() int64 }:
		return v.Nanoseconds()
	}
	return v
}

// scope is a table-per-type row source: the table of a schema joined with
// the tables of its ancestors, each under its own alias.
type scope struct {
	schema *schema.Schema
	chain  []*schema.Schema
	alias  map[*schema.Schema]string
	parent *scope
}

// scope returns the row source of s. Top-level scopes use the table names
// as aliases; nested ones use unique aliases so that correlated references
// to the parent remain unambiguous.
func (st *state) scope(s *schema.Schema, parent *scope) *scope {
	sc := &scope{
		schema: s,
		chain:  st.reg.Chain(s),
		alias:  make(map[*schema.Schema]string),
		parent: parent,
	}
	for _, o := range sc.chain {
		if parent == nil {
			sc.alias[o] = o.Table
		} else {
			sc.alias[o] = st.alias(o.Table)
		}
	}
	return sc
}

// id returns the primary key of the scope.
func (sc *scope) id() Fragment {
	return Ident(sc.alias[sc.schema], sc.schema.ID().Field)
}

// column returns the qualified storage field of a standard column.
func (sc *scope) column(c *schema.Column) Fragment {
	owner := c.Schema()
	alias, ok := sc.alias[owner]
	if !ok {
		alias = sc.alias[sc.schema]
	}
	return Ident(alias, c.Field)
}

// from renders the row source with its inheritance joins.
func (st *state) from(sc *scope) Fragment {
	items := []Fragment{st.tableAs(sc.schema, sc.alias[sc.schema])}
	for _, o := range sc.chain[1:] {
		items = append(items,
			Raw("LEFT JOIN"),
			st.tableAs(o, sc.alias[o]),
			Raw("ON"),
			Ident(sc.alias[o], o.ID().Field),
			Raw("="),
			sc.id(),
		)
	}
	return Join(" ", items...)
}

func (st *state) tableAs(s *schema.Schema, alias string) Fragment {
	if alias == s.Table {
		return st.table(s)
	}
	return As(st.table(s), alias)
}

// lookup finds the scope of the schema named model, walking the parent
// scopes.
func (sc *scope) lookup(model string) *scope {
	for p := sc; p != nil; p = p.parent {
		for _, o := range p.chain {
			if o.Name == model {
				return p
			}
		}
	}
	return nil
}

// baseQuery returns the default filters of s and its ancestors.
func (st *state) baseQuery(s *schema.Schema) query.Expr {
	if st.ctx.SkipBaseQuery {
		return query.Null()
	}
	var exprs []query.Expr
	for _, o := range st.reg.Chain(s) {
		if o.BaseQuery != nil {
			exprs = append(exprs, o.BaseQuery)
		}
	}
	return query.And(exprs...)
}

// selectable returns the stored columns of s requested by names, or all
// of them. The primary key always comes first.
func (st *state) selectable(s *schema.Schema, names []string) ([]*schema.Column, error) {
	id := st.reg.Root(s).ID()
	cols := []*schema.Column{id}
	if len(names) == 0 {
		for _, c := range st.reg.Columns(s) {
			if c != id && !c.Is(schema.Virtual) {
				cols = append(cols, c)
			}
		}
		return cols, nil
	}
	seen := map[*schema.Column]bool{id: true}
	for _, name := range names {
		c, err := st.reg.Column(s, name)
		if err != nil {
			return nil, err
		}
		if seen[c] || c.Is(schema.Virtual) {
			continue
		}
		seen[c] = true
		cols = append(cols, c)
	}
	return cols, nil
}

func invalid(format string, args ...any) error {
	return orbql.NewQueryInvalidError(format, args...)
}
