package sql

import (
	"context"
	"strings"

	atlas "ariga.io/atlas/sql/schema"

	"github.com/syssam/orbql"
	"github.com/syssam/orbql/dialect"
	"github.com/syssam/orbql/execution"
	"github.com/syssam/orbql/schema"
)

// CreateTable implements SchemaCompiler. The table of a child schema
// shares the id of its parent row and is deleted with it. Translatable
// columns are created in the locale side table. The batch is skipped
// when the table exists.
func (c *compiler) CreateTable(s *schema.Schema) (*Batch, error) {
	st, err := c.newState(nil)
	if err != nil {
		return nil, err
	}
	t, err := st.atlasTable(s)
	if err != nil {
		return nil, err
	}
	b := &Batch{Guard: st.tableGuard(s, s.Table, false)}
	if err := st.plan(b, &atlas.AddTable{T: t}); err != nil {
		return nil, err
	}
	b.Write(st.lockName(s))
	if _, tr := s.Stored(); len(tr) > 0 {
		it, err := st.atlasI18nTable(s, t, tr)
		if err != nil {
			return nil, err
		}
		if err := st.plan(b, &atlas.AddTable{T: it}); err != nil {
			return nil, err
		}
		b.Write(st.lockName(s) + "_i18n")
	}
	return b, nil
}

// AlterTable implements SchemaCompiler. It adds columns to the table of s,
// creating the locale side table on the first translatable column.
func (c *compiler) AlterTable(s *schema.Schema, columns []*schema.Column) (*Batch, error) {
	st, err := c.newState(nil)
	if err != nil {
		return nil, err
	}
	t, err := st.atlasTable(s)
	if err != nil {
		return nil, err
	}
	var (
		b  = &Batch{}
		tr []*schema.Column
	)
	for _, col := range columns {
		switch {
		case col.Is(schema.Virtual):
		case col.Is(schema.Primary):
			return nil, invalid("cannot add primary key %s to %s", col.Name, s.Name)
		case col.Is(schema.Translatable):
			tr = append(tr, col)
		default:
			ac, err := st.atlasColumn(col)
			if err != nil {
				return nil, err
			}
			changes := []atlas.Change{&atlas.AddColumn{C: ac}}
			// SQLite rebuilds tables to add foreign keys.
			if col.IsReference() && st.name() != dialect.SQLite {
				fk, err := st.foreignKey(t, ac, col)
				if err != nil {
					return nil, err
				}
				changes = append(changes, &atlas.AddForeignKey{F: fk})
			}
			if err := st.plan(b, &atlas.ModifyTable{T: t, Changes: changes}); err != nil {
				return nil, err
			}
			if col.Is(schema.Unique) {
				idx := uniqueIndex(t, s, ac)
				if err := st.plan(b, &atlas.ModifyTable{T: t, Changes: []atlas.Change{&atlas.AddIndex{I: idx}}}); err != nil {
					return nil, err
				}
			}
			b.Write(st.lockName(s))
		}
	}
	if len(tr) > 0 {
		it, err := st.atlasI18nTable(s, t, nil)
		if err != nil {
			return nil, err
		}
		if err := st.createIfMissing(b, it); err != nil {
			return nil, err
		}
		for _, col := range tr {
			ac, err := st.atlasColumn(col)
			if err != nil {
				return nil, err
			}
			if err := st.plan(b, &atlas.ModifyTable{T: it, Changes: []atlas.Change{&atlas.AddColumn{C: ac}}}); err != nil {
				return nil, err
			}
		}
		b.Write(st.lockName(s) + "_i18n")
	}
	return b, nil
}

// CreateIndex implements SchemaCompiler. With checkFirst, an existing
// index of the same name is left untouched.
func (c *compiler) CreateIndex(s *schema.Schema, idx *schema.Index, checkFirst bool) (*Batch, error) {
	st, err := c.newState(nil)
	if err != nil {
		return nil, err
	}
	t, err := st.atlasTable(s)
	if err != nil {
		return nil, err
	}
	fields, err := st.indexFields(s, idx)
	if err != nil {
		return nil, err
	}
	ai, err := atlasIndex(t, indexName(s, idx, fields), idx.Unique, fields)
	if err != nil {
		return nil, err
	}
	b := &Batch{}
	if checkFirst {
		b.Guard = st.indexGuard(s, ai.Name)
	}
	if err := st.plan(b, &atlas.ModifyTable{T: t, Changes: []atlas.Change{&atlas.AddIndex{I: ai}}}); err != nil {
		return nil, err
	}
	b.Write(st.lockName(s))
	return b, nil
}

// CreateNamespace implements SchemaCompiler.
func (c *compiler) CreateNamespace(name string) (*Batch, error) {
	if name == "" {
		return nil, invalid("empty namespace")
	}
	if c.name() == dialect.SQLite {
		return nil, invalid("%s does not support namespaces", c.name())
	}
	st, err := c.newState(nil)
	if err != nil {
		return nil, err
	}
	b := &Batch{}
	if err := st.plan(b, &atlas.AddSchema{S: atlas.New(name), Extra: []atlas.Clause{&atlas.IfNotExists{}}}); err != nil {
		return nil, err
	}
	return b, nil
}

// CreateView implements SchemaCompiler. The view selects the records of
// s like Select does, with filter values written as constants. The batch
// is skipped when a table or view of the same name exists.
func (c *compiler) CreateView(name string, s *schema.Schema, ctx *execution.Context) (*Batch, error) {
	if name == "" {
		return nil, invalid("view name is empty")
	}
	st, err := c.newState(ctx)
	if err != nil {
		return nil, err
	}
	f, _, err := st.selectRecords(s)
	switch {
	case orbql.IsQueryIsNull(err):
		return nil, invalid("view %s selects no records", name)
	case err != nil:
		return nil, err
	}
	stmt, err := RenderInline(st.name(), Join(" ", Raw("CREATE VIEW"), Ident(st.namespace(s), name), Raw("AS"), f))
	if err != nil {
		return nil, err
	}
	b := &Batch{Guard: st.tableGuard(s, name, true)}
	b.Add(stmt)
	if ns := st.namespace(s); ns != "" {
		name = ns + "." + name
	}
	b.Write(name)
	return b, nil
}

// plan renders the changes through the dialect planner. Each change is
// planned alone to keep the order of the batch.
func (st *state) plan(b *Batch, changes ...atlas.Change) error {
	for _, c := range changes {
		p, err := st.planner().PlanChanges(context.Background(), "orbql", []atlas.Change{c})
		if err != nil {
			return invalid("plan schema change: %v", err)
		}
		for _, pc := range p.Changes {
			b.Add(&Statement{Dialect: st.name(), Text: pc.Cmd})
		}
	}
	return nil
}

// createIfMissing adds the creation of t, skipped by the database when
// the table exists. SQLite plans place the clause after the table name.
func (st *state) createIfMissing(b *Batch, t *atlas.Table) error {
	if st.name() != dialect.SQLite {
		return st.plan(b, &atlas.AddTable{T: t, Extra: []atlas.Clause{&atlas.IfNotExists{}}})
	}
	nb := &Batch{}
	if err := st.plan(nb, &atlas.AddTable{T: t}); err != nil {
		return err
	}
	for _, s := range nb.Statements {
		s.Text = strings.Replace(s.Text, "CREATE TABLE ", "CREATE TABLE IF NOT EXISTS ", 1)
	}
	b.Add(nb.Statements...)
	return nil
}

// atlasTable describes the table of s.
func (st *state) atlasTable(s *schema.Schema) (*atlas.Table, error) {
	t := st.tableStub(s)
	t.Columns = nil
	parent := st.reg.Parent(s)
	std, _ := s.Stored()
	var fks []*atlas.ForeignKey
	for _, col := range std {
		switch {
		case col.Is(schema.Primary) && parent != nil:
			c := &atlas.Column{Name: col.Field, Type: &atlas.ColumnType{Type: st.idType(s)}}
			t.AddColumns(c)
			ref := st.tableStub(parent)
			fks = append(fks, &atlas.ForeignKey{
				Table:      t,
				Columns:    []*atlas.Column{c},
				RefTable:   ref,
				RefColumns: ref.Columns,
				OnDelete:   atlas.Cascade,
			})
		case col.Is(schema.Primary) && col.Is(schema.AutoIncrement):
			c := &atlas.Column{Name: col.Field, Type: &atlas.ColumnType{Type: st.columnType(col)}}
			st.autoID(c)
			t.AddColumns(c)
		default:
			c, err := st.atlasColumn(col)
			if err != nil {
				return nil, err
			}
			t.AddColumns(c)
			if col.IsReference() {
				fk, err := st.foreignKey(t, c, col)
				if err != nil {
					return nil, err
				}
				fks = append(fks, fk)
			}
		}
	}
	id, ok := t.Column(s.ID().Field)
	if !ok {
		return nil, invalid("%s has no stored primary key", s.Name)
	}
	t.PrimaryKey = &atlas.Index{Table: t, Parts: []*atlas.IndexPart{{C: id}}}
	for _, col := range std {
		if c, ok := t.Column(col.Field); ok && col.Is(schema.Unique) && !col.Is(schema.Primary) {
			t.Indexes = append(t.Indexes, uniqueIndex(t, s, c))
		}
	}
	for _, idx := range s.Indexes {
		fields, err := st.indexFields(s, idx)
		if err != nil {
			return nil, err
		}
		ai, err := atlasIndex(t, indexName(s, idx, fields), idx.Unique, fields)
		if err != nil {
			return nil, err
		}
		t.Indexes = append(t.Indexes, ai)
	}
	t.ForeignKeys = fks
	t.Attrs = st.tableAttrs(false)
	return t, nil
}

// atlasI18nTable describes the locale side table of s, holding the
// given columns.
func (st *state) atlasI18nTable(s *schema.Schema, parent *atlas.Table, cols []*schema.Column) (*atlas.Table, error) {
	t := &atlas.Table{Name: s.I18nTable(), Schema: parent.Schema}
	key := &atlas.Column{Name: s.I18nKey(), Type: &atlas.ColumnType{Type: st.idType(s)}}
	locale := &atlas.Column{Name: "locale", Type: &atlas.ColumnType{Type: st.columnType(schema.String("locale").MaxLen(5))}}
	t.AddColumns(key, locale)
	for _, col := range cols {
		c, err := st.atlasColumn(col)
		if err != nil {
			return nil, err
		}
		t.AddColumns(c)
	}
	t.PrimaryKey = &atlas.Index{Table: t, Parts: []*atlas.IndexPart{{SeqNo: 0, C: key}, {SeqNo: 1, C: locale}}}
	pid, _ := parent.Column(s.ID().Field)
	t.ForeignKeys = []*atlas.ForeignKey{{
		Table:      t,
		Columns:    []*atlas.Column{key},
		RefTable:   parent,
		RefColumns: []*atlas.Column{pid},
		OnDelete:   atlas.Cascade,
	}}
	t.Attrs = st.tableAttrs(true)
	return t, nil
}

// atlasColumn describes a stored column. Reference columns hold ids of
// their target.
func (st *state) atlasColumn(col *schema.Column) (*atlas.Column, error) {
	typ := st.columnType(col)
	if col.IsReference() {
		target, err := st.reg.Target(col)
		if err != nil {
			return nil, err
		}
		typ = st.idType(target)
	}
	return &atlas.Column{
		Name: col.Field,
		Type: &atlas.ColumnType{Type: typ, Null: !col.Is(schema.Required)},
	}, nil
}

// foreignKey references the target of the reference column col from c.
func (st *state) foreignKey(t *atlas.Table, c *atlas.Column, col *schema.Column) (*atlas.ForeignKey, error) {
	target, err := st.reg.Target(col)
	if err != nil {
		return nil, err
	}
	ref := st.tableStub(target)
	if target == col.Schema() && target.Table == t.Name {
		ref = t
	}
	rc, _ := ref.Column(target.ID().Field)
	return &atlas.ForeignKey{
		Table:      t,
		Columns:    []*atlas.Column{c},
		RefTable:   ref,
		RefColumns: []*atlas.Column{rc},
		OnDelete:   atlas.ReferenceOption(col.OnDelete),
	}, nil
}

// tableStub is the table of s with its primary key column only, as
// referenced by foreign keys.
func (st *state) tableStub(s *schema.Schema) *atlas.Table {
	t := &atlas.Table{
		Name:    s.Table,
		Columns: []*atlas.Column{{Name: s.ID().Field, Type: &atlas.ColumnType{Type: st.idType(s)}}},
	}
	if ns := st.namespace(s); ns != "" && st.name() != dialect.SQLite {
		t.Schema = atlas.New(ns)
	}
	return t
}

// idType is the native type of columns holding ids of s.
func (st *state) idType(s *schema.Schema) atlas.Type {
	return st.columnType(st.reg.Root(s).ID())
}

// tableGuard counts the tables or views named table in the namespace
// of s.
func (st *state) tableGuard(s *schema.Schema, table string, view bool) *Statement {
	var f Fragment
	switch st.name() {
	case dialect.SQLite:
		kind := Raw("type = 'table'")
		if view {
			kind = Raw("type IN ('table', 'view')")
		}
		f = Join(" ",
			Raw("SELECT COUNT(*) AS"), Ident("count"),
			Raw("FROM sqlite_master WHERE"), kind,
			Raw("AND name ="), st.bind("name", table),
		)
	default:
		f = Join(" ",
			Raw("SELECT COUNT(*) AS"), Ident("count"),
			Raw("FROM information_schema.tables WHERE table_schema ="), st.currentNamespace(s),
			Raw("AND table_name ="), st.bind("table_name", table),
		)
	}
	guard := st.render(f)
	guard.Rows = true
	return guard
}

// indexGuard counts the indexes named name on the table of s.
func (st *state) indexGuard(s *schema.Schema, name string) *Statement {
	var f Fragment
	switch st.name() {
	case dialect.MySQL:
		f = Join(" ",
			Raw("SELECT COUNT(*) AS"), Ident("count"),
			Raw("FROM information_schema.statistics WHERE table_schema ="), st.currentNamespace(s),
			Raw("AND table_name ="), st.bind("table_name", s.Table),
			Raw("AND index_name ="), st.bind("index_name", name),
		)
	case dialect.Postgres:
		f = Join(" ",
			Raw("SELECT COUNT(*) AS"), Ident("count"),
			Raw("FROM pg_indexes WHERE schemaname ="), st.currentNamespace(s),
			Raw("AND indexname ="), st.bind("indexname", name),
		)
	default:
		f = Join(" ",
			Raw("SELECT COUNT(*) AS"), Ident("count"),
			Raw("FROM sqlite_master WHERE type = 'index' AND name ="), st.bind("name", name),
		)
	}
	guard := st.render(f)
	guard.Rows = true
	return guard
}

// currentNamespace is the namespace of s, or the one of the connection.
func (st *state) currentNamespace(s *schema.Schema) Fragment {
	if ns := st.namespace(s); ns != "" {
		return st.bind("table_schema", ns)
	}
	if st.name() == dialect.MySQL {
		return Raw("DATABASE()")
	}
	return Raw("CURRENT_SCHEMA()")
}

// indexFields resolves the columns of idx. They must be stored in the
// table of s.
func (st *state) indexFields(s *schema.Schema, idx *schema.Index) ([]string, error) {
	if len(idx.Columns) == 0 {
		return nil, invalid("index %q of %s has no columns", idx.Name, s.Name)
	}
	fields := make([]string, len(idx.Columns))
	for i, name := range idx.Columns {
		col := s.Column(name)
		switch {
		case col == nil:
			return nil, invalid("index column %s is not stored in %s", name, s.Table)
		case col.Is(schema.Virtual), col.Is(schema.Translatable):
			return nil, invalid("cannot index column %s.%s", s.Name, name)
		}
		fields[i] = col.Field
	}
	return fields, nil
}

func indexName(s *schema.Schema, idx *schema.Index, fields []string) string {
	if idx.Name != "" {
		return idx.Name
	}
	return s.Table + "_" + strings.Join(fields, "_") + "_idx"
}

func atlasIndex(t *atlas.Table, name string, unique bool, fields []string) (*atlas.Index, error) {
	idx := &atlas.Index{Name: name, Unique: unique, Table: t}
	for i, f := range fields {
		c, ok := t.Column(f)
		if !ok {
			return nil, invalid("index column %s is not stored in %s", f, t.Name)
		}
		idx.Parts = append(idx.Parts, &atlas.IndexPart{SeqNo: i, C: c})
	}
	return idx, nil
}

// uniqueIndex enforces unique values of c.
func uniqueIndex(t *atlas.Table, s *schema.Schema, c *atlas.Column) *atlas.Index {
	return &atlas.Index{
		Name:   s.Table + "_" + c.Name + "_key",
		Unique: true,
		Table:  t,
		Parts:  []*atlas.IndexPart{{C: c}},
	}
}
