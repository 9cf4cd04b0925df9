package sql

import (
	"maps"
	"math"
	"slices"

	"github.com/syssam/orbql/execution"
	"github.com/syssam/orbql/schema"
)

// Insert implements InsertCompiler. Records are written in chunks of the
// context batch size. Per chunk, the root table is written first and its
// generated ids are read back through the identity of the dialect; the
// tables of child schemas and the locale side tables follow, keyed by a
// back-reference to the root rows of the chunk.
func (c *compiler) Insert(s *schema.Schema, records []schema.Record, ctx *execution.Context) (*Batch, error) {
	st, err := c.newState(ctx)
	if err != nil {
		return nil, err
	}
	b := &Batch{Count: len(records)}
	if len(records) == 0 {
		return b, nil
	}
	explicit := 0
	for _, r := range records {
		if r.Schema() != s {
			return nil, invalid("cannot insert a %s record as %s", r.Schema().Name, s.Name)
		}
		if r.PrimaryKey() != nil {
			explicit++
		}
	}
	if explicit != 0 && explicit != len(records) {
		return nil, invalid("cannot insert %s records with and without ids in one batch", s.Name)
	}
	auto := explicit == 0
	if auto && !st.reg.AutoID(s) {
		return nil, invalid("%s records need an id", s.Name)
	}
	order := slices.Clone(st.reg.Chain(s))
	slices.Reverse(order)
	size := chunkSize(st.ctx.Batch(), order)
	for lo := 0; lo < len(records); lo += size {
		chunk := records[lo:min(lo+size, len(records))]
		if err := st.insertChunk(b, order, chunk, auto); err != nil {
			return nil, err
		}
		if auto {
			b.Chunks = append(b.Chunks, len(chunk))
		}
	}
	return b, nil
}

// chunkSize returns the number of records per INSERT statement. Wide
// schemas get fewer rows per statement.
func chunkSize(batch int, order []*schema.Schema) int {
	cols := 0
	for _, o := range order {
		std, tr := o.Stored()
		cols += len(std) + len(tr)
	}
	size := batch / max(int(math.Round(float64(cols)/10)), 1)
	return max(size, 1)
}

// insertChunk adds the statements inserting records, root table first.
// Back-references to generated ids are relative to the chunk.
func (st *state) insertChunk(b *Batch, order []*schema.Schema, records []schema.Record, auto bool) error {
	var (
		root      = order[0]
		inherited = len(order) > 1
		n         = len(records)
	)
	id := func(i int) Fragment {
		if !auto {
			return st.bind(root.ID().Field, records[i].PrimaryKey())
		}
		return st.backRef(st, root, i, n, inherited)
	}

	for ti, o := range order {
		std, _ := o.Stored()
		var cols []*schema.Column
		for _, c := range std {
			if !c.Is(schema.Primary) {
				cols = append(cols, c)
			}
		}
		keyed := ti > 0 || !auto
		fields := make([]string, 0, len(cols)+1)
		if keyed || len(cols) == 0 {
			fields = append(fields, o.ID().Field)
		}
		for _, c := range cols {
			fields = append(fields, c.Field)
		}
		rows := make([][]Fragment, n)
		for i, r := range records {
			row := make([]Fragment, 0, len(fields))
			switch {
			case keyed:
				row = append(row, id(i))
			case len(cols) == 0:
				row = append(row, st.defaultValue())
			}
			for _, c := range cols {
				if v, ok := r.Get(c.Name); ok {
					row = append(row, st.bind(c.Field, v))
				} else {
					row = append(row, st.defaultValue())
				}
			}
			rows[i] = row
		}
		f := insertInto(st.table(o), fields, rows)
		if ti == 0 && auto {
			f = Join(" ", f, st.returning(root.ID().Field))
		}
		stmt := st.render(f)
		b.Add(stmt)
		b.Write(st.lockName(o))
		if ti == 0 && auto {
			ident, kind := st.identity()
			b.Identity = kind
			if ident == nil {
				stmt.Rows = true
			} else {
				b.Add(ident)
			}
		}
	}

	for _, o := range order {
		_, tr := o.Stored()
		if len(tr) == 0 {
			continue
		}
		fields := []string{o.I18nKey(), "locale"}
		for _, c := range tr {
			fields = append(fields, c.Field)
		}
		var rows [][]Fragment
		for i, r := range records {
			values, err := st.localized(r, tr)
			if err != nil {
				return err
			}
			for _, loc := range slices.Sorted(maps.Keys(values)) {
				row := []Fragment{id(i), st.bind("locale", loc)}
				for _, c := range tr {
					if v, ok := values[loc][c.Name]; ok {
						row = append(row, st.bind(c.Field, v))
					} else {
						row = append(row, Raw("NULL"))
					}
				}
				rows = append(rows, row)
			}
		}
		if len(rows) == 0 {
			continue
		}
		b.Add(st.render(insertInto(st.i18nTable(o), fields, rows)))
		b.Write(st.lockName(o) + "_i18n")
	}
	return nil
}

// localized returns the values of translatable columns of r keyed by
// locale, then column. Values without translations are stored in the
// current locale.
func (st *state) localized(r schema.Record, cols []*schema.Column) (map[string]map[string]any, error) {
	values := make(map[string]map[string]any)
	set := func(loc, col string, v any) {
		if values[loc] == nil {
			values[loc] = make(map[string]any)
		}
		values[loc][col] = v
	}
	for _, c := range cols {
		tr := r.Translations(c.Name)
		if len(tr) == 0 {
			if v, ok := r.Get(c.Name); ok {
				set(st.writeLocale(), c.Name, v)
			}
			continue
		}
		for loc, v := range tr {
			norm, err := execution.NormalizeLocale(loc)
			if err != nil {
				return nil, err
			}
			if norm == execution.AllLocales {
				return nil, invalid("cannot store a translation of %s in all locales", c.Name)
			}
			set(norm, c.Name, v)
		}
	}
	return values, nil
}

// writeLocale is the locale of values written without translations.
func (st *state) writeLocale() string {
	if st.allLocales() {
		return st.fallback
	}
	return st.locale
}

// lockName identifies a table for write locks.
func (st *state) lockName(s *schema.Schema) string {
	if ns := st.namespace(s); ns != "" {
		return ns + "." + s.Table
	}
	return s.Table
}

func insertInto(table Fragment, fields []string, rows [][]Fragment) Fragment {
	values := make([]Fragment, len(rows))
	for i, row := range rows {
		values[i] = Paren(Comma(row...))
	}
	return Join(" ", Raw("INSERT INTO"), table, Paren(idents(fields)), Raw("VALUES"), Comma(values...))
}

func idents(names []string) Fragment {
	items := make([]Fragment, len(names))
	for i, n := range names {
		items[i] = Ident(n)
	}
	return Comma(items...)
}
