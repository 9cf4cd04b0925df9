package sql

import (
	"maps"
	"slices"

	"github.com/syssam/orbql/execution"
	"github.com/syssam/orbql/schema"
)

// Update implements UpdateCompiler. Every record writes its changed
// columns to the table declaring them; translatable columns are upserted
// into the locale side table, one row per changed locale.
func (c *compiler) Update(records []schema.Record, ctx *execution.Context) (*Batch, error) {
	st, err := c.newState(ctx)
	if err != nil {
		return nil, err
	}
	b := &Batch{Count: len(records)}
	for _, r := range records {
		s := r.Schema()
		if s == nil {
			return nil, invalid("cannot update a record without schema")
		}
		pk := r.PrimaryKey()
		if pk == nil {
			return nil, invalid("cannot update a %s record without id", s.Name)
		}
		var (
			std = make(map[*schema.Schema][]*schema.Column)
			tr  = make(map[*schema.Schema][]*schema.Column)
		)
		for _, name := range r.Changes() {
			col, err := st.reg.Column(s, name)
			if err != nil {
				return nil, err
			}
			switch owner := col.Schema(); {
			case col.Is(schema.Virtual), col.Is(schema.Primary):
			case col.Is(schema.Translatable):
				tr[owner] = append(tr[owner], col)
			default:
				std[owner] = append(std[owner], col)
			}
		}
		chain := slices.Clone(st.reg.Chain(s))
		slices.Reverse(chain)
		for _, o := range chain {
			if cols := std[o]; len(cols) > 0 {
				set := make([]Fragment, len(cols))
				for i, c := range cols {
					v, _ := r.Get(c.Name)
					set[i] = Join(" ", Ident(c.Field), Raw("="), st.bind(c.Field, v))
				}
				b.Add(st.render(Join(" ",
					Raw("UPDATE"), st.table(o),
					Raw("SET"), Comma(set...),
					Raw("WHERE"), Ident(o.ID().Field), Raw("="), st.bind(o.ID().Field, pk),
				)))
				b.Write(st.lockName(o))
			}
			if cols := tr[o]; len(cols) > 0 {
				values, err := st.localized(r, cols)
				if err != nil {
					return nil, err
				}
				for _, loc := range slices.Sorted(maps.Keys(values)) {
					var (
						fields []string
						row    = []Fragment{st.bind(o.I18nKey(), pk), st.bind("locale", loc)}
					)
					for _, c := range cols {
						if v, ok := values[loc][c.Name]; ok {
							fields = append(fields, c.Field)
							row = append(row, st.bind(c.Field, v))
						}
					}
					for _, f := range st.upsert(st, st.i18nTable(o), []string{o.I18nKey(), "locale"}, fields, [][]Fragment{row}) {
						b.Add(st.render(f))
					}
				}
				b.Write(st.lockName(o) + "_i18n")
			}
		}
	}
	return b, nil
}
