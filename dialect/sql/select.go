package sql

import (
	"github.com/syssam/orbql"
	"github.com/syssam/orbql/dialect"
	"github.com/syssam/orbql/execution"
	"github.com/syssam/orbql/query"
	"github.com/syssam/orbql/schema"
)

// Select implements SelectCompiler.
func (c *compiler) Select(s *schema.Schema, ctx *execution.Context) (*Statement, error) {
	st, err := c.newState(ctx)
	if err != nil {
		return nil, err
	}
	f, json, err := st.selectRecords(s)
	switch {
	case orbql.IsQueryIsNull(err):
		return &Statement{Dialect: c.name(), Rows: true}, nil
	case err != nil:
		return nil, err
	}
	stmt := st.render(f)
	stmt.Rows, stmt.JSON = true, json
	return stmt, nil
}

// Count implements SelectCompiler.
func (c *compiler) Count(s *schema.Schema, ctx *execution.Context) (*Statement, error) {
	st, err := c.newState(ctx)
	if err != nil {
		return nil, err
	}
	sc := st.scope(s, nil)
	pred, err := st.where(sc, query.And(st.ctx.Where, st.baseQuery(s)))
	switch {
	case orbql.IsQueryIsNull(err):
		return &Statement{Dialect: c.name(), Rows: true}, nil
	case err != nil:
		return nil, err
	}
	head := Raw("SELECT")
	proj := []Fragment{sc.id()}
	names := st.ctx.DistinctOn
	if len(names) == 0 && st.ctx.Distinct {
		names = st.ctx.Columns
	}
	if len(names) > 0 {
		cols, err := st.standard(s, names)
		if err != nil {
			return nil, err
		}
		proj = proj[:0]
		for _, col := range cols {
			proj = append(proj, sc.column(col))
		}
		head = Raw("SELECT DISTINCT")
	}
	inner := Join(" ", head, Comma(proj...), Raw("FROM"), st.from(sc))
	if !IsEmpty(pred) {
		inner = Join(" ", inner, Raw("WHERE"), pred)
	}
	stmt := st.render(Join(" ",
		Raw("SELECT COUNT(*) AS"), Ident("count"),
		Raw("FROM"), Paren(inner), Raw("AS"), Ident("records"),
	))
	stmt.Rows = true
	return stmt, nil
}

// standard resolves columns that must be stored in the table itself.
func (st *state) standard(s *schema.Schema, names []string) ([]*schema.Column, error) {
	cols := make([]*schema.Column, 0, len(names))
	for _, name := range names {
		col, err := st.reg.Column(s, name)
		if err != nil {
			return nil, err
		}
		if col.Is(schema.Virtual) || col.Is(schema.Translatable) {
			continue
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// localeJoin joins the locale side table of a chain schema: once for the
// current locale and once more for the default locale when they differ.
type localeJoin struct {
	owner             *schema.Schema
	current, fallback string
}

type localeJoins struct {
	list  []*localeJoin
	owner map[*schema.Schema]*localeJoin
}

func (st *state) localeJoins(cols []*schema.Column) *localeJoins {
	js := &localeJoins{owner: make(map[*schema.Schema]*localeJoin)}
	for _, c := range cols {
		o := c.Schema()
		if _, ok := js.owner[o]; ok {
			continue
		}
		j := &localeJoin{owner: o, current: o.I18nTable()}
		if st.fallback != st.locale {
			j.fallback = o.I18nTable() + "_default"
		}
		js.owner[o] = j
		js.list = append(js.list, j)
	}
	return js
}

func (st *state) renderJoins(sc *scope, js *localeJoins) Fragment {
	var items []Fragment
	join := func(o *schema.Schema, alias, locale string) {
		items = append(items,
			Raw("LEFT JOIN"), As(st.i18nTable(o), alias),
			Raw("ON"), Ident(alias, o.I18nKey()), Raw("="), sc.idOf(o),
			Raw("AND"), Ident(alias, "locale"), Raw("="), st.bind("locale", locale),
		)
	}
	for _, j := range js.list {
		join(j.owner, j.current, st.locale)
		if j.fallback != "" {
			join(j.owner, j.fallback, st.fallback)
		}
	}
	return Join(" ", items...)
}

// joinedValue returns the aggregated value of a translatable column, falling
// back to the default locale.
func (st *state) joinedValue(js *localeJoins, c *schema.Column) Fragment {
	j := js.owner[c.Schema()]
	v := st.first(Ident(j.current, c.Field))
	if j.fallback == "" {
		return v
	}
	return Func("COALESCE", v, st.first(Ident(j.fallback, c.Field)))
}

// translations returns a correlated sub-select aggregating the values of
// a translatable column in every locale into a JSON object.
func (st *state) translations(sc *scope, c *schema.Column) Fragment {
	o := c.Schema()
	alias := st.alias(o.I18nTable())
	return Paren(Join(" ",
		Raw("SELECT"), st.objectAgg(Ident(alias, "locale"), Ident(alias, c.Field)),
		Raw("FROM"), As(st.i18nTable(o), alias),
		Raw("WHERE"), Ident(alias, o.I18nKey()), Raw("="), sc.idOf(o),
	))
}

// translation returns a correlated sub-select reading a translatable
// column in the current locale, falling back to the default one.
func (st *state) translation(sc *scope, c *schema.Column) Fragment {
	if st.allLocales() {
		return st.translations(sc, c)
	}
	o := c.Schema()
	one := func(locale string) Fragment {
		alias := st.alias(o.I18nTable())
		return Paren(Join(" ",
			Raw("SELECT"), Ident(alias, c.Field),
			Raw("FROM"), As(st.i18nTable(o), alias),
			Raw("WHERE"), Ident(alias, o.I18nKey()), Raw("="), sc.idOf(o),
			Raw("AND"), Ident(alias, "locale"), Raw("="), st.bind("locale", locale),
		))
	}
	if st.fallback == st.locale {
		return one(st.locale)
	}
	return Func("COALESCE", one(st.locale), one(st.fallback))
}

type sortKey struct {
	col  *schema.Column
	expr Fragment
	desc bool
}

func (k sortKey) render() Fragment {
	if k.desc {
		return Concat(k.expr, Raw(" DESC"))
	}
	return Concat(k.expr, Raw(" ASC"))
}

// selectRecords builds the SELECT of the records of s. It returns the
// output columns holding JSON documents.
func (st *state) selectRecords(s *schema.Schema) (Fragment, []string, error) {
	ctx := st.ctx
	sc := st.scope(s, nil)
	cols, err := st.selectable(s, ctx.Columns)
	if err != nil {
		return nil, nil, err
	}
	var translated []*schema.Column
	for _, c := range cols {
		if c.Is(schema.Translatable) {
			translated = append(translated, c)
		}
	}
	var orderCols []*schema.Column
	for _, o := range ctx.Order {
		c, err := st.reg.Column(s, o.Column)
		if err != nil {
			return nil, nil, err
		}
		switch {
		case c.Is(schema.Virtual):
			return nil, nil, invalid("cannot order by virtual column %s", c.Name)
		case c.Is(schema.Translatable) && st.allLocales():
			return nil, nil, invalid("cannot order by translatable column %s in all locales", c.Name)
		case c.Is(schema.Translatable):
			translated = append(translated, c)
		}
		orderCols = append(orderCols, c)
	}
	js := &localeJoins{}
	if !st.allLocales() {
		js = st.localeJoins(translated)
	}

	var (
		proj      []Fragment
		json      []string
		projected = make(map[*schema.Column]bool)
	)
	for _, c := range cols {
		projected[c] = true
		switch {
		case c.Is(schema.Translatable) && st.allLocales():
			proj = append(proj, As(st.translations(sc, c), c.Field))
			json = append(json, c.Field)
		case c.Is(schema.Translatable):
			proj = append(proj, As(st.joinedValue(js, c), c.Field))
		default:
			proj = append(proj, sc.column(c))
			if c.Type == schema.TypeJSON {
				json = append(json, c.Field)
			}
		}
	}
	expanded, keys, err := st.expand(sc, ctx.Expand)
	if err != nil {
		return nil, nil, err
	}
	proj = append(proj, expanded...)
	json = append(json, keys...)

	pred, err := st.where(sc, query.And(ctx.Where, st.baseQuery(s)))
	if err != nil {
		return nil, nil, err
	}

	keysBy := make([]sortKey, 0, len(orderCols))
	for i, c := range orderCols {
		k := sortKey{col: c, expr: sc.column(c), desc: ctx.Order[i].Desc}
		if c.Is(schema.Translatable) {
			k.expr = st.joinedValue(js, c)
		}
		keysBy = append(keysBy, k)
	}

	var head Fragment = Raw("SELECT")
	switch {
	case len(ctx.DistinctOn) > 0:
		on, err := st.distinctOn(s, ctx.DistinctOn)
		if err != nil {
			return nil, nil, err
		}
		if st.name() == dialect.Postgres {
			exprs := make([]Fragment, 0, len(on))
			lead := make([]sortKey, 0, len(on)+len(keysBy))
			for _, c := range on {
				exprs = append(exprs, sc.column(c))
				lead = append(lead, sortKey{col: c, expr: sc.column(c)})
			}
			head = Concat(Raw("SELECT DISTINCT ON "), Paren(Comma(exprs...)))
			keysBy = append(lead, keysBy...)
			break
		}
		emulated, err := st.distinctIDs(s, sc, on)
		if err != nil {
			return nil, nil, err
		}
		pred = Join(" AND ", pred, emulated)
	case ctx.Distinct:
		head = Raw("SELECT DISTINCT")
		for _, k := range keysBy {
			if !projected[k.col] {
				projected[k.col] = true
				proj = append(proj, As(k.expr, k.col.Field))
			}
		}
	}

	from := Join(" ", st.from(sc), st.renderJoins(sc, js))
	var groupBy Fragment
	if len(js.list) > 0 {
		ids := make([]Fragment, len(sc.chain))
		for i, o := range sc.chain {
			ids[i] = sc.idOf(o)
		}
		groupBy = Concat(Raw("GROUP BY "), Comma(ids...))
	}
	orderBy := st.orderBy(keysBy)
	limit := st.limit()

	if len(ctx.Expand) > 0 && !IsEmpty(limit) {
		innerProj := []Fragment{sc.id()}
		if ctx.Distinct && len(ctx.DistinctOn) == 0 {
			for _, k := range keysBy {
				innerProj = append(innerProj, k.expr)
			}
		}
		inner := Join(" ", head, Comma(innerProj...), Raw("FROM"), from, where(pred), groupBy, orderBy, limit)
		page := Join(" ",
			Raw("INNER JOIN"), Paren(inner), Raw("AS"), Ident("page"),
			Raw("ON"), Ident("page", s.ID().Field), Raw("="), sc.id(),
		)
		return Join(" ", Raw("SELECT"), Comma(proj...), Raw("FROM"), from, page, groupBy, orderBy), json, nil
	}
	return Join(" ", head, Comma(proj...), Raw("FROM"), from, where(pred), groupBy, orderBy, limit), json, nil
}

func where(pred Fragment) Fragment {
	if IsEmpty(pred) {
		return nil
	}
	return Concat(Raw("WHERE "), pred)
}

func (st *state) orderBy(keys []sortKey) Fragment {
	if len(keys) == 0 {
		return nil
	}
	items := make([]Fragment, len(keys))
	for i, k := range keys {
		items[i] = k.render()
	}
	return Concat(Raw("ORDER BY "), Comma(items...))
}

// limit renders the validated pagination of the context.
func (st *state) limit() Fragment {
	limit, offset := st.ctx.RowLimit(), st.ctx.Offset()
	var items []Fragment
	switch {
	case limit > 0:
		items = append(items, Concat(Raw("LIMIT "), Int(limit)))
	case offset > 0 && st.noLimit() != "":
		items = append(items, Raw("LIMIT "+st.noLimit()))
	}
	if offset > 0 {
		items = append(items, Concat(Raw("OFFSET "), Int(offset)))
	}
	return Join(" ", items...)
}

// distinctOn resolves the DISTINCT ON columns, which must be stored in
// the chain tables.
func (st *state) distinctOn(s *schema.Schema, names []string) ([]*schema.Column, error) {
	cols := make([]*schema.Column, 0, len(names))
	for _, name := range names {
		c, err := st.reg.Column(s, name)
		if err != nil {
			return nil, err
		}
		if c.Is(schema.Virtual) || c.Is(schema.Translatable) {
			return nil, invalid("cannot select distinct on column %s", c.Name)
		}
		cols = append(cols, c)
	}
	return cols, nil
}

// distinctIDs emulates DISTINCT ON by keeping the lowest id of every
// group of the filtered records.
func (st *state) distinctIDs(s *schema.Schema, outer *scope, on []*schema.Column) (Fragment, error) {
	inner := st.scope(s, outer)
	pred, err := st.where(inner, query.And(st.ctx.Where, st.baseQuery(s)))
	if err != nil {
		return nil, err
	}
	group := make([]Fragment, len(on))
	for i, c := range on {
		group[i] = inner.column(c)
	}
	sub := Join(" ",
		Raw("SELECT"), Func("MIN", inner.id()), Raw("FROM"), st.from(inner),
		where(pred), Concat(Raw("GROUP BY "), Comma(group...)),
	)
	return Join(" ", outer.id(), Raw("IN"), Paren(sub)), nil
}
