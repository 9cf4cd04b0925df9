package sql

import (
	"strings"

	"github.com/syssam/orbql"
	"github.com/syssam/orbql/execution"
	"github.com/syssam/orbql/query"
	"github.com/syssam/orbql/schema"
)

// target is a table rows are deleted from, with the column holding the
// record id.
type target struct {
	table Fragment
	name  string
	key   string
}

// Delete implements DeleteCompiler. The default filter of s does not
// apply. Rows are removed from the locale side tables first, then from
// the tables of child schemas, then from s up to the root.
//
// When the filter only reads the root table, the batch deletes through
// id sub-selects. Otherwise the batch carries a Lookup query and the ids
// it returns must be deleted with DeleteIDs.
func (c *compiler) Delete(s *schema.Schema, ctx *execution.Context) (*Batch, error) {
	st, err := c.newState(ctx)
	if err != nil {
		return nil, err
	}
	filter := st.ctx.Where
	if (filter == nil || filter.IsNull()) && !st.ctx.Force {
		return nil, invalid("refusing to delete every %s record without force", s.Name)
	}
	sc := st.scope(s, nil)
	pred, err := st.where(sc, filter)
	switch {
	case orbql.IsQueryIsNull(err):
		return &Batch{}, nil
	case err != nil:
		return nil, err
	}
	var (
		b       = &Batch{}
		targets = st.targets(s)
	)
	for _, t := range targets {
		b.Write(t.name)
	}
	if s.Inherits != "" || !st.direct(s, filter) {
		lookup := st.render(st.subselect(sc, sc.id(), pred))
		lookup.Rows = true
		b.Lookup = lookup
		return b, nil
	}
	last := len(targets) - 1
	for _, t := range targets[:last] {
		f := Join(" ", Raw("DELETE FROM"), t.table)
		if !IsEmpty(pred) {
			f = Join(" ", f, Raw("WHERE"), Ident(t.key), Raw("IN"), Paren(st.subselect(sc, sc.id(), pred)))
		}
		b.Add(st.render(f))
	}
	b.Add(st.render(Join(" ", Raw("DELETE FROM"), targets[last].table, where(pred))))
	return b, nil
}

// DeleteIDs implements DeleteCompiler.
func (c *compiler) DeleteIDs(s *schema.Schema, ids []any, ctx *execution.Context) (*Batch, error) {
	st, err := c.newState(ctx)
	if err != nil {
		return nil, err
	}
	b := &Batch{Count: len(ids)}
	if len(ids) == 0 {
		return b, nil
	}
	for _, t := range st.targets(s) {
		b.Add(st.render(Join(" ",
			Raw("DELETE FROM"), t.table,
			Raw("WHERE"), st.in(Ident(t.key), t.key, ids, false),
		)))
		b.Write(t.name)
	}
	return b, nil
}

// targets lists the tables holding records of s in deletion order.
func (st *state) targets(s *schema.Schema) []target {
	var (
		owners = append(st.reg.Descendants(s), st.reg.Chain(s)...)
		out    []target
	)
	for _, o := range owners {
		if o.HasTranslations() {
			out = append(out, target{table: st.i18nTable(o), name: st.lockName(o) + "_i18n", key: o.I18nKey()})
		}
	}
	for _, o := range owners {
		out = append(out, target{table: st.table(o), name: st.lockName(o), key: o.ID().Field})
	}
	return out
}

// direct reports if every node of e compares a plain column stored in the
// table of s.
func (st *state) direct(s *schema.Schema, e query.Expr) bool {
	switch e := e.(type) {
	case nil:
		return true
	case *query.Compound:
		for _, q := range e.Queries {
			if !st.direct(s, q) {
				return false
			}
		}
		return true
	case *query.Node:
		if e.IsNull() {
			return true
		}
		if e.Model != "" && e.Model != s.Name || strings.Contains(e.Column, ".") {
			return false
		}
		switch e.Value.(type) {
		case *query.Node, *query.Collection, query.Collection:
			return false
		}
		col, err := st.reg.Column(s, e.Column)
		return err == nil && col.Schema() == s && !col.Is(schema.Translatable)
	}
	return false
}
