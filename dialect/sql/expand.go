package sql

import (
	"github.com/syssam/orbql"
	"github.com/syssam/orbql/execution"
	"github.com/syssam/orbql/schema"
)

// relation is a related record source correlated with an outer scope.
type relation struct {
	target *schema.Schema
	// unique relations resolve to a single record.
	unique bool
	// link returns the predicate correlating the inner scope with the
	// outer one.
	link func(inner *scope) Fragment
}

// expand returns one correlated sub-select per expanded name, aliased by
// the name, along with the output keys.
func (st *state) expand(sc *scope, tree execution.Tree) ([]Fragment, []string, error) {
	var (
		proj []Fragment
		keys []string
	)
	for _, name := range tree.Names() {
		if execution.IsSelector(name) {
			return nil, nil, invalid("selector %q must follow a collector", name)
		}
		f, err := st.expansion(sc, name, tree[name])
		if err != nil {
			return nil, nil, err
		}
		proj = append(proj, As(f, name))
		keys = append(keys, name)
	}
	return proj, keys, nil
}

// relation resolves a reference, a reverse lookup or a pipe of the outer
// scope.
func (st *state) relation(outer *scope, name string) (*relation, error) {
	s := outer.schema
	if col, err := st.reg.Column(s, name); err == nil {
		if !col.IsReference() {
			return nil, invalid("column %s.%s cannot be expanded", s.Name, col.Name)
		}
		target, err := st.reg.Target(col)
		if err != nil {
			return nil, err
		}
		return &relation{
			target: target,
			unique: true,
			link: func(inner *scope) Fragment {
				return Join(" ", inner.id(), Raw("="), outer.column(col))
			},
		}, nil
	}
	if l, from, ok := st.reg.ReverseLookup(s, name); ok {
		col, err := st.reg.Column(from, l.Column)
		if err != nil {
			return nil, err
		}
		return &relation{
			target: from,
			unique: l.Unique,
			link: func(inner *scope) Fragment {
				return Join(" ", inner.column(col), Raw("="), outer.id())
			},
		}, nil
	}
	if p, ok := st.reg.Pipe(s, name); ok {
		through, err := st.reg.Lookup(p.Through)
		if err != nil {
			return nil, err
		}
		target, err := st.reg.Lookup(p.Target)
		if err != nil {
			return nil, err
		}
		from, err := st.reg.Column(through, p.From)
		if err != nil {
			return nil, err
		}
		to, err := st.reg.Column(through, p.To)
		if err != nil {
			return nil, err
		}
		return &relation{
			target: target,
			unique: p.Unique,
			link: func(inner *scope) Fragment {
				tsc := st.scope(through, inner)
				sub := st.subselect(tsc, tsc.column(to), Join(" ", tsc.column(from), Raw("="), outer.id()))
				return Join(" ", inner.id(), Raw("IN"), Paren(sub))
			},
		}, nil
	}
	return nil, orbql.NewColumnNotFoundError(s.Name, name)
}

// expansion compiles the related records of name as a scalar JSON value.
// Collectors without selectors expand to an array of records; selectors
// expand to an object keyed by selector.
func (st *state) expansion(outer *scope, name string, sub execution.Tree) (Fragment, error) {
	rel, err := st.relation(outer, name)
	if err != nil {
		return nil, err
	}
	related := sub.Related()
	selectors := sub.Selectors()
	if rel.unique {
		if len(selectors) > 0 {
			return nil, invalid("%s resolves to a single record and takes no selector", name)
		}
		return st.scalar(rel, outer, func(in *scope) (Fragment, Fragment, error) {
			rec, err := st.record(in, related)
			return rec, Raw("LIMIT 1"), err
		})
	}
	if len(selectors) == 0 {
		return st.scalar(rel, outer, func(in *scope) (Fragment, Fragment, error) {
			rec, err := st.record(in, related)
			return st.arrayAgg(rec), nil, err
		})
	}
	ps := make([]pair, 0, len(selectors))
	for _, sel := range selectors {
		var (
			f    Fragment
			err  error
			json = true
		)
		switch sel {
		case execution.SelectCount:
			json = false
			f, err = st.scalar(rel, outer, func(*scope) (Fragment, Fragment, error) {
				return Raw("COUNT(*)"), nil, nil
			})
		case execution.SelectIDs:
			f, err = st.scalar(rel, outer, func(in *scope) (Fragment, Fragment, error) {
				return st.arrayAgg(in.id()), nil, nil
			})
		case execution.SelectFirst, execution.SelectLast:
			nested := related.Merge(sub[sel].Related())
			dir := " ASC LIMIT 1"
			if sel == execution.SelectLast {
				dir = " DESC LIMIT 1"
			}
			f, err = st.scalar(rel, outer, func(in *scope) (Fragment, Fragment, error) {
				rec, err := st.record(in, nested)
				return rec, Concat(Raw("ORDER BY "), in.id(), Raw(dir)), err
			})
		case execution.SelectRecords:
			f, err = st.scalar(rel, outer, func(in *scope) (Fragment, Fragment, error) {
				rec, err := st.record(in, related)
				return st.arrayAgg(rec), nil, err
			})
		}
		if err != nil {
			return nil, err
		}
		ps = append(ps, pair{key: sel, value: f, json: json})
	}
	return st.object(ps), nil
}

// scalar renders a correlated sub-select over the related records. The
// related schema's default filter applies; when it is statically empty
// the sub-select is replaced by NULL.
func (st *state) scalar(rel *relation, outer *scope, build func(*scope) (Fragment, Fragment, error)) (Fragment, error) {
	inner := st.scope(rel.target, outer)
	base, err := st.where(inner, st.baseQuery(rel.target))
	switch {
	case orbql.IsQueryIsNull(err):
		return Raw("NULL"), nil
	case err != nil:
		return nil, err
	}
	proj, tail, err := build(inner)
	if err != nil {
		return nil, err
	}
	return Paren(Join(" ",
		Raw("SELECT"), proj,
		Raw("FROM"), st.from(inner),
		Raw("WHERE"), Join(" AND ", rel.link(inner), base),
		tail,
	)), nil
}

// record builds the JSON object of the record of the inner scope, with
// its own expansions.
func (st *state) record(in *scope, related execution.Tree) (Fragment, error) {
	var ps []pair
	for _, c := range st.reg.Columns(in.schema) {
		switch {
		case c.Is(schema.Virtual):
		case c.Is(schema.Translatable):
			ps = append(ps, pair{key: c.Field, value: st.translation(in, c), json: st.allLocales()})
		default:
			ps = append(ps, pair{key: c.Field, value: in.column(c), json: c.Type == schema.TypeJSON})
		}
	}
	for _, name := range related.Names() {
		f, err := st.expansion(in, name, related[name])
		if err != nil {
			return nil, err
		}
		ps = append(ps, pair{key: name, value: f, json: true})
	}
	return st.object(ps), nil
}
