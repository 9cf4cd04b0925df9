package sql

import (
	"fmt"
	"strings"

	"github.com/syssam/orbql"
	"github.com/syssam/orbql/execution"
	"github.com/syssam/orbql/query"
	"github.com/syssam/orbql/schema"
)

// CompileWhere implements WhereCompiler.
func (c *compiler) CompileWhere(s *schema.Schema, expr query.Expr, ctx *execution.Context) (*Statement, error) {
	st, err := c.newState(ctx)
	if err != nil {
		return nil, err
	}
	f, err := st.where(st.scope(s, nil), expr)
	if err != nil {
		return nil, err
	}
	return st.render(f), nil
}

// where compiles e against sc. An empty fragment matches every row and
// orbql.ErrQueryIsNull reports a predicate matching none.
func (st *state) where(sc *scope, e query.Expr) (Fragment, error) {
	return st.expr(sc, e, false)
}

func (st *state) expr(sc *scope, e query.Expr, nested bool) (Fragment, error) {
	if e == nil || e.IsNull() {
		return nil, nil
	}
	switch e := e.(type) {
	case *query.Node:
		return st.node(sc, e)
	case *query.Compound:
		return st.compound(sc, e, nested)
	default:
		return nil, invalid("unsupported expression %T", e)
	}
}

// compound joins the children. A statically empty child empties an AND
// and is dropped from an OR; a child matching every row is dropped from
// an AND and makes an OR match every row.
func (st *state) compound(sc *scope, c *query.Compound, nested bool) (Fragment, error) {
	var (
		items     []Fragment
		universal bool
		or        = c.Op == query.OpOr
	)
	for _, q := range c.Queries {
		if q == nil || q.IsNull() {
			continue
		}
		f, err := st.expr(sc, q, true)
		switch {
		case or && orbql.IsQueryIsNull(err):
			continue
		case err != nil:
			return nil, err
		case IsEmpty(f):
			universal = universal || or
			continue
		}
		items = append(items, f)
	}
	sep := " AND "
	if or {
		if universal {
			return nil, nil
		}
		if len(items) == 0 {
			return nil, orbql.ErrQueryIsNull
		}
		sep = " OR "
	}
	f := Join(sep, items...)
	if nested && len(items) > 1 {
		f = Paren(f)
	}
	return f, nil
}

// resolve returns the scope a node of the given model refers to.
func (st *state) resolve(sc *scope, model string) (*scope, error) {
	if model == "" {
		return sc, nil
	}
	if t := sc.lookup(model); t != nil {
		return t, nil
	}
	s, err := st.reg.Lookup(model)
	if err != nil {
		return nil, err
	}
	return st.scope(s, nil), nil
}

func (st *state) node(sc *scope, n *query.Node) (Fragment, error) {
	if !n.Op.Valid() {
		return nil, invalid("unknown operator %s", n.Op)
	}
	target, err := st.resolve(sc, n.Model)
	if err != nil {
		return nil, err
	}
	if head, rest, ok := strings.Cut(n.Column, "."); ok {
		return st.traverse(sc, target, n, head, rest)
	}
	col, err := st.reg.Column(target.schema, n.Column)
	if err != nil {
		if f, ok, cerr := st.collector(target, n, n.Column, ""); ok {
			return f, cerr
		}
		return nil, err
	}
	switch {
	case col.Is(schema.Virtual):
		return nil, invalid("column %s.%s is virtual", target.schema.Name, col.Name)
	case col.Is(schema.Translatable):
		return st.translated(sc, target, col, n)
	}
	return st.predicate(sc, target.column(col), col, n)
}

// traverse compiles a dotted path: the head is a reference or a collector
// of the target schema and the rest is resolved against the related schema.
func (st *state) traverse(sc, target *scope, n *query.Node, head, rest string) (Fragment, error) {
	col, err := st.reg.Column(target.schema, head)
	if err != nil {
		if f, ok, cerr := st.collector(target, n, head, rest); ok {
			return f, cerr
		}
		return nil, err
	}
	if !col.IsReference() {
		return nil, invalid("column %s.%s is not a reference", target.schema.Name, col.Name)
	}
	ref, err := st.reg.Target(col)
	if err != nil {
		return nil, err
	}
	inner := st.scope(ref, sc)
	pred, err := st.related(inner, n, rest)
	if err != nil || IsEmpty(pred) {
		return nil, err
	}
	return Join(" ", target.column(col), Raw("IN"), Paren(st.subselect(inner, inner.id(), pred))), nil
}

// collector compiles a predicate on a reverse lookup or a pipe of the
// target schema. It reports false if name is neither.
func (st *state) collector(target *scope, n *query.Node, name, rest string) (Fragment, bool, error) {
	if l, from, ok := st.reg.ReverseLookup(target.schema, name); ok {
		inner := st.scope(from, target)
		col, err := st.reg.Column(from, l.Column)
		if err != nil {
			return nil, true, err
		}
		pred, err := st.related(inner, n, rest)
		if err != nil {
			return nil, true, err
		}
		return Join(" ", target.id(), Raw("IN"), Paren(st.subselect(inner, inner.column(col), pred))), true, nil
	}
	p, ok := st.reg.Pipe(target.schema, name)
	if !ok {
		return nil, false, nil
	}
	through, err := st.reg.Lookup(p.Through)
	if err != nil {
		return nil, true, err
	}
	dest, err := st.reg.Lookup(p.Target)
	if err != nil {
		return nil, true, err
	}
	from, err := st.reg.Column(through, p.From)
	if err != nil {
		return nil, true, err
	}
	to, err := st.reg.Column(through, p.To)
	if err != nil {
		return nil, true, err
	}
	tsc := st.scope(through, target)
	dsc := st.scope(dest, tsc)
	pred, err := st.related(dsc, n, rest)
	if err != nil {
		return nil, true, err
	}
	link := Join(" ", tsc.column(to), Raw("IN"), Paren(st.subselect(dsc, dsc.id(), pred)))
	return Join(" ", target.id(), Raw("IN"), Paren(st.subselect(tsc, tsc.column(from), link))), true, nil
}

// related compiles n against a related scope, on the column rest or on
// the primary key.
func (st *state) related(inner *scope, n *query.Node, rest string) (Fragment, error) {
	cp := *n
	cp.Model, cp.Column = "", rest
	if rest == "" {
		cp.Column = inner.schema.ID().Name
	}
	return st.node(inner, &cp)
}

// translated rewrites a predicate on a translatable column into an id
// lookup in the locale side table.
func (st *state) translated(sc, target *scope, col *schema.Column, n *query.Node) (Fragment, error) {
	owner := col.Schema()
	alias := st.alias(owner.I18nTable())
	pred, err := st.predicate(sc, Ident(alias, col.Field), col, n)
	if err != nil || IsEmpty(pred) {
		return nil, err
	}
	conds := []Fragment{pred}
	if !st.allLocales() {
		conds = append(conds, Join(" ", Ident(alias, "locale"), Raw("="), st.bind("locale", st.locale)))
	}
	sub := Join(" ",
		Raw("SELECT"), Ident(alias, owner.I18nKey()),
		Raw("FROM"), As(st.i18nTable(owner), alias),
		Raw("WHERE"), Join(" AND ", conds...),
	)
	return Join(" ", target.idOf(owner), Raw("IN"), Paren(sub)), nil
}

// idOf returns the primary key of the chain table of o.
func (sc *scope) idOf(o *schema.Schema) Fragment {
	alias, ok := sc.alias[o]
	if !ok {
		return sc.id()
	}
	return Ident(alias, o.ID().Field)
}

// subselect renders a single column sub-select of sc.
func (st *state) subselect(sc *scope, projection, pred Fragment) Fragment {
	f := Join(" ", Raw("SELECT"), projection, Raw("FROM"), st.from(sc))
	if !IsEmpty(pred) {
		f = Join(" ", f, Raw("WHERE"), pred)
	}
	return f
}

// columnExpr applies the functions and then the arithmetic of n to the
// column expression x.
func (st *state) columnExpr(x Fragment, field string, n *query.Node) (Fragment, error) {
	for _, fn := range n.Functions {
		if fn < query.Lower || fn > query.AsString {
			return nil, invalid("unknown function %s", fn)
		}
		x = st.function(fn, x)
	}
	for _, m := range n.Math {
		sym := m.Op.Symbol()
		if sym == "" {
			return nil, invalid("unknown math operator %s", m.Op)
		}
		x = Paren(Join(" ", x, Raw(sym), st.bind(field, m.Value)))
	}
	return x, nil
}

// operand is one side of a comparison: a column expression or a value
// bound at render time.
type operand struct {
	expr  Fragment
	value any
	field string
}

func (o operand) isValue() bool { return o.expr == nil }

func (st *state) operand(o operand) Fragment {
	if o.isValue() {
		return st.bind(o.field, o.value)
	}
	return o.expr
}

var comparisons = map[query.Op]string{
	query.Is:                 "=",
	query.IsNot:              "!=",
	query.LessThan:           "<",
	query.Before:             "<",
	query.LessThanOrEqual:    "<=",
	query.OnOrBefore:         "<=",
	query.GreaterThan:        ">",
	query.After:              ">",
	query.GreaterThanOrEqual: ">=",
	query.OnOrAfter:          ">=",
}

// predicate renders the operator of n applied to the column expression x.
func (st *state) predicate(sc *scope, x Fragment, col *schema.Column, n *query.Node) (Fragment, error) {
	x, err := st.columnExpr(x, col.Field, n)
	if err != nil {
		return nil, err
	}
	cs := n.CaseSensitive || col.Is(schema.CaseSensitive)
	switch v := n.Value.(type) {
	case *query.Compound:
		return nil, invalid("compound value compared to column %s", col.Name)
	case *query.Node:
		rhs, err := st.valueExpr(sc, v)
		if err != nil {
			return nil, err
		}
		return st.compare(operand{expr: x}, operand{expr: rhs}, n, cs)
	case *query.Collection:
		return st.collection(sc, x, n, v)
	}
	v := bindValue(n.Value)
	if v == nil || v == query.Undefined {
		switch n.Op {
		case query.Is, query.Matches:
			return Concat(x, Raw(" IS NULL")), nil
		case query.IsNot, query.DoesNotMatch:
			return Concat(x, Raw(" IS NOT NULL")), nil
		}
		return nil, invalid("operator %s cannot compare %s to null", n.Op, col.Name)
	}
	if vs, ok := query.Values(v); ok {
		return st.list(x, col, n, vs)
	}
	switch {
	case n.Op.IsRange():
		return nil, invalid("operator %s expects two values", n.Op)
	case n.Op.IsList():
		return st.list(x, col, n, []any{v})
	}
	return st.compare(operand{expr: x}, operand{value: v, field: col.Field}, n, cs)
}

// valueExpr renders a node used as the value of another node.
func (st *state) valueExpr(sc *scope, v *query.Node) (Fragment, error) {
	target, err := st.resolve(sc, v.Model)
	if err != nil {
		return nil, err
	}
	col, err := st.reg.Column(target.schema, v.Column)
	if err != nil {
		return nil, err
	}
	if col.Is(schema.Virtual) || col.Is(schema.Translatable) {
		return nil, invalid("column %s.%s cannot be compared", target.schema.Name, col.Name)
	}
	return st.columnExpr(target.column(col), col.Field, v)
}

func (st *state) list(x Fragment, col *schema.Column, n *query.Node, vs []any) (Fragment, error) {
	if n.Inverted && (n.Op.IsList() || n.Op.IsRange()) {
		return nil, invalid("operator %s cannot be inverted", n.Op)
	}
	switch n.Op {
	case query.Between, query.NotBetween:
		if len(vs) != 2 {
			return nil, invalid("operator %s expects two values, got %d", n.Op, len(vs))
		}
		return Join(" ",
			x, Raw(not(n.Op == query.NotBetween, "BETWEEN")),
			st.bind(col.Field, vs[0]), Raw("AND"), st.bind(col.Field, vs[1]),
		), nil
	case query.IsIn, query.Is:
		if len(vs) == 0 {
			return nil, orbql.ErrQueryIsNull
		}
		return st.in(x, col.Field, vs, false), nil
	case query.IsNotIn, query.IsNot:
		if len(vs) == 0 {
			return nil, nil
		}
		return st.in(x, col.Field, vs, true), nil
	}
	return nil, invalid("operator %s does not accept a list", n.Op)
}

func (st *state) in(x Fragment, field string, vs []any, neg bool) Fragment {
	params := make([]Fragment, len(vs))
	for i, v := range vs {
		params[i] = st.bind(field, v)
	}
	return Join(" ", x, Raw(not(neg, "IN")), Paren(Comma(params...)))
}

// collection compiles a membership test against a record set.
func (st *state) collection(sc *scope, x Fragment, n *query.Node, c *query.Collection) (Fragment, error) {
	var neg bool
	switch n.Op {
	case query.Is, query.IsIn:
	case query.IsNot, query.IsNotIn:
		neg = true
	default:
		return nil, invalid("operator %s cannot compare against a collection", n.Op)
	}
	if n.Inverted {
		return nil, invalid("operator %s cannot be inverted", n.Op)
	}
	sub, err := st.collectionSelect(sc, c)
	switch {
	case orbql.IsQueryIsNull(err) && neg:
		return nil, nil
	case err != nil:
		return nil, err
	}
	return Join(" ", x, Raw(not(neg, "IN")), Paren(sub)), nil
}

// collectionSelect compiles a record set into a sub-select projecting its
// column, the primary key by default.
func (st *state) collectionSelect(parent *scope, c *query.Collection) (Fragment, error) {
	s, err := st.reg.Lookup(c.Model)
	if err != nil {
		return nil, err
	}
	inner := st.scope(s, parent)
	proj := inner.id()
	if c.Column != "" {
		col, err := st.reg.Column(s, c.Column)
		if err != nil {
			return nil, err
		}
		if col.Is(schema.Virtual) || col.Is(schema.Translatable) {
			return nil, invalid("cannot project column %s.%s", s.Name, col.Name)
		}
		proj = inner.column(col)
	}
	pred, err := st.where(inner, query.And(c.Where, st.baseQuery(s)))
	if err != nil {
		return nil, err
	}
	return st.subselect(inner, proj, pred), nil
}

// compare renders a scalar operator. Inverted nodes put the value on the
// left hand side: comparisons swap their operands, patterns match the
// value against the wildcarded column, and regular expressions use the
// column as the pattern.
func (st *state) compare(col, val operand, n *query.Node, cs bool) (Fragment, error) {
	subject, object := col, val
	if n.Inverted {
		subject, object = val, col
	}
	op := n.Op
	if sym, ok := comparisons[op]; ok {
		return Join(" ", st.operand(subject), Raw(sym), st.operand(object)), nil
	}
	switch {
	case op.IsPattern():
		prefix, suffix := op.Pattern()
		neg := op == query.DoesNotContain || op == query.DoesNotStartwith || op == query.DoesNotEndwith
		fold := st.foldCase() && !cs
		return st.like(st.folded(subject, fold), st.pattern(object, prefix, suffix, cs, fold), cs, neg), nil
	case op == query.Matches || op == query.DoesNotMatch:
		var pattern Fragment
		if object.isValue() {
			pattern = st.bind(object.field, st.regexpValue(fmt.Sprint(object.value), cs))
		} else if flags := st.regexpValue("", cs); flags != "" {
			pattern = st.concat(Literal(flags), object.expr)
		} else {
			pattern = object.expr
		}
		return st.regexp(st.operand(subject), pattern, cs, op == query.DoesNotMatch), nil
	case op.IsList(), op.IsRange():
		return nil, invalid("operator %s cannot compare two columns", op)
	}
	return nil, invalid("unsupported operator %s", op)
}

// folded lowers an operand of a case-insensitive pattern on dialects that
// fold case explicitly.
func (st *state) folded(o operand, fold bool) Fragment {
	switch {
	case !fold:
		return st.operand(o)
	case o.isValue():
		return st.bind(o.field, strings.ToLower(fmt.Sprint(o.value)))
	default:
		return Func("LOWER", o.expr)
	}
}

// pattern wraps an operand with wildcards. Values are wrapped before they
// are bound.
func (st *state) pattern(o operand, prefix, suffix, cs, fold bool) Fragment {
	wild := st.wildcard(cs)
	if o.isValue() {
		s := fmt.Sprint(o.value)
		if fold {
			s = strings.ToLower(s)
		}
		if prefix {
			s = wild + s
		}
		if suffix {
			s += wild
		}
		return st.bind(o.field, s)
	}
	x := o.expr
	if fold {
		x = Func("LOWER", x)
	}
	items := []Fragment{x}
	if prefix {
		items = append([]Fragment{Literal(wild)}, items...)
	}
	if suffix {
		items = append(items, Literal(wild))
	}
	return st.concat(items...)
}
