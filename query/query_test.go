package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/orbql"
	"github.com/syssam/orbql/query"
)

func TestNodeString(t *testing.T) {
	tests := []struct {
		Q query.Expr
		S string
	}{
		{
			Q: query.And(
				query.C("name").Is("a8m"),
				query.C("org").IsIn("fb", "ent"),
			),
			S: `name == "a8m" && org in ["fb","ent"]`,
		},
		{
			Q: query.Or(
				query.C("name").IsNot("mashraki"),
				query.C("org").IsNotIn([]string{"fb", "ent"}),
			),
			S: `name != "mashraki" || org not in ["fb","ent"]`,
		},
		{
			Q: query.And(
				query.C("age").GreaterThan(30),
				query.C("workplace").Contains("fb"),
			),
			S: `age > 30 && contains(workplace, "fb")`,
		},
		{
			Q: query.C("score").LessThan(32.23).Invert(),
			S: `32.23 < score`,
		},
		{
			Q: query.And(
				query.C("active").Is(nil),
				query.C("name").IsNot(nil),
			),
			S: `active == nil && name != nil`,
		},
		{
			Q: query.C("name").Lower().Upper().Startswith("A"),
			S: `startswith(upper(lower(name)), "A")`,
		},
		{
			Q: query.C("flags").BitAnd(4).Is(4),
			S: `(flags & 4) == 4`,
		},
		{
			Q: query.And(
				query.C("a").Is(1),
				query.Or(query.C("b").Is(2), query.C("c").Is(3)),
			),
			S: `a == 1 && (b == 2 || c == 3)`,
		},
		{
			Q: query.M("User", "group").Is(query.M("Group", "id")),
			S: `User.group == Group.id`,
		},
		{
			Q: query.C("owner").IsIn(query.Select("User", query.C("active").Is(true))),
			S: `owner in select(User.id, active == true)`,
		},
	}
	for i, tt := range tests {
		t.Run(tt.S, func(t *testing.T) {
			assert.Equal(t, tt.S, tt.Q.String(), "case %d", i)
		})
	}
}

func TestBuildersCopy(t *testing.T) {
	base := query.C("name")
	a := base.Is("a")
	b := base.Lower().Is("b")

	assert.Equal(t, query.Undefined, base.Value)
	assert.Empty(t, base.Functions)
	assert.Equal(t, "a", a.Value)
	assert.Equal(t, []query.Function{query.Lower}, b.Functions)
	assert.Empty(t, a.Functions)
	assert.False(t, a.Inverted)
	assert.True(t, a.Invert().Inverted)
	assert.False(t, a.Invert().Invert().Inverted)
}

func TestNullQuery(t *testing.T) {
	assert.True(t, query.Null().IsNull())
	assert.True(t, (&query.Node{}).IsNull())
	assert.False(t, query.C("name").IsNull())
	assert.False(t, query.C("name").Is(nil).IsNull())
	assert.True(t, query.And().IsNull())
	assert.True(t, query.Or(query.Null(), nil).IsNull())
}

func TestAbsorption(t *testing.T) {
	queries := []query.Expr{
		query.C("name").Is("bob"),
		query.C("age").Between(1, 10),
		query.Or(query.C("a").Is(1), query.C("b").Is(2)),
		query.And(query.C("a").Is(1), query.C("b").Is(2)),
	}
	for _, q := range queries {
		t.Run(q.String(), func(t *testing.T) {
			assert.Same(t, q, query.And(q, query.Null()))
			assert.Same(t, q, query.And(query.Null(), q))
			assert.Same(t, q, query.Or(q, query.Null()))
			assert.Same(t, q, query.Or(query.Null(), q))
			var typed *query.Node
			assert.Same(t, q, query.And(q, typed))
		})
	}
}

func TestFlattening(t *testing.T) {
	a, b, c := query.C("a").Is(1), query.C("b").Is(2), query.C("c").Is(3)

	left := query.And(query.And(a, b), c)
	right := query.And(a, query.And(b, c))
	require.IsType(t, &query.Compound{}, left)
	assert.Len(t, left.(*query.Compound).Queries, 3)
	assert.True(t, query.Equal(left, right))
	assert.Equal(t, left.String(), a.And(b).(*query.Compound).And(c).String())

	mixed := query.And(query.Or(a, b), c)
	require.IsType(t, &query.Compound{}, mixed)
	assert.Len(t, mixed.(*query.Compound).Queries, 2)

	or := query.Or(query.Or(a, b), query.Or(c))
	assert.Len(t, or.(*query.Compound).Queries, 3)
}

func TestNegationInvolution(t *testing.T) {
	for _, op := range query.Ops {
		t.Run(op.String(), func(t *testing.T) {
			neg, err := op.Negate()
			require.NoError(t, err)
			assert.NotEqual(t, op, neg)
			back, err := neg.Negate()
			require.NoError(t, err)
			assert.Equal(t, op, back)

			q := &query.Node{Column: "x", Op: op, Value: 1}
			n1, err := q.Negated()
			require.NoError(t, err)
			n2, err := n1.Negated()
			require.NoError(t, err)
			assert.True(t, query.Equal(q, n2))
		})
	}
}

func TestNegationUnknownOp(t *testing.T) {
	q := &query.Node{Column: "x", Op: query.Op(200), Value: 1}
	_, err := q.Negated()
	require.Error(t, err)
	assert.True(t, orbql.IsQueryInvalid(err))
}

func TestNegationDeMorgan(t *testing.T) {
	q := query.And(query.C("a").Is(1), query.C("b").LessThan(2))
	neg, err := q.Negated()
	require.NoError(t, err)
	assert.Equal(t, `a != 1 || b >= 2`, neg.String())

	twice, err := neg.Negated()
	require.NoError(t, err)
	assert.True(t, query.Equal(q, twice))
}

func TestTemporalNegation(t *testing.T) {
	n, err := query.C("created").Before("2020-01-01").Negated()
	require.NoError(t, err)
	assert.Equal(t, query.OnOrAfter, n.(*query.Node).Op)

	n, err = query.C("created").After("2020-01-01").Negated()
	require.NoError(t, err)
	assert.Equal(t, query.OnOrBefore, n.(*query.Node).Op)
}

func TestListValues(t *testing.T) {
	assert.Equal(t, []any{}, query.C("id").IsIn().Value)
	assert.Equal(t, []any{}, query.C("id").IsIn([]int{}).Value)
	assert.Equal(t, []any{1, 2}, query.C("id").IsIn([]int{1, 2}).Value)
	assert.Equal(t, []any{1, 2}, query.C("id").IsIn(1, 2).Value)
	coll := query.Select("User", nil)
	assert.Same(t, coll, query.C("id").IsIn(coll).Value)
}

func TestColumns(t *testing.T) {
	q := query.And(
		query.C("a").Is(1),
		query.Or(query.C("b").Is(2), query.C("a").Is(3)),
	)
	assert.Equal(t, []string{"a", "b"}, query.Columns(q))
}

func TestEqual(t *testing.T) {
	assert.True(t, query.Equal(query.C("a").Is(1), query.C("a").Is(int64(1))))
	assert.True(t, query.Equal(query.C("a").IsIn(1, 2), query.C("a").IsIn([]int64{1, 2})))
	assert.False(t, query.Equal(query.C("a").Is(1), query.C("a").Is(2)))
	assert.False(t, query.Equal(query.C("a").Is(1), query.C("a").Is(1).Invert()))
	assert.False(t, query.Equal(query.C("a").Is(1), query.C("a").Lower().Is(1)))
	assert.True(t, query.Equal(query.Null(), nil))
	assert.True(t, query.Equal(query.Null(), query.And()))
	assert.True(t, query.Equal(
		query.C("owner").Is(query.Ref{Model: "User", ID: 1}),
		query.C("owner").Is(&query.Ref{Model: "User", ID: int64(1)}),
	))
}

func TestOpParse(t *testing.T) {
	for _, op := range query.Ops {
		parsed, err := query.ParseOp(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, parsed)
	}
	_, err := query.ParseOp("Like")
	assert.True(t, orbql.IsQueryInvalid(err))

	f, err := query.ParseFunction("AsString")
	require.NoError(t, err)
	assert.Equal(t, query.AsString, f)

	m, err := query.ParseMathOp("And")
	require.NoError(t, err)
	assert.Equal(t, query.BitAnd, m)
	assert.Equal(t, "&", m.Symbol())
}
