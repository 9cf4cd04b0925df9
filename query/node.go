package query

import (
	"slices"
)

// Expr is a query expression: a *Node or a *Compound.
type Expr interface {
	// IsNull reports if the expression is the null query.
	IsNull() bool
	// Negated returns the logical complement of the expression.
	Negated() (Expr, error)
	// String returns a readable rendering of the expression.
	String() string
	expr()
}

// Node is a single column predicate.
//
// The zero Node, with no column and no value, is the null query. It is the
// identity element of And and Or.
type Node struct {
	// Model optionally names the schema the column belongs to. It is used
	// for correlated comparisons against other tables.
	Model         string
	Column        string
	Op            Op
	Value         any
	CaseSensitive bool
	Functions     []Function
	Math          []Math
	Inverted      bool
}

// Null returns the null query.
func Null() *Node { return &Node{} }

// C starts a predicate on the given column.
func C(column string) *Node {
	return &Node{Column: column, Op: Is, Value: Undefined}
}

// M starts a predicate on a column of the given model.
func M(model, column string) *Node {
	return &Node{Model: model, Column: column, Op: Is, Value: Undefined}
}

func (*Node) expr() {}

// IsNull reports if n is the null query.
func (n *Node) IsNull() bool {
	return n == nil || n.Column == "" && (n.Value == nil || n.Value == Undefined)
}

// HasValue reports if a value was assigned to the node.
func (n *Node) HasValue() bool {
	return n.Value != Undefined
}

func (n *Node) clone() *Node {
	cp := *n
	cp.Functions = slices.Clone(n.Functions)
	cp.Math = slices.Clone(n.Math)
	return &cp
}

func (n *Node) with(op Op, v any) *Node {
	cp := n.clone()
	cp.Op, cp.Value = op, v
	return cp
}

// Is returns a copy of n testing equality. A nil value tests IS NULL.
func (n *Node) Is(v any) *Node { return n.with(Is, v) }

// IsNot returns a copy of n testing inequality. A nil value tests IS NOT NULL.
func (n *Node) IsNot(v any) *Node { return n.with(IsNot, v) }

// LessThan returns a copy of n testing column < v.
func (n *Node) LessThan(v any) *Node { return n.with(LessThan, v) }

// LessThanOrEqual returns a copy of n testing column <= v.
func (n *Node) LessThanOrEqual(v any) *Node { return n.with(LessThanOrEqual, v) }

// GreaterThan returns a copy of n testing column > v.
func (n *Node) GreaterThan(v any) *Node { return n.with(GreaterThan, v) }

// GreaterThanOrEqual returns a copy of n testing column >= v.
func (n *Node) GreaterThanOrEqual(v any) *Node { return n.with(GreaterThanOrEqual, v) }

// Before returns a copy of n testing column < v for temporal values.
func (n *Node) Before(v any) *Node { return n.with(Before, v) }

// OnOrBefore returns a copy of n testing column <= v for temporal values.
func (n *Node) OnOrBefore(v any) *Node { return n.with(OnOrBefore, v) }

// After returns a copy of n testing column > v for temporal values.
func (n *Node) After(v any) *Node { return n.with(After, v) }

// OnOrAfter returns a copy of n testing column >= v for temporal values.
func (n *Node) OnOrAfter(v any) *Node { return n.with(OnOrAfter, v) }

// Between returns a copy of n testing low <= column <= high.
func (n *Node) Between(low, high any) *Node { return n.with(Between, []any{low, high}) }

// NotBetween returns the complement of Between.
func (n *Node) NotBetween(low, high any) *Node { return n.with(NotBetween, []any{low, high}) }

// Contains returns a copy of n matching values containing v.
func (n *Node) Contains(v any) *Node { return n.with(Contains, v) }

// DoesNotContain returns the complement of Contains.
func (n *Node) DoesNotContain(v any) *Node { return n.with(DoesNotContain, v) }

// Startswith returns a copy of n matching values starting with v.
func (n *Node) Startswith(v any) *Node { return n.with(Startswith, v) }

// DoesNotStartwith returns the complement of Startswith.
func (n *Node) DoesNotStartwith(v any) *Node { return n.with(DoesNotStartwith, v) }

// Endswith returns a copy of n matching values ending with v.
func (n *Node) Endswith(v any) *Node { return n.with(Endswith, v) }

// DoesNotEndwith returns the complement of Endswith.
func (n *Node) DoesNotEndwith(v any) *Node { return n.with(DoesNotEndwith, v) }

// Matches returns a copy of n matching the regular expression v.
func (n *Node) Matches(v any) *Node { return n.with(Matches, v) }

// DoesNotMatch returns the complement of Matches.
func (n *Node) DoesNotMatch(v any) *Node { return n.with(DoesNotMatch, v) }

// IsIn returns a copy of n testing membership. A single *Collection
// argument compiles to a sub-select; a single slice argument is expanded.
func (n *Node) IsIn(values ...any) *Node { return n.with(IsIn, listValue(values)) }

// IsNotIn returns the complement of IsIn.
func (n *Node) IsNotIn(values ...any) *Node { return n.with(IsNotIn, listValue(values)) }

func listValue(values []any) any {
	if len(values) == 1 {
		if c, ok := values[0].(*Collection); ok {
			return c
		}
		if vs, ok := Values(values[0]); ok {
			return vs
		}
	}
	if values == nil {
		return []any{}
	}
	return values
}

// WithCaseSensitive returns a copy of n with the case sensitivity flag set.
func (n *Node) WithCaseSensitive(sensitive bool) *Node {
	cp := n.clone()
	cp.CaseSensitive = sensitive
	return cp
}

func (n *Node) function(f Function) *Node {
	cp := n.clone()
	cp.Functions = append(cp.Functions, f)
	return cp
}

// Lower applies lower() to the column expression.
func (n *Node) Lower() *Node { return n.function(Lower) }

// Upper applies upper() to the column expression.
func (n *Node) Upper() *Node { return n.function(Upper) }

// Abs applies abs() to the column expression.
func (n *Node) Abs() *Node { return n.function(Abs) }

// AsString casts the column expression to a string.
func (n *Node) AsString() *Node { return n.function(AsString) }

func (n *Node) math(op MathOp, v any) *Node {
	cp := n.clone()
	cp.Math = append(cp.Math, Math{Op: op, Value: v})
	return cp
}

// Add appends `column + v` to the column expression.
func (n *Node) Add(v any) *Node { return n.math(Add, v) }

// Subtract appends `column - v` to the column expression.
func (n *Node) Subtract(v any) *Node { return n.math(Subtract, v) }

// Multiply appends `column * v` to the column expression.
func (n *Node) Multiply(v any) *Node { return n.math(Multiply, v) }

// Divide appends `column / v` to the column expression.
func (n *Node) Divide(v any) *Node { return n.math(Divide, v) }

// BitAnd appends `column & v` to the column expression.
func (n *Node) BitAnd(v any) *Node { return n.math(BitAnd, v) }

// BitOr appends `column | v` to the column expression.
func (n *Node) BitOr(v any) *Node { return n.math(BitOr, v) }

// Invert returns a copy of n with the inverted flag toggled. Inverted
// nodes render the value on the left hand side of the operator.
func (n *Node) Invert() *Node {
	cp := n.clone()
	cp.Inverted = !cp.Inverted
	return cp
}

// Negated returns a copy of n with the complementary operator.
func (n *Node) Negated() (Expr, error) {
	if n.IsNull() {
		return n, nil
	}
	op, err := n.Op.Negate()
	if err != nil {
		return nil, err
	}
	cp := n.clone()
	cp.Op = op
	return cp, nil
}

// And returns n AND others.
func (n *Node) And(others ...Expr) Expr {
	return And(append([]Expr{n}, others...)...)
}

// Or returns n OR others.
func (n *Node) Or(others ...Expr) Expr {
	return Or(append([]Expr{n}, others...)...)
}
