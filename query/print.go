package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var opSymbols = map[Op]string{
	Is:                 "==",
	IsNot:              "!=",
	LessThan:           "<",
	LessThanOrEqual:    "<=",
	Before:             "<",
	OnOrBefore:         "<=",
	GreaterThan:        ">",
	GreaterThanOrEqual: ">=",
	After:              ">",
	OnOrAfter:          ">=",
	Between:            "between",
	NotBetween:         "not between",
	IsIn:               "in",
	IsNotIn:            "not in",
}

var opFuncs = map[Op]string{
	Contains:         "contains",
	DoesNotContain:   "!contains",
	Startswith:       "startswith",
	DoesNotStartwith: "!startswith",
	Endswith:         "endswith",
	DoesNotEndwith:   "!endswith",
	Matches:          "matches",
	DoesNotMatch:     "!matches",
}

// String renders the node, e.g. `name == "a8m"` or `contains(name, "a")`.
func (n *Node) String() string {
	if n.IsNull() {
		return "<null>"
	}
	lhs, rhs := n.columnString(), formatValue(n.Value)
	if n.Inverted {
		lhs, rhs = rhs, lhs
	}
	if fn, ok := opFuncs[n.Op]; ok {
		return fmt.Sprintf("%s(%s, %s)", fn, lhs, rhs)
	}
	if sym, ok := opSymbols[n.Op]; ok {
		return fmt.Sprintf("%s %s %s", lhs, sym, rhs)
	}
	return fmt.Sprintf("%s %s %s", lhs, n.Op, rhs)
}

func (n *Node) columnString() string {
	s := n.Column
	if n.Model != "" {
		s = n.Model + "." + s
	}
	for _, f := range n.Functions {
		s = fmt.Sprintf("%s(%s)", strings.ToLower(f.String()), s)
	}
	for _, m := range n.Math {
		s = fmt.Sprintf("(%s %s %s)", s, m.Op.Symbol(), formatValue(m.Value))
	}
	return s
}

// String renders the compound with && and ||. Nested compounds are
// parenthesized.
func (c *Compound) String() string {
	sep := " && "
	if c.Op == OpOr {
		sep = " || "
	}
	parts := make([]string, 0, len(c.Queries))
	for _, q := range c.Queries {
		s := q.String()
		if _, ok := q.(*Compound); ok {
			s = "(" + s + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, sep)
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case undefined:
		return v.String()
	case string:
		return strconv.Quote(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case *Node:
		return v.columnString()
	case *Compound:
		return "(" + v.String() + ")"
	case *Collection:
		col := v.Column
		if col == "" {
			col = "id"
		}
		if v.Where == nil || v.Where.IsNull() {
			return fmt.Sprintf("select(%s.%s)", v.Model, col)
		}
		return fmt.Sprintf("select(%s.%s, %s)", v.Model, col, v.Where)
	case Ref:
		return fmt.Sprintf("ref(%s, %s)", v.Model, formatValue(v.ID))
	case Identifier:
		return formatValue(v.PrimaryKey())
	}
	if vs, ok := Values(v); ok {
		parts := make([]string, len(vs))
		for i := range vs {
			parts[i] = formatValue(vs[i])
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return fmt.Sprint(v)
}
