package query

import (
	"fmt"

	"github.com/syssam/orbql"
)

// An Op is a predicate operator.
type Op uint8

// Predicate operators.
const (
	Is Op = iota + 1
	IsNot
	LessThan
	LessThanOrEqual
	Before
	OnOrBefore
	GreaterThan
	GreaterThanOrEqual
	After
	OnOrAfter
	Between
	NotBetween
	Contains
	DoesNotContain
	Startswith
	DoesNotStartwith
	Endswith
	DoesNotEndwith
	Matches
	DoesNotMatch
	IsIn
	IsNotIn
)

var opNames = [...]string{
	Is:                 "Is",
	IsNot:              "IsNot",
	LessThan:           "LessThan",
	LessThanOrEqual:    "LessThanOrEqual",
	Before:             "Before",
	OnOrBefore:         "OnOrBefore",
	GreaterThan:        "GreaterThan",
	GreaterThanOrEqual: "GreaterThanOrEqual",
	After:              "After",
	OnOrAfter:          "OnOrAfter",
	Between:            "Between",
	NotBetween:         "NotBetween",
	Contains:           "Contains",
	DoesNotContain:     "DoesNotContain",
	Startswith:         "Startswith",
	DoesNotStartwith:   "DoesNotStartwith",
	Endswith:           "Endswith",
	DoesNotEndwith:     "DoesNotEndwith",
	Matches:            "Matches",
	DoesNotMatch:       "DoesNotMatch",
	IsIn:               "IsIn",
	IsNotIn:            "IsNotIn",
}

// Ops lists every operator in declaration order.
var Ops = func() []Op {
	ops := make([]Op, 0, len(opNames)-1)
	for op := Is; int(op) < len(opNames); op++ {
		ops = append(ops, op)
	}
	return ops
}()

// String returns the wire name of the operator.
func (o Op) String() string {
	if o.Valid() {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", o)
}

// Valid reports if the operator is known.
func (o Op) Valid() bool {
	return o > 0 && int(o) < len(opNames)
}

// ParseOp returns the operator with the given wire name.
func ParseOp(s string) (Op, error) {
	for i, name := range opNames {
		if name != "" && name == s {
			return Op(i), nil
		}
	}
	return 0, orbql.NewQueryInvalidError("unknown operator %q", s)
}

// negations is the operator complement table. It must stay total:
// a missing entry is reported as an error by Negate.
var negations = map[Op]Op{
	Is:                 IsNot,
	IsNot:              Is,
	LessThan:           GreaterThanOrEqual,
	GreaterThanOrEqual: LessThan,
	LessThanOrEqual:    GreaterThan,
	GreaterThan:        LessThanOrEqual,
	Before:             OnOrAfter,
	OnOrAfter:          Before,
	After:              OnOrBefore,
	OnOrBefore:         After,
	Between:            NotBetween,
	NotBetween:         Between,
	Contains:           DoesNotContain,
	DoesNotContain:     Contains,
	Startswith:         DoesNotStartwith,
	DoesNotStartwith:   Startswith,
	Endswith:           DoesNotEndwith,
	DoesNotEndwith:     Endswith,
	Matches:            DoesNotMatch,
	DoesNotMatch:       Matches,
	IsIn:               IsNotIn,
	IsNotIn:            IsIn,
}

// Negate returns the logical complement of the operator.
func (o Op) Negate() (Op, error) {
	n, ok := negations[o]
	if !ok {
		return 0, orbql.NewQueryInvalidError("operator %s has no negation", o)
	}
	return n, nil
}

// IsPattern reports if the operator matches a LIKE pattern built around
// the value.
func (o Op) IsPattern() bool {
	switch o {
	case Contains, DoesNotContain, Startswith, DoesNotStartwith, Endswith, DoesNotEndwith:
		return true
	}
	return false
}

// IsList reports if the operator expects a list or sub-select value.
func (o Op) IsList() bool {
	return o == IsIn || o == IsNotIn
}

// IsRange reports if the operator expects a two element value.
func (o Op) IsRange() bool {
	return o == Between || o == NotBetween
}

// Pattern returns the wildcard placement of a pattern operator.
func (o Op) Pattern() (prefix, suffix bool) {
	switch o {
	case Contains, DoesNotContain:
		return true, true
	case Startswith, DoesNotStartwith:
		return false, true
	case Endswith, DoesNotEndwith:
		return true, false
	}
	return false, false
}

// A Function is applied to the column expression before comparison.
type Function uint8

// Column functions.
const (
	Lower Function = iota + 1
	Upper
	Abs
	AsString
)

var funcNames = [...]string{
	Lower:    "Lower",
	Upper:    "Upper",
	Abs:      "Abs",
	AsString: "AsString",
}

// String returns the wire name of the function.
func (f Function) String() string {
	if f > 0 && int(f) < len(funcNames) {
		return funcNames[f]
	}
	return fmt.Sprintf("Function(%d)", f)
}

// ParseFunction returns the function with the given wire name.
func ParseFunction(s string) (Function, error) {
	for i, name := range funcNames {
		if name != "" && name == s {
			return Function(i), nil
		}
	}
	return 0, orbql.NewQueryInvalidError("unknown function %q", s)
}

// A MathOp is an arithmetic operator applied to the column expression.
type MathOp uint8

// Arithmetic operators.
const (
	Add MathOp = iota + 1
	Subtract
	Multiply
	Divide
	BitAnd
	BitOr
)

var mathNames = [...]string{
	Add:      "Add",
	Subtract: "Subtract",
	Multiply: "Multiply",
	Divide:   "Divide",
	BitAnd:   "And",
	BitOr:    "Or",
}

var mathSymbols = [...]string{
	Add:      "+",
	Subtract: "-",
	Multiply: "*",
	Divide:   "/",
	BitAnd:   "&",
	BitOr:    "|",
}

// String returns the wire name of the operator.
func (m MathOp) String() string {
	if m > 0 && int(m) < len(mathNames) {
		return mathNames[m]
	}
	return fmt.Sprintf("MathOp(%d)", m)
}

// Symbol returns the SQL symbol of the operator.
func (m MathOp) Symbol() string {
	if m > 0 && int(m) < len(mathSymbols) {
		return mathSymbols[m]
	}
	return ""
}

// ParseMathOp returns the arithmetic operator with the given wire name.
func ParseMathOp(s string) (MathOp, error) {
	for i, name := range mathNames {
		if name != "" && name == s {
			return MathOp(i), nil
		}
	}
	return 0, orbql.NewQueryInvalidError("unknown math operator %q", s)
}

// Math is one arithmetic step applied to the column expression.
type Math struct {
	Op    MathOp
	Value any
}

// CompoundOp joins the children of a Compound.
type CompoundOp uint8

// Compound operators.
const (
	OpAnd CompoundOp = iota + 1
	OpOr
)

// String returns the wire name of the operator.
func (o CompoundOp) String() string {
	switch o {
	case OpAnd:
		return "And"
	case OpOr:
		return "Or"
	default:
		return fmt.Sprintf("CompoundOp(%d)", o)
	}
}

// ParseCompoundOp returns the compound operator with the given wire name.
func ParseCompoundOp(s string) (CompoundOp, error) {
	switch s {
	case "And":
		return OpAnd, nil
	case "Or":
		return OpOr, nil
	default:
		return 0, orbql.NewQueryInvalidError("unknown compound operator %q", s)
	}
}
