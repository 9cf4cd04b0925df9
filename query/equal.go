package query

import (
	"reflect"
	"slices"
	"time"
)

// Equal reports whether a and b are the same expression. Numeric values
// are compared after widening, so a query equals its decoded wire form.
func Equal(a, b Expr) bool {
	if isNil(a) || isNil(b) {
		return (isNil(a) || a.IsNull()) && (isNil(b) || b.IsNull())
	}
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}
	switch a := a.(type) {
	case *Node:
		b, ok := b.(*Node)
		return ok && nodeEqual(a, b)
	case *Compound:
		b, ok := b.(*Compound)
		if !ok || a.Op != b.Op || len(a.Queries) != len(b.Queries) {
			return false
		}
		for i := range a.Queries {
			if !Equal(a.Queries[i], b.Queries[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func nodeEqual(a, b *Node) bool {
	if a.Model != b.Model || a.Column != b.Column || a.Op != b.Op ||
		a.CaseSensitive != b.CaseSensitive || a.Inverted != b.Inverted ||
		!slices.Equal(a.Functions, b.Functions) || len(a.Math) != len(b.Math) {
		return false
	}
	for i := range a.Math {
		if a.Math[i].Op != b.Math[i].Op || !valueEqual(a.Math[i].Value, b.Math[i].Value) {
			return false
		}
	}
	return valueEqual(a.Value, b.Value)
}

func valueEqual(a, b any) bool {
	a, b = normalize(a), normalize(b)
	switch av := a.(type) {
	case nil:
		return b == nil
	case Expr:
		bv, ok := b.(Expr)
		return ok && Equal(av, bv)
	case *Collection:
		bv, ok := b.(*Collection)
		return ok && av.Model == bv.Model && av.Column == bv.Column && Equal(av.Where, bv.Where)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case Ref:
		bv, ok := b.(Ref)
		return ok && av.Model == bv.Model && valueEqual(av.ID, bv.ID)
	}
	if as, ok := Values(a); ok {
		bs, ok := Values(b)
		if !ok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !valueEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	if _, ok := Values(b); ok {
		return false
	}
	return reflect.DeepEqual(a, b)
}
