package query

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"time"
)

type undefined struct{}

func (undefined) String() string { return "<undefined>" }

// Undefined marks a node whose value was never set. It differs from a nil
// value, which compiles to IS NULL.
var Undefined any = undefined{}

// Ref points at another record by primary key.
type Ref struct {
	Model string
	ID    any
}

// Identifier is implemented by records that can be used as query values.
// They are resolved to their primary key at compile time.
type Identifier interface {
	PrimaryKey() any
}

// Date is a calendar date without time or location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the date part of t.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses an ISO-8601 date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// String returns the date in YYYY-MM-DD form.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Collection is a lazily evaluated record set. Used as a value it compiles
// to a sub-select projecting Column (the id column when empty).
type Collection struct {
	Model  string
	Column string
	Where  Expr
}

// Select returns a collection of model records matching where.
func Select(model string, where Expr) *Collection {
	return &Collection{Model: model, Where: where}
}

// Project returns a copy of the collection projecting the given column.
func (c *Collection) Project(column string) *Collection {
	cp := *c
	cp.Column = column
	return &cp
}

// Values returns the elements of a list value. Any slice or array kind is
// accepted, except []byte which is a scalar.
func Values(v any) ([]any, bool) {
	switch v := v.(type) {
	case []any:
		return v, true
	case []byte, nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Resolve returns the value bound for v: references resolve to their
// primary key, everything else is returned as is.
func Resolve(v any) any {
	switch v := v.(type) {
	case Ref:
		return v.ID
	case *Ref:
		return v.ID
	case Identifier:
		return v.PrimaryKey()
	default:
		return v
	}
}

// normalize widens numeric kinds so values compare equal after a round
// trip through the wire format.
func normalize(v any) any {
	switch v := v.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case float32:
		return float64(v)
	case *Ref:
		return *v
	case Identifier:
		return Ref{ID: normalize(v.PrimaryKey())}
	case Ref:
		return Ref{Model: v.Model, ID: normalize(v.ID)}
	}
	return v
}
