package execution

import (
	"strings"

	"github.com/syssam/orbql"
)

// Order is a single sort key.
type Order struct {
	Column string
	Desc   bool
}

// Asc returns an ascending sort key.
func Asc(column string) Order { return Order{Column: column} }

// Desc returns a descending sort key.
func Desc(column string) Order { return Order{Column: column, Desc: true} }

// String returns the "+column" or "-column" form.
func (o Order) String() string {
	if o.Desc {
		return "-" + o.Column
	}
	return "+" + o.Column
}

// ParseOrder parses a comma separated list of sort keys such as
// "+last_name,-created_at". Keys without a sign are ascending.
func ParseOrder(s string) ([]Order, error) {
	var order []Order
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		o, err := parseKey(part)
		if err != nil {
			return nil, err
		}
		order = append(order, o)
	}
	return order, nil
}

func parseKey(s string) (Order, error) {
	o := Order{Column: s}
	switch s[0] {
	case '+':
		o.Column = s[1:]
	case '-':
		o.Column, o.Desc = s[1:], true
	}
	// "name desc" and "name asc" are accepted as well.
	if col, dir, ok := strings.Cut(o.Column, " "); ok {
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "asc":
			o.Column = col
		case "desc":
			o.Column, o.Desc = col, true
		default:
			return Order{}, orbql.NewQueryInvalidError("invalid order direction %q", dir)
		}
	}
	if o.Column == "" {
		return Order{}, orbql.NewQueryInvalidError("invalid order key %q", s)
	}
	return o, nil
}

// FormatOrder is the inverse of ParseOrder.
func FormatOrder(order []Order) string {
	parts := make([]string, len(order))
	for i, o := range order {
		parts[i] = o.String()
	}
	return strings.Join(parts, ",")
}
