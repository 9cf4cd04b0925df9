package sql

import (
	"ariga.io/atlas/sql/migrate"
	atlas "ariga.io/atlas/sql/schema"

	"github.com/syssam/orbql/query"
	"github.com/syssam/orbql/schema"
)

// flavor renders the constructs whose syntax differs between dialects.
type flavor interface {
	name() string
	// function applies a column function to x.
	function(f query.Function, x Fragment) Fragment
	// like matches subject against a LIKE pattern.
	like(subject, pattern Fragment, caseSensitive, not bool) Fragment
	// wildcard returns the any-string wildcard of like.
	wildcard(caseSensitive bool) string
	// foldCase reports if case-insensitive patterns are emulated by
	// lowering both operands.
	foldCase() bool
	// regexp matches subject against a regular expression.
	regexp(subject, pattern Fragment, caseSensitive, not bool) Fragment
	// regexpValue prepares a bound regular expression.
	regexpValue(pattern string, caseSensitive bool) string
	concat(items ...Fragment) Fragment
	// first aggregates the single value of a locale join.
	first(x Fragment) Fragment
	// objectAgg aggregates key/value rows into a JSON object.
	objectAgg(key, value Fragment) Fragment
	// arrayAgg aggregates rows into a JSON array.
	arrayAgg(x Fragment) Fragment
	// object builds a JSON object.
	object(pairs []pair) Fragment
	// defaultValue is inserted for missing values.
	defaultValue() Fragment
	// noLimit is the LIMIT value of an OFFSET without limit, or "" when
	// OFFSET may be used alone.
	noLimit() string
	// identity returns the statement reading back the generated ids of the
	// root insert, or nil if the insert returns them itself.
	identity() (*Statement, Identity)
	// returning is appended to the root insert.
	returning(id string) Fragment
	// backRef returns the id of row i out of n rows just inserted into
	// root. inherited reports if other rows were inserted since.
	backRef(st *state, root *schema.Schema, i, n int, inherited bool) Fragment
	// upsert writes locale rows, inserting missing ones and updating
	// existing ones.
	upsert(st *state, table Fragment, keys []string, columns []string, rows [][]Fragment) []Fragment
	// planner renders schema changes.
	planner() migrate.PlanApplier
	// columnType returns the native type of c.
	columnType(c *schema.Column) atlas.Type
	// autoID makes c an auto-incremented primary key column.
	autoID(c *atlas.Column)
	// tableAttrs are the attributes of created tables.
	tableAttrs(i18n bool) []atlas.Attr
}

// pair is a key/value entry of a JSON object. Values flagged json hold
// JSON documents.
type pair struct {
	key   string
	value Fragment
	json  bool
}

// pairs renders alternating keys and values.
func pairs(ps []pair, value func(pair) Fragment) Fragment {
	items := make([]Fragment, 0, 2*len(ps))
	for _, p := range ps {
		items = append(items, Literal(p.key), value(p))
	}
	return Comma(items...)
}

func pairValue(p pair) Fragment { return p.value }

// numbered returns x plus or minus k.
func numbered(x Fragment, k int) Fragment {
	switch {
	case k > 0:
		return Concat(x, Raw(" + "), Int(k))
	case k < 0:
		return Concat(x, Raw(" - "), Int(-k))
	}
	return x
}

func not(yes bool, s string) string {
	if yes {
		return "NOT " + s
	}
	return s
}
