package sql

import (
	"database/sql/driver"
	"fmt"
	"regexp"
	"sync"

	"ariga.io/atlas/sql/migrate"
	atlas "ariga.io/atlas/sql/schema"
	atlassqlite "ariga.io/atlas/sql/sqlite"
	"modernc.org/sqlite"

	"github.com/syssam/orbql/dialect"
	"github.com/syssam/orbql/query"
	"github.com/syssam/orbql/schema"
)

func init() {
	// SQLite parses `x REGEXP y` as regexp(y, x).
	if err := sqlite.RegisterDeterministicScalarFunction("regexp", 2, regexpMatch); err != nil {
		panic(fmt.Sprintf("dialect/sql: register sqlite regexp: %v", err))
	}
}

var regexps sync.Map

func regexpMatch(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if args[0] == nil || args[1] == nil {
		return nil, nil
	}
	pattern, value := fmt.Sprint(args[0]), args[1]
	re, ok := regexps.Load(pattern)
	if !ok {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		re, _ = regexps.LoadOrStore(pattern, compiled)
	}
	switch v := value.(type) {
	case []byte:
		return re.(*regexp.Regexp).Match(v), nil
	default:
		return re.(*regexp.Regexp).MatchString(fmt.Sprint(v)), nil
	}
}

type sqliteFlavor struct{}

func (sqliteFlavor) name() string { return dialect.SQLite }

func (sqliteFlavor) function(f query.Function, x Fragment) Fragment {
	switch f {
	case query.Lower:
		return Func("lower", x)
	case query.Upper:
		return Func("upper", x)
	case query.Abs:
		return Func("abs", x)
	default:
		return Concat(Raw("CAST("), x, Raw(" AS TEXT)"))
	}
}

// LIKE ignores the case of ASCII letters; GLOB is case sensitive.
func (sqliteFlavor) like(subject, pattern Fragment, cs, neg bool) Fragment {
	op := "LIKE"
	if cs {
		op = "GLOB"
	}
	return Join(" ", subject, Raw(not(neg, op)), pattern)
}

func (sqliteFlavor) wildcard(cs bool) string {
	if cs {
		return "*"
	}
	return "%"
}

func (sqliteFlavor) foldCase() bool { return false }

func (sqliteFlavor) regexp(subject, pattern Fragment, _, neg bool) Fragment {
	return Join(" ", subject, Raw(not(neg, "REGEXP")), pattern)
}

func (sqliteFlavor) regexpValue(pattern string, cs bool) string {
	if cs {
		return pattern
	}
	return "(?i)" + pattern
}

func (sqliteFlavor) concat(items ...Fragment) Fragment { return Paren(Join(" || ", items...)) }

func (sqliteFlavor) first(x Fragment) Fragment { return Func("MAX", x) }

func (sqliteFlavor) objectAgg(k, v Fragment) Fragment { return Func("json_group_object", k, v) }

func (sqliteFlavor) arrayAgg(x Fragment) Fragment { return Func("json_group_array", x) }

// Values read through sub-selects lose their JSON subtype and must be
// parsed again.
func (sqliteFlavor) object(ps []pair) Fragment {
	return Func("json_object", pairs(ps, func(p pair) Fragment {
		if p.json {
			return Func("json", p.value)
		}
		return p.value
	}))
}

func (sqliteFlavor) defaultValue() Fragment { return Raw("NULL") }

func (sqliteFlavor) noLimit() string { return "-1" }

func (sqliteFlavor) identity() (*Statement, Identity) {
	stmt := Render(dialect.SQLite, Concat(Raw("SELECT last_insert_rowid() AS "), Ident("id")))
	stmt.Rows = true
	return stmt, IdentityLast
}

func (sqliteFlavor) returning(string) Fragment { return nil }

// last_insert_rowid changes with every insert into a rowid table, and
// the tables of child schemas are rowid tables. Their rows are anchored on
// the highest id of the root table instead.
func (sqliteFlavor) backRef(st *state, root *schema.Schema, i, n int, inherited bool) Fragment {
	if !inherited {
		return numbered(Raw("last_insert_rowid()"), i-(n-1))
	}
	anchor := Paren(Join(" ", Raw("SELECT"), Func("MAX", Ident(root.ID().Field)), Raw("FROM"), st.table(root)))
	return numbered(anchor, i-(n-1))
}

func (sqliteFlavor) planner() migrate.PlanApplier { return atlassqlite.DefaultPlan }

// SQLite keeps the declared type names; sizes are not enforced.
func (sqliteFlavor) columnType(c *schema.Column) atlas.Type {
	switch c.Type {
	case schema.TypeID, schema.TypeBigInt, schema.TypeInt, schema.TypeInterval:
		return &atlas.IntegerType{T: "integer"}
	case schema.TypeBool:
		return &atlas.BoolType{T: "boolean"}
	case schema.TypeFloat:
		return &atlas.FloatType{T: "real"}
	case schema.TypeDecimal:
		return &atlas.DecimalType{T: "numeric"}
	case schema.TypeString:
		return &atlas.StringType{T: fmt.Sprintf("varchar(%d)", varcharSize(c))}
	case schema.TypeDate:
		return &atlas.TimeType{T: "date"}
	case schema.TypeDatetime, schema.TypeDatetimeTZ:
		return &atlas.TimeType{T: "datetime"}
	case schema.TypeJSON:
		return &atlas.JSONType{T: "json"}
	case schema.TypeBytes:
		return &atlas.BinaryType{T: "blob"}
	}
	return &atlas.StringType{T: "text"}
}

// The primary key is declared inline by the AUTOINCREMENT column.
func (sqliteFlavor) autoID(c *atlas.Column) {
	c.Type.Type = &atlas.IntegerType{T: "integer"}
	c.AddAttrs(&atlassqlite.AutoIncrement{})
}

// Locale rows are keyed by their composite primary key.
func (sqliteFlavor) tableAttrs(i18n bool) []atlas.Attr {
	if i18n {
		return []atlas.Attr{&atlassqlite.WithoutRowID{}}
	}
	return nil
}

func (sqliteFlavor) upsert(_ *state, table Fragment, keys, columns []string, rows [][]Fragment) []Fragment {
	var stmts []Fragment
	for _, row := range rows {
		match := make([]Fragment, len(keys))
		for i, k := range keys {
			match[i] = Join(" ", Ident(k), Raw("="), row[i])
		}
		set := make([]Fragment, len(columns))
		for i, c := range columns {
			set[i] = Join(" ", Ident(c), Raw("="), row[len(keys)+i])
		}
		stmts = append(stmts,
			Join(" ",
				Raw("INSERT INTO"), table,
				Paren(idents(append(append([]string(nil), keys...), columns...))),
				Raw("SELECT"), Comma(row...),
				Raw("WHERE NOT EXISTS"),
				Paren(Join(" ", Raw("SELECT 1 FROM"), table, Raw("WHERE"), Join(" AND ", match...))),
			),
			Join(" ", Raw("UPDATE"), table, Raw("SET"), Comma(set...), Raw("WHERE"), Join(" AND ", match...)),
		)
	}
	return stmts
}
