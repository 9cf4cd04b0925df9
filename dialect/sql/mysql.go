package sql

import (
	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/mysql"
	atlas "ariga.io/atlas/sql/schema"

	"github.com/syssam/orbql/dialect"
	"github.com/syssam/orbql/query"
	"github.com/syssam/orbql/schema"
)

type mysqlFlavor struct{}

func (mysqlFlavor) name() string { return dialect.MySQL }

func (mysqlFlavor) function(f query.Function, x Fragment) Fragment {
	switch f {
	case query.Lower:
		return Func("LCASE", x)
	case query.Upper:
		return Func("UCASE", x)
	case query.Abs:
		return Func("ABS", x)
	default:
		return Concat(Raw("CAST("), x, Raw(" AS CHAR)"))
	}
}

func (mysqlFlavor) like(subject, pattern Fragment, cs, neg bool) Fragment {
	op := "LIKE"
	if cs {
		op += " BINARY"
	}
	return Join(" ", subject, Raw(not(neg, op)), pattern)
}

func (mysqlFlavor) wildcard(bool) string { return "%" }

func (mysqlFlavor) foldCase() bool { return true }

// REGEXP BINARY fails on multibyte collations in MySQL 8; REGEXP_LIKE
// takes the case sensitivity as a match type instead.
func (mysqlFlavor) regexp(subject, pattern Fragment, cs, neg bool) Fragment {
	mode := "i"
	if cs {
		mode = "c"
	}
	f := Func("REGEXP_LIKE", subject, pattern, Literal(mode))
	if neg {
		return Concat(Raw("NOT "), f)
	}
	return f
}

func (mysqlFlavor) regexpValue(pattern string, _ bool) string { return pattern }

func (mysqlFlavor) concat(items ...Fragment) Fragment { return Func("CONCAT", items...) }

func (mysqlFlavor) first(x Fragment) Fragment { return Func("MAX", x) }

func (mysqlFlavor) objectAgg(k, v Fragment) Fragment { return Func("JSON_OBJECTAGG", k, v) }

func (mysqlFlavor) arrayAgg(x Fragment) Fragment { return Func("JSON_ARRAYAGG", x) }

func (mysqlFlavor) object(ps []pair) Fragment { return Func("JSON_OBJECT", pairs(ps, pairValue)) }

func (mysqlFlavor) defaultValue() Fragment { return Raw("DEFAULT") }

func (mysqlFlavor) noLimit() string { return "18446744073709551615" }

func (mysqlFlavor) identity() (*Statement, Identity) {
	stmt := Render(dialect.MySQL, Concat(Raw("SELECT LAST_INSERT_ID() AS "), Ident("id")))
	stmt.Rows = true
	return stmt, IdentityFirst
}

func (mysqlFlavor) returning(string) Fragment { return nil }

// LAST_INSERT_ID returns the id of the first row of a multi-row insert.
func (mysqlFlavor) backRef(_ *state, _ *schema.Schema, i, _ int, _ bool) Fragment {
	return numbered(Raw("LAST_INSERT_ID()"), i)
}

func (mysqlFlavor) planner() migrate.PlanApplier { return mysql.DefaultPlan }

func (mysqlFlavor) columnType(c *schema.Column) atlas.Type {
	switch c.Type {
	case schema.TypeID, schema.TypeBigInt, schema.TypeInterval:
		return &atlas.IntegerType{T: mysql.TypeBigInt}
	case schema.TypeBool:
		return &atlas.BoolType{T: mysql.TypeBool}
	case schema.TypeInt:
		return &atlas.IntegerType{T: mysql.TypeInt}
	case schema.TypeFloat:
		return &atlas.FloatType{T: mysql.TypeDouble}
	case schema.TypeDecimal:
		return &atlas.DecimalType{T: mysql.TypeDecimal, Precision: c.Precision, Scale: c.Scale}
	case schema.TypeString:
		return &atlas.StringType{T: mysql.TypeVarchar, Size: varcharSize(c)}
	case schema.TypeDate:
		return &atlas.TimeType{T: mysql.TypeDate}
	case schema.TypeDatetime:
		return &atlas.TimeType{T: mysql.TypeDateTime}
	case schema.TypeDatetimeTZ:
		return &atlas.TimeType{T: mysql.TypeTimestamp}
	case schema.TypeJSON:
		return &atlas.JSONType{T: mysql.TypeJSON}
	case schema.TypeBytes:
		return &atlas.BinaryType{T: mysql.TypeLongBlob}
	case schema.TypeUUID:
		return &atlas.StringType{T: mysql.TypeChar, Size: 36}
	}
	return &atlas.StringType{T: mysql.TypeLongText}
}

func (mysqlFlavor) autoID(c *atlas.Column) { c.AddAttrs(&mysql.AutoIncrement{}) }

func (mysqlFlavor) tableAttrs(bool) []atlas.Attr {
	return []atlas.Attr{&mysql.Engine{V: mysql.EngineInnoDB}, &atlas.Charset{V: "utf8mb4"}}
}

func (mysqlFlavor) upsert(_ *state, table Fragment, keys, columns []string, rows [][]Fragment) []Fragment {
	set := make([]Fragment, len(columns))
	for i, c := range columns {
		set[i] = Concat(Ident(c), Raw(" = VALUES("), Ident(c), Raw(")"))
	}
	return []Fragment{Join(" ",
		insertInto(table, append(append([]string(nil), keys...), columns...), rows),
		Raw("ON DUPLICATE KEY UPDATE"),
		Comma(set...),
	)}
}
