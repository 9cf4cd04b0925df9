package sql

import (
	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/postgres"
	atlas "ariga.io/atlas/sql/schema"

	"github.com/syssam/orbql/dialect"
	"github.com/syssam/orbql/query"
	"github.com/syssam/orbql/schema"
)

type pgFlavor struct{}

func (pgFlavor) name() string { return dialect.Postgres }

func (pgFlavor) function(f query.Function, x Fragment) Fragment {
	switch f {
	case query.Lower:
		return Func("lower", x)
	case query.Upper:
		return Func("upper", x)
	case query.Abs:
		return Func("abs", x)
	default:
		return Concat(Paren(x), Raw("::varchar"))
	}
}

func (pgFlavor) like(subject, pattern Fragment, cs, neg bool) Fragment {
	op := "ILIKE"
	if cs {
		op = "LIKE"
	}
	return Join(" ", subject, Raw(not(neg, op)), pattern)
}

func (pgFlavor) wildcard(bool) string { return "%" }

func (pgFlavor) foldCase() bool { return false }

func (pgFlavor) regexp(subject, pattern Fragment, cs, neg bool) Fragment {
	op := "~"
	if !cs {
		op += "*"
	}
	if neg {
		op = "!" + op
	}
	return Join(" ", subject, Raw(op), pattern)
}

func (pgFlavor) regexpValue(pattern string, _ bool) string { return pattern }

func (pgFlavor) concat(items ...Fragment) Fragment { return Paren(Join(" || ", items...)) }

func (pgFlavor) first(x Fragment) Fragment {
	return Concat(Paren(Func("array_agg", x)), Raw("[1]"))
}

func (pgFlavor) objectAgg(k, v Fragment) Fragment { return Func("json_object_agg", k, v) }

func (pgFlavor) arrayAgg(x Fragment) Fragment { return Func("json_agg", x) }

func (pgFlavor) object(ps []pair) Fragment {
	return Func("json_build_object", pairs(ps, pairValue))
}

func (pgFlavor) defaultValue() Fragment { return Raw("DEFAULT") }

func (pgFlavor) noLimit() string { return "" }

func (pgFlavor) identity() (*Statement, Identity) { return nil, IdentityReturning }

func (pgFlavor) returning(id string) Fragment { return Concat(Raw("RETURNING "), Ident(id)) }

func (pgFlavor) backRef(_ *state, _ *schema.Schema, i, n int, _ bool) Fragment {
	return numbered(Raw("LASTVAL()"), i-(n-1))
}

func (pgFlavor) planner() migrate.PlanApplier { return postgres.DefaultPlan }

func (pgFlavor) columnType(c *schema.Column) atlas.Type {
	switch c.Type {
	case schema.TypeID, schema.TypeBigInt, schema.TypeInterval:
		return &atlas.IntegerType{T: postgres.TypeBigInt}
	case schema.TypeBool:
		return &atlas.BoolType{T: postgres.TypeBoolean}
	case schema.TypeInt:
		return &atlas.IntegerType{T: postgres.TypeInteger}
	case schema.TypeFloat:
		return &atlas.FloatType{T: postgres.TypeDouble}
	case schema.TypeDecimal:
		return &atlas.DecimalType{T: postgres.TypeNumeric, Precision: c.Precision, Scale: c.Scale}
	case schema.TypeString:
		return &atlas.StringType{T: postgres.TypeCharVar, Size: varcharSize(c)}
	case schema.TypeDate:
		return &atlas.TimeType{T: postgres.TypeDate}
	case schema.TypeDatetime:
		return &atlas.TimeType{T: postgres.TypeTimestamp}
	case schema.TypeDatetimeTZ:
		return &atlas.TimeType{T: postgres.TypeTimestampTZ}
	case schema.TypeJSON:
		return &atlas.JSONType{T: postgres.TypeJSONB}
	case schema.TypeBytes:
		return &atlas.BinaryType{T: postgres.TypeBytea}
	case schema.TypeUUID:
		return &atlas.UUIDType{T: postgres.TypeUUID}
	}
	return &atlas.StringType{T: postgres.TypeText}
}

func (pgFlavor) autoID(c *atlas.Column) {
	c.Type.Type = &postgres.SerialType{T: postgres.TypeBigSerial}
}

func (pgFlavor) tableAttrs(bool) []atlas.Attr { return nil }

func (pgFlavor) upsert(_ *state, table Fragment, keys, columns []string, rows [][]Fragment) []Fragment {
	set := make([]Fragment, len(columns))
	for i, c := range columns {
		set[i] = Concat(Ident(c), Raw(" = EXCLUDED."), Ident(c))
	}
	return []Fragment{Join(" ",
		insertInto(table, append(append([]string(nil), keys...), columns...), rows),
		Raw("ON CONFLICT"),
		Paren(idents(keys)),
		Raw("DO UPDATE SET"),
		Comma(set...),
	)}
}

func varcharSize(c *schema.Column) int {
	if c.Size <= 0 {
		return 255
	}
	return c.Size
}
