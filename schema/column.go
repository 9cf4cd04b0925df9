package schema

import (
	"fmt"

	"github.com/go-openapi/inflect"
)

// Type is the logical storage type of a column. Each dialect maps it to a
// native SQL type.
type Type uint8

// Column types.
const (
	TypeID Type = iota + 1
	TypeBool
	TypeInt
	TypeBigInt
	TypeFloat
	TypeDecimal
	TypeString
	TypeText
	TypeDate
	TypeDatetime
	TypeDatetimeTZ
	TypeInterval
	TypeJSON
	TypeBytes
	TypeUUID
	TypeReference
)

var typeNames = [...]string{
	TypeID:         "id",
	TypeBool:       "bool",
	TypeInt:        "int",
	TypeBigInt:     "bigint",
	TypeFloat:      "float",
	TypeDecimal:    "decimal",
	TypeString:     "string",
	TypeText:       "text",
	TypeDate:       "date",
	TypeDatetime:   "datetime",
	TypeDatetimeTZ: "datetimetz",
	TypeInterval:   "interval",
	TypeJSON:       "json",
	TypeBytes:      "bytes",
	TypeUUID:       "uuid",
	TypeReference:  "reference",
}

// String returns the type name.
func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", t)
}

// IsText reports if values of the type are strings.
func (t Type) IsText() bool {
	return t == TypeString || t == TypeText
}

// Flag is a column attribute bit.
type Flag uint32

// Column flags.
const (
	Primary Flag = 1 << iota
	AutoIncrement
	Required
	Unique
	Translatable
	Virtual
	CaseSensitive
)

// Has reports if all bits of flag are set.
func (f Flag) Has(flag Flag) bool { return f&flag == flag }

// Column describes a logical column and its storage field.
type Column struct {
	// Name is the logical name used by queries.
	Name string
	// Field is the storage field name.
	Field string
	Type  Type
	// Size is the maximum length of string columns.
	Size int
	// Precision and Scale apply to decimal columns.
	Precision, Scale int
	Flags            Flag
	// Reference names the target schema of reference columns.
	Reference string
	// OnDelete is the referential action of reference columns.
	OnDelete string

	schema *Schema
}

func newColumn(name string, t Type) *Column {
	return &Column{Name: name, Field: inflect.Underscore(name), Type: t}
}

// ID returns the auto-incremented primary key column named "id".
func ID() *Column {
	c := newColumn("id", TypeID)
	c.Flags = Primary | AutoIncrement | Required
	return c
}

// Bool returns a boolean column.
func Bool(name string) *Column { return newColumn(name, TypeBool) }

// Int returns a 32-bit integer column.
func Int(name string) *Column { return newColumn(name, TypeInt) }

// BigInt returns a 64-bit integer column.
func BigInt(name string) *Column { return newColumn(name, TypeBigInt) }

// Float returns a double precision column.
func Float(name string) *Column { return newColumn(name, TypeFloat) }

// Decimal returns a fixed precision column.
func Decimal(name string, precision, scale int) *Column {
	c := newColumn(name, TypeDecimal)
	c.Precision, c.Scale = precision, scale
	return c
}

// String returns a bounded string column, 255 characters by default.
func String(name string) *Column {
	c := newColumn(name, TypeString)
	c.Size = 255
	return c
}

// Text returns an unbounded string column.
func Text(name string) *Column { return newColumn(name, TypeText) }

// Date returns a calendar date column.
func Date(name string) *Column { return newColumn(name, TypeDate) }

// Datetime returns a timestamp column without time zone.
func Datetime(name string) *Column { return newColumn(name, TypeDatetime) }

// DatetimeTZ returns a timestamp column with time zone.
func DatetimeTZ(name string) *Column { return newColumn(name, TypeDatetimeTZ) }

// Interval returns a duration column.
func Interval(name string) *Column { return newColumn(name, TypeInterval) }

// JSON returns a JSON document column.
func JSON(name string) *Column { return newColumn(name, TypeJSON) }

// Bytes returns a binary column.
func Bytes(name string) *Column { return newColumn(name, TypeBytes) }

// UUID returns a UUID column.
func UUID(name string) *Column { return newColumn(name, TypeUUID) }

// Reference returns a column holding the primary key of a target schema.
// Its storage field defaults to "<name>_id".
func Reference(name, target string) *Column {
	c := newColumn(name, TypeReference)
	c.Field += "_id"
	c.Reference = target
	return c
}

func (c *Column) flag(f Flag) *Column {
	c.Flags |= f
	return c
}

// PrimaryKey marks the column as the primary key.
func (c *Column) PrimaryKey() *Column { return c.flag(Primary | Required) }

// Unique marks the column as unique.
func (c *Column) Unique() *Column { return c.flag(Unique) }

// Required marks the column as NOT NULL.
func (c *Column) Required() *Column { return c.flag(Required) }

// Translatable stores the column in the locale side table.
func (c *Column) Translatable() *Column { return c.flag(Translatable) }

// Virtual marks the column as computed outside the database.
func (c *Column) Virtual() *Column { return c.flag(Virtual) }

// CaseSensitive makes string comparisons on the column case sensitive by
// default.
func (c *Column) CaseSensitive() *Column { return c.flag(CaseSensitive) }

// StorageKey overrides the storage field name.
func (c *Column) StorageKey(field string) *Column {
	c.Field = field
	return c
}

// MaxLen sets the size of a string column.
func (c *Column) MaxLen(n int) *Column {
	c.Size = n
	return c
}

// Cascade deletes the row when the referenced row is deleted.
func (c *Column) Cascade() *Column {
	c.OnDelete = "CASCADE"
	return c
}

// Is reports if the column has the flag.
func (c *Column) Is(f Flag) bool { return c.Flags.Has(f) }

// IsReference reports if the column references another schema.
func (c *Column) IsReference() bool { return c.Type == TypeReference }

// Schema returns the schema declaring the column.
func (c *Column) Schema() *Schema { return c.schema }
