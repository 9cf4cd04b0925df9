package schema

import (
	"maps"
	"slices"
)

// Record is the boundary with the record layer: the mutation compilers
// read values and changes through it and never modify it.
//
// Records satisfy query.Identifier and can be used as query values.
type Record interface {
	// Schema returns the schema the record belongs to.
	Schema() *Schema
	// PrimaryKey returns the id, or nil for records not yet stored.
	PrimaryKey() any
	// Get returns the value of a logical column. Translatable columns
	// return the value of the current locale.
	Get(column string) (any, bool)
	// Translations returns the per-locale values of a translatable column.
	Translations(column string) map[string]any
	// Changes returns the logical columns modified since the record was
	// loaded.
	Changes() []string
}

// Values is a map backed Record.
type Values struct {
	Of   *Schema
	ID   any
	Data map[string]any
	// I18n holds translations keyed by column, then locale.
	I18n    map[string]map[string]any
	Changed []string
}

var _ Record = (*Values)(nil)

// NewValues returns a record of s holding data. Every key of data is
// reported as changed.
func NewValues(s *Schema, data map[string]any) *Values {
	v := &Values{Of: s, Data: data}
	v.Changed = slices.Sorted(maps.Keys(data))
	return v
}

// Schema implements Record.
func (v *Values) Schema() *Schema { return v.Of }

// PrimaryKey implements Record.
func (v *Values) PrimaryKey() any {
	if v.ID != nil {
		return v.ID
	}
	if id := v.Of.ID(); id != nil {
		return v.Data[id.Name]
	}
	return nil
}

// Get implements Record.
func (v *Values) Get(column string) (any, bool) {
	val, ok := v.Data[column]
	return val, ok
}

// Translations implements Record.
func (v *Values) Translations(column string) map[string]any {
	return v.I18n[column]
}

// Changes implements Record.
func (v *Values) Changes() []string { return v.Changed }

// Translate sets the value of a translatable column for a locale and marks
// the column as changed.
func (v *Values) Translate(column, locale string, value any) *Values {
	if v.I18n == nil {
		v.I18n = make(map[string]map[string]any)
	}
	if v.I18n[column] == nil {
		v.I18n[column] = make(map[string]any)
	}
	v.I18n[column][locale] = value
	if !slices.Contains(v.Changed, column) {
		v.Changed = append(v.Changed, column)
	}
	return v
}
