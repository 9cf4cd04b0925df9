package sql

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/syssam/orbql/dialect"
)

// Fragment is a node of a SQL fragment tree. Identifiers are always
// quoted and values are always bound as parameters when the tree is
// rendered, so user input never reaches the statement text.
type Fragment interface {
	render(*renderer)
}

type (
	raw     string
	ident   []string
	literal string
	param   struct {
		name  string
		value any
	}
	list struct {
		sep   string
		items []Fragment
	}
)

// Raw returns a fragment of SQL keywords or operators. It must never
// hold user input.
func Raw(s string) Fragment { return raw(s) }

// Ident returns a quoted, dot separated identifier. Empty parts are
// skipped, so Ident(namespace, table) works with an empty namespace.
func Ident(parts ...string) Fragment {
	id := make(ident, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}

// Literal returns a quoted string constant. It is used for metadata
// such as JSON keys, never for query values.
func Literal(s string) Fragment { return literal(s) }

// Param returns a named placeholder bound to v.
func Param(name string, v any) Fragment { return param{name: name, value: v} }

// Int returns an integer constant.
func Int(n int) Fragment { return raw(strconv.Itoa(n)) }

// Join joins the non-empty fragments with sep.
func Join(sep string, items ...Fragment) Fragment {
	l := list{sep: sep}
	for _, f := range items {
		if !IsEmpty(f) {
			l.items = append(l.items, f)
		}
	}
	return l
}

// Concat concatenates the fragments.
func Concat(items ...Fragment) Fragment { return Join("", items...) }

// Comma joins the fragments with ", ".
func Comma(items ...Fragment) Fragment { return Join(", ", items...) }

// Paren wraps f in parentheses.
func Paren(f Fragment) Fragment { return Concat(raw("("), f, raw(")")) }

// As aliases f.
func As(f Fragment, alias string) Fragment { return Concat(f, raw(" AS "), Ident(alias)) }

// Func renders a function call.
func Func(name string, args ...Fragment) Fragment {
	return Concat(raw(name), Paren(Comma(args...)))
}

// IsEmpty reports if f renders to nothing.
func IsEmpty(f Fragment) bool {
	switch f := f.(type) {
	case nil:
		return true
	case raw:
		return f == ""
	case ident:
		return len(f) == 0
	case list:
		return len(f.items) == 0
	}
	return false
}

// renderer writes a fragment tree in the syntax of one dialect and
// collects the bound parameters.
type renderer struct {
	dialect string
	sb      strings.Builder
	params  map[string]any
	names   []string
	index   map[string]int
	// inline writes values as constants instead of placeholders.
	inline bool
	err    error
}

func (r *renderer) write(s string) { r.sb.WriteString(s) }

func (r *renderer) quote(s string) string {
	if r.dialect == dialect.MySQL {
		return "`" + strings.ReplaceAll(s, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (r *renderer) bind(name string, v any) {
	if r.inline {
		r.constant(v)
		return
	}
	if r.params == nil {
		r.params = make(map[string]any)
		r.index = make(map[string]int)
	}
	r.params[name] = v
	r.names = append(r.names, name)
	switch r.dialect {
	case dialect.MySQL:
		r.write("?")
	case dialect.SQLite:
		r.write(":" + name)
	default:
		i, ok := r.index[name]
		if !ok {
			i = len(r.index) + 1
			r.index[name] = i
		}
		r.write("$" + strconv.Itoa(i))
	}
}

// constant writes v as a SQL constant.
func (r *renderer) constant(v any) {
	switch v := v.(type) {
	case nil:
		r.write("NULL")
	case bool:
		if v {
			r.write("TRUE")
		} else {
			r.write("FALSE")
		}
	case int:
		r.write(strconv.FormatInt(int64(v), 10))
	case int8:
		r.write(strconv.FormatInt(int64(v), 10))
	case int16:
		r.write(strconv.FormatInt(int64(v), 10))
	case int32:
		r.write(strconv.FormatInt(int64(v), 10))
	case int64:
		r.write(strconv.FormatInt(v, 10))
	case uint:
		r.write(strconv.FormatUint(uint64(v), 10))
	case uint8:
		r.write(strconv.FormatUint(uint64(v), 10))
	case uint16:
		r.write(strconv.FormatUint(uint64(v), 10))
	case uint32:
		r.write(strconv.FormatUint(uint64(v), 10))
	case uint64:
		r.write(strconv.FormatUint(v, 10))
	case float32:
		r.write(strconv.FormatFloat(float64(v), 'g', -1, 32))
	case float64:
		r.write(strconv.FormatFloat(v, 'g', -1, 64))
	case string:
		literal(v).render(r)
	case time.Time:
		literal(v.Format("2006-01-02 15:04:05.999999")).render(r)
	case []byte:
		if r.dialect == dialect.Postgres {
			r.write(`'\x` + hex.EncodeToString(v) + "'::bytea")
		} else {
			r.write("X'" + hex.EncodeToString(v) + "'")
		}
	case fmt.Stringer:
		literal(v.String()).render(r)
	default:
		if r.err == nil {
			r.err = invalid("cannot write a %T value as a constant", v)
		}
		r.write("NULL")
	}
}

func (f raw) render(r *renderer) { r.write(string(f)) }

func (f ident) render(r *renderer) {
	for i, p := range f {
		if i > 0 {
			r.write(".")
		}
		r.write(r.quote(p))
	}
}

func (f literal) render(r *renderer) {
	s := string(f)
	if r.dialect == dialect.MySQL {
		s = escapeStringValue(s)
	} else {
		s = strings.ReplaceAll(s, "'", "''")
	}
	r.write("'" + s + "'")
}

func (f param) render(r *renderer) { r.bind(f.name, f.value) }

func (f list) render(r *renderer) {
	for i, item := range f.items {
		if i > 0 {
			r.write(f.sep)
		}
		item.render(r)
	}
}

// Render renders f for the given dialect.
func Render(name string, f Fragment) *Statement {
	r := &renderer{dialect: name}
	if f != nil {
		f.render(r)
	}
	return &Statement{
		Dialect: name,
		Text:    r.sb.String(),
		Params:  r.params,
		names:   r.names,
	}
}

// RenderInline renders f for the given dialect with bound values written
// as constants. It is used for statements that take no parameters, such
// as view definitions.
func RenderInline(name string, f Fragment) (*Statement, error) {
	r := &renderer{dialect: name, inline: true}
	if f != nil {
		f.render(r)
	}
	if r.err != nil {
		return nil, r.err
	}
	return &Statement{Dialect: name, Text: r.sb.String()}, nil
}
