package execution

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/syssam/orbql"
	"github.com/syssam/orbql/query"
)

// Option keys accepted by FromMap and ParseYAML.
const (
	KeyLocale        = "locale"
	KeyDefaultLocale = "default_locale"
	KeyColumns       = "columns"
	KeyWhere         = "where"
	KeyOrder         = "order"
	KeyLimit         = "limit"
	KeyStart         = "start"
	KeyPage          = "page"
	KeyPageSize      = "pageSize"
	KeyDistinct      = "distinct"
	KeyDistinctOn    = "distinct_on"
	KeyExpand        = "expand"
	KeyNamespace     = "namespace"
	KeyUseBaseQuery  = "use_base_query"
	KeyDryRun        = "dry_run"
	KeyForce         = "force"
	KeyBatchSize     = "batch_size"
)

type decoder func(c *Context, v any) error

var decoders = map[string]decoder{
	KeyLocale:        stringOpt(optLocale, func(c *Context, s string) { c.Locale = s }),
	KeyDefaultLocale: stringOpt(optDefaultLocale, func(c *Context, s string) { c.DefaultLocale = s }),
	KeyNamespace:     stringOpt(optNamespace, func(c *Context, s string) { c.Namespace = s }),
	KeyColumns:       listOpt(optColumns, func(c *Context, l []string) { c.Columns = l }),
	KeyDistinctOn:    listOpt(optDistinctOn, func(c *Context, l []string) { c.DistinctOn = l }),
	KeyLimit:         intOpt(optLimit, func(c *Context, n int) { c.Limit = n }),
	KeyStart:         intOpt(optStart, func(c *Context, n int) { c.Start = n }),
	KeyPage:          intOpt(optPage, func(c *Context, n int) { c.Page = n }),
	KeyPageSize:      intOpt(optPageSize, func(c *Context, n int) { c.PageSize = n }),
	KeyBatchSize:     intOpt(optBatchSize, func(c *Context, n int) { c.BatchSize = n }),
	KeyDistinct:      boolOpt(optDistinct, func(c *Context, b bool) { c.Distinct = b }),
	KeyUseBaseQuery:  boolOpt(optBaseQuery, func(c *Context, b bool) { c.SkipBaseQuery = !b }),
	KeyDryRun:        boolOpt(optDryRun, func(c *Context, b bool) { c.DryRun = b }),
	KeyForce:         boolOpt(optForce, func(c *Context, b bool) { c.Force = b }),
	KeyWhere:         decodeWhere,
	KeyOrder:         decodeOrder,
	KeyExpand:        decodeExpand,
}

// Keys returns the accepted option keys in sorted order.
func Keys() []string {
	return slices.Sorted(maps.Keys(decoders))
}

// FromMap builds a context from generic options. Unknown keys are
// rejected with a QueryInvalidError. Non-integer pagination values are a
// DatabaseError.
func FromMap(m map[string]any) (*Context, error) {
	c := New()
	for _, k := range slices.Sorted(maps.Keys(m)) {
		dec, ok := decoders[k]
		if !ok {
			return nil, orbql.NewQueryInvalidError("unknown option %q", k)
		}
		if err := dec(c, m[k]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ParseYAML builds a context from a YAML document of options.
func ParseYAML(data []byte) (*Context, error) {
	var m map[string]any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return New(), nil
		}
		return nil, orbql.NewQueryInvalidError("decode options: %v", err)
	}
	return FromMap(m)
}

func stringOpt(o option, set func(*Context, string)) decoder {
	return func(c *Context, v any) error {
		s, ok := v.(string)
		if !ok {
			return orbql.NewQueryInvalidError("expect string option, got %T", v)
		}
		set(c, s)
		c.set |= o
		return nil
	}
}

func boolOpt(o option, set func(*Context, bool)) decoder {
	return func(c *Context, v any) error {
		b, ok := v.(bool)
		if !ok {
			return orbql.NewQueryInvalidError("expect boolean option, got %T", v)
		}
		set(c, b)
		c.set |= o
		return nil
	}
}

func intOpt(o option, set func(*Context, int)) decoder {
	return func(c *Context, v any) error {
		n, err := toInt(v)
		if err != nil {
			return err
		}
		if n < 0 {
			return orbql.NewDatabaseError("expect a non-negative integer, got %d", n)
		}
		set(c, n)
		c.set |= o
		return nil
	}
}

func toInt(v any) (int, error) {
	switch v := v.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case int32:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v == math.Trunc(v) {
			return int(v), nil
		}
	}
	return 0, orbql.NewDatabaseError("expect an integer, got %v", v)
}

func listOpt(o option, set func(*Context, []string)) decoder {
	return func(c *Context, v any) error {
		l, err := toStrings(v)
		if err != nil {
			return err
		}
		set(c, l)
		c.set |= o
		return nil
	}
}

func toStrings(v any) ([]string, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		var l []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				l = append(l, s)
			}
		}
		return l, nil
	case []string:
		return v, nil
	case []any:
		l := make([]string, len(v))
		for i, x := range v {
			s, ok := x.(string)
			if !ok {
				return nil, orbql.NewQueryInvalidError("expect string list item, got %T", x)
			}
			l[i] = s
		}
		return l, nil
	}
	return nil, orbql.NewQueryInvalidError("expect string list, got %T", v)
}

func decodeWhere(c *Context, v any) error {
	switch v := v.(type) {
	case nil:
		return nil
	case query.Expr:
		c.Where = v
	case map[string]any:
		e, err := query.FromMap(v)
		if err != nil {
			return err
		}
		c.Where = e
	default:
		return orbql.NewQueryInvalidError("unsupported where option %T", v)
	}
	c.set |= optWhere
	return nil
}

func decodeOrder(c *Context, v any) error {
	var order []Order
	switch v := v.(type) {
	case nil:
	case string:
		o, err := ParseOrder(v)
		if err != nil {
			return err
		}
		order = o
	case []Order:
		order = v
	default:
		keys, err := toStrings(v)
		if err != nil {
			return fmt.Errorf("order: %w", err)
		}
		for _, k := range keys {
			o, err := parseKey(strings.TrimSpace(k))
			if err != nil {
				return err
			}
			order = append(order, o)
		}
	}
	c.Order = order
	c.set |= optOrder
	return nil
}

func decodeExpand(c *Context, v any) error {
	var t Tree
	switch v := v.(type) {
	case nil:
	case Tree:
		t = v.Clone()
	case map[string]any:
		var err error
		if t, err = treeOf(v); err != nil {
			return err
		}
	default:
		paths, err := toStrings(v)
		if err != nil {
			return fmt.Errorf("expand: %w", err)
		}
		t = ParseTree(paths...)
	}
	c.Expand = c.Expand.Merge(t)
	c.set |= optExpand
	return nil
}

func treeOf(m map[string]any) (Tree, error) {
	t := make(Tree, len(m))
	for k, v := range m {
		switch v := v.(type) {
		case nil, bool:
			t[k] = nil
		case map[string]any:
			sub, err := treeOf(v)
			if err != nil {
				return nil, err
			}
			if len(sub) == 0 {
				sub = nil
			}
			t[k] = sub
		default:
			return nil, orbql.NewQueryInvalidError("expand: unsupported value %T for %q", v, k)
		}
	}
	return t, nil
}
