package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/orbql"
)

// Value type tags of the wire format.
const (
	TypeNull       = "null"
	TypeBool       = "bool"
	TypeInt        = "int"
	TypeFloat      = "float"
	TypeString     = "string"
	TypeDatetime   = "datetime"
	TypeDate       = "date"
	TypeInterval   = "interval"
	TypeList       = "list"
	TypeQuery      = "query"
	TypeCompound   = "compound"
	TypeRef        = "ref"
	TypeCollection = "collection"
)

// wireExpr is the structured form of a node or compound shared by the
// JSON and MessagePack encodings.
type wireExpr struct {
	Type          string      `json:"type" msgpack:"type"`
	Model         string      `json:"model,omitempty" msgpack:"model,omitempty"`
	Column        string      `json:"column,omitempty" msgpack:"column,omitempty"`
	Op            string      `json:"op,omitempty" msgpack:"op,omitempty"`
	CaseSensitive bool        `json:"caseSensitive,omitempty" msgpack:"caseSensitive,omitempty"`
	Functions     []string    `json:"functions,omitempty" msgpack:"functions,omitempty"`
	Math          []wireMath  `json:"math,omitempty" msgpack:"math,omitempty"`
	Inverted      bool        `json:"inverted,omitempty" msgpack:"inverted,omitempty"`
	Value         *wireValue  `json:"value,omitempty" msgpack:"value,omitempty"`
	Queries       []*wireExpr `json:"queries,omitempty" msgpack:"queries,omitempty"`
}

type wireMath struct {
	Op    string     `json:"op" msgpack:"op"`
	Value *wireValue `json:"value" msgpack:"value"`
}

type wireValue struct {
	Type   string       `json:"type" msgpack:"type"`
	Bool   *bool        `json:"bool,omitempty" msgpack:"bool,omitempty"`
	Int    *int64       `json:"int,omitempty" msgpack:"int,omitempty"`
	Float  *float64     `json:"float,omitempty" msgpack:"float,omitempty"`
	Text   *string      `json:"text,omitempty" msgpack:"text,omitempty"`
	Items  []*wireValue `json:"items,omitempty" msgpack:"items,omitempty"`
	Query  *wireExpr    `json:"query,omitempty" msgpack:"query,omitempty"`
	Model  string       `json:"model,omitempty" msgpack:"model,omitempty"`
	Column string       `json:"column,omitempty" msgpack:"column,omitempty"`
	ID     *wireValue   `json:"id,omitempty" msgpack:"id,omitempty"`
}

// MarshalJSON encodes the expression in the JSON wire format.
func MarshalJSON(e Expr) ([]byte, error) {
	w, err := encodeExpr(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an expression from the JSON wire format.
// Unknown fields are rejected.
func UnmarshalJSON(data []byte) (Expr, error) {
	var w wireExpr
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return nil, orbql.NewQueryInvalidError("decode json: %v", err)
	}
	return decodeExpr(&w)
}

// MarshalMsgpack encodes the expression as MessagePack using the same
// structure as the JSON wire format.
func MarshalMsgpack(e Expr) ([]byte, error) {
	w, err := encodeExpr(e)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(w)
}

// UnmarshalMsgpack decodes an expression encoded by MarshalMsgpack.
func UnmarshalMsgpack(data []byte) (Expr, error) {
	var w wireExpr
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, orbql.NewQueryInvalidError("decode msgpack: %v", err)
	}
	return decodeExpr(&w)
}

// FromMap decodes an expression from its generic map form, as found in
// YAML documents or decoded JSON objects.
func FromMap(m map[string]any) (Expr, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, orbql.NewQueryInvalidError("encode map: %v", err)
	}
	return UnmarshalJSON(data)
}

// MarshalJSON implements json.Marshaler.
func (n *Node) MarshalJSON() ([]byte, error) { return MarshalJSON(n) }

// MarshalJSON implements json.Marshaler.
func (c *Compound) MarshalJSON() ([]byte, error) { return MarshalJSON(c) }

func encodeExpr(e Expr) (*wireExpr, error) {
	switch e := e.(type) {
	case *Compound:
		if e == nil {
			return &wireExpr{Type: TypeQuery}, nil
		}
		w := &wireExpr{Type: TypeCompound, Op: e.Op.String()}
		for _, q := range e.Queries {
			wq, err := encodeExpr(q)
			if err != nil {
				return nil, err
			}
			w.Queries = append(w.Queries, wq)
		}
		return w, nil
	case *Node:
		if e.IsNull() {
			return &wireExpr{Type: TypeQuery}, nil
		}
		w := &wireExpr{
			Type:          TypeQuery,
			Model:         e.Model,
			Column:        e.Column,
			Op:            e.Op.String(),
			CaseSensitive: e.CaseSensitive,
			Inverted:      e.Inverted,
		}
		for _, f := range e.Functions {
			w.Functions = append(w.Functions, f.String())
		}
		for _, m := range e.Math {
			v, err := encodeValue(m.Value)
			if err != nil {
				return nil, err
			}
			w.Math = append(w.Math, wireMath{Op: m.Op.String(), Value: v})
		}
		if e.HasValue() {
			v, err := encodeValue(e.Value)
			if err != nil {
				return nil, err
			}
			w.Value = v
		}
		return w, nil
	case nil:
		return &wireExpr{Type: TypeQuery}, nil
	default:
		return nil, orbql.NewQueryInvalidError("unexpected expression %T", e)
	}
}

func encodeValue(v any) (*wireValue, error) {
	switch v := v.(type) {
	case nil:
		return &wireValue{Type: TypeNull}, nil
	case bool:
		return &wireValue{Type: TypeBool, Bool: &v}, nil
	case string:
		return &wireValue{Type: TypeString, Text: &v}, nil
	case float32, float64:
		f := normalize(v).(float64)
		return &wireValue{Type: TypeFloat, Float: &f}, nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, orbql.NewQueryInvalidError("integer %d overflows int64", v)
		}
		i := int64(v)
		return &wireValue{Type: TypeInt, Int: &i}, nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return nil, orbql.NewQueryInvalidError("integer %d overflows int64", v)
		}
		i := int64(v)
		return &wireValue{Type: TypeInt, Int: &i}, nil
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		i := normalize(v).(int64)
		return &wireValue{Type: TypeInt, Int: &i}, nil
	case time.Time:
		s := v.Format(time.RFC3339Nano)
		return &wireValue{Type: TypeDatetime, Text: &s}, nil
	case Date:
		s := v.String()
		return &wireValue{Type: TypeDate, Text: &s}, nil
	case time.Duration:
		s := v.String()
		return &wireValue{Type: TypeInterval, Text: &s}, nil
	case *Node:
		q, err := encodeExpr(v)
		if err != nil {
			return nil, err
		}
		return &wireValue{Type: TypeQuery, Query: q}, nil
	case *Compound:
		q, err := encodeExpr(v)
		if err != nil {
			return nil, err
		}
		return &wireValue{Type: TypeCompound, Query: q}, nil
	case *Collection:
		w := &wireValue{Type: TypeCollection, Model: v.Model, Column: v.Column}
		if v.Where != nil && !v.Where.IsNull() {
			q, err := encodeExpr(v.Where)
			if err != nil {
				return nil, err
			}
			w.Query = q
		}
		return w, nil
	case Ref, *Ref, Identifier:
		r := normalize(v).(Ref)
		id, err := encodeValue(r.ID)
		if err != nil {
			return nil, err
		}
		return &wireValue{Type: TypeRef, Model: r.Model, ID: id}, nil
	}
	if vs, ok := Values(v); ok {
		w := &wireValue{Type: TypeList, Items: make([]*wireValue, 0, len(vs))}
		for _, item := range vs {
			iv, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			w.Items = append(w.Items, iv)
		}
		return w, nil
	}
	return nil, orbql.NewQueryInvalidError("unsupported value type %T", v)
}

func decodeExpr(w *wireExpr) (Expr, error) {
	if w == nil {
		return Null(), nil
	}
	switch w.Type {
	case TypeCompound:
		op, err := ParseCompoundOp(w.Op)
		if err != nil {
			return nil, err
		}
		c := &Compound{Op: op}
		for _, wq := range w.Queries {
			q, err := decodeExpr(wq)
			if err != nil {
				return nil, err
			}
			c.Queries = append(c.Queries, q)
		}
		return c, nil
	case TypeQuery, "":
		if w.Column == "" && w.Value == nil {
			return Null(), nil
		}
		n := &Node{
			Model:         w.Model,
			Column:        w.Column,
			Op:            Is,
			Value:         Undefined,
			CaseSensitive: w.CaseSensitive,
			Inverted:      w.Inverted,
		}
		if w.Op != "" {
			op, err := ParseOp(w.Op)
			if err != nil {
				return nil, err
			}
			n.Op = op
		}
		for _, name := range w.Functions {
			f, err := ParseFunction(name)
			if err != nil {
				return nil, err
			}
			n.Functions = append(n.Functions, f)
		}
		for _, wm := range w.Math {
			op, err := ParseMathOp(wm.Op)
			if err != nil {
				return nil, err
			}
			v, err := decodeValue(wm.Value)
			if err != nil {
				return nil, err
			}
			n.Math = append(n.Math, Math{Op: op, Value: v})
		}
		if w.Value != nil {
			v, err := decodeValue(w.Value)
			if err != nil {
				return nil, err
			}
			n.Value = v
		}
		return n, nil
	default:
		return nil, orbql.NewQueryInvalidError("unknown expression type %q", w.Type)
	}
}

func decodeValue(w *wireValue) (any, error) {
	if w == nil {
		return nil, nil
	}
	text := func() (string, error) {
		if w.Text == nil {
			return "", orbql.NewQueryInvalidError("%s value without text", w.Type)
		}
		return *w.Text, nil
	}
	switch w.Type {
	case TypeNull:
		return nil, nil
	case TypeBool:
		if w.Bool == nil {
			return false, nil
		}
		return *w.Bool, nil
	case TypeInt:
		if w.Int == nil {
			return int64(0), nil
		}
		return *w.Int, nil
	case TypeFloat:
		if w.Float == nil {
			return float64(0), nil
		}
		return *w.Float, nil
	case TypeString:
		if w.Text == nil {
			return "", nil
		}
		return *w.Text, nil
	case TypeDatetime:
		s, err := text()
		if err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, orbql.NewQueryInvalidError("datetime value: %v", err)
		}
		return t, nil
	case TypeDate:
		s, err := text()
		if err != nil {
			return nil, err
		}
		d, err := ParseDate(s)
		if err != nil {
			return nil, orbql.NewQueryInvalidError("date value: %v", err)
		}
		return d, nil
	case TypeInterval:
		s, err := text()
		if err != nil {
			return nil, err
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, orbql.NewQueryInvalidError("interval value: %v", err)
		}
		return d, nil
	case TypeList:
		items := make([]any, 0, len(w.Items))
		for _, wi := range w.Items {
			v, err := decodeValue(wi)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	case TypeQuery, TypeCompound:
		if w.Query == nil {
			return nil, orbql.NewQueryInvalidError("%s value without query", w.Type)
		}
		return decodeExpr(w.Query)
	case TypeRef:
		id, err := decodeValue(w.ID)
		if err != nil {
			return nil, err
		}
		return Ref{Model: w.Model, ID: id}, nil
	case TypeCollection:
		c := &Collection{Model: w.Model, Column: w.Column}
		if w.Query != nil {
			where, err := decodeExpr(w.Query)
			if err != nil {
				return nil, err
			}
			c.Where = where
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown value type %q", orbql.ErrQueryInvalid, w.Type)
	}
}
