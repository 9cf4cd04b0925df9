package schema

import (
	"fmt"
	"slices"

	"github.com/syssam/orbql"
)

// Registry indexes schemas by name and resolves inheritance, references
// and collectors. It is immutable once built.
type Registry struct {
	schemas map[string]*Schema
	order   []*Schema
}

// NewRegistry validates the schemas and returns a registry over them.
func NewRegistry(schemas ...*Schema) (*Registry, error) {
	r := &Registry{schemas: make(map[string]*Schema, len(schemas))}
	for _, s := range schemas {
		if s.Name == "" {
			return nil, fmt.Errorf("schema: schema without a name")
		}
		if _, ok := r.schemas[s.Name]; ok {
			return nil, fmt.Errorf("schema: duplicate schema %q", s.Name)
		}
		if s.ID() == nil {
			return nil, fmt.Errorf("schema: %s has no primary key", s.Name)
		}
		for _, c := range s.Columns {
			if c.schema == nil {
				c.schema = s
			}
		}
		r.schemas[s.Name] = s
		r.order = append(r.order, s)
	}
	for _, s := range r.order {
		if err := r.check(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error.
func MustRegistry(schemas ...*Schema) *Registry {
	r, err := NewRegistry(schemas...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) check(s *Schema) error {
	seen := map[string]bool{s.Name: true}
	for p := s.Inherits; p != ""; {
		parent, ok := r.schemas[p]
		if !ok {
			return fmt.Errorf("schema: %s inherits unknown schema %q", s.Name, p)
		}
		if seen[p] {
			return fmt.Errorf("schema: inheritance cycle through %s", p)
		}
		seen[p] = true
		p = parent.Inherits
	}
	for _, c := range s.Columns {
		if c.IsReference() {
			if _, ok := r.schemas[c.Reference]; !ok {
				return fmt.Errorf("schema: %s.%s references unknown schema %q", s.Name, c.Name, c.Reference)
			}
		}
	}
	for _, idx := range s.Indexes {
		for _, name := range idx.Columns {
			if _, err := r.Column(s, name); err != nil {
				return fmt.Errorf("schema: index %s: %w", idx.Name, err)
			}
		}
	}
	for _, l := range s.ReverseLookups {
		from, ok := r.schemas[l.From]
		if !ok {
			return fmt.Errorf("schema: reverse lookup %s.%s: unknown schema %q", s.Name, l.Name, l.From)
		}
		if _, err := r.Column(from, l.Column); err != nil {
			return fmt.Errorf("schema: reverse lookup %s.%s: %w", s.Name, l.Name, err)
		}
	}
	for _, p := range s.Pipes {
		through, ok := r.schemas[p.Through]
		if !ok {
			return fmt.Errorf("schema: pipe %s.%s: unknown schema %q", s.Name, p.Name, p.Through)
		}
		if _, ok := r.schemas[p.Target]; !ok {
			return fmt.Errorf("schema: pipe %s.%s: unknown schema %q", s.Name, p.Name, p.Target)
		}
		for _, name := range []string{p.From, p.To} {
			if _, err := r.Column(through, name); err != nil {
				return fmt.Errorf("schema: pipe %s.%s: %w", s.Name, p.Name, err)
			}
		}
	}
	return nil
}

// Lookup returns the schema with the given name.
func (r *Registry) Lookup(name string) (*Schema, error) {
	if s, ok := r.schemas[name]; ok {
		return s, nil
	}
	return nil, orbql.NewQueryInvalidError("unknown schema %q", name)
}

// Schemas returns all schemas in registration order.
func (r *Registry) Schemas() []*Schema {
	return append([]*Schema(nil), r.order...)
}

// Parent returns the inheritance parent of s, or nil.
func (r *Registry) Parent(s *Schema) *Schema {
	if s.Inherits == "" {
		return nil
	}
	return r.schemas[s.Inherits]
}

// Chain returns s followed by its ancestors, nearest first.
func (r *Registry) Chain(s *Schema) []*Schema {
	chain := []*Schema{s}
	for p := r.Parent(s); p != nil; p = r.Parent(p) {
		chain = append(chain, p)
	}
	return chain
}

// Root returns the top-most ancestor of s, or s itself.
func (r *Registry) Root(s *Schema) *Schema {
	chain := r.Chain(s)
	return chain[len(chain)-1]
}

// Column resolves a logical column name (or storage field) against s and
// its ancestors.
func (r *Registry) Column(s *Schema, name string) (*Column, error) {
	for _, owner := range r.Chain(s) {
		if c := owner.Column(name); c != nil {
			if c.Is(Primary) && owner != r.Root(s) {
				return r.Root(s).ID(), nil
			}
			return c, nil
		}
	}
	return nil, orbql.NewColumnNotFoundError(s.Name, name)
}

// Columns returns all columns visible on s: the root's columns first, then
// each descendant down to s. Primary keys of descendants are skipped.
func (r *Registry) Columns(s *Schema) []*Column {
	chain := r.Chain(s)
	var cols []*Column
	for i := len(chain) - 1; i >= 0; i-- {
		for _, c := range chain[i].Columns {
			if i < len(chain)-1 && c.Is(Primary) {
				continue
			}
			cols = append(cols, c)
		}
	}
	return cols
}

// Descendants returns the schemas inheriting from s, directly or
// transitively, deepest first.
func (r *Registry) Descendants(s *Schema) []*Schema {
	var (
		out   []*Schema
		depth = make(map[*Schema]int)
	)
	for _, d := range r.order {
		chain := r.Chain(d)
		for i, a := range chain[1:] {
			if a == s {
				out = append(out, d)
				depth[d] = i + 1
				break
			}
		}
	}
	slices.SortStableFunc(out, func(a, b *Schema) int { return depth[b] - depth[a] })
	return out
}

// AutoID reports if the database assigns the primary key of s. Child
// schemas reuse the id of their root row.
func (r *Registry) AutoID(s *Schema) bool {
	return r.Root(s).ID().Is(AutoIncrement)
}

// ReverseLookup resolves a reverse lookup on s or its ancestors.
func (r *Registry) ReverseLookup(s *Schema, name string) (*ReverseLookup, *Schema, bool) {
	for _, owner := range r.Chain(s) {
		if l := owner.ReverseLookup(name); l != nil {
			return l, r.schemas[l.From], true
		}
	}
	return nil, nil, false
}

// Pipe resolves a pipe on s or its ancestors.
func (r *Registry) Pipe(s *Schema, name string) (*Pipe, bool) {
	for _, owner := range r.Chain(s) {
		if p := owner.Pipe(name); p != nil {
			return p, true
		}
	}
	return nil, false
}

// Target returns the schema referenced by a reference column.
func (r *Registry) Target(c *Column) (*Schema, error) {
	if !c.IsReference() {
		return nil, orbql.NewQueryInvalidError("column %s is not a reference", c.Name)
	}
	return r.Lookup(c.Reference)
}
