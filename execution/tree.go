package execution

import (
	"maps"
	"slices"
	"strings"
)

// Terminal selectors of an expand path. They select an aggregate of the
// related records instead of the records themselves. Only first and last
// may carry nested expansions.
const (
	SelectFirst   = "first"
	SelectLast    = "last"
	SelectCount   = "count"
	SelectIDs     = "ids"
	SelectRecords = "records"
)

// IsSelector reports if name is a terminal selector.
func IsSelector(name string) bool {
	switch name {
	case SelectFirst, SelectLast, SelectCount, SelectIDs, SelectRecords:
		return true
	}
	return false
}

// Tree is a nested set of related collectors to expand. Leaves are nil.
type Tree map[string]Tree

// ParseTree builds a tree from dotted paths, e.g. "group.members" and
// "posts.count". A path may also be a comma separated list.
func ParseTree(paths ...string) Tree {
	var t Tree
	for _, p := range paths {
		for _, path := range strings.Split(p, ",") {
			path = strings.TrimSpace(path)
			if path == "" {
				continue
			}
			if t == nil {
				t = Tree{}
			}
			t.add(strings.Split(path, "."))
		}
	}
	return t
}

func (t Tree) add(names []string) {
	name := names[0]
	sub, ok := t[name]
	if len(names) == 1 {
		if !ok {
			t[name] = nil
		}
		return
	}
	if sub == nil {
		sub = Tree{}
		t[name] = sub
	}
	sub.add(names[1:])
}

// Names returns the top-level names in sorted order.
func (t Tree) Names() []string {
	return slices.Sorted(maps.Keys(t))
}

// Paths returns the dotted leaf paths in sorted order.
func (t Tree) Paths() []string {
	var paths []string
	for _, name := range t.Names() {
		sub := t[name]
		if len(sub) == 0 {
			paths = append(paths, name)
			continue
		}
		for _, p := range sub.Paths() {
			paths = append(paths, name+"."+p)
		}
	}
	return paths
}

// Selector returns the first terminal selector among the children, or "".
func (t Tree) Selector() string {
	if s := t.Selectors(); len(s) > 0 {
		return s[0]
	}
	return ""
}

// Selectors returns the terminal selectors among the children, sorted.
func (t Tree) Selectors() []string {
	var s []string
	for _, name := range t.Names() {
		if IsSelector(name) {
			s = append(s, name)
		}
	}
	return s
}

// Related returns the children that are not terminal selectors.
func (t Tree) Related() Tree {
	var out Tree
	for name, sub := range t {
		if IsSelector(name) {
			continue
		}
		if out == nil {
			out = Tree{}
		}
		out[name] = sub.Clone()
	}
	return out
}

// Clone returns a deep copy of t.
func (t Tree) Clone() Tree {
	if t == nil {
		return nil
	}
	cp := make(Tree, len(t))
	for k, v := range t {
		cp[k] = v.Clone()
	}
	return cp
}

// Merge returns the union of t and other.
func (t Tree) Merge(other Tree) Tree {
	if len(other) == 0 {
		return t.Clone()
	}
	out := t.Clone()
	if out == nil {
		out = Tree{}
	}
	for k, v := range other {
		out[k] = out[k].Merge(v)
		if len(out[k]) == 0 {
			out[k] = nil
		}
	}
	return out
}
