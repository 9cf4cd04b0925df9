package query

// Compound joins expressions with AND or OR.
type Compound struct {
	Op      CompoundOp
	Queries []Expr
}

func (*Compound) expr() {}

// IsNull reports if c has no non-null children.
func (c *Compound) IsNull() bool {
	if c == nil {
		return true
	}
	for _, q := range c.Queries {
		if q != nil && !q.IsNull() {
			return false
		}
	}
	return true
}

// Negated applies De Morgan's law: every child is negated and the
// operator is swapped.
func (c *Compound) Negated() (Expr, error) {
	children := make([]Expr, 0, len(c.Queries))
	for _, q := range c.Queries {
		n, err := q.Negated()
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	if c.Op == OpAnd {
		return Or(children...), nil
	}
	return And(children...), nil
}

// And returns c AND others.
func (c *Compound) And(others ...Expr) Expr {
	return And(append([]Expr{c}, others...)...)
}

// Or returns c OR others.
func (c *Compound) Or(others ...Expr) Expr {
	return Or(append([]Expr{c}, others...)...)
}

// And joins the expressions with AND. Null queries are dropped, nested AND
// compounds are flattened, and a single survivor is returned unchanged.
func And(exprs ...Expr) Expr { return combine(OpAnd, exprs) }

// Or joins the expressions with OR, following the same rules as And.
func Or(exprs ...Expr) Expr { return combine(OpOr, exprs) }

func combine(op CompoundOp, exprs []Expr) Expr {
	queries := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		if isNil(e) || e.IsNull() {
			continue
		}
		if c, ok := e.(*Compound); ok && c.Op == op {
			for _, q := range c.Queries {
				if !isNil(q) && !q.IsNull() {
					queries = append(queries, q)
				}
			}
			continue
		}
		queries = append(queries, e)
	}
	switch len(queries) {
	case 0:
		return Null()
	case 1:
		return queries[0]
	default:
		return &Compound{Op: op, Queries: queries}
	}
}

// isNil reports typed and untyped nil expressions.
func isNil(e Expr) bool {
	switch e := e.(type) {
	case nil:
		return true
	case *Node:
		return e == nil
	case *Compound:
		return e == nil
	}
	return false
}

// Walk calls fn for every node of e in depth-first order.
func Walk(e Expr, fn func(*Node)) {
	switch e := e.(type) {
	case *Node:
		if e != nil && !e.IsNull() {
			fn(e)
		}
	case *Compound:
		if e == nil {
			return
		}
		for _, q := range e.Queries {
			Walk(q, fn)
		}
	}
}

// Columns returns the column names referenced by e, in first-seen order.
func Columns(e Expr) []string {
	var (
		cols []string
		seen = make(map[string]bool)
	)
	Walk(e, func(n *Node) {
		if !seen[n.Column] {
			seen[n.Column] = true
			cols = append(cols, n.Column)
		}
	})
	return cols
}
