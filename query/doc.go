// Package query implements the query AST: single column predicates
// (Node) joined into AND/OR trees (Compound).
//
// Expressions are immutable by convention; every builder returns a copy.
//
//	q := query.And(
//		query.C("name").Contains("an"),
//		query.C("age").GreaterThan(18),
//		optional, // may be query.Null(), which And drops
//	)
//
// The null query is the identity of And and Or, and same-operator
// compounds flatten instead of nesting. Expressions round trip through a
// JSON wire format (MarshalJSON/UnmarshalJSON) and its MessagePack twin.
package query
