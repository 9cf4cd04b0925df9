// Package schema describes the tables the compilers read: columns and
// their flags, indexes, inheritance, and relationship collectors.
//
// Schemas are declared with builders and collected in a Registry, which
// validates cross references and resolves columns through the
// inheritance chain:
//
//	users := schema.New("User",
//		schema.String("name").Required(),
//		schema.String("title").Translatable(),
//		schema.Reference("group", "Group"),
//	)
//	groups := schema.New("Group", schema.String("name")).
//		WithReverseLookups(&schema.ReverseLookup{Name: "users", From: "User", Column: "group"})
//	reg := schema.MustRegistry(users, groups)
//
// The compilers only read these values; they are never modified after the
// registry is built.
package schema
