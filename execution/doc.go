// Package execution defines the options that parameterize query
// compilation: projection, filtering, ordering, pagination, localization
// and expansion of related records.
//
// Contexts are built with functional options or decoded from generic maps
// and YAML documents, and derived from each other with Merge:
//
//	base := execution.New(execution.WithLocale("fr_FR"), execution.WithLimit(50))
//	page := base.Derive(execution.WithPage(2, 25), execution.WithExpand("group.members"))
package execution
