// Package sql compiles query expressions and execution contexts into SQL
// statements for PostgreSQL, MySQL and SQLite, and runs them through
// database/sql.
//
// # Compilers
//
// NewCompiler returns the Compiler of a dialect over a schema registry.
// Every compiled statement carries its text and its named parameters:
//
//	c, _ := sql.NewCompiler(dialect.Postgres, reg)
//	stmt, _ := c.Select(user, execution.New(
//	    execution.WithColumns("name"),
//	    execution.WithWhere(query.C("name").Contains("an")),
//	    execution.WithLimit(10),
//	))
//	// SELECT "users"."id", "users"."name" FROM "users" WHERE "users"."name" ILIKE $1 LIMIT 10
//
// Parameters are named after the column they are compared to with a
// statement wide counter (name_1, name_2). Statement.Args returns them in
// the binding style of the dialect: $n for PostgreSQL, ? for MySQL and
// :name for SQLite.
//
// A filter that can match no row, such as IsIn with no values, compiles to
// an empty statement that must not be executed.
//
// # Batches
//
// Mutations and schema changes compile to a Batch: the statements of one
// transaction with the tables they write. Inserts describe how generated
// ids are read back through Batch.Identity. Deletes filtering on related
// or translated columns carry a Lookup query whose ids are passed to
// DeleteIDs.
//
// # Drivers
//
// Driver wraps a *sql.DB, and ConnDriver a single reserved connection.
// Session variables set with WithVar persist on reserved connections.
// StatsDriver records query counts and slow queries of any dialect.Driver.
//
// TranslateError maps driver errors of lib/pq, go-sql-driver/mysql and
// modernc.org/sqlite to the typed errors of package orbql.
package sql
