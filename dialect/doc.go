// Package dialect identifies the supported SQL backends and the driver
// contracts shared by the compilers and the connection manager.
//
// Each dialect is identified by a constant string:
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// The constants double as the database/sql driver names registered by
// github.com/lib/pq, github.com/go-sql-driver/mysql and modernc.org/sqlite.
//
// # Sub-packages
//
//   - dialect/sql: SQL fragment tree, per-dialect statement compilers,
//     database/sql driver wrapper and driver error translation.
package dialect
