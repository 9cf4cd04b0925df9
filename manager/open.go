package manager

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/syssam/orbql/dialect"
	"github.com/syssam/orbql/dialect/sql"
	"github.com/syssam/orbql/schema"
)

// driverNames maps dialects to the registered database/sql drivers.
var driverNames = map[string]string{
	dialect.Postgres: "postgres",
	dialect.MySQL:    "mysql",
	dialect.SQLite:   "sqlite",
}

// Open opens a connection pool as described by cfg and returns a manager
// over it.
func Open(cfg Config, reg *schema.Registry, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("manager: missing dsn")
	}
	dsn, err := normalizeDSN(cfg.Dialect, cfg.DSN)
	if err != nil {
		return nil, err
	}
	drv, err := sql.Open(cfg.Dialect, driverNames[cfg.Dialect], dsn)
	if err != nil {
		return nil, fmt.Errorf("manager: open %s: %w", cfg.Dialect, err)
	}
	db := drv.DB()
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.MaxSessions > 0 {
		db.SetMaxOpenConns(cfg.MaxSessions)
	}
	m, err := New(drv, reg, append([]Option{WithConfig(cfg)}, opts...)...)
	if err != nil {
		return nil, errors.Join(err, drv.Close())
	}
	return m, nil
}

// normalizeDSN adjusts driver options the compilers rely on: MySQL
// scans temporal columns as time.Time and SQLite enforces foreign keys.
func normalizeDSN(name, dsn string) (string, error) {
	switch name {
	case dialect.MySQL:
		c, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("manager: parse mysql dsn: %w", err)
		}
		c.ParseTime = true
		return c.FormatDSN(), nil
	case dialect.SQLite:
		if strings.Contains(dsn, "foreign_keys") {
			return dsn, nil
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "_pragma=foreign_keys(1)", nil
	default:
		return dsn, nil
	}
}
