// Package dialect abstracts the SQL syntax differences between source and
// destination database engines behind a narrow interface, so the core
// pipeline never branches on engine type.
package dialect

import "database/sql"

// ConnOptions carries the resolved connection parameters for one side of a
// run, filled in from config.TableConfig.
type ConnOptions struct {
	Host     string
	Port     int
	Database string
	Schema   string
	User     string
	Password string
}

// Dialect decouples SQL construction from engine-specific syntax: bind
// placeholders, pagination clauses, and identifier quoting.
type Dialect interface {
	// Name identifies the dialect, e.g. "oracle" or "sqlserver".
	Name() string

	// Open establishes a database/sql connection for opts.
	Open(opts ConnOptions) (*sql.DB, error)

	// Placeholder renders the nth (1-based) bind parameter in this
	// dialect's placeholder syntax.
	Placeholder(n int) string

	// Paginate wraps query so that it returns at most limit rows, using
	// this dialect's pagination clause. query must already include its
	// ORDER BY clause.
	Paginate(query string, limit int) string

	// QuoteIdent quotes a single identifier (schema, table, or column
	// name) for safe interpolation into generated SQL.
	QuoteIdent(name string) string
}

// ForName resolves a dialect by its config-declared type name.
func ForName(name string) (Dialect, bool) {
	switch name {
	case "oracle":
		return oracleDialect{}, true
	case "sqlserver":
		return sqlserverDialect{}, true
	default:
		return nil, false
	}
}
