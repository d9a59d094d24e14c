package dialect

import (
	"database/sql"
	"fmt"

	_ "github.com/sijms/go-ora/v2"
)

type oracleDialect struct{}

func (oracleDialect) Name() string { return "oracle" }

func (oracleDialect) Open(opts ConnOptions) (*sql.DB, error) {
	dsn := oracleBuildDSN(opts)
	db, err := sql.Open("oracle", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening oracle connection: %w", err)
	}
	return db, nil
}

// Placeholder renders Oracle's numbered bind syntax: :1, :2, ...
func (oracleDialect) Placeholder(n int) string {
	return fmt.Sprintf(":%d", n)
}

// Paginate appends Oracle's row-limiting clause, which requires the query
// to already carry its ORDER BY.
func (oracleDialect) Paginate(query string, limit int) string {
	return fmt.Sprintf("%s FETCH FIRST %d ROWS ONLY", query, limit)
}

func (oracleDialect) QuoteIdent(name string) string {
	return `"` + name + `"`
}

func oracleBuildDSN(opts ConnOptions) string {
	return fmt.Sprintf("oracle://%s:%s@%s:%d/%s",
		opts.User, opts.Password, opts.Host, opts.Port, opts.Database)
}
