package dialect

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/microsoft/go-mssqldb"
)

type sqlserverDialect struct{}

func (sqlserverDialect) Name() string { return "sqlserver" }

func (sqlserverDialect) Open(opts ConnOptions) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", sqlserverBuildDSN(opts))
	if err != nil {
		return nil, fmt.Errorf("opening sqlserver connection: %w", err)
	}
	return db, nil
}

// Placeholder renders SQL Server's positional bind syntax: every parameter
// is "?", regardless of position.
func (sqlserverDialect) Placeholder(int) string {
	return "?"
}

// Paginate appends SQL Server's OFFSET/FETCH clause, which requires the
// query to already carry its ORDER BY.
func (sqlserverDialect) Paginate(query string, limit int) string {
	return fmt.Sprintf("%s OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", query, limit)
}

func (sqlserverDialect) QuoteIdent(name string) string {
	return "[" + name + "]"
}

// sqlserverBuildDSN mirrors the teacher's mssqlBuildDSN: a URL-shaped DSN
// with credentials in the userinfo and the database name as a query param.
func sqlserverBuildDSN(opts ConnOptions) string {
	query := url.Values{}
	query.Add("database", opts.Database)

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(opts.User, opts.Password),
		Host:     fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		RawQuery: query.Encode(),
	}
	return u.String()
}
