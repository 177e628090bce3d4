// Package sqlclient wraps the MySQL-protocol connection used for DDL and
// verification queries.
package sqlclient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Result holds the textual output of one query.
type Result struct {
	Columns []string
	Rows    [][]interface{}
}

// Client executes SQL against the target database.
type Client interface {
	Exec(ctx context.Context, query string) error
	Query(ctx context.Context, query string) (*Result, error)
	Close() error
}

// DBClient is the database/sql-backed Client.
type DBClient struct {
	db      *sql.DB
	timeout time.Duration
}

// Open connects using a MySQL-protocol DSN and verifies the connection.
func Open(ctx context.Context, dsn string, timeout time.Duration) (*DBClient, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxIdleTime(time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", redactDSN(dsn), err)
	}
	return &DBClient{db: db, timeout: timeout}, nil
}

// Exec runs a statement that produces no result rows.
func (c *DBClient) Exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// Query runs a statement and scans every row into a generic value grid.
func (c *DBClient) Query(ctx context.Context, query string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	res := &Result{Columns: cols}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return res, nil
}

// Close releases the connection pool.
func (c *DBClient) Close() error {
	return c.db.Close()
}

// Format renders the result as tab-separated text, one line per row, with a
// header line. Byte slices (the common MySQL text-protocol case) print as
// strings; NULL prints as "NULL".
func (r *Result) Format() string {
	var b strings.Builder
	b.WriteString(strings.Join(r.Columns, "\t"))
	b.WriteByte('\n')
	for _, row := range r.Rows {
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = formatValue(v)
		}
		b.WriteString(strings.Join(parts, "\t"))
		b.WriteByte('\n')
	}
	return b.String()
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}

// redactDSN strips the credential portion of a DSN for log-safe messages.
func redactDSN(dsn string) string {
	if i := strings.LastIndex(dsn, "@"); i >= 0 {
		return "***" + dsn[i:]
	}
	return dsn
}
