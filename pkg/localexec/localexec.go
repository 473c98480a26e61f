// Package localexec executes SQL against a direct database connection.
//
// The connection is established once at construction and held for the
// process lifetime. It is never pooled beyond database/sql defaults and
// never reconnected automatically: a broken connection surfaces as a hard
// failure of the request that hit it, and falling back to another backend
// is the selector's decision, not this package's.
package localexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	// Postgres driver.
	_ "github.com/lib/pq"
)

// ErrLocalUnavailable indicates the local backend could not be constructed.
var ErrLocalUnavailable = errors.New("local backend unavailable")

// Config holds local executor configuration.
type Config struct {
	// DSN is the Postgres connection string. Falls back to DATABASE_URL
	// when empty.
	DSN string `yaml:"dsn"`
}

// ResultSet is an ordered tabular result with named columns.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Executor runs SQL against the local database.
type Executor struct {
	db *sql.DB
}

// New opens and verifies the local connection. A missing DSN or failed
// ping is a construction-time failure wrapping ErrLocalUnavailable.
func New(ctx context.Context, cfg Config) (*Executor, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, fmt.Errorf("%w: no DSN configured", ErrLocalUnavailable)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocalUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrLocalUnavailable, err)
	}
	return &Executor{db: db}, nil
}

// NewWithDB wraps an existing connection. Used by tests and callers that
// manage their own pool.
func NewWithDB(db *sql.DB) *Executor {
	return &Executor{db: db}
}

// Execute runs one SQL statement and returns its result set. Statements
// that produce no rows return an empty ResultSet rather than an error.
// Failures are not retried here.
func (e *Executor) Execute(ctx context.Context, query string) (*ResultSet, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	rs := &ResultSet{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return rs, nil
}

// Object is a table or view discovered by introspection.
type Object struct {
	Schema string
	Name   string
	Type   string // "table" or "view"
}

// Objects lists tables and views from INFORMATION_SCHEMA.
func (e *Executor) Objects(ctx context.Context) ([]Object, error) {
	const query = `
		SELECT table_schema, table_name, 'table' AS obj_type
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema NOT IN ('pg_catalog', 'information_schema')
		UNION ALL
		SELECT table_schema, table_name, 'view' AS obj_type
		FROM information_schema.views
		WHERE table_schema NOT IN ('pg_catalog', 'information_schema')`

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing objects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var objects []Object
	for rows.Next() {
		var o Object
		if err := rows.Scan(&o.Schema, &o.Name, &o.Type); err != nil {
			return nil, fmt.Errorf("scanning object row: %w", err)
		}
		objects = append(objects, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating objects: %w", err)
	}
	return objects, nil
}

// ColumnsByObject returns column names keyed by "schema.name", in ordinal
// position order.
func (e *Executor) ColumnsByObject(ctx context.Context) (map[string][]string, error) {
	const query = `
		SELECT table_schema, table_name, column_name
		FROM information_schema.columns
		WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY table_schema, table_name, ordinal_position`

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns := make(map[string][]string)
	for rows.Next() {
		var schema, name, column string
		if err := rows.Scan(&schema, &name, &column); err != nil {
			return nil, fmt.Errorf("scanning column row: %w", err)
		}
		key := schema + "." + name
		columns[key] = append(columns[key], column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating columns: %w", err)
	}
	return columns, nil
}

// DB exposes the underlying pool for components that share the connection,
// like the schema store.
func (e *Executor) DB() *sql.DB { return e.db }

// Close releases the connection.
func (e *Executor) Close() error {
	return e.db.Close()
}
