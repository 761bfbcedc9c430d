// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package mysql implements the db.Client contract over go-sql-driver/mysql.
// It is the primary backend: schema introspection uses DESCRIBE and
// INFORMATION_SCHEMA, and the per-statement timeout uses the MySQL 5.7+
// max_execution_time session variable.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"sqlpilot/internal/db"
	"sqlpilot/internal/dsn"
)

// mysqlErrTimeout is the server error for "maximum statement execution time
// exceeded" (ER_QUERY_TIMEOUT).
const mysqlErrTimeout = 3024

// Client is a MySQL implementation of db.Client.
type Client struct {
	pool     *sql.DB
	database string
	// maxExecutionMS is applied per connection before each query; zero
	// disables the server-side timeout.
	maxExecutionMS int
}

// Open connects to MySQL using a parsed DSN.
func Open(info *dsn.Info, maxExecutionMS int) (*Client, error) {
	driverDSN, err := dsn.MySQLDriverDSN(info)
	if err != nil {
		return nil, err
	}
	pool, err := sql.Open("mysql", driverDSN)
	if err != nil {
		return nil, err
	}
	return &Client{pool: pool, database: info.Database, maxExecutionMS: maxExecutionMS}, nil
}

// Query executes one read statement and scans all rows into ordered maps.
func (c *Client) Query(ctx context.Context, query string) (*db.Result, error) {
	res := &db.Result{Rows: []map[string]any{}, Columns: []string{}}

	conn, err := c.pool.Conn(ctx)
	if err != nil {
		res.Error = err.Error()
		return res, nil
	}
	defer conn.Close()

	if c.maxExecutionMS > 0 {
		// Ignored on servers without max_execution_time support.
		_, _ = conn.ExecContext(ctx, fmt.Sprintf("SET SESSION max_execution_time = %d", c.maxExecutionMS))
	}

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		res.Error = "database error: " + err.Error()
		if isTimeout(err) {
			res.ErrorCode = db.CodeTimeout
		}
		return res, nil
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		res.Error = err.Error()
		return res, nil
	}
	res.Columns = cols

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			res.Error = err.Error()
			return res, nil
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalize(values[i])
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		res.Error = "database error: " + err.Error()
		if isTimeout(err) {
			res.ErrorCode = db.CodeTimeout
		}
		return res, nil
	}

	res.OK = true
	res.RowCount = len(res.Rows)
	return res, nil
}

// AllSchemas lists every table with its columns via SHOW TABLES + DESCRIBE.
func (c *Client) AllSchemas(ctx context.Context) ([]db.TableSchema, error) {
	names, err := c.tableNames(ctx)
	if err != nil {
		return nil, err
	}
	schemas := make([]db.TableSchema, 0, len(names))
	for _, name := range names {
		ts, err := c.tableSchema(ctx, name)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, ts)
	}
	return schemas, nil
}

func (c *Client) tableNames(ctx context.Context) ([]string, error) {
	rows, err := c.pool.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (c *Client) tableSchema(ctx context.Context, table string) (db.TableSchema, error) {
	ts := db.TableSchema{Name: table}
	rows, err := c.pool.QueryContext(ctx, fmt.Sprintf("DESCRIBE `%s`", table))
	if err != nil {
		return ts, err
	}
	defer rows.Close()

	for rows.Next() {
		var field, colType, null, key string
		var dflt, extra sql.NullString
		if err := rows.Scan(&field, &colType, &null, &key, &dflt, &extra); err != nil {
			return ts, err
		}
		ts.Columns = append(ts.Columns, db.Column{
			Name:       field,
			Type:       colType,
			NotNull:    null == "NO",
			PrimaryKey: key == "PRI",
		})
	}
	return ts, rows.Err()
}

// ForeignKeys reads declared FK constraints from KEY_COLUMN_USAGE.
func (c *Client) ForeignKeys(ctx context.Context, table string) ([]db.ForeignKey, error) {
	const q = `
		SELECT COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND REFERENCED_TABLE_NAME IS NOT NULL`
	rows, err := c.pool.QueryContext(ctx, q, c.database, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []db.ForeignKey
	for rows.Next() {
		var fk db.ForeignKey
		if err := rows.Scan(&fk.Column, &fk.ReferencesTable, &fk.ReferencesColumn); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func (c *Client) Ping(ctx context.Context) error { return c.pool.PingContext(ctx) }
func (c *Client) Type() string                   { return "mysql" }
func (c *Client) Close() error                   { return c.pool.Close() }

// isTimeout reports whether err is the server-side execution timeout.
func isTimeout(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlErrTimeout {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "max_execution_time") || strings.Contains(msg, "timeout")
}

// normalize converts driver byte slices to strings so results marshal and
// print cleanly.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
