// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package postgres implements the db.Client contract over a pgx connection
// pool. The per-statement timeout is set with statement_timeout on the
// acquired connection; a fired timeout surfaces as SQLSTATE 57014.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sqlpilot/internal/db"
	"sqlpilot/internal/dsn"
)

// pgErrQueryCanceled is SQLSTATE 57014, raised when statement_timeout fires.
const pgErrQueryCanceled = "57014"

// Client is a PostgreSQL implementation of db.Client.
type Client struct {
	pool           *pgxpool.Pool
	maxExecutionMS int
}

// Open connects to PostgreSQL using a parsed DSN.
func Open(ctx context.Context, info *dsn.Info, maxExecutionMS int) (*Client, error) {
	poolDSN, err := dsn.PostgresPoolDSN(info)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, poolDSN)
	if err != nil {
		return nil, err
	}
	return &Client{pool: pool, maxExecutionMS: maxExecutionMS}, nil
}

// Query executes one read statement and scans all rows into ordered maps.
func (c *Client) Query(ctx context.Context, query string) (*db.Result, error) {
	res := &db.Result{Rows: []map[string]any{}, Columns: []string{}}

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		res.Error = err.Error()
		return res, nil
	}
	defer conn.Release()

	if c.maxExecutionMS > 0 {
		_, _ = conn.Exec(ctx, fmt.Sprintf("SET statement_timeout = %d", c.maxExecutionMS))
		// Reset on the way out so the pooled connection is reusable.
		defer func() { _, _ = conn.Exec(context.Background(), "SET statement_timeout = 0") }()
	}

	rows, err := conn.Query(ctx, query)
	if err != nil {
		setQueryError(res, err)
		return res, nil
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = string(fd.Name)
	}
	res.Columns = cols

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			res.Error = err.Error()
			return res, nil
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = vals[i]
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		setQueryError(res, err)
		return res, nil
	}

	res.OK = true
	res.RowCount = len(res.Rows)
	return res, nil
}

// AllSchemas lists every table in the public schema with its columns.
func (c *Client) AllSchemas(ctx context.Context) ([]db.TableSchema, error) {
	const q = `
		SELECT c.table_name, c.column_name, c.data_type, c.is_nullable = 'NO',
		       EXISTS (
		           SELECT 1
		           FROM information_schema.table_constraints tc
		           JOIN information_schema.key_column_usage kc
		             ON tc.constraint_name = kc.constraint_name
		           WHERE tc.constraint_type = 'PRIMARY KEY'
		             AND kc.table_name = c.table_name
		             AND kc.column_name = c.column_name
		       )
		FROM information_schema.columns c
		WHERE c.table_schema = 'public'
		ORDER BY c.table_name, c.ordinal_position`

	rows, err := c.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schemas []db.TableSchema
	byName := map[string]int{}
	for rows.Next() {
		var table string
		var col db.Column
		if err := rows.Scan(&table, &col.Name, &col.Type, &col.NotNull, &col.PrimaryKey); err != nil {
			return nil, err
		}
		idx, ok := byName[table]
		if !ok {
			schemas = append(schemas, db.TableSchema{Name: table})
			idx = len(schemas) - 1
			byName[table] = idx
		}
		schemas[idx].Columns = append(schemas[idx].Columns, col)
	}
	return schemas, rows.Err()
}

// ForeignKeys reads declared FK constraints from information_schema.
func (c *Client) ForeignKeys(ctx context.Context, table string) ([]db.ForeignKey, error) {
	const q = `
		SELECT kc.column_name, cc.table_name, cc.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kc
		  ON tc.constraint_name = kc.constraint_name
		JOIN information_schema.constraint_column_usage cc
		  ON tc.constraint_name = cc.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_name = $1`

	rows, err := c.pool.Query(ctx, q, table)
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

func (c *Client) Ping(ctx context.Context) error { return c.pool.Ping(ctx) }
func (c *Client) Type() string                   { return "postgresql" }
func (c *Client) Close() error                   { c.pool.Close(); return nil }

// setQueryError records err on res, tagging statement timeouts.
func setQueryError(res *db.Result, err error) {
	res.Error = "database error: " + err.Error()
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgErrQueryCanceled {
		res.ErrorCode = db.CodeTimeout
	} else if errors.Is(err, context.DeadlineExceeded) {
		res.ErrorCode = db.CodeTimeout
	}
}
