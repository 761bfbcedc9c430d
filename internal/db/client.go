// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package db defines the read-only database collaborator used by the query
// pipeline and its result and schema types. Driver implementations live in
// the mysql and postgres subpackages.
//
// All statement-safety enforcement happens in the sandbox before a statement
// reaches a driver; drivers only add the server-side execution timeout and
// report a distinct TIMEOUT error code when it fires.
package db

import "context"

// CodeTimeout tags execution results that failed on the server-side
// statement timeout, distinct from generic execution errors.
const CodeTimeout = "TIMEOUT"

// Result is the normalized outcome of one query execution.
type Result struct {
	OK        bool             `json:"ok"`
	Rows      []map[string]any `json:"rows"`
	Columns   []string         `json:"columns"`
	RowCount  int              `json:"row_count"`
	Error     string           `json:"error,omitempty"`
	ErrorCode string           `json:"error_code,omitempty"`
}

// Column describes one column of a table.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null"`
	PrimaryKey bool   `json:"primary_key"`
}

// TableSchema describes one table.
type TableSchema struct {
	Name    string   `json:"table_name"`
	Columns []Column `json:"columns"`
}

// ForeignKey is an explicit foreign-key constraint read from the database.
type ForeignKey struct {
	Column           string `json:"column"`
	ReferencesTable  string `json:"references_table"`
	ReferencesColumn string `json:"references_column"`
}

// Client is the database collaborator contract. Implementations must be safe
// for concurrent use; the pipeline may run many sessions at once.
type Client interface {
	// Query executes one read statement. Execution failures are reported in
	// the Result, not the error; the error is reserved for programming
	// mistakes such as a closed client.
	Query(ctx context.Context, sql string) (*Result, error)
	// AllSchemas lists every table with its columns.
	AllSchemas(ctx context.Context) ([]TableSchema, error)
	// ForeignKeys lists the explicit FK constraints of one table. An empty
	// result is normal for schemas without declared constraints; the schema
	// manager falls back to name-based inference.
	ForeignKeys(ctx context.Context, table string) ([]ForeignKey, error)
	// Ping verifies connectivity.
	Ping(ctx context.Context) error
	// Type names the engine, e.g. "mysql".
	Type() string
	Close() error
}
