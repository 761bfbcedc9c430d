// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package schema introspects the connected database into a cached schema
// document and answers the questions the pipeline has about it: which tables
// a question touches, which columns a keyword means, and how to JOIN a set
// of tables together.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sqlpilot/internal/db"
	"sqlpilot/internal/errors"
)

const sampleValueLimit = 3

// Manager owns the schema document and its relationship graph. The document
// is generated from the database once and cached on disk and in memory.
type Manager struct {
	client db.Client
	path   string

	mu    sync.RWMutex
	doc   *Document
	graph map[string][]edge
}

// NewManager creates a manager persisting the document at path.
func NewManager(client db.Client, path string) *Manager {
	return &Manager{client: client, path: path}
}

// NewFromDocument wraps an existing document, used when the schema comes
// from a file or a fixture rather than a live connection.
func NewFromDocument(doc *Document) *Manager {
	m := &Manager{}
	m.install(doc)
	return m
}

func (m *Manager) install(doc *Document) {
	enrich(doc)
	m.mu.Lock()
	m.doc = doc
	m.graph = buildGraph(doc)
	m.mu.Unlock()
}

// enrich fills in the derived parts of a document: aliases, inferred foreign
// keys and the field index.
func enrich(doc *Document) {
	index := make(map[string][]FieldRef)
	doc.TableList = doc.TableList[:0]
	for i := range doc.Tables {
		t := &doc.Tables[i]
		doc.TableList = append(doc.TableList, t.Name)
		if len(t.ForeignKeys) == 0 {
			t.ForeignKeys = inferForeignKeys(doc, t)
		}
		for j := range t.Columns {
			c := &t.Columns[j]
			if len(c.Aliases) == 0 {
				c.Aliases = columnAliases(c.Name)
			}
			key := strings.ToLower(c.Name)
			index[key] = append(index[key], FieldRef{Table: t.Name, Column: c.Name, Type: c.Type})
		}
	}
	doc.FieldIndex = index
}

// Generate introspects the database and writes a fresh schema document.
func (m *Manager) Generate(ctx context.Context) (*Document, error) {
	if m.client == nil {
		return nil, errors.New(errors.SchemaUnavailable, "no database connection for schema generation")
	}

	tables, err := m.client.AllSchemas(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.SchemaUnavailable, "introspect tables", err)
	}

	doc := &Document{
		DatabaseType: m.client.Type(),
		GeneratedAt:  time.Now(),
	}
	for _, ts := range tables {
		t := Table{Name: ts.Name}
		for _, c := range ts.Columns {
			t.Columns = append(t.Columns, Column{
				Name:       c.Name,
				Type:       c.Type,
				PrimaryKey: c.PrimaryKey,
				NotNull:    c.NotNull,
			})
		}

		fks, err := m.client.ForeignKeys(ctx, ts.Name)
		if err == nil {
			for _, fk := range fks {
				t.ForeignKeys = append(t.ForeignKeys, ForeignKey{
					Column:           fk.Column,
					ReferencesTable:  fk.ReferencesTable,
					ReferencesColumn: fk.ReferencesColumn,
				})
			}
		}

		m.sampleTable(ctx, &t)
		doc.Tables = append(doc.Tables, t)
	}

	m.install(doc)
	if m.path != "" {
		if err := m.save(doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// sampleTable records the row count and a few sample values per column.
// Sampling failures leave the fields empty, the document is still usable.
func (m *Manager) sampleTable(ctx context.Context, t *Table) {
	if res, err := m.client.Query(ctx, fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", t.Name)); err == nil && res.OK && len(res.Rows) == 1 {
		for _, v := range res.Rows[0] {
			switch n := v.(type) {
			case int64:
				t.RowCount = n
			case float64:
				t.RowCount = int64(n)
			}
		}
	}

	res, err := m.client.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", t.Name, sampleValueLimit))
	if err != nil || !res.OK {
		return
	}
	for i := range t.Columns {
		c := &t.Columns[i]
		for _, row := range res.Rows {
			if v, ok := row[c.Name]; ok && v != nil {
				s := fmt.Sprintf("%v", v)
				if len(s) > 50 {
					s = s[:50]
				}
				c.SampleValues = append(c.SampleValues, s)
			}
		}
	}
}

func (m *Manager) save(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o600)
}

// Load returns the cached document, reading it from disk or generating it
// from the database on first use.
func (m *Manager) Load(ctx context.Context) (*Document, error) {
	m.mu.RLock()
	doc := m.doc
	m.mu.RUnlock()
	if doc != nil {
		return doc, nil
	}

	if m.path != "" {
		if data, err := os.ReadFile(m.path); err == nil {
			var d Document
			if err := json.Unmarshal(data, &d); err == nil {
				m.install(&d)
				return m.document(), nil
			}
		}
	}
	return m.Generate(ctx)
}

func (m *Manager) document() *Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.doc
}

// Invalidate drops the in-memory cache so the next Load re-reads the schema.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.doc = nil
	m.graph = nil
	m.mu.Unlock()
}
