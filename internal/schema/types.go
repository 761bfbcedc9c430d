// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package schema

import "time"

// Column describes one column of an introspected table. Aliases and sample
// values feed the fuzzy field search and the generation prompt.
type Column struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	PrimaryKey   bool     `json:"primary_key"`
	NotNull      bool     `json:"not_null"`
	Description  string   `json:"description"`
	Aliases      []string `json:"aliases"`
	SampleValues []string `json:"sample_values"`
}

// ForeignKey is a stored or inferred reference to another table.
type ForeignKey struct {
	Column           string `json:"column"`
	ReferencesTable  string `json:"references_table"`
	ReferencesColumn string `json:"references_column"`
}

// Table is one table of the schema document.
type Table struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Columns     []Column     `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
	RowCount    int64        `json:"row_count"`
}

// FieldRef locates a column by name across tables.
type FieldRef struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	Type   string `json:"type"`
}

// Document is the cached schema snapshot persisted as schema.json.
type Document struct {
	DatabaseType string                `json:"database_type"`
	GeneratedAt  time.Time             `json:"generated_at"`
	Tables       []Table               `json:"tables"`
	TableList    []string              `json:"table_list"`
	FieldIndex   map[string][]FieldRef `json:"field_index"`
}

func (d *Document) table(name string) *Table {
	for i := range d.Tables {
		if equalFold(d.Tables[i].Name, name) {
			return &d.Tables[i]
		}
	}
	return nil
}

func (t *Table) primaryKey() string {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c.Name
		}
	}
	return ""
}

func (t *Table) column(name string) *Column {
	for i := range t.Columns {
		if equalFold(t.Columns[i].Name, name) {
			return &t.Columns[i]
		}
	}
	return nil
}

// FieldMatch is one hit of a field search, ordered by score.
type FieldMatch struct {
	Table     string  `json:"table"`
	Column    string  `json:"column"`
	Type      string  `json:"type"`
	Score     float64 `json:"match_score"`
	MatchType string  `json:"match_type"`
}

// JoinStep is one edge of a synthesized JOIN path.
type JoinStep struct {
	FromTable        string `json:"from_table"`
	JoinTable        string `json:"join_table"`
	JoinType         string `json:"join_type"`
	Condition        string `json:"condition"`
	ViaColumn        string `json:"via_column"`
	ReferencesColumn string `json:"references_column"`
	// Ambiguous is set when more than one foreign key connects the pair
	// and the first one was chosen.
	Ambiguous bool `json:"ambiguous,omitempty"`
}
