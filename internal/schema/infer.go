// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package schema

import (
	"strings"

	"github.com/go-openapi/inflect"
)

// specialFKBases maps naming conventions that do not literally name the
// referenced table, like SupportRepId and ReportsTo pointing at employee.
var specialFKBases = map[string]string{
	"supportrep": "employee",
	"reportsto":  "employee",
}

// fkBase extracts the referenced-table candidate from a column name, or ""
// when the column does not look like a foreign key.
func fkBase(colName string) string {
	var base string
	switch {
	case strings.HasSuffix(colName, "Id") && len(colName) > 2:
		base = colName[:len(colName)-2]
	case strings.HasSuffix(strings.ToLower(colName), "_id") && len(colName) > 3:
		base = colName[:len(colName)-3]
	default:
		return ""
	}
	lower := strings.ToLower(base)
	if mapped, ok := specialFKBases[lower]; ok {
		return mapped
	}
	return lower
}

// inferForeignKeys derives foreign keys from column naming when the database
// defines no constraints. Candidate tables are matched in priority order:
// exact name, singularized name, "rep" alias into employee, then primary key
// name equality. Primary key columns never become foreign keys.
func inferForeignKeys(doc *Document, t *Table) []ForeignKey {
	var out []ForeignKey
	for _, col := range t.Columns {
		if col.PrimaryKey {
			continue
		}
		base := fkBase(col.Name)
		if base == "" {
			continue
		}

		for i := range doc.Tables {
			target := &doc.Tables[i]
			if equalFold(target.Name, t.Name) {
				continue
			}
			pk := target.primaryKey()
			if pk == "" {
				continue
			}
			targetLower := strings.ToLower(target.Name)

			match := targetLower == base ||
				strings.ToLower(inflect.Singularize(targetLower)) == base ||
				(strings.Contains(base, "rep") && strings.Contains(targetLower, "employee")) ||
				equalFold(pk, col.Name)
			if match {
				out = append(out, ForeignKey{
					Column:           col.Name,
					ReferencesTable:  target.Name,
					ReferencesColumn: pk,
				})
				break
			}
		}
	}
	return out
}
