// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline

import "strings"

// ExtractSQL pulls the SQL statement out of an LLM response, handling
// ```sql fences, bare fences, and raw statements. The result always ends
// with a semicolon.
func ExtractSQL(response string) string {
	sql := strings.TrimSpace(response)

	if i := strings.Index(sql, "```sql"); i >= 0 {
		rest := sql[i+len("```sql"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			sql = rest[:j]
		} else {
			sql = rest
		}
	} else if i := strings.Index(sql, "```"); i >= 0 {
		rest := sql[i+3:]
		if j := strings.Index(rest, "```"); j >= 0 {
			sql = rest[:j]
		} else {
			sql = rest
		}
	}

	sql = strings.TrimSpace(sql)
	if sql != "" && !strings.HasSuffix(sql, ";") {
		sql += ";"
	}
	return sql
}
