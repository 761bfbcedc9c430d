// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package schema

import (
	"context"
	"fmt"
	"strings"
)

const maxPromptTables = 5

// FormatForPrompt renders the schema document as prompt text. A nil table
// list means all tables.
func (m *Manager) FormatForPrompt(ctx context.Context, tables []string, includeSamples bool) (string, error) {
	doc, err := m.Load(ctx)
	if err != nil {
		return "", err
	}

	want := func(name string) bool {
		if tables == nil {
			return true
		}
		for _, t := range tables {
			if equalFold(t, name) {
				return true
			}
		}
		return false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "数据库类型: %s\n\n", doc.DatabaseType)
	fmt.Fprintf(&b, "### 可用表清单\n共 %d 个表: %s\n\n### 表结构详情\n", len(doc.TableList), strings.Join(doc.TableList, ", "))

	for _, t := range doc.Tables {
		if !want(t.Name) {
			continue
		}
		fmt.Fprintf(&b, "\n**%s** (%d 行)\n", t.Name, t.RowCount)
		if t.Description != "" {
			fmt.Fprintf(&b, "  描述: %s\n", t.Description)
		}
		b.WriteString("  字段:\n")
		for _, c := range t.Columns {
			line := fmt.Sprintf("    - %s (%s)", c.Name, c.Type)
			if c.PrimaryKey {
				line += " [PK]"
			}
			if c.NotNull {
				line += " [NOT NULL]"
			}
			if c.Description != "" {
				line += " - " + c.Description
			}
			if includeSamples && len(c.SampleValues) > 0 {
				samples := c.SampleValues
				if len(samples) > 3 {
					samples = samples[:3]
				}
				line += fmt.Sprintf(" 示例: [%s]", strings.Join(samples, ", "))
			}
			b.WriteString(line + "\n")
		}
		if len(t.ForeignKeys) > 0 {
			b.WriteString("  外键关系:\n")
			for _, fk := range t.ForeignKeys {
				fmt.Fprintf(&b, "    - %s -> %s.%s\n", fk.Column, fk.ReferencesTable, fk.ReferencesColumn)
			}
		}
	}
	return b.String(), nil
}

// RelevantSchemaText returns the schema slice for a question: the schemas of
// the tables the question appears to touch (with sample values), or the full
// schema without samples when nothing matches. Errors degrade to "".
func (m *Manager) RelevantSchemaText(question string) string {
	ctx := context.Background()
	relevant, err := m.FindRelevantTables(ctx, question)
	if err != nil {
		return ""
	}
	if len(relevant) > 0 {
		if len(relevant) > maxPromptTables {
			relevant = relevant[:maxPromptTables]
		}
		header := fmt.Sprintf("### 与问题相关的表 (共 %d 个)\n检测到问题可能涉及: %s\n\n", len(relevant), strings.Join(relevant, ", "))
		body, err := m.FormatForPrompt(ctx, relevant, true)
		if err != nil {
			return ""
		}
		joins := ""
		if len(relevant) > 1 {
			joins = "\n" + m.JoinSuggestions(ctx, relevant)
		}
		return header + body + joins
	}
	body, err := m.FormatForPrompt(ctx, nil, false)
	if err != nil {
		return ""
	}
	return body
}
