// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package schema

import (
	"context"
	"fmt"
	"strings"
)

// edge is one direction of a foreign key relationship. Edges are stored
// bidirectionally so the path search can walk either way.
type edge struct {
	Table     string // neighbor table
	Column    string // column on the owning side
	RefColumn string // referenced column
	Direction string // "out": this table holds the FK, "in": the neighbor does
}

func buildGraph(doc *Document) map[string][]edge {
	graph := make(map[string][]edge, len(doc.Tables))
	for _, t := range doc.Tables {
		if _, ok := graph[t.Name]; !ok {
			graph[t.Name] = nil
		}
	}
	for _, t := range doc.Tables {
		for _, fk := range t.ForeignKeys {
			ref := doc.table(fk.ReferencesTable)
			if ref == nil {
				continue
			}
			graph[t.Name] = append(graph[t.Name], edge{
				Table: ref.Name, Column: fk.Column, RefColumn: fk.ReferencesColumn, Direction: "out",
			})
			graph[ref.Name] = append(graph[ref.Name], edge{
				Table: t.Name, Column: fk.Column, RefColumn: fk.ReferencesColumn, Direction: "in",
			})
		}
	}
	return graph
}

// bfsPath returns the shortest table path between start and end, or nil.
func bfsPath(graph map[string][]edge, start, end string) []string {
	if start == end {
		return []string{start}
	}
	queue := [][]string{{start}}
	visited := map[string]bool{start: true}
	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		current := path[len(path)-1]
		for _, e := range graph[current] {
			if e.Table == end {
				return append(append([]string(nil), path...), end)
			}
			if !visited[e.Table] {
				visited[e.Table] = true
				queue = append(queue, append(append([]string(nil), path...), e.Table))
			}
		}
	}
	return nil
}

// FindJoinPath synthesizes the JOIN steps connecting the given tables,
// growing a connected set from the first table and attaching each further
// table along its shortest path. Tables with no path to the connected set
// are skipped. Fewer than two tables need no JOIN.
func (m *Manager) FindJoinPath(ctx context.Context, tables []string) ([]JoinStep, error) {
	if len(tables) < 2 {
		return nil, nil
	}
	doc, err := m.Load(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	graph := m.graph
	m.mu.RUnlock()

	canonical := make([]string, 0, len(tables))
	for _, name := range tables {
		if t := doc.table(name); t != nil {
			canonical = append(canonical, t.Name)
		}
	}
	if len(canonical) < 2 {
		return nil, nil
	}

	var steps []JoinStep
	connected := []string{canonical[0]}

	for _, target := range canonical[1:] {
		var best []string
		for _, from := range connected {
			if p := bfsPath(graph, from, target); p != nil && (best == nil || len(p) < len(best)) {
				best = p
			}
		}
		if best == nil {
			continue
		}

		for i := 0; i < len(best)-1; i++ {
			from, to := best[i], best[i+1]
			step, ok := m.joinStep(doc, graph, from, to)
			if !ok {
				continue
			}
			steps = append(steps, step)
		}

		connected = append(connected, target)
		for _, mid := range best[1 : len(best)-1] {
			if !containsTable(connected, mid) {
				connected = append(connected, mid)
			}
		}
	}
	return steps, nil
}

func containsTable(list []string, name string) bool {
	for _, s := range list {
		if s == name {
			return true
		}
	}
	return false
}

// joinStep builds the JOIN condition between two adjacent tables. When more
// than one foreign key links the pair the first is used and the step is
// flagged ambiguous.
func (m *Manager) joinStep(doc *Document, graph map[string][]edge, from, to string) (JoinStep, bool) {
	var candidates []edge
	for _, e := range graph[from] {
		if e.Table == to {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return JoinStep{}, false
	}
	e := candidates[0]

	step := JoinStep{
		FromTable: from,
		JoinTable: to,
		JoinType:  "INNER",
		Ambiguous: len(candidates) > 1,
	}
	if e.Direction == "out" {
		// from holds the FK: from.Column -> to.RefColumn
		step.Condition = fmt.Sprintf("%s.%s = %s.%s", from, e.Column, to, e.RefColumn)
		step.ViaColumn = e.Column
		step.ReferencesColumn = e.RefColumn
		if c := columnOf(doc, from, e.Column); c != nil && !c.NotNull {
			step.JoinType = "LEFT"
		}
	} else {
		// to holds the FK: from.RefColumn -> to.Column
		step.Condition = fmt.Sprintf("%s.%s = %s.%s", from, e.RefColumn, to, e.Column)
		step.ViaColumn = e.RefColumn
		step.ReferencesColumn = e.Column
		if c := columnOf(doc, to, e.Column); c != nil && !c.NotNull {
			step.JoinType = "LEFT"
		}
	}
	return step, true
}

func columnOf(doc *Document, table, column string) *Column {
	if t := doc.table(table); t != nil {
		return t.column(column)
	}
	return nil
}

// JoinSuggestions renders the JOIN path for a table set as prompt text.
func (m *Manager) JoinSuggestions(ctx context.Context, tables []string) string {
	if len(tables) < 2 {
		return ""
	}
	steps, err := m.FindJoinPath(ctx, tables)
	if err != nil || len(steps) == 0 {
		return fmt.Sprintf("## 表关系提示\n涉及的表: %s\n注意: 无法自动找到表之间的连接路径，请根据业务逻辑手动确定JOIN条件。\n", strings.Join(tables, ", "))
	}

	var b strings.Builder
	b.WriteString("## 表关系与JOIN路径建议\n")
	fmt.Fprintf(&b, "### 涉及的表 (%d 个)\n%s\n\n", len(tables), strings.Join(tables, ", "))
	fmt.Fprintf(&b, "### JOIN路径建议\n主表: %s\n\n", tables[0])
	for i, s := range steps {
		fmt.Fprintf(&b, "%d. %s JOIN %s\n   条件: %s\n", i+1, s.JoinType, s.JoinTable, s.Condition)
		if s.Ambiguous {
			b.WriteString("   注意: 两表之间存在多条外键关系，已选择第一条\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("### 注意事项\n- 建议使用表别名（如 customer c, invoice i）\n- 确保JOIN条件正确匹配外键关系\n")
	return b.String()
}
