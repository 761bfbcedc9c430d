// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package answer turns SQL execution results into a natural language answer.
// Small result sets go to the LLM in full; larger ones are reduced to a
// sample plus per-column statistics first so the prompt stays bounded.
package answer

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"sqlpilot/internal/db"
	"sqlpilot/internal/llm"
	"sqlpilot/internal/prompt"
)

const (
	fullResultThreshold = 10
	sampleSize          = 5
)

// ColumnStats summarizes one column of a result set. Numeric columns carry
// the aggregate fields; other columns only the distinct counts.
type ColumnStats struct {
	Numeric     bool
	Max         float64
	Min         float64
	Avg         float64
	Sum         float64
	Count       int
	UniqueCount int
	TotalCount  int
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ExtractStats computes per-column statistics over a result set.
func ExtractStats(rows []map[string]any, columns []string) map[string]ColumnStats {
	if len(rows) == 0 {
		return nil
	}
	out := make(map[string]ColumnStats)
	for _, col := range columns {
		var numeric []float64
		var values []string
		for _, row := range rows {
			v, ok := row[col]
			if !ok || v == nil {
				continue
			}
			values = append(values, fmt.Sprintf("%v", v))
			if f, ok := asFloat(v); ok {
				numeric = append(numeric, f)
			}
		}
		if len(values) == 0 {
			continue
		}

		if len(numeric) > 0 {
			st := ColumnStats{Numeric: true, Max: numeric[0], Min: numeric[0], Count: len(numeric)}
			for _, f := range numeric {
				if f > st.Max {
					st.Max = f
				}
				if f < st.Min {
					st.Min = f
				}
				st.Sum += f
			}
			st.Avg = st.Sum / float64(len(numeric))
			out[col] = st
			continue
		}

		unique := map[string]bool{}
		for _, v := range values {
			unique[v] = true
		}
		out[col] = ColumnStats{UniqueCount: len(unique), TotalCount: len(values)}
	}
	return out
}

// FormatStats renders statistics as prompt text, columns in sorted order.
func FormatStats(stats map[string]ColumnStats) string {
	if len(stats) == 0 {
		return "无关键统计信息"
	}
	cols := make([]string, 0, len(stats))
	for c := range stats {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	var b strings.Builder
	for _, col := range cols {
		st := stats[col]
		fmt.Fprintf(&b, "- %s:\n", col)
		if st.Numeric {
			fmt.Fprintf(&b, "  - 最大值: %.2f\n  - 最小值: %.2f\n  - 平均值: %.2f\n  - 总计: %.2f\n  - 记录数: %d\n", st.Max, st.Min, st.Avg, st.Sum, st.Count)
		} else {
			fmt.Fprintf(&b, "  - 唯一值数量: %d\n  - 总记录数: %d\n", st.UniqueCount, st.TotalCount)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatRows(rows []map[string]any, columns []string) string {
	var b strings.Builder
	for i, row := range rows {
		fmt.Fprintf(&b, "\n记录 %d:\n", i+1)
		for _, col := range columns {
			fmt.Fprintf(&b, "  %s: %v\n", col, row[col])
		}
	}
	return b.String()
}

// Summarize renders an execution result as the data section of the answer
// prompt: empty message, the full set when small, or a sample with stats.
func Summarize(res *db.Result) string {
	if res == nil || res.RowCount == 0 {
		return "查询结果为空，没有找到匹配的数据。"
	}
	if res.RowCount <= fullResultThreshold {
		return fmt.Sprintf("共 %d 条记录：%s", res.RowCount, formatRows(res.Rows, res.Columns))
	}
	sample := res.Rows
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}
	stats := ExtractStats(res.Rows, res.Columns)
	return fmt.Sprintf("查询返回 %d 条记录，以下是前 %d 条示例和关键统计信息。\n\n示例数据（前%d条）：%s\n关键统计信息：\n%s",
		res.RowCount, len(sample), len(sample), formatRows(sample, res.Columns), FormatStats(stats))
}

// Builder generates the final natural language answer.
type Builder struct {
	LLM     llm.Client
	Prompts *prompt.Store
}

func NewBuilder(client llm.Client, prompts *prompt.Store) *Builder {
	return &Builder{LLM: client, Prompts: prompts}
}

// Build asks the LLM to answer the question from the execution result. When
// the LLM is unavailable a deterministic summary is returned instead so the
// user still sees their data.
func (b *Builder) Build(ctx context.Context, question, sql string, res *db.Result) string {
	if res == nil {
		return "无法生成答案：SQL查询尚未执行或执行失败。"
	}
	if res.RowCount == 0 {
		return "查询结果为空，没有找到匹配的数据。"
	}

	fallback := Summarize(res)
	if b.LLM == nil {
		return fallback
	}

	stats := ExtractStats(res.Rows, res.Columns)
	p, err := b.Prompts.LoadAndRender("answer", map[string]string{
		"question":     question,
		"sql":          sql,
		"data_summary": Summarize(res),
		"key_values":   FormatStats(stats),
		"row_count":    strconv.Itoa(res.RowCount),
		"columns":      strings.Join(res.Columns, ", "),
	})
	if err != nil {
		return fallback
	}

	resp, err := b.LLM.Chat(ctx, p, "")
	if err != nil || strings.TrimSpace(resp) == "" {
		return fallback
	}
	return stripFences(resp)
}

// stripFences removes a wrapping markdown code fence from an LLM response.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
