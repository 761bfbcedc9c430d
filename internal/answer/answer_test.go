// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlpilot/internal/db"
	"sqlpilot/internal/prompt"
)

func TestExtractStats(t *testing.T) {
	rows := []map[string]any{
		{"Total": 10.5, "Country": "Germany"},
		{"Total": int64(20), "Country": "Germany"},
		{"Total": 5.0, "Country": "France"},
		{"Total": nil, "Country": "Brazil"},
	}
	stats := ExtractStats(rows, []string{"Total", "Country"})
	require.Contains(t, stats, "Total")
	require.Contains(t, stats, "Country")

	total := stats["Total"]
	assert.True(t, total.Numeric)
	assert.Equal(t, 20.0, total.Max)
	assert.Equal(t, 5.0, total.Min)
	assert.Equal(t, 35.5, total.Sum)
	assert.Equal(t, 3, total.Count)
	assert.InDelta(t, 11.83, total.Avg, 0.01)

	country := stats["Country"]
	assert.False(t, country.Numeric)
	assert.Equal(t, 3, country.UniqueCount)
	assert.Equal(t, 4, country.TotalCount)
}

func TestExtractStatsEmpty(t *testing.T) {
	assert.Nil(t, ExtractStats(nil, []string{"a"}))
}

func TestSummarizeEmpty(t *testing.T) {
	out := Summarize(&db.Result{OK: true})
	assert.Contains(t, out, "查询结果为空")
}

func TestSummarizeFull(t *testing.T) {
	res := &db.Result{
		OK:       true,
		Columns:  []string{"Name"},
		Rows:     []map[string]any{{"Name": "AC/DC"}, {"Name": "Accept"}},
		RowCount: 2,
	}
	out := Summarize(res)
	assert.Contains(t, out, "共 2 条记录")
	assert.Contains(t, out, "AC/DC")
	assert.Contains(t, out, "记录 2:")
}

func TestSummarizeLarge(t *testing.T) {
	res := &db.Result{OK: true, Columns: []string{"Total"}}
	for i := 0; i < 25; i++ {
		res.Rows = append(res.Rows, map[string]any{"Total": float64(i)})
	}
	res.RowCount = 25

	out := Summarize(res)
	assert.Contains(t, out, "查询返回 25 条记录")
	assert.Contains(t, out, "前5条")
	assert.Contains(t, out, "最大值: 24.00")
	assert.Contains(t, out, "平均值: 12.00")
	// Only the sample rows are listed in full.
	assert.NotContains(t, out, "记录 6:")
}

type fakeLLM struct {
	resp   string
	err    error
	called bool
}

func (f *fakeLLM) Chat(ctx context.Context, p, sys string) (string, error) {
	f.called = true
	return f.resp, f.err
}

func singleRow() *db.Result {
	return &db.Result{
		OK:       true,
		Columns:  []string{"n"},
		Rows:     []map[string]any{{"n": int64(59)}},
		RowCount: 1,
	}
}

func TestBuildUsesLLM(t *testing.T) {
	f := &fakeLLM{resp: "共有 59 位客户。"}
	b := NewBuilder(f, prompt.NewStore())
	out := b.Build(context.Background(), "有多少客户？", "SELECT COUNT(*) AS n FROM customer", singleRow())
	assert.Equal(t, "共有 59 位客户。", out)
	assert.True(t, f.called)
}

func TestBuildStripsFences(t *testing.T) {
	f := &fakeLLM{resp: "```\n共有 59 位客户。\n```"}
	b := NewBuilder(f, prompt.NewStore())
	out := b.Build(context.Background(), "q", "sql", singleRow())
	assert.Equal(t, "共有 59 位客户。", out)
}

func TestBuildFallsBack(t *testing.T) {
	f := &fakeLLM{err: errors.New("llm down")}
	b := NewBuilder(f, prompt.NewStore())
	out := b.Build(context.Background(), "q", "sql", singleRow())
	assert.Contains(t, out, "共 1 条记录")
}

func TestBuildEmptyResult(t *testing.T) {
	f := &fakeLLM{}
	b := NewBuilder(f, prompt.NewStore())
	out := b.Build(context.Background(), "q", "sql", &db.Result{OK: true})
	assert.Contains(t, out, "查询结果为空")
	assert.False(t, f.called)
}

func TestBuildNilResult(t *testing.T) {
	b := NewBuilder(nil, prompt.NewStore())
	out := b.Build(context.Background(), "q", "sql", nil)
	assert.Contains(t, out, "无法生成答案")
}

func TestFormatStatsOrder(t *testing.T) {
	stats := map[string]ColumnStats{
		"b": {Numeric: true, Count: 1},
		"a": {UniqueCount: 2, TotalCount: 2},
	}
	out := FormatStats(stats)
	assert.Less(t, strings.Index(out, "- a:"), strings.Index(out, "- b:"))
}
