// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTrimsOldestFirst(t *testing.T) {
	s := NewSession("s1", 3)
	for i := 1; i <= 5; i++ {
		s.AddQuery(fmt.Sprintf("q%d", i))
	}
	h := s.History()
	require.Len(t, h, 3)
	assert.Equal(t, "q3", h[0].Content)
	assert.Equal(t, "q5", h[2].Content)
}

func TestSessionTurnKinds(t *testing.T) {
	s := NewSession("s1", 10)
	s.AddQuery("查询最近的发票")
	s.AddClarification("您指的是哪个时间范围？", []string{"最近一周", "最近一个月"}, []string{"问题涉及时间但缺少具体时间范围"})
	s.AddClarificationAnswer("最近一个月")
	s.AddAnswer("共有 12 张发票。", "SELECT * FROM invoice LIMIT 200;", 12)
	s.AddChat("你好！")

	h := s.History()
	require.Len(t, h, 5)
	assert.Equal(t, KindQuery, h[0].Kind)
	assert.Equal(t, "user", h[0].Role)
	assert.Equal(t, KindClarification, h[1].Kind)
	assert.Equal(t, []string{"最近一周", "最近一个月"}, h[1].Options)
	assert.Equal(t, KindClarificationAnswer, h[2].Kind)
	assert.Equal(t, "assistant", h[3].Role)
	assert.Equal(t, 12, h[3].RowCount)
	assert.Equal(t, KindChat, h[4].Kind)
}

func TestContextForGenerationFiltersClarifications(t *testing.T) {
	s := NewSession("s1", 10)
	s.AddQuery("查询客户")
	s.AddClarification("哪些客户？", nil, nil)
	s.AddClarificationAnswer("所有客户")
	s.AddAnswer("共 59 位客户。", "SELECT COUNT(*) FROM customer;", 1)

	ctx := s.ContextForGeneration(5)
	assert.Contains(t, ctx, "查询客户")
	assert.Contains(t, ctx, "共 59 位客户")
	assert.Contains(t, ctx, "SELECT COUNT(*) FROM customer;")
	assert.NotContains(t, ctx, "哪些客户？")
	assert.NotContains(t, ctx, "所有客户")
}

func TestContextForGenerationEmpty(t *testing.T) {
	s := NewSession("s1", 10)
	assert.Empty(t, s.ContextForGeneration(5))

	// Only clarification turns still yields no generation context.
	s.AddClarification("哪个月？", nil, nil)
	assert.Empty(t, s.ContextForGeneration(5))
}

func TestContextForClarificationKeepsAllKinds(t *testing.T) {
	s := NewSession("s1", 10)
	s.AddQuery("查询发票")
	s.AddClarification("哪个时间范围？", nil, nil)
	s.AddClarificationAnswer("最近一周")

	ctx := s.ContextForClarification(3)
	assert.Contains(t, ctx, "用户: 查询发票")
	assert.Contains(t, ctx, "助手: 哪个时间范围？")
	assert.Contains(t, ctx, "用户: 最近一周")
}

func TestLastQuery(t *testing.T) {
	s := NewSession("s1", 10)
	assert.Empty(t, s.LastQuery())
	s.AddQuery("第一问")
	s.AddClarification("澄清？", nil, nil)
	s.AddClarificationAnswer("答")
	assert.Equal(t, "第一问", s.LastQuery())
}

func TestExportImportRoundTrip(t *testing.T) {
	s := NewSession("s1", 10)
	s.AddQuery("查询客户")
	s.AddAnswer("共 59 位。", "SELECT COUNT(*) FROM customer;", 1)

	data, err := s.ExportJSON()
	require.NoError(t, err)

	restored := NewSession("s1", 10)
	require.NoError(t, restored.ImportJSON(data))
	h := restored.History()
	require.Len(t, h, 2)
	assert.Equal(t, "查询客户", h[0].Content)
	assert.Equal(t, "SELECT COUNT(*) FROM customer;", h[1].SQL)
}

func TestImportRetrims(t *testing.T) {
	src := NewSession("s1", 10)
	for i := 0; i < 8; i++ {
		src.AddQuery(fmt.Sprintf("q%d", i))
	}
	data, err := src.ExportJSON()
	require.NoError(t, err)

	small := NewSession("s1", 3)
	require.NoError(t, small.ImportJSON(data))
	assert.Equal(t, 3, small.Len())
}

func TestStoreGetCreatesOnce(t *testing.T) {
	st := NewStore(10)
	a := st.Get("sess")
	b := st.Get("sess")
	assert.Same(t, a, b)
	assert.Equal(t, 1, st.Len())

	st.Close("sess")
	assert.Equal(t, 0, st.Len())
	c := st.Get("sess")
	assert.NotSame(t, a, c)
}

func TestSessionConcurrentAppends(t *testing.T) {
	s := NewSession("s1", 10)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AddQuery(fmt.Sprintf("q%d", i))
			_ = s.History()
			_ = s.ContextForGeneration(5)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, s.Len())
}
