// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlpilot/internal/answer"
	"sqlpilot/internal/clarify"
	"sqlpilot/internal/db"
	"sqlpilot/internal/errors"
	"sqlpilot/internal/logging"
	"sqlpilot/internal/memory"
	"sqlpilot/internal/prompt"
	"sqlpilot/internal/sandbox"
	"sqlpilot/internal/validate"
)

// scriptLLM routes calls on template markers so one fake serves every
// pipeline collaborator. SQL generations are consumed in order.
type scriptLLM struct {
	mu           sync.Mutex
	sqlResponses []string
	clarifyResp  string
	critiqueResp string
	answerResp   string
	chatResp     string

	sqlPrompts    []string
	critiqueCalls int
	chatCalls     int
}

func (s *scriptLLM) Chat(ctx context.Context, p, sys string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case strings.Contains(p, "澄清问题"):
		return s.clarifyResp, nil
	case strings.Contains(p, "审查专家"):
		s.critiqueCalls++
		return s.critiqueResp, nil
	case strings.Contains(p, "数据分析助手"):
		return s.answerResp, nil
	case strings.Contains(p, "闲聊"):
		s.chatCalls++
		return s.chatResp, nil
	default:
		s.sqlPrompts = append(s.sqlPrompts, p)
		if len(s.sqlResponses) == 0 {
			return "", nil
		}
		resp := s.sqlResponses[0]
		if len(s.sqlResponses) > 1 {
			s.sqlResponses = s.sqlResponses[1:]
		}
		return resp, nil
	}
}

type fakeDB struct {
	mu      sync.Mutex
	queries []string
	result  *db.Result
}

func (f *fakeDB) Query(ctx context.Context, sql string) (*db.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, sql)
	if f.result != nil {
		return f.result, nil
	}
	return &db.Result{OK: true, Columns: []string{"Name"}, Rows: []map[string]any{{"Name": "AC/DC"}}, RowCount: 1}, nil
}

func (f *fakeDB) AllSchemas(ctx context.Context) ([]db.TableSchema, error)           { return nil, nil }
func (f *fakeDB) ForeignKeys(ctx context.Context, table string) ([]db.ForeignKey, error) {
	return nil, nil
}
func (f *fakeDB) Ping(ctx context.Context) error { return nil }
func (f *fakeDB) Type() string                   { return "mysql" }
func (f *fakeDB) Close() error                   { return nil }

func (f *fakeDB) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type staticSchema struct{}

func (staticSchema) RelevantSchemaText(string) string {
	return "customer(CustomerId, Name, City)\ninvoice(InvoiceId, CustomerId, InvoiceDate, Total)"
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []logging.SecurityEvent
}

func (r *recordingAuditor) Record(ev logging.SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func newTestOrchestrator(l *scriptLLM, fdb *fakeDB, aud logging.Auditor, maxRegen int) *Orchestrator {
	prompts := prompt.NewStore()
	guard := sandbox.NewGuard(1000, 200, nil, aud)
	return New(Options{
		LLM:              l,
		DB:               fdb,
		Guard:            guard,
		Prompts:          prompts,
		Schema:           staticSchema{},
		Sessions:         memory.NewStore(10),
		Clarify:          clarify.NewManager(l, prompts, staticSchema{}, 3),
		Critic:           validate.NewCritic(l, prompts, staticSchema{}),
		Answers:          answer.NewBuilder(l, prompts),
		MaxRegenerations: maxRegen,
	})
}

func TestRunHappyPath(t *testing.T) {
	l := &scriptLLM{
		sqlResponses: []string{"```sql\nSELECT Name FROM customer\n```"},
		answerResp:   "共找到 1 位客户：AC/DC。",
	}
	fdb := &fakeDB{}
	o := newTestOrchestrator(l, fdb, nil, 3)

	st, err := o.Run(context.Background(), Request{SessionID: "s1", Question: "列出所有客户的名称"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, st.Outcome)
	assert.Equal(t, PhaseDone, st.Phase)
	assert.Equal(t, "共找到 1 位客户：AC/DC。", st.Answer)
	assert.Equal(t, "SELECT Name FROM customer LIMIT 200;", st.CandidateSQL)

	require.Len(t, fdb.queries, 1)
	assert.Equal(t, st.CandidateSQL, fdb.queries[0])

	h := o.opts.Sessions.Get("s1").History()
	require.Len(t, h, 2)
	assert.Equal(t, memory.KindQuery, h[0].Kind)
	assert.Equal(t, memory.KindAnswer, h[1].Kind)
	assert.Equal(t, 1, h[1].RowCount)
}

func TestRunChatShortCircuit(t *testing.T) {
	l := &scriptLLM{chatResp: "你好！需要我帮你查询数据吗？"}
	fdb := &fakeDB{}
	o := newTestOrchestrator(l, fdb, nil, 3)

	st, err := o.Run(context.Background(), Request{SessionID: "s1", Question: "你好"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeChat, st.Outcome)
	assert.True(t, st.IsChatResponse)
	assert.Equal(t, "你好！需要我帮你查询数据吗？", st.ChatResponse)
	assert.Empty(t, st.CandidateSQL)
	assert.Zero(t, fdb.queryCount())
	assert.Empty(t, l.sqlPrompts)
}

func TestRunBlockedSQLNeverReachesDriver(t *testing.T) {
	l := &scriptLLM{sqlResponses: []string{"DROP TABLE customer"}}
	fdb := &fakeDB{}
	aud := &recordingAuditor{}
	o := newTestOrchestrator(l, fdb, aud, 3)

	st, err := o.Run(context.Background(), Request{SessionID: "s1", Question: "列出所有客户的名称"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, st.Outcome)
	require.NotNil(t, st.Err)
	assert.Equal(t, errors.SandboxBlocked, st.Err.Kind)
	require.NotNil(t, st.Execution)
	assert.Equal(t, sandbox.CodeNonSelect, st.Execution.ErrorCode)

	assert.Zero(t, fdb.queryCount(), "blocked statement must not reach the driver")
	require.Len(t, aud.events, 1)
	assert.Equal(t, "blocked", aud.events[0].Action)
}

func TestRunRegenerationBounded(t *testing.T) {
	l := &scriptLLM{
		sqlResponses: []string{"SELECT FROM WHERE"},
		critiqueResp: "语法不完整，缺少选择列与表名。",
	}
	fdb := &fakeDB{}
	o := newTestOrchestrator(l, fdb, nil, 2)

	st, err := o.Run(context.Background(), Request{SessionID: "s1", Question: "列出所有客户的名称"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, st.Outcome)
	require.NotNil(t, st.Err)
	assert.Equal(t, errors.ValidationExhausted, st.Err.Kind)
	assert.Equal(t, 2, st.RegenerationCount)

	// Initial attempt plus two regenerations, one critique per regeneration.
	assert.Len(t, l.sqlPrompts, 3)
	assert.Equal(t, 2, l.critiqueCalls)
	assert.Zero(t, fdb.queryCount())
	// The consumed critique is cleared from the state.
	assert.Empty(t, st.Critique)
}

func TestRunCritiqueFeedsRegeneration(t *testing.T) {
	l := &scriptLLM{
		sqlResponses: []string{"SELECT FROM WHERE", "SELECT Name FROM customer"},
		critiqueResp: "缺少选择列。",
		answerResp:   "好的。",
	}
	fdb := &fakeDB{}
	o := newTestOrchestrator(l, fdb, nil, 3)

	st, err := o.Run(context.Background(), Request{SessionID: "s1", Question: "列出所有客户的名称"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, st.Outcome)
	assert.Equal(t, 1, st.RegenerationCount)
	require.Len(t, l.sqlPrompts, 2)
	assert.NotContains(t, l.sqlPrompts[0], "缺少选择列。")
	assert.Contains(t, l.sqlPrompts[1], "缺少选择列。")
}

func TestRunClarificationRoundTrip(t *testing.T) {
	l := &scriptLLM{
		clarifyResp:  "问题: 您想查询哪个时间范围的发票？\n选项:\n1. 最近一周\n2. 最近一个月\n",
		sqlResponses: []string{"SELECT * FROM invoice WHERE InvoiceDate >= DATE_SUB(NOW(), INTERVAL 1 MONTH)"},
		answerResp:   "最近一个月共有 12 张发票。",
	}
	fdb := &fakeDB{}
	o := newTestOrchestrator(l, fdb, nil, 3)
	ctx := context.Background()

	st, err := o.Run(ctx, Request{SessionID: "s1", Question: "查询最近的发票"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAwaitingClarification, st.Outcome)
	assert.Equal(t, PhaseAwaiting, st.Phase)
	assert.Equal(t, "您想查询哪个时间范围的发票？", st.Clarification.Question)
	assert.Equal(t, []string{"最近一周", "最近一个月"}, st.Clarification.Options)
	assert.Equal(t, 1, st.Clarification.Count)
	assert.Empty(t, st.CandidateSQL)
	assert.Zero(t, fdb.queryCount())

	st, err = o.Run(ctx, Request{SessionID: "s1", ClarificationAnswer: "最近一个月"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, st.Outcome)
	assert.Equal(t, "查询最近的发票（最近一个月）", st.NormalizedQuestion)
	// The clarification is consumed: fields cleared, question carried.
	assert.False(t, st.Clarification.Needed)
	assert.Empty(t, st.Clarification.Question)
	assert.Equal(t, 1, st.Clarification.Count)

	require.NotEmpty(t, l.sqlPrompts)
	assert.Contains(t, l.sqlPrompts[0], "查询最近的发票（最近一个月）")

	h := o.opts.Sessions.Get("s1").History()
	kinds := make([]string, len(h))
	for i, turn := range h {
		kinds[i] = turn.Kind
	}
	assert.Equal(t, []string{memory.KindQuery, memory.KindClarification, memory.KindClarificationAnswer, memory.KindAnswer}, kinds)
}

func TestRunEmptyQuestion(t *testing.T) {
	o := newTestOrchestrator(&scriptLLM{}, &fakeDB{}, nil, 3)
	_, err := o.Run(context.Background(), Request{SessionID: "s1", Question: "   "})
	require.Error(t, err)
	assert.Equal(t, errors.EmptyQuestion, errors.KindOf(err))
}

func TestRunExecutionTimeout(t *testing.T) {
	l := &scriptLLM{sqlResponses: []string{"SELECT Total FROM invoice"}}
	fdb := &fakeDB{result: &db.Result{OK: false, Error: "query exceeded maximum execution time", ErrorCode: db.CodeTimeout}}
	aud := &recordingAuditor{}
	o := newTestOrchestrator(l, fdb, aud, 3)

	st, err := o.Run(context.Background(), Request{SessionID: "s1", Question: "列出所有发票的金额"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, st.Outcome)
	require.NotNil(t, st.Err)
	assert.Equal(t, errors.ExecutionTimeout, st.Err.Kind)
	require.Len(t, aud.events, 1)
	assert.Equal(t, "timeout", aud.events[0].Action)
}

func TestRunExecutionFailure(t *testing.T) {
	l := &scriptLLM{sqlResponses: []string{"SELECT Nam FROM customer"}}
	fdb := &fakeDB{result: &db.Result{OK: false, Error: "Unknown column 'Nam'"}}
	o := newTestOrchestrator(l, fdb, nil, 3)

	st, err := o.Run(context.Background(), Request{SessionID: "s1", Question: "列出所有客户的名称"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, st.Outcome)
	assert.Equal(t, errors.ExecutionFailed, st.Err.Kind)
	// Execution failures are terminal; no regeneration happens.
	assert.Len(t, l.sqlPrompts, 1)
}

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"```sql\nSELECT 1\n```", "SELECT 1;"},
		{"```\nSELECT 1;\n```", "SELECT 1;"},
		{"SELECT 1", "SELECT 1;"},
		{"以下是SQL：\n```sql\nSELECT Name FROM customer\n```\n希望有帮助", "SELECT Name FROM customer;"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractSQL(tt.in))
	}
}

func TestPhaseTransitionGuard(t *testing.T) {
	st := newState(Request{SessionID: "s1", Question: "q"})
	require.NoError(t, st.advance(PhaseIntent))
	err := st.advance(PhaseExecute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal phase transition")
}
