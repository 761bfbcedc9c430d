// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package memory keeps per-session conversation history with a bounded
// length. History feeds back into SQL generation and clarification prompts
// so that follow-up questions ("那销售额最高的客户呢") resolve against the
// previous turns.
package memory

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Turn kinds. Clarification turns are excluded from the SQL generation
// context but included in the clarification context.
const (
	KindQuery               = "query"
	KindClarification       = "clarification"
	KindClarificationAnswer = "clarification_answer"
	KindAnswer              = "answer"
	KindChat                = "chat"
)

// Turn is one entry in a session's conversation history.
type Turn struct {
	Role      string    `json:"role"`
	Kind      string    `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Options   []string  `json:"options,omitempty"`
	Reasons   []string  `json:"reasons,omitempty"`
	SQL       string    `json:"sql,omitempty"`
	RowCount  int       `json:"row_count,omitempty"`
}

// Session holds the bounded history for a single conversation.
type Session struct {
	ID string

	mu         sync.Mutex
	maxHistory int
	history    []Turn
}

// NewSession creates a session keeping at most maxHistory turns.
func NewSession(id string, maxHistory int) *Session {
	if maxHistory <= 0 {
		maxHistory = 10
	}
	return &Session{ID: id, maxHistory: maxHistory}
}

func (s *Session) add(t Turn) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, t)
	if n := len(s.history) - s.maxHistory; n > 0 {
		s.history = s.history[n:]
	}
}

func (s *Session) AddQuery(question string) {
	s.add(Turn{Role: "user", Kind: KindQuery, Content: question})
}

func (s *Session) AddClarification(question string, options, reasons []string) {
	s.add(Turn{Role: "assistant", Kind: KindClarification, Content: question, Options: options, Reasons: reasons})
}

func (s *Session) AddClarificationAnswer(answer string) {
	s.add(Turn{Role: "user", Kind: KindClarificationAnswer, Content: answer})
}

func (s *Session) AddAnswer(answer, sql string, rowCount int) {
	s.add(Turn{Role: "assistant", Kind: KindAnswer, Content: answer, SQL: sql, RowCount: rowCount})
}

func (s *Session) AddChat(response string) {
	s.add(Turn{Role: "assistant", Kind: KindChat, Content: response})
}

// History returns a copy of the current turns, oldest first.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// LastQuery returns the most recent user query, or "".
func (s *Session) LastQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Kind == KindQuery {
			return s.history[i].Content
		}
	}
	return ""
}

func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// ContextForGeneration renders the recent history as prompt text for SQL
// generation. Clarification turns are filtered out; at most maxRounds recent
// turns are considered.
func (s *Session) ContextForGeneration(maxRounds int) string {
	if maxRounds <= 0 {
		maxRounds = 5
	}
	turns := s.History()
	if len(turns) > maxRounds {
		turns = turns[len(turns)-maxRounds:]
	}

	var kept []Turn
	for _, t := range turns {
		switch t.Kind {
		case KindQuery, KindAnswer, KindChat:
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## 对话历史上下文\n\n")
	for i, t := range kept {
		ts := t.Timestamp.Format("15:04:05")
		switch t.Kind {
		case KindQuery:
			fmt.Fprintf(&b, "### 第%d轮对话 - 用户查询\n[%s] 用户: %s\n", i+1, ts, t.Content)
		case KindAnswer:
			fmt.Fprintf(&b, "### 第%d轮对话 - 系统回答\n[%s] 助手: %s\n", i+1, ts, t.Content)
			if t.SQL != "" {
				fmt.Fprintf(&b, "执行的SQL: %s\n", t.SQL)
			}
			if t.RowCount > 0 {
				fmt.Fprintf(&b, "查询返回 %d 条记录\n", t.RowCount)
			}
		case KindChat:
			fmt.Fprintf(&b, "### 第%d轮对话 - 聊天\n[%s] 助手: %s\n", i+1, ts, t.Content)
		}
		b.WriteString("\n")
	}
	b.WriteString("## 上下文理解提示\n")
	b.WriteString("注意：如果用户的问题涉及\"刚才\"、\"之前\"、\"上面\"、\"那\"、\"他们\"等指代，\n")
	b.WriteString("请参考对话历史上下文来理解用户意图。\n")
	return b.String()
}

// ContextForClarification renders the recent history for the clarification
// prompt. Unlike ContextForGeneration it keeps all turn kinds.
func (s *Session) ContextForClarification(maxRounds int) string {
	if maxRounds <= 0 {
		maxRounds = 3
	}
	turns := s.History()
	if len(turns) == 0 {
		return ""
	}
	if len(turns) > maxRounds {
		turns = turns[len(turns)-maxRounds:]
	}

	var b strings.Builder
	b.WriteString("## 对话历史上下文\n\n")
	for _, t := range turns {
		switch t.Kind {
		case KindQuery, KindClarificationAnswer:
			fmt.Fprintf(&b, "用户: %s\n", t.Content)
		default:
			fmt.Fprintf(&b, "助手: %s\n", t.Content)
			if t.SQL != "" {
				fmt.Fprintf(&b, "SQL: %s\n", t.SQL)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

type exportDoc struct {
	SessionID  string `json:"session_id"`
	MaxHistory int    `json:"max_history"`
	History    []Turn `json:"history"`
}

// ExportJSON serializes the session for persistence or debugging.
func (s *Session) ExportJSON() ([]byte, error) {
	s.mu.Lock()
	doc := exportDoc{SessionID: s.ID, MaxHistory: s.maxHistory, History: append([]Turn(nil), s.history...)}
	s.mu.Unlock()
	return json.MarshalIndent(doc, "", "  ")
}

// ImportJSON replaces the session history from a previous export. The
// imported history is re-trimmed against the session's own bound.
func (s *Session) ImportJSON(data []byte) error {
	var doc exportDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("import session history: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = doc.History
	if n := len(s.history) - s.maxHistory; n > 0 {
		s.history = s.history[n:]
	}
	return nil
}

// Store maps session IDs to sessions, creating them on first use.
type Store struct {
	mu         sync.Mutex
	maxHistory int
	sessions   map[string]*Session
}

func NewStore(maxHistory int) *Store {
	return &Store{maxHistory: maxHistory, sessions: make(map[string]*Session)}
}

// Get returns the session for id, creating it if needed.
func (st *Store) Get(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		s = NewSession(id, st.maxHistory)
		st.sessions[id] = s
	}
	return s
}

// Close drops the session for id, if any.
func (st *Store) Close(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
