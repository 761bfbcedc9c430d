// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package clarify decides when a question is too vague to translate into SQL
// and produces the follow-up question the user is asked. Detection is
// rule-based and cheap; only the wording of the clarification question and
// its options go through the LLM.
package clarify

import (
	"context"
	"regexp"
	"strings"

	"sqlpilot/internal/llm"
	"sqlpilot/internal/memory"
	"sqlpilot/internal/prompt"
)

// Clarification type labels.
const (
	TypeTimeRange   = "time_range"
	TypeAggregation = "aggregation"
	TypeField       = "field"
	TypeAmbiguity   = "ambiguity"
	TypeGeneral     = "general"
)

// Check is the outcome of vagueness detection.
type Check struct {
	Needed  bool
	Reasons []string
	Type    string
}

// Detector reports whether a question needs clarification before generation.
type Detector interface {
	Check(question string, history []memory.Turn) Check
}

// Keyword tables for the rule-based detector. A question is vague when it
// raises a concern (time, aggregation, fields) without also carrying an
// explicit keyword that settles it.
var (
	timeRelatedKeywords = []string{
		"时间", "日期", "什么时候", "何时", "最近",
		"recent", "latest", "when",
	}
	explicitTimeKeywords = []string{
		"最近一周", "最近一个月", "最近三个月", "最近一年",
		"本月", "今年", "去年", "上个月", "上周", "昨天", "今天",
		"2024", "2023", "2022", "2021", "年", "月", "日", "周",
		"last week", "last month", "last year", "this month", "this year",
		"yesterday", "today", "week", "month", "year", "day",
	}
	aggregationRelatedKeywords = []string{
		"统计", "汇总", "分析", "查看", "查询",
		"statistics", "summarize", "analyze",
	}
	explicitAggregationKeywords = []string{
		"总数", "总和", "总金额", "总数量", "平均", "平均值",
		"最大", "最小", "最多", "最少", "数量", "金额", "销售额",
		"count", "sum", "avg", "max", "min", "total", "average",
	}
	explicitFieldKeywords = []string{
		"ID", "名称", "日期", "金额", "数量", "地址", "城市", "国家",
		"客户", "订单", "产品", "员工", "发票",
		"name", "date", "amount", "address", "city", "country",
		"customer", "order", "product", "employee", "invoice",
	}
	specificQueryVerbs = []string{"查询", "显示", "列出", "查找", "show", "list", "find"}
	vagueFieldKeywords = []string{"信息", "数据", "详情", "情况", "information", "details"}
	questionWords      = []string{"哪些", "什么", "哪个", "哪", "which", "what"}
	commonEntityWords  = []string{"客户", "订单", "产品", "员工", "发票", "销售", "购买",
		"customer", "order", "product", "employee", "invoice", "sales"}
	ambiguousKeywords = []string{"最好", "最差", "重要", "主要", "相关", "best", "worst", "important", "main"}
)

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// KeywordDetector is the default rule-based detector.
type KeywordDetector struct{}

func (KeywordDetector) Check(question string, history []memory.Turn) Check {
	lower := strings.ToLower(question)
	var reasons []string
	var ctype string

	hasExplicitTime := containsAny(lower, explicitTimeKeywords)
	if containsAny(lower, timeRelatedKeywords) && !hasExplicitTime {
		reasons = append(reasons, "问题涉及时间但缺少具体时间范围")
		ctype = TypeTimeRange
	}

	hasExplicitAggregation := containsAny(lower, explicitAggregationKeywords)
	if containsAny(lower, aggregationRelatedKeywords) && !hasExplicitAggregation {
		// "查询订单ID" names a verb and a concrete field, that is
		// specific enough without an aggregation.
		specific := containsAny(lower, specificQueryVerbs) && containsAny(question, explicitFieldKeywords)
		if !specific {
			reasons = append(reasons, "需要聚合但未明确聚合方式（数量/总和/平均等）")
			if ctype == "" {
				ctype = TypeAggregation
			}
		}
	}

	hasExplicitField := containsAny(question, explicitFieldKeywords) || containsAny(lower, questionWords)
	sufficientlySpecific := hasExplicitTime || hasExplicitAggregation || containsAny(lower, commonEntityWords)
	if containsAny(lower, vagueFieldKeywords) && !hasExplicitField && !sufficientlySpecific {
		reasons = append(reasons, "字段需求不明确")
		if ctype == "" {
			ctype = TypeField
		}
	}

	if containsAny(lower, ambiguousKeywords) {
		reasons = append(reasons, "存在可能产生歧义的词汇")
		if ctype == "" {
			ctype = TypeAmbiguity
		}
	}

	if ctype == "" {
		ctype = TypeGeneral
	}
	return Check{Needed: len(reasons) > 0, Reasons: reasons, Type: ctype}
}

var (
	reQuestionHeader = regexp.MustCompile(`(?s)(?:澄清问题|问题)[：:]\s*(.+?)(?:\n|选项|$)`)
	reOptionLine     = regexp.MustCompile(`(?m)^\s*\d+[.)、]\s*(.+?)\s*$`)
	reOptionsSection = regexp.MustCompile(`(?s)选项[：:]\s*(.+?)(?:\n\n|$)`)
)

// DefaultOptions are offered when the LLM response yields none.
var DefaultOptions = []string{"继续执行查询", "取消查询"}

// ParseResponse extracts the clarification question and its numbered options
// from an LLM response. Missing pieces fall back to generic wording so the
// user always gets something answerable.
func ParseResponse(response string) (string, []string) {
	question := "请提供更多信息以帮助我理解您的需求。"
	if m := reQuestionHeader.FindStringSubmatch(response); m != nil {
		question = strings.TrimSpace(m[1])
	}

	var options []string
	for _, m := range reOptionLine.FindAllStringSubmatch(response, -1) {
		options = append(options, strings.TrimSpace(m[1]))
	}
	if len(options) == 0 {
		if m := reOptionsSection.FindStringSubmatch(response); m != nil {
			for _, line := range strings.Split(strings.TrimSpace(m[1]), "\n") {
				line = strings.TrimSpace(line)
				if line != "" && !strings.HasPrefix(line, "#") {
					options = append(options, line)
				}
			}
		}
	}
	if len(options) == 0 {
		options = append([]string(nil), DefaultOptions...)
	}
	return question, options
}

// NormalizeAnswer folds a clarification answer back into the question the
// user originally asked. A previously folded answer is stripped first so
// repeated clarifications do not nest.
func NormalizeAnswer(originalQuestion, answer string) string {
	base := originalQuestion
	if i := strings.Index(base, "（"); i >= 0 {
		base = base[:i]
	}
	return base + "（" + answer + "）"
}

// SchemaProvider supplies schema text for the clarification prompt.
type SchemaProvider interface {
	RelevantSchemaText(question string) string
}

// Manager runs detection and builds clarification questions.
type Manager struct {
	Detector Detector
	LLM      llm.Client
	Prompts  *prompt.Store
	Schema   SchemaProvider
	Max      int
}

func NewManager(client llm.Client, prompts *prompt.Store, schema SchemaProvider, max int) *Manager {
	if max <= 0 {
		max = 3
	}
	return &Manager{Detector: KeywordDetector{}, LLM: client, Prompts: prompts, Schema: schema, Max: max}
}

// NeedsClarification runs the detector, suppressed once the per-question
// clarification budget is spent.
func (m *Manager) NeedsClarification(question string, history []memory.Turn, asked int) Check {
	if asked >= m.Max {
		return Check{Needed: false, Type: TypeGeneral}
	}
	return m.Detector.Check(question, history)
}

// BuildQuestion asks the LLM to word the clarification question and options.
func (m *Manager) BuildQuestion(ctx context.Context, question string, check Check, session *memory.Session) (string, []string, error) {
	schemaText := ""
	if m.Schema != nil {
		schemaText = m.Schema.RelevantSchemaText(question)
	}
	historyText := ""
	if session != nil {
		historyText = session.ContextForClarification(3)
	}
	p, err := m.Prompts.LoadAndRender("clarify", map[string]string{
		"question":           question,
		"reasons":            strings.Join(check.Reasons, "\n"),
		"clarification_type": check.Type,
		"schema":             schemaText,
		"dialog_history":     historyText,
	})
	if err != nil {
		return "", nil, err
	}
	resp, err := m.LLM.Chat(ctx, p, "")
	if err != nil {
		return "", nil, err
	}
	q, opts := ParseResponse(resp)
	return q, opts, nil
}
