// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package intent decides whether an input is a data question or small talk.
// Small talk is answered conversationally and never reaches SQL generation.
package intent

import (
	"strings"
	"time"

	"sqlpilot/internal/memory"
)

// Type of a classified input.
const (
	TypeQuery = "query"
	TypeChat  = "chat"
)

// Decision carries the classification plus metadata for logging.
type Decision struct {
	Type           string    `json:"type"`
	QuestionLength int       `json:"question_length"`
	HasKeywords    bool      `json:"has_keywords"`
	ParsedAt       time.Time `json:"parsed_at"`
}

func (d Decision) IsChat() bool { return d.Type == TypeChat }

// Classifier decides the intent of a user input given the session history.
type Classifier interface {
	Classify(question string, history []memory.Turn) Decision
}

// queryKeywords mark an input as a data question regardless of chat phrases.
var queryKeywords = []string{
	"查询", "统计", "多少", "什么", "哪些", "列出", "显示", "最高", "最低", "平均", "总共",
	"select", "show", "list", "count", "what", "how many", "which", "top", "sum", "average",
}

// chatPatterns are greetings and meta questions. Matching is prefix or whole
// phrase so a question like "你好，查询客户" still counts as a query via the
// keyword check above.
var chatPatterns = []string{
	"你好", "您好", "hi", "hello", "hey",
	"你是谁", "你是什么", "who are you", "what are you",
	"谢谢", "多谢", "thanks", "thank you",
	"再见", "拜拜", "bye", "goodbye",
	"你能做什么", "你会什么", "what can you do", "help",
	"早上好", "晚上好", "good morning", "good evening",
}

// KeywordClassifier is the default rule-based classifier.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(question string, history []memory.Turn) Decision {
	lower := strings.ToLower(strings.TrimSpace(question))

	hasQueryKeyword := false
	for _, kw := range queryKeywords {
		if strings.Contains(lower, kw) {
			hasQueryKeyword = true
			break
		}
	}

	d := Decision{
		Type:           TypeQuery,
		QuestionLength: len([]rune(question)),
		HasKeywords:    hasQueryKeyword,
		ParsedAt:       time.Now(),
	}

	if hasQueryKeyword {
		return d
	}

	for _, p := range chatPatterns {
		if lower == p || strings.HasPrefix(lower, p) {
			d.Type = TypeChat
			return d
		}
	}

	// Very short inputs without any query keyword read as small talk,
	// except follow-ups that lean on the previous query via a reference
	// word ("那最高的呢").
	if d.QuestionLength <= 4 && !hasReference(question) {
		d.Type = TypeChat
	}
	return d
}

var referenceWords = []string{"那", "他们", "它们", "刚才", "之前", "上面", "这个", "那个", "这些", "那些"}

func hasReference(question string) bool {
	for _, w := range referenceWords {
		if strings.Contains(question, w) {
			return true
		}
	}
	return false
}
