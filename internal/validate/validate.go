// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package validate checks candidate SQL syntactically before execution and
// turns validation failures into actionable critique for regeneration.
package validate

import (
	"context"
	"strings"

	"github.com/xwb1989/sqlparser"

	"sqlpilot/internal/llm"
	"sqlpilot/internal/prompt"
)

// Result of a syntax validation pass.
type Result struct {
	Passed   bool
	Errors   []string
	Warnings []string
}

// Validate parses sql with a MySQL-dialect parser. A statement that parses
// but is not a SELECT gets a warning rather than an error; the execution
// sandbox is the authority on read-only enforcement.
func Validate(sql string) Result {
	if strings.TrimSpace(sql) == "" {
		return Result{Errors: []string{"no SQL query provided"}}
	}

	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return Result{Errors: []string{"SQL parse error: " + err.Error()}}
	}

	res := Result{Passed: true}
	switch stmt.(type) {
	case *sqlparser.Select, *sqlparser.Union, *sqlparser.ParenSelect:
	default:
		res.Warnings = append(res.Warnings, "non-SELECT statement detected")
	}
	return res
}

// SchemaProvider supplies schema text for the critique prompt.
type SchemaProvider interface {
	RelevantSchemaText(question string) string
}

// Critic explains validation failures so the next generation attempt can
// avoid them.
type Critic struct {
	LLM     llm.Client
	Prompts *prompt.Store
	Schema  SchemaProvider
}

func NewCritic(client llm.Client, prompts *prompt.Store, schema SchemaProvider) *Critic {
	return &Critic{LLM: client, Prompts: prompts, Schema: schema}
}

// Critique renders the failure context and asks the LLM for an analysis.
// When the LLM is unavailable it falls back to listing the raw errors, which
// is still a usable regeneration hint.
func (c *Critic) Critique(ctx context.Context, question, sql string, errs []string) string {
	fallback := "SQL validation errors:\n- " + strings.Join(errs, "\n- ")
	if c.LLM == nil {
		return fallback
	}

	schemaText := ""
	if c.Schema != nil {
		schemaText = c.Schema.RelevantSchemaText(question)
	}
	p, err := c.Prompts.LoadAndRender("critique", map[string]string{
		"question": question,
		"sql":      sql,
		"errors":   "- " + strings.Join(errs, "\n- "),
		"schema":   schemaText,
	})
	if err != nil {
		return fallback
	}

	resp, err := c.LLM.Chat(ctx, p, "")
	if err != nil || strings.TrimSpace(resp) == "" {
		return fallback
	}
	return strings.TrimSpace(resp)
}
