// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package validate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlpilot/internal/prompt"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name         string
		sql          string
		wantPassed   bool
		wantWarnings int
	}{
		{"valid select", "SELECT name FROM customer WHERE city = 'Berlin'", true, 0},
		{"valid join", "SELECT c.name, i.total FROM customer c JOIN invoice i ON i.customerid = c.customerid", true, 0},
		{"valid union", "SELECT name FROM artist UNION SELECT title FROM album", true, 0},
		{"empty", "", false, 0},
		{"syntax error", "SELECT FROM WHERE", false, 0},
		{"unbalanced parens", "SELECT name FROM customer WHERE (city = 'Berlin'", false, 0},
		{"non-select warns", "DELETE FROM customer", true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.sql)
			assert.Equal(t, tt.wantPassed, res.Passed)
			if !tt.wantPassed {
				assert.NotEmpty(t, res.Errors)
			}
			assert.Len(t, res.Warnings, tt.wantWarnings)
		})
	}
}

type fakeLLM struct {
	resp string
	err  error
}

func (f fakeLLM) Chat(ctx context.Context, p, sys string) (string, error) { return f.resp, f.err }

func TestCritiqueUsesLLM(t *testing.T) {
	c := NewCritic(fakeLLM{resp: "表名 customers 不存在，应为 customer。"}, prompt.NewStore(), nil)
	out := c.Critique(context.Background(), "查询客户", "SELECT * FROM customers", []string{"unknown table customers"})
	assert.Equal(t, "表名 customers 不存在，应为 customer。", out)
}

func TestCritiqueFallsBackOnError(t *testing.T) {
	c := NewCritic(fakeLLM{err: errors.New("llm down")}, prompt.NewStore(), nil)
	out := c.Critique(context.Background(), "查询客户", "SELECT * FROM customers", []string{"unknown table customers", "bad syntax"})
	require.Contains(t, out, "unknown table customers")
	assert.Contains(t, out, "bad syntax")
}

func TestCritiqueWithoutLLM(t *testing.T) {
	c := NewCritic(nil, prompt.NewStore(), nil)
	out := c.Critique(context.Background(), "q", "sql", []string{"e1"})
	assert.Contains(t, out, "e1")
}
