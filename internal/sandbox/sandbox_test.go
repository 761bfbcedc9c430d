// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlpilot/internal/logging"
)

func TestCheckSafety(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		wantOK   bool
		wantCode string
	}{
		{"simple select", "SELECT * FROM customer", true, ""},
		{"select with where", "SELECT name FROM artist WHERE artistid = 1", true, ""},
		{"empty", "", false, CodeEmptySQL},
		{"whitespace only", "   \n\t  ", false, CodeEmptySQL},
		{"drop table", "DROP TABLE customer", false, CodeNonSelect},
		{"update", "UPDATE customer SET name = 'x'", false, CodeNonSelect},
		{"insert", "INSERT INTO t VALUES (1)", false, CodeNonSelect},
		{"commented-out select", "-- SELECT 1", false, CodeEmptySQL},
		{"stacked drop", "SELECT 1; DROP TABLE customer", false, CodeDangerousPattern},
		{"union injection", "SELECT name FROM t UNION SELECT password FROM users", false, CodeDangerousPattern},
		{"block comment injection", "SELECT /* hide */ name FROM t", false, CodeDangerousPattern},
		{"into outfile", "SELECT * FROM t INTO OUTFILE '/tmp/x'", false, CodeDangerousPattern},
		{"load_file", "SELECT LOAD_FILE('/etc/passwd')", false, CodeDangerousPattern},
		{"sleep", "SELECT SLEEP(10)", false, CodeForbiddenKeyword},
		{"benchmark", "SELECT BENCHMARK(1000000, MD5('x'))", false, CodeForbiddenKeyword},
		{"system schema", "SELECT * FROM information_schema.tables", false, CodeForbiddenKeyword},
		{"mysql schema", "SELECT user FROM mysql.user", false, CodeForbiddenKeyword},
		{"keyword inside identifier ok", "SELECT created_at FROM updates_log", true, ""},
		{"case insensitive", "select sLeEp(1)", false, CodeForbiddenKeyword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CheckSafety(tt.sql, nil)
			assert.Equal(t, tt.wantOK, res.OK)
			assert.Equal(t, tt.wantCode, res.Code)
			if !tt.wantOK {
				assert.NotEmpty(t, res.Reason)
			}
		})
	}
}

func TestCheckSafetyCustomKeywords(t *testing.T) {
	res := CheckSafety("SELECT secret_col FROM t", []string{"secret_col"})
	require.False(t, res.OK)
	assert.Equal(t, CodeForbiddenKeyword, res.Code)

	// An explicit empty list disables the keyword check entirely.
	res = CheckSafety("SELECT SLEEP(1)", []string{})
	assert.True(t, res.OK)
}

func TestApplyRowLimit(t *testing.T) {
	tests := []struct {
		name          string
		sql           string
		maxRows       int
		defaultLimit  int
		wantSQL       string
		wantEffective int
	}{
		{
			name:          "no limit gets default",
			sql:           "SELECT * FROM customer",
			maxRows:       1000,
			defaultLimit:  200,
			wantSQL:       "SELECT * FROM customer LIMIT 200;",
			wantEffective: 200,
		},
		{
			name:          "oversized limit clamped",
			sql:           "SELECT * FROM customer LIMIT 5000",
			maxRows:       1000,
			defaultLimit:  200,
			wantSQL:       "SELECT * FROM customer LIMIT 1000",
			wantEffective: 1000,
		},
		{
			name:          "in-bounds limit untouched",
			sql:           "SELECT * FROM customer LIMIT 50",
			maxRows:       1000,
			defaultLimit:  200,
			wantSQL:       "SELECT * FROM customer LIMIT 50",
			wantEffective: 50,
		},
		{
			name:          "default itself clamped to max",
			sql:           "SELECT * FROM customer",
			maxRows:       100,
			defaultLimit:  200,
			wantSQL:       "SELECT * FROM customer LIMIT 100;",
			wantEffective: 100,
		},
		{
			name:          "trailing semicolon handled",
			sql:           "SELECT * FROM customer;",
			maxRows:       1000,
			defaultLimit:  200,
			wantSQL:       "SELECT * FROM customer LIMIT 200;",
			wantEffective: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, eff := ApplyRowLimit(tt.sql, tt.maxRows, tt.defaultLimit)
			assert.Equal(t, tt.wantSQL, got)
			assert.Equal(t, tt.wantEffective, eff)
		})
	}
}

func TestExtractLimit(t *testing.T) {
	assert.Equal(t, 50, ExtractLimit("SELECT 1 LIMIT 50"))
	assert.Equal(t, 50, ExtractLimit("select 1 limit 50;"))
	assert.Equal(t, -1, ExtractLimit("SELECT 1"))
}

type recordingAuditor struct {
	events []logging.SecurityEvent
}

func (r *recordingAuditor) Record(ev logging.SecurityEvent) { r.events = append(r.events, ev) }

func TestGuardAuditsRejections(t *testing.T) {
	rec := &recordingAuditor{}
	g := NewGuard(1000, 200, nil, rec)

	res := g.Check("DROP TABLE customer")
	require.False(t, res.OK)
	require.Len(t, rec.events, 1)
	assert.Equal(t, CodeNonSelect, rec.events[0].Code)
	assert.Equal(t, "blocked", rec.events[0].Action)

	res = g.Check("SELECT * FROM customer")
	assert.True(t, res.OK)
	assert.Len(t, rec.events, 1)
}

func TestGuardDisabled(t *testing.T) {
	g := NewGuard(1000, 200, nil, nil)
	g.Enabled = false
	assert.True(t, g.Check("DROP TABLE customer").OK)
}
