// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sandbox is the defense-in-depth safety layer between SQL generation
// and the database driver. It statically classifies candidate statements,
// rewrites them to enforce a row cap, and tags every rejection with a stable
// machine-readable code.
//
// CheckSafety is a pure function of the SQL text: the checks run in a fixed
// order (empty, non-SELECT, dangerous pattern, forbidden keyword) and the
// first failing check wins. Audit logging of rejections is a side effect
// delegated to the Guard's logging collaborator.
package sandbox

import (
	"fmt"
	"regexp"
	"strings"

	"sqlpilot/internal/logging"
)

// Stable rejection codes. Execution timeouts use db.CodeTimeout; everything
// the static checks can catch is one of these.
const (
	CodeEmptySQL         = "EMPTY_SQL"
	CodeNonSelect        = "NON_SELECT"
	CodeDangerousPattern = "DANGEROUS_PATTERN"
	CodeForbiddenKeyword = "FORBIDDEN_KEYWORD"
)

// CheckResult is the outcome of a safety classification.
type CheckResult struct {
	OK     bool
	Code   string
	Reason string
}

var (
	reLineComment  = regexp.MustCompile(`(?m)--.*$`)
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLimit        = regexp.MustCompile(`(?i)limit\s+(\d+)`)
)

// dangerousPatterns are injection shapes checked before the keyword list so
// rejections carry the more specific code.
var dangerousPatterns = []struct {
	re     *regexp.Regexp
	reason string
}{
	{regexp.MustCompile(`(?is);\s*(drop|delete|update|insert|alter|create|truncate|exec|execute)`), "multiple statements with DML"},
	{regexp.MustCompile(`(?is)union\s+.*select`), "UNION injection attempt"},
	{regexp.MustCompile(`(?s)/\*.*\*/`), "SQL comment injection"},
	{regexp.MustCompile(`--\s`), "SQL comment injection"},
	{regexp.MustCompile(`(?i)into\s+outfile`), "file system access attempt"},
	{regexp.MustCompile(`(?i)load\s+data`), "data loading attempt"},
	{regexp.MustCompile(`(?i)load_file\s*\(`), "file reading function"},
}

// DefaultForbiddenKeywords is the built-in deny list: DML/DDL verbs, timing
// attack helpers, admin verbs, and system schema names.
var DefaultForbiddenKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "truncate",
	"create", "grant", "revoke", "rename", "replace",
	"sleep", "benchmark",
	"exec", "execute", "call", "procedure",
	"lock", "unlock", "flush", "kill", "shutdown",
	"information_schema", "mysql", "sys", "performance_schema",
}

// StripComments removes line and block comments so that none of the later
// checks can be bypassed by wrapping a verb in a comment.
func StripComments(sql string) string {
	out := reLineComment.ReplaceAllString(sql, "")
	out = reBlockComment.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// CheckSafety classifies a candidate statement. A nil keyword list selects
// DefaultForbiddenKeywords; an explicit empty list disables the keyword check.
func CheckSafety(sql string, forbiddenKeywords []string) CheckResult {
	if strings.TrimSpace(sql) == "" {
		return CheckResult{Code: CodeEmptySQL, Reason: "empty SQL query"}
	}

	clean := StripComments(sql)
	if clean == "" {
		return CheckResult{Code: CodeEmptySQL, Reason: "empty SQL query"}
	}
	cleanLower := strings.ToLower(clean)

	if !strings.HasPrefix(cleanLower, "select") {
		return CheckResult{Code: CodeNonSelect, Reason: "only SELECT queries are allowed (read-only mode)"}
	}

	// Pattern checks run against the raw text so comment injection is still
	// visible after the prefix check used the stripped form.
	rawLower := strings.ToLower(sql)
	for _, p := range dangerousPatterns {
		if p.re.MatchString(rawLower) {
			return CheckResult{Code: CodeDangerousPattern, Reason: "dangerous pattern detected: " + p.reason}
		}
	}

	keywords := forbiddenKeywords
	if keywords == nil {
		keywords = DefaultForbiddenKeywords
	}
	for _, kw := range keywords {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(kw)) + `\b`)
		if re.MatchString(cleanLower) {
			return CheckResult{Code: CodeForbiddenKeyword, Reason: fmt.Sprintf("contains forbidden keyword: %q", kw)}
		}
	}

	return CheckResult{OK: true}
}

// ExtractLimit returns the value of an existing LIMIT clause, or -1.
func ExtractLimit(sql string) int {
	m := reLimit.FindStringSubmatch(sql)
	if m == nil {
		return -1
	}
	var n int
	fmt.Sscanf(m[1], "%d", &n)
	return n
}

// EnsureLimit appends a LIMIT clause when none is present.
func EnsureLimit(sql string, limit int) string {
	if reLimit.MatchString(sql) {
		return sql
	}
	trimmed := strings.TrimRight(strings.TrimRight(sql, " \t\n"), ";")
	return fmt.Sprintf("%s LIMIT %d;", trimmed, limit)
}

// ApplyRowLimit enforces the row cap on a statement. An existing LIMIT n is
// clamped to min(n, maxRows) and left untouched when already within bounds;
// otherwise LIMIT min(defaultLimit, maxRows) is appended. It returns the
// rewritten SQL and the effective limit.
func ApplyRowLimit(sql string, maxRows, defaultLimit int) (string, int) {
	if existing := ExtractLimit(sql); existing >= 0 {
		effective := min(existing, maxRows)
		if effective == existing {
			return sql, effective
		}
		return reLimit.ReplaceAllString(sql, fmt.Sprintf("LIMIT %d", effective)), effective
	}
	effective := min(defaultLimit, maxRows)
	return EnsureLimit(sql, effective), effective
}

// Guard bundles the sandbox policy with its audit collaborator.
type Guard struct {
	Enabled           bool
	MaxRows           int
	DefaultLimit      int
	ForbiddenKeywords []string
	Auditor           logging.Auditor
}

// NewGuard creates a Guard with the given policy. A nil auditor disables
// audit recording.
func NewGuard(maxRows, defaultLimit int, forbidden []string, auditor logging.Auditor) *Guard {
	if auditor == nil {
		auditor = logging.NopAuditor{}
	}
	return &Guard{
		Enabled:           true,
		MaxRows:           maxRows,
		DefaultLimit:      defaultLimit,
		ForbiddenKeywords: forbidden,
		Auditor:           auditor,
	}
}

// Check classifies sql and records a blocked statement to the audit log.
// A disabled guard accepts everything.
func (g *Guard) Check(sql string) CheckResult {
	if !g.Enabled {
		return CheckResult{OK: true}
	}
	res := CheckSafety(sql, g.ForbiddenKeywords)
	if !res.OK {
		g.Auditor.Record(logging.SecurityEvent{
			SQL:    sql,
			Code:   res.Code,
			Reason: res.Reason,
			Action: "blocked",
		})
	}
	return res
}

// Limit applies the guard's row cap to an accepted statement.
func (g *Guard) Limit(sql string) (string, int) {
	return ApplyRowLimit(sql, g.MaxRows, g.DefaultLimit)
}

// RecordTimeout audits a server-side execution timeout.
func (g *Guard) RecordTimeout(sql string) {
	g.Auditor.Record(logging.SecurityEvent{
		SQL:    sql,
		Code:   "TIMEOUT",
		Reason: "query exceeded maximum execution time",
		Action: "timeout",
	})
}
