// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"sqlpilot/internal/xdg"
)

// maxAuditSQLLen bounds the SQL prefix recorded with an audit entry.
const maxAuditSQLLen = 100

// SecurityEvent describes a sandbox decision worth auditing, such as a
// blocked statement or a server-side timeout.
type SecurityEvent struct {
	SQL    string
	Code   string
	Reason string
	Action string // "blocked" or "timeout"
}

// Auditor records security events. The zero-value NopAuditor discards them,
// which keeps the sandbox itself a pure function in tests.
type Auditor interface {
	Record(ev SecurityEvent)
}

// AuditLog writes security events as JSON lines through slog.
type AuditLog struct {
	mu sync.Mutex
	l  *slog.Logger
	c  io.Closer
}

// NewAuditLog creates an auditor writing JSON entries to w.
func NewAuditLog(w io.Writer) *AuditLog {
	return &AuditLog{l: slog.New(slog.NewJSONHandler(w, nil))}
}

// OpenAuditLog opens (appending) the default audit log in the XDG state dir.
func OpenAuditLog() (*AuditLog, error) {
	dir, err := xdg.StateDir()
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "security_log.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	a := NewAuditLog(f)
	a.c = f
	return a, nil
}

// Record writes one audit entry. The SQL is truncated to a bounded prefix so
// large or sensitive payloads never reach the log.
func (a *AuditLog) Record(ev SecurityEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.l.Info("security_event",
		"sql", TruncateSQL(ev.SQL, maxAuditSQLLen),
		"code", ev.Code,
		"reason", ev.Reason,
		"action", ev.Action,
	)
}

// Close releases the underlying file when the auditor owns one.
func (a *AuditLog) Close() error {
	if a.c != nil {
		return a.c.Close()
	}
	return nil
}

// NopAuditor discards all events.
type NopAuditor struct{}

func (NopAuditor) Record(SecurityEvent) {}
