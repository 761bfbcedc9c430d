// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"sqlpilot/internal/answer"
	"sqlpilot/internal/clarify"
	"sqlpilot/internal/config"
	"sqlpilot/internal/db"
	"sqlpilot/internal/db/mysql"
	"sqlpilot/internal/db/postgres"
	"sqlpilot/internal/dsn"
	"sqlpilot/internal/llm"
	"sqlpilot/internal/logging"
	"sqlpilot/internal/memory"
	"sqlpilot/internal/pipeline"
	"sqlpilot/internal/prompt"
	"sqlpilot/internal/sandbox"
	"sqlpilot/internal/schema"
	"sqlpilot/internal/validate"
	"sqlpilot/internal/xdg"
)

// app bundles everything a command needs once configuration is loaded.
type app struct {
	cfg      config.Config
	db       db.Client
	schema   *schema.Manager
	sessions *memory.Store
	orch     *pipeline.Orchestrator
	audit    *logging.AuditLog
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.audit != nil {
		_ = a.audit.Close()
	}
}

// openDatabase connects the right driver for the configured DSN.
func openDatabase(ctx context.Context, cfg config.Config) (db.Client, error) {
	if cfg.DB.DSN == "" {
		return nil, fmt.Errorf("no database configured, run: sqlpilot connect")
	}
	info, err := dsn.Parse(cfg.DB.DSN)
	if err != nil {
		return nil, err
	}
	switch info.Type {
	case dsn.DBTypeMySQL:
		return mysql.Open(info, cfg.Sandbox.MaxExecutionMS)
	case dsn.DBTypePostgreSQL:
		return postgres.Open(ctx, info, cfg.Sandbox.MaxExecutionMS)
	default:
		return nil, fmt.Errorf("unsupported database type %q", info.Type)
	}
}

func schemaPath() string {
	dir, err := xdg.StateDir()
	if err != nil {
		return "schema.json"
	}
	return filepath.Join(dir, "schema.json")
}

// buildApp loads the configuration and assembles the pipeline.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.LogLevel, os.Stderr)

	client, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	llmClient, err := llm.New(cfg.LLM)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	a := &app{cfg: cfg, db: client}
	a.schema = schema.NewManager(client, schemaPath())

	var auditor logging.Auditor = logging.NopAuditor{}
	if log, err := logging.OpenAuditLog(); err == nil {
		a.audit = log
		auditor = log
	}

	guard := sandbox.NewGuard(cfg.Sandbox.MaxRows, cfg.Sandbox.DefaultLimit, cfg.Sandbox.ForbiddenKeywords, auditor)
	guard.Enabled = cfg.Sandbox.Enabled

	prompts := prompt.NewStore()
	a.sessions = memory.NewStore(cfg.Pipeline.MaxHistory)
	a.orch = pipeline.New(pipeline.Options{
		LLM:              llmClient,
		DB:               client,
		Guard:            guard,
		Prompts:          prompts,
		Schema:           a.schema,
		Sessions:         a.sessions,
		Clarify:          clarify.NewManager(llmClient, prompts, a.schema, cfg.Pipeline.MaxClarifications),
		Critic:           validate.NewCritic(llmClient, prompts, a.schema),
		Answers:          answer.NewBuilder(llmClient, prompts),
		MaxRegenerations: cfg.Pipeline.MaxRegenerations,
	})
	return a, nil
}
