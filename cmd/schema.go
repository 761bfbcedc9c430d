// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"sqlpilot/internal/config"
	"sqlpilot/internal/logging"
	"sqlpilot/internal/schema"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage the cached schema document",
	Long: `The schema command manages the schema snapshot sqlpilot uses for SQL
generation. The snapshot holds tables, columns, aliases, and foreign keys
(declared or inferred) and is cached on disk so chat sessions start fast.`,
}

var schemaGenerateCmd = &cobra.Command{
	Use:     "generate",
	Aliases: []string{"refresh"},
	Short:   "Introspect the database and rebuild the schema cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logging.Setup(cfg.LogLevel, os.Stderr)

		client, err := openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		mgr := schema.NewManager(client, schemaPath())
		mgr.Invalidate()

		spinner, _ := pterm.DefaultSpinner.Start("Introspecting database schema...")
		doc, err := mgr.Generate(ctx)
		if err != nil {
			spinner.Fail("Schema generation failed")
			return err
		}
		spinner.Success(fmt.Sprintf("Schema generated: %d tables", len(doc.Tables)))

		pterm.Println()
		pterm.Println("Cached at: " + schemaPath())
		return nil
	},
}

var schemaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the cached schema document",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logging.Setup(cfg.LogLevel, os.Stderr)

		client, err := openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		doc, err := schema.NewManager(client, schemaPath()).Load(ctx)
		if err != nil {
			return err
		}

		header := fmt.Sprintf("Database: %s\nGenerated: %s\nTables: %d",
			doc.DatabaseType,
			doc.GeneratedAt.Format(time.RFC3339),
			len(doc.Tables))
		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Schema Snapshot")).
			Println(header)

		rows := pterm.TableData{{"Table", "Columns", "Foreign Keys", "Rows"}}
		for _, t := range doc.Tables {
			fks := make([]string, 0, len(t.ForeignKeys))
			for _, fk := range t.ForeignKeys {
				fks = append(fks, fmt.Sprintf("%s→%s.%s", fk.Column, fk.ReferencesTable, fk.ReferencesColumn))
			}
			rows = append(rows, []string{
				t.Name,
				fmt.Sprintf("%d", len(t.Columns)),
				strings.Join(fks, ", "),
				fmt.Sprintf("%d", t.RowCount),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.AddCommand(schemaGenerateCmd)
	schemaCmd.AddCommand(schemaShowCmd)
}
