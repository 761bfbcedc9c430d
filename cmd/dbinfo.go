// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"sqlpilot/internal/config"
	"sqlpilot/internal/dsn"
	"sqlpilot/internal/logging"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// dbinfoCmd shows the configured connection with credentials masked.
var dbinfoCmd = &cobra.Command{
	Use:   "dbinfo",
	Short: "Show the configured database connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DB.DSN == "" {
			pterm.Println("⚠️  No database connection configured")
			pterm.Println("   Please run: sqlpilot connect")
			return nil
		}

		info, err := dsn.Parse(cfg.DB.DSN)
		if err != nil {
			pterm.Println("⚠️  Stored DSN is invalid: " + err.Error())
			pterm.Println("   Please run: sqlpilot connect")
			return nil
		}

		body := fmt.Sprintf("Type:     %s\nHost:     %s:%s\nDatabase: %s\nUser:     %s\nDSN:      %s",
			info.Type, info.Host, info.Port, info.Database, info.User, logging.Mask(cfg.DB.DSN))
		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Database Connection")).
			Println(body)
		pterm.Println()
		pterm.Println("To update this connection, run: sqlpilot connect")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbinfoCmd)
}
