// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for sqlpilot. It wires the
// configuration, database clients, and query pipeline into Cobra subcommands
// and an interactive chat loop built on pterm.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var showVersion bool

// rootCmd is the entry point when sqlpilot is called without a subcommand.
var rootCmd = &cobra.Command{
	Use:           "sqlpilot",
	Short:         "Query your database in natural language",
	Long:          `Sqlpilot translates natural language questions into read-only SQL, executes them against your MySQL or PostgreSQL database, and answers in plain language.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("sqlpilot %s\n", Version)
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
}
