// Package main is the entry point for the sqlpilot CLI.
// It turns natural-language questions into read-only SQL queries.
package main

import (
	"sqlpilot/cmd"
)

func main() {
	cmd.Execute()
}
