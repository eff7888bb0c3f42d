// Package cmd implements the command-line interface for fbtrace.
// It uses the Cobra library to handle commands, flags, and execution.
package cmd

import (
	"log"

	"github.com/spf13/cobra"
)

// Flag variables for command-line options.
// These are package-level variables as required by Cobra's flag binding.
var (
	jsonFlag           bool // --json: write records as JSON lines
	freeStatementsFlag bool // --free-statements: SQL cache eviction mode
	errorsOnlyFlag     bool // --errors-only: print only error/warning events
	summaryFlag        bool // --summary: print only the summary section
	verboseFlag        bool // --verbose: debug logging in follow/pump
)

// rootCmd is the main command for the fbtrace CLI.
var rootCmd = &cobra.Command{
	Use:   "fbtrace [files or dirs]",
	Short: "Firebird trace/audit log parser",
	Long: `fbtrace parses the textual output of the Firebird trace and audit
facility into structured records.

It turns each trace entry into a typed event, assigns stable ids to the
attachments, transactions, services, SQL statements and parameter sets the
entries reference, and renders the resulting stream as text or JSON lines.

Specify trace log files or directories as arguments. Compressed logs
(.gz, .zst, .7z) are decompressed transparently.`,
	Run: runParse,
}

// Execute runs the root command.
// This is called by main.go to start the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// init initializes all command-line flags.
func init() {
	rootCmd.PersistentFlags().BoolVarP(&jsonFlag, "json", "J", false,
		"Write records as JSON lines")
	rootCmd.PersistentFlags().BoolVar(&freeStatementsFlag, "free-statements", true,
		"Keep SQL text cached until a FREE_STATEMENT event releases it; "+
			"disable for traces configured without free events")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false,
		"Enable debug logging in follow and pump modes")

	rootCmd.Flags().BoolVar(&errorsOnlyFlag, "errors-only", false,
		"Print only error and warning events")
	rootCmd.Flags().BoolVar(&summaryFlag, "summary", false,
		"Print only the summary section")
}
