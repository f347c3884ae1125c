// Package main is the entry point for the entrywatch CLI.
//
// entrywatch can be embedded as a library or run as a standalone binary with
// YAML configuration. This CLI provides the standalone binary and a small
// client for a running instance.
//
// Usage:
//
//	entrywatch serve -c entrywatch.yaml        # Start watching and serve the dashboard
//	entrywatch validate -c entrywatch.yaml     # Validate configuration
//	entrywatch check <url>                     # Read a page once
//	entrywatch events <contest-url> [--add]    # List (and register) épreuve pages
//	entrywatch targets list|add|delete         # Manage targets of a running instance
//	entrywatch version                         # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "entrywatch",
	Short: "Watch contest registration pages and alert when entries open",
	Long: `entrywatch polls contest registration pages and raises an alert the
moment a contest opens for entries or an épreuve gains a free slot.

Polling speeds up inside a daily hot window, alerts are deduplicated per
contest, and a dashboard streams every change over Server-Sent Events.

Quick start:
  1. Create a config file (entrywatch.yaml)
  2. Run: entrywatch serve -c entrywatch.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  location: Europe/Paris
  targets:
    - label: Grand Prix de Printemps
      url: https://example.com/concours/202612345
      hot_window: {from: "08:55", to: "09:30"}
      hot_interval: 15s`,
	SilenceUsage: true,
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this entrywatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "entrywatch %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, or error")
	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a JSON logger on stderr at the level named by the
// --log-level flag.
func newLogger(cmd *cobra.Command) *slog.Logger {
	name, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	switch strings.ToLower(name) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))
}
