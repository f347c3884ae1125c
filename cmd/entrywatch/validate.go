package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/entrywatch/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate an entrywatch configuration file without starting the server.

This command parses the YAML, expands environment variables, validates all
fields, and builds every target, so grid templates and extractors are
checked too. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  entrywatch validate -c entrywatch.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := config.BuildTargets(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	direct, fromGrids := cfg.TargetCount()
	persistence := "none"
	if cfg.Database != "" {
		persistence = cfg.Database
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:      %d\n", cfg.Port)
	fmt.Fprintf(out, "  Targets:   %d direct + %d from grids = %d total\n",
		direct, fromGrids, direct+fromGrids)
	fmt.Fprintf(out, "  Notifiers: %d\n", len(cfg.Notifiers))
	fmt.Fprintf(out, "  Database:  %s\n", persistence)

	return nil
}
