package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/entrywatch/internal/server"
)

// targetsCmd groups the admin API client commands.
var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Manage the targets of a running server",
	Long: `List, add and delete the targets of a running entrywatch server
through its admin API.

Example:
  entrywatch targets list
  entrywatch targets add "Grand Prix" https://example.com/concours/202612345 --hot-from 08:55 --hot-to 09:30
  entrywatch targets history 7b0f8a4e-2d55-4c1e-9d0e-0c6f3c0f4f11 --limit 20
  entrywatch targets delete 7b0f8a4e-2d55-4c1e-9d0e-0c6f3c0f4f11`,
}

var targetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watched targets",
	Args:  cobra.NoArgs,
	RunE:  runTargetsList,
}

var targetsAddCmd = &cobra.Command{
	Use:   "add <label> <url>",
	Short: "Add a target",
	Args:  cobra.ExactArgs(2),
	RunE:  runTargetsAdd,
}

var targetsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a target",
	Args:  cobra.ExactArgs(1),
	RunE:  runTargetsDelete,
}

var targetsHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show recent poll results of a target",
	Args:  cobra.ExactArgs(1),
	RunE:  runTargetsHistory,
}

func init() {
	rootCmd.AddCommand(targetsCmd)
	targetsCmd.AddCommand(targetsListCmd, targetsAddCmd, targetsHistoryCmd, targetsDeleteCmd)

	targetsCmd.PersistentFlags().String("api", defaultAPI, "base URL of the entrywatch server")

	f := targetsAddCmd.Flags()
	f.String("kind", "", "contest or event (inferred when empty)")
	f.Duration("interval", 0, "normal polling interval (default 300s)")
	f.Duration("hot-interval", 0, "polling interval inside the hot window (default 45s)")
	f.String("hot-from", "", "hot window start (HH:MM)")
	f.String("hot-to", "", "hot window end (HH:MM)")
	f.String("dedup-key", "", "alert dedup key (default: the label)")

	targetsHistoryCmd.Flags().Int("limit", 0, "number of entries to show (server default 50)")
}

func runTargetsList(cmd *cobra.Command, args []string) error {
	api, _ := cmd.Flags().GetString("api")
	targets, err := newAPIClient(api).listTargets(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(targets) == 0 {
		fmt.Fprintln(out, "No targets.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tKIND\tSTATUS\tSLOTS\tLAST CHECK")
	for _, t := range targets {
		checked := "-"
		if t.LastCheckedAt != nil {
			checked = t.LastCheckedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Label, t.Kind, t.LastStatus, formatSlots(t.LastSlots), checked)
	}
	return tw.Flush()
}

func runTargetsAdd(cmd *cobra.Command, args []string) error {
	api, _ := cmd.Flags().GetString("api")
	kind, _ := cmd.Flags().GetString("kind")
	interval, err := secondsFlag(cmd, "interval")
	if err != nil {
		return err
	}
	hot, err := secondsFlag(cmd, "hot-interval")
	if err != nil {
		return err
	}
	hotFrom, _ := cmd.Flags().GetString("hot-from")
	hotTo, _ := cmd.Flags().GetString("hot-to")
	dedupKey, _ := cmd.Flags().GetString("dedup-key")

	t, err := newAPIClient(api).addTarget(cmd.Context(), server.CreateTargetRequest{
		Label:             args[0],
		URL:               args[1],
		Kind:              kind,
		IntervalNormalSec: interval,
		IntervalHotSec:    hot,
		HotFrom:           hotFrom,
		HotTo:             hotTo,
		DedupKey:          dedupKey,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added %s %s (%s)\n", t.ID, t.Label, t.Kind)
	return nil
}

// secondsFlag returns a duration flag as whole seconds, or nil when the flag
// was not given so the server applies its default.
func secondsFlag(cmd *cobra.Command, name string) (*int, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	d, _ := cmd.Flags().GetDuration(name)
	if d < time.Second || d%time.Second != 0 {
		return nil, fmt.Errorf("--%s must be a whole number of seconds, at least 1s, got %v", name, d)
	}
	secs := int(d / time.Second)
	return &secs, nil
}

func runTargetsHistory(cmd *cobra.Command, args []string) error {
	api, _ := cmd.Flags().GetString("api")
	limit, _ := cmd.Flags().GetInt("limit")
	if limit < 0 {
		return fmt.Errorf("--limit must not be negative, got %d", limit)
	}
	entries, err := newAPIClient(api).history(cmd.Context(), args[0], limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No history.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tSTATUS\tSLOTS\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.At.Local().Format(time.DateTime), e.Status, formatSlots(e.Slots), e.Error)
	}
	return tw.Flush()
}

func runTargetsDelete(cmd *cobra.Command, args []string) error {
	api, _ := cmd.Flags().GetString("api")
	removed, err := newAPIClient(api).deleteTarget(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no target with id %s", args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}
