package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/entrywatch"
	"github.com/jpalmerr/entrywatch/internal/server"
)

// eventsCmd lists the épreuve pages linked from a contest page.
var eventsCmd = &cobra.Command{
	Use:   "events <contest-url>",
	Short: "List the event pages of a contest",
	Long: `Fetch a contest page and list the event (épreuve) pages it links to,
deduplicated by canonical URL.

With --add, every event is registered as an event target on a running
entrywatch server through its admin API.

Example:
  entrywatch events https://example.com/concours/202612345
  entrywatch events --add --hot-from 08:55 --hot-to 09:30 <contest-url>`,
	Args: cobra.ExactArgs(1),
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	addFetchFlags(eventsCmd.Flags())

	eventsCmd.Flags().Bool("add", false, "register every event as a target on the server")
	eventsCmd.Flags().String("api", defaultAPI, "base URL of the entrywatch server")
	eventsCmd.Flags().String("hot-from", "", "hot window start (HH:MM) for added targets")
	eventsCmd.Flags().String("hot-to", "", "hot window end (HH:MM) for added targets")
}

func runEvents(cmd *cobra.Command, args []string) error {
	contestURL := args[0]
	add, _ := cmd.Flags().GetBool("add")
	api, _ := cmd.Flags().GetString("api")
	hotFrom, _ := cmd.Flags().GetString("hot-from")
	hotTo, _ := cmd.Flags().GetString("hot-to")

	// reject a bad window before registering anything
	if _, err := entrywatch.ParseHotWindow(hotFrom, hotTo); err != nil {
		return err
	}

	w, err := fetchWatcher(cmd)
	if err != nil {
		return err
	}
	links, err := w.ListEvents(cmd.Context(), contestURL)
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(links) == 0 {
		fmt.Fprintln(out, "No event pages found.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, l := range links {
		fmt.Fprintf(tw, "%s\t%s\n", l.Label, l.URL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !add {
		return nil
	}

	client := newAPIClient(api)
	for _, l := range links {
		t, err := client.addTarget(cmd.Context(), server.CreateTargetRequest{
			Label:   l.Label,
			URL:     l.URL,
			Kind:    string(entrywatch.KindEvent),
			HotFrom: hotFrom,
			HotTo:   hotTo,
		})
		if err != nil {
			return fmt.Errorf("failed to add %q: %w", l.Label, err)
		}
		fmt.Fprintf(out, "added %s %s\n", t.ID, t.Label)
	}
	return nil
}
