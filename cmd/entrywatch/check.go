package main

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jpalmerr/entrywatch"
	"github.com/jpalmerr/entrywatch/config"
)

// checkCmd fetches one page and prints what the extractor reads.
var checkCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Fetch a page once and print its status",
	Long: `Fetch a page once and print the status and free slots the extractor
reads from it. Nothing is stored and no alert is raised.

Use it to tune keywords or a CSS selector before adding a target.

Example:
  entrywatch check https://example.com/concours/202612345
  entrywatch check --kind event --extractor 'selector:#bloc-engagement' <url>
  entrywatch check -H 'Cookie=session=abc' <url>`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	addFetchFlags(checkCmd.Flags())

	checkCmd.Flags().String("kind", "", "target kind: contest or event (inferred when empty)")
	checkCmd.Flags().String("extractor", "", "extractor shorthand: default, contains:text, or selector:css")
}

// addFetchFlags registers the flags shared by commands that fetch pages.
func addFetchFlags(flags *pflag.FlagSet) {
	flags.StringToStringP("header", "H", nil, "request header as key=value (repeatable)")
	flags.Duration("timeout", 0, "request timeout (default 12s)")
	flags.String("user-agent", "", "User-Agent header")
}

// fetchWatcher builds a watcher configured from the shared fetch flags.
func fetchWatcher(cmd *cobra.Command) (*entrywatch.Watcher, error) {
	headers, _ := cmd.Flags().GetStringToString("header")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	userAgent, _ := cmd.Flags().GetString("user-agent")

	opts := []entrywatch.Option{
		entrywatch.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	for k, v := range headers {
		opts = append(opts, entrywatch.WithGlobalHeaders(k, v))
	}
	if timeout > 0 {
		opts = append(opts, entrywatch.WithFetchTimeout(timeout))
	}
	if userAgent != "" {
		opts = append(opts, entrywatch.WithUserAgent(userAgent))
	}
	return entrywatch.New(opts...)
}

func runCheck(cmd *cobra.Command, args []string) error {
	rawURL := args[0]
	kindFlag, _ := cmd.Flags().GetString("kind")
	extractorFlag, _ := cmd.Flags().GetString("extractor")

	kind, err := entrywatch.ParseKind(kindFlag)
	if err != nil {
		return err
	}

	var opts []entrywatch.TargetOption
	if kind != "" {
		opts = append(opts, entrywatch.WithKind(kind))
	} else {
		kind = entrywatch.InferKind(rawURL, "")
	}

	ec, err := config.ParseExtractor(extractorFlag)
	if err != nil {
		return err
	}
	extractor, err := config.BuildExtractor(ec, kind)
	if err != nil {
		return err
	}
	if extractor != nil {
		opts = append(opts, entrywatch.WithExtractor(extractor))
	}

	spec, err := entrywatch.NewTarget(rawURL, rawURL, opts...)
	if err != nil {
		return err
	}

	w, err := fetchWatcher(cmd)
	if err != nil {
		return err
	}

	start := time.Now()
	obs, err := w.Check(cmd.Context(), spec)
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Kind:   %s\n", spec.Kind())
	fmt.Fprintf(out, "Status: %s\n", obs.Status)
	fmt.Fprintf(out, "Slots:  %s\n", formatSlots(obs.Slots))
	fmt.Fprintf(out, "Took:   %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func formatSlots(n int) string {
	if n == entrywatch.SlotsUnknown {
		return "unknown"
	}
	return strconv.Itoa(n)
}
