package config

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jpalmerr/entrywatch"
	"github.com/jpalmerr/entrywatch/internal/notify"
)

// BuildTargets converts parsed configuration into target specs.
//
// It processes both direct targets and grids, returning a combined slice.
// Grid dimensions are expanded via cartesian product.
func BuildTargets(cfg *Config) ([]entrywatch.TargetSpec, error) {
	var specs []entrywatch.TargetSpec

	for i, tc := range cfg.Targets {
		spec, err := buildTarget(tc)
		if err != nil {
			return nil, fmt.Errorf("targets[%d] (%s): %w", i, tc.Label, err)
		}
		specs = append(specs, spec)
	}

	for i, gc := range cfg.Grids {
		gridSpecs, err := buildGridTargets(gc)
		if err != nil {
			return nil, fmt.Errorf("grids[%d] (%s): %w", i, gc.Label, err)
		}
		specs = append(specs, gridSpecs...)
	}

	return specs, nil
}

// buildTarget converts a single TargetConfig to a target spec.
func buildTarget(tc TargetConfig) (entrywatch.TargetSpec, error) {
	var opts []entrywatch.TargetOption

	kind := entrywatch.Kind(tc.Kind)
	if kind != "" {
		opts = append(opts, entrywatch.WithKind(kind))
	} else {
		kind = entrywatch.InferKind(tc.URL, tc.Label)
	}

	if tc.Interval != 0 {
		opts = append(opts, entrywatch.WithInterval(tc.Interval.Duration()))
	}
	if tc.HotInterval != 0 {
		opts = append(opts, entrywatch.WithHotInterval(tc.HotInterval.Duration()))
	}
	if tc.HotWindow.From != "" || tc.HotWindow.To != "" {
		opts = append(opts, entrywatch.WithHotWindow(tc.HotWindow.From, tc.HotWindow.To))
	}
	if tc.Timeout != 0 {
		opts = append(opts, entrywatch.WithTimeout(tc.Timeout.Duration()))
	}
	if len(tc.Headers) > 0 {
		opts = append(opts, entrywatch.WithHeaders(mapToKeyValuePairs(tc.Headers)...))
	}
	if tc.DedupKey != "" {
		opts = append(opts, entrywatch.WithDedupKey(tc.DedupKey))
	}

	extractor, err := BuildExtractor(tc.Extractor, kind)
	if err != nil {
		return entrywatch.TargetSpec{}, err
	}
	if extractor != nil {
		opts = append(opts, entrywatch.WithExtractor(extractor))
	}

	return entrywatch.NewTarget(tc.Label, tc.URL, opts...)
}

// buildGridTargets expands a GridConfig into several targets.
func buildGridTargets(gc GridConfig) ([]entrywatch.TargetSpec, error) {
	opts := []entrywatch.GridOption{
		entrywatch.WithURLTemplate(gc.URLTemplate),
		entrywatch.WithDimensions(gc.Dimensions),
		entrywatch.WithGridIntervals(gc.Interval.Duration(), gc.HotInterval.Duration()),
	}

	kind := entrywatch.Kind(gc.Kind)
	if kind != "" {
		opts = append(opts, entrywatch.WithGridKind(kind))
	} else {
		kind = entrywatch.InferKind(gc.URLTemplate, gc.Label)
	}

	if gc.HotWindow.From != "" || gc.HotWindow.To != "" {
		opts = append(opts, entrywatch.WithGridHotWindow(gc.HotWindow.From, gc.HotWindow.To))
	}
	if gc.Timeout != 0 {
		opts = append(opts, entrywatch.WithGridTimeout(gc.Timeout.Duration()))
	}
	if len(gc.Headers) > 0 {
		opts = append(opts, entrywatch.WithGridHeaders(mapToKeyValuePairs(gc.Headers)...))
	}

	extractor, err := BuildExtractor(gc.Extractor, kind)
	if err != nil {
		return nil, err
	}
	if extractor != nil {
		opts = append(opts, entrywatch.WithGridExtractor(extractor))
	}

	return entrywatch.NewTargetGrid(gc.Label, opts...)
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}

// BuildExtractor converts an ExtractorConfig to an [entrywatch.Extractor].
// Returns nil for default/empty extractors, leaving the choice to the
// engine's per-kind default.
func BuildExtractor(ec ExtractorConfig, kind entrywatch.Kind) (entrywatch.Extractor, error) {
	switch ec.Type {
	case "", "default":
		return nil, nil
	case "contains":
		return entrywatch.VisibleText(entrywatch.ContainsExtractor(ec.Text)), nil
	case "selector":
		return entrywatch.SelectorExtractor(ec.Selector, entrywatch.DefaultExtractor(kind))
	case "regex":
		return entrywatch.RegexExtractor(ec.Pattern, ec.Open)
	default:
		return nil, fmt.Errorf("unknown extractor type %q", ec.Type)
	}
}

// BuildNotifiers converts the notifier list into a single
// [entrywatch.Notifier]. One entry is returned as is; several are wrapped
// in a [notify.Multi].
func BuildNotifiers(cfg *Config, logger *slog.Logger) (entrywatch.Notifier, error) {
	var out notify.Multi
	for i, nc := range cfg.Notifiers {
		switch nc.Type {
		case "log":
			out = append(out, notify.NewLog(logger))
		case "webhook":
			out = append(out, notify.NewWebhook(nc.URL, nc.Headers, nc.Timeout.Duration()))
		case "command":
			c, err := notify.NewCommand(nc.Command)
			if err != nil {
				return nil, fmt.Errorf("notifiers[%d]: %w", i, err)
			}
			out = append(out, c)
		default:
			return nil, fmt.Errorf("notifiers[%d]: unknown notifier type %q", i, nc.Type)
		}
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}

// WatcherOptions returns the engine options the config sets explicitly.
// Targets, notifiers, the ledger and persistence are wired by the caller.
func WatcherOptions(cfg *Config) ([]entrywatch.Option, error) {
	var opts []entrywatch.Option

	if cfg.Location != "" {
		loc, err := time.LoadLocation(cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("location: %w", err)
		}
		opts = append(opts, entrywatch.WithLocation(loc))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, entrywatch.WithUserAgent(cfg.UserAgent))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, entrywatch.WithGlobalHeaders(mapToKeyValuePairs(cfg.Headers)...))
	}
	if cfg.FetchTimeout != 0 {
		opts = append(opts, entrywatch.WithFetchTimeout(cfg.FetchTimeout.Duration()))
	}
	if cfg.Cooldown != 0 {
		opts = append(opts, entrywatch.WithCooldown(cfg.Cooldown.Duration()))
	}
	if cfg.DispatchTimeout != 0 {
		opts = append(opts, entrywatch.WithDispatchTimeout(cfg.DispatchTimeout.Duration()))
	}
	if cfg.ConfirmOpen != 0 {
		opts = append(opts, entrywatch.WithConfirmOpen(cfg.ConfirmOpen.Duration()))
	}
	if cfg.FlushInterval != 0 {
		opts = append(opts, entrywatch.WithFlushInterval(cfg.FlushInterval.Duration()))
	}
	return opts, nil
}
