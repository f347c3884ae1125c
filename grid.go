package entrywatch

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"text/template"
)

// NewTargetGrid creates several targets from a URL template and dimensions
// using cartesian product expansion, typically one event target per épreuve
// of a contest.
//
// The URL template uses Go's text/template syntax. Dimension values are
// URL-encoded before interpolation. Missing template keys cause an error.
//
// Each label includes the dimension values in the format
// "Base Label (val1/val2)", values ordered by sorted dimension keys.
//
// Example:
//
//	specs, err := entrywatch.NewTargetGrid("Grand Prix 2026",
//	    entrywatch.WithURLTemplate("https://example.com/concours/202612345?watch_epreuve={{.epreuve}}"),
//	    entrywatch.WithDimensions(map[string][]string{
//	        "epreuve": {"1", "2", "5"},
//	    }),
//	)
//	// Returns 3 event targets, usable with WithTargets(specs...)
func NewTargetGrid(baseLabel string, opts ...GridOption) ([]TargetSpec, error) {
	if strings.TrimSpace(baseLabel) == "" {
		return nil, errors.New("base label cannot be empty")
	}

	cfg := &gridConfig{
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.urlTemplate == "" {
		return nil, errors.New("URL template required")
	}
	if len(cfg.dimensions) == 0 {
		return nil, errors.New("at least one dimension required")
	}

	tmpl, err := template.New("url").Option("missingkey=error").Parse(cfg.urlTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid URL template: %w", err)
	}

	combinations := cartesianProduct(cfg.dimensions)
	if len(combinations) == 0 {
		return nil, nil
	}

	specs := make([]TargetSpec, 0, len(combinations))
	for _, combo := range combinations {
		urlStr, err := executeTemplate(tmpl, urlEncodeMap(combo))
		if err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}

		label := formatTargetLabel(baseLabel, combo)

		var targetOpts []TargetOption
		if cfg.kind != "" {
			targetOpts = append(targetOpts, WithKind(cfg.kind))
		}
		if len(cfg.headers) > 0 {
			targetOpts = append(targetOpts, WithHeaders(flattenMap(cfg.headers)...))
		}
		if cfg.timeout > 0 {
			targetOpts = append(targetOpts, WithTimeout(cfg.timeout))
		}
		if cfg.extractor != nil {
			targetOpts = append(targetOpts, WithExtractor(cfg.extractor))
		}
		if cfg.intervalNormal > 0 {
			targetOpts = append(targetOpts, WithInterval(cfg.intervalNormal))
		}
		if cfg.intervalHot > 0 {
			targetOpts = append(targetOpts, WithHotInterval(cfg.intervalHot))
		}
		if cfg.hotFrom != "" || cfg.hotTo != "" {
			targetOpts = append(targetOpts, WithHotWindow(cfg.hotFrom, cfg.hotTo))
		}

		spec, err := NewTarget(label, urlStr, targetOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create target '%s': %w", label, err)
		}
		specs = append(specs, spec)
	}

	return specs, nil
}

// cartesianProduct generates all combinations of dimension values.
// Keys are sorted alphabetically for deterministic output.
// Values maintain their original slice order.
//
// Example:
//
//	Input:  {"x": ["a","b"], "y": ["1","2"]}
//	Output: [{"x":"a","y":"1"}, {"x":"a","y":"2"}, {"x":"b","y":"1"}, {"x":"b","y":"2"}]
func cartesianProduct(dims map[string][]string) []map[string]string {
	if len(dims) == 0 {
		return nil
	}

	keys := sortedKeys(dims)
	total := 1
	for _, k := range keys {
		if len(dims[k]) == 0 {
			return nil
		}
		total *= len(dims[k])
	}

	result := make([]map[string]string, 0, total)
	indices := make([]int, len(keys))
	for {
		combo := make(map[string]string, len(keys))
		for i, k := range keys {
			combo[k] = dims[k][indices[i]]
		}
		result = append(result, combo)

		// odometer increment, rightmost first
		for i := len(keys) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(dims[keys[i]]) {
				break
			}
			indices[i] = 0
			if i == 0 {
				return result
			}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// urlEncodeMap returns a new map with all values URL-encoded.
func urlEncodeMap(m map[string]string) map[string]string {
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = url.QueryEscape(v)
	}
	return result
}

func executeTemplate(tmpl *template.Template, data map[string]string) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatTargetLabel creates a label in the format "Base (v1/v2)".
func formatTargetLabel(baseLabel string, combo map[string]string) string {
	keys := sortedKeys(combo)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = combo[k]
	}
	return fmt.Sprintf("%s (%s)", strings.TrimSpace(baseLabel), strings.Join(parts, "/"))
}

// flattenMap converts a map to key-value pairs for variadic options.
// Keys are sorted for deterministic output.
func flattenMap(m map[string]string) []string {
	result := make([]string, 0, len(m)*2)
	for _, k := range sortedKeys(m) {
		result = append(result, k, m[k])
	}
	return result
}
