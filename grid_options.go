package entrywatch

import (
	"errors"
	"fmt"
	"time"
)

// gridConfig holds configuration during target grid construction.
type gridConfig struct {
	urlTemplate    string
	dimensions     map[string][]string
	kind           Kind
	headers        map[string]string
	timeout        time.Duration
	extractor      Extractor
	intervalNormal time.Duration
	intervalHot    time.Duration
	hotFrom        string
	hotTo          string
}

// GridOption configures target grid generation.
// GridOption implements the functional options pattern for [NewTargetGrid].
type GridOption func(*gridConfig) error

// WithURLTemplate sets the URL template for target generation.
// The template uses Go's text/template syntax with dimension keys as variables.
//
// Example:
//
//	WithURLTemplate("https://example.com/concours/{{.concours}}?watch_epreuve={{.epreuve}}")
//
// Returns an error if the template string is empty.
func WithURLTemplate(tmpl string) GridOption {
	return func(cfg *gridConfig) error {
		if tmpl == "" {
			return errors.New("URL template required")
		}
		cfg.urlTemplate = tmpl
		return nil
	}
}

// WithDimensions sets the dimension values for cartesian product expansion.
// Each key in the map becomes a template variable, and the cartesian product
// of all values generates the target combinations.
//
// Returns an error if the map is empty, any dimension has no values,
// or any value is an empty string.
func WithDimensions(dims map[string][]string) GridOption {
	return func(cfg *gridConfig) error {
		if len(dims) == 0 {
			return errors.New("at least one dimension required")
		}
		for k, vals := range dims {
			if len(vals) == 0 {
				return fmt.Errorf("dimension '%s' has no values", k)
			}
			for i, v := range vals {
				if v == "" {
					return fmt.Errorf("dimension '%s' contains empty value at index %d", k, i)
				}
			}
		}
		cfg.dimensions = dims
		return nil
	}
}

// WithGridKind sets the kind of every generated target.
func WithGridKind(k Kind) GridOption {
	return func(cfg *gridConfig) error {
		parsed, err := ParseKind(string(k))
		if err != nil {
			return err
		}
		cfg.kind = parsed
		return nil
	}
}

// WithGridHeaders adds HTTP headers to all generated targets.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
func WithGridHeaders(keyValues ...string) GridOption {
	return func(cfg *gridConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithGridHeaders requires an even number of arguments (key-value pairs)")
		}
		if cfg.headers == nil {
			cfg.headers = make(map[string]string)
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithGridTimeout sets the fetch timeout for all generated targets.
// Zero means the engine default.
func WithGridTimeout(d time.Duration) GridOption {
	return func(cfg *gridConfig) error {
		if d < 0 {
			return errors.New("timeout cannot be negative")
		}
		cfg.timeout = d
		return nil
	}
}

// WithGridExtractor sets a custom [Extractor] for all generated targets.
func WithGridExtractor(e Extractor) GridOption {
	return func(cfg *gridConfig) error {
		cfg.extractor = e
		return nil
	}
}

// WithGridIntervals sets the normal and hot polling intervals of all generated
// targets. Zero keeps the target default for that interval.
func WithGridIntervals(normal, hot time.Duration) GridOption {
	return func(cfg *gridConfig) error {
		if normal < 0 || hot < 0 {
			return errors.New("interval cannot be negative")
		}
		cfg.intervalNormal = normal
		cfg.intervalHot = hot
		return nil
	}
}

// WithGridHotWindow sets the daily "HH:MM" hot window of all generated targets.
func WithGridHotWindow(from, to string) GridOption {
	return func(cfg *gridConfig) error {
		if _, err := ParseHotWindow(from, to); err != nil {
			return err
		}
		cfg.hotFrom, cfg.hotTo = from, to
		return nil
	}
}
