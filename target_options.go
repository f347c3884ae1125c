package entrywatch

import (
	"strings"
	"time"
)

// targetConfig holds mutable state during target construction.
type targetConfig struct {
	kind           Kind
	intervalNormal time.Duration
	intervalHot    time.Duration
	hotWindow      *HotWindow
	headers        map[string]string
	timeout        time.Duration
	extractor      Extractor
	dedupKey       string
}

// TargetOption is a function that configures a [TargetSpec] during construction.
//
// TargetOption implements the functional options pattern for [NewTarget].
// Options return a *[ValidationError] if validation fails.
type TargetOption func(*targetConfig) error

// WithKind sets the target kind instead of inferring it from URL and label.
func WithKind(k Kind) TargetOption {
	return func(cfg *targetConfig) error {
		parsed, err := ParseKind(string(k))
		if err != nil {
			return err
		}
		cfg.kind = parsed
		return nil
	}
}

// WithInterval sets the polling interval used outside the hot window.
//
// The interval must be a whole number of seconds, at least one second.
// Defaults to 300 seconds.
//
// Example:
//
//	spec, err := entrywatch.NewTarget("Grand Prix", url,
//	    entrywatch.WithInterval(10*time.Minute),
//	)
func WithInterval(d time.Duration) TargetOption {
	return func(cfg *targetConfig) error {
		if err := validateInterval("interval_normal", d); err != nil {
			return err
		}
		cfg.intervalNormal = d
		return nil
	}
}

// WithHotInterval sets the polling interval used inside the hot window.
//
// Same constraints as [WithInterval]. A value larger than the normal interval
// is clamped to it. Defaults to 45 seconds.
func WithHotInterval(d time.Duration) TargetOption {
	return func(cfg *targetConfig) error {
		if err := validateInterval("interval_hot", d); err != nil {
			return err
		}
		cfg.intervalHot = d
		return nil
	}
}

func validateInterval(field string, d time.Duration) error {
	if d < time.Second {
		return invalid(field, "must be at least 1s, got %v", d)
	}
	if d%time.Second != 0 {
		return invalid(field, "must be a whole number of seconds, got %v", d)
	}
	return nil
}

// WithHotWindow sets the daily "HH:MM" range in which the hot interval applies.
//
// A window whose start is later than its end wraps midnight. Equal bounds are
// rejected. Empty bounds clear the window.
//
// Example:
//
//	entrywatch.WithHotWindow("22:00", "02:00")
func WithHotWindow(from, to string) TargetOption {
	return func(cfg *targetConfig) error {
		w, err := ParseHotWindow(from, to)
		if err != nil {
			return err
		}
		cfg.hotWindow = w
		return nil
	}
}

// WithHeaders adds custom HTTP headers to poll requests for this target,
// such as a session Cookie. They override engine-wide headers.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
func WithHeaders(keyValues ...string) TargetOption {
	return func(cfg *targetConfig) error {
		if len(keyValues)%2 != 0 {
			return invalid("headers", "requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout sets the fetch timeout for this target.
// Defaults to the engine timeout (12 seconds).
func WithTimeout(d time.Duration) TargetOption {
	return func(cfg *targetConfig) error {
		if d <= 0 {
			return invalid("timeout", "must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithExtractor sets a custom [Extractor] for this target.
// If nil, the engine's extractor for the target's kind is used.
func WithExtractor(e Extractor) TargetOption {
	return func(cfg *targetConfig) error {
		cfg.extractor = e
		return nil
	}
}

// WithDedupKey sets the identity used for alert cooldown. Targets that share
// a key share a cooldown. Defaults to the label.
func WithDedupKey(key string) TargetOption {
	return func(cfg *targetConfig) error {
		cfg.dedupKey = strings.TrimSpace(key)
		return nil
	}
}
