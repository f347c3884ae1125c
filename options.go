package entrywatch

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultFlushInterval = 5 * time.Second

// watcherConfig holds mutable state during Watcher construction.
type watcherConfig struct {
	logger          *slog.Logger
	clock           clockwork.Clock
	location        *time.Location
	notifier        Notifier
	ledger          CooldownLedger
	cooldown        time.Duration
	dispatchTimeout time.Duration
	fetchTimeout    time.Duration
	userAgent       string
	headers         map[string]string
	confirmOpen     time.Duration
	extractors      map[Kind]Extractor
	persister       Persister
	flushInterval   time.Duration
	registerer      prometheus.Registerer
	seeds           []TargetSpec
}

// Option is a function that configures a [Watcher] during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*watcherConfig) error

// WithTarget adds a target to watch from the start.
//
// Seed targets are registered when [Watcher.Start] runs, after persisted
// targets are restored; a seed whose canonical URL is already watched is
// skipped, so a config file and a database can name the same page.
func WithTarget(spec TargetSpec) Option {
	return func(cfg *watcherConfig) error {
		if spec.url == "" {
			return errors.New("target must be created with NewTarget")
		}
		cfg.seeds = append(cfg.seeds, spec)
		return nil
	}
}

// WithTargets adds several targets. Equivalent to calling [WithTarget]
// multiple times.
//
// Example:
//
//	w, err := entrywatch.New(
//	    entrywatch.WithTargets(specs...),
//	)
func WithTargets(specs ...TargetSpec) Option {
	return func(cfg *watcherConfig) error {
		for _, spec := range specs {
			if err := WithTarget(spec)(cfg); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Watcher.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *watcherConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithClock replaces the wall clock used for scheduling, cooldowns and
// timestamps. Tests pass a clockwork fake clock.
func WithClock(clock clockwork.Clock) Option {
	return func(cfg *watcherConfig) error {
		if clock == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = clock
		return nil
	}
}

// WithLocation sets the time zone in which hot windows are evaluated.
// Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(cfg *watcherConfig) error {
		if loc == nil {
			return errors.New("location cannot be nil")
		}
		cfg.location = loc
		return nil
	}
}

// WithNotifier sets the alert surface. Without one, alerts are only logged.
func WithNotifier(n Notifier) Option {
	return func(cfg *watcherConfig) error {
		if n == nil {
			return errors.New("notifier cannot be nil")
		}
		cfg.notifier = n
		return nil
	}
}

// WithLedger replaces the in-memory cooldown ledger, for example with one
// shared between several processes.
func WithLedger(l CooldownLedger) Option {
	return func(cfg *watcherConfig) error {
		if l == nil {
			return errors.New("ledger cannot be nil")
		}
		cfg.ledger = l
		return nil
	}
}

// WithCooldown sets how long a dedup key stays silent after an alert.
// Defaults to 30 seconds. Zero disables the cooldown.
func WithCooldown(d time.Duration) Option {
	return func(cfg *watcherConfig) error {
		if d < 0 {
			return errors.New("cooldown cannot be negative")
		}
		cfg.cooldown = d
		return nil
	}
}

// WithDispatchTimeout bounds both the wait for the alert surface and each
// notifier call. Defaults to 10 seconds.
func WithDispatchTimeout(d time.Duration) Option {
	return func(cfg *watcherConfig) error {
		if d <= 0 {
			return errors.New("dispatch timeout must be positive")
		}
		cfg.dispatchTimeout = d
		return nil
	}
}

// WithFetchTimeout sets the default per-request timeout. Defaults to 12 seconds.
func WithFetchTimeout(d time.Duration) Option {
	return func(cfg *watcherConfig) error {
		if d <= 0 {
			return errors.New("fetch timeout must be positive")
		}
		cfg.fetchTimeout = d
		return nil
	}
}

// WithUserAgent sets the User-Agent header sent with every fetch.
func WithUserAgent(ua string) Option {
	return func(cfg *watcherConfig) error {
		cfg.userAgent = ua
		return nil
	}
}

// WithGlobalHeaders adds HTTP headers sent with every fetch, such as a session
// Cookie. Per-target headers take precedence.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
func WithGlobalHeaders(keyValues ...string) Option {
	return func(cfg *watcherConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithGlobalHeaders requires an even number of arguments (key-value pairs)")
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

// WithConfirmOpen makes the engine re-fetch a page that reads OPEN after d
// and keep the second reading unless that fetch fails. Zero disables it.
func WithConfirmOpen(d time.Duration) Option {
	return func(cfg *watcherConfig) error {
		if d < 0 {
			return errors.New("confirm delay cannot be negative")
		}
		cfg.confirmOpen = d
		return nil
	}
}

// WithKindExtractor replaces the default [Extractor] for every target of a kind
// that does not carry its own.
func WithKindExtractor(kind Kind, e Extractor) Option {
	return func(cfg *watcherConfig) error {
		if kind != KindContest && kind != KindEvent {
			return fmt.Errorf("unknown kind %q", kind)
		}
		if e == nil {
			return errors.New("extractor cannot be nil")
		}
		cfg.extractors[kind] = e
		return nil
	}
}

// WithPersister enables persistence: targets are restored on start and the
// store is snapshotted after changes.
func WithPersister(p Persister) Option {
	return func(cfg *watcherConfig) error {
		if p == nil {
			return errors.New("persister cannot be nil")
		}
		cfg.persister = p
		return nil
	}
}

// WithFlushInterval sets the minimum spacing of persistence snapshots.
// Defaults to 5 seconds.
func WithFlushInterval(d time.Duration) Option {
	return func(cfg *watcherConfig) error {
		if d <= 0 {
			return errors.New("flush interval must be positive")
		}
		cfg.flushInterval = d
		return nil
	}
}

// WithRegisterer registers the engine's Prometheus collectors on reg.
// Without it, metrics are kept on a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(cfg *watcherConfig) error {
		if reg == nil {
			return errors.New("registerer cannot be nil")
		}
		cfg.registerer = reg
		return nil
	}
}
