// Package entrywatch watches contest registration pages and raises an alert
// the moment entries open or a slot frees up in a full event.
//
// entrywatch is an SDK-first library: the engine, its targets and its alert
// surface are configured programmatically with functional options, and the
// entrywatch command is a thin layer over the same API.
//
// # Quick Start
//
//	spec, _ := entrywatch.NewTarget("Grand Prix", "https://example.com/concours/202612345",
//	    entrywatch.WithHotInterval(15*time.Second),
//	    entrywatch.WithHotWindow("08:55", "09:30"),
//	)
//	w, _ := entrywatch.New(
//	    entrywatch.WithTarget(spec),
//	    entrywatch.WithNotifier(entrywatch.NotifierFunc(func(ctx context.Context, a entrywatch.Alert) error {
//	        fmt.Println("OPEN:", a.Label, a.URL)
//	        return nil
//	    })),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	w.Start(ctx) // blocks until context is cancelled
//
// # Polling
//
// Every target runs its own cycle. A cycle polls immediately, then every
// normal interval, or every hot interval while the wall clock is inside the
// target's daily hot window. Polls are never retried: a failed fetch is
// recorded as ERROR and the next scheduled poll is the retry.
//
// # Extractors
//
// An [Extractor] turns a page body into an [Observation]. The defaults read
// the visible text of the page for French registration wording and a
// "taken / capacity" counter:
//
//   - [KeywordExtractor]: FULL over OPEN over CLOSED keyword phrases
//   - [SlotRatioExtractor]: free slots from an "engagés 52 / 60" counter
//   - [SelectorExtractor]: narrows the page with a CSS selector first
//   - [ContainsExtractor], [RegexExtractor]: simple custom rules
//   - [FirstMatch], [WithSlots], [VisibleText]: composition helpers
//
// # Alerts
//
// [Classify] compares the previous and new observation of a target. Only
// BECAME_OPEN and BECAME_AVAILABLE reach the [Notifier], and only once per
// dedup key within the cooldown. The notifier is never called concurrently.
//
// # Architecture
//
//   - internal/poller: HTTP client and per-target scheduling cycles
//   - internal/store: in-memory target store with change subscriptions
//   - internal/persist: SQLite and PostgreSQL [Persister] implementations
//   - internal/ledger: Redis [CooldownLedger] shared between processes
//   - internal/notify: log, webhook and command notifiers
//   - internal/server: REST API, Server-Sent Events and the dashboard
//
// The internal packages are not part of the public API.
package entrywatch
