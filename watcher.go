package entrywatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jpalmerr/entrywatch/internal/metrics"
	"github.com/jpalmerr/entrywatch/internal/poller"
	"github.com/jpalmerr/entrywatch/internal/store"
	"github.com/jpalmerr/entrywatch/internal/urlutil"
)

// shutdownFlushTimeout bounds the final persistence snapshot on shutdown.
const shutdownFlushTimeout = 5 * time.Second

const (
	// maxPendingHistory caps history entries buffered between flushes; the
	// oldest are dropped while the persister is failing.
	maxPendingHistory = 4096

	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// ErrAlreadyStarted is returned by a second call to [Watcher.Start].
var ErrAlreadyStarted = errors.New("watcher already started")

// fetcher is the page download boundary; *poller.Client in production.
type fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string, timeout time.Duration) (poller.Response, error)
}

// Watcher is the engine that polls targets, detects transitions and raises
// alerts.
//
// A Watcher owns the target store, one scheduling cycle per target and the
// alert dispatcher. It is created using [New] with functional options and
// runs with [Watcher.Start]. Targets can be added and deleted at any time,
// before or after Start.
//
// The typical lifecycle is:
//
//	w, err := entrywatch.New(entrywatch.WithTarget(spec), entrywatch.WithNotifier(n))
//	if err != nil {
//	    slog.Error("failed to create watcher", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	w.Start(ctx) // blocks until context cancelled
type Watcher struct {
	logger        *slog.Logger
	clock         clockwork.Clock
	location      *time.Location
	store         store.Store
	scheduler     *poller.Scheduler
	fetcher       fetcher
	client        *poller.Client
	dispatcher    *AlertDispatcher
	metrics       *metrics.Metrics
	persister     Persister
	history       HistoryRecorder
	flushInterval time.Duration
	fetchTimeout  time.Duration
	headers       map[string]string
	confirmOpen   time.Duration
	extractors    map[Kind]Extractor
	seeds         []TargetSpec

	mu      sync.Mutex
	started bool
}

// New creates a [Watcher] with the given options.
//
// Every option has a default:
//   - Logger: slog.Default()
//   - Notifier: none, alerts are only logged
//   - Cooldown: 30 seconds, in-memory ledger
//   - Dispatch timeout: 10 seconds
//   - Fetch timeout: 12 seconds
//   - Hot windows evaluated in time.Local
//
// A Watcher with no targets is valid; targets can be added at runtime with
// [Watcher.AddTarget].
func New(opts ...Option) (*Watcher, error) {
	cfg := &watcherConfig{
		cooldown:        DefaultCooldown,
		dispatchTimeout: DefaultDispatchTimeout,
		fetchTimeout:    defaultFetchTimeout,
		userAgent:       poller.DefaultUserAgent,
		flushInterval:   defaultFlushInterval,
		extractors: map[Kind]Extractor{
			KindContest: DefaultExtractor(KindContest),
			KindEvent:   DefaultExtractor(KindEvent),
		},
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.clock == nil {
		cfg.clock = clockwork.NewRealClock()
	}
	if cfg.location == nil {
		cfg.location = time.Local
	}
	if cfg.notifier == nil {
		cfg.notifier = nopNotifier{}
	}
	if cfg.ledger == nil {
		cfg.ledger = NewMemoryLedger()
	}

	m := metrics.New(cfg.registerer)
	client := poller.NewClient(cfg.userAgent)
	history, _ := cfg.persister.(HistoryRecorder)

	return &Watcher{
		logger:        cfg.logger,
		clock:         cfg.clock,
		location:      cfg.location,
		store:         store.NewMemoryStore(cfg.clock.Now),
		scheduler:     poller.NewScheduler(cfg.clock, cfg.logger),
		fetcher:       client,
		client:        client,
		dispatcher:    newAlertDispatcher(cfg, m),
		metrics:       m,
		persister:     cfg.persister,
		history:       history,
		flushInterval: cfg.flushInterval,
		fetchTimeout:  cfg.fetchTimeout,
		headers:       cfg.headers,
		confirmOpen:   cfg.confirmOpen,
		extractors:    cfg.extractors,
		seeds:         cfg.seeds,
	}, nil
}

// AddTarget stores a target built with [NewTarget] with status never and
// starts its polling cycle. The first poll runs immediately when the Watcher
// is running, or as soon as [Watcher.Start] is called.
func (w *Watcher) AddTarget(ctx context.Context, spec TargetSpec) (Target, error) {
	if spec.url == "" {
		return Target{}, invalid("target", "must be created with NewTarget")
	}
	if err := ctx.Err(); err != nil {
		return Target{}, err
	}

	rec, err := w.store.Add(specToRecord(spec))
	if err != nil {
		return Target{}, fmt.Errorf("add target: %w", err)
	}
	if err := w.schedule(rec.ID, spec); err != nil {
		w.store.Remove(rec.ID)
		return Target{}, fmt.Errorf("schedule target: %w", err)
	}

	w.logger.Info("target added",
		"target_id", rec.ID,
		"label", rec.Label,
		"url", rec.URL,
		"kind", rec.Kind,
	)
	return recordToTarget(rec), nil
}

// DeleteTarget stops the target's cycle and removes it. Deleting an unknown
// ID is a no-op reported as false; a malformed ID is a *[ValidationError].
//
// A poll already in flight is cancelled, and its result is discarded.
func (w *Watcher) DeleteTarget(id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, invalid("id", "%q is not a target id", id)
	}

	w.scheduler.Remove(id)
	removed := w.store.Remove(id)
	if removed {
		w.logger.Info("target deleted", "target_id", id)
	}
	return removed, nil
}

// GetTarget returns a snapshot of one target, or [ErrNotFound].
func (w *Watcher) GetTarget(id string) (Target, error) {
	rec, err := w.store.Get(id)
	if err != nil {
		return Target{}, err
	}
	return recordToTarget(rec), nil
}

// ListTargets returns snapshots of every target in insertion order.
func (w *Watcher) ListTargets() []Target {
	recs := w.store.List()
	out := make([]Target, len(recs))
	for i, rec := range recs {
		out[i] = recordToTarget(rec)
	}
	return out
}

// TargetEventType classifies a [TargetEvent].
type TargetEventType string

const (
	TargetAdded   TargetEventType = TargetEventType(store.EventAdded)
	TargetUpdated TargetEventType = TargetEventType(store.EventUpdated)
	TargetRemoved TargetEventType = TargetEventType(store.EventRemoved)
)

// TargetEvent is a change to the target set, as seen by [Watcher.Subscribe].
type TargetEvent struct {
	Type   TargetEventType
	Target Target
}

// Subscribe returns a stream of target changes and a function that ends the
// subscription. Slow consumers miss events rather than stall the engine.
func (w *Watcher) Subscribe() (<-chan TargetEvent, func()) {
	src := w.store.Subscribe()
	out := make(chan TargetEvent, cap(src))

	go func() {
		defer close(out)
		for ev := range src {
			te := TargetEvent{Type: TargetEventType(ev.Type), Target: recordToTarget(ev.Record)}
			select {
			case out <- te:
			default:
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() { w.store.Unsubscribe(src) })
	}
}

// Check fetches spec's page once and returns what the extractor reads,
// without storing anything or raising alerts.
func (w *Watcher) Check(ctx context.Context, spec TargetSpec) (Observation, error) {
	return w.observe(ctx, spec)
}

// ListEvents fetches a contest page and returns the event pages it links to.
func (w *Watcher) ListEvents(ctx context.Context, contestURL string) ([]EventLink, error) {
	if _, err := urlutil.Canonicalize(contestURL); err != nil {
		return nil, invalid("url", "%v", err)
	}
	resp, err := w.fetcher.Fetch(ctx, contestURL, w.headers, w.fetchTimeout)
	if err != nil {
		return nil, err
	}
	return ExtractEventLinks(contestURL, resp.Body)
}

// Start restores persisted targets, registers seed targets and runs every
// polling cycle until ctx is cancelled.
//
// Returns nil on graceful shutdown. Returns an error if persisted targets
// cannot be loaded or if a systemic failure (the target store rejecting a
// write) stopped the engine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	if ctx.Err() != nil {
		return nil
	}

	if err := w.restore(ctx); err != nil {
		return err
	}
	seeded := w.seed(ctx)

	events := w.store.Subscribe()
	syncCtx, stopSync := context.WithCancel(context.Background())
	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		w.syncLoop(syncCtx, events, seeded > 0)
	}()

	w.logger.Info("entrywatch starting", "target_count", w.scheduler.Len())
	w.scheduler.Start(ctx)

	select {
	case <-ctx.Done():
	case <-w.scheduler.Done():
	}

	w.scheduler.Stop()
	stopSync()
	<-syncDone
	w.store.Unsubscribe(events)
	w.client.Close()

	if err := w.scheduler.Err(); err != nil {
		return fmt.Errorf("engine stopped: %w", err)
	}
	w.logger.Info("entrywatch stopped")
	return nil
}

// schedule registers the polling cycle for a stored target.
func (w *Watcher) schedule(id string, spec TargetSpec) error {
	return w.scheduler.Add(poller.Job{
		ID: id,
		Interval: func(now time.Time) time.Duration {
			return spec.ActiveInterval(now, w.location)
		},
		Poll: func(ctx context.Context) error {
			return w.poll(ctx, id, spec)
		},
	})
}

// poll is one fetch-extract-record-classify-dispatch pass for a target.
//
// Per-target failures are recorded and absorbed. Only a store write failure
// other than a concurrent delete is returned, which stops the engine.
func (w *Watcher) poll(ctx context.Context, id string, spec TargetSpec) error {
	obs, pollErr := w.observe(ctx, spec)
	if ctx.Err() != nil {
		return nil
	}

	if obs.Status == StatusOpen && w.confirmOpen > 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-w.clock.After(w.confirmOpen):
		}
		second, err := w.observe(ctx, spec)
		if ctx.Err() != nil {
			return nil
		}
		if second.Status != StatusError {
			obs, pollErr = second, err
		}
	}

	res := store.PollResult{
		Status:    string(obs.Status),
		Slots:     obs.Slots,
		CheckedAt: w.clock.Now(),
	}
	if pollErr != nil {
		res.Error = pollErr.Error()
	}

	prev, updated, err := w.store.RecordPollResult(id, res)
	if errors.Is(err, store.ErrNotFound) {
		w.logger.Debug("poll result discarded for deleted target", "target_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("record poll result for %s: %w", id, err)
	}

	tr := ClassifyTarget(spec.kind, Observation{Status: Status(prev.LastStatus), Slots: prev.LastSlots}, obs)
	w.metrics.IncPoll(string(obs.Status))
	if tr != TransitionNone {
		w.metrics.IncTransition(string(tr))
	}

	logAttrs := []any{
		"target_id", id,
		"label", spec.label,
		"status", obs.Status,
		"slots", obs.Slots,
		"transition", tr,
	}
	if pollErr != nil {
		w.logger.Warn("poll completed with error", append(logAttrs, "error", pollErr.Error())...)
	} else {
		w.logger.Debug("poll completed", logAttrs...)
	}

	if tr.Qualifies() {
		w.dispatcher.MaybeAlert(ctx, spec.DedupKey(), tr, recordToTarget(updated))
	}
	return nil
}

// observe fetches and extracts one reading. A fetch failure yields ERROR
// with the fetch error; an extractor panic yields UNKNOWN with an error.
func (w *Watcher) observe(ctx context.Context, spec TargetSpec) (Observation, error) {
	resp, err := w.fetcher.Fetch(ctx, spec.url, w.headersFor(spec), w.timeoutFor(spec))
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			w.metrics.IncFetchError(string(fe.Kind))
		}
		return Observation{Status: StatusError, Slots: SlotsUnknown}, err
	}
	w.metrics.ObserveFetch(resp.Latency)
	return w.safeExtract(spec, resp.Body)
}

// safeExtract runs the target's extractor with panic recovery.
func (w *Watcher) safeExtract(spec TargetSpec, body []byte) (obs Observation, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			w.logger.Error("extractor panic",
				"correlation_id", correlationID,
				"label", spec.label,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			obs = Unknown
			err = fmt.Errorf("extractor panic (correlation_id: %s)", correlationID)
		}
	}()

	obs = w.extractorFor(spec)(body)
	if !obs.Status.Valid() || obs.Status == StatusNever {
		obs.Status = StatusUnknown
	}
	if obs.Slots < SlotsUnknown {
		obs.Slots = SlotsUnknown
	}
	return obs, nil
}

func (w *Watcher) extractorFor(spec TargetSpec) Extractor {
	if spec.extractor != nil {
		return spec.extractor
	}
	if e, ok := w.extractors[spec.kind]; ok {
		return e
	}
	return DefaultExtractor(spec.kind)
}

// headersFor merges global and per-target headers; per-target wins.
func (w *Watcher) headersFor(spec TargetSpec) map[string]string {
	if len(w.headers) == 0 {
		return spec.headers
	}
	merged := copyMap(w.headers)
	for k, v := range spec.headers {
		merged[k] = v
	}
	return merged
}

func (w *Watcher) timeoutFor(spec TargetSpec) time.Duration {
	if spec.timeout > 0 {
		return spec.timeout
	}
	return w.fetchTimeout
}

// restore reloads persisted targets with their IDs and last state.
// Entries that no longer validate are skipped with a warning.
func (w *Watcher) restore(ctx context.Context) error {
	if w.persister == nil {
		return nil
	}

	targets, err := w.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("load persisted targets: %w", err)
	}

	for _, t := range targets {
		if _, err := uuid.Parse(t.ID); err != nil {
			w.logger.Warn("skipping persisted target with invalid id", "target_id", t.ID)
			continue
		}
		spec, err := specFromTarget(t)
		if err != nil {
			w.logger.Warn("skipping invalid persisted target", "target_id", t.ID, "error", err)
			continue
		}
		if err := w.store.Restore(restoredRecord(t, spec)); err != nil {
			w.logger.Warn("skipping persisted target", "target_id", t.ID, "error", err)
			continue
		}
		if err := w.schedule(t.ID, spec); err != nil {
			w.store.Remove(t.ID)
			return fmt.Errorf("schedule restored target %s: %w", t.ID, err)
		}
	}

	w.logger.Info("targets restored", "count", len(w.store.List()))
	return nil
}

// seed registers the configured targets and reports how many were added.
// A seed whose canonical URL matches a restored target does not create a
// second target; the restored target keeps its identity and state and takes
// the seed's fetch settings.
func (w *Watcher) seed(ctx context.Context) int {
	restored := make(map[string]string)
	for _, t := range w.ListTargets() {
		if c, err := urlutil.Canonicalize(t.URL); err == nil {
			restored[c] = t.ID
		}
	}

	added := 0
	seen := make(map[string]bool, len(w.seeds))
	for _, spec := range w.seeds {
		c, err := urlutil.Canonicalize(spec.url)
		if err != nil {
			continue
		}
		if seen[c] {
			w.logger.Warn("skipping duplicate seed target", "label", spec.label, "url", spec.url)
			continue
		}
		seen[c] = true

		if id, ok := restored[c]; ok {
			w.rescheduleWithSeed(id, spec)
			continue
		}
		if _, err := w.AddTarget(ctx, spec); err != nil {
			w.logger.Warn("failed to add seed target", "label", spec.label, "error", err)
			continue
		}
		added++
	}
	return added
}

// rescheduleWithSeed replaces a restored target's cycle with one that uses the
// seed's headers, timeout, extractor and dedup key.
func (w *Watcher) rescheduleWithSeed(id string, seed TargetSpec) {
	t, err := w.GetTarget(id)
	if err != nil {
		return
	}
	spec, err := specFromTarget(t)
	if err != nil {
		return
	}
	spec.headers = seed.Headers()
	spec.timeout = seed.timeout
	spec.extractor = seed.extractor
	spec.dedupKey = seed.dedupKey

	w.scheduler.Remove(id)
	if err := w.schedule(id, spec); err != nil {
		w.logger.Warn("failed to reschedule restored target", "target_id", id, "error", err)
		return
	}
	w.logger.Debug("seed target matched restored target", "target_id", id, "label", seed.label)
}

// syncLoop keeps the targets gauge current and snapshots the store to the
// persister at most once per flush interval while it has changes. Every
// poll result seen in between is written to the history with the snapshot.
func (w *Watcher) syncLoop(ctx context.Context, events <-chan store.Event, dirty bool) {
	w.metrics.SetTargets(len(w.store.List()))

	var tick <-chan time.Time
	if w.persister != nil {
		ticker := w.clock.NewTicker(w.flushInterval)
		defer ticker.Stop()
		tick = ticker.Chan()
	}

	var pending []HistoryEntry
	record := func(ev store.Event) {
		if w.history == nil || ev.Type != store.EventUpdated || ev.Record.LastCheckedAt == nil {
			return
		}
		if len(pending) == maxPendingHistory {
			pending = pending[1:]
		}
		pending = append(pending, HistoryEntry{
			TargetID: ev.Record.ID,
			At:       *ev.Record.LastCheckedAt,
			Status:   Status(ev.Record.LastStatus),
			Slots:    ev.Record.LastSlots,
			Error:    ev.Record.LastError,
		})
	}

	for {
		select {
		case <-ctx.Done():
			if w.persister == nil {
				return
			}
			for drained := false; !drained; {
				select {
				case ev := <-events:
					record(ev)
					dirty = true
				default:
					drained = true
				}
			}
			if dirty {
				flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
				w.flush(flushCtx, pending)
				cancel()
			}
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != store.EventUpdated {
				w.metrics.SetTargets(len(w.store.List()))
			}
			record(ev)
			dirty = true
		case <-tick:
			if dirty && w.flush(ctx, pending) == nil {
				dirty = false
				pending = nil
			}
		}
	}
}

// flush saves a snapshot of the store, then appends the history entries of
// targets still in it.
func (w *Watcher) flush(ctx context.Context, history []HistoryEntry) error {
	targets := w.ListTargets()
	if err := w.persister.SaveAll(ctx, targets); err != nil {
		w.metrics.IncFlush("error")
		w.logger.Error("failed to persist targets", "error", err)
		return err
	}

	if w.history != nil && len(history) > 0 {
		live := make(map[string]bool, len(targets))
		for _, t := range targets {
			live[t.ID] = true
		}
		entries := make([]HistoryEntry, 0, len(history))
		for _, e := range history {
			if live[e.TargetID] {
				entries = append(entries, e)
			}
		}
		if len(entries) > 0 {
			if err := w.history.AppendHistory(ctx, entries); err != nil {
				w.metrics.IncFlush("error")
				w.logger.Error("failed to persist status history", "error", err)
				return err
			}
		}
	}

	w.metrics.IncFlush("ok")
	w.logger.Debug("targets persisted", "count", len(targets), "history", len(history))
	return nil
}

// History returns up to limit recorded poll outcomes of a target, newest
// first, as of the last flush. A limit of zero or less selects 50; larger
// requests are capped at 1000. Without a persister that keeps history the
// result is empty.
func (w *Watcher) History(ctx context.Context, id string, limit int) ([]HistoryEntry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, invalid("id", "%q is not a target id", id)
	}
	if _, err := w.store.Get(id); err != nil {
		return nil, err
	}
	if w.history == nil {
		return []HistoryEntry{}, nil
	}

	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	entries, err := w.history.History(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("load history of %s: %w", id, err)
	}
	return entries, nil
}
