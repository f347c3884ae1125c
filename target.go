package entrywatch

import (
	"strings"
	"time"

	"github.com/jpalmerr/entrywatch/internal/store"
	"github.com/jpalmerr/entrywatch/internal/urlutil"
)

const (
	DefaultIntervalNormal = 300 * time.Second
	DefaultIntervalHot    = 45 * time.Second
	defaultFetchTimeout   = 12 * time.Second
)

// Kind selects how a target's page is interpreted.
type Kind string

const (
	// KindContest is a contest entry page: alerts when entries open.
	KindContest Kind = "contest"

	// KindEvent is a single event (épreuve) page: alerts when a slot frees up.
	KindEvent Kind = "event"
)

// ParseKind converts a string to a [Kind]. The empty string is accepted and
// returns "", meaning the kind will be inferred.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", KindContest, KindEvent:
		return k, nil
	default:
		return "", invalid("kind", "must be %q or %q, got %q", KindContest, KindEvent, s)
	}
}

// InferKind guesses the kind of a target from its URL and label: event pages
// carry a watch_epreuve query parameter or mention an épreuve.
func InferKind(rawURL, label string) Kind {
	if strings.Contains(strings.ToLower(rawURL), "watch_epreuve=") {
		return KindEvent
	}
	if strings.Contains(fold(label), "epreuve") {
		return KindEvent
	}
	return KindContest
}

// TargetSpec is the validated, immutable definition of a target to watch.
//
// TargetSpec is created with [NewTarget]; all fields are private with getter
// methods that return copies of mutable data, so a spec cannot change after
// construction. It is configured using [TargetOption] functions such as
// [WithKind], [WithInterval], [WithHotInterval], [WithHotWindow],
// [WithHeaders], [WithTimeout], [WithExtractor] and [WithDedupKey].
type TargetSpec struct {
	label          string
	url            string
	kind           Kind
	intervalNormal time.Duration
	intervalHot    time.Duration
	hotWindow      *HotWindow
	headers        map[string]string
	timeout        time.Duration
	extractor      Extractor
	dedupKey       string
}

// Label returns the human-readable name of the target.
func (s TargetSpec) Label() string { return s.label }

// URL returns the source URL polled for the target.
func (s TargetSpec) URL() string { return s.url }

// Kind returns the target kind, inferred when not set explicitly.
func (s TargetSpec) Kind() Kind { return s.kind }

// IntervalNormal returns the polling interval outside the hot window.
func (s TargetSpec) IntervalNormal() time.Duration { return s.intervalNormal }

// IntervalHot returns the polling interval inside the hot window.
func (s TargetSpec) IntervalHot() time.Duration { return s.intervalHot }

// HotWindow returns a copy of the hot window, or nil.
func (s TargetSpec) HotWindow() *HotWindow {
	if s.hotWindow == nil {
		return nil
	}
	w := *s.hotWindow
	return &w
}

// Headers returns a copy of the per-target HTTP headers.
func (s TargetSpec) Headers() map[string]string { return copyMap(s.headers) }

// Timeout returns the per-target fetch timeout, or 0 for the engine default.
func (s TargetSpec) Timeout() time.Duration { return s.timeout }

// Extractor returns the per-target extractor, or nil for the kind default.
func (s TargetSpec) Extractor() Extractor { return s.extractor }

// DedupKey returns the alert dedup key: the explicit key, else the label.
func (s TargetSpec) DedupKey() string {
	if s.dedupKey != "" {
		return s.dedupKey
	}
	return s.label
}

// ActiveInterval returns the interval in force at now, evaluated in loc.
// A nil loc means time.Local.
func (s TargetSpec) ActiveInterval(now time.Time, loc *time.Location) time.Duration {
	return activeInterval(s.intervalNormal, s.intervalHot, s.hotWindow, now, loc)
}

func activeInterval(normal, hot time.Duration, w *HotWindow, now time.Time, loc *time.Location) time.Duration {
	if loc == nil {
		loc = time.Local
	}
	if w.Contains(now.In(loc)) {
		return hot
	}
	return normal
}

// NewTarget creates a [TargetSpec] with the given label, URL, and options.
//
// The label and URL are trimmed and must be non-empty; the URL must be an
// absolute http or https URL. Intervals default to 300s normal and 45s hot;
// a hot interval larger than the normal one is clamped to it. When no kind is
// given it is inferred with [InferKind].
//
// Every failure is a *[ValidationError].
//
// Example:
//
//	spec, err := entrywatch.NewTarget("Grand Prix 2026", "https://example.com/concours/202612345",
//	    entrywatch.WithHotInterval(15*time.Second),
//	    entrywatch.WithHotWindow("08:55", "09:30"),
//	)
func NewTarget(label, rawURL string, opts ...TargetOption) (TargetSpec, error) {
	label = strings.TrimSpace(label)
	rawURL = strings.TrimSpace(rawURL)

	if label == "" {
		return TargetSpec{}, invalid("label", "cannot be empty")
	}
	if rawURL == "" {
		return TargetSpec{}, invalid("url", "cannot be empty")
	}
	if _, err := urlutil.Canonicalize(rawURL); err != nil {
		return TargetSpec{}, invalid("url", "%v", err)
	}

	cfg := &targetConfig{
		intervalNormal: DefaultIntervalNormal,
		intervalHot:    DefaultIntervalHot,
		headers:        make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return TargetSpec{}, err
		}
	}

	if cfg.intervalHot > cfg.intervalNormal {
		cfg.intervalHot = cfg.intervalNormal
	}

	kind := cfg.kind
	if kind == "" {
		kind = InferKind(rawURL, label)
	}

	return TargetSpec{
		label:          label,
		url:            rawURL,
		kind:           kind,
		intervalNormal: cfg.intervalNormal,
		intervalHot:    cfg.intervalHot,
		hotWindow:      cfg.hotWindow,
		headers:        cfg.headers,
		timeout:        cfg.timeout,
		extractor:      cfg.extractor,
		dedupKey:       cfg.dedupKey,
	}, nil
}

// Target is a point-in-time snapshot of a watched target and its state.
type Target struct {
	ID             string
	Label          string
	URL            string
	Kind           Kind
	IntervalNormal time.Duration
	IntervalHot    time.Duration
	HotWindow      *HotWindow
	LastStatus     Status
	LastSlots      int
	LastCheckedAt  *time.Time
	LastChangeAt   *time.Time
	LastError      string
	CreatedAt      time.Time
}

// ActiveInterval returns the interval in force at now, evaluated in loc.
func (t Target) ActiveInterval(now time.Time, loc *time.Location) time.Duration {
	return activeInterval(t.IntervalNormal, t.IntervalHot, t.HotWindow, now, loc)
}

// specToRecord converts a spec into the storage form; status fields are
// assigned by the store.
func specToRecord(s TargetSpec) store.Record {
	return store.Record{
		Label:             s.label,
		URL:               s.url,
		Kind:              string(s.kind),
		IntervalNormalSec: int(s.intervalNormal / time.Second),
		IntervalHotSec:    int(s.intervalHot / time.Second),
		HotFrom:           s.hotWindow.FromString(),
		HotTo:             s.hotWindow.ToString(),
	}
}

// recordToTarget converts the storage form into the public snapshot.
func recordToTarget(r store.Record) Target {
	w, _ := ParseHotWindow(r.HotFrom, r.HotTo)
	return Target{
		ID:             r.ID,
		Label:          r.Label,
		URL:            r.URL,
		Kind:           Kind(r.Kind),
		IntervalNormal: time.Duration(r.IntervalNormalSec) * time.Second,
		IntervalHot:    time.Duration(r.IntervalHotSec) * time.Second,
		HotWindow:      w,
		LastStatus:     Status(r.LastStatus),
		LastSlots:      r.LastSlots,
		LastCheckedAt:  copyTime(r.LastCheckedAt),
		LastChangeAt:   copyTime(r.LastChangeAt),
		LastError:      r.LastError,
		CreatedAt:      r.CreatedAt,
	}
}

// restoredRecord builds the storage form of a persisted target. Parameters
// come from the revalidated spec, state and identity from the snapshot.
func restoredRecord(t Target, spec TargetSpec) store.Record {
	rec := specToRecord(spec)
	rec.ID = t.ID
	rec.CreatedAt = t.CreatedAt
	rec.LastStatus = string(t.LastStatus)
	if !t.LastStatus.Valid() {
		rec.LastStatus = store.StatusNever
	}
	rec.LastSlots = t.LastSlots
	if rec.LastSlots < SlotsUnknown {
		rec.LastSlots = SlotsUnknown
	}
	rec.LastCheckedAt = copyTime(t.LastCheckedAt)
	rec.LastChangeAt = copyTime(t.LastChangeAt)
	rec.LastError = t.LastError
	return rec
}

// specFromTarget rebuilds a validated spec from a restored snapshot.
func specFromTarget(t Target) (TargetSpec, error) {
	opts := []TargetOption{
		WithInterval(t.IntervalNormal),
		WithHotInterval(t.IntervalHot),
	}
	if t.Kind != "" {
		opts = append(opts, WithKind(t.Kind))
	}
	if t.HotWindow != nil {
		opts = append(opts, WithHotWindow(t.HotWindow.FromString(), t.HotWindow.ToString()))
	}
	return NewTarget(t.Label, t.URL, opts...)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
