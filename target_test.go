package entrywatch

import (
	"errors"
	"testing"
	"time"
)

func TestNewTarget_Defaults(t *testing.T) {
	spec, err := NewTarget("  Grand Prix  ", " https://example.com/concours/202612345 ")
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}

	if spec.Label() != "Grand Prix" {
		t.Errorf("Label() = %q, want %q", spec.Label(), "Grand Prix")
	}
	if spec.URL() != "https://example.com/concours/202612345" {
		t.Errorf("URL() = %q", spec.URL())
	}
	if spec.Kind() != KindContest {
		t.Errorf("Kind() = %v, want %v", spec.Kind(), KindContest)
	}
	if spec.IntervalNormal() != DefaultIntervalNormal {
		t.Errorf("IntervalNormal() = %v, want %v", spec.IntervalNormal(), DefaultIntervalNormal)
	}
	if spec.IntervalHot() != DefaultIntervalHot {
		t.Errorf("IntervalHot() = %v, want %v", spec.IntervalHot(), DefaultIntervalHot)
	}
	if spec.HotWindow() != nil {
		t.Errorf("HotWindow() = %v, want nil", spec.HotWindow())
	}
	if spec.DedupKey() != "Grand Prix" {
		t.Errorf("DedupKey() = %q, want label", spec.DedupKey())
	}
	if spec.Timeout() != 0 || spec.Extractor() != nil {
		t.Error("Timeout() and Extractor() should be unset by default")
	}
}

func TestNewTarget_Validation(t *testing.T) {
	tests := []struct {
		name      string
		label     string
		url       string
		opts      []TargetOption
		wantField string
	}{
		{"empty label", "  ", "https://example.com", nil, "label"},
		{"empty url", "x", " ", nil, "url"},
		{"relative url", "x", "/concours/1", nil, "url"},
		{"ftp url", "x", "ftp://example.com/a", nil, "url"},
		{"zero interval", "x", "https://example.com", []TargetOption{WithInterval(0)}, "interval_normal"},
		{"negative hot interval", "x", "https://example.com", []TargetOption{WithHotInterval(-time.Second)}, "interval_hot"},
		{"sub-second interval", "x", "https://example.com", []TargetOption{WithInterval(500 * time.Millisecond)}, "interval_normal"},
		{"fractional interval", "x", "https://example.com", []TargetOption{WithInterval(1500 * time.Millisecond)}, "interval_normal"},
		{"half hot window", "x", "https://example.com", []TargetOption{WithHotWindow("10:00", "")}, "hot_window"},
		{"bad kind", "x", "https://example.com", []TargetOption{WithKind("race")}, "kind"},
		{"odd headers", "x", "https://example.com", []TargetOption{WithHeaders("Cookie")}, "headers"},
		{"zero timeout", "x", "https://example.com", []TargetOption{WithTimeout(0)}, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTarget(tt.label, tt.url, tt.opts...)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("NewTarget() error = %v, want *ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("ValidationError.Field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestNewTarget_ClampsHotInterval(t *testing.T) {
	spec, err := NewTarget("x", "https://example.com",
		WithInterval(30*time.Second),
		WithHotInterval(60*time.Second),
	)
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}
	if spec.IntervalHot() != 30*time.Second {
		t.Errorf("IntervalHot() = %v, want %v", spec.IntervalHot(), 30*time.Second)
	}
}

func TestNewTarget_Options(t *testing.T) {
	extractor := ContainsExtractor("engager")
	spec, err := NewTarget("Derby", "https://example.com/c/1",
		WithKind(KindEvent),
		WithHeaders("Cookie", "session=abc", "Accept-Language", "fr"),
		WithTimeout(5*time.Second),
		WithExtractor(extractor),
		WithDedupKey(" derby-2026 "),
		WithHotWindow("08:55", "09:30"),
	)
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}

	if spec.Kind() != KindEvent {
		t.Errorf("Kind() = %v, want %v", spec.Kind(), KindEvent)
	}
	if spec.Headers()["Cookie"] != "session=abc" || spec.Headers()["Accept-Language"] != "fr" {
		t.Errorf("Headers() = %v", spec.Headers())
	}
	if spec.Timeout() != 5*time.Second {
		t.Errorf("Timeout() = %v, want %v", spec.Timeout(), 5*time.Second)
	}
	if spec.Extractor() == nil {
		t.Error("Extractor() = nil, want custom extractor")
	}
	if spec.DedupKey() != "derby-2026" {
		t.Errorf("DedupKey() = %q, want %q", spec.DedupKey(), "derby-2026")
	}
	if spec.HotWindow().String() != "08:55-09:30" {
		t.Errorf("HotWindow() = %v", spec.HotWindow())
	}
}

func TestTargetSpec_ReturnsCopies(t *testing.T) {
	spec, err := NewTarget("x", "https://example.com",
		WithHeaders("Cookie", "a"),
		WithHotWindow("08:00", "09:00"),
	)
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}

	spec.Headers()["Cookie"] = "changed"
	spec.HotWindow().From = 0

	if spec.Headers()["Cookie"] != "a" {
		t.Error("Headers() mutation leaked into spec")
	}
	if spec.HotWindow().FromString() != "08:00" {
		t.Error("HotWindow() mutation leaked into spec")
	}
}

func TestInferKind(t *testing.T) {
	tests := []struct {
		url   string
		label string
		want  Kind
	}{
		{"https://example.com/concours/1?watch_epreuve=42", "Grand Prix", KindEvent},
		{"https://example.com/concours/1?WATCH_EPREUVE=42", "Grand Prix", KindEvent},
		{"https://example.com/concours/1", "Épreuve 3 - 1m10", KindEvent},
		{"https://example.com/concours/1", "epreuve 3", KindEvent},
		{"https://example.com/concours/1", "Grand Prix", KindContest},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := InferKind(tt.url, tt.label); got != tt.want {
				t.Errorf("InferKind(%q, %q) = %v, want %v", tt.url, tt.label, got, tt.want)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"", "", false},
		{"contest", KindContest, false},
		{" Event ", KindEvent, false},
		{"race", "", true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSpecFromTarget_RoundTripsParameters(t *testing.T) {
	spec, err := NewTarget("Night", "https://example.com/c/9",
		WithKind(KindEvent),
		WithInterval(120*time.Second),
		WithHotInterval(20*time.Second),
		WithHotWindow("22:00", "02:00"),
	)
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}

	target := recordToTarget(specToRecord(spec))
	rebuilt, err := specFromTarget(target)
	if err != nil {
		t.Fatalf("specFromTarget() error = %v", err)
	}

	if rebuilt.Label() != spec.Label() || rebuilt.URL() != spec.URL() || rebuilt.Kind() != spec.Kind() {
		t.Errorf("specFromTarget() = %q %q %v, want %q %q %v",
			rebuilt.Label(), rebuilt.URL(), rebuilt.Kind(), spec.Label(), spec.URL(), spec.Kind())
	}
	if rebuilt.IntervalNormal() != spec.IntervalNormal() || rebuilt.IntervalHot() != spec.IntervalHot() {
		t.Errorf("intervals = %v/%v, want %v/%v",
			rebuilt.IntervalNormal(), rebuilt.IntervalHot(), spec.IntervalNormal(), spec.IntervalHot())
	}
	if rebuilt.HotWindow().String() != "22:00-02:00" {
		t.Errorf("HotWindow() = %v, want 22:00-02:00", rebuilt.HotWindow())
	}
}

func TestRestoredRecord_NormalisesState(t *testing.T) {
	spec, err := NewTarget("x", "https://example.com")
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}
	checked := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rec := restoredRecord(Target{
		ID:            "id-1",
		LastStatus:    "bogus",
		LastSlots:     -7,
		LastCheckedAt: &checked,
	}, spec)

	if rec.ID != "id-1" {
		t.Errorf("ID = %q, want %q", rec.ID, "id-1")
	}
	if rec.LastStatus != string(StatusNever) {
		t.Errorf("LastStatus = %q, want %q", rec.LastStatus, StatusNever)
	}
	if rec.LastSlots != SlotsUnknown {
		t.Errorf("LastSlots = %d, want %d", rec.LastSlots, SlotsUnknown)
	}
	if rec.IntervalNormalSec != 300 {
		t.Errorf("IntervalNormalSec = %d, want 300", rec.IntervalNormalSec)
	}
}
