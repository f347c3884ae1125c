package entrywatch

import (
	"errors"
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 14, hour, minute, 0, 0, time.UTC)
}

func TestParseHotWindow(t *testing.T) {
	tests := []struct {
		name      string
		from, to  string
		want      string
		wantNil   bool
		wantField string
	}{
		{"none", "", "", "", true, ""},
		{"morning", "08:55", "09:30", "08:55-09:30", false, ""},
		{"wraps midnight", "22:00", "02:00", "22:00-02:00", false, ""},
		{"single digit hour", "8:05", "9:00", "08:05-09:00", false, ""},
		{"trimmed", " 10:00 ", " 11:00", "10:00-11:00", false, ""},
		{"only from", "10:00", "", "", false, "hot_window"},
		{"only to", "", "10:00", "", false, "hot_window"},
		{"bad from", "25:00", "10:00", "", false, "hot_from"},
		{"bad to", "10:00", "noon", "", false, "hot_to"},
		{"equal bounds", "10:00", "10:00", "", false, "hot_window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := ParseHotWindow(tt.from, tt.to)
			if tt.wantField != "" {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("ParseHotWindow() error = %v, want *ValidationError", err)
				}
				if verr.Field != tt.wantField {
					t.Errorf("ValidationError.Field = %q, want %q", verr.Field, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHotWindow() error = %v", err)
			}
			if tt.wantNil {
				if w != nil {
					t.Errorf("ParseHotWindow() = %v, want nil", w)
				}
				return
			}
			if w.String() != tt.want {
				t.Errorf("ParseHotWindow() = %v, want %v", w, tt.want)
			}
		})
	}
}

func TestHotWindow_Contains(t *testing.T) {
	night := &HotWindow{From: 22 * 60, To: 2 * 60}
	morning := &HotWindow{From: 8*60 + 55, To: 9*60 + 30}

	tests := []struct {
		name string
		w    *HotWindow
		t    time.Time
		want bool
	}{
		{"night before midnight", night, at(23, 30), true},
		{"night at start", night, at(22, 0), true},
		{"night after midnight", night, at(1, 59), true},
		{"night at end", night, at(2, 0), false},
		{"night during day", night, at(10, 0), false},
		{"morning inside", morning, at(9, 0), true},
		{"morning before", morning, at(8, 54), false},
		{"morning at end", morning, at(9, 30), false},
		{"nil window", nil, at(9, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.w.Contains(tt.t); got != tt.want {
				t.Errorf("Contains(%s) = %v, want %v", tt.t.Format("15:04"), got, tt.want)
			}
		})
	}
}

func TestActiveInterval_HotWindow(t *testing.T) {
	spec, err := NewTarget("Night", "https://example.com/c/1",
		WithInterval(300*time.Second),
		WithHotInterval(15*time.Second),
		WithHotWindow("22:00", "02:00"),
	)
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}

	if got := spec.ActiveInterval(at(23, 30), time.UTC); got != 15*time.Second {
		t.Errorf("ActiveInterval(23:30) = %v, want %v", got, 15*time.Second)
	}
	if got := spec.ActiveInterval(at(10, 0), time.UTC); got != 300*time.Second {
		t.Errorf("ActiveInterval(10:00) = %v, want %v", got, 300*time.Second)
	}
}

func TestActiveInterval_EvaluatedInLocation(t *testing.T) {
	paris := time.FixedZone("CET", 3600)
	spec, err := NewTarget("Morning", "https://example.com/c/1",
		WithHotInterval(10*time.Second),
		WithHotWindow("09:00", "10:00"),
	)
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}

	// 08:30 UTC is 09:30 in a UTC+1 zone
	now := at(8, 30)
	if got := spec.ActiveInterval(now, paris); got != 10*time.Second {
		t.Errorf("ActiveInterval(UTC+1) = %v, want %v", got, 10*time.Second)
	}
	if got := spec.ActiveInterval(now, time.UTC); got != DefaultIntervalNormal {
		t.Errorf("ActiveInterval(UTC) = %v, want %v", got, DefaultIntervalNormal)
	}
}
