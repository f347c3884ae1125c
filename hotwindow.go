package entrywatch

import (
	"fmt"
	"strings"
	"time"
)

// HotWindow is a daily time-of-day range [From, To) with minute resolution.
//
// When From is later than To the window wraps midnight: 22:00-02:00 covers
// 22:00 to 23:59 and 00:00 to 01:59.
type HotWindow struct {
	From int // minutes after midnight
	To   int
}

// ParseHotWindow parses two "HH:MM" bounds.
//
// Both empty means no window and returns nil. Giving only one bound, an
// unparseable bound, or equal bounds is a validation error.
func ParseHotWindow(from, to string) (*HotWindow, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" && to == "" {
		return nil, nil
	}
	if from == "" || to == "" {
		return nil, invalid("hot_window", "both hot_from and hot_to are required")
	}

	f, err := parseClock(from)
	if err != nil {
		return nil, invalid("hot_from", "%v", err)
	}
	t, err := parseClock(to)
	if err != nil {
		return nil, invalid("hot_to", "%v", err)
	}
	if f == t {
		return nil, invalid("hot_window", "hot_from and hot_to must differ")
	}

	return &HotWindow{From: f, To: t}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether the wall-clock time of t falls inside the window.
// The caller picks the time zone by converting t beforehand.
func (w *HotWindow) Contains(t time.Time) bool {
	if w == nil {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	if w.From < w.To {
		return m >= w.From && m < w.To
	}
	return m >= w.From || m < w.To
}

// FromString returns the start bound formatted as "HH:MM".
func (w *HotWindow) FromString() string {
	if w == nil {
		return ""
	}
	return formatClock(w.From)
}

// ToString returns the end bound formatted as "HH:MM".
func (w *HotWindow) ToString() string {
	if w == nil {
		return ""
	}
	return formatClock(w.To)
}

func (w *HotWindow) String() string {
	if w == nil {
		return ""
	}
	return w.FromString() + "-" + w.ToString()
}

func formatClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
