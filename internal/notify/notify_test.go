package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/entrywatch"
)

var testAlert = entrywatch.Alert{
	Kind:       entrywatch.AlertContestOpen,
	TargetID:   "7b0f8a4e-2d55-4c1e-9d0e-0c6f3c0f4f11",
	Label:      "Grand Prix",
	URL:        "https://example.com/concours/1",
	Status:     entrywatch.StatusOpen,
	Slots:      -1,
	Transition: entrywatch.TransitionBecameOpen,
}

func TestTitleAndBody(t *testing.T) {
	slot := testAlert
	slot.Kind = entrywatch.AlertSlotAvailable
	slot.Slots = 2

	tests := []struct {
		name      string
		alert     entrywatch.Alert
		wantTitle string
		wantSlots bool
	}{
		{"contest open", testAlert, "Entries open: Grand Prix", false},
		{"slot available", slot, "Slot available: Grand Prix", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Title(tt.alert); got != tt.wantTitle {
				t.Errorf("Title() = %q, want %q", got, tt.wantTitle)
			}
			body := Body(tt.alert)
			if !strings.Contains(body, tt.alert.URL) {
				t.Errorf("Body() = %q, want the url", body)
			}
			if got := strings.Contains(body, "Free slots: 2"); got != tt.wantSlots {
				t.Errorf("Body() slot line present = %v, want %v", got, tt.wantSlots)
			}
		})
	}
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	n := NewLog(slog.New(slog.NewJSONHandler(&buf, nil)))

	if err := n.OpenAlert(context.Background(), testAlert); err != nil {
		t.Fatalf("OpenAlert() error = %v", err)
	}

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if rec["msg"] != "ALERT Entries open: Grand Prix" {
		t.Errorf("msg = %v", rec["msg"])
	}
	if rec["url"] != testAlert.URL || rec["kind"] != "contestOpen" {
		t.Errorf("attrs = %v, want url and kind", rec)
	}
}

func TestWebhook(t *testing.T) {
	var got webhookPayload
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	n := NewWebhook(ts.URL, map[string]string{"Authorization": "Bearer t"}, time.Second)
	if err := n.OpenAlert(context.Background(), testAlert); err != nil {
		t.Fatalf("OpenAlert() error = %v", err)
	}

	if got.Title != "Entries open: Grand Prix" || got.Format != "text" {
		t.Errorf("payload = %+v", got)
	}
	if got.Alert.URL != testAlert.URL || got.Alert.TargetID != testAlert.TargetID {
		t.Errorf("payload alert = %+v, want %+v", got.Alert, testAlert)
	}
	if auth != "Bearer t" {
		t.Errorf("Authorization = %q, want %q", auth, "Bearer t")
	}
}

func TestWebhook_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such service", http.StatusBadGateway)
	}))
	defer ts.Close()

	err := NewWebhook(ts.URL, nil, time.Second).OpenAlert(context.Background(), testAlert)
	if err == nil {
		t.Fatal("OpenAlert() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "no such service") {
		t.Errorf("OpenAlert() error = %v, want status and body", err)
	}
}

func TestWebhook_ContextCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := NewWebhook(ts.URL, nil, 5*time.Second).OpenAlert(ctx, testAlert); err == nil {
		t.Error("OpenAlert() error = nil, want deadline error")
	}
}

func TestNewCommand_Empty(t *testing.T) {
	for _, argv := range [][]string{nil, {""}} {
		if _, err := NewCommand(argv); err == nil {
			t.Errorf("NewCommand(%q) error = nil, want error", argv)
		}
	}
}

func TestCommand_PassesAlertInEnvironment(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	out := filepath.Join(t.TempDir(), "alert.txt")
	n, err := NewCommand([]string{"sh", "-c", `printf '%s|%s|%s' "$ENTRYWATCH_KIND" "$ENTRYWATCH_LABEL" "$ENTRYWATCH_URL" > "$0"`, out})
	if err != nil {
		t.Fatalf("NewCommand() error = %v", err)
	}

	if err := n.OpenAlert(context.Background(), testAlert); err != nil {
		t.Fatalf("OpenAlert() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading command output: %v", err)
	}
	want := "contestOpen|Grand Prix|https://example.com/concours/1"
	if string(data) != want {
		t.Errorf("command saw %q, want %q", data, want)
	}
}

func TestCommand_Failure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	n, _ := NewCommand([]string{"sh", "-c", "echo speaker missing; exit 3"})

	err := n.OpenAlert(context.Background(), testAlert)
	if err == nil || !strings.Contains(err.Error(), "speaker missing") {
		t.Errorf("OpenAlert() error = %v, want command output", err)
	}
}

type countingNotifier struct {
	calls int
	err   error
}

func (c *countingNotifier) OpenAlert(context.Context, entrywatch.Alert) error {
	c.calls++
	return c.err
}

func TestMulti(t *testing.T) {
	errA := errors.New("a failed")
	errC := errors.New("c failed")
	a := &countingNotifier{err: errA}
	b := &countingNotifier{}
	c := &countingNotifier{err: errC}

	err := Multi{a, b, c}.OpenAlert(context.Background(), testAlert)

	if a.calls != 1 || b.calls != 1 || c.calls != 1 {
		t.Errorf("calls = %d/%d/%d, want 1/1/1", a.calls, b.calls, c.calls)
	}
	if !errors.Is(err, errA) || !errors.Is(err, errC) {
		t.Errorf("OpenAlert() error = %v, want both failures", err)
	}
	if err := (Multi{b}).OpenAlert(context.Background(), testAlert); err != nil {
		t.Errorf("OpenAlert() error = %v, want nil", err)
	}
}
