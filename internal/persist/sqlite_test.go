package persist

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/jpalmerr/entrywatch"
)

var (
	_ entrywatch.Persister = (*SQLite)(nil)
	_ Persister            = (*SQLite)(nil)
	_ Persister            = (*Postgres)(nil)
)

func openSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entrywatch.db")
	s, err := NewSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func sampleTargets() []entrywatch.Target {
	checked := time.Date(2026, 3, 14, 9, 0, 15, 0, time.UTC)
	changed := time.Date(2026, 3, 14, 8, 45, 0, 0, time.UTC)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []entrywatch.Target{
		{
			ID:             "b1",
			Label:          "Grand Prix",
			URL:            "https://example.com/concours/1",
			Kind:           entrywatch.KindContest,
			IntervalNormal: 300 * time.Second,
			IntervalHot:    15 * time.Second,
			HotWindow:      &entrywatch.HotWindow{From: 22 * 60, To: 2 * 60},
			LastStatus:     entrywatch.StatusOpen,
			LastSlots:      entrywatch.SlotsUnknown,
			LastCheckedAt:  &checked,
			LastChangeAt:   &changed,
			CreatedAt:      created,
		},
		{
			ID:             "a2",
			Label:          "Epreuve 3",
			URL:            "https://example.com/concours/1?watch_epreuve=3",
			Kind:           entrywatch.KindEvent,
			IntervalNormal: 60 * time.Second,
			IntervalHot:    30 * time.Second,
			LastStatus:     entrywatch.StatusError,
			LastSlots:      4,
			LastCheckedAt:  &checked,
			LastError:      "timeout",
			CreatedAt:      created,
		},
	}
}

func TestSQLite_RoundTrip(t *testing.T) {
	s, _ := openSQLite(t)
	ctx := context.Background()
	want := sampleTargets()

	if err := s.SaveAll(ctx, want); err != nil {
		t.Fatalf("SaveAll() error = %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Load() returned %d targets, want %d", len(got), len(want))
	}

	for i := range want {
		g, w := got[i], want[i]
		if g.ID != w.ID || g.Label != w.Label || g.URL != w.URL || g.Kind != w.Kind {
			t.Errorf("target %d identity = %+v, want %+v", i, g, w)
		}
		if g.IntervalNormal != w.IntervalNormal || g.IntervalHot != w.IntervalHot {
			t.Errorf("target %d intervals = %v/%v, want %v/%v", i, g.IntervalNormal, g.IntervalHot, w.IntervalNormal, w.IntervalHot)
		}
		if g.HotWindow.String() != w.HotWindow.String() {
			t.Errorf("target %d HotWindow = %q, want %q", i, g.HotWindow.String(), w.HotWindow.String())
		}
		if g.LastStatus != w.LastStatus || g.LastSlots != w.LastSlots || g.LastError != w.LastError {
			t.Errorf("target %d state = %s/%d/%q, want %s/%d/%q", i, g.LastStatus, g.LastSlots, g.LastError, w.LastStatus, w.LastSlots, w.LastError)
		}
		if g.LastCheckedAt == nil || !g.LastCheckedAt.Equal(*w.LastCheckedAt) {
			t.Errorf("target %d LastCheckedAt = %v, want %v", i, g.LastCheckedAt, w.LastCheckedAt)
		}
		if (g.LastChangeAt == nil) != (w.LastChangeAt == nil) ||
			(g.LastChangeAt != nil && !g.LastChangeAt.Equal(*w.LastChangeAt)) {
			t.Errorf("target %d LastChangeAt = %v, want %v", i, g.LastChangeAt, w.LastChangeAt)
		}
		if !g.CreatedAt.Equal(w.CreatedAt) {
			t.Errorf("target %d CreatedAt = %v, want %v", i, g.CreatedAt, w.CreatedAt)
		}
	}
}

func TestSQLite_SaveAllReplaces(t *testing.T) {
	s, _ := openSQLite(t)
	ctx := context.Background()
	targets := sampleTargets()

	if err := s.SaveAll(ctx, targets); err != nil {
		t.Fatalf("SaveAll() error = %v", err)
	}
	if err := s.SaveAll(ctx, targets[1:]); err != nil {
		t.Fatalf("SaveAll() error = %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "a2" {
		t.Errorf("Load() = %+v, want only a2", got)
	}

	if err := s.SaveAll(ctx, nil); err != nil {
		t.Fatalf("SaveAll(nil) error = %v", err)
	}
	got, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Load() returned %d targets, want 0", len(got))
	}
}

func TestSQLite_MissingStateRestoresAsNever(t *testing.T) {
	s, _ := openSQLite(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO targets (id, position, label, url, interval_normal_sec, interval_hot_sec, created_at)
VALUES ('c3', 0, 'Derby', 'https://example.com/derby', 300, 45, '2026-03-01T12:00:00Z')`)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Load() returned %d targets, want 1", len(got))
	}
	tg := got[0]
	if tg.LastStatus != entrywatch.StatusNever {
		t.Errorf("LastStatus = %q, want %q", tg.LastStatus, entrywatch.StatusNever)
	}
	if tg.LastSlots != entrywatch.SlotsUnknown {
		t.Errorf("LastSlots = %d, want %d", tg.LastSlots, entrywatch.SlotsUnknown)
	}
	if tg.LastCheckedAt != nil || tg.LastError != "" || tg.HotWindow != nil {
		t.Errorf("target = %+v, want no checked time, error or window", tg)
	}
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	s, path := openSQLite(t)
	ctx := context.Background()

	if err := s.SaveAll(ctx, sampleTargets()); err != nil {
		t.Fatalf("SaveAll() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(ctx, "sqlite://"+path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "b1" || got[1].ID != "a2" {
		t.Errorf("Load() after reopen = %+v, want b1, a2 in order", got)
	}
}

func historyAt(id string, minute int, status entrywatch.Status) entrywatch.HistoryEntry {
	return entrywatch.HistoryEntry{
		TargetID: id,
		At:       time.Date(2026, 3, 14, 9, minute, 0, 0, time.UTC),
		Status:   status,
		Slots:    entrywatch.SlotsUnknown,
	}
}

func TestSQLite_History(t *testing.T) {
	s, _ := openSQLite(t)
	ctx := context.Background()
	if err := s.SaveAll(ctx, sampleTargets()); err != nil {
		t.Fatalf("SaveAll() error = %v", err)
	}

	failed := historyAt("b1", 2, entrywatch.StatusError)
	failed.Error = "timeout"
	entries := []entrywatch.HistoryEntry{
		historyAt("b1", 0, entrywatch.StatusClosed),
		historyAt("a2", 0, entrywatch.StatusFull),
		historyAt("b1", 1, entrywatch.StatusOpen),
		failed,
	}
	if err := s.AppendHistory(ctx, entries); err != nil {
		t.Fatalf("AppendHistory() error = %v", err)
	}

	tests := []struct {
		name   string
		id     string
		limit  int
		status []entrywatch.Status
	}{
		{"newest first", "b1", 10, []entrywatch.Status{entrywatch.StatusError, entrywatch.StatusOpen, entrywatch.StatusClosed}},
		{"limited", "b1", 2, []entrywatch.Status{entrywatch.StatusError, entrywatch.StatusOpen}},
		{"other target", "a2", 10, []entrywatch.Status{entrywatch.StatusFull}},
		{"unknown target", "zz", 10, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.History(ctx, tt.id, tt.limit)
			if err != nil {
				t.Fatalf("History() error = %v", err)
			}
			if got == nil {
				t.Fatal("History() = nil, want non-nil slice")
			}
			if len(got) != len(tt.status) {
				t.Fatalf("len(History()) = %d, want %d", len(got), len(tt.status))
			}
			for i, want := range tt.status {
				if got[i].Status != want || got[i].TargetID != tt.id {
					t.Errorf("History()[%d] = %+v, want status %s", i, got[i], want)
				}
			}
		})
	}

	got, _ := s.History(ctx, "b1", 1)
	if got[0].Error != "timeout" || !got[0].At.Equal(failed.At) {
		t.Errorf("History()[0] = %+v, want %+v", got[0], failed)
	}
}

func TestSQLite_SaveAllPrunesHistory(t *testing.T) {
	s, _ := openSQLite(t)
	ctx := context.Background()
	targets := sampleTargets()
	if err := s.SaveAll(ctx, targets); err != nil {
		t.Fatalf("SaveAll() error = %v", err)
	}
	if err := s.AppendHistory(ctx, []entrywatch.HistoryEntry{
		historyAt("b1", 0, entrywatch.StatusClosed),
		historyAt("a2", 0, entrywatch.StatusFull),
	}); err != nil {
		t.Fatalf("AppendHistory() error = %v", err)
	}

	if err := s.SaveAll(ctx, targets[1:]); err != nil {
		t.Fatalf("SaveAll() error = %v", err)
	}
	if got, _ := s.History(ctx, "b1", 10); len(got) != 0 {
		t.Errorf("History(b1) after removal = %+v, want empty", got)
	}
	if got, _ := s.History(ctx, "a2", 10); len(got) != 1 {
		t.Errorf("len(History(a2)) = %d, want 1", len(got))
	}
}

func TestSQLite_MigratesOldSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	_, err = db.Exec(`
CREATE TABLE targets (
	id TEXT PRIMARY KEY, position INTEGER NOT NULL, label TEXT NOT NULL, url TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT '', interval_normal_sec INTEGER NOT NULL, interval_hot_sec INTEGER NOT NULL,
	hot_from TEXT NOT NULL DEFAULT '', hot_to TEXT NOT NULL DEFAULT '',
	last_status TEXT, last_slots INTEGER, last_checked_at TEXT, last_error TEXT, created_at TEXT NOT NULL
);
INSERT INTO targets (id, position, label, url, interval_normal_sec, interval_hot_sec, last_status, created_at)
VALUES ('c3', 0, 'Derby', 'https://example.com/derby', 300, 45, 'CLOSED', '2026-03-01T12:00:00Z');`)
	db.Close()
	if err != nil {
		t.Fatalf("creating old schema: %v", err)
	}

	s, err := NewSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	defer s.Close()

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 1 || got[0].LastStatus != entrywatch.StatusClosed || got[0].LastChangeAt != nil {
		t.Errorf("Load() = %+v, want c3 CLOSED without LastChangeAt", got)
	}
}

func TestOpen_EmptyDSN(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Error("Open(\"\") error = nil, want error")
	}
}
