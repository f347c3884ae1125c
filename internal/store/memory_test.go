package store

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore(nil)
}

func TestNewMemoryStore(t *testing.T) {
	store := newTestStore()
	if store == nil {
		t.Fatal("NewMemoryStore() = nil")
	}

	if len(store.List()) != 0 {
		t.Errorf("List() = %v items, want 0", len(store.List()))
	}
}

func TestMemoryStore_Add(t *testing.T) {
	store := newTestStore()

	rec, err := store.Add(Record{
		Label:             "202512345",
		URL:               "https://example.com/concours/202512345",
		Kind:              "contest",
		IntervalNormalSec: 300,
		IntervalHotSec:    15,
		LastStatus:        "OPEN", // ignored
		LastError:         "stale",
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if rec.ID == "" {
		t.Error("Add() ID is empty")
	}
	if rec.LastStatus != StatusNever {
		t.Errorf("Add() LastStatus = %v, want %v", rec.LastStatus, StatusNever)
	}
	if rec.LastSlots != SlotsUnknown {
		t.Errorf("Add() LastSlots = %v, want %v", rec.LastSlots, SlotsUnknown)
	}
	if rec.LastError != "" {
		t.Errorf("Add() LastError = %q, want empty", rec.LastError)
	}
	if rec.LastCheckedAt != nil {
		t.Errorf("Add() LastCheckedAt = %v, want nil", rec.LastCheckedAt)
	}

	got, err := store.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Label != "202512345" {
		t.Errorf("Get().Label = %v, want %v", got.Label, "202512345")
	}
}

func TestMemoryStore_AddAssignsUniqueIDs(t *testing.T) {
	store := newTestStore()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		rec, _ := store.Add(Record{Label: "x", URL: "https://example.com"})
		if seen[rec.ID] {
			t.Fatalf("Add() reused ID %s", rec.ID)
		}
		seen[rec.ID] = true
	}
}

func TestMemoryStore_ListInsertionOrder(t *testing.T) {
	store := newTestStore()

	labels := []string{"c", "a", "b", "d"}
	for _, l := range labels {
		_, _ = store.Add(Record{Label: l, URL: "https://example.com/" + l})
	}

	list := store.List()
	if len(list) != len(labels) {
		t.Fatalf("List() = %v items, want %v", len(list), len(labels))
	}
	for i, l := range labels {
		if list[i].Label != l {
			t.Errorf("List()[%d].Label = %v, want %v", i, list[i].Label, l)
		}
	}
}

func TestMemoryStore_Remove(t *testing.T) {
	store := newTestStore()

	a, _ := store.Add(Record{Label: "a"})
	b, _ := store.Add(Record{Label: "b"})
	c, _ := store.Add(Record{Label: "c"})

	if !store.Remove(b.ID) {
		t.Fatal("Remove() = false, want true")
	}
	if store.Remove(b.ID) {
		t.Error("Remove() second call = true, want false")
	}

	list := store.List()
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != c.ID {
		t.Errorf("List() after Remove = %+v, want [a c]", list)
	}

	if _, err := store.Get(b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() removed error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_RemoveUnknown(t *testing.T) {
	store := newTestStore()

	if store.Remove("does-not-exist") {
		t.Error("Remove() unknown = true, want false")
	}
}

func TestMemoryStore_RecordPollResult(t *testing.T) {
	store := newTestStore()
	rec, _ := store.Add(Record{Label: "a"})

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	prev, updated, err := store.RecordPollResult(rec.ID, PollResult{
		Status:    "CLOSED",
		Slots:     0,
		CheckedAt: now,
	})
	if err != nil {
		t.Fatalf("RecordPollResult() error = %v", err)
	}

	if prev.LastStatus != StatusNever {
		t.Errorf("prev.LastStatus = %v, want %v", prev.LastStatus, StatusNever)
	}
	if updated.LastStatus != "CLOSED" {
		t.Errorf("updated.LastStatus = %v, want CLOSED", updated.LastStatus)
	}
	if updated.LastSlots != 0 {
		t.Errorf("updated.LastSlots = %v, want 0", updated.LastSlots)
	}
	if updated.LastCheckedAt == nil || !updated.LastCheckedAt.Equal(now) {
		t.Errorf("updated.LastCheckedAt = %v, want %v", updated.LastCheckedAt, now)
	}
}

func TestMemoryStore_RecordPollResultLastChangeAt(t *testing.T) {
	store := newTestStore()
	rec, _ := store.Add(Record{Label: "a"})
	if rec.LastChangeAt != nil {
		t.Fatalf("LastChangeAt after Add = %v, want nil", rec.LastChangeAt)
	}
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	steps := []struct {
		status string
		at     time.Time
		want   time.Time
	}{
		{"CLOSED", t0, t0},
		{"CLOSED", t0.Add(time.Minute), t0},
		{"OPEN", t0.Add(2 * time.Minute), t0.Add(2 * time.Minute)},
		{"OPEN", t0.Add(3 * time.Minute), t0.Add(2 * time.Minute)},
	}
	for i, step := range steps {
		_, updated, err := store.RecordPollResult(rec.ID, PollResult{
			Status: step.status, Slots: SlotsUnknown, CheckedAt: step.at,
		})
		if err != nil {
			t.Fatalf("RecordPollResult() error = %v", err)
		}
		if updated.LastChangeAt == nil || !updated.LastChangeAt.Equal(step.want) {
			t.Errorf("poll %d: LastChangeAt = %v, want %v", i+1, updated.LastChangeAt, step.want)
		}
	}
}

func TestMemoryStore_RecordPollResultErrorLifecycle(t *testing.T) {
	store := newTestStore()
	rec, _ := store.Add(Record{Label: "a"})
	now := time.Now()

	_, updated, _ := store.RecordPollResult(rec.ID, PollResult{
		Status: "ERROR", Slots: SlotsUnknown, CheckedAt: now, Error: "timeout",
	})
	if updated.LastError != "timeout" {
		t.Errorf("LastError = %q, want %q", updated.LastError, "timeout")
	}

	_, updated, _ = store.RecordPollResult(rec.ID, PollResult{
		Status: "CLOSED", Slots: SlotsUnknown, CheckedAt: now.Add(time.Second),
	})
	if updated.LastError != "" {
		t.Errorf("LastError after success = %q, want empty", updated.LastError)
	}
}

func TestMemoryStore_RecordPollResultKeepsSlotsWhenUnknown(t *testing.T) {
	store := newTestStore()
	rec, _ := store.Add(Record{Label: "a"})
	now := time.Now()

	_, _, _ = store.RecordPollResult(rec.ID, PollResult{Status: "FULL", Slots: 0, CheckedAt: now})
	_, updated, _ := store.RecordPollResult(rec.ID, PollResult{
		Status: "ERROR", Slots: SlotsUnknown, CheckedAt: now.Add(time.Second), Error: "boom",
	})

	if updated.LastSlots != 0 {
		t.Errorf("LastSlots = %v, want 0 (kept across unknown)", updated.LastSlots)
	}
}

func TestMemoryStore_RecordPollResultMonotonicCheckedAt(t *testing.T) {
	store := newTestStore()
	rec, _ := store.Add(Record{Label: "a"})

	later := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Minute)

	_, _, _ = store.RecordPollResult(rec.ID, PollResult{Status: "CLOSED", Slots: SlotsUnknown, CheckedAt: later})
	_, updated, _ := store.RecordPollResult(rec.ID, PollResult{Status: "CLOSED", Slots: SlotsUnknown, CheckedAt: earlier})

	if !updated.LastCheckedAt.Equal(later) {
		t.Errorf("LastCheckedAt = %v, want %v (must not move backwards)", updated.LastCheckedAt, later)
	}
}

func TestMemoryStore_RecordPollResultAfterRemoveIsNoop(t *testing.T) {
	store := newTestStore()
	rec, _ := store.Add(Record{Label: "a"})
	store.Remove(rec.ID)

	_, _, err := store.RecordPollResult(rec.ID, PollResult{Status: "OPEN", CheckedAt: time.Now()})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("RecordPollResult() error = %v, want ErrNotFound", err)
	}

	if len(store.List()) != 0 {
		t.Errorf("List() = %v items, want 0 (no resurrection)", len(store.List()))
	}
}

func TestMemoryStore_ReturnedRecordsAreCopies(t *testing.T) {
	store := newTestStore()
	rec, _ := store.Add(Record{Label: "a"})
	_, updated, _ := store.RecordPollResult(rec.ID, PollResult{Status: "OPEN", CheckedAt: time.Now()})

	*updated.LastCheckedAt = time.Time{}

	got, _ := store.Get(rec.ID)
	if got.LastCheckedAt.IsZero() {
		t.Error("mutating returned LastCheckedAt changed store state")
	}
}

func TestMemoryStore_Restore(t *testing.T) {
	store := newTestStore()

	checked := time.Now()
	err := store.Restore(Record{
		ID:            "11111111-1111-1111-1111-111111111111",
		Label:         "restored",
		LastStatus:    "OPEN",
		LastSlots:     3,
		LastCheckedAt: &checked,
	})
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	got, err := store.Get("11111111-1111-1111-1111-111111111111")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.LastStatus != "OPEN" || got.LastSlots != 3 {
		t.Errorf("Get() = %+v, want OPEN with 3 slots", got)
	}

	if err := store.Restore(Record{ID: got.ID}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Restore() duplicate error = %v, want ErrDuplicateID", err)
	}
}

func TestMemoryStore_RestoreEmptyStatusIsNever(t *testing.T) {
	store := newTestStore()

	checked := time.Now()
	_ = store.Restore(Record{ID: "x", Label: "x", LastCheckedAt: &checked})

	got, _ := store.Get("x")
	if got.LastStatus != StatusNever {
		t.Errorf("LastStatus = %v, want %v", got.LastStatus, StatusNever)
	}
	if got.LastCheckedAt != nil {
		t.Errorf("LastCheckedAt = %v, want nil for never", got.LastCheckedAt)
	}
}

func TestMemoryStore_SubscribeEvents(t *testing.T) {
	store := newTestStore()
	ch := store.Subscribe()
	defer store.Unsubscribe(ch)

	rec, _ := store.Add(Record{Label: "a"})
	_, _, _ = store.RecordPollResult(rec.ID, PollResult{Status: "CLOSED", CheckedAt: time.Now()})
	store.Remove(rec.ID)

	want := []EventType{EventAdded, EventUpdated, EventRemoved}
	for i, w := range want {
		select {
		case ev := <-ch:
			if ev.Type != w {
				t.Errorf("event[%d].Type = %v, want %v", i, ev.Type, w)
			}
			if ev.Record.ID != rec.ID {
				t.Errorf("event[%d].Record.ID = %v, want %v", i, ev.Record.ID, rec.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("event[%d] not received", i)
		}
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	store := newTestStore()

	ch := store.Subscribe()
	store.Unsubscribe(ch)

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Unsubscribe() channel should be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Unsubscribe() channel should be closed immediately")
	}

	// second call is a no-op
	store.Unsubscribe(ch)
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	store := newTestStore()
	_ = store.Subscribe() // never read

	rec, _ := store.Add(Record{Label: "a"})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			_, _, _ = store.RecordPollResult(rec.ID, PollResult{Status: "CLOSED", CheckedAt: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("RecordPollResult() blocked on slow subscriber")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := newTestStore()

	var wg sync.WaitGroup
	ids := make(chan string, 100)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				rec, _ := store.Add(Record{Label: "x"})
				ids <- rec.ID
			}
		}()
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = store.List()
			}
		}()
	}

	wg.Wait()
	close(ids)

	var pollers sync.WaitGroup
	for id := range ids {
		pollers.Add(2)
		go func(id string) {
			defer pollers.Done()
			_, _, _ = store.RecordPollResult(id, PollResult{Status: "OPEN", CheckedAt: time.Now()})
		}(id)
		go func(id string) {
			defer pollers.Done()
			store.Remove(id)
		}(id)
	}
	pollers.Wait()

	if n := len(store.List()); n != 0 {
		t.Errorf("List() = %v items after removing all, want 0", n)
	}
}
