// Package persist stores watched targets and their last-known state so a
// restarted engine resumes where it stopped.
//
// Both backends implement entrywatch.Persister with snapshot semantics:
// SaveAll replaces the stored set in one transaction, Load returns it in
// insertion order. State columns are nullable; a row without them restores
// as never polled.
//
// Both also implement entrywatch.HistoryRecorder: every poll result is
// appended to a per-target history that SaveAll prunes with its target.
package persist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jpalmerr/entrywatch"
)

// Persister is an entrywatch.Persister that owns a database connection.
type Persister interface {
	entrywatch.Persister
	entrywatch.HistoryRecorder
	Close() error
}

// Open selects a backend from dsn: postgres:// and postgresql:// URLs use
// PostgreSQL, sqlite:// URLs and plain file paths use SQLite.
func Open(ctx context.Context, dsn string) (Persister, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgres(ctx, dsn)
	case strings.HasPrefix(dsn, "sqlite://"):
		return NewSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	case dsn == "":
		return nil, fmt.Errorf("empty database dsn")
	default:
		return NewSQLite(ctx, dsn)
	}
}

// row is the column form of a target shared by both backends.
type row struct {
	ID                string
	Position          int
	Label             string
	URL               string
	Kind              string
	IntervalNormalSec int
	IntervalHotSec    int
	HotFrom           string
	HotTo             string
	LastStatus        *string
	LastSlots         *int
	LastCheckedAt     *time.Time
	LastError         *string
	LastChangeAt      *time.Time
	CreatedAt         time.Time
}

func toRow(t entrywatch.Target, pos int) row {
	status := string(t.LastStatus)
	slots := t.LastSlots
	r := row{
		ID:                t.ID,
		Position:          pos,
		Label:             t.Label,
		URL:               t.URL,
		Kind:              string(t.Kind),
		IntervalNormalSec: int(t.IntervalNormal / time.Second),
		IntervalHotSec:    int(t.IntervalHot / time.Second),
		HotFrom:           t.HotWindow.FromString(),
		HotTo:             t.HotWindow.ToString(),
		LastStatus:        &status,
		LastSlots:         &slots,
		LastCheckedAt:     t.LastCheckedAt,
		LastChangeAt:      t.LastChangeAt,
		CreatedAt:         t.CreatedAt.UTC(),
	}
	if t.LastError != "" {
		r.LastError = &t.LastError
	}
	return r
}

func (r row) target() entrywatch.Target {
	t := entrywatch.Target{
		ID:             r.ID,
		Label:          r.Label,
		URL:            r.URL,
		Kind:           entrywatch.Kind(r.Kind),
		IntervalNormal: time.Duration(r.IntervalNormalSec) * time.Second,
		IntervalHot:    time.Duration(r.IntervalHotSec) * time.Second,
		LastStatus:     entrywatch.StatusNever,
		LastSlots:      entrywatch.SlotsUnknown,
		CreatedAt:      r.CreatedAt,
	}
	// an unparseable window is dropped; the engine revalidates on restore
	t.HotWindow, _ = entrywatch.ParseHotWindow(r.HotFrom, r.HotTo)

	if r.LastStatus != nil && *r.LastStatus != "" {
		t.LastStatus = entrywatch.Status(*r.LastStatus)
	}
	if r.LastSlots != nil {
		t.LastSlots = *r.LastSlots
	}
	if r.LastCheckedAt != nil {
		checked := r.LastCheckedAt.UTC()
		t.LastCheckedAt = &checked
	}
	if r.LastError != nil {
		t.LastError = *r.LastError
	}
	if r.LastChangeAt != nil {
		changed := r.LastChangeAt.UTC()
		t.LastChangeAt = &changed
	}
	return t
}
