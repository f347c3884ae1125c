package entrywatch

import (
	"context"
	"time"
)

// Persister is the storage boundary for targets and their last-known state.
//
// The engine never assumes durability: a target missing its state columns
// restores as never, and the engine works with no persister at all.
type Persister interface {
	// Load returns every saved target in insertion order.
	Load(ctx context.Context) ([]Target, error)

	// SaveAll replaces the saved set with targets.
	SaveAll(ctx context.Context, targets []Target) error
}

// HistoryEntry is one recorded poll outcome of a target.
type HistoryEntry struct {
	TargetID string
	At       time.Time
	Status   Status
	Slots    int
	Error    string
}

// HistoryRecorder is implemented by a [Persister] that also keeps a per-poll
// status history. The engine appends entries with every flush, so history is
// as current as the last snapshot. Entries of deleted targets may be pruned.
type HistoryRecorder interface {
	// AppendHistory stores entries in the order given.
	AppendHistory(ctx context.Context, entries []HistoryEntry) error

	// History returns up to limit entries of one target, newest first.
	History(ctx context.Context, targetID string, limit int) ([]HistoryEntry, error)
}
