package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when an operation names a target ID the store does
// not hold (never added, or already removed).
var ErrNotFound = errors.New("target not found")

// ErrDuplicateID is returned by Restore when the ID is already live.
var ErrDuplicateID = errors.New("duplicate target id")

// SlotsUnknown marks a record whose free-slot count has never been observed.
const SlotsUnknown = -1

// StatusNever is the status of a record that has not completed a poll.
const StatusNever = "never"

// Record is the storage representation of a watched target.
//
// Record is decoupled from the public entrywatch.Target type so the store can
// evolve independently; statuses are kept as plain strings. It is optimised
// for JSON serialisation (used by the persistence layer and SSE events).
type Record struct {
	// ID is the opaque unique identifier assigned by [MemoryStore.Add].
	ID string `json:"id"`

	// Label is the human-readable name, also the default alert dedup key.
	Label string `json:"label"`

	// URL is the absolute source URL polled for this target.
	URL string `json:"url"`

	// Kind selects the extractor family ("contest" or "event").
	Kind string `json:"kind"`

	// IntervalNormalSec and IntervalHotSec are the polling periods in seconds.
	IntervalNormalSec int `json:"interval_normal_sec"`
	IntervalHotSec    int `json:"interval_hot_sec"`

	// HotFrom and HotTo are "HH:MM" bounds of the hot window, empty when unset.
	HotFrom string `json:"hot_from,omitempty"`
	HotTo   string `json:"hot_to,omitempty"`

	// LastStatus is one of never, OPEN, CLOSED, FULL, ERROR, UNKNOWN.
	LastStatus string `json:"last_status"`

	// LastSlots is the last observed free-slot count, or SlotsUnknown.
	LastSlots int `json:"last_slots"`

	// LastCheckedAt is the completion time of the most recent poll attempt.
	LastCheckedAt *time.Time `json:"last_checked_at"`

	// LastChangeAt is when a poll last recorded a status different from the
	// one before it; nil until the first poll.
	LastChangeAt *time.Time `json:"last_change_at"`

	// LastError holds the most recent failure, empty after a successful fetch.
	LastError string `json:"last_error,omitempty"`

	// CreatedAt is when the record entered the store.
	CreatedAt time.Time `json:"created_at"`
}

// PollResult is the outcome of one poll attempt, as written by the engine.
type PollResult struct {
	Status    string
	Slots     int // SlotsUnknown keeps the previous count
	CheckedAt time.Time
	Error     string
}

// EventType classifies a store mutation.
type EventType string

const (
	EventAdded   EventType = "added"
	EventUpdated EventType = "updated"
	EventRemoved EventType = "removed"
)

// Event is published to subscribers after every successful mutation.
type Event struct {
	Type   EventType `json:"type"`
	Record Record    `json:"target"`
}

// Store defines the authoritative set of tracked targets.
//
// Implementations must be safe for concurrent access, and every operation must
// be atomic with respect to the others: a List never observes a record
// mid-update.
type Store interface {
	// Add inserts a new record, assigning ID, CreatedAt and the never status.
	Add(rec Record) (Record, error)

	// Restore re-inserts a previously persisted record keeping its ID.
	Restore(rec Record) error

	// Remove deletes a record. It reports false when the ID is unknown.
	Remove(id string) bool

	// Get returns a copy of one record, or ErrNotFound.
	Get(id string) (Record, error)

	// List returns copies of all records in insertion order.
	List() []Record

	// RecordPollResult applies a poll outcome and returns the record as it
	// was before and after the write. Unknown IDs yield ErrNotFound and no
	// mutation, so a straggling poll cannot resurrect a removed target.
	RecordPollResult(id string, res PollResult) (prev, updated Record, err error)

	// Subscribe returns a buffered channel of change events.
	// Slow consumers miss events rather than block the store.
	Subscribe() <-chan Event

	// Unsubscribe removes a subscription and closes its channel.
	Unsubscribe(ch <-chan Event)
}
