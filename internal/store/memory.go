package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// All record access serialises on a single RWMutex; insertion order is kept
// in a separate slice so List is stable. Subscribers receive change events via
// buffered channels (buffer size 100). Sends are non-blocking; a full buffer
// drops the event for that subscriber.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string
	now     func() time.Time

	subscribers map[chan Event]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates an empty [MemoryStore].
//
// now supplies creation timestamps; nil means time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		records:     make(map[string]*Record),
		now:         now,
		subscribers: make(map[chan Event]struct{}),
	}
}

// Add inserts rec under a fresh UUID. Status fields supplied by the caller are
// ignored: a new record always starts at never with unknown slots.
func (m *MemoryStore) Add(rec Record) (Record, error) {
	rec.ID = uuid.NewString()
	rec.CreatedAt = m.now()
	rec.LastStatus = StatusNever
	rec.LastSlots = SlotsUnknown
	rec.LastCheckedAt = nil
	rec.LastError = ""

	m.mu.Lock()
	stored := rec
	m.records[rec.ID] = &stored
	m.order = append(m.order, rec.ID)
	m.mu.Unlock()

	m.notifySubscribers(Event{Type: EventAdded, Record: copyRecord(rec)})
	return copyRecord(rec), nil
}

// Restore inserts a record that already carries an ID, such as one loaded
// from persistence. An empty status is normalised to never.
func (m *MemoryStore) Restore(rec Record) error {
	if rec.LastStatus == "" {
		rec.LastStatus = StatusNever
	}
	if rec.LastStatus == StatusNever {
		rec.LastCheckedAt = nil
		rec.LastChangeAt = nil
	}

	m.mu.Lock()
	if _, exists := m.records[rec.ID]; exists {
		m.mu.Unlock()
		return ErrDuplicateID
	}
	stored := copyRecord(rec)
	m.records[rec.ID] = &stored
	m.order = append(m.order, rec.ID)
	m.mu.Unlock()

	m.notifySubscribers(Event{Type: EventAdded, Record: copyRecord(rec)})
	return nil
}

// Remove deletes the record with the given ID.
func (m *MemoryStore) Remove(id string) bool {
	m.mu.Lock()
	rec, exists := m.records[id]
	if !exists {
		m.mu.Unlock()
		return false
	}
	removed := copyRecord(*rec)
	delete(m.records, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.notifySubscribers(Event{Type: EventRemoved, Record: removed})
	return true
}

// Get returns a copy of the record with the given ID.
func (m *MemoryStore) Get(id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.records[id]
	if !exists {
		return Record{}, ErrNotFound
	}
	return copyRecord(*rec), nil
}

// List returns a snapshot of all records in insertion order.
//
// The returned slice is a copy; modifications do not affect the store.
func (m *MemoryStore) List() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, copyRecord(*m.records[id]))
	}
	return out
}

// RecordPollResult writes a poll outcome into the record.
//
// LastCheckedAt never moves backwards. A successful fetch (empty Error)
// clears LastError. Slots equal to SlotsUnknown keep the previous count.
// LastChangeAt moves to CheckedAt only when the status differs from the
// previous one.
func (m *MemoryStore) RecordPollResult(id string, res PollResult) (Record, Record, error) {
	m.mu.Lock()
	rec, exists := m.records[id]
	if !exists {
		m.mu.Unlock()
		return Record{}, Record{}, ErrNotFound
	}

	prev := copyRecord(*rec)

	if res.Status != rec.LastStatus {
		changed := res.CheckedAt
		rec.LastChangeAt = &changed
	}
	rec.LastStatus = res.Status
	rec.LastError = res.Error
	if res.Slots != SlotsUnknown {
		rec.LastSlots = res.Slots
	}
	if rec.LastCheckedAt == nil || res.CheckedAt.After(*rec.LastCheckedAt) {
		checked := res.CheckedAt
		rec.LastCheckedAt = &checked
	}
	updated := copyRecord(*rec)
	m.mu.Unlock()

	m.notifySubscribers(Event{Type: EventUpdated, Record: updated})
	return prev, copyRecord(updated), nil
}

// Subscribe creates a new subscription and returns its event channel.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent leaks.
func (m *MemoryStore) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the event to every subscriber without blocking.
func (m *MemoryStore) notifySubscribers(ev Event) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			// subscriber is slow, drop the event
		}
	}
}

// copyRecord detaches the pointer field so callers cannot mutate store state.
func copyRecord(r Record) Record {
	if r.LastCheckedAt != nil {
		t := *r.LastCheckedAt
		r.LastCheckedAt = &t
	}
	if r.LastChangeAt != nil {
		t := *r.LastChangeAt
		r.LastChangeAt = &t
	}
	return r
}
