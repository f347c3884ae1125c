package entrywatch

import (
	"context"
	"sync"
	"time"
)

// CooldownLedger remembers when an alert last fired per dedup key.
//
// Entries are allowed to be lost (a restart, an evicted key): that risks one
// duplicate alert, never a missed one.
type CooldownLedger interface {
	// Claim records now under key and reports true, unless an alert for key
	// was claimed less than cooldown ago, in which case it reports false.
	// Check and record are atomic.
	Claim(ctx context.Context, key string, now time.Time, cooldown time.Duration) (bool, error)

	// Forget drops the claim for key so the next Claim succeeds.
	Forget(ctx context.Context, key string) error
}

// pruneThreshold is the ledger size above which expired entries are swept.
const pruneThreshold = 256

// MemoryLedger is the default in-process [CooldownLedger].
type MemoryLedger struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewMemoryLedger creates an empty [MemoryLedger].
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{last: make(map[string]time.Time)}
}

func (l *MemoryLedger) Claim(_ context.Context, key string, now time.Time, cooldown time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t, ok := l.last[key]; ok && now.Sub(t) < cooldown {
		return false, nil
	}
	l.last[key] = now

	if len(l.last) > pruneThreshold {
		for k, t := range l.last {
			if now.Sub(t) >= cooldown {
				delete(l.last, k)
			}
		}
	}
	return true, nil
}

func (l *MemoryLedger) Forget(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.last, key)
	l.mu.Unlock()
	return nil
}

// Len returns the number of remembered keys.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.last)
}
