package server

import (
	"context"
	"sync"

	"github.com/jpalmerr/entrywatch"
)

const feedBuffer = 16

// AlertFeed is a [entrywatch.Notifier] that relays fired alerts to every
// connected dashboard over SSE.
//
// OpenAlert never blocks: a dashboard that is not reading misses the alert.
type AlertFeed struct {
	mu          sync.Mutex
	subscribers map[chan entrywatch.Alert]struct{}
}

// NewAlertFeed creates an [AlertFeed] with no subscribers.
func NewAlertFeed() *AlertFeed {
	return &AlertFeed{subscribers: make(map[chan entrywatch.Alert]struct{})}
}

// OpenAlert broadcasts alert to every subscriber.
func (f *AlertFeed) OpenAlert(_ context.Context, alert entrywatch.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		select {
		case ch <- alert:
		default:
		}
	}
	return nil
}

// Subscribe returns a buffered channel of alerts.
func (f *AlertFeed) Subscribe() <-chan entrywatch.Alert {
	ch := make(chan entrywatch.Alert, feedBuffer)
	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (f *AlertFeed) Unsubscribe(ch <-chan entrywatch.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subscribers {
		if sub == ch {
			delete(f.subscribers, sub)
			close(sub)
			return
		}
	}
}
