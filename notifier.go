package entrywatch

import (
	"context"
	"time"
)

// Alert is the event handed to a [Notifier] when a qualifying transition fires.
type Alert struct {
	Kind       AlertKind  `json:"kind"`
	TargetID   string     `json:"target_id"`
	Label      string     `json:"label"`
	URL        string     `json:"url"`
	Status     Status     `json:"status"`
	Slots      int        `json:"slots"`
	Transition Transition `json:"transition"`
	FiredAt    time.Time  `json:"fired_at"`
}

// Notifier is the external alert surface (sound, window, push, webhook).
//
// The dispatcher never calls OpenAlert twice concurrently, and calls it again
// for the same dedup key only after the cooldown has elapsed. An error is
// logged and counted; the alert still counts as fired.
type Notifier interface {
	OpenAlert(ctx context.Context, alert Alert) error
}

// NotifierFunc adapts a plain function to [Notifier].
type NotifierFunc func(ctx context.Context, alert Alert) error

func (f NotifierFunc) OpenAlert(ctx context.Context, alert Alert) error {
	return f(ctx, alert)
}

type nopNotifier struct{}

func (nopNotifier) OpenAlert(context.Context, Alert) error { return nil }
