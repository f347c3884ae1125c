package entrywatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jpalmerr/entrywatch/internal/metrics"
)

const (
	DefaultCooldown        = 30 * time.Second
	DefaultDispatchTimeout = 10 * time.Second
)

// AlertDispatcher turns qualifying transitions into notifier calls.
//
// Two guards sit in front of the notifier. The per-key cooldown ledger
// suppresses a second alert for the same dedup key within the cooldown. The
// in-flight slot, shared by every key, keeps two OpenAlert calls from
// running at the same time; it is released only when the call returns.
type AlertDispatcher struct {
	ledger   CooldownLedger
	notifier Notifier
	cooldown time.Duration
	timeout  time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics

	inflight chan struct{}
}

func newAlertDispatcher(cfg *watcherConfig, m *metrics.Metrics) *AlertDispatcher {
	return &AlertDispatcher{
		ledger:   cfg.ledger,
		notifier: cfg.notifier,
		cooldown: cfg.cooldown,
		timeout:  cfg.dispatchTimeout,
		clock:    cfg.clock,
		logger:   cfg.logger,
		metrics:  m,
		inflight: make(chan struct{}, 1),
	}
}

// MaybeAlert fires an alert for t unless the transition does not qualify or
// key is cooling down. It reports whether the alert fired.
//
// Waiting for the in-flight slot is bounded by the dispatch timeout. When the
// slot cannot be taken in time the cooldown claim is dropped again, so a later
// poll can still alert. Ledger failures fail open. The notifier call itself
// ignores cancellation of ctx.
func (d *AlertDispatcher) MaybeAlert(ctx context.Context, key string, tr Transition, t Target) bool {
	if !tr.Qualifies() {
		return false
	}
	kind := t.Kind.AlertKind(tr)
	now := d.clock.Now()

	claimed, err := d.ledger.Claim(ctx, key, now, d.cooldown)
	if err != nil {
		d.logger.Warn("cooldown ledger unavailable, alerting anyway", "key", key, "error", err)
		claimed = true
	}
	if !claimed {
		d.metrics.IncAlert(string(kind), "suppressed")
		d.logger.Debug("alert suppressed by cooldown", "key", key, "target_id", t.ID, "kind", kind)
		return false
	}

	if !d.acquire(ctx) {
		if err := d.ledger.Forget(context.WithoutCancel(ctx), key); err != nil {
			d.logger.Warn("failed to release cooldown claim", "key", key, "error", err)
		}
		d.metrics.IncAlert(string(kind), "busy")
		d.logger.Warn("alert surface busy, alert dropped", "key", key, "target_id", t.ID, "kind", kind)
		return false
	}
	defer d.release()

	alert := Alert{
		Kind:       kind,
		TargetID:   t.ID,
		Label:      t.Label,
		URL:        t.URL,
		Status:     t.LastStatus,
		Slots:      t.LastSlots,
		Transition: tr,
		FiredAt:    now,
	}

	// The poll context is cancelled when the target is deleted or the engine
	// stops; a claimed alert is still delivered, bounded by the timeout.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if err := d.openAlert(callCtx, alert); err != nil {
		d.metrics.IncAlert(string(kind), "notify_failed")
		d.logger.Error("notifier failed", "target_id", t.ID, "label", t.Label, "kind", kind, "error", err)
	} else {
		d.metrics.IncAlert(string(kind), "fired")
	}

	d.logger.Info("alert fired",
		"target_id", t.ID,
		"label", t.Label,
		"url", t.URL,
		"kind", kind,
		"transition", tr,
		"slots", t.LastSlots,
	)
	return true
}

func (d *AlertDispatcher) acquire(ctx context.Context) bool {
	select {
	case d.inflight <- struct{}{}:
		return true
	default:
	}

	timer := d.clock.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case d.inflight <- struct{}{}:
		return true
	case <-timer.Chan():
		return false
	case <-ctx.Done():
		return false
	}
}

func (d *AlertDispatcher) release() {
	<-d.inflight
}

// openAlert calls the notifier with panic recovery.
func (d *AlertDispatcher) openAlert(ctx context.Context, alert Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			d.logger.Error("notifier panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("notifier panic (correlation_id: %s)", correlationID)
		}
	}()
	return d.notifier.OpenAlert(ctx, alert)
}
