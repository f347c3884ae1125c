package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ErrDuplicateJob is returned by [Scheduler.Add] when the ID already has a cycle.
var ErrDuplicateJob = errors.New("job already scheduled")

// ErrStopped is returned by [Scheduler.Add] after the scheduler has stopped.
var ErrStopped = errors.New("scheduler stopped")

// Job is one independently scheduled polling cycle.
//
// Job is the poller-internal representation of a watched target, decoupled
// from the main entrywatch.Target type to avoid circular dependencies.
type Job struct {
	// ID identifies the cycle for [Scheduler.Remove].
	ID string

	// Interval returns the wait between two poll starts, evaluated at the
	// intended start of each poll (hot windows make it time dependent).
	Interval func(now time.Time) time.Duration

	// Poll runs one fetch-extract-record-dispatch pass. Its context is
	// cancelled when the job is removed or the scheduler stops. A non-nil
	// error is systemic and stops every cycle; per-target failures must be
	// absorbed by Poll itself.
	Poll func(ctx context.Context) error
}

type cycle struct {
	job    Job
	cancel context.CancelFunc
}

// Scheduler runs one goroutine and one timer per job.
//
// Each cycle polls immediately, then schedules its next start at the previous
// intended start plus the active interval. When a poll overruns its interval
// the next one fires at once, without stacking missed ticks. A cycle never
// overlaps itself.
//
// All lifecycle methods are safe for concurrent use.
type Scheduler struct {
	clock  clockwork.Clock
	logger *slog.Logger

	mu      sync.Mutex
	cycles  map[string]*cycle
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool
	wg      sync.WaitGroup

	done     chan struct{}
	doneOnce sync.Once
	errOnce  sync.Once
	err      error
}

// NewScheduler creates an idle [Scheduler]. A nil clock means the real clock.
func NewScheduler(clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock:  clock,
		logger: logger,
		cycles: make(map[string]*cycle),
		done:   make(chan struct{}),
	}
}

// Add registers a job. Jobs added before [Scheduler.Start] begin when it is
// called; afterwards they begin immediately.
func (s *Scheduler) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if _, exists := s.cycles[job.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}

	c := &cycle{job: job}
	s.cycles[job.ID] = c
	if s.started {
		s.launch(c)
	}
	return nil
}

// Remove cancels the job's pending timer and any in-flight poll.
// It reports false when the ID is unknown.
func (s *Scheduler) Remove(id string) bool {
	s.mu.Lock()
	c, exists := s.cycles[id]
	if exists {
		delete(s.cycles, id)
	}
	s.mu.Unlock()

	if !exists {
		return false
	}
	if c.cancel != nil {
		c.cancel()
	}
	return true
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cycles)
}

// Start launches every registered cycle.
//
// If ctx is nil, context.Background() is used as the parent context.
// Start is idempotent; if Stop was called before Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, c := range s.cycles {
		s.launch(c)
	}
}

// launch starts the goroutine for c. Caller holds s.mu.
func (s *Scheduler) launch(c *cycle) {
	var ctx context.Context
	ctx, c.cancel = context.WithCancel(s.ctx)
	s.wg.Add(1)
	go s.run(ctx, c.job)
}

// Stop cancels every cycle and waits for their goroutines to exit.
// Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.doneOnce.Do(func() { close(s.done) })
}

// Done is closed once the scheduler has stopped or failed.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Err returns the systemic error that stopped the scheduler, if any.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// fail records the first systemic error and tears every cycle down.
func (s *Scheduler) fail(id string, err error) {
	s.errOnce.Do(func() {
		s.logger.Error("scheduler stopping on systemic failure", "target_id", id, "error", err)

		s.mu.Lock()
		s.err = err
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()

		go func() {
			s.wg.Wait()
			s.doneOnce.Do(func() { close(s.done) })
		}()
	})
}

// run is the per-job cycle.
//
// TIMING SEMANTIC: intended start times advance by the interval active at the
// previous intended start, so poll duration does not accumulate as drift.
func (s *Scheduler) run(ctx context.Context, job Job) {
	defer s.wg.Done()

	start := s.clock.Now()
	for {
		if ctx.Err() != nil {
			return
		}
		interval := job.Interval(start)

		if err := s.safePoll(ctx, job); err != nil {
			if ctx.Err() == nil {
				s.fail(job.ID, err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		next := start.Add(interval)
		wait := next.Sub(s.clock.Now())
		if wait <= 0 {
			// overran the interval: fire now and restart the grid from here
			start = s.clock.Now()
			continue
		}

		timer := s.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
			start = next
		}
	}
}

// safePoll calls job.Poll with panic recovery.
// A panic is logged with a correlation ID and treated as a failed poll of
// that target only; the cycle keeps running.
func (s *Scheduler) safePoll(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("poll panic",
				"correlation_id", correlationID,
				"target_id", job.ID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = nil
		}
	}()
	return job.Poll(ctx)
}
