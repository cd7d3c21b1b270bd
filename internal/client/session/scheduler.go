package session

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/freightdesk/internal/logging"
)

// State is the scheduler's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

const (
	// DefaultLeadTime is how long before expiry a refresh normally fires.
	DefaultLeadTime = 60 * time.Second
	// ShortLeadTime is used for tokens with DefaultLeadTime or less to live.
	ShortLeadTime = 5 * time.Second
)

// LeadTime picks how far ahead of expiry to refresh a token that has
// remaining lifetime left.
func LeadTime(remaining time.Duration) time.Duration {
	if remaining <= DefaultLeadTime {
		return ShortLeadTime
	}
	return DefaultLeadTime
}

// RefreshFunc performs one silent refresh attempt. It is never retried.
type RefreshFunc func(ctx context.Context) error

// Scheduler keeps a single pending refresh per session.
//
// Every Arm and Cancel bumps a generation counter; a timer callback carries
// the generation it was created under and does nothing when it no longer
// matches. While a refresh is in flight, Arm only records the requested
// expiry, and the timer for it is installed once the attempt returns.
type Scheduler struct {
	clock   Clock
	refresh RefreshFunc
	log     logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	gen      uint64
	timer    Timer
	deadline time.Time
	inflight bool
	pending  *time.Time
	stopped  bool
}

func NewScheduler(clock Clock, refresh RefreshFunc, log logging.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	if log == nil {
		log = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:   clock,
		refresh: refresh,
		log:     log.With("component", "refresh_scheduler"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Arm schedules a refresh ahead of expiresAt, replacing any earlier schedule.
// A fire time already in the past fires immediately.
func (s *Scheduler) Arm(expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	s.gen++
	s.stopTimerLocked()

	if s.inflight {
		at := expiresAt
		s.pending = &at
		s.log.Debug(s.ctx, "arm queued behind in-flight refresh", "expires_at", expiresAt)
		return
	}

	s.installLocked(expiresAt)
}

// Cancel drops the pending refresh, including one queued behind an
// in-flight attempt. The in-flight attempt itself is not interrupted.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.stopTimerLocked()
	s.pending = nil
}

// Stop cancels everything and refuses further arming. An in-flight refresh
// sees its context cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.gen++
	s.stopTimerLocked()
	s.pending = nil
	s.mu.Unlock()

	s.cancel()
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.inflight:
		return StateRefreshing
	case s.timer != nil:
		return StateArmed
	default:
		return StateIdle
	}
}

// Deadline reports when the armed refresh will fire.
func (s *Scheduler) Deadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer == nil {
		return time.Time{}, false
	}
	return s.deadline, true
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.deadline = time.Time{}
}

func (s *Scheduler) installLocked(expiresAt time.Time) {
	now := s.clock.Now()
	lead := LeadTime(expiresAt.Sub(now))
	fireAt := expiresAt.Add(-lead)

	delay := fireAt.Sub(now)
	if delay < 0 {
		delay = 0
		fireAt = now
	}

	gen := s.gen
	s.deadline = fireAt
	s.timer = s.clock.AfterFunc(delay, func() { s.fire(gen) })

	s.log.Debug(s.ctx, "refresh armed", "expires_at", expiresAt, "lead", lead, "delay", delay)
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.inflight || s.stopped {
		s.mu.Unlock()
		s.log.Debug(s.ctx, "stale refresh timer ignored", "generation", gen)
		return
	}
	s.inflight = true
	s.timer = nil
	s.deadline = time.Time{}
	ctx := s.ctx
	s.mu.Unlock()

	if err := s.refresh(ctx); err != nil {
		s.log.Debug(ctx, "refresh attempt returned error", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.inflight = false
	if s.pending != nil && !s.stopped {
		at := *s.pending
		s.pending = nil
		s.installLocked(at)
	}
}
