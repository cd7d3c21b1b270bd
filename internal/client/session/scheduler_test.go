package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type refreshCounter struct {
	calls atomic.Int32
	fn    func(ctx context.Context) error
}

func (r *refreshCounter) refresh(ctx context.Context) error {
	r.calls.Add(1)
	if r.fn != nil {
		return r.fn(ctx)
	}
	return nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeClock, *refreshCounter) {
	t.Helper()
	clock := newFakeClock()
	rc := &refreshCounter{}
	s := NewScheduler(clock, rc.refresh, nil)
	t.Cleanup(s.Stop)
	return s, clock, rc
}

func TestLeadTime(t *testing.T) {
	tests := []struct {
		remaining time.Duration
		want      time.Duration
	}{
		{remaining: time.Hour, want: 60 * time.Second},
		{remaining: 61 * time.Second, want: 60 * time.Second},
		{remaining: 60 * time.Second, want: 5 * time.Second},
		{remaining: 30 * time.Second, want: 5 * time.Second},
		{remaining: 0, want: 5 * time.Second},
		{remaining: -time.Minute, want: 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, LeadTime(tt.remaining), "remaining=%s", tt.remaining)
	}
}

func TestScheduler_ArmFiresSixtySecondsBeforeExpiry(t *testing.T) {
	s, clock, rc := newTestScheduler(t)

	s.Arm(t0.Add(time.Hour))

	at, ok := s.Deadline()
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Hour-60*time.Second), at)
	assert.Equal(t, StateArmed, s.State())

	clock.Advance(time.Hour - 61*time.Second)
	assert.Zero(t, rc.calls.Load())

	clock.Advance(time.Second)
	assert.EqualValues(t, 1, rc.calls.Load())
	assert.Equal(t, StateIdle, s.State())
	_, ok = s.Deadline()
	assert.False(t, ok)
}

func TestScheduler_NearExpiryUsesShortLead(t *testing.T) {
	s, clock, rc := newTestScheduler(t)

	s.Arm(t0.Add(30 * time.Second))

	at, ok := s.Deadline()
	require.True(t, ok)
	assert.Equal(t, t0.Add(25*time.Second), at)

	clock.Advance(24 * time.Second)
	assert.Zero(t, rc.calls.Load())
	clock.Advance(time.Second)
	assert.EqualValues(t, 1, rc.calls.Load())
}

func TestScheduler_PastFireTimeFiresImmediately(t *testing.T) {
	s, clock, rc := newTestScheduler(t)

	s.Arm(t0.Add(2 * time.Second))

	at, ok := s.Deadline()
	require.True(t, ok)
	assert.Equal(t, t0, at)

	clock.Advance(0)
	assert.EqualValues(t, 1, rc.calls.Load())
}

func TestScheduler_AlreadyExpiredStillRefreshes(t *testing.T) {
	s, clock, rc := newTestScheduler(t)

	s.Arm(t0.Add(-time.Hour))
	clock.Advance(0)

	assert.EqualValues(t, 1, rc.calls.Load())
}

func TestScheduler_ArmSupersedesPreviousTimer(t *testing.T) {
	s, clock, rc := newTestScheduler(t)

	s.Arm(t0.Add(2 * time.Minute))
	s.Arm(t0.Add(time.Hour))
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(30 * time.Minute)
	assert.Zero(t, rc.calls.Load(), "the superseded timer must not fire")

	clock.AdvanceTo(t0.Add(time.Hour - 60*time.Second))
	assert.EqualValues(t, 1, rc.calls.Load())
}

func TestScheduler_CancelPreventsFire(t *testing.T) {
	s, clock, rc := newTestScheduler(t)

	s.Arm(t0.Add(time.Hour))
	s.Cancel()

	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, clock.Pending())

	clock.Advance(2 * time.Hour)
	assert.Zero(t, rc.calls.Load())
}

func TestScheduler_StaleCallbackIsNoop(t *testing.T) {
	s, clock, rc := newTestScheduler(t)
	clock.leakyStop = true

	s.Arm(t0.Add(2 * time.Minute))
	s.Arm(t0.Add(time.Hour))

	// The first timer's Stop "succeeded" but its callback still runs.
	clock.Advance(5 * time.Minute)
	assert.Zero(t, rc.calls.Load())
	assert.Equal(t, StateArmed, s.State())

	s.Cancel()
	clock.Advance(2 * time.Hour)
	assert.Zero(t, rc.calls.Load())
}

func TestScheduler_ArmDuringRefreshIsQueued(t *testing.T) {
	s, clock, rc := newTestScheduler(t)

	var (
		stateDuring   State
		callsDuring   int32
		pendingDuring int
	)
	rc.fn = func(ctx context.Context) error {
		if rc.calls.Load() == 1 {
			s.Arm(clock.Now())
			stateDuring = s.State()
			callsDuring = rc.calls.Load()
			pendingDuring = clock.Pending()
		}
		return nil
	}

	s.Arm(t0.Add(time.Second))
	clock.Advance(0)

	assert.Equal(t, StateRefreshing, stateDuring)
	assert.EqualValues(t, 1, callsDuring, "no second refresh while one is in flight")
	assert.Zero(t, pendingDuring, "no timer is installed while a refresh is in flight")

	// The queued arm was installed once the first attempt returned and, being
	// due already, ran in the same advance.
	assert.EqualValues(t, 2, rc.calls.Load())
	assert.Equal(t, StateIdle, s.State())
}

func TestScheduler_QueuedArmInstalledAfterRefresh(t *testing.T) {
	s, clock, rc := newTestScheduler(t)
	rc.fn = func(ctx context.Context) error {
		s.Arm(clock.Now().Add(time.Hour))
		return nil
	}

	s.Arm(t0.Add(time.Second))
	clock.Advance(0)

	assert.Equal(t, StateArmed, s.State())
	at, ok := s.Deadline()
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Hour-60*time.Second), at)
}

func TestScheduler_CancelDuringRefreshDropsQueue(t *testing.T) {
	s, clock, rc := newTestScheduler(t)
	rc.fn = func(ctx context.Context) error {
		s.Arm(clock.Now().Add(time.Hour))
		s.Cancel()
		return nil
	}

	s.Arm(t0)
	clock.Advance(0)

	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, clock.Pending())
}

func TestScheduler_StopCancelsAndRefusesArm(t *testing.T) {
	s, clock, rc := newTestScheduler(t)

	s.Arm(t0.Add(time.Hour))
	s.Stop()
	s.Arm(t0.Add(2 * time.Hour))

	assert.Equal(t, StateIdle, s.State())
	clock.Advance(3 * time.Hour)
	assert.Zero(t, rc.calls.Load())
}

func TestScheduler_StopCancelsInFlightContext(t *testing.T) {
	s, clock, rc := newTestScheduler(t)

	var ctxErr error
	rc.fn = func(ctx context.Context) error {
		s.Stop()
		ctxErr = ctx.Err()
		return ctxErr
	}

	s.Arm(t0)
	clock.Advance(0)

	assert.ErrorIs(t, ctxErr, context.Canceled)
}

func TestScheduler_RealClockFires(t *testing.T) {
	done := make(chan struct{}, 1)
	s := NewScheduler(RealClock(), func(ctx context.Context) error {
		done <- struct{}{}
		return nil
	}, nil)
	defer s.Stop()

	// Expiring in one second: the 5s lead puts the fire time in the past.
	s.Arm(time.Now().Add(time.Second))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not fire")
	}
}

func TestScheduler_AtMostOneTimerPending(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		clock := newFakeClock()
		var s *Scheduler
		s = NewScheduler(clock, func(ctx context.Context) error {
			if rapid.Bool().Draw(rt, "rearm_in_refresh") {
				s.Arm(clock.Now().Add(time.Duration(rapid.IntRange(10, 7200).Draw(rt, "rearm_s")) * time.Second))
			}
			return nil
		}, nil)
		defer s.Stop()

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				offset := time.Duration(rapid.IntRange(-120, 7200).Draw(rt, "exp_s")) * time.Second
				s.Arm(clock.Now().Add(offset))
			case 1:
				s.Cancel()
			case 2:
				clock.Advance(time.Duration(rapid.IntRange(0, 3600).Draw(rt, "advance_s")) * time.Second)
			}

			pending := clock.Pending()
			if pending > 1 {
				rt.Fatalf("%d timers pending", pending)
			}
			if (s.State() == StateArmed) != (pending == 1) {
				rt.Fatalf("state %s with %d pending timers", s.State(), pending)
			}
		}
	})
}
