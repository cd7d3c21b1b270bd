package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/freightdesk/internal/client/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC)

/*************
 * Fake clock
 *************/

// fakeClock runs timer callbacks only from Advance, on the caller's goroutine.
// With leakyStop set, Stop reports success but the callback still runs,
// which is the race real timers allow.
type fakeClock struct {
	mu        sync.Mutex
	now       time.Time
	timers    []*fakeTimer
	leakyStop bool
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: t0}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	if !t.c.leakyStop {
		t.stopped = true
	}
	return true
}

// Advance moves time forward and runs every callback that became due,
// including ones scheduled by callbacks.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.fired && !t.stopped && !t.at.After(c.now) {
				due = append(due, t)
			}
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		for _, t := range due {
			t.fired = true
		}
		c.mu.Unlock()

		if len(due) == 0 {
			return
		}
		for _, t := range due {
			t.f()
		}
	}
}

// AdvanceTo moves the clock to at (no-op when at is in the past).
func (c *fakeClock) AdvanceTo(at time.Time) {
	d := at.Sub(c.Now())
	if d < 0 {
		d = 0
	}
	c.Advance(d)
}

// Pending counts timers that are neither stopped nor fired.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

/*************
 * Fake auth API
 *************/

type fakeAPI struct {
	mu sync.Mutex

	loginResp *AuthResponse
	loginErr  error
	lastLogin [2]string

	registerResp *AuthResponse
	registerErr  error
	lastRegister RegisterRequest

	refreshResp      *AuthResponse
	refreshErr       error
	refreshCalls     int
	lastRefreshToken string
	// onRefresh runs inside Refresh, before it returns.
	onRefresh func()
	// refreshFn, when set, replaces refreshResp and refreshErr.
	refreshFn func(refreshToken string) (*AuthResponse, error)
}

func (f *fakeAPI) Login(_ context.Context, identifier, secret string) (*AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLogin = [2]string{identifier, secret}
	return f.loginResp, f.loginErr
}

func (f *fakeAPI) Register(_ context.Context, req RegisterRequest) (*AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRegister = req
	return f.registerResp, f.registerErr
}

func (f *fakeAPI) Refresh(_ context.Context, refreshToken string) (*AuthResponse, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.lastRefreshToken = refreshToken
	hook, fn := f.onRefresh, f.refreshFn
	resp, err := f.refreshResp, f.refreshErr
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if fn != nil {
		return fn(refreshToken)
	}
	return resp, err
}

func (f *fakeAPI) RefreshCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

/*************
 * Storage with failure injection
 *************/

var errDiskFull = errors.New("disk full")

type flakyRepo struct {
	*storage.MemoryRepository
	failGet    bool
	failWrite  bool
	failDelete bool
}

func newFlakyRepo() *flakyRepo {
	return &flakyRepo{MemoryRepository: storage.NewMemoryRepository()}
}

func (r *flakyRepo) Get(ctx context.Context, key string) ([]byte, error) {
	if r.failGet {
		return nil, errDiskFull
	}
	return r.MemoryRepository.Get(ctx, key)
}

func (r *flakyRepo) SetAll(ctx context.Context, values map[string][]byte) error {
	if r.failWrite {
		return errDiskFull
	}
	return r.MemoryRepository.SetAll(ctx, values)
}

func (r *flakyRepo) Apply(ctx context.Context, set map[string][]byte, del ...string) error {
	if r.failWrite || (r.failDelete && len(del) > 0) {
		return errDiskFull
	}
	return r.MemoryRepository.Apply(ctx, set, del...)
}

func (r *flakyRepo) Delete(ctx context.Context, keys ...string) error {
	if r.failDelete {
		return errDiskFull
	}
	return r.MemoryRepository.Delete(ctx, keys...)
}

/*************
 * Tokens
 *************/

func mintToken(t testing.TB, exp time.Time, extra jwt.MapClaims) string {
	t.Helper()
	claims := jwt.MapClaims{"exp": exp.Unix()}
	for k, v := range extra {
		claims[k] = v
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return s
}

func storedValue(t testing.TB, repo storage.Repository, key string) string {
	t.Helper()
	v, err := repo.Get(context.Background(), key)
	require.NoError(t, err)
	return string(v)
}
