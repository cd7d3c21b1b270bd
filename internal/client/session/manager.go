package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/dmitrijs2005/freightdesk/internal/client/metrics"
	"github.com/dmitrijs2005/freightdesk/internal/client/storage"
	"github.com/dmitrijs2005/freightdesk/internal/client/token"
	"github.com/dmitrijs2005/freightdesk/internal/common"
	"github.com/dmitrijs2005/freightdesk/internal/logging"
)

// User is the server-owned description of the signed-in account.
type User map[string]any

// Session is the state the UI renders from.
type Session struct {
	IsInitialized   bool
	IsAuthenticated bool
	CurrentUser     User
}

// AuthResponse is what the auth endpoints return. RefreshToken and User
// may be empty.
type AuthResponse struct {
	AccessToken  string
	RefreshToken string
	User         User
}

// RegisterRequest carries the account-creation form.
type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// AuthAPI is the backend the Manager authenticates against.
type AuthAPI interface {
	Login(ctx context.Context, identifier, secret string) (*AuthResponse, error)
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error)
}

// Reason explains why an Event was emitted.
type Reason string

const (
	ReasonInitialized Reason = "initialized"
	ReasonLoggedIn    Reason = "logged_in"
	ReasonRegistered  Reason = "registered"
	ReasonLoggedOut   Reason = "logged_out"
	ReasonRefreshed   Reason = "refreshed"
	// ReasonExpired means the session was ended by a failed silent refresh;
	// the UI is expected to send the user back to login.
	ReasonExpired Reason = "expired"
)

type Event struct {
	Reason  Reason
	Session Session
}

// Options tune a Manager. Zero values pick sensible defaults.
type Options struct {
	Clock          Clock
	Logger         logging.Logger
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
}

const defaultRequestTimeout = 15 * time.Second

const subscriberBuffer = 16

// Manager is the session facade shared by the UI, the route guard and the
// HTTP client. It is safe for concurrent use.
type Manager struct {
	api     AuthAPI
	codec   *token.Codec
	store   *Store
	sched   *Scheduler
	log     logging.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	initOnce sync.Once

	mu      sync.Mutex
	session Session
	// epoch changes on every login, register, logout and invalidation so a
	// refresh that raced one of them can tell its result is stale.
	epoch  uint64
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewManager(repo storage.Repository, api AuthAPI, creds *Credentials, opts Options) *Manager {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	m := &Manager{
		api:     api,
		codec:   token.NewCodec(clock.Now),
		log:     log.With("component", "session"),
		metrics: opts.Metrics,
		timeout: timeout,
		subs:    make(map[int]chan Event),
	}
	m.sched = NewScheduler(clock, m.refresh, log)
	m.store = NewStore(repo, m.codec, creds, m.sched)
	return m
}

// Snapshot returns a copy of the current session.
func (m *Manager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// SchedulerState exposes the refresh timer state for status displays.
func (m *Manager) SchedulerState() (State, time.Time) {
	at, _ := m.sched.Deadline()
	return m.sched.State(), at
}

// Subscribe delivers an Event after every session transition. Slow
// subscribers miss events rather than block the session; Snapshot is always
// current. The returned func unsubscribes and closes the channel.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if m.closed {
		close(ch)
		return ch, func() {}
	}

	id := m.nextID
	m.nextID++
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(c)
			}
		})
	}
}

// Initialize restores a stored session. It runs once; later calls are
// no-ops. Whatever goes wrong, the session ends up initialized, and
// authenticated only if a valid access token was found and installed.
func (m *Manager) Initialize(ctx context.Context) {
	m.initOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		user, err := m.restoreLocked(ctx)
		if err != nil {
			m.log.Info(ctx, "no usable stored session", "event", "initialize", "reason", err)
			m.store.Reset()
			user = nil
		}

		m.session = Session{IsInitialized: true, IsAuthenticated: user != nil, CurrentUser: user}
		m.metrics.SetAuthenticated(user != nil)
		m.notifyLocked(ReasonInitialized)
	})
}

func (m *Manager) restoreLocked(ctx context.Context) (user User, err error) {
	defer func() {
		if p := recover(); p != nil {
			user, err = nil, fmt.Errorf("restore panicked: %v", p)
		}
	}()

	tokens, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, errors.New("no stored access token")
	}
	if err := m.codec.Validate(tokens.AccessToken); err != nil {
		return nil, err
	}

	claims, err := m.store.Persist(ctx, tokens.AccessToken, "")
	if err != nil {
		return nil, err
	}
	return User(claims.Subject), nil
}

// Login authenticates with the backend. On failure the session is left
// exactly as it was and the error wraps common.ErrLoginFailed.
func (m *Manager) Login(ctx context.Context, identifier, secret string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	resp, err := m.api.Login(ctx, identifier, secret)
	if err == nil {
		err = m.install(ctx, resp, ReasonLoggedIn)
	}
	m.metrics.ObserveLogin(err)
	if err != nil {
		m.log.Warn(ctx, "login failed", "event", "login", "identifier", identifier, "error", err)
		return fmt.Errorf("%w: %w", common.ErrLoginFailed, err)
	}

	m.log.Info(ctx, "logged in", "event", "login", "identifier", identifier)
	return nil
}

// Register creates an account and signs into it.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	resp, err := m.api.Register(ctx, req)
	if err == nil {
		err = m.install(ctx, resp, ReasonRegistered)
	}
	m.metrics.ObserveRegistration(err)
	if err != nil {
		m.log.Warn(ctx, "registration failed", "event", "register", "email", req.Email, "error", err)
		return fmt.Errorf("%w: %w", common.ErrRegisterFailed, err)
	}

	m.log.Info(ctx, "registered", "event", "register", "email", req.Email)
	return nil
}

func (m *Manager) install(ctx context.Context, resp *AuthResponse, reason Reason) error {
	if resp == nil || resp.AccessToken == "" {
		return errors.New("response carries no access token")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return common.ErrSessionClosed
	}

	claims, err := m.store.Replace(ctx, resp.AccessToken, resp.RefreshToken)
	if err != nil {
		return err
	}

	user := resp.User
	if user == nil {
		user = User(claims.Subject)
	}

	m.epoch++
	m.session.IsAuthenticated = true
	m.session.CurrentUser = user
	m.metrics.SetAuthenticated(true)
	m.notifyLocked(reason)
	return nil
}

// Logout ends the session locally without contacting the server. The
// session is always unauthenticated afterwards; a storage error is still
// returned so the caller can report it.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epoch++
	err := m.store.Clear(ctx)
	if err != nil {
		m.log.Error(ctx, "failed to clear stored tokens", "event", "logout", "error", err)
	}

	wasAuthenticated := m.session.IsAuthenticated
	m.session.IsAuthenticated = false
	m.session.CurrentUser = nil
	m.metrics.SetAuthenticated(false)

	if wasAuthenticated {
		m.metrics.ObserveLogout()
		m.log.Info(ctx, "logged out", "event", "logout")
		m.notifyLocked(ReasonLoggedOut)
	}
	return err
}

// refresh is the scheduler callback: one attempt, no retry.
func (m *Manager) refresh(ctx context.Context) error {
	m.mu.Lock()
	epoch := m.epoch
	tokens, err := m.store.Load(ctx)
	m.mu.Unlock()

	if err != nil {
		return m.invalidate(ctx, epoch, err)
	}
	if tokens == nil || tokens.RefreshToken == "" {
		return m.invalidate(ctx, epoch, common.ErrNoRefreshToken)
	}

	rctx, cancel := context.WithTimeout(ctx, m.timeout)
	resp, err := m.api.Refresh(rctx, tokens.RefreshToken)
	cancel()
	if ctx.Err() != nil {
		// Shutting down: keep the stored session for the next run.
		return ctx.Err()
	}
	if err == nil && (resp == nil || resp.AccessToken == "") {
		err = errors.New("refresh response carries no access token")
	}
	if err != nil {
		return m.invalidate(ctx, epoch, err)
	}

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.log.Debug(ctx, "discarding refresh result superseded by a newer session", "event", "refresh")
		return nil
	}
	_, err = m.store.Persist(context.WithoutCancel(ctx), resp.AccessToken, resp.RefreshToken)
	if err == nil {
		m.notifyLocked(ReasonRefreshed)
	}
	m.mu.Unlock()

	if err != nil {
		return m.invalidate(ctx, epoch, err)
	}

	m.metrics.ObserveRefresh(nil)
	m.log.Info(ctx, "access token refreshed", "event", "refresh", "rotated", resp.RefreshToken != "")
	return nil
}

// invalidate ends the session after a failed refresh, unless a login,
// register or logout already replaced the session the refresh belonged to.
func (m *Manager) invalidate(ctx context.Context, epoch uint64, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		m.log.Debug(ctx, "ignoring refresh failure for a superseded session", "event", "refresh", "error", cause)
		return nil
	}
	m.epoch++

	if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
		m.log.Error(ctx, "failed to clear stored tokens", "event", "refresh", "error", err)
	}

	m.session.IsAuthenticated = false
	m.session.CurrentUser = nil
	m.metrics.ObserveRefresh(cause)
	m.metrics.ObserveInvalidation(invalidationReason(cause))
	m.metrics.SetAuthenticated(false)

	m.log.Warn(ctx, "session expired", "event", "refresh", "reason", cause)
	m.notifyLocked(ReasonExpired)

	return fmt.Errorf("%w: %w", common.ErrRefreshFailed, cause)
}

func invalidationReason(cause error) string {
	if errors.Is(cause, common.ErrNoRefreshToken) {
		return "no_refresh_token"
	}
	return "refresh_failed"
}

// Close stops the refresh timer and closes all subscriptions. The stored
// tokens are kept so the next process can restore the session.
func (m *Manager) Close() {
	m.sched.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

func (m *Manager) checkOpen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return common.ErrSessionClosed
	}
	return nil
}

func (m *Manager) snapshotLocked() Session {
	s := m.session
	s.CurrentUser = maps.Clone(m.session.CurrentUser)
	return s
}

func (m *Manager) notifyLocked(reason Reason) {
	ev := Event{Reason: reason, Session: m.snapshotLocked()}
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.log.Warn(context.Background(), "session subscriber is full, event dropped", "reason", reason)
		}
	}
}
