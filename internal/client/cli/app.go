package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/freightdesk/internal/client/session"
	"github.com/dmitrijs2005/freightdesk/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const pingTimeout = 3 * time.Second

// SessionManager is the part of session.Manager the console drives.
type SessionManager interface {
	Snapshot() session.Session
	SchedulerState() (session.State, time.Time)
	Subscribe() (<-chan session.Event, func())
	Login(ctx context.Context, identifier, secret string) error
	Register(ctx context.Context, req session.RegisterRequest) error
	Logout(ctx context.Context) error
}

// Pinger reports whether the backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	session       SessionManager
	guard         *session.Guard
	pinger        Pinger
	log           logging.Logger
	checkInterval time.Duration

	reader *bufio.Reader
	out    io.Writer

	mu   sync.Mutex
	mode Mode
}

func NewApp(sm SessionManager, pinger Pinger, log logging.Logger, checkInterval time.Duration) *App {
	return newApp(sm, pinger, log, checkInterval, os.Stdin, os.Stdout)
}

func newApp(sm SessionManager, pinger Pinger, log logging.Logger, checkInterval time.Duration, in io.Reader, out io.Writer) *App {
	if log == nil {
		log = logging.Nop()
	}
	return &App{
		session:       sm,
		guard:         session.NewGuard(sm),
		pinger:        pinger,
		log:           log.With("component", "cli"),
		checkInterval: checkInterval,
		reader:        bufio.NewReader(in),
		out:           out,
	}
}

func (a *App) println(args ...any) {
	_, _ = fmt.Fprintln(a.out, args...)
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()

	if changed {
		a.println(fmt.Sprintf("Switched to %s mode", mode))
	}
}

func (a *App) isLoggedIn() bool {
	return a.session.Snapshot().IsAuthenticated
}

// Run starts the background watchers and the REPL, and blocks until the user
// exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.println("Welcome to the freight console (type 'help' for commands)")

	go a.StartOnlineStatusWatcher(ctx, a.checkInterval)
	go a.WatchSession(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		runREPL(ctx, a, a.getStatus, a.reader, a.out)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.println()
		a.println("Bye!")
	}
}

// StartOnlineStatusWatcher pings the backend every interval and switches
// between online and offline mode.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	a.checkOnline(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := a.pinger.Ping(pctx)
	cancel()

	if ctx.Err() != nil {
		return
	}
	if err != nil {
		a.log.Debug(ctx, "backend ping failed", "error", err)
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
}

// WatchSession tells the user when a failed silent refresh ended the
// session.
func (a *App) WatchSession(ctx context.Context) {
	events, unsubscribe := a.session.Subscribe()
	defer unsubscribe()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Reason == session.ReasonExpired {
				a.println()
				a.println("Your session has expired. Please log in again.")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) getStatus() string {
	s := a.session.Snapshot()

	who := "guest"
	switch {
	case !s.IsInitialized:
		who = "loading"
	case s.IsAuthenticated:
		who = displayName(s.CurrentUser)
	}

	if mode := a.Mode(); mode != "" {
		return fmt.Sprintf("(%s %s)", who, mode)
	}
	return fmt.Sprintf("(%s)", who)
}

// displayName picks a readable label from a server-owned user object.
func displayName(u session.User) string {
	for _, key := range []string{"email", "username", "name", "id"} {
		if v, ok := u[key]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return "user"
}
