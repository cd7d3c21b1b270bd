package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/freightdesk/internal/client/httpapi"
	"github.com/dmitrijs2005/freightdesk/internal/client/session"
	"github.com/dmitrijs2005/freightdesk/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// guestOnly reports whether a login or registration view may be shown.
func (a *App) guestOnly() bool {
	switch a.guard.GuestOnly() {
	case session.DecisionLoading:
		a.println("Session is still loading, try again in a moment.")
		return false
	case session.DecisionRedirectHome:
		a.println("Already logged in as", displayName(a.session.Snapshot().CurrentUser)+".")
		return false
	default:
		return true
	}
}

// requireAuth reports whether a protected view may be shown. Guests are sent
// through the login flow first.
func (a *App) requireAuth(ctx context.Context) (bool, error) {
	switch a.guard.RequireAuth() {
	case session.DecisionRender:
		return true, nil
	case session.DecisionLoading:
		a.println("Session is still loading, try again in a moment.")
		return false, nil
	default:
		a.println("You need to log in first.")
		if err := a.Login(ctx); err != nil {
			return false, err
		}
		return a.isLoggedIn(), nil
	}
}

// Login prompts for credentials and signs in. The terminal read buffer is
// zeroed before returning; the string handed to the session is not.
func (a *App) Login(ctx context.Context) error {
	if !a.guestOnly() {
		return nil
	}

	identifier, err := getSimpleText(a.reader, "Enter email or username", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.session.Login(ctx, identifier, string(password)); err != nil {
		return err
	}

	a.println("Logged in as", displayName(a.session.Snapshot().CurrentUser)+".")
	return nil
}

// Register prompts for the account form, creates the account and signs
// into it. As with Login, only the terminal read buffer is zeroed.
func (a *App) Register(ctx context.Context) error {
	if !a.guestOnly() {
		return nil
	}

	var req session.RegisterRequest
	var err error
	if req.Email, err = getSimpleText(a.reader, "Enter email", a.out); err != nil {
		return err
	}
	if req.FirstName, err = getSimpleText(a.reader, "Enter first name", a.out); err != nil {
		return err
	}
	if req.LastName, err = getSimpleText(a.reader, "Enter last name", a.out); err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)
	req.Password = string(password)

	if err := a.session.Register(ctx, req); err != nil {
		return err
	}

	a.println("Account created. Logged in as", displayName(a.session.Snapshot().CurrentUser)+".")
	return nil
}

// Logout ends the local session. It is safe to call when not logged in.
func (a *App) Logout(ctx context.Context) error {
	wasLoggedIn := a.isLoggedIn()
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	if wasLoggedIn {
		a.println("Logged out.")
	}
	return nil
}

// WhoAmI prints the signed-in user's profile.
func (a *App) WhoAmI(ctx context.Context) error {
	ok, err := a.requireAuth(ctx)
	if err != nil || !ok {
		return err
	}

	user := a.session.Snapshot().CurrentUser
	keys := make([]string, 0, len(user))
	for k := range user {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		a.println(fmt.Sprintf("%s: %v", k, user[k]))
	}
	return nil
}

// Status prints the session and connectivity state.
func (a *App) Status(_ context.Context) error {
	s := a.session.Snapshot()
	state, at := a.session.SchedulerState()

	mode := a.Mode()
	if mode == "" {
		mode = "unknown"
	}

	a.println("Connection:", mode)
	switch {
	case !s.IsInitialized:
		a.println("Session:   loading")
	case s.IsAuthenticated:
		a.println("Session:   logged in as", displayName(s.CurrentUser))
	default:
		a.println("Session:   guest")
	}

	switch state {
	case session.StateArmed:
		a.println("Refresh:  ", "scheduled at", at.Local().Format(time.DateTime))
	default:
		a.println("Refresh:  ", state.String())
	}
	return nil
}

// describe turns a command error into a user-facing message.
func describe(err error) string {
	var apiErr *httpapi.APIError
	switch {
	case errors.Is(err, common.ErrUnavailable):
		return "server unavailable, try again later"
	case errors.Is(err, common.ErrUnauthorized):
		return "invalid credentials"
	case errors.Is(err, common.ErrSessionClosed):
		return "console is shutting down"
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	default:
		return err.Error()
	}
}
