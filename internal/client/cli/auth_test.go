package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/dmitrijs2005/freightdesk/internal/client/httpapi"
	"github.com/dmitrijs2005/freightdesk/internal/client/session"
	"github.com/dmitrijs2005/freightdesk/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubInputs answers text prompts in order and returns password for the
// password prompt.
func stubInputs(t *testing.T, answers []string, password string) {
	t.Helper()
	origST, origGP := getSimpleText, getPassword
	t.Cleanup(func() {
		getSimpleText = origST
		getPassword = origGP
	})

	i := 0
	getSimpleText = func(_ *bufio.Reader, prompt string, _ io.Writer) (string, error) {
		if i >= len(answers) {
			return "", fmt.Errorf("unexpected prompt %q", prompt)
		}
		i++
		return answers[i-1], nil
	}
	getPassword = func(_ io.Writer) ([]byte, error) { return []byte(password), nil }
}

func TestLogin_Success(t *testing.T) {
	sm := newFakeSession()
	sm.loginUser = session.User{"email": "dispatcher@example.com"}
	app, out := newTestApp(sm, &fakePinger{}, "")
	stubInputs(t, []string{"dispatcher@example.com"}, "secret")

	require.NoError(t, app.Login(context.Background()))

	assert.Equal(t, "dispatcher@example.com", sm.loginID)
	assert.Equal(t, "secret", sm.loginSecret)
	assert.Contains(t, out.String(), "Logged in as dispatcher@example.com.")
}

func TestLogin_ZeroesPasswordBuffer(t *testing.T) {
	sm := newFakeSession()
	app, _ := newTestApp(sm, &fakePinger{}, "")
	stubInputs(t, []string{"dispatcher@example.com"}, "")

	var buf []byte
	getPassword = func(_ io.Writer) ([]byte, error) {
		buf = []byte("secret")
		return buf, nil
	}

	require.NoError(t, app.Login(context.Background()))
	assert.Equal(t, "secret", sm.loginSecret)
	assert.Equal(t, make([]byte, len("secret")), buf)
}

func TestLogin_ErrorPropagates(t *testing.T) {
	sm := newFakeSession()
	sm.loginErr = fmt.Errorf("%w: %w", common.ErrLoginFailed, common.ErrUnauthorized)
	app, _ := newTestApp(sm, &fakePinger{}, "")
	stubInputs(t, []string{"dispatcher@example.com"}, "wrong")

	err := app.Login(context.Background())
	assert.ErrorIs(t, err, common.ErrUnauthorized)
	assert.False(t, app.isLoggedIn())
}

func TestLogin_GuestOnly(t *testing.T) {
	sm := newFakeSession()
	sm.signIn(session.User{"email": "ops@example.com"})
	app, out := newTestApp(sm, &fakePinger{}, "")
	stubInputs(t, nil, "")

	require.NoError(t, app.Login(context.Background()))
	assert.Empty(t, sm.loginID, "no prompt for a signed-in user")
	assert.Contains(t, out.String(), "Already logged in as ops@example.com.")
}

func TestLogin_WhileLoading(t *testing.T) {
	sm := newFakeSession()
	sm.snap = session.Session{}
	app, out := newTestApp(sm, &fakePinger{}, "")
	stubInputs(t, nil, "")

	require.NoError(t, app.Login(context.Background()))
	assert.Contains(t, out.String(), "still loading")
}

func TestRegister_Success(t *testing.T) {
	sm := newFakeSession()
	app, out := newTestApp(sm, &fakePinger{}, "")
	stubInputs(t, []string{"new@example.com", "Ada", "Lovelace"}, "pw")

	require.NoError(t, app.Register(context.Background()))

	require.NotNil(t, sm.registered)
	assert.Equal(t, session.RegisterRequest{
		Email:     "new@example.com",
		Password:  "pw",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}, *sm.registered)
	assert.Contains(t, out.String(), "Account created.")
}

func TestLogout(t *testing.T) {
	sm := newFakeSession()
	sm.signIn(session.User{"id": 1})
	app, out := newTestApp(sm, &fakePinger{}, "")

	require.NoError(t, app.Logout(context.Background()))
	assert.False(t, app.isLoggedIn())
	assert.Contains(t, out.String(), "Logged out.")

	// A second logout is silent.
	before := out.String()
	require.NoError(t, app.Logout(context.Background()))
	assert.Equal(t, 2, sm.logouts)
	assert.Equal(t, before, out.String())
}

func TestLogout_ErrorPropagates(t *testing.T) {
	sm := newFakeSession()
	sm.logoutErr = errors.New("disk full")
	app, _ := newTestApp(sm, &fakePinger{}, "")

	assert.Error(t, app.Logout(context.Background()))
}

func TestWhoAmI_PrintsSortedProfile(t *testing.T) {
	sm := newFakeSession()
	sm.signIn(session.User{"id": float64(7), "email": "ops@example.com"})
	app, out := newTestApp(sm, &fakePinger{}, "")

	require.NoError(t, app.WhoAmI(context.Background()))
	assert.Equal(t, "email: ops@example.com\nid: 7\n", out.String())
}

func TestWhoAmI_GuestIsSentToLogin(t *testing.T) {
	sm := newFakeSession()
	sm.loginUser = session.User{"email": "ops@example.com"}
	app, out := newTestApp(sm, &fakePinger{}, "")
	stubInputs(t, []string{"ops@example.com"}, "secret")

	require.NoError(t, app.WhoAmI(context.Background()))

	assert.Equal(t, "ops@example.com", sm.loginID)
	assert.Contains(t, out.String(), "You need to log in first.")
	assert.Contains(t, out.String(), "email: ops@example.com")
}

func TestStatus(t *testing.T) {
	sm := newFakeSession()
	sm.signIn(session.User{"email": "ops@example.com"})
	sm.state = session.StateArmed
	sm.deadline = time.Date(2026, 5, 4, 9, 29, 0, 0, time.Local)
	app, out := newTestApp(sm, &fakePinger{}, "")
	app.setMode(ModeOnline)

	require.NoError(t, app.Status(context.Background()))

	assert.Contains(t, out.String(), "Connection: online")
	assert.Contains(t, out.String(), "logged in as ops@example.com")
	assert.Contains(t, out.String(), "scheduled at 2026-05-04 09:29:00")
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: fmt.Errorf("%w: %w", common.ErrLoginFailed, common.ErrUnavailable), want: "server unavailable, try again later"},
		{err: fmt.Errorf("%w: %w", common.ErrLoginFailed, common.ErrUnauthorized), want: "invalid credentials"},
		{err: common.ErrSessionClosed, want: "console is shutting down"},
		{err: fmt.Errorf("wrap: %w", &httpapi.APIError{StatusCode: 422, Message: "email already registered"}), want: "email already registered"},
		{err: errors.New("boom"), want: "boom"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, describe(tt.err))
	}
}
