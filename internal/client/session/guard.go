package session

// Decision is what a guarded view should do with the current session.
type Decision int

const (
	// DecisionLoading: the session is not initialized yet; show a placeholder.
	DecisionLoading Decision = iota
	DecisionRender
	DecisionRedirectLogin
	DecisionRedirectHome
)

func (d Decision) String() string {
	switch d {
	case DecisionLoading:
		return "loading"
	case DecisionRender:
		return "render"
	case DecisionRedirectLogin:
		return "redirect_login"
	case DecisionRedirectHome:
		return "redirect_home"
	default:
		return "unknown"
	}
}

// SessionSource is anything that can report the current session.
type SessionSource interface {
	Snapshot() Session
}

// Guard gates views on session state.
type Guard struct {
	src SessionSource
}

func NewGuard(src SessionSource) *Guard {
	return &Guard{src: src}
}

// RequireAuth gates protected views: render when authenticated, otherwise
// send the user to login.
func (g *Guard) RequireAuth() Decision {
	s := g.src.Snapshot()
	switch {
	case !s.IsInitialized:
		return DecisionLoading
	case s.IsAuthenticated:
		return DecisionRender
	default:
		return DecisionRedirectLogin
	}
}

// GuestOnly gates the login and registration views: an authenticated user
// is sent away from them.
func (g *Guard) GuestOnly() Decision {
	s := g.src.Snapshot()
	switch {
	case !s.IsInitialized:
		return DecisionLoading
	case s.IsAuthenticated:
		return DecisionRedirectHome
	default:
		return DecisionRender
	}
}
