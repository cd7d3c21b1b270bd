// Package cli provides the interactive freight console.
//
// It is the UI layer on top of session.Manager: commands are gated by the
// session guard, a background watcher tracks backend reachability
// (online/offline), and a second watcher sends the user back to login when a
// silent refresh ends the session.
//
// Commands:
//   - help, status, exit | quit
//   - login, register (guests only)
//   - whoami (requires a session; guests are sent to login)
//   - logout
//
// The REPL is started via App.Run(ctx), which blocks until the user exits or
// ctx is cancelled.
package cli
