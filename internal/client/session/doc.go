// Package session owns the console's authentication state.
//
// # Components
//
//  1. Store persists the access/refresh token pair, keeps the outbound
//     credential in sync and re-arms the refresh timer. Writing a token and
//     arming its timer happen in one method so they cannot diverge.
//  2. Scheduler holds at most one pending refresh. A generation counter
//     makes stale timer callbacks no-ops, and only one refresh runs at a time.
//  3. Manager is the facade the UI talks to: Initialize, Login, Register,
//     Logout, Snapshot and Subscribe. All mutations are serialized through it.
//  4. Guard turns a Session snapshot into a routing decision.
//
// # Errors
//
// Token decoding and storage failures never escape Initialize or the silent
// refresh path; they end in the unauthenticated state. Login and Register
// failures are returned to the caller wrapped in common.ErrLoginFailed and
// common.ErrRegisterFailed.
package session
