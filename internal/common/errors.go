// Package common defines shared constants and sentinel errors used across
// the client layers of freightdesk. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Transport-level errors.
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")

	// Token errors. Both are handled locally and mean "not authenticated".
	ErrMalformedToken = errors.New("malformed token")
	ErrExpiredToken   = errors.New("token expired")

	// Session lifecycle errors.
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrRefreshFailed  = errors.New("token refresh failed")
	ErrLoginFailed    = errors.New("login failed")
	ErrRegisterFailed = errors.New("registration failed")
	ErrSessionClosed  = errors.New("session closed")
)
