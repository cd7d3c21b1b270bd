// Package common contains shared constants and sentinel errors used across
// freightdesk client components.
package common

// AuthorizationHeaderName is the HTTP header carrying the bearer credential
// on outbound requests.
const AuthorizationHeaderName = "Authorization"

// BearerScheme prefixes the access token in AuthorizationHeaderName.
const BearerScheme = "Bearer"

// RequestIDHeaderName correlates a client request with backend logs.
const RequestIDHeaderName = "X-Request-ID"

// Durable storage keys.
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
	StorageSaltKey  = "storage_salt"
)
