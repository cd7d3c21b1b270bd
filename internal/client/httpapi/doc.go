// Package httpapi is the console's REST client for the freight backend.
//
// Every request goes through a transport that attaches the current bearer
// credential and a fresh X-Request-ID. Responses are normalized so callers
// can match on common.ErrUnauthorized and common.ErrUnavailable, or inspect
// an *APIError for anything else.
package httpapi
