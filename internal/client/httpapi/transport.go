package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/freightdesk/internal/common"
	"github.com/google/uuid"
)

// CredentialSource supplies the Authorization header value, or "" when there
// is no session. session.Credentials implements it.
type CredentialSource interface {
	AuthorizationHeader() string
}

// authTransport is the outbound interceptor.
type authTransport struct {
	base      http.RoundTripper
	creds     CredentialSource
	requestID func() string
}

func newAuthTransport(base http.RoundTripper, creds CredentialSource) *authTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &authTransport{base: base, creds: creds, requestID: uuid.NewString}
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())

	if r.Header.Get(common.AuthorizationHeaderName) == "" && t.creds != nil {
		if h := t.creds.AuthorizationHeader(); h != "" {
			r.Header.Set(common.AuthorizationHeaderName, h)
		}
	}
	if r.Header.Get(common.RequestIDHeaderName) == "" {
		r.Header.Set(common.RequestIDHeaderName, t.requestID())
	}

	return t.base.RoundTrip(r)
}
