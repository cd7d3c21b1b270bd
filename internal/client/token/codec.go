// Package token decodes bearer tokens issued by the freight backend.
//
// The console is a client: it trusts the issuer and never verifies
// signatures. It only needs the expiry (to schedule a silent refresh) and the
// subject payload (to show who is logged in).
package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/freightdesk/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the part of a token payload the session core cares about.
type Claims struct {
	ExpiresAt time.Time
	// Subject is the "user" object of the payload when present, otherwise
	// the whole payload. Its structure belongs to the server.
	Subject map[string]any
}

// Codec decodes tokens against an injectable clock.
type Codec struct {
	now    func() time.Time
	parser *jwt.Parser
}

// NewCodec returns a Codec. A nil now means time.Now.
func NewCodec(now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}
	return &Codec{now: now, parser: jwt.NewParser()}
}

// Decode parses the payload segment of raw. Any failure, including a missing
// or non-numeric exp, is reported as common.ErrMalformedToken.
func (c *Codec) Decode(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty", common.ErrMalformedToken)
	}

	payload := jwt.MapClaims{}
	if _, _, err := c.parser.ParseUnverified(raw, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedToken, err)
	}

	exp, err := payload.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedToken, err)
	}
	if exp == nil {
		return nil, fmt.Errorf("%w: missing exp", common.ErrMalformedToken)
	}

	subject := map[string]any(payload)
	if user, ok := payload["user"].(map[string]any); ok {
		subject = user
	}

	return &Claims{ExpiresAt: exp.Time, Subject: subject}, nil
}

// Validate returns nil for a decodable token whose exp is strictly after
// now, common.ErrExpiredToken when it is not, and common.ErrMalformedToken
// for anything undecodable. No clock-skew allowance is applied.
func (c *Codec) Validate(raw string) error {
	claims, err := c.Decode(raw)
	if err != nil {
		return err
	}
	if !claims.ExpiresAt.After(c.now()) {
		return fmt.Errorf("%w at %s", common.ErrExpiredToken, claims.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// IsValid reports whether raw can be used as a live access token.
func (c *Codec) IsValid(raw string) bool {
	return c.Validate(raw) == nil
}
