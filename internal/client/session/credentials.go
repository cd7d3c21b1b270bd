package session

import (
	"sync"

	"github.com/dmitrijs2005/freightdesk/internal/common"
)

// Credentials is the default credential presented by the outbound HTTP
// client. Only Store writes it; request interceptors read it.
type Credentials struct {
	mu    sync.RWMutex
	token string
}

func NewCredentials() *Credentials {
	return &Credentials{}
}

func (c *Credentials) Set(accessToken string) {
	c.mu.Lock()
	c.token = accessToken
	c.mu.Unlock()
}

func (c *Credentials) Clear() {
	c.Set("")
}

// Token returns the current access token and whether one is installed.
func (c *Credentials) Token() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.token != ""
}

// AuthorizationHeader returns "Bearer <token>", or "" when signed out.
func (c *Credentials) AuthorizationHeader() string {
	tok, ok := c.Token()
	if !ok {
		return ""
	}
	return common.BearerScheme + " " + tok
}
