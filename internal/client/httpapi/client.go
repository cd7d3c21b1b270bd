package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/freightdesk/internal/client/session"
)

const (
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
	refreshPath  = "/auth/refresh"
	healthPath   = "/health"
)

const maxResponseBody = 1 << 20

var _ session.AuthAPI = (*Client)(nil)

type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// New returns a Client for the backend at baseURL. Requests carry the
// credential from creds; timeout bounds each request (0 means none).
func New(baseURL string, creds CredentialSource, timeout time.Duration) (*Client, error) {
	return NewWithTransport(baseURL, creds, timeout, nil)
}

// NewWithTransport is New with an explicit base transport.
func NewWithTransport(baseURL string, creds CredentialSource, timeout time.Duration, base http.RoundTripper) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}

	return &Client{
		baseURL: u,
		http: &http.Client{
			Transport: newAuthTransport(base, creds),
			Timeout:   timeout,
		},
	}, nil
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken,omitempty"`
	User         map[string]any `json:"user,omitempty"`
}

func (r *authResponse) toSession() *session.AuthResponse {
	return &session.AuthResponse{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		User:         session.User(r.User),
	}
}

func (c *Client) Login(ctx context.Context, identifier, secret string) (*session.AuthResponse, error) {
	var resp authResponse
	if err := c.do(ctx, http.MethodPost, loginPath, loginRequest{Identifier: identifier, Secret: secret}, &resp); err != nil {
		return nil, err
	}
	return resp.toSession(), nil
}

func (c *Client) Register(ctx context.Context, req session.RegisterRequest) (*session.AuthResponse, error) {
	body := registerRequest{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}

	var resp authResponse
	if err := c.do(ctx, http.MethodPost, registerPath, body, &resp); err != nil {
		return nil, err
	}
	return resp.toSession(), nil
}

// Refresh exchanges refreshToken for a new access token. The response may
// omit the refresh token, in which case the caller keeps the old one.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*session.AuthResponse, error) {
	var resp authResponse
	if err := c.do(ctx, http.MethodPost, refreshPath, refreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return nil, err
	}
	return resp.toSession(), nil
}

// Ping checks that the backend is reachable and healthy.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, healthPath, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return mapTransportError(err)
	}
	defer resp.Body.Close()

	if err := mapResponse(resp); err != nil {
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
