package session

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/freightdesk/internal/client/storage"
	"github.com/dmitrijs2005/freightdesk/internal/client/token"
	"github.com/dmitrijs2005/freightdesk/internal/common"
)

// Tokens is the stored credential pair. RefreshToken may be empty.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Armer is the part of Scheduler the Store drives.
type Armer interface {
	Arm(expiresAt time.Time)
	Cancel()
}

// Store is the single writer of durable tokens, the outbound credential
// and the refresh timer. Callers serialize access to it (Manager does).
type Store struct {
	repo  storage.Repository
	codec *token.Codec
	creds *Credentials
	timer Armer
}

func NewStore(repo storage.Repository, codec *token.Codec, creds *Credentials, timer Armer) *Store {
	return &Store{repo: repo, codec: codec, creds: creds, timer: timer}
}

// Persist stores access and, when non-empty, refresh. An omitted refresh
// token leaves the stored one in place. On success the outbound credential
// is switched to access and the refresh timer is re-armed from its expiry.
// Nothing changes if access cannot be decoded or the write fails.
func (s *Store) Persist(ctx context.Context, access, refresh string) (*token.Claims, error) {
	return s.write(ctx, access, refresh, false)
}

// Replace is Persist for a brand-new session: an omitted refresh token
// removes the stored one instead of keeping it.
func (s *Store) Replace(ctx context.Context, access, refresh string) (*token.Claims, error) {
	return s.write(ctx, access, refresh, true)
}

func (s *Store) write(ctx context.Context, access, refresh string, dropStaleRefresh bool) (*token.Claims, error) {
	claims, err := s.codec.Decode(access)
	if err != nil {
		return nil, err
	}

	values := map[string][]byte{common.AccessTokenKey: []byte(access)}
	var drop []string
	switch {
	case refresh != "":
		values[common.RefreshTokenKey] = []byte(refresh)
	case dropStaleRefresh:
		drop = append(drop, common.RefreshTokenKey)
	}
	if err := s.repo.Apply(ctx, values, drop...); err != nil {
		return nil, fmt.Errorf("failed to persist tokens: %w", err)
	}

	s.creds.Set(access)
	s.timer.Arm(claims.ExpiresAt)
	return claims, nil
}

// Reset cancels the timer and drops the outbound credential. Stored tokens
// are left alone.
func (s *Store) Reset() {
	s.timer.Cancel()
	s.creds.Clear()
}

// Clear removes both tokens, the outbound credential and any armed timer.
// The credential and timer are cleared even when the storage delete fails.
func (s *Store) Clear(ctx context.Context) error {
	s.Reset()

	if err := s.repo.Delete(ctx, common.AccessTokenKey, common.RefreshTokenKey); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

// Load reads the stored pair without validating it. It returns nil when no
// access token is stored.
func (s *Store) Load(ctx context.Context) (*Tokens, error) {
	access, err := s.repo.Get(ctx, common.AccessTokenKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load access token: %w", err)
	}
	if len(access) == 0 {
		return nil, nil
	}

	refresh, err := s.repo.Get(ctx, common.RefreshTokenKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}

	return &Tokens{AccessToken: string(access), RefreshToken: string(refresh)}, nil
}
