package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/freightdesk/internal/common"
	"github.com/dmitrijs2005/freightdesk/internal/cryptox"
)

var ErrSealedValue = errors.New("cannot open sealed value")

// SealedRepository encrypts every value before handing it to the wrapped
// repository. The argon2 salt lives unencrypted in the wrapped repository
// under common.StorageSaltKey and is never exposed through this wrapper.
type SealedRepository struct {
	inner Repository
	key   []byte
}

// NewSealedRepository derives the sealing key from passphrase, creating and
// storing a fresh salt on first use.
func NewSealedRepository(ctx context.Context, inner Repository, passphrase []byte) (*SealedRepository, error) {
	salt, err := inner.Get(ctx, common.StorageSaltKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage salt: %w", err)
	}
	if len(salt) == 0 {
		salt = common.GenerateRandByteArray(cryptox.SaltSize)
		if err := inner.Set(ctx, common.StorageSaltKey, salt); err != nil {
			return nil, fmt.Errorf("failed to write storage salt: %w", err)
		}
	}

	return &SealedRepository{inner: inner, key: cryptox.DeriveKey(passphrase, salt)}, nil
}

func (r *SealedRepository) open(key string, sealed []byte) ([]byte, error) {
	plain, err := cryptox.Open(sealed, r.key)
	if err != nil {
		return nil, fmt.Errorf("%w [%s]: %v", ErrSealedValue, key, err)
	}
	return plain, nil
}

func (r *SealedRepository) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := r.inner.Get(ctx, key)
	if err != nil || sealed == nil {
		return nil, err
	}
	return r.open(key, sealed)
}

func (r *SealedRepository) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := cryptox.Seal(value, r.key)
	if err != nil {
		return err
	}
	return r.inner.Set(ctx, key, sealed)
}

func (r *SealedRepository) SetAll(ctx context.Context, values map[string][]byte) error {
	return r.Apply(ctx, values)
}

// Apply seals set and hands both halves to the inner repository, which
// applies them atomically.
func (r *SealedRepository) Apply(ctx context.Context, set map[string][]byte, del ...string) error {
	sealed := make(map[string][]byte, len(set))
	for k, v := range set {
		s, err := cryptox.Seal(v, r.key)
		if err != nil {
			return err
		}
		sealed[k] = s
	}
	return r.inner.Apply(ctx, sealed, del...)
}

func (r *SealedRepository) Delete(ctx context.Context, keys ...string) error {
	return r.inner.Delete(ctx, keys...)
}

func (r *SealedRepository) List(ctx context.Context) (map[string][]byte, error) {
	all, err := r.inner.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(all))
	for k, v := range all {
		if k == common.StorageSaltKey {
			continue
		}
		plain, err := r.open(k, v)
		if err != nil {
			return nil, err
		}
		out[k] = plain
	}
	return out, nil
}

// Clear removes every sealed value but keeps the salt, so the same
// passphrase keeps producing the same key.
func (r *SealedRepository) Clear(ctx context.Context) error {
	all, err := r.inner.List(ctx)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		if k != common.StorageSaltKey {
			keys = append(keys, k)
		}
	}
	return r.inner.Delete(ctx, keys...)
}
