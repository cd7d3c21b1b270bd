// Package storage provides the durable key/value persistence the session
// core keeps its tokens in.
//
// Three implementations are available:
//   - SQLiteRepository: survives restarts; schema managed by goose migrations.
//   - MemoryRepository: process-local, used for ephemeral sessions and tests.
//   - SealedRepository: wraps another Repository and encrypts values at rest.
//
// All of them return (nil, nil) from Get when a key is absent.
package storage

import "context"

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetAll writes every pair or none of them.
	SetAll(ctx context.Context, values map[string][]byte) error
	// Apply upserts set and removes del as one unit: either every change
	// lands or none does.
	Apply(ctx context.Context, set map[string][]byte, del ...string) error
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
