// Package storagetest holds the behaviour every credential store must share.
package storagetest

import (
	"context"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/internal/storage"
)

type CredentialStore interface {
	Get(ctx context.Context, key storage.Key) (string, error)
	Set(ctx context.Context, key storage.Key, value string) error
	Delete(ctx context.Context, keys ...storage.Key) error
}

// Run exercises a fresh store returned by newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) CredentialStore) {
	t.Helper()

	t.Run("Get absent key", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Get(context.Background(), storage.KeyAccessToken)
		require.ErrorIs(t, err, storage.ErrCredentialNotFound)
	})

	t.Run("Set then Get", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		access := gofakeit.UUID()
		refresh := gofakeit.UUID()
		require.NoError(t, s.Set(ctx, storage.KeyAccessToken, access))
		require.NoError(t, s.Set(ctx, storage.KeyRefreshToken, refresh))

		got, err := s.Get(ctx, storage.KeyAccessToken)
		require.NoError(t, err)
		assert.Equal(t, access, got)

		got, err = s.Get(ctx, storage.KeyRefreshToken)
		require.NoError(t, err)
		assert.Equal(t, refresh, got)
	})

	t.Run("Set replaces", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Set(ctx, storage.KeyAccessToken, "A1"))
		require.NoError(t, s.Set(ctx, storage.KeyAccessToken, "A2"))

		got, err := s.Get(ctx, storage.KeyAccessToken)
		require.NoError(t, err)
		assert.Equal(t, "A2", got)
	})

	t.Run("Delete one key keeps the other", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Set(ctx, storage.KeyAccessToken, "A1"))
		require.NoError(t, s.Set(ctx, storage.KeyRefreshToken, "R1"))
		require.NoError(t, s.Delete(ctx, storage.KeyAccessToken))

		_, err := s.Get(ctx, storage.KeyAccessToken)
		require.ErrorIs(t, err, storage.ErrCredentialNotFound)

		got, err := s.Get(ctx, storage.KeyRefreshToken)
		require.NoError(t, err)
		assert.Equal(t, "R1", got)
	})

	t.Run("Empty value reads as absent", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Set(ctx, storage.KeyAccessToken, ""))

		_, err := s.Get(ctx, storage.KeyAccessToken)
		require.ErrorIs(t, err, storage.ErrCredentialNotFound)
	})

	t.Run("Delete absent keys", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Delete(context.Background(), storage.Keys...))
		require.NoError(t, s.Delete(context.Background()))
	})
}
