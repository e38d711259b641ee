package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/internal/storage"
	"authgate/internal/storage/storagetest"
)

func TestStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storagetest.CredentialStore {
		return New(filepath.Join(t.TempDir(), ".secrets", "credentials.json"))
	})
}

func TestStorage_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "credentials.json")
	s := New(path)

	require.NoError(t, s.Set(context.Background(), storage.KeyAccessToken, "A1"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())
}

func TestStorage_SharedFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")

	writer := New(path)
	require.NoError(t, writer.Set(ctx, storage.KeyAccessToken, "A1"))
	require.NoError(t, writer.Set(ctx, storage.KeyRefreshToken, "R1"))

	got, err := New(path).Get(ctx, storage.KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "R1", got)
}

func TestStorage_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := New(path).Get(context.Background(), storage.KeyAccessToken)
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrCredentialNotFound)
	assert.Contains(t, err.Error(), "decode json")
}

func TestNew_DefaultPath(t *testing.T) {
	assert.Equal(t, DefaultPath, New("  ").path)
}
