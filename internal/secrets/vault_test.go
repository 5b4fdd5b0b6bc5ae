package secrets

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileVaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.vault")
	vault, err := NewFileVault(path, "correct horse")
	require.NoError(t, err)

	records, err := vault.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records, "missing file holds no records")

	added := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	want := []Record{
		{Name: "OpenRouter", Key: "sk-1", AddedAt: added},
		{Name: "groq", Key: "gsk-2", AddedAt: added.Add(time.Minute)},
	}
	require.NoError(t, vault.Save(context.Background(), want))

	got, err := vault.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range want {
		assert.Equal(t, want[i].Name, got[i].Name)
		assert.Equal(t, want[i].Key, got[i].Key)
		assert.True(t, want[i].AddedAt.Equal(got[i].AddedAt))
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("sk-1")), "key stored in clear text")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(vaultFileMode), info.Mode().Perm())
}

func TestFileVaultWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.vault")

	vault, err := NewFileVault(path, "one")
	require.NoError(t, err)
	require.NoError(t, vault.Save(context.Background(), []Record{{Name: "a", Key: "b"}}))

	other, err := NewFileVault(path, "two")
	require.NoError(t, err)
	_, err = other.Load(context.Background())
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestFileVaultTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.vault")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))

	vault, err := NewFileVault(path, "pw")
	require.NoError(t, err)
	_, err = vault.Load(context.Background())
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestNewFileVaultValidation(t *testing.T) {
	_, err := NewFileVault("", "pw")
	assert.Error(t, err)
	_, err = NewFileVault("/tmp/x", "")
	assert.Error(t, err)
}

func TestMemoryBackend(t *testing.T) {
	var m Memory
	require.NoError(t, m.Save(context.Background(), []Record{{Name: "a", Key: "b"}}))
	got, err := m.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, m.Save(ctx, nil))
}
