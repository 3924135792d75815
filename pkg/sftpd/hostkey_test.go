package sftpd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrGenerateHostKeyPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "sftp_host_key")

	first, err := LoadOrGenerateHostKey(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// A second load returns the same key, not a fresh one.
	second, err := LoadOrGenerateHostKey(path)
	require.NoError(t, err)
	assert.Equal(t,
		first.PublicKey().Marshal(),
		second.PublicKey().Marshal(),
		"host key must survive restarts")
}

func TestLoadOrGenerateHostKeyRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sftp_host_key")
	require.NoError(t, os.WriteFile(path, []byte("not a pem block"), 0o600))

	_, err := LoadOrGenerateHostKey(path)
	require.Error(t, err)
}
