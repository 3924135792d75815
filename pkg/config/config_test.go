package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, DefaultServerDataPath, cfg.ServerDataPath)
	assert.Equal(t, cfg.ServerDataPath, cfg.ServerFilesRoot)
	assert.Equal(t, DefaultSFTPPort, cfg.SFTPPort)
	assert.True(t, cfg.SuspensionEnforced)
	assert.Equal(t, DeleteAllow, cfg.SuspensionDeletePolicy)
	assert.False(t, cfg.BlocksDelete())
	assert.Zero(t, cfg.MaxDiskMB)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_DATA_PATH", "/srv/games")
	t.Setenv("SERVER_FILES_ROOT", "/srv/sftp")
	t.Setenv("SFTP_PORT", "2222")
	t.Setenv("SFTP_HOST_KEY", "/etc/catalyst/hostkey")
	t.Setenv("MAX_DISK_MB", "51200")
	t.Setenv("SUSPENSION_ENFORCED", "false")
	t.Setenv("SUSPENSION_DELETE_POLICY", "block")
	t.Setenv("CATALYST_RESET_CRASHES_WHILE_SUSPENDED", "true")

	cfg := FromEnv()

	assert.Equal(t, "/srv/games", cfg.ServerDataPath)
	assert.Equal(t, "/srv/sftp", cfg.ServerFilesRoot)
	assert.Equal(t, 2222, cfg.SFTPPort)
	assert.Equal(t, "/etc/catalyst/hostkey", cfg.SFTPHostKey)
	assert.Equal(t, int64(51200), cfg.MaxDiskMB)
	assert.False(t, cfg.SuspensionEnforced)
	assert.True(t, cfg.BlocksDelete())
	assert.True(t, cfg.ResetCrashesWhileSuspended)
}

func TestFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("SFTP_PORT", "not-a-port")
	t.Setenv("SUSPENSION_ENFORCED", "maybe")
	t.Setenv("SUSPENSION_DELETE_POLICY", "whatever")

	cfg := FromEnv()

	assert.Equal(t, DefaultSFTPPort, cfg.SFTPPort)
	assert.True(t, cfg.SuspensionEnforced)
	assert.Equal(t, DeleteAllow, cfg.SuspensionDeletePolicy)
}

func TestDerivedPaths(t *testing.T) {
	cfg := Default()
	require.NotEmpty(t, cfg.SFTPHostKey)
	assert.Contains(t, cfg.SFTPHostKey, cfg.DataDir)
	assert.Contains(t, cfg.BackupsPath, cfg.DataDir)
}
