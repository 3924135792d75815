package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Defaults applied when the corresponding environment variable is unset
const (
	DefaultDataDir        = "/var/lib/catalyst"
	DefaultServerDataPath = "/tmp/catalyst-servers"
	DefaultHTTPAddr       = ":8080"
	DefaultGatewayAddr    = ":7000"
	DefaultSFTPPort       = 2022
)

// SuspensionDeletePolicy controls whether delete is allowed on a suspended
// workload. "block" locks delete; anything else allows it for the owner.
type SuspensionDeletePolicy string

const (
	DeleteAllow SuspensionDeletePolicy = "allow"
	DeleteBlock SuspensionDeletePolicy = "block"
)

// Config carries every runtime option the control plane recognizes. It is
// built once at startup and injected into components; nothing reads the
// environment after FromEnv returns.
type Config struct {
	// DataDir holds catalyst.db and, by default, the SFTP host key.
	DataDir string

	// ServerDataPath is the root for per-workload file trees. Each
	// workload owns exactly <ServerDataPath>/<uuid>/.
	ServerDataPath string

	// ServerFilesRoot is the SFTP chroot root. Defaults to
	// ServerDataPath when unset.
	ServerFilesRoot string

	HTTPAddr    string
	GatewayAddr string

	SFTPPort    int
	SFTPHostKey string

	// BackupsPath is the root for local-mode backup artifacts, one
	// subdirectory per workload id.
	BackupsPath string

	// MaxDiskMB is an optional process-wide disk ceiling; zero disables.
	MaxDiskMB int64

	// SuspensionEnforced gates every state-changing operation on
	// suspended workloads except unsuspend. Default true.
	SuspensionEnforced bool

	// SuspensionDeletePolicy additionally gates delete. Default allow.
	SuspensionDeletePolicy SuspensionDeletePolicy

	// ResetCrashesWhileSuspended permits reset-crash-count on a
	// suspended workload even when suspension is enforced.
	ResetCrashesWhileSuspended bool

	// S3 settings for the s3 backup/transfer mode.
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	LogLevel string
	LogJSON  bool
}

// FromEnv builds a Config from the process environment, applying defaults
// for everything unset.
func FromEnv() *Config {
	cfg := &Config{
		DataDir:                    envOr("CATALYST_DATA_DIR", DefaultDataDir),
		ServerDataPath:             envOr("SERVER_DATA_PATH", DefaultServerDataPath),
		ServerFilesRoot:            os.Getenv("SERVER_FILES_ROOT"),
		HTTPAddr:                   envOr("CATALYST_HTTP_ADDR", DefaultHTTPAddr),
		GatewayAddr:                envOr("CATALYST_GATEWAY_ADDR", DefaultGatewayAddr),
		SFTPPort:                   envInt("SFTP_PORT", DefaultSFTPPort),
		SFTPHostKey:                os.Getenv("SFTP_HOST_KEY"),
		BackupsPath:                os.Getenv("BACKUPS_PATH"),
		MaxDiskMB:                  int64(envInt("MAX_DISK_MB", 0)),
		SuspensionEnforced:         envBool("SUSPENSION_ENFORCED", true),
		SuspensionDeletePolicy:     DeleteAllow,
		ResetCrashesWhileSuspended: envBool("CATALYST_RESET_CRASHES_WHILE_SUSPENDED", false),
		S3Endpoint:                 os.Getenv("S3_ENDPOINT"),
		S3Region:                   envOr("S3_REGION", "us-east-1"),
		S3Bucket:                   os.Getenv("S3_BUCKET"),
		S3AccessKey:                os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:                os.Getenv("S3_SECRET_KEY"),
		LogLevel:                   envOr("LOG_LEVEL", "info"),
		LogJSON:                    envBool("LOG_JSON", false),
	}

	if os.Getenv("SUSPENSION_DELETE_POLICY") == string(DeleteBlock) {
		cfg.SuspensionDeletePolicy = DeleteBlock
	}

	cfg.applyDerived()
	return cfg
}

// applyDerived fills the fields that default to other fields
func (c *Config) applyDerived() {
	if c.ServerFilesRoot == "" {
		c.ServerFilesRoot = c.ServerDataPath
	}
	if c.SFTPHostKey == "" {
		c.SFTPHostKey = filepath.Join(c.DataDir, "sftp_host_key")
	}
	if c.BackupsPath == "" {
		c.BackupsPath = filepath.Join(c.DataDir, "backups")
	}
}

// Default returns a Config with every default applied and no environment
// consulted. Tests use this as a baseline.
func Default() *Config {
	cfg := &Config{
		DataDir:                DefaultDataDir,
		ServerDataPath:         DefaultServerDataPath,
		HTTPAddr:               DefaultHTTPAddr,
		GatewayAddr:            DefaultGatewayAddr,
		SFTPPort:               DefaultSFTPPort,
		SuspensionEnforced:     true,
		SuspensionDeletePolicy: DeleteAllow,
		S3Region:               "us-east-1",
		LogLevel:               "info",
	}
	cfg.applyDerived()
	return cfg
}

// BlocksDelete reports whether suspension gating forbids deleting a
// suspended workload.
func (c *Config) BlocksDelete() bool {
	return c.SuspensionDeletePolicy == DeleteBlock
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
