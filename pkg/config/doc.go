/*
Package config reads Catalyst's environment surface into a single injected
struct.

Every recognized option is read exactly once, at startup, by FromEnv; the
resulting Config is passed to components explicitly. No package consults the
environment afterwards, which keeps tests hermetic (construct a Config
literal or use Default()).

# Recognized options

	SERVER_DATA_PATH              root for per-workload file trees
	                              (default /tmp/catalyst-servers)
	SERVER_FILES_ROOT             SFTP chroot root (defaults to
	                              SERVER_DATA_PATH)
	SFTP_PORT                     SFTP listen port (default 2022)
	SFTP_HOST_KEY                 path to the persisted RSA host key
	MAX_DISK_MB                   optional process-wide disk ceiling
	SUSPENSION_ENFORCED           "false" disables suspension gating
	SUSPENSION_DELETE_POLICY      "block" locks delete on suspended
	                              workloads
	CATALYST_RESET_CRASHES_WHILE_SUSPENDED
	                              allow crash-counter reset while
	                              suspended (default false)
	CATALYST_DATA_DIR             bbolt database and derived defaults
	CATALYST_HTTP_ADDR            HTTP API listen address (default :8080)
	CATALYST_GATEWAY_ADDR         agent gateway listen address (:7000)
	BACKUPS_PATH                  local backup artifacts root
	S3_ENDPOINT / S3_REGION / S3_BUCKET / S3_ACCESS_KEY / S3_SECRET_KEY
	LOG_LEVEL / LOG_JSON

Malformed numeric or boolean values fall back to the default rather than
failing startup.

# Usage

	cfg := config.FromEnv()
	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	store, err := storage.NewBoltStore(cfg.DataDir)
*/
package config
