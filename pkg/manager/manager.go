package manager

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/catalystpanel/catalyst/pkg/access"
	"github.com/catalystpanel/catalyst/pkg/audit"
	"github.com/catalystpanel/catalyst/pkg/auth"
	"github.com/catalystpanel/catalyst/pkg/config"
	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/events"
	"github.com/catalystpanel/catalyst/pkg/gateway"
	"github.com/catalystpanel/catalyst/pkg/ipam"
	"github.com/catalystpanel/catalyst/pkg/lifecycle"
	"github.com/catalystpanel/catalyst/pkg/log"
	"github.com/catalystpanel/catalyst/pkg/metrics"
	"github.com/catalystpanel/catalyst/pkg/sftpd"
	"github.com/catalystpanel/catalyst/pkg/storage"
	"github.com/catalystpanel/catalyst/pkg/transfer"
	"github.com/catalystpanel/catalyst/pkg/types"
)

const sessionSweepInterval = 10 * time.Minute

// Manager wires and owns every control-plane component
type Manager struct {
	cfg   *config.Config
	store storage.Store

	Sessions  *auth.SessionManager
	Evaluator *access.Evaluator
	Arbiter   *ipam.Arbiter
	Gateway   *gateway.Gateway
	Engine    *lifecycle.Engine
	Transfers *transfer.Coordinator
	SFTP      *sftpd.Server
	Broker    *events.Broker
	Auditor   *audit.Writer

	collector *metrics.Collector
	stopCh    chan struct{}

	logger zerolog.Logger
}

// NewManager builds the full component graph from cfg
func NewManager(cfg *config.Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if err := os.MkdirAll(cfg.ServerDataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create server data root: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	broker := events.NewBroker()
	sessions := auth.NewSessionManager(store)
	eval := access.NewEvaluator(store, cfg)
	arbiter := ipam.NewArbiter(cfg.MaxDiskMB)
	gw := gateway.New(store, gateway.Options{})
	engine := lifecycle.New(store, gw, broker, cfg)
	gw.SetHandler(engine)
	transfers := transfer.New(store, gw, engine, arbiter, broker, cfg)

	sftp, err := sftpd.NewServer(cfg, store, sessions, eval)
	if err != nil {
		store.Close()
		return nil, err
	}

	m := &Manager{
		cfg:       cfg,
		store:     store,
		Sessions:  sessions,
		Evaluator: eval,
		Arbiter:   arbiter,
		Gateway:   gw,
		Engine:    engine,
		Transfers: transfers,
		SFTP:      sftp,
		Broker:    broker,
		Auditor:   audit.NewWriter(store),
		collector: metrics.NewCollector(store),
		stopCh:    make(chan struct{}),
		logger:    log.WithComponent("manager"),
	}
	return m, nil
}

// Store exposes the persistence layer to the HTTP surface
func (m *Manager) Store() storage.Store { return m.store }

// Config returns the injected configuration
func (m *Manager) Config() *config.Config { return m.cfg }

// Start brings up the broker, the gateway and SFTP listeners, the metrics
// collector, and the session sweep.
func (m *Manager) Start(ctx context.Context) error {
	m.Broker.Start()

	if m.cfg.S3Bucket != "" {
		objects, err := transfer.NewS3Client(ctx, m.cfg)
		if err != nil {
			m.logger.Warn().Err(err).Msg("s3 transfer mode unavailable")
		} else {
			m.Transfers.Objects = objects
		}
	}

	if err := m.Gateway.Start(m.cfg.GatewayAddr); err != nil {
		return err
	}
	if err := m.SFTP.Start(); err != nil {
		m.Gateway.Stop()
		return err
	}

	m.collector.Start()
	m.Sessions.StartSweep(sessionSweepInterval, m.stopCh)

	m.logger.Info().
		Str("gateway", m.cfg.GatewayAddr).
		Int("sftp_port", m.cfg.SFTPPort).
		Msg("control plane started")
	return nil
}

// Shutdown stops every component and closes the store
func (m *Manager) Shutdown() error {
	close(m.stopCh)
	m.SFTP.Stop()
	m.Gateway.Stop()
	m.collector.Stop()
	m.Broker.Stop()
	m.Auditor.Close()
	return m.store.Close()
}

// Login issues a session token for a known user
func (m *Manager) Login(userID string) (*types.Session, error) {
	if _, err := m.store.GetUser(userID); err != nil {
		if errdefs.IsNotFound(err) {
			return nil, errdefs.New(errdefs.KindAuthFailed, "unknown user")
		}
		return nil, err
	}
	sess, err := m.Sessions.Create(userID, 0)
	if err != nil {
		return nil, err
	}
	m.Auditor.Record(userID, "session.create", "session", "", nil)
	return sess, nil
}

// Logout revokes a session token
func (m *Manager) Logout(token string) {
	m.Sessions.Revoke(token)
}

// newSecret returns 32 bytes of crypto/rand as hex, used for agent keys
func newSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
