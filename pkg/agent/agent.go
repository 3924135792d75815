package agent

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/catalystpanel/catalyst/pkg/gateway"
	"github.com/catalystpanel/catalyst/pkg/log"
)

// Config identifies the simulated node
type Config struct {
	NodeID string
	Key    string

	// DataDir receives backup artifacts and streamed blobs. Defaults to a
	// temp directory.
	DataDir string

	// HeartbeatInterval defaults to 10s.
	HeartbeatInterval time.Duration

	// WorkDelay simulates command execution time before the resulting
	// status update is sent.
	WorkDelay time.Duration
}

// Agent is one simulated agent connection
type Agent struct {
	cfg Config

	// OnCommand, when set, runs before the default behavior; returning
	// false swallows the command entirely.
	OnCommand func(cmdType string, cmd *gateway.Command) bool

	mu      sync.Mutex
	conn    net.Conn
	chunks  map[string]*os.File
	stopCh  chan struct{}
	stopped sync.Once

	logger zerolog.Logger
}

// New creates a simulated agent. Call Connect to bring it online.
func New(cfg Config) *Agent {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(os.TempDir(), "catalyst-agent-"+cfg.NodeID)
	}
	return &Agent{
		cfg:    cfg,
		chunks: make(map[string]*os.File),
		stopCh: make(chan struct{}),
		logger: log.WithNodeID(cfg.NodeID),
	}
}

// Connect dials the gateway, handshakes, and starts the read and heartbeat
// loops.
func (a *Agent) Connect(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial gateway %s: %w", addr, err)
	}

	hello, err := gateway.NewFrame(gateway.EvtHello, "", gateway.Hello{NodeID: a.cfg.NodeID, Key: a.cfg.Key})
	if err != nil {
		conn.Close()
		return err
	}
	if err := gateway.WriteFrame(conn, hello); err != nil {
		conn.Close()
		return fmt.Errorf("send hello: %w", err)
	}

	if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
		conn.Close()
		return err
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	go a.readLoop(conn)
	go a.heartbeatLoop()
	return nil
}

// Close drops the connection
func (a *Agent) Close() {
	a.stopped.Do(func() { close(a.stopCh) })
	a.mu.Lock()
	if a.conn != nil {
		_ = a.conn.Close()
	}
	for _, f := range a.chunks {
		_ = f.Close()
	}
	a.mu.Unlock()
}

func (a *Agent) heartbeatLoop() {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.send(gateway.EvtHeartbeat, nil)
		case <-a.stopCh:
			return
		}
	}
}

func (a *Agent) readLoop(conn net.Conn) {
	for {
		f, err := gateway.ReadFrame(conn)
		if err != nil {
			return
		}
		a.handle(f)
	}
}

func (a *Agent) handle(f *gateway.Frame) {
	if f.Type == gateway.CmdUploadChunk {
		var chunk gateway.BlobChunk
		if err := f.Decode(&chunk); err == nil {
			a.receiveChunk(&chunk)
		}
		return
	}

	var cmd gateway.Command
	if len(f.Payload) > 0 {
		if err := f.Decode(&cmd); err != nil {
			a.logger.Warn().Err(err).Str("type", f.Type).Msg("bad command payload")
			return
		}
	}

	if a.OnCommand != nil && !a.OnCommand(f.Type, &cmd) {
		return
	}

	if a.cfg.WorkDelay > 0 {
		time.Sleep(a.cfg.WorkDelay)
	}

	switch f.Type {
	case gateway.CmdInstallServer:
		a.status(cmd.ServerID, "installed", "")
	case gateway.CmdStartServer:
		a.status(cmd.ServerID, "running", "sim-"+cmd.ServerUUID)
	case gateway.CmdStopServer:
		a.status(cmd.ServerID, "stopped", "")
	case gateway.CmdRestartServer:
		a.status(cmd.ServerID, "stopped", "")
		a.status(cmd.ServerID, "running", "sim-"+cmd.ServerUUID)
	case gateway.CmdResizeStorage:
		// Nothing observable to report in simulation.
	case gateway.CmdCreateBackup:
		a.createBackup(f.CorrelationID, &cmd)
	case gateway.CmdRestoreBackup:
		a.send(gateway.EvtRestoreComplete, gateway.RestoreComplete{
			ServerID: cmd.ServerID,
			BackupID: cmd.BackupID,
			OK:       true,
		})
	case gateway.CmdCancel:
	default:
		a.logger.Warn().Str("type", f.Type).Msg("unknown command dropped")
	}
}

// createBackup fabricates a small artifact so transfer tests have real
// bytes to move.
func (a *Agent) createBackup(correlationID string, cmd *gateway.Command) {
	path := cmd.BackupPath
	if path == "" {
		path = filepath.Join(a.cfg.DataDir, cmd.BackupName+".tar.gz")
	}
	content := []byte("backup " + cmd.BackupName + " of " + cmd.ServerUUID + "\n")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
		_ = os.WriteFile(path, content, 0o644)
	}

	a.sendCorrelated(gateway.EvtBackupComplete, correlationID, gateway.BackupComplete{
		ServerID: cmd.ServerID,
		BackupID: cmd.BackupID,
		Path:     path,
		SizeMB:   1,
	})
}

func (a *Agent) receiveChunk(chunk *gateway.BlobChunk) {
	a.mu.Lock()
	defer a.mu.Unlock()

	dest := filepath.Join(a.cfg.DataDir, filepath.Base(chunk.TargetPath))
	f, open := a.chunks[dest]
	if !open {
		var err error
		f, err = os.Create(dest)
		if err != nil {
			a.logger.Warn().Err(err).Str("path", dest).Msg("chunk target create failed")
			return
		}
		a.chunks[dest] = f
	}

	if len(chunk.Data) > 0 {
		if _, err := f.Write(chunk.Data); err != nil {
			a.logger.Warn().Err(err).Msg("chunk write failed")
		}
	}
	if chunk.EOS {
		_ = f.Close()
		delete(a.chunks, dest)
	}
}

// ReportCrash emits a crashed status update, as a real agent would when the
// container exits nonzero.
func (a *Agent) ReportCrash(serverID string) {
	a.status(serverID, "crashed", "")
}

// ReportStatus emits an arbitrary status update
func (a *Agent) ReportStatus(serverID, status string) {
	a.status(serverID, status, "")
}

// ReportLog emits one workload log line
func (a *Agent) ReportLog(serverID, stream, line string) {
	a.send(gateway.EvtLog, gateway.LogLine{ServerID: serverID, Stream: stream, Line: line})
}

// ReportMetrics emits one resource usage sample
func (a *Agent) ReportMetrics(serverID string, cpu, memMiB, diskMiB float64) {
	a.send(gateway.EvtMetrics, gateway.Metrics{
		ServerID:   serverID,
		CPUPercent: cpu,
		MemoryMiB:  memMiB,
		DiskMiB:    diskMiB,
		Timestamp:  time.Now(),
	})
}

func (a *Agent) status(serverID, status, containerID string) {
	e := gateway.StatusUpdate{ServerID: serverID, NewStatus: status}
	if containerID != "" {
		e.ContainerID = containerID
		e.ContainerName = "catalyst-" + serverID
	}
	a.send(gateway.EvtStatusUpdate, e)
}

func (a *Agent) send(frameType string, payload any) {
	a.sendCorrelated(frameType, "", payload)
}

func (a *Agent) sendCorrelated(frameType, correlationID string, payload any) {
	f, err := gateway.NewFrame(frameType, correlationID, payload)
	if err != nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return
	}
	if err := gateway.WriteFrame(a.conn, f); err != nil {
		a.logger.Warn().Err(err).Msg("agent send failed")
	}
}
