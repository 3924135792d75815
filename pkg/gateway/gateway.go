package gateway

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/log"
	"github.com/catalystpanel/catalyst/pkg/metrics"
	"github.com/catalystpanel/catalyst/pkg/storage"
	"github.com/catalystpanel/catalyst/pkg/types"
)

// Defaults for the tunable windows
const (
	DefaultAdmissionTimeout = 5 * time.Second
	DefaultLivenessWindow   = 30 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second

	sessionQueueDepth = 64
	flushInterval     = 500 * time.Millisecond
	flushBatchSize    = 64
)

// EventHandler receives the agent events that drive state transitions. The
// lifecycle engine registers itself here; handlers are called from session
// read loops and must not block on the session.
type EventHandler interface {
	OnStatusUpdate(nodeID string, e *StatusUpdate)
	OnBackupComplete(nodeID string, e *BackupComplete)
	OnRestoreComplete(nodeID string, e *RestoreComplete)
}

// Options tunes the gateway's bounded windows. Zero values pick defaults.
type Options struct {
	AdmissionTimeout time.Duration
	LivenessWindow   time.Duration
	HandshakeTimeout time.Duration
}

// Gateway accepts agent connections, owns the node-id to session registry,
// and provides the send/stream/await primitives the rest of the control
// plane dispatches through.
type Gateway struct {
	store storage.Store
	opts  Options

	mu       sync.RWMutex
	sessions map[string]*session

	hmu     sync.RWMutex
	handler EventHandler

	wmu     sync.Mutex
	waiters map[string]chan *Frame

	logCh    chan *types.WorkloadLog
	metricCh chan *types.MetricSample

	listener net.Listener
	stopCh   chan struct{}
	stopOnce sync.Once

	logger zerolog.Logger
}

// New creates a gateway over the given store
func New(store storage.Store, opts Options) *Gateway {
	if opts.AdmissionTimeout <= 0 {
		opts.AdmissionTimeout = DefaultAdmissionTimeout
	}
	if opts.LivenessWindow <= 0 {
		opts.LivenessWindow = DefaultLivenessWindow
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &Gateway{
		store:    store,
		opts:     opts,
		sessions: make(map[string]*session),
		waiters:  make(map[string]chan *Frame),
		logCh:    make(chan *types.WorkloadLog, 1024),
		metricCh: make(chan *types.MetricSample, 1024),
		stopCh:   make(chan struct{}),
		logger:   log.WithComponent("gateway"),
	}
}

// SetHandler registers the event handler. Must be called before agents can
// produce state-affecting events; typically wired at startup.
func (g *Gateway) SetHandler(h EventHandler) {
	g.hmu.Lock()
	g.handler = h
	g.hmu.Unlock()
}

// Start listens for agent connections on addr
func (g *Gateway) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway listen on %s: %w", addr, err)
	}
	g.listener = ln
	g.logger.Info().Str("addr", ln.Addr().String()).Msg("gateway listening")

	go g.acceptLoop()
	go g.sweepLoop()
	go g.flushLoop()
	return nil
}

// Addr returns the bound listen address, or empty before Start
func (g *Gateway) Addr() string {
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

// Stop closes the listener and every session
func (g *Gateway) Stop() {
	g.stopOnce.Do(func() {
		close(g.stopCh)
		if g.listener != nil {
			_ = g.listener.Close()
		}
		g.mu.Lock()
		for _, s := range g.sessions {
			s.close()
		}
		g.sessions = make(map[string]*session)
		g.mu.Unlock()
	})
}

func (g *Gateway) acceptLoop() {
	for {
		conn, err := g.listener.Accept()
		if err != nil {
			select {
			case <-g.stopCh:
				return
			default:
			}
			g.logger.Warn().Err(err).Msg("accept failed")
			continue
		}
		go g.handleConn(conn)
	}
}

// handleConn runs the handshake and, on success, the session read loop
func (g *Gateway) handleConn(conn net.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(g.opts.HandshakeTimeout))
	f, err := ReadFrame(conn)
	if err != nil || f.Type != EvtHello {
		g.logger.Warn().Str("remote", conn.RemoteAddr().String()).Msg("connection without hello rejected")
		_ = conn.Close()
		return
	}

	var hello Hello
	if err := f.Decode(&hello); err != nil {
		_ = conn.Close()
		return
	}

	node, err := g.store.GetNode(hello.NodeID)
	if err != nil {
		g.logger.Warn().Str("node_id", hello.NodeID).Msg("hello from unknown node rejected")
		_ = conn.Close()
		return
	}
	if subtle.ConstantTimeCompare([]byte(node.AgentKey), []byte(hello.Key)) != 1 {
		g.logger.Warn().Str("node_id", hello.NodeID).Msg("hello with bad agent key rejected")
		_ = conn.Close()
		return
	}

	_ = conn.SetReadDeadline(time.Time{})

	s := newSession(node.ID, conn, sessionQueueDepth)
	g.register(s)
	g.setNodeOnline(node.ID, true)
	s.logger.Info().Msg("agent session established")

	g.readLoop(s)
}

// register installs the session, superseding any previous one for the node
func (g *Gateway) register(s *session) {
	g.mu.Lock()
	prev := g.sessions[s.nodeID]
	g.sessions[s.nodeID] = s
	g.mu.Unlock()

	if prev != nil {
		prev.close()
		s.logger.Info().Msg("replaced previous agent session")
	}
}

func (g *Gateway) readLoop(s *session) {
	defer func() {
		s.close()
		g.mu.Lock()
		replaced := g.sessions[s.nodeID] != s
		if !replaced {
			delete(g.sessions, s.nodeID)
		}
		g.mu.Unlock()
		// A superseded session must not mark the node offline behind the
		// replacement's back.
		if !replaced {
			g.setNodeOnline(s.nodeID, false)
			s.logger.Info().Msg("agent session closed, node offline")
		}
	}()

	for {
		f, err := ReadFrame(s.conn)
		if err != nil {
			if err != io.EOF && !s.closed() {
				s.logger.Warn().Err(err).Msg("session read failed")
			}
			return
		}
		g.dispatch(s.nodeID, f)
	}
}

func (g *Gateway) activeSession(nodeID string) *session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sessions[nodeID]
}

// dispatch routes one inbound frame. Unknown types are logged and dropped.
func (g *Gateway) dispatch(nodeID string, f *Frame) {
	metrics.EventsReceived.WithLabelValues(f.Type).Inc()

	if f.CorrelationID != "" {
		g.fulfill("corr:"+f.CorrelationID, f)
	}

	g.hmu.RLock()
	h := g.handler
	g.hmu.RUnlock()

	switch f.Type {
	case EvtStatusUpdate:
		var e StatusUpdate
		if err := f.Decode(&e); err != nil {
			g.logger.Warn().Err(err).Msg("bad status_update payload")
			return
		}
		if h != nil {
			h.OnStatusUpdate(nodeID, &e)
		}

	case EvtLog:
		var e LogLine
		if err := f.Decode(&e); err != nil {
			return
		}
		entry := &types.WorkloadLog{
			WorkloadID: e.ServerID,
			Timestamp:  time.Now(),
			Stream:     types.LogStream(e.Stream),
			Line:       e.Line,
		}
		select {
		case g.logCh <- entry:
		default:
			// Batch buffer full; dropping a log line beats stalling the
			// session read loop.
		}

	case EvtMetrics:
		var e Metrics
		if err := f.Decode(&e); err != nil {
			return
		}
		sample := &types.MetricSample{
			WorkloadID: e.ServerID,
			Timestamp:  e.Timestamp,
			CPUPercent: e.CPUPercent,
			MemoryMiB:  e.MemoryMiB,
			DiskMiB:    e.DiskMiB,
		}
		select {
		case g.metricCh <- sample:
		default:
		}

	case EvtBackupComplete:
		var e BackupComplete
		if err := f.Decode(&e); err != nil {
			return
		}
		g.fulfill("backup:"+e.BackupID, f)
		if h != nil {
			h.OnBackupComplete(nodeID, &e)
		}

	case EvtRestoreComplete:
		var e RestoreComplete
		if err := f.Decode(&e); err != nil {
			return
		}
		g.fulfill("restore:"+e.BackupID, f)
		if h != nil {
			h.OnRestoreComplete(nodeID, &e)
		}

	case EvtHeartbeat:
		g.setNodeOnline(nodeID, true)

	default:
		g.logger.Warn().Str("type", f.Type).Str("node_id", nodeID).Msg("unknown frame type dropped")
	}
}

// Send dispatches one command frame to the node's active session. Success
// means admission into the ordered write queue, not delivery; a stronger
// signal requires a correlated agent event.
func (g *Gateway) Send(ctx context.Context, nodeID, cmdType string, cmd *Command) error {
	s := g.activeSession(nodeID)
	if s == nil {
		return errdefs.Newf(errdefs.KindNodeUnavailable, "no active session for node %s", nodeID)
	}

	f, err := NewFrame(cmdType, uuid.New().String(), cmd)
	if err != nil {
		return err
	}

	timer := metrics.NewTimer()
	if err := s.enqueue(ctx, f, g.opts.AdmissionTimeout); err != nil {
		return err
	}
	timer.ObserveDuration(metrics.GatewaySendDuration)
	metrics.CommandsSent.WithLabelValues(cmdType).Inc()
	return nil
}

// Online reports whether the node currently holds an active session
func (g *Gateway) Online(nodeID string) bool {
	s := g.activeSession(nodeID)
	return s != nil && !s.closed()
}

// ExpectBackup registers interest in the backup_complete event for a backup
// id. The cancel func must be called exactly once.
func (g *Gateway) ExpectBackup(backupID string) (<-chan *Frame, func()) {
	return g.expect("backup:" + backupID)
}

// ExpectRestore registers interest in the restore_complete event for a
// backup id.
func (g *Gateway) ExpectRestore(backupID string) (<-chan *Frame, func()) {
	return g.expect("restore:" + backupID)
}

func (g *Gateway) expect(key string) (<-chan *Frame, func()) {
	ch := make(chan *Frame, 1)
	g.wmu.Lock()
	g.waiters[key] = ch
	g.wmu.Unlock()

	cancel := func() {
		g.wmu.Lock()
		delete(g.waiters, key)
		g.wmu.Unlock()
	}
	return ch, cancel
}

func (g *Gateway) fulfill(key string, f *Frame) {
	g.wmu.Lock()
	ch, ok := g.waiters[key]
	if ok {
		delete(g.waiters, key)
	}
	g.wmu.Unlock()
	if ok {
		ch <- f
	}
}

// StreamTo pushes r to targetPath on the node as ordered upload_blob_chunk
// frames terminated by an EOS chunk. A partial stream leaves the target
// indeterminate; the caller retries or cleans up.
func (g *Gateway) StreamTo(ctx context.Context, nodeID, targetPath string, r io.Reader) error {
	s := g.activeSession(nodeID)
	if s == nil {
		return errdefs.Newf(errdefs.KindNodeUnavailable, "no active session for node %s", nodeID)
	}

	buf := make([]byte, MaxChunkData)
	seq := 0
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			chunk := BlobChunk{TargetPath: targetPath, Seq: seq, Data: buf[:n]}
			f, err := NewFrame(CmdUploadChunk, "", chunk)
			if err != nil {
				return err
			}
			if err := s.enqueue(ctx, f, g.opts.AdmissionTimeout); err != nil {
				return err
			}
			seq++
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read stream for node %s: %w", nodeID, readErr)
		}
	}

	eos, err := NewFrame(CmdUploadChunk, "", BlobChunk{TargetPath: targetPath, Seq: seq, EOS: true})
	if err != nil {
		return err
	}
	return s.enqueue(ctx, eos, g.opts.AdmissionTimeout)
}

// setNodeOnline flips the node's online flag and refreshes last-seen
func (g *Gateway) setNodeOnline(nodeID string, online bool) {
	node, err := g.store.GetNode(nodeID)
	if err != nil {
		return
	}
	node.Online = online
	if online {
		node.LastSeen = time.Now()
	}
	if err := g.store.UpdateNode(node); err != nil {
		g.logger.Warn().Err(err).Str("node_id", nodeID).Msg("node liveness update failed")
	}
}

// sweepLoop marks nodes offline when no heartbeat arrived inside the
// liveness window and tears their sessions down.
func (g *Gateway) sweepLoop() {
	ticker := time.NewTicker(g.opts.LivenessWindow / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.sweepStale()
		case <-g.stopCh:
			return
		}
	}
}

func (g *Gateway) sweepStale() {
	nodes, err := g.store.ListNodes()
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-g.opts.LivenessWindow)
	for _, node := range nodes {
		if !node.Online || node.LastSeen.After(cutoff) {
			continue
		}
		g.logger.Warn().Str("node_id", node.ID).Time("last_seen", node.LastSeen).Msg("node missed liveness window")
		if s := g.activeSession(node.ID); s != nil {
			s.close()
		}
		g.setNodeOnline(node.ID, false)
	}
}

// flushLoop drains the log and metric batches to storage off the session
// read loops.
func (g *Gateway) flushLoop() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var logs []*types.WorkloadLog
	var samples []*types.MetricSample

	flush := func() {
		if len(logs) > 0 {
			if err := g.store.AppendWorkloadLogs(logs); err != nil {
				g.logger.Warn().Err(err).Int("count", len(logs)).Msg("log batch flush failed")
			}
			logs = nil
		}
		if len(samples) > 0 {
			if err := g.store.AppendMetricSamples(samples); err != nil {
				g.logger.Warn().Err(err).Int("count", len(samples)).Msg("metric batch flush failed")
			}
			samples = nil
		}
	}

	for {
		select {
		case entry := <-g.logCh:
			logs = append(logs, entry)
			if len(logs) >= flushBatchSize {
				flush()
			}
		case sample := <-g.metricCh:
			samples = append(samples, sample)
			if len(samples) >= flushBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-g.stopCh:
			flush()
			return
		}
	}
}
