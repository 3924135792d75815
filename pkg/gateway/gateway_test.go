package gateway_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalystpanel/catalyst/pkg/agent"
	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/gateway"
	"github.com/catalystpanel/catalyst/pkg/storage"
	"github.com/catalystpanel/catalyst/pkg/types"
)

const agentKey = "test-agent-key"

func newTestGateway(t *testing.T) (*gateway.Gateway, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.CreateNode(&types.Node{
		ID:          "node-1",
		Name:        "worker-a",
		MaxMemoryMB: 4096,
		MaxCPUCores: 4,
		AgentKey:    agentKey,
	}))

	gw := gateway.New(store, gateway.Options{LivenessWindow: 2 * time.Second})
	require.NoError(t, gw.Start("127.0.0.1:0"))
	t.Cleanup(gw.Stop)
	return gw, store
}

func connectAgent(t *testing.T, gw *gateway.Gateway, nodeID, key string) *agent.Agent {
	t.Helper()
	a := agent.New(agent.Config{NodeID: nodeID, Key: key, DataDir: t.TempDir()})
	require.NoError(t, a.Connect(gw.Addr()))
	t.Cleanup(a.Close)
	return a
}

// capturingHandler collects routed events for assertions
type capturingHandler struct {
	mu       sync.Mutex
	statuses []*gateway.StatusUpdate
}

func (h *capturingHandler) OnStatusUpdate(nodeID string, e *gateway.StatusUpdate) {
	h.mu.Lock()
	h.statuses = append(h.statuses, e)
	h.mu.Unlock()
}

func (h *capturingHandler) OnBackupComplete(string, *gateway.BackupComplete)   {}
func (h *capturingHandler) OnRestoreComplete(string, *gateway.RestoreComplete) {}

func (h *capturingHandler) lastStatus() *gateway.StatusUpdate {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.statuses) == 0 {
		return nil
	}
	return h.statuses[len(h.statuses)-1]
}

func TestHandshakeBringsNodeOnline(t *testing.T) {
	gw, store := newTestGateway(t)
	connectAgent(t, gw, "node-1", agentKey)

	require.Eventually(t, func() bool {
		return gw.Online("node-1")
	}, 2*time.Second, 10*time.Millisecond)

	node, err := store.GetNode("node-1")
	require.NoError(t, err)
	assert.True(t, node.Online)
	assert.False(t, node.LastSeen.IsZero())
}

func TestHandshakeRejectsBadKey(t *testing.T) {
	gw, _ := newTestGateway(t)

	conn, err := net.Dial("tcp", gw.Addr())
	require.NoError(t, err)
	defer conn.Close()

	hello, err := gateway.NewFrame(gateway.EvtHello, "", gateway.Hello{NodeID: "node-1", Key: "wrong"})
	require.NoError(t, err)
	require.NoError(t, gateway.WriteFrame(conn, hello))

	// The gateway closes the connection without registering a session.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = gateway.ReadFrame(conn)
	require.Error(t, err)
	assert.False(t, gw.Online("node-1"))
}

func TestHandshakeRejectsUnknownNode(t *testing.T) {
	gw, _ := newTestGateway(t)

	conn, err := net.Dial("tcp", gw.Addr())
	require.NoError(t, err)
	defer conn.Close()

	hello, err := gateway.NewFrame(gateway.EvtHello, "", gateway.Hello{NodeID: "ghost", Key: agentKey})
	require.NoError(t, err)
	require.NoError(t, gateway.WriteFrame(conn, hello))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = gateway.ReadFrame(conn)
	require.Error(t, err)
	assert.False(t, gw.Online("ghost"))
}

func TestSessionReplacementKeepsNodeOnline(t *testing.T) {
	gw, store := newTestGateway(t)

	connectAgent(t, gw, "node-1", agentKey)
	require.Eventually(t, func() bool { return gw.Online("node-1") }, 2*time.Second, 10*time.Millisecond)

	// A second connection supersedes the first; tearing the old one down
	// must not flip the node offline.
	connectAgent(t, gw, "node-1", agentKey)
	time.Sleep(300 * time.Millisecond)

	assert.True(t, gw.Online("node-1"))
	node, err := store.GetNode("node-1")
	require.NoError(t, err)
	assert.True(t, node.Online)
}

func TestDisconnectMarksNodeOffline(t *testing.T) {
	gw, store := newTestGateway(t)

	a := connectAgent(t, gw, "node-1", agentKey)
	require.Eventually(t, func() bool { return gw.Online("node-1") }, 2*time.Second, 10*time.Millisecond)

	a.Close()
	require.Eventually(t, func() bool {
		node, err := store.GetNode("node-1")
		return err == nil && !node.Online
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, gw.Online("node-1"))
}

func TestStatusUpdateRouting(t *testing.T) {
	gw, _ := newTestGateway(t)
	h := &capturingHandler{}
	gw.SetHandler(h)

	a := connectAgent(t, gw, "node-1", agentKey)
	require.Eventually(t, func() bool { return gw.Online("node-1") }, 2*time.Second, 10*time.Millisecond)

	a.ReportStatus("w-1", "running")

	require.Eventually(t, func() bool {
		s := h.lastStatus()
		return s != nil && s.ServerID == "w-1" && s.NewStatus == "running"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSendToOfflineNode(t *testing.T) {
	gw, _ := newTestGateway(t)

	err := gw.Send(context.Background(), "node-1", gateway.CmdStartServer, &gateway.Command{ServerID: "w-1"})
	require.Error(t, err)
	assert.Equal(t, errdefs.KindNodeUnavailable, errdefs.KindOf(err))
}

func TestCommandExecutionRoundtrip(t *testing.T) {
	gw, _ := newTestGateway(t)
	h := &capturingHandler{}
	gw.SetHandler(h)

	connectAgent(t, gw, "node-1", agentKey)
	require.Eventually(t, func() bool { return gw.Online("node-1") }, 2*time.Second, 10*time.Millisecond)

	err := gw.Send(context.Background(), "node-1", gateway.CmdInstallServer, &gateway.Command{
		ServerID:   "w-1",
		ServerUUID: "uuid-1",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s := h.lastStatus()
		return s != nil && s.NewStatus == "installed"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBackupCorrelation(t *testing.T) {
	gw, _ := newTestGateway(t)

	connectAgent(t, gw, "node-1", agentKey)
	require.Eventually(t, func() bool { return gw.Online("node-1") }, 2*time.Second, 10*time.Millisecond)

	done, cancel := gw.ExpectBackup("backup-1")
	defer cancel()

	err := gw.Send(context.Background(), "node-1", gateway.CmdCreateBackup, &gateway.Command{
		ServerID:   "w-1",
		ServerUUID: "uuid-1",
		BackupID:   "backup-1",
		BackupName: "nightly",
	})
	require.NoError(t, err)

	select {
	case f := <-done:
		var e gateway.BackupComplete
		require.NoError(t, f.Decode(&e))
		assert.Equal(t, "backup-1", e.BackupID)
		assert.NotEmpty(t, e.Path)
	case <-time.After(3 * time.Second):
		t.Fatal("backup completion never arrived")
	}
}

func TestLogBatchingPersists(t *testing.T) {
	gw, store := newTestGateway(t)

	a := connectAgent(t, gw, "node-1", agentKey)
	require.Eventually(t, func() bool { return gw.Online("node-1") }, 2*time.Second, 10*time.Millisecond)

	a.ReportLog("w-1", "stdout", "server ready")
	a.ReportLog("w-1", "stderr", "warning: low memory")

	require.Eventually(t, func() bool {
		logs, err := store.ListWorkloadLogs("w-1", 10)
		return err == nil && len(logs) == 2
	}, 3*time.Second, 50*time.Millisecond)

	logs, err := store.ListWorkloadLogs("w-1", 10)
	require.NoError(t, err)
	lines := make([]string, 0, len(logs))
	for _, l := range logs {
		lines = append(lines, l.Line)
	}
	assert.Contains(t, lines, "server ready")
	assert.Contains(t, lines, "warning: low memory")
}
