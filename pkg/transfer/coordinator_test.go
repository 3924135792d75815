package transfer

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalystpanel/catalyst/pkg/config"
	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/events"
	"github.com/catalystpanel/catalyst/pkg/gateway"
	"github.com/catalystpanel/catalyst/pkg/ipam"
	"github.com/catalystpanel/catalyst/pkg/lifecycle"
	"github.com/catalystpanel/catalyst/pkg/storage"
	"github.com/catalystpanel/catalyst/pkg/types"
)

const artifactContent = "workload files as tarball\n"

// fakeGW simulates both nodes' agents behind the gateway surface
type fakeGW struct {
	mu      sync.Mutex
	online  map[string]bool
	waiters map[string]chan *gateway.Frame

	// silentBackup suppresses the backup completion, forcing a timeout.
	silentBackup bool
	// restoreErr, when set, fails the restore on the target.
	restoreErr string

	sent     []string
	streamed map[string][]byte
}

func newFakeGW() *fakeGW {
	return &fakeGW{
		online:   map[string]bool{"node-1": true, "node-2": true},
		waiters:  make(map[string]chan *gateway.Frame),
		streamed: make(map[string][]byte),
	}
}

func (f *fakeGW) Online(nodeID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[nodeID]
}

func (f *fakeGW) Send(_ context.Context, nodeID, cmdType string, cmd *gateway.Command) error {
	f.mu.Lock()
	f.sent = append(f.sent, cmdType)
	f.mu.Unlock()

	switch cmdType {
	case gateway.CmdCreateBackup:
		if f.silentBackup {
			return nil
		}
		// In s3 mode the path is an object key; the artifact lives in the
		// bucket, not on disk.
		if cmd.BackupMode != string(types.BackupS3) {
			if err := os.MkdirAll(filepath.Dir(cmd.BackupPath), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(cmd.BackupPath, []byte(artifactContent), 0o644); err != nil {
				return err
			}
		}
		f.fulfill("backup:"+cmd.BackupID, gateway.EvtBackupComplete, gateway.BackupComplete{
			ServerID: cmd.ServerID,
			BackupID: cmd.BackupID,
			Path:     cmd.BackupPath,
			SizeMB:   1,
		})
	case gateway.CmdRestoreBackup:
		f.fulfill("restore:"+cmd.BackupID, gateway.EvtRestoreComplete, gateway.RestoreComplete{
			ServerID: cmd.ServerID,
			BackupID: cmd.BackupID,
			OK:       f.restoreErr == "",
			Err:      f.restoreErr,
		})
	}
	return nil
}

func (f *fakeGW) StreamTo(_ context.Context, nodeID, targetPath string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.streamed[nodeID+":"+targetPath] = data
	f.mu.Unlock()
	return nil
}

func (f *fakeGW) ExpectBackup(backupID string) (<-chan *gateway.Frame, func()) {
	return f.expect("backup:" + backupID)
}

func (f *fakeGW) ExpectRestore(backupID string) (<-chan *gateway.Frame, func()) {
	return f.expect("restore:" + backupID)
}

func (f *fakeGW) expect(key string) (<-chan *gateway.Frame, func()) {
	ch := make(chan *gateway.Frame, 1)
	f.mu.Lock()
	f.waiters[key] = ch
	f.mu.Unlock()
	return ch, func() {
		f.mu.Lock()
		delete(f.waiters, key)
		f.mu.Unlock()
	}
}

func (f *fakeGW) fulfill(key, frameType string, payload any) {
	frame, err := gateway.NewFrame(frameType, "", payload)
	if err != nil {
		return
	}
	f.mu.Lock()
	ch := f.waiters[key]
	delete(f.waiters, key)
	f.mu.Unlock()
	if ch != nil {
		ch <- frame
	}
}

func (f *fakeGW) streamedTo(nodeID string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for key, data := range f.streamed {
		if len(key) > len(nodeID) && key[:len(nodeID)] == nodeID {
			out = append(out, data)
		}
	}
	return out
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeGW, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	cfg := config.Default()
	cfg.ServerDataPath = t.TempDir()
	cfg.BackupsPath = t.TempDir()

	gw := newFakeGW()
	arbiter := ipam.NewArbiter(0)
	engine := lifecycle.New(store, gw, broker, cfg)
	c := New(store, gw, engine, arbiter, broker, cfg)
	c.BackupWait = 2 * time.Second
	c.RestoreWait = 2 * time.Second

	for _, n := range []*types.Node{
		{ID: "node-1", Name: "worker-a", MaxMemoryMB: 8192, MaxCPUCores: 8, Online: true},
		{ID: "node-2", Name: "worker-b", MaxMemoryMB: 8192, MaxCPUCores: 8, Online: true},
	} {
		require.NoError(t, store.CreateNode(n))
	}
	require.NoError(t, store.CreateTemplate(&types.Template{
		ID: "tpl-1", Name: "minecraft", Image: "itzg/minecraft-server", Startup: "java",
	}))
	require.NoError(t, store.CreateWorkload(&types.Workload{
		ID:           "w-1",
		UUID:         "uuid-1",
		Name:         "survival",
		OwnerID:      "u-1",
		NodeID:       "node-1",
		TemplateID:   "tpl-1",
		MemoryMB:     1024,
		CPUCores:     2,
		DiskMB:       10240,
		NetworkMode:  types.NetworkBridge,
		PrimaryPort:  25565,
		PortBindings: map[int]int{25565: 25565},
		Status:       types.StatusStopped,
		BackupMode:   types.BackupStream,
		Environment:  map[string]string{},
	}))
	return c, gw, store
}

func TestTransferStreamMode(t *testing.T) {
	c, gw, store := newTestCoordinator(t)

	require.NoError(t, c.Transfer(context.Background(), "w-1", "node-2", types.BackupStream))

	w, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, "node-2", w.NodeID)
	assert.Equal(t, types.StatusStopped, w.Status)
	assert.Empty(t, w.ContainerID)
	assert.Equal(t, map[int]int{25565: 25565}, w.PortBindings)

	// The artifact bytes crossed the gateway to the target node.
	streamed := gw.streamedTo("node-2")
	require.Len(t, streamed, 1)
	assert.Equal(t, []byte(artifactContent), streamed[0])
}

func TestTransferLocalMode(t *testing.T) {
	c, gw, store := newTestCoordinator(t)

	require.NoError(t, c.Transfer(context.Background(), "w-1", "node-2", types.BackupLocal))

	w, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, "node-2", w.NodeID)

	// Shared storage: nothing is streamed, the target restores in place.
	assert.Empty(t, gw.streamedTo("node-2"))
}

func TestTransferRestoreFailureRollsBack(t *testing.T) {
	c, gw, store := newTestCoordinator(t)
	gw.restoreErr = "disk full"

	err := c.Transfer(context.Background(), "w-1", "node-2", types.BackupStream)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindTransferFailed, errdefs.KindOf(err))
	assert.Contains(t, err.Error(), "disk full")

	w, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, "node-1", w.NodeID)
	assert.Equal(t, types.StatusStopped, w.Status)
}

func TestTransferBackupTimeout(t *testing.T) {
	c, gw, store := newTestCoordinator(t)
	gw.silentBackup = true
	c.BackupWait = 50 * time.Millisecond

	err := c.Transfer(context.Background(), "w-1", "node-2", types.BackupStream)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindTransferFailed, errdefs.KindOf(err))

	w, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, "node-1", w.NodeID)
	assert.Equal(t, types.StatusStopped, w.Status)
}

func TestTransferPreflight(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		mode     types.BackupMode
		prepare  func(*fakeGW, storage.Store) error
		wantKind errdefs.Kind
	}{
		{
			name:     "target equals source",
			target:   "node-1",
			mode:     types.BackupStream,
			wantKind: errdefs.KindValidation,
		},
		{
			name:     "unknown target",
			target:   "node-9",
			mode:     types.BackupStream,
			wantKind: errdefs.KindNotFound,
		},
		{
			name:   "offline target",
			target: "node-2",
			mode:   types.BackupStream,
			prepare: func(gw *fakeGW, _ storage.Store) error {
				gw.mu.Lock()
				gw.online["node-2"] = false
				gw.mu.Unlock()
				return nil
			},
			wantKind: errdefs.KindNodeUnavailable,
		},
		{
			name:   "target lacks capacity",
			target: "node-2",
			mode:   types.BackupStream,
			prepare: func(_ *fakeGW, store storage.Store) error {
				node, err := store.GetNode("node-2")
				if err != nil {
					return err
				}
				node.MaxMemoryMB = 512
				return store.UpdateNode(node)
			},
			wantKind: errdefs.KindCapacityExceeded,
		},
		{
			name:     "s3 mode without object store",
			target:   "node-2",
			mode:     types.BackupS3,
			wantKind: errdefs.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, gw, store := newTestCoordinator(t)
			if tt.prepare != nil {
				require.NoError(t, tt.prepare(gw, store))
			}

			err := c.Transfer(context.Background(), "w-1", tt.target, tt.mode)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, errdefs.KindOf(err))

			// Preflight failures never touch the workload.
			w, err := store.GetWorkload("w-1")
			require.NoError(t, err)
			assert.Equal(t, "node-1", w.NodeID)
			assert.Equal(t, types.StatusStopped, w.Status)
		})
	}
}

func TestTransferRequiresStoppedWorkload(t *testing.T) {
	c, _, store := newTestCoordinator(t)
	w, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	w.Status = types.StatusRunning
	require.NoError(t, store.UpdateWorkload(w))

	err = c.Transfer(context.Background(), "w-1", "node-2", types.BackupStream)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindInvalidState, errdefs.KindOf(err))

	got, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, got.Status)
	assert.Equal(t, "node-1", got.NodeID)
}

func TestTransferDefaultsToWorkloadMode(t *testing.T) {
	c, gw, store := newTestCoordinator(t)

	// Empty mode falls back to the workload's own (stream).
	require.NoError(t, c.Transfer(context.Background(), "w-1", "node-2", ""))

	w, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, "node-2", w.NodeID)
	assert.Len(t, gw.streamedTo("node-2"), 1)
}

func TestTransferAsyncDetaches(t *testing.T) {
	c, _, store := newTestCoordinator(t)

	require.NoError(t, c.TransferAsync("w-1", "node-2", types.BackupStream))

	// The synchronous half already moved the workload to transferring.
	w, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	if w.Status != types.StatusStopped {
		assert.Equal(t, types.StatusTransferring, w.Status)
	}

	require.Eventually(t, func() bool {
		w, err := store.GetWorkload("w-1")
		return err == nil && w.NodeID == "node-2" && w.Status == types.StatusStopped
	}, 3*time.Second, 20*time.Millisecond)
}

func TestTransferS3ModeStages(t *testing.T) {
	c, gw, store := newTestCoordinator(t)
	c.Objects = &fakeObjects{content: []byte(artifactContent)}

	require.NoError(t, c.Transfer(context.Background(), "w-1", "node-2", types.BackupS3))

	w, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, "node-2", w.NodeID)

	streamed := gw.streamedTo("node-2")
	require.Len(t, streamed, 1)
	assert.True(t, bytes.Equal([]byte(artifactContent), streamed[0]))
}

// fakeObjects writes the configured content to the requested path
type fakeObjects struct {
	content []byte
}

func (f *fakeObjects) DownloadToFile(_ context.Context, _ string, path string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, f.content, 0o644); err != nil {
		return 0, err
	}
	return int64(len(f.content)), nil
}
