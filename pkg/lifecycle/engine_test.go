package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalystpanel/catalyst/pkg/config"
	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/events"
	"github.com/catalystpanel/catalyst/pkg/gateway"
	"github.com/catalystpanel/catalyst/pkg/storage"
	"github.com/catalystpanel/catalyst/pkg/types"
)

// fakeDispatcher records every command the engine sends
type fakeDispatcher struct {
	mu     sync.Mutex
	sent   []sentCommand
	online bool
	err    error
}

type sentCommand struct {
	nodeID  string
	cmdType string
	cmd     *gateway.Command
}

func (d *fakeDispatcher) Send(_ context.Context, nodeID, cmdType string, cmd *gateway.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, sentCommand{nodeID: nodeID, cmdType: cmdType, cmd: cmd})
	return nil
}

func (d *fakeDispatcher) Online(string) bool { return d.online }

func (d *fakeDispatcher) commands() []sentCommand {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]sentCommand, len(d.sent))
	copy(out, d.sent)
	return out
}

func newTestEngine(t *testing.T) (*Engine, *fakeDispatcher, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	cfg := config.Default()
	cfg.ServerDataPath = t.TempDir()

	gw := &fakeDispatcher{online: true}
	e := New(store, gw, broker, cfg)
	e.CrashRestartDelay = 10 * time.Millisecond
	return e, gw, store
}

func seedWorkload(t *testing.T, store storage.Store, status types.WorkloadStatus) *types.Workload {
	t.Helper()
	tpl := &types.Template{
		ID:      "tpl-1",
		Name:    "minecraft",
		Image:   "itzg/minecraft-server",
		Startup: "java -jar server.jar",
		Variables: []types.TemplateVariable{
			{Name: "EULA", Default: "TRUE"},
		},
	}
	require.NoError(t, store.CreateTemplate(tpl))

	w := &types.Workload{
		ID:            "w-1",
		UUID:          "uuid-1",
		Name:          "survival",
		OwnerID:       "u-1",
		NodeID:        "node-1",
		TemplateID:    tpl.ID,
		MemoryMB:      1024,
		CPUCores:      2,
		DiskMB:        10240,
		NetworkMode:   types.NetworkBridge,
		PrimaryPort:   25565,
		Status:        status,
		RestartPolicy: types.RestartOnFailure,
		MaxCrashCount: 3,
		Environment:   map[string]string{"MOTD": "hello"},
	}
	require.NoError(t, store.CreateWorkload(w))
	return w
}

// flush waits for queued event reductions to land
func flush(t *testing.T, e *Engine, workloadID string) {
	t.Helper()
	require.NoError(t, e.Do(workloadID, func() error { return nil }))
}

func TestCommandTransitions(t *testing.T) {
	tests := []struct {
		name     string
		from     types.WorkloadStatus
		run      func(*Engine) error
		want     types.WorkloadStatus
		wantKind errdefs.Kind
	}{
		{
			name: "install from stopped",
			from: types.StatusStopped,
			run:  func(e *Engine) error { return e.Install(context.Background(), "w-1") },
			want: types.StatusInstalling,
		},
		{
			name: "start from installed",
			from: types.StatusInstalled,
			run:  func(e *Engine) error { return e.Start(context.Background(), "w-1") },
			want: types.StatusStarting,
		},
		{
			name: "start from crashed",
			from: types.StatusCrashed,
			run:  func(e *Engine) error { return e.Start(context.Background(), "w-1") },
			want: types.StatusStarting,
		},
		{
			name:     "start from running rejected",
			from:     types.StatusRunning,
			run:      func(e *Engine) error { return e.Start(context.Background(), "w-1") },
			wantKind: errdefs.KindInvalidState,
		},
		{
			name: "stop from running",
			from: types.StatusRunning,
			run:  func(e *Engine) error { return e.Stop(context.Background(), "w-1") },
			want: types.StatusStopping,
		},
		{
			name:     "stop from stopped rejected",
			from:     types.StatusStopped,
			run:      func(e *Engine) error { return e.Stop(context.Background(), "w-1") },
			wantKind: errdefs.KindInvalidState,
		},
		{
			name: "restart from running",
			from: types.StatusRunning,
			run:  func(e *Engine) error { return e.Restart(context.Background(), "w-1") },
			want: types.StatusStopping,
		},
		{
			name:     "restart from stopped rejected",
			from:     types.StatusStopped,
			run:      func(e *Engine) error { return e.Restart(context.Background(), "w-1") },
			wantKind: errdefs.KindInvalidState,
		},
		{
			name:     "install while transferring rejected",
			from:     types.StatusTransferring,
			run:      func(e *Engine) error { return e.Install(context.Background(), "w-1") },
			wantKind: errdefs.KindInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, gw, store := newTestEngine(t)
			seedWorkload(t, store, tt.from)

			err := tt.run(e)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, errdefs.KindOf(err))
				assert.Empty(t, gw.commands())
				return
			}
			require.NoError(t, err)

			w, err := store.GetWorkload("w-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, w.Status)
			require.Len(t, gw.commands(), 1)
		})
	}
}

func TestCommandPayloadCarriesComposedEnvironment(t *testing.T) {
	e, gw, store := newTestEngine(t)
	seedWorkload(t, store, types.StatusStopped)

	require.NoError(t, e.Start(context.Background(), "w-1"))

	cmds := gw.commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "node-1", cmds[0].nodeID)
	assert.Equal(t, gateway.CmdStartServer, cmds[0].cmdType)
	assert.Equal(t, "TRUE", cmds[0].cmd.Environment["EULA"])
	assert.Equal(t, "hello", cmds[0].cmd.Environment["MOTD"])
	assert.Contains(t, cmds[0].cmd.Environment[EnvServerDir], "uuid-1")
	assert.Equal(t, int64(1024), cmds[0].cmd.MemoryMB)
}

func TestSuspensionBlocksCommands(t *testing.T) {
	e, gw, store := newTestEngine(t)
	w := seedWorkload(t, store, types.StatusSuspended)
	now := time.Now()
	w.SuspendedAt = &now
	require.NoError(t, store.UpdateWorkload(w))

	err := e.Start(context.Background(), "w-1")
	require.Error(t, err)
	assert.Equal(t, errdefs.KindLocked, errdefs.KindOf(err))
	assert.Empty(t, gw.commands())
}

func TestDispatchFailureLeavesStateUntouched(t *testing.T) {
	e, gw, store := newTestEngine(t)
	seedWorkload(t, store, types.StatusStopped)
	gw.err = errdefs.New(errdefs.KindNodeUnavailable, "no session")

	err := e.Start(context.Background(), "w-1")
	require.Error(t, err)

	w, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusStopped, w.Status)
}

func TestStatusUpdateRefinement(t *testing.T) {
	e, _, store := newTestEngine(t)
	seedWorkload(t, store, types.StatusStarting)

	e.OnStatusUpdate("node-1", &gateway.StatusUpdate{
		ServerID:      "w-1",
		NewStatus:     "running",
		ContainerID:   "c-1",
		ContainerName: "catalyst-w-1",
	})
	flush(t, e, "w-1")

	w, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, w.Status)
	assert.Equal(t, "c-1", w.ContainerID)
}

func TestStatusUpdateIllegalRefinementDropped(t *testing.T) {
	e, _, store := newTestEngine(t)
	seedWorkload(t, store, types.StatusStopped)

	// "running" without a preceding start command does not apply.
	e.OnStatusUpdate("node-1", &gateway.StatusUpdate{ServerID: "w-1", NewStatus: "running"})
	flush(t, e, "w-1")

	w, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusStopped, w.Status)
}

func TestStatusUpdateFromWrongNodeIgnored(t *testing.T) {
	e, _, store := newTestEngine(t)
	seedWorkload(t, store, types.StatusStarting)

	e.OnStatusUpdate("node-2", &gateway.StatusUpdate{ServerID: "w-1", NewStatus: "running"})
	flush(t, e, "w-1")

	w, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusStarting, w.Status)
}

func TestRestartPassesThroughBothHalves(t *testing.T) {
	e, gw, store := newTestEngine(t)
	seedWorkload(t, store, types.StatusRunning)

	require.NoError(t, e.Restart(context.Background(), "w-1"))
	cmds := gw.commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, gateway.CmdRestartServer, cmds[0].cmdType)

	// The agent reports the stop half; the machine expects the start half
	// to follow without a second command.
	e.OnStatusUpdate("node-1", &gateway.StatusUpdate{ServerID: "w-1", NewStatus: "stopped"})
	flush(t, e, "w-1")

	w, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusStarting, w.Status)

	e.OnStatusUpdate("node-1", &gateway.StatusUpdate{ServerID: "w-1", NewStatus: "running", ContainerID: "c-2"})
	flush(t, e, "w-1")

	w, err = store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, w.Status)
	assert.Len(t, gw.commands(), 1)
}

func TestCrashTriggersAutomaticRestart(t *testing.T) {
	e, gw, store := newTestEngine(t)
	seedWorkload(t, store, types.StatusRunning)

	e.OnStatusUpdate("node-1", &gateway.StatusUpdate{ServerID: "w-1", NewStatus: "crashed"})
	flush(t, e, "w-1")

	w, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, 1, w.CrashCount)
	assert.False(t, w.LastCrashAt.IsZero())

	// The delayed restart dispatches start_server and moves to starting.
	require.Eventually(t, func() bool {
		w, err := store.GetWorkload("w-1")
		return err == nil && w.Status == types.StatusStarting
	}, 2*time.Second, 10*time.Millisecond)

	cmds := gw.commands()
	require.NotEmpty(t, cmds)
	assert.Equal(t, gateway.CmdStartServer, cmds[len(cmds)-1].cmdType)
}

func TestCrashWithNeverPolicyStaysDown(t *testing.T) {
	e, gw, store := newTestEngine(t)
	w := seedWorkload(t, store, types.StatusRunning)
	w.RestartPolicy = types.RestartNever
	require.NoError(t, store.UpdateWorkload(w))

	e.OnStatusUpdate("node-1", &gateway.StatusUpdate{ServerID: "w-1", NewStatus: "crashed"})
	flush(t, e, "w-1")

	time.Sleep(50 * time.Millisecond)
	got, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCrashed, got.Status)
	assert.Empty(t, gw.commands())
}

func TestCrashLimitStopsRestarting(t *testing.T) {
	e, gw, store := newTestEngine(t)
	w := seedWorkload(t, store, types.StatusRunning)
	w.MaxCrashCount = 2
	w.CrashCount = 2
	require.NoError(t, store.UpdateWorkload(w))

	e.OnStatusUpdate("node-1", &gateway.StatusUpdate{ServerID: "w-1", NewStatus: "crashed"})
	flush(t, e, "w-1")

	time.Sleep(50 * time.Millisecond)
	got, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCrashed, got.Status)
	assert.Equal(t, 3, got.CrashCount)
	assert.Empty(t, gw.commands())
}

func TestResetCrashCount(t *testing.T) {
	e, _, store := newTestEngine(t)
	w := seedWorkload(t, store, types.StatusCrashed)
	w.CrashCount = 5
	w.LastCrashAt = time.Now()
	require.NoError(t, store.UpdateWorkload(w))

	require.NoError(t, e.ResetCrashCount("w-1"))

	got, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Zero(t, got.CrashCount)
	assert.True(t, got.LastCrashAt.IsZero())
}

func TestSuspendAndUnsuspend(t *testing.T) {
	e, gw, store := newTestEngine(t)
	seedWorkload(t, store, types.StatusRunning)

	require.NoError(t, e.Suspend(context.Background(), "w-1", "admin", "payment overdue"))

	w, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuspended, w.Status)
	assert.Equal(t, "admin", w.SuspendedBy)
	assert.Equal(t, "payment overdue", w.SuspensionReason)
	require.NotNil(t, w.SuspendedAt)

	// A running workload gets a best-effort stop first.
	cmds := gw.commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, gateway.CmdStopServer, cmds[0].cmdType)

	require.NoError(t, e.Unsuspend(context.Background(), "w-1"))

	w, err = store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusStopped, w.Status)
	assert.Nil(t, w.SuspendedAt)
	assert.Empty(t, w.SuspendedBy)
	assert.Empty(t, w.SuspensionReason)
}

func TestSuspendWhileTransferringRejected(t *testing.T) {
	e, _, store := newTestEngine(t)
	seedWorkload(t, store, types.StatusTransferring)

	err := e.Suspend(context.Background(), "w-1", "admin", "x")
	require.Error(t, err)
	assert.Equal(t, errdefs.KindInvalidState, errdefs.KindOf(err))
}

func TestStaleEventsDuringSuspensionIgnored(t *testing.T) {
	e, _, store := newTestEngine(t)
	seedWorkload(t, store, types.StatusSuspended)

	e.OnStatusUpdate("node-1", &gateway.StatusUpdate{ServerID: "w-1", NewStatus: "stopped"})
	flush(t, e, "w-1")

	w, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuspended, w.Status)
}

func TestBeginTransferRequiresStopped(t *testing.T) {
	tests := []struct {
		name     string
		from     types.WorkloadStatus
		wantKind errdefs.Kind
	}{
		{name: "from stopped", from: types.StatusStopped},
		{name: "from running rejected", from: types.StatusRunning, wantKind: errdefs.KindInvalidState},
		{name: "from crashed rejected", from: types.StatusCrashed, wantKind: errdefs.KindInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, store := newTestEngine(t)
			seedWorkload(t, store, tt.from)

			err := e.BeginTransfer("w-1")
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, errdefs.KindOf(err))
				return
			}
			require.NoError(t, err)

			w, err := store.GetWorkload("w-1")
			require.NoError(t, err)
			assert.Equal(t, types.StatusTransferring, w.Status)
		})
	}
}

func TestFailTransferReturnsToStopped(t *testing.T) {
	e, _, store := newTestEngine(t)
	seedWorkload(t, store, types.StatusStopped)

	require.NoError(t, e.BeginTransfer("w-1"))
	e.FailTransfer("w-1", errdefs.New(errdefs.KindNodeUnavailable, "target gone"))

	w, err := store.GetWorkload("w-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusStopped, w.Status)
	assert.Equal(t, "node-1", w.NodeID)
}
