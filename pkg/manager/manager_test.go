package manager

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalystpanel/catalyst/pkg/access"
	"github.com/catalystpanel/catalyst/pkg/config"
	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.ServerDataPath = t.TempDir()
	cfg.ServerFilesRoot = cfg.ServerDataPath
	cfg.SFTPHostKey = filepath.Join(cfg.DataDir, "sftp_host_key")
	cfg.BackupsPath = filepath.Join(cfg.DataDir, "backups")

	m, err := NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown() })
	return m
}

// seedAdmin exercises the bootstrap path: the first role and user are
// created without any fleet permission.
func seedAdmin(t *testing.T, m *Manager) *types.User {
	t.Helper()
	role, err := m.CreateRole("", "admin", []string{access.PermWildcard})
	require.NoError(t, err)
	admin, err := m.CreateUser("", "root", []string{role.ID})
	require.NoError(t, err)
	return admin
}

func seedNode(t *testing.T, m *Manager, actor, name string) *types.Node {
	t.Helper()
	node, err := m.RegisterNode(actor, RegisterNodeRequest{
		Name:        name,
		Address:     "10.0.0.10",
		MaxMemoryMB: 8192,
		MaxCPUCores: 8,
	})
	require.NoError(t, err)
	return node
}

func seedTemplate(t *testing.T, m *Manager, actor string) *types.Template {
	t.Helper()
	tpl, err := m.CreateTemplate(actor, &types.Template{
		Name:            "minecraft",
		Image:           "itzg/minecraft-server:java21",
		Startup:         "java -Xmx{{MEMORY}}M -jar server.jar",
		Ports:           []int{25565},
		DefaultMemoryMB: 2048,
		DefaultCPUCores: 2,
		DefaultDiskMB:   10240,
		Variables: []types.TemplateVariable{
			{Name: "EULA", Default: "TRUE"},
		},
	})
	require.NoError(t, err)
	return tpl
}

func seedWorkload(t *testing.T, m *Manager, owner, nodeID, tplID, name string, port int) *types.Workload {
	t.Helper()
	w, err := m.CreateWorkload(owner, CreateWorkloadRequest{
		Name:        name,
		NodeID:      nodeID,
		TemplateID:  tplID,
		NetworkMode: types.NetworkBridge,
		PrimaryPort: port,
	})
	require.NoError(t, err)
	return w
}

func setStatus(t *testing.T, m *Manager, id string, status types.WorkloadStatus) {
	t.Helper()
	w, err := m.store.GetWorkload(id)
	require.NoError(t, err)
	w.Status = status
	require.NoError(t, m.store.UpdateWorkload(w))
}

func TestBootstrapAndLogin(t *testing.T) {
	m := newTestManager(t)
	admin := seedAdmin(t, m)

	sess, err := m.Login(admin.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)

	userID, err := m.Sessions.Validate(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, userID)

	_, err = m.Login("ghost")
	require.Error(t, err)
	assert.Equal(t, errdefs.KindAuthFailed, errdefs.KindOf(err))
}

func TestCreateUserGatedAfterBootstrap(t *testing.T) {
	m := newTestManager(t)
	admin := seedAdmin(t, m)

	plain, err := m.CreateUser(admin.ID, "alice", nil)
	require.NoError(t, err)

	// A user without the fleet permission cannot mint more users.
	_, err = m.CreateUser(plain.ID, "mallory", nil)
	require.Error(t, err)

	_, err = m.CreateRole(plain.ID, "ops", []string{PermNodeView})
	require.Error(t, err)
}

func TestCreateWorkloadAppliesTemplateDefaults(t *testing.T) {
	m := newTestManager(t)
	admin := seedAdmin(t, m)
	node := seedNode(t, m, admin.ID, "worker-a")
	tpl := seedTemplate(t, m, admin.ID)

	w, err := m.CreateWorkload(admin.ID, CreateWorkloadRequest{
		Name:        "survival",
		NodeID:      node.ID,
		TemplateID:  tpl.ID,
		NetworkMode: types.NetworkBridge,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2048), w.MemoryMB)
	assert.Equal(t, float64(2), w.CPUCores)
	assert.Equal(t, int64(10240), w.DiskMB)
	assert.Equal(t, 25565, w.PrimaryPort)
	assert.Equal(t, map[int]int{25565: 25565}, w.PortBindings)
	assert.Equal(t, types.StatusStopped, w.Status)
	assert.Equal(t, types.RestartOnFailure, w.RestartPolicy)
	assert.Equal(t, DefaultMaxCrashCount, w.MaxCrashCount)
	assert.Equal(t, admin.ID, w.OwnerID)

	// The owner's permission row is written in the same transaction.
	grants, err := m.store.ListAccessByWorkload(w.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, admin.ID, grants[0].UserID)
	assert.Equal(t, access.DefaultOwnerPermissions, grants[0].Permissions)
}

func TestCreateWorkloadHostPortConflict(t *testing.T) {
	m := newTestManager(t)
	admin := seedAdmin(t, m)
	node := seedNode(t, m, admin.ID, "worker-a")
	tpl := seedTemplate(t, m, admin.ID)

	seedWorkload(t, m, admin.ID, node.ID, tpl.ID, "one", 25565)

	_, err := m.CreateWorkload(admin.ID, CreateWorkloadRequest{
		Name:        "two",
		NodeID:      node.ID,
		TemplateID:  tpl.ID,
		NetworkMode: types.NetworkBridge,
		PrimaryPort: 25565,
	})
	require.Error(t, err)
	assert.Equal(t, errdefs.KindAllocationConflict, errdefs.KindOf(err))

	// Another node is free to use the same port.
	other := seedNode(t, m, admin.ID, "worker-b")
	seedWorkload(t, m, admin.ID, other.ID, tpl.ID, "three", 25565)
}

func TestCreateWorkloadValidation(t *testing.T) {
	m := newTestManager(t)
	admin := seedAdmin(t, m)
	node := seedNode(t, m, admin.ID, "worker-a")
	tpl := seedTemplate(t, m, admin.ID)

	tests := []struct {
		name string
		req  CreateWorkloadRequest
	}{
		{
			name: "missing name",
			req:  CreateWorkloadRequest{NodeID: node.ID, TemplateID: tpl.ID, NetworkMode: types.NetworkBridge},
		},
		{
			name: "bad network mode",
			req:  CreateWorkloadRequest{Name: "x", NodeID: node.ID, TemplateID: tpl.ID, NetworkMode: "overlay"},
		},
		{
			name: "ipam without network name",
			req:  CreateWorkloadRequest{Name: "x", NodeID: node.ID, TemplateID: tpl.ID, NetworkMode: types.NetworkMacvlanStatic},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.CreateWorkload(admin.ID, tt.req)
			require.Error(t, err)
			assert.Equal(t, errdefs.KindValidation, errdefs.KindOf(err))
		})
	}
}

func TestCreateWorkloadExceedingNodeCapacity(t *testing.T) {
	m := newTestManager(t)
	admin := seedAdmin(t, m)
	node := seedNode(t, m, admin.ID, "worker-a")
	tpl := seedTemplate(t, m, admin.ID)

	_, err := m.CreateWorkload(admin.ID, CreateWorkloadRequest{
		Name:        "huge",
		NodeID:      node.ID,
		TemplateID:  tpl.ID,
		NetworkMode: types.NetworkBridge,
		MemoryMB:    16384,
	})
	require.Error(t, err)
	assert.Equal(t, errdefs.KindCapacityExceeded, errdefs.KindOf(err))
}

func TestUpdateWorkloadResourceGating(t *testing.T) {
	m := newTestManager(t)
	admin := seedAdmin(t, m)
	node := seedNode(t, m, admin.ID, "worker-a")
	tpl := seedTemplate(t, m, admin.ID)
	w := seedWorkload(t, m, admin.ID, node.ID, tpl.ID, "survival", 25565)

	setStatus(t, m, w.ID, types.StatusRunning)

	mem := int64(4096)
	_, err := m.UpdateWorkload(admin.ID, w.ID, UpdateWorkloadRequest{MemoryMB: &mem})
	require.Error(t, err)
	assert.Equal(t, errdefs.KindInvalidState, errdefs.KindOf(err))

	// Cosmetic fields stay editable while running.
	name := "renamed"
	updated, err := m.UpdateWorkload(admin.ID, w.ID, UpdateWorkloadRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)

	setStatus(t, m, w.ID, types.StatusStopped)
	updated, err = m.UpdateWorkload(admin.ID, w.ID, UpdateWorkloadRequest{MemoryMB: &mem})
	require.NoError(t, err)
	assert.Equal(t, int64(4096), updated.MemoryMB)
}

func TestUpdateWorkloadPortConflict(t *testing.T) {
	m := newTestManager(t)
	admin := seedAdmin(t, m)
	node := seedNode(t, m, admin.ID, "worker-a")
	tpl := seedTemplate(t, m, admin.ID)
	seedWorkload(t, m, admin.ID, node.ID, tpl.ID, "one", 25565)
	w := seedWorkload(t, m, admin.ID, node.ID, tpl.ID, "two", 25570)

	port := 25565
	_, err := m.UpdateWorkload(admin.ID, w.ID, UpdateWorkloadRequest{PrimaryPort: &port})
	require.Error(t, err)
	assert.Equal(t, errdefs.KindAllocationConflict, errdefs.KindOf(err))

	// The failed transaction leaves the old binding in place.
	got, err := m.store.GetWorkload(w.ID)
	require.NoError(t, err)
	assert.Equal(t, 25570, got.PrimaryPort)
	assert.Equal(t, map[int]int{25570: 25570}, got.PortBindings)
}

func TestSuspensionGatesLifecycle(t *testing.T) {
	m := newTestManager(t)
	admin := seedAdmin(t, m)
	node := seedNode(t, m, admin.ID, "worker-a")
	tpl := seedTemplate(t, m, admin.ID)
	w := seedWorkload(t, m, admin.ID, node.ID, tpl.ID, "survival", 25565)

	require.NoError(t, m.SuspendWorkload(context.Background(), admin.ID, w.ID, "chargeback"))

	err := m.StartWorkload(context.Background(), admin.ID, w.ID)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindLocked, errdefs.KindOf(err))

	require.NoError(t, m.UnsuspendWorkload(context.Background(), admin.ID, w.ID))

	// The gate is lifted; the dispatch now fails only because no agent is
	// connected.
	err = m.StartWorkload(context.Background(), admin.ID, w.ID)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindNodeUnavailable, errdefs.KindOf(err))
}

func TestResetCrashesWhileSuspended(t *testing.T) {
	m := newTestManager(t)
	admin := seedAdmin(t, m)
	node := seedNode(t, m, admin.ID, "worker-a")
	tpl := seedTemplate(t, m, admin.ID)
	w := seedWorkload(t, m, admin.ID, node.ID, tpl.ID, "survival", 25565)

	require.NoError(t, m.SuspendWorkload(context.Background(), admin.ID, w.ID, "abuse"))

	err := m.ResetCrashCount(admin.ID, w.ID)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindLocked, errdefs.KindOf(err))

	m.cfg.ResetCrashesWhileSuspended = true
	require.NoError(t, m.ResetCrashCount(admin.ID, w.ID))
}

func TestDeleteWorkloadRules(t *testing.T) {
	m := newTestManager(t)
	admin := seedAdmin(t, m)
	node := seedNode(t, m, admin.ID, "worker-a")
	tpl := seedTemplate(t, m, admin.ID)
	w := seedWorkload(t, m, admin.ID, node.ID, tpl.ID, "survival", 25565)

	setStatus(t, m, w.ID, types.StatusRunning)
	err := m.DeleteWorkload(admin.ID, w.ID)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindInvalidState, errdefs.KindOf(err))

	setStatus(t, m, w.ID, types.StatusStopped)
	require.NoError(t, m.DeleteWorkload(admin.ID, w.ID))

	_, err = m.GetWorkload(admin.ID, w.ID)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindNotFound, errdefs.KindOf(err))

	grants, err := m.store.ListAccessByWorkload(w.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)

	// The freed port is available again.
	seedWorkload(t, m, admin.ID, node.ID, tpl.ID, "replacement", 25565)
}

func TestWorkloadVisibility(t *testing.T) {
	m := newTestManager(t)
	admin := seedAdmin(t, m)
	node := seedNode(t, m, admin.ID, "worker-a")
	tpl := seedTemplate(t, m, admin.ID)
	w := seedWorkload(t, m, admin.ID, node.ID, tpl.ID, "survival", 25565)

	alice, err := m.CreateUser(admin.ID, "alice", nil)
	require.NoError(t, err)

	// No grant: the workload does not exist for alice.
	_, err = m.GetWorkload(alice.ID, w.ID)
	require.Error(t, err)

	visible, err := m.ListWorkloads(alice.ID)
	require.NoError(t, err)
	assert.Empty(t, visible)

	_, err = m.GrantAccess(admin.ID, w.ID, alice.ID, []string{access.PermServerView, access.PermLogsView})
	require.NoError(t, err)

	got, err := m.GetWorkload(alice.ID, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)

	visible, err = m.ListWorkloads(alice.ID)
	require.NoError(t, err)
	require.Len(t, visible, 1)

	// View does not imply mutate.
	err = m.StartWorkload(context.Background(), alice.ID, w.ID)
	require.Error(t, err)
}

func TestGrantReplacesExistingRow(t *testing.T) {
	m := newTestManager(t)
	admin := seedAdmin(t, m)
	node := seedNode(t, m, admin.ID, "worker-a")
	tpl := seedTemplate(t, m, admin.ID)
	w := seedWorkload(t, m, admin.ID, node.ID, tpl.ID, "survival", 25565)

	alice, err := m.CreateUser(admin.ID, "alice", nil)
	require.NoError(t, err)

	_, err = m.GrantAccess(admin.ID, w.ID, alice.ID, []string{access.PermServerView})
	require.NoError(t, err)
	second, err := m.GrantAccess(admin.ID, w.ID, alice.ID, []string{access.PermServerView, access.PermFileRead})
	require.NoError(t, err)

	grants, err := m.ListAccess(admin.ID, w.ID)
	require.NoError(t, err)

	var aliceRows []*types.WorkloadAccess
	for _, g := range grants {
		if g.UserID == alice.ID {
			aliceRows = append(aliceRows, g)
		}
	}
	require.Len(t, aliceRows, 1)
	assert.Equal(t, second.ID, aliceRows[0].ID)
	assert.Equal(t, []string{access.PermServerView, access.PermFileRead}, aliceRows[0].Permissions)
}

func TestRegisterNodeRules(t *testing.T) {
	m := newTestManager(t)
	admin := seedAdmin(t, m)

	node := seedNode(t, m, admin.ID, "worker-a")
	assert.NotEmpty(t, node.AgentKey, "the key is returned exactly once")

	_, err := m.RegisterNode(admin.ID, RegisterNodeRequest{Name: "worker-a", MaxMemoryMB: 1, MaxCPUCores: 1})
	require.Error(t, err)
	assert.Equal(t, errdefs.KindAllocationConflict, errdefs.KindOf(err))

	_, err = m.RegisterNode(admin.ID, RegisterNodeRequest{Name: "worker-b"})
	require.Error(t, err)
	assert.Equal(t, errdefs.KindValidation, errdefs.KindOf(err))

	// Keys are redacted on list.
	nodes, err := m.ListNodes(admin.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Empty(t, nodes[0].AgentKey)

	alice, err := m.CreateUser(admin.ID, "alice", nil)
	require.NoError(t, err)
	_, err = m.RegisterNode(alice.ID, RegisterNodeRequest{Name: "worker-c", MaxMemoryMB: 1, MaxCPUCores: 1})
	require.Error(t, err)
}

func TestDeleteNodeRefusedWhileHosting(t *testing.T) {
	m := newTestManager(t)
	admin := seedAdmin(t, m)
	node := seedNode(t, m, admin.ID, "worker-a")
	tpl := seedTemplate(t, m, admin.ID)
	w := seedWorkload(t, m, admin.ID, node.ID, tpl.ID, "survival", 25565)

	err := m.DeleteNode(admin.ID, node.ID)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindInvalidState, errdefs.KindOf(err))

	require.NoError(t, m.DeleteWorkload(admin.ID, w.ID))
	require.NoError(t, m.DeleteNode(admin.ID, node.ID))
}

func TestIPAMWorkloadLifecycle(t *testing.T) {
	m := newTestManager(t)
	admin := seedAdmin(t, m)
	node := seedNode(t, m, admin.ID, "worker-a")
	tpl := seedTemplate(t, m, admin.ID)

	_, err := m.AddIPPool(admin.ID, node.ID, "lan", []string{"10.0.5.10", "10.0.5.11"})
	require.NoError(t, err)

	w, err := m.CreateWorkload(admin.ID, CreateWorkloadRequest{
		Name:        "static",
		NodeID:      node.ID,
		TemplateID:  tpl.ID,
		NetworkMode: types.NetworkMacvlanStatic,
		NetworkName: "lan",
	})
	require.NoError(t, err)
	assert.Contains(t, []string{"10.0.5.10", "10.0.5.11"}, w.PrimaryIP)

	// Delete returns the address to the pool.
	require.NoError(t, m.DeleteWorkload(admin.ID, w.ID))

	pools, err := m.ListIPPools(admin.ID, node.ID)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Len(t, pools[0].Free, 2)
	assert.Empty(t, pools[0].Reserved)
}

func TestImportTemplateAndDeleteGuard(t *testing.T) {
	m := newTestManager(t)
	admin := seedAdmin(t, m)
	node := seedNode(t, m, admin.ID, "worker-a")

	raw := []byte(`{
		"name": "valheim",
		"image": "lloesche/valheim-server",
		"startup": "/usr/local/bin/bootstrap",
		"ports": [2456],
		"defaultMemoryMb": 4096,
		"defaultCpuCores": 2,
		"defaultDiskMb": 20480
	}`)
	tpl, err := m.ImportTemplate(admin.ID, raw)
	require.NoError(t, err)
	assert.NotEmpty(t, tpl.ID)
	assert.Equal(t, "valheim", tpl.Name)

	w := seedWorkload(t, m, admin.ID, node.ID, tpl.ID, "vikings", 2456)

	err = m.DeleteTemplate(admin.ID, tpl.ID)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindInvalidState, errdefs.KindOf(err))

	require.NoError(t, m.DeleteWorkload(admin.ID, w.ID))
	require.NoError(t, m.DeleteTemplate(admin.ID, tpl.ID))
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	m := newTestManager(t)
	admin := seedAdmin(t, m)
	node := seedNode(t, m, admin.ID, "worker-a")
	tpl := seedTemplate(t, m, admin.ID)
	seedWorkload(t, m, admin.ID, node.ID, tpl.ID, "survival", 25565)

	// The writer is asynchronous; Close drains it.
	m.Auditor.Close()

	entries, err := m.AuditLog(admin.ID, 50)
	require.NoError(t, err)

	actions := make(map[string]bool, len(entries))
	for _, e := range entries {
		actions[e.Action] = true
	}
	assert.True(t, actions["node.register"])
	assert.True(t, actions["template.create"])
	assert.True(t, actions["workload.create"])
}

func TestWorkloadMetricsReadPath(t *testing.T) {
	m := newTestManager(t)
	admin := seedAdmin(t, m)
	node := seedNode(t, m, admin.ID, "worker-a")
	tpl := seedTemplate(t, m, admin.ID)
	w := seedWorkload(t, m, admin.ID, node.ID, tpl.ID, "survival", 25565)

	var samples []*types.MetricSample
	for i := 0; i < 4; i++ {
		samples = append(samples, &types.MetricSample{
			WorkloadID: w.ID,
			Timestamp:  time.Now(),
			CPUPercent: float64(i + 1),
			MemoryMiB:  1024,
		})
	}
	require.NoError(t, m.store.AppendMetricSamples(samples))

	got, err := m.WorkloadMetrics(admin.ID, w.ID, 0)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, 1.0, got[0].CPUPercent)

	tail, err := m.WorkloadMetrics(admin.ID, w.ID, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, 3.0, tail[0].CPUPercent)

	stranger, err := m.CreateUser(admin.ID, "stranger", nil)
	require.NoError(t, err)
	_, err = m.WorkloadMetrics(stranger.ID, w.ID, 0)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindForbidden, errdefs.KindOf(err))
}
