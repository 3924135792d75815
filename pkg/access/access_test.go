package access

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalystpanel/catalyst/pkg/config"
	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/storage"
	"github.com/catalystpanel/catalyst/pkg/types"
)

type fixture struct {
	store storage.Store
	cfg   *config.Config
	eval  *Evaluator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	return &fixture{store: store, cfg: cfg, eval: NewEvaluator(store, cfg)}
}

func (f *fixture) workload(suspended bool) *types.Workload {
	w := &types.Workload{ID: "w-1", UUID: "uuid-1", OwnerID: "owner", Status: types.StatusStopped}
	if suspended {
		now := time.Now()
		w.Status = types.StatusSuspended
		w.SuspendedAt = &now
	}
	return w
}

func TestOwnerAlwaysPermitted(t *testing.T) {
	f := newFixture(t)
	w := f.workload(false)

	assert.NoError(t, f.eval.Can("owner", w, PermServerStart))
	assert.NoError(t, f.eval.Can("owner", w, PermFileDelete))
	assert.NoError(t, f.eval.Can("owner", w, "anything.at.all"))
}

func TestGrantRows(t *testing.T) {
	f := newFixture(t)
	w := f.workload(false)

	require.NoError(t, f.store.CreateAccess(&types.WorkloadAccess{
		ID: "a-1", WorkloadID: "w-1", UserID: "friend",
		Permissions: []string{PermServerStart, PermFileRead},
	}))
	require.NoError(t, f.store.CreateAccess(&types.WorkloadAccess{
		ID: "a-2", WorkloadID: "w-1", UserID: "admin-friend",
		Permissions: []string{PermWildcard},
	}))

	assert.NoError(t, f.eval.Can("friend", w, PermServerStart))
	err := f.eval.Can("friend", w, PermServerDelete)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindForbidden, errdefs.KindOf(err))

	assert.NoError(t, f.eval.Can("admin-friend", w, PermServerDelete))

	err = f.eval.Can("stranger", w, PermServerView)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindForbidden, errdefs.KindOf(err))
}

func TestRoleWildcardAndAdminRead(t *testing.T) {
	f := newFixture(t)
	w := f.workload(false)

	require.NoError(t, f.store.CreateRole(&types.Role{ID: "r-admin", Name: "admin", Permissions: []string{PermWildcard}}))
	require.NoError(t, f.store.CreateRole(&types.Role{ID: "r-viewer", Name: "viewer", Permissions: []string{PermAdminRead}}))
	require.NoError(t, f.store.CreateUser(&types.User{ID: "root", RoleIDs: []string{"r-admin"}}))
	require.NoError(t, f.store.CreateUser(&types.User{ID: "auditor", RoleIDs: []string{"r-viewer"}}))

	assert.NoError(t, f.eval.Can("root", w, PermServerDelete))

	// admin.read grants read scopes only
	assert.NoError(t, f.eval.Can("auditor", w, PermServerView))
	assert.NoError(t, f.eval.Can("auditor", w, PermLogsView))
	err := f.eval.Can("auditor", w, PermServerStop)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindForbidden, errdefs.KindOf(err))
}

func TestSuspensionGating(t *testing.T) {
	f := newFixture(t)
	w := f.workload(true)

	// Owner passes the permission check but mutation is locked
	err := f.eval.CanMutate("owner", w, PermServerStart)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindLocked, errdefs.KindOf(err))

	// Reads are not gated
	assert.NoError(t, f.eval.Can("owner", w, PermServerView))

	// Enforcement off disables the gate
	f.cfg.SuspensionEnforced = false
	assert.NoError(t, f.eval.CanMutate("owner", w, PermServerStart))
}

func TestDeletePolicy(t *testing.T) {
	f := newFixture(t)
	w := f.workload(true)

	// Default policy allows delete for the owner even while suspended
	assert.NoError(t, f.eval.CanDelete("owner", w))

	f.cfg.SuspensionDeletePolicy = config.DeleteBlock
	err := f.eval.CanDelete("owner", w)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindLocked, errdefs.KindOf(err))

	// Not suspended: policy irrelevant
	assert.NoError(t, f.eval.CanDelete("owner", f.workload(false)))
}

func TestResetCrashesGate(t *testing.T) {
	f := newFixture(t)
	w := f.workload(true)

	err := f.eval.CanResetCrashes("owner", w)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindLocked, errdefs.KindOf(err))

	f.cfg.ResetCrashesWhileSuspended = true
	assert.NoError(t, f.eval.CanResetCrashes("owner", w))
}

func TestCanFleet(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.store.CreateRole(&types.Role{ID: "r-admin", Name: "admin", Permissions: []string{PermWildcard}}))
	require.NoError(t, f.store.CreateUser(&types.User{ID: "root", RoleIDs: []string{"r-admin"}}))
	require.NoError(t, f.store.CreateUser(&types.User{ID: "pleb"}))

	assert.NoError(t, f.eval.CanFleet("root", "node.create"))

	err := f.eval.CanFleet("pleb", "node.create")
	require.Error(t, err)
	assert.Equal(t, errdefs.KindForbidden, errdefs.KindOf(err))

	err = f.eval.CanFleet("ghost", "node.create")
	require.Error(t, err)
	assert.Equal(t, errdefs.KindForbidden, errdefs.KindOf(err))
}
