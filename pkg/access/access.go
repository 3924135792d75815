package access

import (
	"strings"

	"github.com/catalystpanel/catalyst/pkg/config"
	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/storage"
	"github.com/catalystpanel/catalyst/pkg/types"
)

// Permission tokens recognized by the evaluator. Roles and grants may also
// carry the wildcard "*".
const (
	PermWildcard  = "*"
	PermAdminRead = "admin.read"

	PermServerView     = "server.view"
	PermServerStart    = "server.start"
	PermServerStop     = "server.stop"
	PermServerRestart  = "server.restart"
	PermServerInstall  = "server.install"
	PermServerUpdate   = "server.update"
	PermServerDelete   = "server.delete"
	PermServerSuspend  = "server.suspend"
	PermServerTransfer = "server.transfer"

	PermFileRead   = "file.read"
	PermFileWrite  = "file.write"
	PermFileDelete = "file.delete"

	PermLogsView     = "logs.view"
	PermAccessManage = "access.manage"
)

// DefaultOwnerPermissions is written for the owner when a workload is
// created. The owner is implicitly permitted anyway; the row makes the
// grant visible and editable.
var DefaultOwnerPermissions = []string{
	PermServerView, PermServerStart, PermServerStop, PermServerRestart,
	PermServerInstall, PermServerUpdate, PermServerDelete,
	PermFileRead, PermFileWrite, PermFileDelete,
	PermLogsView, PermAccessManage,
}

// Evaluator answers whether a principal may perform an action on a
// workload. It never mutates state: a denial is returned as a classified
// error, an accept as nil.
type Evaluator struct {
	store storage.Store
	cfg   *config.Config
}

// NewEvaluator creates an evaluator reading grants and roles from store
// and gating flags from cfg.
func NewEvaluator(store storage.Store, cfg *config.Config) *Evaluator {
	return &Evaluator{store: store, cfg: cfg}
}

// Can reports whether the user holds the permission on the workload,
// ignoring suspension gating. Decision order, short-circuiting on accept:
// ownership, per-workload grant rows, then roles.
func (e *Evaluator) Can(userID string, w *types.Workload, perm string) error {
	if w.OwnerID == userID {
		return nil
	}

	grants, err := e.store.ListAccessByWorkload(w.ID)
	if err != nil {
		return err
	}
	for _, g := range grants {
		if g.UserID != userID {
			continue
		}
		if containsPermission(g.Permissions, perm) {
			return nil
		}
	}

	ok, err := e.roleAllows(userID, perm)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	return errdefs.Forbidden(perm)
}

// CanMutate is Can plus suspension gating for state-changing operations.
// When the workload is suspended and enforcement is on, everything except
// unsuspend is Locked; unsuspend callers use Can directly.
func (e *Evaluator) CanMutate(userID string, w *types.Workload, perm string) error {
	if err := e.Can(userID, w, perm); err != nil {
		return err
	}
	if w.Suspended() && e.cfg.SuspensionEnforced {
		return errdefs.Locked("workload is suspended")
	}
	return nil
}

// CanDelete gates delete separately: with the delete policy set to block,
// a suspended workload cannot be deleted even by its owner.
func (e *Evaluator) CanDelete(userID string, w *types.Workload) error {
	if err := e.Can(userID, w, PermServerDelete); err != nil {
		return err
	}
	if w.Suspended() && e.cfg.SuspensionEnforced && e.cfg.BlocksDelete() {
		return errdefs.Locked("workload is suspended and the delete policy blocks removal")
	}
	return nil
}

// CanResetCrashes gates the crash-counter reset, which is permitted in any
// lifecycle state but optionally blocked while suspended.
func (e *Evaluator) CanResetCrashes(userID string, w *types.Workload) error {
	if err := e.Can(userID, w, PermServerUpdate); err != nil {
		return err
	}
	if w.Suspended() && e.cfg.SuspensionEnforced && !e.cfg.ResetCrashesWhileSuspended {
		return errdefs.Locked("workload is suspended")
	}
	return nil
}

// CanFleet answers fleet-scoped checks with no workload context (node and
// template administration, audit reads). Only roles apply.
func (e *Evaluator) CanFleet(userID string, perm string) error {
	ok, err := e.roleAllows(userID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return errdefs.Forbidden(perm)
	}
	return nil
}

func (e *Evaluator) roleAllows(userID, perm string) (bool, error) {
	user, err := e.store.GetUser(userID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	for _, roleID := range user.RoleIDs {
		role, err := e.store.GetRole(roleID)
		if err != nil {
			if errdefs.IsNotFound(err) {
				continue
			}
			return false, err
		}
		if containsPermission(role.Permissions, perm) {
			return true, nil
		}
		if isReadScope(perm) && contains(role.Permissions, PermAdminRead) {
			return true, nil
		}
	}
	return false, nil
}

func containsPermission(perms []string, perm string) bool {
	for _, p := range perms {
		if p == PermWildcard || p == perm {
			return true
		}
	}
	return false
}

func contains(perms []string, perm string) bool {
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// isReadScope reports whether a permission only observes state. admin.read
// covers exactly these.
func isReadScope(perm string) bool {
	switch perm {
	case PermServerView, PermFileRead, PermLogsView:
		return true
	}
	return strings.HasSuffix(perm, ".read") || strings.HasSuffix(perm, ".view")
}
