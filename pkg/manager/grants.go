package manager

import (
	"time"

	"github.com/google/uuid"

	"github.com/catalystpanel/catalyst/pkg/access"
	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/types"
)

// User and role administration is fleet-scoped
const PermUserManage = "user.manage"

// GrantAccess gives a user a permission set on one workload. Requires the
// access.manage permission on that workload.
func (m *Manager) GrantAccess(actor, workloadID, userID string, perms []string) (*types.WorkloadAccess, error) {
	w, err := m.store.GetWorkload(workloadID)
	if err != nil {
		return nil, err
	}
	if err := m.Evaluator.Can(actor, w, access.PermAccessManage); err != nil {
		return nil, err
	}
	if len(perms) == 0 {
		return nil, errdefs.Validation("a grant needs at least one permission")
	}
	if _, err := m.store.GetUser(userID); err != nil {
		return nil, err
	}

	// One row per user per workload: a re-grant replaces the set.
	existing, err := m.store.ListAccessByWorkload(workloadID)
	if err != nil {
		return nil, err
	}
	for _, g := range existing {
		if g.UserID == userID {
			if err := m.store.DeleteAccess(g.ID); err != nil {
				return nil, err
			}
		}
	}

	grant := &types.WorkloadAccess{
		ID:          uuid.New().String(),
		UserID:      userID,
		WorkloadID:  workloadID,
		Permissions: perms,
		CreatedAt:   time.Now(),
	}
	if err := m.store.CreateAccess(grant); err != nil {
		return nil, err
	}

	m.Auditor.Record(actor, "access.grant", "workload", workloadID, map[string]any{
		"user": userID, "permissions": perms,
	})
	return grant, nil
}

// ListAccess returns the grant rows on a workload
func (m *Manager) ListAccess(actor, workloadID string) ([]*types.WorkloadAccess, error) {
	w, err := m.store.GetWorkload(workloadID)
	if err != nil {
		return nil, err
	}
	if err := m.Evaluator.Can(actor, w, access.PermAccessManage); err != nil {
		return nil, err
	}
	return m.store.ListAccessByWorkload(workloadID)
}

// RevokeAccess removes one grant row
func (m *Manager) RevokeAccess(actor, workloadID, grantID string) error {
	w, err := m.store.GetWorkload(workloadID)
	if err != nil {
		return err
	}
	if err := m.Evaluator.Can(actor, w, access.PermAccessManage); err != nil {
		return err
	}

	grants, err := m.store.ListAccessByWorkload(workloadID)
	if err != nil {
		return err
	}
	for _, g := range grants {
		if g.ID == grantID {
			if err := m.store.DeleteAccess(grantID); err != nil {
				return err
			}
			m.Auditor.Record(actor, "access.revoke", "workload", workloadID, map[string]string{
				"user": g.UserID,
			})
			return nil
		}
	}
	return errdefs.NotFound("access grant", grantID)
}

// CreateUser registers a principal. Bootstrap path: when no user exists
// yet, the first create is allowed without a fleet permission so the
// operator can seed an admin.
func (m *Manager) CreateUser(actor, name string, roleIDs []string) (*types.User, error) {
	users, err := m.store.ListUsers()
	if err != nil {
		return nil, err
	}
	if len(users) > 0 {
		if err := m.Evaluator.CanFleet(actor, PermUserManage); err != nil {
			return nil, err
		}
	}
	if name == "" {
		return nil, errdefs.Validation("user name is required")
	}

	u := &types.User{
		ID:        uuid.New().String(),
		Name:      name,
		RoleIDs:   roleIDs,
		CreatedAt: time.Now(),
	}
	if err := m.store.CreateUser(u); err != nil {
		return nil, err
	}
	m.Auditor.Record(actor, "user.create", "user", u.ID, map[string]string{"name": name})
	return u, nil
}

// ListUsers returns every principal
func (m *Manager) ListUsers(actor string) ([]*types.User, error) {
	if err := m.Evaluator.CanFleet(actor, PermUserManage); err != nil {
		if err2 := m.Evaluator.CanFleet(actor, access.PermAdminRead); err2 != nil {
			return nil, err
		}
	}
	return m.store.ListUsers()
}

// CreateRole registers a named permission set
func (m *Manager) CreateRole(actor, name string, perms []string) (*types.Role, error) {
	users, err := m.store.ListUsers()
	if err != nil {
		return nil, err
	}
	if len(users) > 0 {
		if err := m.Evaluator.CanFleet(actor, PermUserManage); err != nil {
			return nil, err
		}
	}
	if name == "" {
		return nil, errdefs.Validation("role name is required")
	}

	r := &types.Role{
		ID:          uuid.New().String(),
		Name:        name,
		Permissions: perms,
		CreatedAt:   time.Now(),
	}
	if err := m.store.CreateRole(r); err != nil {
		return nil, err
	}
	m.Auditor.Record(actor, "role.create", "role", r.ID, map[string]any{
		"name": name, "permissions": perms,
	})
	return r, nil
}

// ListRoles returns every role
func (m *Manager) ListRoles(actor string) ([]*types.Role, error) {
	if err := m.Evaluator.CanFleet(actor, PermUserManage); err != nil {
		if err2 := m.Evaluator.CanFleet(actor, access.PermAdminRead); err2 != nil {
			return nil, err
		}
	}
	return m.store.ListRoles()
}

// AuditLog returns the newest audit entries, admin-read gated
func (m *Manager) AuditLog(actor string, limit int) ([]*types.AuditEntry, error) {
	if err := m.Evaluator.CanFleet(actor, access.PermAdminRead); err != nil {
		return nil, err
	}
	return m.store.ListAudit(limit)
}
