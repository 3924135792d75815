package manager

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/catalystpanel/catalyst/pkg/access"
	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/events"
	"github.com/catalystpanel/catalyst/pkg/filetree"
	"github.com/catalystpanel/catalyst/pkg/ipam"
	"github.com/catalystpanel/catalyst/pkg/storage"
	"github.com/catalystpanel/catalyst/pkg/types"
)

// Defaults applied to new workloads when the request leaves them unset
const (
	DefaultMaxCrashCount  = 3
	DefaultRetentionCount = 3
)

// CreateWorkloadRequest carries everything needed to admit a new workload
type CreateWorkloadRequest struct {
	Name        string
	Description string
	NodeID      string
	TemplateID  string
	Location    string

	MemoryMB int64
	CPUCores float64
	DiskMB   int64

	NetworkMode  types.NetworkMode
	NetworkName  string
	PrimaryPort  int
	PortBindings map[int]int
	RequestedIP  string

	Environment map[string]string

	RestartPolicy types.RestartPolicy
	MaxCrashCount int
	BackupMode    types.BackupMode
}

// CreateWorkload admits and persists a new workload in one transaction:
// capacity check, port arbitration, IP allocation, workload insert, and the
// owner's default permission row.
func (m *Manager) CreateWorkload(actor string, req CreateWorkloadRequest) (*types.Workload, error) {
	if req.Name == "" {
		return nil, errdefs.Validation("workload name is required")
	}
	if !req.NetworkMode.Valid() {
		return nil, errdefs.Newf(errdefs.KindValidation, "unknown network mode %q", req.NetworkMode)
	}
	if req.NetworkMode.IsIPAM() && req.NetworkName == "" {
		return nil, errdefs.Validation("ipam network mode requires a network name")
	}

	tpl, err := m.store.GetTemplate(req.TemplateID)
	if err != nil {
		return nil, err
	}
	if _, err := m.store.GetNode(req.NodeID); err != nil {
		return nil, err
	}

	if req.MemoryMB <= 0 {
		req.MemoryMB = tpl.DefaultMemoryMB
	}
	if req.CPUCores <= 0 {
		req.CPUCores = tpl.DefaultCPUCores
	}
	if req.DiskMB <= 0 {
		req.DiskMB = tpl.DefaultDiskMB
	}
	if req.MemoryMB <= 0 || req.CPUCores <= 0 || req.DiskMB <= 0 {
		return nil, errdefs.Validation("memory, cpu, and disk allocations must be positive")
	}
	if req.PrimaryPort == 0 && len(tpl.Ports) > 0 {
		req.PrimaryPort = tpl.Ports[0]
	}
	if req.RestartPolicy == "" {
		req.RestartPolicy = types.RestartOnFailure
	}
	if req.MaxCrashCount <= 0 {
		req.MaxCrashCount = DefaultMaxCrashCount
	}
	if req.BackupMode == "" {
		req.BackupMode = types.BackupStream
	}

	now := time.Now()
	w := &types.Workload{
		ID:             uuid.New().String(),
		UUID:           uuid.New().String(),
		Name:           req.Name,
		Description:    req.Description,
		OwnerID:        actor,
		NodeID:         req.NodeID,
		Location:       req.Location,
		TemplateID:     req.TemplateID,
		MemoryMB:       req.MemoryMB,
		CPUCores:       req.CPUCores,
		DiskMB:         req.DiskMB,
		NetworkMode:    req.NetworkMode,
		NetworkName:    req.NetworkName,
		PrimaryPort:    req.PrimaryPort,
		Environment:    req.Environment,
		Status:         types.StatusStopped,
		RestartPolicy:  req.RestartPolicy,
		MaxCrashCount:  req.MaxCrashCount,
		BackupMode:     req.BackupMode,
		RetentionCount: DefaultRetentionCount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if w.Environment == nil {
		w.Environment = make(map[string]string)
	}

	err = m.store.Transact(func(tx storage.Tx) error {
		res, err := m.Arbiter.Allocate(tx, ipam.Request{
			NodeID:       w.NodeID,
			MemoryMB:     w.MemoryMB,
			CPUCores:     w.CPUCores,
			DiskMB:       w.DiskMB,
			NetworkMode:  w.NetworkMode,
			NetworkName:  w.NetworkName,
			PrimaryPort:  w.PrimaryPort,
			PortBindings: req.PortBindings,
			RequestedIP:  req.RequestedIP,
		})
		if err != nil {
			return err
		}
		w.PortBindings = res.PortBindings
		w.PrimaryIP = res.PrimaryIP

		if err := tx.PutWorkload(w); err != nil {
			return err
		}
		return tx.PutAccess(&types.WorkloadAccess{
			ID:          uuid.New().String(),
			UserID:      actor,
			WorkloadID:  w.ID,
			Permissions: access.DefaultOwnerPermissions,
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}

	m.Auditor.Record(actor, "workload.create", "workload", w.ID, req)
	m.Broker.PublishWorkload(events.EventWorkloadCreated, w.NodeID, w.ID, w.Name)
	return w, nil
}

// GetWorkload returns one workload the actor may view
func (m *Manager) GetWorkload(actor, id string) (*types.Workload, error) {
	w, err := m.store.GetWorkload(id)
	if err != nil {
		return nil, err
	}
	if err := m.Evaluator.Can(actor, w, access.PermServerView); err != nil {
		return nil, err
	}
	return w, nil
}

// ListWorkloads returns the workloads visible to the actor: everything for
// fleet readers, otherwise owned plus granted.
func (m *Manager) ListWorkloads(actor string) ([]*types.Workload, error) {
	all, err := m.store.ListWorkloads()
	if err != nil {
		return nil, err
	}
	if m.Evaluator.CanFleet(actor, access.PermAdminRead) == nil {
		return all, nil
	}

	grants, err := m.store.ListAccessByUser(actor)
	if err != nil {
		return nil, err
	}
	granted := make(map[string]bool, len(grants))
	for _, g := range grants {
		granted[g.WorkloadID] = true
	}

	visible := make([]*types.Workload, 0, len(all))
	for _, w := range all {
		if w.OwnerID == actor || granted[w.ID] {
			visible = append(visible, w)
		}
	}
	return visible, nil
}

// UpdateWorkloadRequest carries the mutable workload fields. Nil pointers
// leave the field untouched.
type UpdateWorkloadRequest struct {
	Name        *string
	Description *string

	MemoryMB *int64
	CPUCores *float64
	DiskMB   *int64

	PrimaryPort  *int
	PortBindings *map[int]int

	Environment *map[string]string

	RestartPolicy *types.RestartPolicy
	MaxCrashCount *int

	BackupMode     *types.BackupMode
	RetentionCount *int
	RetentionDays  *int
}

// touchesAllocations reports whether the update needs re-arbitration
func (r UpdateWorkloadRequest) touchesAllocations() bool {
	return r.MemoryMB != nil || r.CPUCores != nil || r.DiskMB != nil ||
		r.PrimaryPort != nil || r.PortBindings != nil
}

// UpdateWorkload applies the request. Resource and binding changes require
// the workload to be stopped and re-run admission in one transaction.
func (m *Manager) UpdateWorkload(actor, id string, req UpdateWorkloadRequest) (*types.Workload, error) {
	w, err := m.store.GetWorkload(id)
	if err != nil {
		return nil, err
	}
	if err := m.Evaluator.CanMutate(actor, w, access.PermServerUpdate); err != nil {
		return nil, err
	}
	if req.touchesAllocations() && w.Status != types.StatusStopped {
		return nil, errdefs.Newf(errdefs.KindInvalidState,
			"resource changes require a stopped workload, state is %s", w.Status)
	}

	diskChanged := false
	var updated *types.Workload
	err = m.store.Transact(func(tx storage.Tx) error {
		w, err := tx.GetWorkload(id)
		if err != nil {
			return err
		}

		if req.Name != nil {
			w.Name = *req.Name
		}
		if req.Description != nil {
			w.Description = *req.Description
		}
		if req.Environment != nil {
			w.Environment = *req.Environment
		}
		if req.RestartPolicy != nil {
			w.RestartPolicy = *req.RestartPolicy
		}
		if req.MaxCrashCount != nil {
			w.MaxCrashCount = *req.MaxCrashCount
		}
		if req.BackupMode != nil {
			w.BackupMode = *req.BackupMode
		}
		if req.RetentionCount != nil {
			w.RetentionCount = *req.RetentionCount
		}
		if req.RetentionDays != nil {
			w.RetentionDays = *req.RetentionDays
		}

		if req.touchesAllocations() {
			if req.MemoryMB != nil {
				w.MemoryMB = *req.MemoryMB
			}
			if req.CPUCores != nil {
				w.CPUCores = *req.CPUCores
			}
			if req.DiskMB != nil {
				diskChanged = *req.DiskMB != w.DiskMB
				w.DiskMB = *req.DiskMB
			}
			if req.PrimaryPort != nil {
				w.PrimaryPort = *req.PrimaryPort
			}
			bindings := w.PortBindings
			if req.PortBindings != nil {
				bindings = *req.PortBindings
			}

			// Release the held address first so re-arbitration can
			// reacquire the same one inside this transaction.
			if w.NetworkMode.IsIPAM() && w.PrimaryIP != "" {
				if err := m.Arbiter.ReleaseIP(tx, w.ID); err != nil {
					return err
				}
			}

			res, err := m.Arbiter.Allocate(tx, ipam.Request{
				WorkloadID:   w.ID,
				NodeID:       w.NodeID,
				MemoryMB:     w.MemoryMB,
				CPUCores:     w.CPUCores,
				DiskMB:       w.DiskMB,
				NetworkMode:  w.NetworkMode,
				NetworkName:  w.NetworkName,
				PrimaryPort:  w.PrimaryPort,
				PortBindings: bindings,
				RequestedIP:  w.PrimaryIP,
			})
			if err != nil {
				return err
			}
			w.PortBindings = res.PortBindings
			if res.PrimaryIP != "" {
				w.PrimaryIP = res.PrimaryIP
			}
		}

		w.UpdatedAt = time.Now()
		updated = w
		return tx.PutWorkload(w)
	})
	if err != nil {
		return nil, err
	}

	if diskChanged && m.Gateway.Online(updated.NodeID) {
		// Best-effort: the agent reconciles storage on the next start
		// anyway if this is lost.
		_ = m.Engine.ResizeStorage(context.Background(), updated.ID)
	}

	m.Auditor.Record(actor, "workload.update", "workload", id, nil)
	m.Broker.PublishWorkload(events.EventWorkloadUpdated, updated.NodeID, updated.ID, "")
	return updated, nil
}

// DeleteWorkload removes a workload from the stopped state (or suspended,
// when the delete policy allows), releasing its IP in the same transaction.
func (m *Manager) DeleteWorkload(actor, id string) error {
	w, err := m.store.GetWorkload(id)
	if err != nil {
		return err
	}
	if err := m.Evaluator.CanDelete(actor, w); err != nil {
		return err
	}
	if w.Status != types.StatusStopped && w.Status != types.StatusSuspended {
		return errdefs.Newf(errdefs.KindInvalidState,
			"delete requires a stopped workload, state is %s", w.Status)
	}

	err = m.store.Transact(func(tx storage.Tx) error {
		if err := m.Arbiter.ReleaseIP(tx, id); err != nil {
			return err
		}
		if err := tx.DeleteAccessByWorkload(id); err != nil {
			return err
		}
		return tx.DeleteWorkload(id)
	})
	if err != nil {
		return err
	}

	// The on-disk tree is gone state; a leftover directory is harmless.
	_ = os.RemoveAll(filepath.Join(m.cfg.ServerDataPath, w.UUID))

	m.Auditor.Record(actor, "workload.delete", "workload", id, nil)
	m.Broker.PublishWorkload(events.EventWorkloadDeleted, w.NodeID, id, w.Name)
	return nil
}

// Lifecycle wrappers: permission check, then the engine's state machine.

func (m *Manager) InstallWorkload(ctx context.Context, actor, id string) error {
	if err := m.canMutate(actor, id, access.PermServerInstall); err != nil {
		return err
	}
	m.Auditor.Record(actor, "workload.install", "workload", id, nil)
	return m.Engine.Install(ctx, id)
}

func (m *Manager) StartWorkload(ctx context.Context, actor, id string) error {
	if err := m.canMutate(actor, id, access.PermServerStart); err != nil {
		return err
	}
	m.Auditor.Record(actor, "workload.start", "workload", id, nil)
	return m.Engine.Start(ctx, id)
}

func (m *Manager) StopWorkload(ctx context.Context, actor, id string) error {
	if err := m.canMutate(actor, id, access.PermServerStop); err != nil {
		return err
	}
	m.Auditor.Record(actor, "workload.stop", "workload", id, nil)
	return m.Engine.Stop(ctx, id)
}

func (m *Manager) RestartWorkload(ctx context.Context, actor, id string) error {
	if err := m.canMutate(actor, id, access.PermServerRestart); err != nil {
		return err
	}
	m.Auditor.Record(actor, "workload.restart", "workload", id, nil)
	return m.Engine.Restart(ctx, id)
}

// SuspendWorkload takes the workload out of service. Suspension is an
// administrative action, not gated by the workload's own suspension state.
func (m *Manager) SuspendWorkload(ctx context.Context, actor, id, reason string) error {
	w, err := m.store.GetWorkload(id)
	if err != nil {
		return err
	}
	if err := m.Evaluator.Can(actor, w, access.PermServerSuspend); err != nil {
		return err
	}
	m.Auditor.Record(actor, "workload.suspend", "workload", id, map[string]string{"reason": reason})
	return m.Engine.Suspend(ctx, id, actor, reason)
}

func (m *Manager) UnsuspendWorkload(ctx context.Context, actor, id string) error {
	w, err := m.store.GetWorkload(id)
	if err != nil {
		return err
	}
	if err := m.Evaluator.Can(actor, w, access.PermServerSuspend); err != nil {
		return err
	}
	m.Auditor.Record(actor, "workload.unsuspend", "workload", id, nil)
	return m.Engine.Unsuspend(ctx, id)
}

func (m *Manager) ResetCrashCount(actor, id string) error {
	w, err := m.store.GetWorkload(id)
	if err != nil {
		return err
	}
	if err := m.Evaluator.CanResetCrashes(actor, w); err != nil {
		return err
	}
	m.Auditor.Record(actor, "workload.reset_crashes", "workload", id, nil)
	return m.Engine.ResetCrashCount(id)
}

// TransferWorkload moves a stopped workload to another node
func (m *Manager) TransferWorkload(ctx context.Context, actor, id, targetNodeID string, mode types.BackupMode) error {
	w, err := m.store.GetWorkload(id)
	if err != nil {
		return err
	}
	if err := m.Evaluator.CanMutate(actor, w, access.PermServerTransfer); err != nil {
		return err
	}
	m.Auditor.Record(actor, "workload.transfer", "workload", id, map[string]string{
		"target": targetNodeID, "mode": string(mode),
	})
	return m.Transfers.Transfer(ctx, id, targetNodeID, mode)
}

// TransferWorkloadAsync is TransferWorkload with the byte-moving phase
// detached: a nil return means preflight passed and the workload is in
// transferring.
func (m *Manager) TransferWorkloadAsync(actor, id, targetNodeID string, mode types.BackupMode) error {
	w, err := m.store.GetWorkload(id)
	if err != nil {
		return err
	}
	if err := m.Evaluator.CanMutate(actor, w, access.PermServerTransfer); err != nil {
		return err
	}
	m.Auditor.Record(actor, "workload.transfer", "workload", id, map[string]string{
		"target": targetNodeID, "mode": string(mode),
	})
	return m.Transfers.TransferAsync(id, targetNodeID, mode)
}

// WorkloadLogs returns the newest log entries for a workload
func (m *Manager) WorkloadLogs(actor, id string, limit int) ([]*types.WorkloadLog, error) {
	w, err := m.store.GetWorkload(id)
	if err != nil {
		return nil, err
	}
	if err := m.Evaluator.Can(actor, w, access.PermLogsView); err != nil {
		return nil, err
	}
	return m.store.ListWorkloadLogs(id, limit)
}

// WorkloadMetrics returns the newest resource samples for a workload
func (m *Manager) WorkloadMetrics(actor, id string, limit int) ([]*types.MetricSample, error) {
	w, err := m.store.GetWorkload(id)
	if err != nil {
		return nil, err
	}
	if err := m.Evaluator.Can(actor, w, access.PermServerView); err != nil {
		return nil, err
	}
	return m.store.ListMetricSamples(id, limit)
}

// FileTree opens the workload's chroot-confined tree after checking the
// actor holds the file permission the operation needs.
func (m *Manager) FileTree(actor, id, perm string) (*filetree.Tree, error) {
	w, err := m.store.GetWorkload(id)
	if err != nil {
		return nil, err
	}
	if err := m.Evaluator.Can(actor, w, perm); err != nil {
		return nil, err
	}
	return filetree.Open(m.cfg.ServerDataPath, w.UUID)
}

func (m *Manager) canMutate(actor, id, perm string) error {
	w, err := m.store.GetWorkload(id)
	if err != nil {
		return err
	}
	return m.Evaluator.CanMutate(actor, w, perm)
}
