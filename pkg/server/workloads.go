package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/catalystpanel/catalyst/pkg/manager"
	"github.com/catalystpanel/catalyst/pkg/types"
)

type createWorkloadRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	NodeID      string `json:"nodeId"`
	TemplateID  string `json:"templateId"`
	Location    string `json:"location"`

	MemoryMB int64   `json:"memoryMb"`
	CPUCores float64 `json:"cpuCores"`
	DiskMB   int64   `json:"diskMb"`

	NetworkMode  string      `json:"networkMode"`
	NetworkName  string      `json:"networkName"`
	PrimaryPort  int         `json:"primaryPort"`
	PortBindings map[int]int `json:"portBindings"`
	RequestedIP  string      `json:"requestedIp"`

	Environment map[string]string `json:"environment"`

	RestartPolicy string `json:"restartPolicy"`
	MaxCrashCount int    `json:"maxCrashCount"`
	BackupMode    string `json:"backupMode"`
}

func (s *Server) handleCreateWorkload(w http.ResponseWriter, r *http.Request) {
	var req createWorkloadRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	workload, err := s.mgr.CreateWorkload(principal(r), manager.CreateWorkloadRequest{
		Name:          req.Name,
		Description:   req.Description,
		NodeID:        req.NodeID,
		TemplateID:    req.TemplateID,
		Location:      req.Location,
		MemoryMB:      req.MemoryMB,
		CPUCores:      req.CPUCores,
		DiskMB:        req.DiskMB,
		NetworkMode:   types.NetworkMode(req.NetworkMode),
		NetworkName:   req.NetworkName,
		PrimaryPort:   req.PrimaryPort,
		PortBindings:  req.PortBindings,
		RequestedIP:   req.RequestedIP,
		Environment:   req.Environment,
		RestartPolicy: types.RestartPolicy(req.RestartPolicy),
		MaxCrashCount: req.MaxCrashCount,
		BackupMode:    types.BackupMode(req.BackupMode),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, workload)
}

func (s *Server) handleListWorkloads(w http.ResponseWriter, r *http.Request) {
	workloads, err := s.mgr.ListWorkloads(principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, workloads)
}

func (s *Server) handleGetWorkload(w http.ResponseWriter, r *http.Request) {
	workload, err := s.mgr.GetWorkload(principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, workload)
}

type updateWorkloadRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`

	MemoryMB *int64   `json:"memoryMb"`
	CPUCores *float64 `json:"cpuCores"`
	DiskMB   *int64   `json:"diskMb"`

	PrimaryPort  *int         `json:"primaryPort"`
	PortBindings *map[int]int `json:"portBindings"`

	Environment *map[string]string `json:"environment"`

	RestartPolicy *string `json:"restartPolicy"`
	MaxCrashCount *int    `json:"maxCrashCount"`

	BackupMode     *string `json:"backupMode"`
	RetentionCount *int    `json:"retentionCount"`
	RetentionDays  *int    `json:"retentionDays"`
}

func (s *Server) handleUpdateWorkload(w http.ResponseWriter, r *http.Request) {
	var req updateWorkloadRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	upd := manager.UpdateWorkloadRequest{
		Name:           req.Name,
		Description:    req.Description,
		MemoryMB:       req.MemoryMB,
		CPUCores:       req.CPUCores,
		DiskMB:         req.DiskMB,
		PrimaryPort:    req.PrimaryPort,
		PortBindings:   req.PortBindings,
		Environment:    req.Environment,
		MaxCrashCount:  req.MaxCrashCount,
		RetentionCount: req.RetentionCount,
		RetentionDays:  req.RetentionDays,
	}
	if req.RestartPolicy != nil {
		p := types.RestartPolicy(*req.RestartPolicy)
		upd.RestartPolicy = &p
	}
	if req.BackupMode != nil {
		m := types.BackupMode(*req.BackupMode)
		upd.BackupMode = &m
	}

	workload, err := s.mgr.UpdateWorkload(principal(r), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, workload)
}

func (s *Server) handleDeleteWorkload(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.DeleteWorkload(principal(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

// lifecycleHandler adapts the install/start/stop/restart manager methods,
// which share a signature, into handlers.
func (s *Server) lifecycleHandler(op func(ctx context.Context, actor, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := op(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusAccepted, nil)
	}
}

func (s *Server) handleSuspend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.mgr.SuspendWorkload(r.Context(), principal(r), chi.URLParam(r, "id"), req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleUnsuspend(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.UnsuspendWorkload(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleResetCrashes(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.ResetCrashCount(principal(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetNodeID string `json:"targetNodeId"`
		Mode         string `json:"mode"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	// Transfers run for minutes; the request detaches once the workload
	// is in transferring. Failures land in the workload's system log and
	// the event stream.
	err := s.mgr.TransferWorkloadAsync(principal(r), chi.URLParam(r, "id"),
		req.TargetNodeID, types.BackupMode(req.Mode))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusAccepted, nil)
}

func (s *Server) handleWorkloadLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.mgr.WorkloadLogs(principal(r), chi.URLParam(r, "id"), queryInt(r, "limit", 200))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, logs)
}

func (s *Server) handleWorkloadMetrics(w http.ResponseWriter, r *http.Request) {
	samples, err := s.mgr.WorkloadMetrics(principal(r), chi.URLParam(r, "id"), queryInt(r, "limit", 200))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, samples)
}
