package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/catalystpanel/catalyst/pkg/events"
	"github.com/catalystpanel/catalyst/pkg/gateway"
	"github.com/catalystpanel/catalyst/pkg/metrics"
	"github.com/catalystpanel/catalyst/pkg/types"
)

// OnStatusUpdate reduces one agent-observed state into the machine. Runs on
// the workload's serial queue; illegal refinements are dropped with a log
// line rather than corrupting state.
func (e *Engine) OnStatusUpdate(nodeID string, ev *gateway.StatusUpdate) {
	e.queueFor(ev.ServerID).post(func() error {
		w, err := e.store.GetWorkload(ev.ServerID)
		if err != nil {
			e.logger.Warn().Str("server_id", ev.ServerID).Msg("status update for unknown workload dropped")
			return nil
		}

		// A stale agent may still report for a workload that moved away or
		// got suspended; its observations no longer apply.
		if w.NodeID != nodeID || w.Status == types.StatusSuspended || w.Status == types.StatusTransferring {
			if ev.ContainerID != "" && w.NodeID == nodeID {
				w.ContainerID = ev.ContainerID
				w.ContainerName = ev.ContainerName
				_ = e.store.UpdateWorkload(w)
			}
			return nil
		}

		switch ev.NewStatus {
		case "installed":
			if w.Status != types.StatusInstalling {
				return nil
			}
			e.applyStatus(w, types.StatusInstalled, ev)

		case "running":
			if w.Status != types.StatusStarting {
				return nil
			}
			e.applyStatus(w, types.StatusRunning, ev)

		case "stopped":
			switch w.Status {
			case types.StatusStopping, types.StatusStarting, types.StatusRunning, types.StatusInstalling:
			default:
				return nil
			}
			e.applyStatus(w, types.StatusStopped, ev)
			if e.takePendingRestart(w.ID) {
				// Second half of a restart: the agent brings the container
				// back by itself, the machine just tracks it.
				e.applyStatus(w, types.StatusStarting, ev)
			}

		case "crashed":
			switch w.Status {
			case types.StatusStarting, types.StatusRunning, types.StatusInstalling:
			default:
				return nil
			}
			e.setPendingRestart(w.ID, false)
			e.applyCrash(w, ev)

		default:
			e.logger.Warn().Str("status", ev.NewStatus).Str("workload_id", w.ID).Msg("unknown status update dropped")
		}
		return nil
	})
}

// applyStatus persists one legal refinement
func (e *Engine) applyStatus(w *types.Workload, next types.WorkloadStatus, ev *gateway.StatusUpdate) {
	prev := w.Status
	w.Status = next
	if ev.ContainerID != "" {
		w.ContainerID = ev.ContainerID
		w.ContainerName = ev.ContainerName
	}
	w.UpdatedAt = time.Now()
	if err := e.store.UpdateWorkload(w); err != nil {
		e.logger.Error().Err(err).Str("workload_id", w.ID).Msg("status persist failed")
		return
	}
	e.systemLog(w.ID, fmt.Sprintf("state %s -> %s (agent)", prev, next))
	e.broker.PublishWorkload(events.EventWorkloadStateChanged, w.NodeID, w.ID, string(next))
}

// applyCrash records the crash and enforces the restart policy
func (e *Engine) applyCrash(w *types.Workload, ev *gateway.StatusUpdate) {
	w.Status = types.StatusCrashed
	w.CrashCount++
	w.LastCrashAt = time.Now()
	w.UpdatedAt = w.LastCrashAt
	if err := e.store.UpdateWorkload(w); err != nil {
		e.logger.Error().Err(err).Str("workload_id", w.ID).Msg("crash persist failed")
		return
	}

	metrics.WorkloadCrashes.Inc()
	e.systemLog(w.ID, fmt.Sprintf("crashed (count %d)", w.CrashCount))
	e.broker.PublishWorkload(events.EventWorkloadCrashed, w.NodeID, w.ID, fmt.Sprintf("crash %d", w.CrashCount))

	if w.RestartPolicy == types.RestartNever {
		return
	}
	if w.MaxCrashCount > 0 && w.CrashCount > w.MaxCrashCount {
		e.systemLog(w.ID, "crash limit reached; manual reset required")
		e.broker.PublishWorkload(events.EventWorkloadCrashLimit, w.NodeID, w.ID, "")
		return
	}

	workloadID := w.ID
	time.AfterFunc(e.CrashRestartDelay, func() {
		metrics.CrashRestarts.Inc()
		if err := e.Start(context.Background(), workloadID); err != nil {
			e.logger.Warn().Err(err).Str("workload_id", workloadID).Msg("automatic restart failed")
		}
	})
}

// OnBackupComplete records the artifact. The transfer coordinator receives
// its own correlated copy from the gateway.
func (e *Engine) OnBackupComplete(nodeID string, ev *gateway.BackupComplete) {
	backup, err := e.store.GetBackup(ev.BackupID)
	if err != nil {
		e.logger.Warn().Str("backup_id", ev.BackupID).Msg("completion for unknown backup dropped")
		return
	}
	backup.Path = ev.Path
	backup.SizeMB = ev.SizeMB
	if err := e.store.CreateBackup(backup); err != nil {
		e.logger.Warn().Err(err).Str("backup_id", ev.BackupID).Msg("backup update failed")
		return
	}
	metrics.BackupsTotal.WithLabelValues(string(backup.Mode), "ok").Inc()
	e.systemLog(ev.ServerID, fmt.Sprintf("backup %s completed (%d MiB)", backup.Name, ev.SizeMB))
	e.broker.PublishWorkload(events.EventBackupCompleted, nodeID, ev.ServerID, backup.Name)
}

// OnRestoreComplete only logs; the coordinator owns the state outcome
func (e *Engine) OnRestoreComplete(nodeID string, ev *gateway.RestoreComplete) {
	if ev.OK {
		e.systemLog(ev.ServerID, "restore completed")
		return
	}
	e.systemLog(ev.ServerID, fmt.Sprintf("restore failed: %s", ev.Err))
}
