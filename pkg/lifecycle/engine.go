package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/catalystpanel/catalyst/pkg/config"
	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/events"
	"github.com/catalystpanel/catalyst/pkg/gateway"
	"github.com/catalystpanel/catalyst/pkg/log"
	"github.com/catalystpanel/catalyst/pkg/storage"
	"github.com/catalystpanel/catalyst/pkg/types"
)

// DefaultCrashRestartDelay spaces automatic restarts after a crash
const DefaultCrashRestartDelay = 5 * time.Second

// Dispatcher is the gateway surface the engine dispatches through
type Dispatcher interface {
	Send(ctx context.Context, nodeID, cmdType string, cmd *gateway.Command) error
	Online(nodeID string) bool
}

// Engine owns the workload state machine: it validates transitions, emits
// agent commands, reduces agent events, and persists the results. All work
// for one workload is serialized through its queue.
type Engine struct {
	store  storage.Store
	gw     Dispatcher
	broker *events.Broker
	cfg    *config.Config

	qmu    sync.Mutex
	queues map[string]*queue

	rmu            sync.Mutex
	pendingRestart map[string]bool

	// CrashRestartDelay is settable before Start for tests.
	CrashRestartDelay time.Duration

	logger zerolog.Logger
}

// New creates a lifecycle engine
func New(store storage.Store, gw Dispatcher, broker *events.Broker, cfg *config.Config) *Engine {
	return &Engine{
		store:             store,
		gw:                gw,
		broker:            broker,
		cfg:               cfg,
		queues:            make(map[string]*queue),
		pendingRestart:    make(map[string]bool),
		CrashRestartDelay: DefaultCrashRestartDelay,
		logger:            log.WithComponent("lifecycle"),
	}
}

var commandStates = map[string][]types.WorkloadStatus{
	gateway.CmdInstallServer: {types.StatusStopped, types.StatusCrashed, types.StatusInstalled},
	gateway.CmdStartServer:   {types.StatusStopped, types.StatusCrashed, types.StatusInstalled},
	gateway.CmdStopServer:    {types.StatusStarting, types.StatusRunning},
	gateway.CmdRestartServer: {types.StatusRunning},
}

func allowedFrom(cmdType string, status types.WorkloadStatus) bool {
	for _, s := range commandStates[cmdType] {
		if s == status {
			return true
		}
	}
	return false
}

// Install dispatches install_server and moves the workload to installing
func (e *Engine) Install(ctx context.Context, workloadID string) error {
	return e.command(ctx, workloadID, gateway.CmdInstallServer, types.StatusInstalling)
}

// Start dispatches start_server and moves the workload to starting
func (e *Engine) Start(ctx context.Context, workloadID string) error {
	return e.command(ctx, workloadID, gateway.CmdStartServer, types.StatusStarting)
}

// Stop dispatches stop_server and moves the workload to stopping
func (e *Engine) Stop(ctx context.Context, workloadID string) error {
	return e.command(ctx, workloadID, gateway.CmdStopServer, types.StatusStopping)
}

// Restart dispatches restart_server. The workload passes through stopping
// and starting as the agent reports the two halves.
func (e *Engine) Restart(ctx context.Context, workloadID string) error {
	err := e.command(ctx, workloadID, gateway.CmdRestartServer, types.StatusStopping)
	if err == nil {
		e.setPendingRestart(workloadID, true)
	}
	return err
}

// command runs the shared dispatch sequence on the workload's queue:
// transition guard, environment composition, gateway send, persist, log.
func (e *Engine) command(ctx context.Context, workloadID, cmdType string, next types.WorkloadStatus) error {
	return e.Do(workloadID, func() error {
		w, err := e.store.GetWorkload(workloadID)
		if err != nil {
			return err
		}
		if w.Suspended() && e.cfg.SuspensionEnforced {
			return errdefs.Locked("workload is suspended")
		}
		if !allowedFrom(cmdType, w.Status) {
			return errdefs.Newf(errdefs.KindInvalidState,
				"%s not allowed from state %s", cmdType, w.Status)
		}

		cmd, err := e.buildCommand(w)
		if err != nil {
			return err
		}
		if err := e.gw.Send(ctx, w.NodeID, cmdType, cmd); err != nil {
			return err
		}

		prev := w.Status
		w.Status = next
		w.UpdatedAt = time.Now()
		if err := e.store.UpdateWorkload(w); err != nil {
			return err
		}

		e.systemLog(w.ID, fmt.Sprintf("%s dispatched (%s -> %s)", cmdType, prev, next))
		e.broker.PublishWorkload(events.EventWorkloadStateChanged, w.NodeID, w.ID, string(next))
		return nil
	})
}

// buildCommand composes the full payload an agent needs for any lifecycle
// command on this workload.
func (e *Engine) buildCommand(w *types.Workload) (*gateway.Command, error) {
	tpl, err := e.store.GetTemplate(w.TemplateID)
	if err != nil {
		return nil, err
	}
	return &gateway.Command{
		ServerID:     w.ID,
		ServerUUID:   w.UUID,
		Template:     tpl,
		Environment:  ComposeEnvironment(tpl, w, e.cfg.ServerDataPath),
		MemoryMB:     w.MemoryMB,
		CPUCores:     w.CPUCores,
		DiskMB:       w.DiskMB,
		PrimaryPort:  w.PrimaryPort,
		PortBindings: w.PortBindings,
		NetworkMode:  string(w.NetworkMode),
	}, nil
}

// ResizeStorage tells the agent to grow or shrink the workload's disk.
// Callers gate on stopped; the agent command carries the new allocation.
func (e *Engine) ResizeStorage(ctx context.Context, workloadID string) error {
	return e.Do(workloadID, func() error {
		w, err := e.store.GetWorkload(workloadID)
		if err != nil {
			return err
		}
		cmd, err := e.buildCommand(w)
		if err != nil {
			return err
		}
		return e.gw.Send(ctx, w.NodeID, gateway.CmdResizeStorage, cmd)
	})
}

// Suspend takes the workload out of service. Allowed from every state but
// transferring; a running workload gets a best-effort stop first.
func (e *Engine) Suspend(ctx context.Context, workloadID, actor, reason string) error {
	return e.Do(workloadID, func() error {
		w, err := e.store.GetWorkload(workloadID)
		if err != nil {
			return err
		}
		if w.Status == types.StatusTransferring {
			return errdefs.InvalidState("cannot suspend a transferring workload")
		}
		if w.Suspended() {
			return errdefs.InvalidState("workload already suspended")
		}

		if w.Status == types.StatusRunning || w.Status == types.StatusStarting {
			if cmd, err := e.buildCommand(w); err == nil {
				if err := e.gw.Send(ctx, w.NodeID, gateway.CmdStopServer, cmd); err != nil {
					e.logger.Warn().Err(err).Str("workload_id", w.ID).Msg("best-effort stop before suspend failed")
				}
			}
		}

		now := time.Now()
		w.Status = types.StatusSuspended
		w.SuspendedAt = &now
		w.SuspendedBy = actor
		w.SuspensionReason = reason
		w.UpdatedAt = now
		if err := e.store.UpdateWorkload(w); err != nil {
			return err
		}

		e.systemLog(w.ID, fmt.Sprintf("suspended by %s: %s", actor, reason))
		e.broker.PublishWorkload(events.EventWorkloadSuspended, w.NodeID, w.ID, reason)
		return nil
	})
}

// Unsuspend returns a suspended workload to stopped and clears the
// suspension metadata.
func (e *Engine) Unsuspend(ctx context.Context, workloadID string) error {
	return e.Do(workloadID, func() error {
		w, err := e.store.GetWorkload(workloadID)
		if err != nil {
			return err
		}
		if w.Status != types.StatusSuspended {
			return errdefs.InvalidState("workload is not suspended")
		}

		w.Status = types.StatusStopped
		w.SuspendedAt = nil
		w.SuspendedBy = ""
		w.SuspensionReason = ""
		w.UpdatedAt = time.Now()
		if err := e.store.UpdateWorkload(w); err != nil {
			return err
		}

		e.systemLog(w.ID, "unsuspended")
		e.broker.PublishWorkload(events.EventWorkloadUnsuspended, w.NodeID, w.ID, "")
		return nil
	})
}

// ResetCrashCount zeroes the crash counter. Legal in any lifecycle state;
// suspension gating is the caller's concern (policy flag).
func (e *Engine) ResetCrashCount(workloadID string) error {
	return e.Do(workloadID, func() error {
		w, err := e.store.GetWorkload(workloadID)
		if err != nil {
			return err
		}
		w.CrashCount = 0
		w.LastCrashAt = time.Time{}
		w.UpdatedAt = time.Now()
		if err := e.store.UpdateWorkload(w); err != nil {
			return err
		}
		e.systemLog(w.ID, "crash counter reset")
		return nil
	})
}

// BeginTransfer moves a stopped workload to transferring
func (e *Engine) BeginTransfer(workloadID string) error {
	return e.Do(workloadID, func() error {
		w, err := e.store.GetWorkload(workloadID)
		if err != nil {
			return err
		}
		if w.Suspended() && e.cfg.SuspensionEnforced {
			return errdefs.Locked("workload is suspended")
		}
		if w.Status != types.StatusStopped {
			return errdefs.Newf(errdefs.KindInvalidState,
				"transfer requires a stopped workload, state is %s", w.Status)
		}
		w.Status = types.StatusTransferring
		w.UpdatedAt = time.Now()
		if err := e.store.UpdateWorkload(w); err != nil {
			return err
		}
		e.systemLog(w.ID, "transfer initiated")
		return nil
	})
}

// FailTransfer returns a transferring workload to stopped on its current
// (source) node and records the failure.
func (e *Engine) FailTransfer(workloadID string, cause error) {
	_ = e.Do(workloadID, func() error {
		w, err := e.store.GetWorkload(workloadID)
		if err != nil {
			return err
		}
		if w.Status != types.StatusTransferring {
			return nil
		}
		w.Status = types.StatusStopped
		w.UpdatedAt = time.Now()
		if err := e.store.UpdateWorkload(w); err != nil {
			return err
		}
		e.systemLog(w.ID, fmt.Sprintf("transfer failed: %v", cause))
		e.broker.PublishWorkload(events.EventTransferFailed, w.NodeID, w.ID, cause.Error())
		return nil
	})
}

func (e *Engine) setPendingRestart(workloadID string, v bool) {
	e.rmu.Lock()
	if v {
		e.pendingRestart[workloadID] = true
	} else {
		delete(e.pendingRestart, workloadID)
	}
	e.rmu.Unlock()
}

func (e *Engine) takePendingRestart(workloadID string) bool {
	e.rmu.Lock()
	defer e.rmu.Unlock()
	if e.pendingRestart[workloadID] {
		delete(e.pendingRestart, workloadID)
		return true
	}
	return false
}

// systemLog appends one control-plane decision to the workload's log.
// Best-effort: a failed append never fails the operation that produced it.
func (e *Engine) systemLog(workloadID, line string) {
	entry := &types.WorkloadLog{
		WorkloadID: workloadID,
		Timestamp:  time.Now(),
		Stream:     types.StreamSystem,
		Line:       line,
	}
	if err := e.store.AppendWorkloadLogs([]*types.WorkloadLog{entry}); err != nil {
		e.logger.Warn().Err(err).Str("workload_id", workloadID).Msg("system log append failed")
	}
}
