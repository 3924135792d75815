package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/catalystpanel/catalyst/pkg/config"
	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/events"
	"github.com/catalystpanel/catalyst/pkg/gateway"
	"github.com/catalystpanel/catalyst/pkg/ipam"
	"github.com/catalystpanel/catalyst/pkg/lifecycle"
	"github.com/catalystpanel/catalyst/pkg/log"
	"github.com/catalystpanel/catalyst/pkg/metrics"
	"github.com/catalystpanel/catalyst/pkg/storage"
	"github.com/catalystpanel/catalyst/pkg/types"
)

// Timeouts for the asynchronous agent outcomes
const (
	DefaultBackupWait  = 10 * time.Minute
	DefaultRestoreWait = 10 * time.Minute
)

// Gateway is the dispatch surface the coordinator needs
type Gateway interface {
	Send(ctx context.Context, nodeID, cmdType string, cmd *gateway.Command) error
	StreamTo(ctx context.Context, nodeID, targetPath string, r io.Reader) error
	Online(nodeID string) bool
	ExpectBackup(backupID string) (<-chan *gateway.Frame, func())
	ExpectRestore(backupID string) (<-chan *gateway.Frame, func())
}

// ObjectStore is the object-storage surface for the s3 mode
type ObjectStore interface {
	DownloadToFile(ctx context.Context, key, path string) (int64, error)
}

// Coordinator executes workload transfers
type Coordinator struct {
	store   storage.Store
	gw      Gateway
	engine  *lifecycle.Engine
	arbiter *ipam.Arbiter
	broker  *events.Broker
	cfg     *config.Config

	// Objects is nil unless the s3 mode is configured.
	Objects ObjectStore

	// BackupWait and RestoreWait are settable before use for tests.
	BackupWait  time.Duration
	RestoreWait time.Duration

	logger zerolog.Logger
}

// New creates a transfer coordinator
func New(store storage.Store, gw Gateway, engine *lifecycle.Engine, arbiter *ipam.Arbiter, broker *events.Broker, cfg *config.Config) *Coordinator {
	return &Coordinator{
		store:       store,
		gw:          gw,
		engine:      engine,
		arbiter:     arbiter,
		broker:      broker,
		cfg:         cfg,
		BackupWait:  DefaultBackupWait,
		RestoreWait: DefaultRestoreWait,
		logger:      log.WithComponent("transfer"),
	}
}

// Transfer moves the workload to targetNodeID using the given backup mode
// (the workload's own mode when empty). Preflight failures keep their own
// kinds; anything after the transferring switch fails with transfer_failed
// and the workload back to stopped on its source node.
func (c *Coordinator) Transfer(ctx context.Context, workloadID, targetNodeID string, mode types.BackupMode) error {
	w, mode, err := c.begin(workloadID, targetNodeID, mode)
	if err != nil {
		return err
	}
	return c.finish(ctx, w, targetNodeID, mode)
}

// TransferAsync runs preflight and the transferring switch synchronously,
// then detaches the byte-moving phase. A nil return means the transfer is
// underway; its outcome lands in the system log and the event stream.
func (c *Coordinator) TransferAsync(workloadID, targetNodeID string, mode types.BackupMode) error {
	w, mode, err := c.begin(workloadID, targetNodeID, mode)
	if err != nil {
		return err
	}
	go func() {
		if err := c.finish(context.Background(), w, targetNodeID, mode); err != nil {
			c.logger.Error().Err(err).Str("workload_id", w.ID).Msg("detached transfer failed")
		}
	}()
	return nil
}

func (c *Coordinator) begin(workloadID, targetNodeID string, mode types.BackupMode) (*types.Workload, types.BackupMode, error) {
	w, err := c.store.GetWorkload(workloadID)
	if err != nil {
		return nil, mode, err
	}
	if mode == "" {
		mode = w.BackupMode
	}
	if mode == "" {
		mode = types.BackupStream
	}

	if err := c.preflight(w, targetNodeID, mode); err != nil {
		return nil, mode, err
	}
	if err := c.engine.BeginTransfer(w.ID); err != nil {
		return nil, mode, err
	}
	c.broker.PublishWorkload(events.EventTransferStarted, w.NodeID, w.ID, targetNodeID)
	return w, mode, nil
}

func (c *Coordinator) finish(ctx context.Context, w *types.Workload, targetNodeID string, mode types.BackupMode) error {
	if err := c.run(ctx, w, targetNodeID, mode); err != nil {
		c.engine.FailTransfer(w.ID, err)
		metrics.TransfersTotal.WithLabelValues("failed").Inc()
		return errdefs.Wrap(errdefs.KindTransferFailed, "transfer aborted", err)
	}

	metrics.TransfersTotal.WithLabelValues("ok").Inc()
	c.broker.PublishWorkload(events.EventTransferCompleted, targetNodeID, w.ID, "")
	return nil
}

func (c *Coordinator) preflight(w *types.Workload, targetNodeID string, mode types.BackupMode) error {
	if targetNodeID == w.NodeID {
		return errdefs.Validation("target node equals source node")
	}
	if mode == types.BackupS3 && c.Objects == nil {
		return errdefs.Validation("s3 transfer mode is not configured")
	}

	target, err := c.store.GetNode(targetNodeID)
	if err != nil {
		return err
	}
	if !target.Online || !c.gw.Online(target.ID) {
		return errdefs.Newf(errdefs.KindNodeUnavailable, "target node %s is offline", target.Name)
	}

	// Headroom only; ports and IP are arbitrated again inside the final
	// switch transaction.
	return c.store.Transact(func(tx storage.Tx) error {
		return c.arbiter.CheckCapacity(tx, ipam.Request{
			NodeID:   targetNodeID,
			MemoryMB: w.MemoryMB,
			CPUCores: w.CPUCores,
			DiskMB:   w.DiskMB,
		})
	})
}

// run is every step after the transferring switch
func (c *Coordinator) run(ctx context.Context, w *types.Workload, targetNodeID string, mode types.BackupMode) error {
	backup, err := c.createBackup(ctx, w, mode)
	if err != nil {
		return err
	}

	stagedName := backup.Name + ".tar.gz"
	switch mode {
	case types.BackupLocal:
		// Shared storage: the target sees the artifact already.
	case types.BackupS3:
		staging := filepath.Join(c.cfg.BackupsPath, "staging", stagedName)
		if _, err := c.Objects.DownloadToFile(ctx, backup.Path, staging); err != nil {
			return err
		}
		defer os.Remove(staging)
		if err := c.streamFile(ctx, targetNodeID, staging, stagedName); err != nil {
			return err
		}
	case types.BackupStream:
		if err := c.streamFile(ctx, targetNodeID, backup.Path, stagedName); err != nil {
			return err
		}
	default:
		return errdefs.Newf(errdefs.KindValidation, "unknown transfer mode %q", mode)
	}

	if err := c.restoreOn(ctx, w, targetNodeID, backup, stagedName, mode); err != nil {
		return err
	}

	return c.switchOwnership(ctx, w.ID, targetNodeID)
}

// createBackup issues create_backup on the source and waits for the
// correlated completion. The backup row is recorded up front so crash
// recovery can locate the artifact.
func (c *Coordinator) createBackup(ctx context.Context, w *types.Workload, mode types.BackupMode) (*types.Backup, error) {
	name := fmt.Sprintf("transfer-%d", time.Now().UnixMilli())
	backup := &types.Backup{
		ID:         uuid.New().String(),
		WorkloadID: w.ID,
		Name:       name,
		Mode:       mode,
		Metadata:   map[string]string{"reason": "transfer"},
		CreatedAt:  time.Now(),
	}
	if mode == types.BackupS3 {
		backup.Path = w.ID + "/" + name + ".tar.gz"
	} else {
		backup.Path = filepath.Join(c.cfg.BackupsPath, w.ID, name+".tar.gz")
	}
	if err := c.store.CreateBackup(backup); err != nil {
		return nil, err
	}

	done, cancel := c.gw.ExpectBackup(backup.ID)
	defer cancel()

	err := c.gw.Send(ctx, w.NodeID, gateway.CmdCreateBackup, &gateway.Command{
		ServerID:   w.ID,
		ServerUUID: w.UUID,
		BackupID:   backup.ID,
		BackupName: name,
		BackupPath: backup.Path,
		BackupMode: string(mode),
	})
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.BackupWait)
	defer timer.Stop()
	select {
	case f := <-done:
		var e gateway.BackupComplete
		if err := f.Decode(&e); err != nil {
			return nil, err
		}
		if e.Path != "" {
			backup.Path = e.Path
		}
		backup.SizeMB = e.SizeMB
		return backup, nil
	case <-timer.C:
		return nil, fmt.Errorf("backup %s did not complete within %s", backup.ID, c.BackupWait)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) streamFile(ctx context.Context, targetNodeID, path, targetPath string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open backup artifact: %w", err)
	}
	defer f.Close()
	return c.gw.StreamTo(ctx, targetNodeID, targetPath, f)
}

// restoreOn issues restore_backup on the target and waits for the outcome
func (c *Coordinator) restoreOn(ctx context.Context, w *types.Workload, targetNodeID string, backup *types.Backup, stagedName string, mode types.BackupMode) error {
	restorePath := stagedName
	if mode == types.BackupLocal {
		restorePath = backup.Path
	}

	done, cancel := c.gw.ExpectRestore(backup.ID)
	defer cancel()

	err := c.gw.Send(ctx, targetNodeID, gateway.CmdRestoreBackup, &gateway.Command{
		ServerID:   w.ID,
		ServerUUID: w.UUID,
		BackupID:   backup.ID,
		BackupName: backup.Name,
		BackupPath: restorePath,
		BackupMode: string(mode),
	})
	if err != nil {
		return err
	}

	timer := time.NewTimer(c.RestoreWait)
	defer timer.Stop()
	select {
	case f := <-done:
		var e gateway.RestoreComplete
		if err := f.Decode(&e); err != nil {
			return err
		}
		if !e.OK {
			return fmt.Errorf("restore on node %s failed: %s", targetNodeID, e.Err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("restore %s did not complete within %s", backup.ID, c.RestoreWait)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// switchOwnership is the atomic step: one transaction releases the source
// IP, re-arbitrates ports and IP on the target, rewrites the environment,
// clears container identity, and moves the workload home. Runs on the
// workload's lifecycle queue so no event interleaves with it.
func (c *Coordinator) switchOwnership(ctx context.Context, workloadID, targetNodeID string) error {
	_ = ctx
	return c.engine.Do(workloadID, func() error {
		return c.store.Transact(func(tx storage.Tx) error {
			w, err := tx.GetWorkload(workloadID)
			if err != nil {
				return err
			}

			if err := c.arbiter.ReleaseIP(tx, w.ID); err != nil {
				return err
			}

			res, err := c.arbiter.Allocate(tx, ipam.Request{
				WorkloadID:   w.ID,
				NodeID:       targetNodeID,
				MemoryMB:     w.MemoryMB,
				CPUCores:     w.CPUCores,
				DiskMB:       w.DiskMB,
				NetworkMode:  w.NetworkMode,
				NetworkName:  w.NetworkName,
				PrimaryPort:  w.PrimaryPort,
				PortBindings: w.PortBindings,
			})
			if err != nil {
				return err
			}

			w.NodeID = targetNodeID
			w.PortBindings = res.PortBindings
			w.PrimaryIP = res.PrimaryIP
			if res.PrimaryIP != "" {
				if w.Environment == nil {
					w.Environment = make(map[string]string)
				}
				w.Environment[lifecycle.EnvNetworkIP] = res.PrimaryIP
			} else {
				delete(w.Environment, lifecycle.EnvNetworkIP)
			}
			w.ContainerID = ""
			w.ContainerName = ""
			w.Status = types.StatusStopped
			w.UpdatedAt = time.Now()
			return tx.PutWorkload(w)
		})
	})
}
