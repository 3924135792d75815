package storage

import (
	"time"

	"github.com/catalystpanel/catalyst/pkg/types"
)

// Store defines the interface for control-plane state storage.
// Implemented by the BoltDB-backed store; components depend on this
// interface so tests can substitute fakes.
type Store interface {
	// Nodes
	CreateNode(node *types.Node) error
	GetNode(id string) (*types.Node, error)
	GetNodeByName(name string) (*types.Node, error)
	ListNodes() ([]*types.Node, error)
	UpdateNode(node *types.Node) error
	DeleteNode(id string) error

	// Workloads
	CreateWorkload(w *types.Workload) error
	GetWorkload(id string) (*types.Workload, error)
	GetWorkloadByUUID(uuid string) (*types.Workload, error)
	ListWorkloads() ([]*types.Workload, error)
	ListWorkloadsByNode(nodeID string) ([]*types.Workload, error)
	UpdateWorkload(w *types.Workload) error
	DeleteWorkload(id string) error

	// Templates
	CreateTemplate(t *types.Template) error
	GetTemplate(id string) (*types.Template, error)
	ListTemplates() ([]*types.Template, error)
	UpdateTemplate(t *types.Template) error
	DeleteTemplate(id string) error

	// Workload access grants
	CreateAccess(a *types.WorkloadAccess) error
	ListAccessByWorkload(workloadID string) ([]*types.WorkloadAccess, error)
	ListAccessByUser(userID string) ([]*types.WorkloadAccess, error)
	DeleteAccess(id string) error
	DeleteAccessByWorkload(workloadID string) error

	// Roles
	CreateRole(r *types.Role) error
	GetRole(id string) (*types.Role, error)
	ListRoles() ([]*types.Role, error)
	DeleteRole(id string) error

	// Users
	CreateUser(u *types.User) error
	GetUser(id string) (*types.User, error)
	ListUsers() ([]*types.User, error)
	DeleteUser(id string) error

	// IP pools
	CreateIPPool(p *types.IPPool) error
	GetIPPool(id string) (*types.IPPool, error)
	FindIPPool(nodeID, networkName string) (*types.IPPool, error)
	ListIPPools() ([]*types.IPPool, error)
	ListIPPoolsByNode(nodeID string) ([]*types.IPPool, error)
	UpdateIPPool(p *types.IPPool) error
	DeleteIPPool(id string) error

	// Workload logs (append-only)
	AppendWorkloadLogs(entries []*types.WorkloadLog) error
	ListWorkloadLogs(workloadID string, limit int) ([]*types.WorkloadLog, error)

	// Metric samples (append-only)
	AppendMetricSamples(samples []*types.MetricSample) error
	ListMetricSamples(workloadID string, limit int) ([]*types.MetricSample, error)

	// Audit trail (append-only)
	AppendAudit(entry *types.AuditEntry) error
	ListAudit(limit int) ([]*types.AuditEntry, error)

	// Backups
	CreateBackup(b *types.Backup) error
	GetBackup(id string) (*types.Backup, error)
	ListBackupsByWorkload(workloadID string) ([]*types.Backup, error)
	DeleteBackup(id string) error

	// Sessions
	PutSession(s *types.Session) error
	GetSession(token string) (*types.Session, error)
	DeleteSession(token string) error
	DeleteExpiredSessions(now time.Time) (int, error)

	// Transact runs fn inside one write transaction. Capacity checks, IP
	// allocation, and port arbitration read and write through the Tx so
	// concurrent mutations cannot interleave (single-writer isolation).
	Transact(fn func(tx Tx) error) error

	// Utility
	Close() error
}

// Tx is the view of the store available inside a write transaction. Every
// read observes the transaction's snapshot; every write is atomic with the
// rest of the transaction.
type Tx interface {
	GetNode(id string) (*types.Node, error)
	PutNode(node *types.Node) error

	GetWorkload(id string) (*types.Workload, error)
	PutWorkload(w *types.Workload) error
	DeleteWorkload(id string) error
	ListWorkloadsByNode(nodeID string) ([]*types.Workload, error)

	GetTemplate(id string) (*types.Template, error)

	FindIPPool(nodeID, networkName string) (*types.IPPool, error)
	ListIPPools() ([]*types.IPPool, error)
	PutIPPool(p *types.IPPool) error

	PutAccess(a *types.WorkloadAccess) error
	DeleteAccessByWorkload(workloadID string) error

	PutBackup(b *types.Backup) error
}
