/*
Package storage provides persistent state management for Catalyst using BoltDB.

The storage package implements the Store interface with an embedded BoltDB
database. All control-plane state (nodes, workloads, templates, access
grants, roles, users, IP pools, logs, metric samples, audit entries,
backups, and sessions) is persisted as JSON in per-entity buckets within a
single catalyst.db file.

# Architecture

	┌─────────────────── STORAGE LAYER ────────────────────┐
	│                                                        │
	│  Store interface (consumed by every component)         │
	│        │                                               │
	│        ▼                                               │
	│  BoltStore ── single catalyst.db, 0600                 │
	│        │                                               │
	│        ├── nodes           one JSON value per node     │
	│        ├── workloads       one JSON value per workload │
	│        ├── templates                                   │
	│        ├── access          key <workloadID>/<id>       │
	│        ├── roles, users                                │
	│        ├── ippools                                     │
	│        ├── workload_logs   key <workloadID>/<seq>      │
	│        ├── workload_metrics  same key scheme as logs   │
	│        ├── audit           key <seq>, append-only      │
	│        ├── backups                                     │
	│        └── sessions        key <token>                 │
	└────────────────────────────────────────────────────────┘

# Transactions

BoltDB serializes all writes through a single writer. Two access styles are
exposed:

  - Flat CRUD methods (CreateNode, GetWorkload, ...): each runs in its own
    transaction. Fine for reads and independent writes.
  - Transact(fn): runs fn against a Tx view inside one write transaction.
    The allocation arbiter performs its read-modify-write cycles (capacity
    sums, IP pool moves, port arbitration) through Transact so concurrent
    creates cannot observe stale sibling sets. This is the lost-update
    protection the allocation invariants require.

# Key Layout

Append-only buckets use sequence-prefixed keys:

	workload_logs:     <workloadID>/<seq padded to 20>  (prefix scan per workload)
	workload_metrics:  <workloadID>/<seq padded to 20>
	audit:             <seq padded to 20>               (reverse cursor = newest first)

Access grants embed the workload id in the key so revoking a workload's
grants is a prefix delete.

# Error Semantics

Get methods return errdefs.NotFound kinds when the key is absent; callers
branch with errdefs.IsNotFound. Marshal failures and bbolt errors pass
through unclassified.

# Usage

	store, err := storage.NewBoltStore("/var/lib/catalyst")
	if err != nil {
		return err
	}
	defer store.Close()

	err = store.Transact(func(tx storage.Tx) error {
		siblings, err := tx.ListWorkloadsByNode(nodeID)
		if err != nil {
			return err
		}
		// ... arbitration against siblings ...
		return tx.PutWorkload(w)
	})

# Integration Points

  - pkg/ipam: all allocation decisions run inside Transact
  - pkg/lifecycle: status persistence and log batching
  - pkg/transfer: the atomic ownership switch is one Transact call
  - pkg/auth: session persistence shared by HTTP and SFTP
  - pkg/audit: append-only trail
*/
package storage
