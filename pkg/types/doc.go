/*
Package types defines the core data structures used throughout Catalyst.

This package contains the domain model of the control plane: nodes, workloads,
templates, access grants, IP pools, logs, backups, and sessions. Every other
package consumes these types for state management, API payload construction,
and lifecycle decisions.

# Architecture

The types package is the foundation of Catalyst's data model. It defines:

  - Fleet topology (nodes and their agents)
  - Workload specifications, allocations, and lifecycle status
  - Templates (images, startup, variables, install scripts)
  - Access control primitives (grants, roles, users)
  - Network primitives (network modes, IP pools, port bindings)
  - Append-only records (workload logs, audit entries, backups)

All types are designed to be:
  - Serializable (JSON, both for storage and for the agent wire frames)
  - Passed by id across component boundaries (no object graphs)
  - Validated (typed string enums with Valid helpers where it matters)

# Core Types

Fleet:
  - Node: Worker host with capacity, liveness, and agent credentials
  - IPPool: Per-node, per-network address set split into free/reserved

Workloads:
  - Workload: One game-server instance: allocations, network mode,
    port bindings, environment, status, crash tracking, suspension
  - WorkloadStatus: stopped, installing, installed, starting, running,
    stopping, crashed, suspended, transferring
  - RestartPolicy: always, on-failure, never
  - BackupMode: local, s3, stream

Templates:
  - Template: Image(s), startup command, stop behavior, install script,
    variables, supported ports, default allocations, features
  - TemplateVariable: Name (environment variable), default, required,
    input kind, rules
  - InputKind: text, number, checkbox, select

Access:
  - WorkloadAccess: (user, workload, permission set), insertion-ordered
  - Role: Named permission collection; "*" wildcards, "admin.read"
    grants fleet-wide read
  - User: Principal with held roles

Records:
  - WorkloadLog: (timestamp, stream, line); stream "system" records
    control-plane decisions
  - AuditEntry: (actor, action, resource, id, details), append-only
  - Backup: Artifact location, mode, and size for one backup

# Usage

Creating a Workload:

	w := &types.Workload{
		ID:           uuid.New().String(),
		UUID:         uuid.New().String(),
		Name:         "lobby-1",
		OwnerID:      user.ID,
		NodeID:       node.ID,
		TemplateID:   tpl.ID,
		MemoryMB:     1024,
		CPUCores:     2,
		DiskMB:       10240,
		NetworkMode:  types.NetworkBridge,
		PrimaryPort:  25565,
		PortBindings: map[int]int{25565: 25565},
		Status:       types.StatusStopped,
	}

Checking network behavior:

	if w.NetworkMode.IsIPAM() {
		// primary IP comes from the node's pool
	}
	if w.NetworkMode.UsesHostPorts() {
		// bindings participate in host-port arbitration
	}

# State Machine

Workloads follow the state machine enforced by pkg/lifecycle:

	stopped → installing → installed
	stopped/crashed/installed → starting → running → stopping → stopped
	running → crashed (agent report)
	any (except transferring) → suspended → stopped
	stopped → transferring → stopped

The transition table itself lives in pkg/lifecycle; this package only
defines the vocabulary.

# Design Patterns

Enumeration pattern:

	All enums are typed string constants:
	  type WorkloadStatus string
	  const StatusRunning WorkloadStatus = "running"

Suspension metadata:

	SuspendedAt is a *time.Time: nil means never suspended. SuspendedBy
	and SuspensionReason are only meaningful when SuspendedAt is set.

Port bindings:

	PortBindings maps container port to host port. The primary port
	always has an entry; pkg/ipam enforces this on every mutation.

# Integration Points

  - pkg/storage: persists all types to bbolt as JSON
  - pkg/lifecycle: drives WorkloadStatus transitions
  - pkg/ipam: mutates IPPool and validates PortBindings
  - pkg/gateway: composes wire frames from Workload + Template
  - pkg/access: evaluates WorkloadAccess and Role rows
  - pkg/server: converts to/from HTTP payloads

# Thread Safety

Types here carry no locks. The storage layer serializes persisted
mutations; in-flight copies belong to their goroutine. The lifecycle
reducer owns all status mutations for a given workload.

# See Also

  - pkg/storage for the persistence layer
  - pkg/lifecycle for the transition rules
  - pkg/ipam for allocation invariants
*/
package types
