/*
Package ipam arbitrates the resources a workload occupies on its node:
memory/CPU/disk capacity, pool-managed IP addresses, and host-port bindings.

Every decision reads sibling state and writes pool state through a
storage.Tx, so callers wrap the whole admission in one store.Transact call.
BoltDB's single writer guarantees two concurrent creates can never both
observe the port or address as free.

# Capacity

CheckCapacity sums the allocations of every other workload on the node and
rejects the request when the new total exceeds the node's max memory or CPU.
Disk has no per-node capacity attribute; an optional process-wide ceiling
(MAX_DISK_MB) caps the per-node disk sum when configured.

# Host ports

Bindings apply only to bridge-mode workloads. NormalizeBindings validates
every port into [1, 65535], rejects duplicate host ports, and guarantees the
primary container port carries an entry (defaulting host = container).
Arbitration then computes the node's used-port set: explicit binding values
of each sibling, or the sibling's primary port when it has no explicit
bindings, skipping macvlan siblings. Any overlap fails with
AllocationConflict naming the port and its owner.

# IP addresses

Only macvlan-static is pool-managed. AllocateIP takes the first free
address (or the requested one, which must be free) and moves it to the
reserved set keyed by workload id. ReleaseIP is idempotent and returns all
of a workload's addresses to the free set; transfer calls it on the source
node inside the same transaction that allocates on the target.

# Error kinds

	capacity_exceeded    headroom or pool exhausted
	allocation_conflict  host port or requested address taken
	validation           malformed ports, address outside pool
	not_found            unknown node, no pool for the network
*/
package ipam
