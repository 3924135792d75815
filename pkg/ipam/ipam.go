package ipam

import (
	"fmt"
	"sort"

	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/storage"
	"github.com/catalystpanel/catalyst/pkg/types"
)

// Arbiter validates and applies resource allocations: node capacity,
// pool-managed IPs, and host-port bindings. Every method that reads sibling
// state takes a storage.Tx so the whole decision runs inside one write
// transaction.
type Arbiter struct {
	maxDiskMB int64 // optional process-wide ceiling, zero disables
}

// NewArbiter creates an arbiter. maxDiskMB caps the summed disk allocation
// per node when non-zero.
func NewArbiter(maxDiskMB int64) *Arbiter {
	return &Arbiter{maxDiskMB: maxDiskMB}
}

// Request describes the intended allocations for a create, resize, or
// transfer admission. WorkloadID excludes the workload's own current
// allocations from sums and used-port sets; it is empty on create.
type Request struct {
	WorkloadID string
	NodeID     string

	MemoryMB int64
	CPUCores float64
	DiskMB   int64

	NetworkMode  types.NetworkMode
	NetworkName  string
	PrimaryPort  int
	PortBindings map[int]int
	RequestedIP  string
}

// Result carries the normalized outcome of a full allocation pass
type Result struct {
	PortBindings map[int]int
	PrimaryIP    string
}

// Allocate runs the complete admission sequence: capacity check, port
// validation and arbitration, and IP assignment for IPAM modes. It mutates
// pool state through tx; the caller persists the workload in the same
// transaction or aborts everything.
func (a *Arbiter) Allocate(tx storage.Tx, req Request) (*Result, error) {
	if err := a.CheckCapacity(tx, req); err != nil {
		return nil, err
	}

	bindings, err := NormalizeBindings(req.PrimaryPort, req.PortBindings)
	if err != nil {
		return nil, err
	}

	res := &Result{PortBindings: bindings}

	if req.NetworkMode.UsesHostPorts() {
		if err := a.arbitratePorts(tx, req, bindings); err != nil {
			return nil, err
		}
	}

	if req.NetworkMode.IsIPAM() {
		ip, err := a.AllocateIP(tx, req.NodeID, req.NetworkName, req.WorkloadID, req.RequestedIP)
		if err != nil {
			return nil, err
		}
		res.PrimaryIP = ip
	}

	return res, nil
}

// CheckCapacity verifies the node leaves headroom for the request after
// summing every sibling's allocations. The workload named by
// req.WorkloadID is excluded so resizes compare against the new total.
func (a *Arbiter) CheckCapacity(tx storage.Tx, req Request) error {
	node, err := tx.GetNode(req.NodeID)
	if err != nil {
		return err
	}

	siblings, err := tx.ListWorkloadsByNode(req.NodeID)
	if err != nil {
		return err
	}

	var memSum int64
	var cpuSum float64
	var diskSum int64
	for _, s := range siblings {
		if s.ID == req.WorkloadID {
			continue
		}
		memSum += s.MemoryMB
		cpuSum += s.CPUCores
		diskSum += s.DiskMB
	}

	if memSum+req.MemoryMB > node.MaxMemoryMB {
		return errdefs.Newf(errdefs.KindCapacityExceeded,
			"node %s memory: %d + %d MiB requested exceeds %d MiB",
			node.Name, memSum, req.MemoryMB, node.MaxMemoryMB)
	}
	if cpuSum+req.CPUCores > node.MaxCPUCores {
		return errdefs.Newf(errdefs.KindCapacityExceeded,
			"node %s cpu: %.2f + %.2f cores requested exceeds %.2f",
			node.Name, cpuSum, req.CPUCores, node.MaxCPUCores)
	}
	if a.maxDiskMB > 0 && diskSum+req.DiskMB > a.maxDiskMB {
		return errdefs.Newf(errdefs.KindCapacityExceeded,
			"node %s disk: %d + %d MiB requested exceeds ceiling %d MiB",
			node.Name, diskSum, req.DiskMB, a.maxDiskMB)
	}

	return nil
}

// NormalizeBindings validates a submitted binding map and guarantees the
// primary container port has an entry, defaulting its host port to the same
// number. The returned map is a fresh copy.
func NormalizeBindings(primaryPort int, bindings map[int]int) (map[int]int, error) {
	if !validPort(primaryPort) {
		return nil, errdefs.Newf(errdefs.KindValidation, "primary port %d out of range", primaryPort)
	}

	out := make(map[int]int, len(bindings)+1)
	seen := make(map[int]int, len(bindings))

	// Deterministic iteration so duplicate errors name the same port
	// regardless of map order.
	keys := make([]int, 0, len(bindings))
	for c := range bindings {
		keys = append(keys, c)
	}
	sort.Ints(keys)

	for _, c := range keys {
		h := bindings[c]
		if !validPort(c) {
			return nil, errdefs.Newf(errdefs.KindValidation, "container port %d out of range", c)
		}
		if !validPort(h) {
			return nil, errdefs.Newf(errdefs.KindValidation, "host port %d out of range", h)
		}
		if prev, dup := seen[h]; dup {
			return nil, errdefs.Newf(errdefs.KindValidation,
				"host port %d bound to both container ports %d and %d", h, prev, c)
		}
		seen[h] = c
		out[c] = h
	}

	if _, ok := out[primaryPort]; !ok {
		if prev, dup := seen[primaryPort]; dup {
			return nil, errdefs.Newf(errdefs.KindValidation,
				"host port %d bound to container port %d conflicts with the primary mapping", primaryPort, prev)
		}
		out[primaryPort] = primaryPort
	}

	return out, nil
}

// arbitratePorts rejects bindings whose host ports collide with any sibling
// workload on the node. Siblings without explicit bindings contribute their
// primary port; IPAM-mode siblings contribute nothing.
func (a *Arbiter) arbitratePorts(tx storage.Tx, req Request, bindings map[int]int) error {
	siblings, err := tx.ListWorkloadsByNode(req.NodeID)
	if err != nil {
		return err
	}

	used := UsedHostPorts(siblings, req.WorkloadID)

	for c, h := range bindings {
		if owner, taken := used[h]; taken {
			return errdefs.Newf(errdefs.KindAllocationConflict,
				"host port %d (container port %d) already used by workload %s", h, c, owner)
		}
	}
	return nil
}

// UsedHostPorts computes the host ports occupied on a node, mapping port to
// the owning workload id. The workload named by excludeID is skipped.
func UsedHostPorts(siblings []*types.Workload, excludeID string) map[int]string {
	used := make(map[int]string)
	for _, s := range siblings {
		if s.ID == excludeID {
			continue
		}
		if !s.NetworkMode.UsesHostPorts() {
			continue
		}
		if len(s.PortBindings) == 0 {
			if s.PrimaryPort != 0 {
				used[s.PrimaryPort] = s.ID
			}
			continue
		}
		for _, h := range s.PortBindings {
			used[h] = s.ID
		}
	}
	return used
}

// AllocateIP reserves an address from the node's pool for the named
// network. A non-empty requestedIP must be free in the pool.
func (a *Arbiter) AllocateIP(tx storage.Tx, nodeID, networkName, workloadID, requestedIP string) (string, error) {
	pool, err := tx.FindIPPool(nodeID, networkName)
	if err != nil {
		return "", err
	}
	if len(pool.Free) == 0 {
		return "", errdefs.Newf(errdefs.KindCapacityExceeded,
			"ip pool %q on node %s exhausted", networkName, nodeID)
	}

	var ip string
	if requestedIP != "" {
		idx := -1
		for i, f := range pool.Free {
			if f == requestedIP {
				idx = i
				break
			}
		}
		if idx < 0 {
			if owner, taken := reservedOwner(pool, requestedIP); taken {
				return "", errdefs.Newf(errdefs.KindAllocationConflict,
					"address %s already reserved by workload %s", requestedIP, owner)
			}
			return "", errdefs.Newf(errdefs.KindValidation,
				"address %s is not part of pool %q", requestedIP, networkName)
		}
		ip = requestedIP
		pool.Free = append(pool.Free[:idx], pool.Free[idx+1:]...)
	} else {
		ip = pool.Free[0]
		pool.Free = pool.Free[1:]
	}

	if pool.Reserved == nil {
		pool.Reserved = make(map[string]string)
	}
	pool.Reserved[ip] = workloadID

	if err := tx.PutIPPool(pool); err != nil {
		return "", err
	}
	return ip, nil
}

// ReleaseIP returns every address reserved by the workload to its pool's
// free set. Idempotent: releasing a workload that holds nothing is a no-op.
func (a *Arbiter) ReleaseIP(tx storage.Tx, workloadID string) error {
	pools, err := tx.ListIPPools()
	if err != nil {
		return err
	}

	for _, pool := range pools {
		changed := false
		for ip, owner := range pool.Reserved {
			if owner != workloadID {
				continue
			}
			delete(pool.Reserved, ip)
			pool.Free = append(pool.Free, ip)
			changed = true
		}
		if changed {
			sort.Strings(pool.Free)
			if err := tx.PutIPPool(pool); err != nil {
				return err
			}
		}
	}
	return nil
}

func reservedOwner(pool *types.IPPool, ip string) (string, bool) {
	owner, ok := pool.Reserved[ip]
	return owner, ok
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// DescribeBindings renders a binding map for logs, smallest container port
// first.
func DescribeBindings(bindings map[int]int) string {
	keys := make([]int, 0, len(bindings))
	for c := range bindings {
		keys = append(keys, c)
	}
	sort.Ints(keys)
	s := ""
	for i, c := range keys {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%d:%d", c, bindings[c])
	}
	return s
}
