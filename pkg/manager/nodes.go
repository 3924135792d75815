package manager

import (
	"time"

	"github.com/google/uuid"

	"github.com/catalystpanel/catalyst/pkg/access"
	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/events"
	"github.com/catalystpanel/catalyst/pkg/types"
)

// Node administration is fleet-scoped: only role permissions apply.
const (
	PermNodeManage = "node.manage"
	PermNodeView   = "node.view"
)

// RegisterNodeRequest describes a new worker host
type RegisterNodeRequest struct {
	Name        string
	Address     string
	MaxMemoryMB int64
	MaxCPUCores float64
}

// RegisterNode admits a worker host and mints its agent key. The key is
// returned once, on the created record; it is the agent's credential for
// the gateway handshake.
func (m *Manager) RegisterNode(actor string, req RegisterNodeRequest) (*types.Node, error) {
	if err := m.Evaluator.CanFleet(actor, PermNodeManage); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, errdefs.Validation("node name is required")
	}
	if req.MaxMemoryMB <= 0 || req.MaxCPUCores <= 0 {
		return nil, errdefs.Validation("node capacity must be positive")
	}
	if existing, err := m.store.GetNodeByName(req.Name); err == nil && existing != nil {
		return nil, errdefs.Newf(errdefs.KindAllocationConflict, "node name %q already registered", req.Name)
	}

	key, err := newSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	node := &types.Node{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Address:     req.Address,
		MaxMemoryMB: req.MaxMemoryMB,
		MaxCPUCores: req.MaxCPUCores,
		AgentKey:    key,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.CreateNode(node); err != nil {
		return nil, err
	}

	m.Auditor.Record(actor, "node.register", "node", node.ID, map[string]string{"name": node.Name})
	m.Broker.PublishNode(events.EventNodeRegistered, node.ID, node.Name)
	return node, nil
}

// GetNode returns one node. The agent key is cleared for plain viewers.
func (m *Manager) GetNode(actor, id string) (*types.Node, error) {
	if err := m.canViewFleet(actor); err != nil {
		return nil, err
	}
	node, err := m.store.GetNode(id)
	if err != nil {
		return nil, err
	}
	if m.Evaluator.CanFleet(actor, PermNodeManage) != nil {
		node.AgentKey = ""
	}
	return node, nil
}

// ListNodes returns every registered node with agent keys redacted
func (m *Manager) ListNodes(actor string) ([]*types.Node, error) {
	if err := m.canViewFleet(actor); err != nil {
		return nil, err
	}
	nodes, err := m.store.ListNodes()
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		n.AgentKey = ""
	}
	return nodes, nil
}

// DeleteNode removes a node that hosts no workloads
func (m *Manager) DeleteNode(actor, id string) error {
	if err := m.Evaluator.CanFleet(actor, PermNodeManage); err != nil {
		return err
	}
	hosted, err := m.store.ListWorkloadsByNode(id)
	if err != nil {
		return err
	}
	if len(hosted) > 0 {
		return errdefs.Newf(errdefs.KindInvalidState,
			"node still hosts %d workloads, transfer or delete them first", len(hosted))
	}
	if err := m.store.DeleteNode(id); err != nil {
		return err
	}
	m.Auditor.Record(actor, "node.delete", "node", id, nil)
	return nil
}

// AddIPPool attaches an address pool to a node's named network
func (m *Manager) AddIPPool(actor, nodeID, networkName string, addresses []string) (*types.IPPool, error) {
	if err := m.Evaluator.CanFleet(actor, PermNodeManage); err != nil {
		return nil, err
	}
	if networkName == "" {
		return nil, errdefs.Validation("network name is required")
	}
	if len(addresses) == 0 {
		return nil, errdefs.Validation("a pool needs at least one address")
	}
	if _, err := m.store.GetNode(nodeID); err != nil {
		return nil, err
	}
	if existing, err := m.store.FindIPPool(nodeID, networkName); err == nil && existing != nil {
		return nil, errdefs.Newf(errdefs.KindAllocationConflict,
			"pool for network %q already exists on node %s", networkName, nodeID)
	}

	now := time.Now()
	pool := &types.IPPool{
		ID:          uuid.New().String(),
		NodeID:      nodeID,
		NetworkName: networkName,
		Free:        addresses,
		Reserved:    make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.CreateIPPool(pool); err != nil {
		return nil, err
	}

	m.Auditor.Record(actor, "ippool.create", "ippool", pool.ID, map[string]any{
		"node": nodeID, "network": networkName, "addresses": len(addresses),
	})
	return pool, nil
}

// ListIPPools returns the pools attached to a node
func (m *Manager) ListIPPools(actor, nodeID string) ([]*types.IPPool, error) {
	if err := m.canViewFleet(actor); err != nil {
		return nil, err
	}
	return m.store.ListIPPoolsByNode(nodeID)
}

// canViewFleet accepts managers, viewers, and admin readers
func (m *Manager) canViewFleet(actor string) error {
	if m.Evaluator.CanFleet(actor, PermNodeManage) == nil {
		return nil
	}
	if m.Evaluator.CanFleet(actor, PermNodeView) == nil {
		return nil
	}
	return m.Evaluator.CanFleet(actor, access.PermAdminRead)
}
