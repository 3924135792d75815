package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/types"
)

// Client talks to the control-plane HTTP API
type Client struct {
	base  string
	token string
	http  *http.Client
}

// New creates a client for the API at base (e.g. "http://127.0.0.1:8080")
// authenticating with token. An empty token is valid only for Login.
func New(base, token string) *Client {
	return &Client{
		base:  base,
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// do issues the request and decodes the envelope into out (ignored when nil)
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response (%s): %w", resp.Status, err)
	}
	if !env.Success {
		if env.Error != nil {
			return errdefs.New(errdefs.Kind(env.Error.Kind), env.Error.Message)
		}
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// LoginResult is the session issued by Login
type LoginResult struct {
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	ExpiresAt string `json:"expiresAt"`
}

// Login creates a session and stores its token on the client
func (c *Client) Login(ctx context.Context, userID string) (*LoginResult, error) {
	var res LoginResult
	err := c.do(ctx, http.MethodPost, "/api/sessions", map[string]string{"userId": userID}, &res)
	if err != nil {
		return nil, err
	}
	c.token = res.Token
	return &res, nil
}

// Logout revokes the client's session
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions", nil, nil)
}

// --- nodes ---

// RegisterNode admits a worker host. The returned record carries the agent
// key exactly once.
func (c *Client) RegisterNode(ctx context.Context, name, address string, maxMemoryMB int64, maxCPUCores float64) (*types.Node, error) {
	var node types.Node
	err := c.do(ctx, http.MethodPost, "/api/nodes", map[string]any{
		"name":        name,
		"address":     address,
		"maxMemoryMb": maxMemoryMB,
		"maxCpuCores": maxCPUCores,
	}, &node)
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (c *Client) ListNodes(ctx context.Context) ([]*types.Node, error) {
	var nodes []*types.Node
	if err := c.do(ctx, http.MethodGet, "/api/nodes", nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (c *Client) GetNode(ctx context.Context, id string) (*types.Node, error) {
	var node types.Node
	if err := c.do(ctx, http.MethodGet, "/api/nodes/"+url.PathEscape(id), nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func (c *Client) DeleteNode(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/nodes/"+url.PathEscape(id), nil, nil)
}

func (c *Client) AddIPPool(ctx context.Context, nodeID, networkName string, addresses []string) (*types.IPPool, error) {
	var pool types.IPPool
	err := c.do(ctx, http.MethodPost, "/api/nodes/"+url.PathEscape(nodeID)+"/ippools", map[string]any{
		"networkName": networkName,
		"addresses":   addresses,
	}, &pool)
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

// --- templates ---

// ImportTemplate uploads a template document in any accepted dialect
func (c *Client) ImportTemplate(ctx context.Context, raw []byte) (*types.Template, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/templates/import", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, err
	}
	if !env.Success {
		if env.Error != nil {
			return nil, errdefs.New(errdefs.Kind(env.Error.Kind), env.Error.Message)
		}
		return nil, fmt.Errorf("import failed: %s", resp.Status)
	}
	var tpl types.Template
	if err := json.Unmarshal(env.Data, &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (c *Client) ListTemplates(ctx context.Context) ([]*types.Template, error) {
	var tpls []*types.Template
	if err := c.do(ctx, http.MethodGet, "/api/templates", nil, &tpls); err != nil {
		return nil, err
	}
	return tpls, nil
}

func (c *Client) GetTemplate(ctx context.Context, id string) (*types.Template, error) {
	var tpl types.Template
	if err := c.do(ctx, http.MethodGet, "/api/templates/"+url.PathEscape(id), nil, &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// --- workloads ---

// CreateWorkloadRequest is the JSON body for workload creation
type CreateWorkloadRequest struct {
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	NodeID       string            `json:"nodeId"`
	TemplateID   string            `json:"templateId"`
	MemoryMB     int64             `json:"memoryMb,omitempty"`
	CPUCores     float64           `json:"cpuCores,omitempty"`
	DiskMB       int64             `json:"diskMb,omitempty"`
	NetworkMode  string            `json:"networkMode"`
	NetworkName  string            `json:"networkName,omitempty"`
	PrimaryPort  int               `json:"primaryPort,omitempty"`
	PortBindings map[int]int       `json:"portBindings,omitempty"`
	RequestedIP  string            `json:"requestedIp,omitempty"`
	Environment  map[string]string `json:"environment,omitempty"`
}

func (c *Client) CreateWorkload(ctx context.Context, req CreateWorkloadRequest) (*types.Workload, error) {
	var w types.Workload
	if err := c.do(ctx, http.MethodPost, "/api/workloads", req, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (c *Client) ListWorkloads(ctx context.Context) ([]*types.Workload, error) {
	var ws []*types.Workload
	if err := c.do(ctx, http.MethodGet, "/api/workloads", nil, &ws); err != nil {
		return nil, err
	}
	return ws, nil
}

func (c *Client) GetWorkload(ctx context.Context, id string) (*types.Workload, error) {
	var w types.Workload
	if err := c.do(ctx, http.MethodGet, "/api/workloads/"+url.PathEscape(id), nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (c *Client) DeleteWorkload(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/workloads/"+url.PathEscape(id), nil, nil)
}

// LifecycleAction issues one of install, start, stop, restart, unsuspend,
// or reset-crashes against a workload.
func (c *Client) LifecycleAction(ctx context.Context, id, action string) error {
	return c.do(ctx, http.MethodPost, "/api/workloads/"+url.PathEscape(id)+"/"+action, struct{}{}, nil)
}

func (c *Client) Suspend(ctx context.Context, id, reason string) error {
	return c.do(ctx, http.MethodPost, "/api/workloads/"+url.PathEscape(id)+"/suspend",
		map[string]string{"reason": reason}, nil)
}

func (c *Client) Transfer(ctx context.Context, id, targetNodeID, mode string) error {
	return c.do(ctx, http.MethodPost, "/api/workloads/"+url.PathEscape(id)+"/transfer",
		map[string]string{"targetNodeId": targetNodeID, "mode": mode}, nil)
}

func (c *Client) WorkloadLogs(ctx context.Context, id string, limit int) ([]*types.WorkloadLog, error) {
	var logs []*types.WorkloadLog
	path := "/api/workloads/" + url.PathEscape(id) + "/logs?limit=" + strconv.Itoa(limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// --- users and roles ---

func (c *Client) CreateUser(ctx context.Context, name string, roleIDs []string) (*types.User, error) {
	var u types.User
	err := c.do(ctx, http.MethodPost, "/api/users", map[string]any{
		"name": name, "roleIds": roleIDs,
	}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) CreateRole(ctx context.Context, name string, perms []string) (*types.Role, error) {
	var role types.Role
	err := c.do(ctx, http.MethodPost, "/api/roles", map[string]any{
		"name": name, "permissions": perms,
	}, &role)
	if err != nil {
		return nil, err
	}
	return &role, nil
}
