package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/manager"
	"github.com/catalystpanel/catalyst/pkg/types"
)

// --- sessions ---

type loginRequest struct {
	UserID string `json:"userId"`
}

type loginResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	ExpiresAt string `json:"expiresAt"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.mgr.Login(req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, loginResponse{
		Token:     sess.Token,
		UserID:    sess.UserID,
		ExpiresAt: sess.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mgr.Logout(bearerToken(r))
	writeData(w, http.StatusOK, nil)
}

// --- nodes ---

func (s *Server) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string  `json:"name"`
		Address     string  `json:"address"`
		MaxMemoryMB int64   `json:"maxMemoryMb"`
		MaxCPUCores float64 `json:"maxCpuCores"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	node, err := s.mgr.RegisterNode(principal(r), manager.RegisterNodeRequest{
		Name:        req.Name,
		Address:     req.Address,
		MaxMemoryMB: req.MaxMemoryMB,
		MaxCPUCores: req.MaxCPUCores,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, node)
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.mgr.ListNodes(principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nodes)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	node, err := s.mgr.GetNode(principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, node)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.DeleteNode(principal(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleAddIPPool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NetworkName string   `json:"networkName"`
		Addresses   []string `json:"addresses"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	pool, err := s.mgr.AddIPPool(principal(r), chi.URLParam(r, "id"), req.NetworkName, req.Addresses)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, pool)
}

func (s *Server) handleListIPPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.mgr.ListIPPools(principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, pools)
}

// --- templates ---

func (s *Server) handleImportTemplate(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		writeError(w, errdefs.Wrap(errdefs.KindValidation, "read template document", err))
		return
	}
	tpl, err := s.mgr.ImportTemplate(principal(r), raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, tpl)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl types.Template
	if err := decode(r, &tpl); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.mgr.CreateTemplate(principal(r), &tpl)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, created)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	tpls, err := s.mgr.ListTemplates(principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, tpls)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.mgr.GetTemplate(principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, tpl)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.DeleteTemplate(principal(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

// --- access grants ---

func (s *Server) handleGrantAccess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string   `json:"userId"`
		Permissions []string `json:"permissions"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	grant, err := s.mgr.GrantAccess(principal(r), chi.URLParam(r, "id"), req.UserID, req.Permissions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, grant)
}

func (s *Server) handleListAccess(w http.ResponseWriter, r *http.Request) {
	grants, err := s.mgr.ListAccess(principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, grants)
}

func (s *Server) handleRevokeAccess(w http.ResponseWriter, r *http.Request) {
	err := s.mgr.RevokeAccess(principal(r), chi.URLParam(r, "id"), chi.URLParam(r, "grantId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

// --- users, roles, audit ---

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string   `json:"name"`
		RoleIDs []string `json:"roleIds"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := s.mgr.CreateUser(principal(r), req.Name, req.RoleIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, u)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.mgr.ListUsers(principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, users)
}

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string   `json:"name"`
		Permissions []string `json:"permissions"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	role, err := s.mgr.CreateRole(principal(r), req.Name, req.Permissions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, role)
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.mgr.ListRoles(principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, roles)
}

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	entries, err := s.mgr.AuditLog(principal(r), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, entries)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
