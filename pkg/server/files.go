package server

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/catalystpanel/catalyst/pkg/access"
	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/filetree"
)

// tree opens the workload's chroot after the per-operation permission check
func (s *Server) tree(r *http.Request, perm string) (*filetree.Tree, error) {
	return s.mgr.FileTree(principal(r), chi.URLParam(r, "id"), perm)
}

func (s *Server) handleFileList(w http.ResponseWriter, r *http.Request) {
	tree, err := s.tree(r, access.PermFileRead)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := tree.List(r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, entries)
}

func (s *Server) handleFileRead(w http.ResponseWriter, r *http.Request) {
	tree, err := s.tree(r, access.PermFileRead)
	if err != nil {
		writeError(w, err)
		return
	}
	rc, entry, err := tree.ReadFile(r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", entry.Mime)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

func (s *Server) handleFileWrite(w http.ResponseWriter, r *http.Request) {
	tree, err := s.tree(r, access.PermFileWrite)
	if err != nil {
		writeError(w, err)
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, errdefs.Validation("path query parameter is required"))
		return
	}
	n, err := tree.WriteFile(path, r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int64{"bytes": n})
}

func (s *Server) handleFileMkdir(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tree, err := s.tree(r, access.PermFileWrite)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := tree.CreateDir(req.Path); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, nil)
}

func (s *Server) handleFileCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tree, err := s.tree(r, access.PermFileWrite)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := tree.CreateFile(req.Path); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, nil)
}

func (s *Server) handleFileDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths []string `json:"paths"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tree, err := s.tree(r, access.PermFileDelete)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := tree.DeleteRecursive(req.Paths); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleFileChmod(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
		Mode string `json:"mode"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tree, err := s.tree(r, access.PermFileWrite)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := tree.Chmod(req.Path, req.Mode); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleFileRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pairs []filetree.RenamePair `json:"pairs"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tree, err := s.tree(r, access.PermFileWrite)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := tree.Rename(req.Pairs); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleFileCompress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths   []string `json:"paths"`
		Archive string   `json:"archive"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tree, err := s.tree(r, access.PermFileWrite)
	if err != nil {
		writeError(w, err)
		return
	}
	entry, err := tree.Compress(req.Paths, req.Archive)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, entry)
}

func (s *Server) handleFileDecompress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Archive string `json:"archive"`
		Target  string `json:"target"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tree, err := s.tree(r, access.PermFileWrite)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := tree.Decompress(req.Archive, req.Target); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}
