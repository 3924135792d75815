package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/catalystpanel/catalyst/pkg/log"
	"github.com/catalystpanel/catalyst/pkg/manager"
	"github.com/catalystpanel/catalyst/pkg/metrics"
)

// Server is the HTTP front end over the manager
type Server struct {
	mgr    *manager.Manager
	http   *http.Server
	logger zerolog.Logger
}

// New builds the server and its route table
func New(mgr *manager.Manager) *Server {
	s := &Server{
		mgr:    mgr,
		logger: log.WithComponent("http"),
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(instrument)

	r.Get("/healthz", metrics.HealthHandler())
	r.Get("/readyz", metrics.ReadyHandler())
	r.Handle("/metrics", metrics.Handler())

	r.Post("/api/sessions", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Delete("/api/sessions", s.handleLogout)

		r.Route("/api/nodes", func(r chi.Router) {
			r.Get("/", s.handleListNodes)
			r.Post("/", s.handleRegisterNode)
			r.Get("/{id}", s.handleGetNode)
			r.Delete("/{id}", s.handleDeleteNode)
			r.Get("/{id}/ippools", s.handleListIPPools)
			r.Post("/{id}/ippools", s.handleAddIPPool)
		})

		r.Route("/api/templates", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.Post("/", s.handleCreateTemplate)
			r.Post("/import", s.handleImportTemplate)
			r.Get("/{id}", s.handleGetTemplate)
			r.Delete("/{id}", s.handleDeleteTemplate)
		})

		r.Route("/api/workloads", func(r chi.Router) {
			r.Get("/", s.handleListWorkloads)
			r.Post("/", s.handleCreateWorkload)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetWorkload)
				r.Put("/", s.handleUpdateWorkload)
				r.Delete("/", s.handleDeleteWorkload)

				r.Post("/install", s.lifecycleHandler(s.mgr.InstallWorkload))
				r.Post("/start", s.lifecycleHandler(s.mgr.StartWorkload))
				r.Post("/stop", s.lifecycleHandler(s.mgr.StopWorkload))
				r.Post("/restart", s.lifecycleHandler(s.mgr.RestartWorkload))
				r.Post("/suspend", s.handleSuspend)
				r.Post("/unsuspend", s.handleUnsuspend)
				r.Post("/transfer", s.handleTransfer)
				r.Post("/reset-crashes", s.handleResetCrashes)

				r.Get("/logs", s.handleWorkloadLogs)
				r.Get("/stats", s.handleWorkloadMetrics)

				r.Get("/access", s.handleListAccess)
				r.Post("/access", s.handleGrantAccess)
				r.Delete("/access/{grantId}", s.handleRevokeAccess)

				r.Route("/files", func(r chi.Router) {
					r.Get("/", s.handleFileList)
					r.Get("/read", s.handleFileRead)
					r.Post("/write", s.handleFileWrite)
					r.Post("/mkdir", s.handleFileMkdir)
					r.Post("/create", s.handleFileCreate)
					r.Post("/delete", s.handleFileDelete)
					r.Post("/chmod", s.handleFileChmod)
					r.Post("/rename", s.handleFileRename)
					r.Post("/compress", s.handleFileCompress)
					r.Post("/decompress", s.handleFileDecompress)
				})
			})
		})

		r.Route("/api/users", func(r chi.Router) {
			r.Get("/", s.handleListUsers)
			r.Post("/", s.handleCreateUser)
		})
		r.Route("/api/roles", func(r chi.Router) {
			r.Get("/", s.handleListRoles)
			r.Post("/", s.handleCreateRole)
		})
		r.Get("/api/audit", s.handleAuditLog)
	})

	s.http = &http.Server{
		Addr:              mgr.Config().HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route table for tests
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves until Shutdown. Blocks; callers run it in a goroutine.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("http listening")
	metrics.RegisterComponent("http", true, "")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
