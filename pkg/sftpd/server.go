package sftpd

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/catalystpanel/catalyst/pkg/access"
	"github.com/catalystpanel/catalyst/pkg/auth"
	"github.com/catalystpanel/catalyst/pkg/config"
	"github.com/catalystpanel/catalyst/pkg/filetree"
	"github.com/catalystpanel/catalyst/pkg/log"
	"github.com/catalystpanel/catalyst/pkg/metrics"
	"github.com/catalystpanel/catalyst/pkg/storage"
)

// DefaultIdleTimeout cuts sessions with no activity
const DefaultIdleTimeout = 30 * time.Minute

// Server is the SFTP front end
type Server struct {
	cfg      *config.Config
	store    storage.Store
	sessions *auth.SessionManager
	eval     *access.Evaluator

	sshCfg   *ssh.ServerConfig
	listener net.Listener
	stopCh   chan struct{}
	stopOnce sync.Once

	// IdleTimeout is settable before Start for tests.
	IdleTimeout time.Duration

	logger zerolog.Logger
}

// NewServer builds the SFTP server, loading or generating the host key
func NewServer(cfg *config.Config, store storage.Store, sessions *auth.SessionManager, eval *access.Evaluator) (*Server, error) {
	s := &Server{
		cfg:         cfg,
		store:       store,
		sessions:    sessions,
		eval:        eval,
		stopCh:      make(chan struct{}),
		IdleTimeout: DefaultIdleTimeout,
		logger:      log.WithComponent("sftpd"),
	}

	signer, err := LoadOrGenerateHostKey(cfg.SFTPHostKey)
	if err != nil {
		return nil, err
	}

	sshCfg := &ssh.ServerConfig{
		PasswordCallback: s.authenticate,
	}
	sshCfg.AddHostKey(signer)
	s.sshCfg = sshCfg
	return s, nil
}

// authenticate resolves username (workload id) and password (session token)
// into an authorized principal.
func (s *Server) authenticate(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
	workloadID := meta.User()
	w, err := s.store.GetWorkload(workloadID)
	if err != nil {
		w, err = s.store.GetWorkloadByUUID(workloadID)
	}
	if err != nil {
		return nil, fmt.Errorf("auth failed: unknown workload")
	}

	userID, err := s.sessions.Validate(string(password))
	if err != nil {
		return nil, fmt.Errorf("auth failed: invalid session token")
	}

	// Any file permission grants a session; per-operation checks do the
	// fine-grained gating.
	if s.eval.Can(userID, w, access.PermFileRead) != nil &&
		s.eval.Can(userID, w, access.PermFileWrite) != nil {
		return nil, fmt.Errorf("auth failed: no file access")
	}

	return &ssh.Permissions{
		Extensions: map[string]string{
			"user-id":     userID,
			"workload-id": w.ID,
		},
	}, nil
}

// Start listens on the configured SFTP port
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.SFTPPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("sftp listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("sftp listening")

	go s.acceptLoop()
	return nil
}

// Addr returns the bound listen address, or empty before Start
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the listener
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.logger.Warn().Err(err).Msg("accept failed")
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	// The idle timeout covers the whole session: every read or write
	// pushes the deadline out.
	idle := &idleConn{Conn: conn, timeout: s.IdleTimeout}

	sshConn, chans, reqs, err := ssh.NewServerConn(idle, s.sshCfg)
	if err != nil {
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	userID := sshConn.Permissions.Extensions["user-id"]
	workloadID := sshConn.Permissions.Extensions["workload-id"]
	logger := s.logger.With().Str("user_id", userID).Str("workload_id", workloadID).Logger()
	logger.Info().Msg("sftp session opened")

	metrics.SFTPSessionsActive.Inc()
	defer metrics.SFTPSessionsActive.Dec()

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			_ = newChan.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}
		channel, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go s.serveChannel(channel, requests, userID, workloadID, logger)
	}
}

// serveChannel waits for the sftp subsystem request and runs the request
// server over the channel.
func (s *Server) serveChannel(channel ssh.Channel, requests <-chan *ssh.Request, userID, workloadID string, logger zerolog.Logger) {
	defer channel.Close()

	for req := range requests {
		ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
		_ = req.Reply(ok, nil)
		if !ok {
			continue
		}

		w, err := s.store.GetWorkload(workloadID)
		if err != nil {
			logger.Warn().Err(err).Msg("workload vanished mid-session")
			return
		}
		tree, err := filetree.Open(s.cfg.ServerFilesRoot, w.UUID)
		if err != nil {
			logger.Warn().Err(err).Msg("chroot open failed")
			return
		}

		srv := sftp.NewRequestServer(channel, newHandlers(tree, s.eval, userID, w))
		if err := srv.Serve(); err != nil && !errors.Is(err, io.EOF) {
			logger.Debug().Err(err).Msg("sftp request server ended")
		}
		_ = srv.Close()
		return
	}
}

// idleConn enforces the session idle timeout at the transport
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleConn) Read(b []byte) (int, error) {
	_ = c.Conn.SetDeadline(time.Now().Add(c.timeout))
	return c.Conn.Read(b)
}

func (c *idleConn) Write(b []byte) (int, error) {
	_ = c.Conn.SetDeadline(time.Now().Add(c.timeout))
	return c.Conn.Write(b)
}
