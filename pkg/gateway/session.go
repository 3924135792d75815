package gateway

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/catalystpanel/catalyst/pkg/errdefs"
	"github.com/catalystpanel/catalyst/pkg/log"
)

// session is one live agent connection. Writes funnel through sendCh and a
// single writer goroutine, so frames reach the agent in admission order.
type session struct {
	nodeID string
	conn   net.Conn

	sendCh chan *Frame
	done   chan struct{}
	once   sync.Once

	logger zerolog.Logger
}

func newSession(nodeID string, conn net.Conn, queueDepth int) *session {
	s := &session{
		nodeID: nodeID,
		conn:   conn,
		sendCh: make(chan *Frame, queueDepth),
		done:   make(chan struct{}),
		logger: log.WithNodeID(nodeID),
	}
	go s.writeLoop()
	return s
}

func (s *session) writeLoop() {
	for {
		select {
		case f := <-s.sendCh:
			if err := WriteFrame(s.conn, f); err != nil {
				s.logger.Warn().Err(err).Str("type", f.Type).Msg("session write failed")
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// enqueue admits a frame into the write queue, waiting at most admission.
// A closed session fails node_unavailable; a full queue that does not drain
// inside the window fails node_backpressured.
func (s *session) enqueue(ctx context.Context, f *Frame, admission time.Duration) error {
	select {
	case <-s.done:
		return errdefs.Newf(errdefs.KindNodeUnavailable, "session to node %s closed", s.nodeID)
	default:
	}

	timer := time.NewTimer(admission)
	defer timer.Stop()

	select {
	case s.sendCh <- f:
		return nil
	case <-s.done:
		return errdefs.Newf(errdefs.KindNodeUnavailable, "session to node %s closed", s.nodeID)
	case <-ctx.Done():
		return errdefs.Wrap(errdefs.KindNodeBackpressured, "send canceled", ctx.Err())
	case <-timer.C:
		return errdefs.Newf(errdefs.KindNodeBackpressured,
			"node %s did not admit frame within %s", s.nodeID, admission)
	}
}

// close tears the session down. Safe to call from any goroutine, any number
// of times.
func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
