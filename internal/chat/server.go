package chat

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/hub"
	"github.com/parleychat/parley/internal/observability"
	"github.com/parleychat/parley/internal/protocol"
	"github.com/parleychat/parley/internal/store"
)

// Server owns the listener, the session set, and the periodic sweep that
// purges finished sessions.
type Server struct {
	cfg     Config
	store   store.Store
	topics  *hub.TopicRegistry
	private *hub.Exchange
	logger  zerolog.Logger

	listener net.Listener

	sessionsMu sync.Mutex
	sessions   map[hub.SubscriberID]*Session

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewServer builds a chat server over the given store. Registries start
// empty; topic handles materialize on first use and are never evicted.
func NewServer(cfg Config, st store.Store) *Server {
	cfg = cfg.WithDefaults()
	return &Server{
		cfg:      cfg,
		store:    st,
		topics:   hub.NewTopicRegistry(),
		private:  hub.NewExchange(),
		logger:   log.With().Str("component", "chat").Logger(),
		sessions: make(map[hub.SubscriberID]*Session),
		done:     make(chan struct{}),
	}
}

// Serve listens on addr and accepts connections until Shutdown. It
// returns once the listener is bound; accepting runs in the background.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("chat server listening")

	s.wg.Add(2)
	go s.acceptLoop()
	go s.sweepLoop()
	return nil
}

// Addr returns the bound listen address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Warn().Err(err).Msg("accept failed")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.admit(conn)
		}()
	}
}

// admit runs the probe handshake and, on success, registers and starts a
// session. A peer that does not probe within the handshake window is cut.
func (s *Server) admit(conn net.Conn) {
	if err := s.handshake(conn); err != nil {
		observability.RecordHandshakeFailure()
		s.logger.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("handshake failed")
		_ = conn.Close()
		return
	}

	sess := newSession(conn, s.cfg, s.store, s.topics, s.private, s.logger)
	s.sessionsMu.Lock()
	select {
	case <-s.done:
		// Shutdown already drained the session list; admitting now would
		// leave this session untracked and block the shutdown wait.
		s.sessionsMu.Unlock()
		sess.teardown()
		return
	default:
	}
	s.sessions[sess.ID()] = sess
	live := len(s.sessions)
	s.sessionsMu.Unlock()
	observability.RecordSessionAdmitted()
	s.logger.Info().Str("remote", conn.RemoteAddr().String()).Int("live", live).Msg("session admitted")

	sess.run()
}

var errNotProbe = errors.New("chat: first frame is not a probe")

// handshake expects one probe frame inside the handshake window and
// answers it with an ack echoing the probe id, then clears the deadlines.
func (s *Server) handshake(conn net.Conn) error {
	deadline := time.Now().Add(s.cfg.HandshakeTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}

	msg, err := protocol.Decode(conn, s.cfg.Limits)
	if err != nil {
		return err
	}
	if msg.Header.MessageType != protocol.MessageProbe {
		return errNotProbe
	}
	if err := protocol.Encode(conn, protocol.NewProbeAck(msg.Header.MessageID)); err != nil {
		return err
	}
	return conn.SetDeadline(time.Time{})
}

func (s *Server) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

// sweepOnce purges sessions whose connection has finished. Teardown is
// idempotent, so racing the read loop's own teardown is fine.
func (s *Server) sweepOnce() {
	s.sessionsMu.Lock()
	var dead []*Session
	for id, sess := range s.sessions {
		if sess.Done() {
			delete(s.sessions, id)
			dead = append(dead, sess)
		}
	}
	s.sessionsMu.Unlock()

	for _, sess := range dead {
		sess.teardown()
		observability.RecordSessionSwept()
	}
	if len(dead) > 0 {
		s.logger.Info().Int("swept", len(dead)).Msg("sweep purged sessions")
	}
}

// SessionCount returns the number of tracked sessions.
func (s *Server) SessionCount() int {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return len(s.sessions)
}

// SessionSummary is a point-in-time view of one session for the admin
// surface.
type SessionSummary struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	User   string `json:"user,omitempty"`
	Topics int    `json:"topics"`
}

// Sessions snapshots the tracked sessions.
func (s *Server) Sessions() []SessionSummary {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	out := make([]SessionSummary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, SessionSummary{
			ID:     string(sess.ID()),
			State:  sess.State().String(),
			User:   sess.User(),
			Topics: sess.JoinedCount(),
		})
	}
	return out
}

// TopicCount returns the number of materialized topic handles.
func (s *Server) TopicCount() int { return s.topics.Len() }

// OnlineCount returns the number of registered private endpoints.
func (s *Server) OnlineCount() int { return s.private.OnlineCount() }

// Shutdown stops accepting, tears down every session, and waits for the
// worker goroutines to drain.
func (s *Server) Shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.listener != nil {
			_ = s.listener.Close()
		}

		s.sessionsMu.Lock()
		sessions := make([]*Session, 0, len(s.sessions))
		for id, sess := range s.sessions {
			delete(s.sessions, id)
			sessions = append(sessions, sess)
		}
		s.sessionsMu.Unlock()

		for _, sess := range sessions {
			sess.teardown()
		}
		s.wg.Wait()
		s.logger.Info().Msg("chat server stopped")
	})
}
