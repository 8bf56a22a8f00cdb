// Package ws is the push channel: participants hold a WebSocket per session
// and receive session_joined and match_found events without polling. Frames
// are read by a bounded worker pool driven by epoll.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tastebuds/match-app/internal/auth"
	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/metrics"
)

// ServerConfig holds tunable parameters for the push server.
type ServerConfig struct {
	WorkerPoolSize int           // max concurrent read workers
	MaxConnections int           // hard cap on total connections
	ReadTimeout    time.Duration // deadline for reading one frame
	WriteTimeout   time.Duration // deadline for writing one frame
	Heartbeat      HeartbeatConfig
}

// DefaultServerConfig returns production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		WorkerPoolSize: 256,
		MaxConnections: 100000,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		Heartbeat:      DefaultHeartbeatConfig(),
	}
}

// SessionReader loads sessions for the membership check.
type SessionReader interface {
	GetSession(ctx context.Context, id string) (*domain.Session, error)
}

// Subscriber delivers a session's session.update and match.found events.
type Subscriber interface {
	SubscribeSession(key, sessionID string, handler func(subject string, data []byte)) error
	UnsubscribeSession(key, sessionID string)
}

// Deps are the collaborators of Server.
type Deps struct {
	Auth       auth.Verifier
	Sessions   SessionReader
	Subscriber Subscriber
	Logger     *zap.Logger
}

// Server accepts push connections and fans session events out to them.
type Server struct {
	config     ServerConfig
	deps       Deps
	logger     *zap.Logger
	epoll      *Epoll
	conns      *ConnectionManager
	workerPool chan struct{}
	onMessage  func(conn *Connection, data []byte)
	subsMu     sync.Mutex // orders session subscribe/unsubscribe with Add/Remove
	done       chan struct{}
	stopOnce   sync.Once
}

// NewServer creates a Server. onMessage is called from a worker goroutine
// for every complete text frame.
func NewServer(config ServerConfig, deps Deps, onMessage func(conn *Connection, data []byte)) *Server {
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 1
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Server{
		config:     config,
		deps:       deps,
		logger:     deps.Logger.Named("ws"),
		conns:      NewConnectionManager(),
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		onMessage:  onMessage,
		done:       make(chan struct{}),
	}
}

// SetOnMessage replaces the frame callback. It must be called before Start.
func (s *Server) SetOnMessage(fn func(conn *Connection, data []byte)) {
	s.onMessage = fn
}

// Start creates the poller and starts the event loop and heartbeat. It
// returns immediately; mount HandleUpgrade on an HTTP router to accept
// connections.
func (s *Server) Start() error {
	var err error
	s.epoll, err = NewEpoll()
	if err != nil {
		return fmt.Errorf("ws: failed to create epoll: %w", err)
	}

	go s.startEventLoop()
	StartHeartbeat(s, s.config.Heartbeat)

	s.logger.Info("push server started",
		zap.Int("workers", s.config.WorkerPoolSize),
		zap.Int("max_conns", s.config.MaxConnections))
	return nil
}

// HandleUpgrade authenticates the request, checks that the caller
// participates in ?session_id and upgrades to WebSocket. The token comes from
// ?token or the Authorization header since browsers cannot set headers on
// WebSocket handshakes.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxConnections > 0 && s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r.Header.Get("Authorization"))
	}
	userID, err := s.deps.Auth.Verify(token)
	if err != nil {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	sess, err := s.deps.Sessions.GetSession(ctx, sessionID)
	cancel()
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "session not found", http.StatusNotFound)
		return
	case err != nil:
		s.logger.Warn("load session for upgrade", zap.String("session_id", sessionID), zap.Error(err))
		http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
		return
	case !sess.IsParticipant(userID):
		http.Error(w, "not a participant of this session", http.StatusForbidden)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := newConnection(uuid.New().String(), sessionID, userID, conn, s.config.WriteTimeout)
	if err := s.register(c); err != nil {
		s.logger.Warn("register connection", zap.String("conn_id", c.ID), zap.Error(err))
		_ = conn.Close()
		return
	}

	s.logger.Info("new connection",
		zap.String("conn_id", c.ID),
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.Int("total", s.conns.Count()))
}

func (s *Server) register(c *Connection) error {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if s.conns.Add(c) && s.deps.Subscriber != nil {
		sessionID := c.SessionID
		err := s.deps.Subscriber.SubscribeSession(subscriptionKey(sessionID), sessionID, func(subject string, data []byte) {
			s.deliver(sessionID, subject, data)
		})
		if err != nil {
			s.conns.Remove(c.ID)
			return fmt.Errorf("ws: subscribe session %s: %w", sessionID, err)
		}
	}
	if err := s.epoll.Add(c.Conn); err != nil {
		s.unregister(c)
		return fmt.Errorf("ws: epoll add: %w", err)
	}
	metrics.PushConnections.Inc()
	return nil
}

// unregister removes c and drops the session subscription with its last
// connection. It reports whether c was still registered.
func (s *Server) unregister(c *Connection) bool {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	removed, last := s.conns.Remove(c.ID)
	if last && s.deps.Subscriber != nil {
		s.deps.Subscriber.UnsubscribeSession(subscriptionKey(c.SessionID), c.SessionID)
	}
	return removed
}

// deliver translates a session event into a push message and writes it to
// every connection of the session.
func (s *Server) deliver(sessionID, subject string, data []byte) {
	msg, err := pushFromEvent(subject, data)
	if err != nil {
		s.logger.Warn("translate session event", zap.String("subject", subject), zap.Error(err))
		return
	}
	for _, c := range s.conns.InSession(sessionID) {
		if err := c.WriteMessage(msg); err != nil {
			s.logger.Debug("push write failed", zap.String("conn_id", c.ID), zap.Error(err))
			s.RemoveConnection(c)
			continue
		}
		metrics.PushMessages.WithLabelValues("out").Inc()
	}
}

func (s *Server) startEventLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conns, err := s.epoll.Wait(200)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Warn("epoll wait error", zap.Error(err))
			continue
		}

		for _, conn := range conns {
			conn := conn
			s.workerPool <- struct{}{}
			go func() {
				defer func() { <-s.workerPool }()
				s.handleConn(conn)
				s.epoll.Rearm(conn)
			}()
		}
	}
}

// handleConn reads one frame from a ready connection. Control frames are
// handled without blocking on a data frame that may never arrive.
func (s *Server) handleConn(netConn net.Conn) {
	c := s.conns.GetByConn(netConn)
	if c == nil {
		return
	}
	// Level-triggered epoll may dispatch the same connection twice.
	if !c.processing.CompareAndSwap(false, true) {
		return
	}
	defer c.processing.Store(false)

	if s.config.ReadTimeout > 0 {
		_ = netConn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	header, reader, err := wsutil.NextReader(netConn, ws.StateServerSide)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			// Stale dispatch; the heartbeat evicts dead connections.
			return
		}
		s.RemoveConnection(c)
		return
	}
	_ = netConn.SetReadDeadline(time.Time{})
	c.touch()

	if header.OpCode.IsControl() {
		s.handleControl(c, header, reader)
		return
	}

	data := make([]byte, header.Length)
	if header.Length > 0 {
		if _, err := io.ReadFull(reader, data); err != nil {
			s.RemoveConnection(c)
			return
		}
	}
	if len(data) == 0 {
		return
	}

	metrics.PushMessages.WithLabelValues("in").Inc()
	if s.onMessage != nil {
		s.onMessage(c, data)
	}
}

// handleControl consumes a control frame's payload so the stream stays
// aligned on the next frame header.
func (s *Server) handleControl(c *Connection, header ws.Header, reader io.Reader) {
	if header.Length > ws.MaxControlFramePayloadSize {
		s.RemoveConnection(c)
		return
	}
	payload := make([]byte, header.Length)
	if _, err := io.ReadFull(reader, payload); err != nil {
		s.RemoveConnection(c)
		return
	}

	switch header.OpCode {
	case ws.OpClose:
		s.RemoveConnection(c)
	case ws.OpPing:
		if err := c.WritePong(payload); err != nil {
			s.logger.Debug("write pong", zap.String("conn_id", c.ID), zap.Error(err))
			s.RemoveConnection(c)
		}
	}
}

// RemoveConnection closes c and unregisters it. Concurrent calls for the
// same connection are safe.
func (s *Server) RemoveConnection(c *Connection) {
	if s.epoll != nil {
		_ = s.epoll.Remove(c.Conn)
	}
	if !s.unregister(c) {
		return
	}
	metrics.PushConnections.Dec()
	s.logger.Info("connection closed",
		zap.String("conn_id", c.ID),
		zap.String("session_id", c.SessionID),
		zap.Int("total", s.conns.Count()))
}

// Connections exposes the connection registry.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Shutdown stops the event loop and closes every connection.
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.done)
		for _, c := range s.conns.All() {
			s.RemoveConnection(c)
		}
		if s.epoll != nil {
			_ = s.epoll.Close()
		}
		s.logger.Info("push server stopped")
	})
}

func subscriptionKey(sessionID string) string {
	return "push:" + sessionID
}
