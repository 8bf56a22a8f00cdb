package ws

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection is one authenticated push connection. A user may hold several
// connections to the same session (for example two browser tabs).
type Connection struct {
	ID        string   // connection id (UUID)
	SessionID string   // session the connection is subscribed to
	UserID    string   // authenticated participant
	Conn      net.Conn // underlying TCP connection
	CreatedAt time.Time

	writeTimeout time.Duration
	writeMu      sync.Mutex   // serializes writes to this connection
	lastActive   atomic.Int64 // unix nanos of the last frame received
	processing   atomic.Bool  // set while a worker reads from the connection
}

func newConnection(id, sessionID, userID string, conn net.Conn, writeTimeout time.Duration) *Connection {
	c := &Connection{
		ID:           id,
		SessionID:    sessionID,
		UserID:       userID,
		Conn:         conn,
		CreatedAt:    time.Now(),
		writeTimeout: writeTimeout,
	}
	c.touch()
	return c
}

// WriteMessage sends a text frame. Concurrent writers never interleave.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer c.Conn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a protocol-level ping frame (opcode 0x9).
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

// WritePong answers a client ping, echoing its payload.
func (c *Connection) WritePong(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer c.Conn.SetWriteDeadline(time.Time{})
	}
	return ws.WriteFrame(c.Conn, ws.NewPongFrame(payload))
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// LastActive is the time the last frame was received.
func (c *Connection) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Connection) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// ConnectionManager is a thread-safe registry of connections indexed by id,
// by net.Conn (for readiness lookups) and by session.
type ConnectionManager struct {
	mu        sync.RWMutex
	byID      map[string]*Connection
	byConn    map[net.Conn]*Connection
	bySession map[string]map[string]*Connection
}

// NewConnectionManager creates an empty ConnectionManager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID:      make(map[string]*Connection),
		byConn:    make(map[net.Conn]*Connection),
		bySession: make(map[string]map[string]*Connection),
	}
}

// Add registers c. It reports whether c is the first connection of its
// session.
func (cm *ConnectionManager) Add(c *Connection) (first bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.byID[c.ID] = c
	cm.byConn[c.Conn] = c
	peers, ok := cm.bySession[c.SessionID]
	if !ok {
		peers = make(map[string]*Connection)
		cm.bySession[c.SessionID] = peers
	}
	peers[c.ID] = c
	return len(peers) == 1
}

// Remove unregisters and closes the connection with the given id. removed is
// false when it was already gone; last reports whether its session has no
// connections left.
func (cm *ConnectionManager) Remove(id string) (removed, last bool) {
	cm.mu.Lock()
	c, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
		delete(cm.byConn, c.Conn)
		peers := cm.bySession[c.SessionID]
		delete(peers, id)
		if len(peers) == 0 {
			delete(cm.bySession, c.SessionID)
			last = true
		}
	}
	cm.mu.Unlock()

	if ok {
		_ = c.Close()
	}
	return ok, last
}

// Get returns the connection with the given id, or nil.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.byID[id]
}

// GetByConn returns the connection wrapping conn, or nil.
func (cm *ConnectionManager) GetByConn(conn net.Conn) *Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.byConn[conn]
}

// InSession returns a snapshot of the session's connections.
func (cm *ConnectionManager) InSession(sessionID string) []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	peers := cm.bySession[sessionID]
	out := make([]*Connection, 0, len(peers))
	for _, c := range peers {
		out = append(out, c)
	}
	return out
}

// Count returns the current number of connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.byID)
}

// All returns a snapshot of all current connections.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]*Connection, 0, len(cm.byID))
	for _, c := range cm.byID {
		out = append(out, c)
	}
	return out
}
