package router

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// clientConn is one live WebSocket connection. The mutex guards all writes to
// the underlying connection, including keepalive pings.
type clientConn struct {
	id        string
	username  string
	sessionID string
	conn      *websocket.Conn
	mu        sync.Mutex
}

func (cc *clientConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.conn.WriteMessage(websocket.TextMessage, data)
}

// Registry tracks live connections keyed by connection id. Delivery is
// best-effort and independent per connection: a failed write to one peer
// never blocks or fails delivery to the others.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*clientConn
	logger *slog.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]*clientConn),
		logger: logger.With("component", "registry"),
	}
}

func (reg *Registry) register(cc *clientConn) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.conns[cc.id] = cc
}

func (reg *Registry) unregister(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.conns, id)
}

// Count returns the number of live connections.
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.conns)
}

// sendTo delivers a message to a single connection.
func (reg *Registry) sendTo(cc *clientConn, v any) {
	if err := cc.writeJSON(v); err != nil {
		reg.logger.Debug("send failed", "conn_id", cc.id, "error", err)
	}
}

// BroadcastToSession delivers a message to every connection attached to the
// session and returns how many connections it was sent to.
func (reg *Registry) BroadcastToSession(sessionID string, v any) int {
	return reg.broadcast(v, func(cc *clientConn) bool {
		return cc.sessionID == sessionID
	})
}

// broadcastToSessionExcept is BroadcastToSession minus one connection,
// used when the excluded peer already received the message directly.
func (reg *Registry) broadcastToSessionExcept(sessionID, exceptID string, v any) int {
	return reg.broadcast(v, func(cc *clientConn) bool {
		return cc.sessionID == sessionID && cc.id != exceptID
	})
}

// BroadcastAll delivers a message to every live connection.
func (reg *Registry) BroadcastAll(v any) int {
	return reg.broadcast(v, func(*clientConn) bool { return true })
}

func (reg *Registry) broadcast(v any, want func(*clientConn) bool) int {
	reg.mu.RLock()
	targets := make([]*clientConn, 0, len(reg.conns))
	for _, cc := range reg.conns {
		if want(cc) {
			targets = append(targets, cc)
		}
	}
	reg.mu.RUnlock()

	sent := 0
	for _, cc := range targets {
		if err := cc.writeJSON(v); err != nil {
			reg.logger.Debug("broadcast send failed", "conn_id", cc.id, "error", err)
			continue
		}
		sent++
	}
	return sent
}
