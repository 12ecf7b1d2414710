// Package router owns the WebSocket side of the gateway: authenticating new
// connections, attaching them to sessions, and pumping messages through the
// dispatcher. Delivery policy lives here; message semantics live in handlers.
package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shipanion/gateway/auth"
	"github.com/shipanion/gateway/dispatch"
	"github.com/shipanion/gateway/pkg/protocol"
	"github.com/shipanion/gateway/store"
)

// makeUpgrader creates a WebSocket upgrader with origin checking.
func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // non-browser clients
			}
			return originSet[origin]
		},
	}
}

// Options configures the Router.
type Options struct {
	AllowedOrigins  []string // for WebSocket origin check
	MaxMessageBytes int64    // max WebSocket message size (default 64KB)
}

// Router accepts WebSocket connections and routes traffic between them,
// the dispatcher, and the session store.
type Router struct {
	store          store.Store
	authProvider   auth.Provider
	dispatcher     *dispatch.Dispatcher
	registry       *Registry
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	maxMessageSize int64
}

// New creates a Router.
func New(s store.Store, ap auth.Provider, d *dispatch.Dispatcher, reg *Registry, logger *slog.Logger, opts Options) *Router {
	limit := opts.MaxMessageBytes
	if limit == 0 {
		limit = 64 * 1024 // 64KB default
	}
	return &Router{
		store:          s,
		authProvider:   ap,
		dispatcher:     d,
		registry:       reg,
		logger:         logger.With("component", "router"),
		upgrader:       makeUpgrader(opts.AllowedOrigins),
		maxMessageSize: limit,
	}
}

// Registry exposes the connection registry for out-of-band senders like the
// HTTP broadcast endpoint.
func (r *Router) Registry() *Registry {
	return r.registry
}

// HandleWS handles a client WebSocket connection for its whole lifetime.
//
// The token comes from the ?token= query parameter or the Authorization
// header; browsers cannot set custom headers during the WebSocket handshake,
// so keep access logs configured to exclude query parameters. A missing or
// invalid token closes the connection with a policy violation before any
// message is processed.
func (r *Router) HandleWS(w http.ResponseWriter, req *http.Request) {
	tokenStr := req.URL.Query().Get("token")
	if tokenStr == "" {
		tokenStr = req.Header.Get("Authorization")
		if strings.HasPrefix(tokenStr, "Bearer ") {
			tokenStr = strings.TrimPrefix(tokenStr, "Bearer ")
		}
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	if tokenStr == "" {
		r.closeWithPolicyViolation(conn, "Missing authentication token")
		return
	}
	identity, err := r.authProvider.ValidateToken(req.Context(), tokenStr)
	if err != nil {
		r.logger.Warn("websocket auth failed", "error", err)
		r.closeWithPolicyViolation(conn, "Invalid or expired token")
		return
	}

	ctx := req.Context()
	sessionID, err := r.resolveSession(ctx, identity, req.URL.Query().Get("session_id"))
	if err != nil {
		r.logger.Error("session setup failed", "user", identity.Username, "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"),
			time.Now().Add(5*time.Second))
		return
	}

	cc := &clientConn{
		id:        uuid.New().String(),
		username:  identity.Username,
		sessionID: sessionID,
		conn:      conn,
	}
	r.registry.register(cc)
	defer r.registry.unregister(cc.id)

	conn.SetReadLimit(r.maxMessageSize)
	stopKeepalive := cc.startKeepalive()
	defer stopKeepalive()

	r.logger.Info("client connected", "user", identity.Username, "session_id", sessionID, "conn_id", cc.id)
	defer r.logger.Info("client disconnected", "user", identity.Username, "conn_id", cc.id)

	// Messages from one connection are processed strictly in order: read,
	// dispatch, deliver, then read the next. Concurrency exists only across
	// connections.
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			r.logger.Debug("read error", "conn_id", cc.id, "error", err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg protocol.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			r.logger.Warn("invalid message from client", "conn_id", cc.id, "error", err)
			r.registry.sendTo(cc, malformedResponse(identity, sessionID))
			continue
		}

		// The connection's session is authoritative; clients cannot address
		// another session by stamping a different id on the message.
		msg.SessionID = sessionID

		// Touch the session so active conversations are not age-swept.
		if _, err := r.store.GetSession(ctx, sessionID); err != nil {
			r.logger.Warn("session touch failed", "session_id", sessionID, "error", err)
		}

		resp, update := r.dispatcher.Dispatch(ctx, &msg, identity)
		r.registry.sendTo(cc, resp)

		if update != nil {
			r.deliverUpdate(update)
		}
		if msg.Broadcast {
			// Sender already has the response; share it with session peers.
			r.registry.broadcastToSessionExcept(sessionID, cc.id, resp)
		}
	}
}

// deliverUpdate fans a contextual update out to its session, or to every
// connection when the update carries no session id.
func (r *Router) deliverUpdate(update *protocol.ContextualUpdate) {
	if update.SessionID != "" {
		n := r.registry.BroadcastToSession(update.SessionID, update)
		r.logger.Debug("contextual update delivered", "type", update.Type, "session_id", update.SessionID, "conns", n)
		return
	}
	n := r.registry.BroadcastAll(update)
	r.logger.Debug("contextual update broadcast to all", "type", update.Type, "conns", n)
}

// resolveSession returns the session this connection should attach to. A
// requested session id is honored only when the session exists and belongs to
// the connecting principal; otherwise a fresh session is created without
// surfacing the mismatch to the client.
func (r *Router) resolveSession(ctx context.Context, identity *auth.Identity, requested string) (string, error) {
	if requested != "" {
		sess, err := r.store.GetSession(ctx, requested)
		if err != nil {
			return "", err
		}
		if sess != nil && sess.Username == identity.Username {
			r.logger.Info("session resumed", "session_id", sess.ID, "user", identity.Username)
			return sess.ID, nil
		}
		r.logger.Debug("requested session not resumable", "session_id", requested, "user", identity.Username)
	}
	id, err := r.store.CreateSession(ctx, identity.Username)
	if err != nil {
		return "", err
	}
	r.logger.Info("session created", "session_id", id, "user", identity.Username)
	return id, nil
}

func (r *Router) closeWithPolicyViolation(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(5*time.Second))
}

func malformedResponse(identity *auth.Identity, sessionID string) *protocol.Response {
	return &protocol.Response{
		Type:      protocol.TypeError,
		Payload:   protocol.ErrorPayload{Message: "Invalid message format"},
		IsError:   true,
		Timestamp: protocol.Now(),
		RequestID: uuid.New().String(),
		User:      identity.Username,
		SessionID: sessionID,
	}
}

// StartSweeper starts a background goroutine that deletes sessions whose last
// activity is older than maxAge. An interval <= 0 disables sweeping.
func (r *Router) StartSweeper(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 || maxAge <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := r.store.SweepSessions(ctx, maxAge)
				if err != nil {
					r.logger.Warn("session sweep failed", "error", err)
					continue
				}
				if n > 0 {
					r.logger.Info("swept idle sessions", "count", n, "max_age", maxAge)
				}
			}
		}
	}()
}
