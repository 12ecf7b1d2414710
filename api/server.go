// Package api provides the HTTP surface of the gateway: login, the WebSocket
// endpoint, the REST broadcast side door, and health probes.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shipanion/gateway/auth"
	"github.com/shipanion/gateway/config"
	"github.com/shipanion/gateway/pkg/protocol"
	"github.com/shipanion/gateway/router"
	"github.com/shipanion/gateway/store"
)

// Server is the HTTP API server.
type Server struct {
	store         store.Store
	authProvider  auth.Provider
	loginProvider auth.LoginProvider
	builtin       *auth.Service // nil when auth is external (jwks)
	router        *router.Router
	logger        *slog.Logger
	mux           *chi.Mux
	startTime     time.Time
	maxBodyBytes  int64
	loginRL       *rateLimiter
}

// NewServer creates the API server and mounts all routes.
func NewServer(s store.Store, ap auth.Provider, lp auth.LoginProvider, rt *router.Router, cfg *config.Config, logger *slog.Logger) *Server {
	builtin, _ := ap.(*auth.Service)
	srv := &Server{
		store:         s,
		authProvider:  ap,
		loginProvider: lp,
		builtin:       builtin,
		router:        rt,
		logger:        logger.With("component", "api"),
		startTime:     time.Now(),
		maxBodyBytes:  cfg.Server.MaxBodyBytes,
	}

	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Use(chimw.RealIP)
	mux.Use(securityHeadersMiddleware)
	mux.Use(makeCORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check routes (unauthenticated)
	mux.Get("/healthz", srv.handleHealthz)
	mux.Get("/readyz", srv.handleReadyz)

	// Login route only registered when using builtin auth.
	if lp != nil {
		srv.loginRL = newRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		mux.With(ipRateLimitMiddleware(srv.loginRL)).Post("/token", srv.handleToken)
	}

	// Test token endpoint, only when one is configured.
	if builtin != nil && builtin.TestToken() != "" {
		mux.Get("/test-token", srv.handleTestToken)
	}

	// WebSocket route (auth handled inside)
	mux.Get("/ws", rt.HandleWS)

	// REST side door for pushing a message to every connected client.
	mux.Group(func(r chi.Router) {
		r.Use(srv.authMiddleware)
		r.Post("/send-message", srv.handleSendMessage)
	})

	srv.mux = mux
	return srv
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// StartBackgroundTasks starts periodic cleanup for the rate limiter.
func (s *Server) StartBackgroundTasks(ctx context.Context) {
	if s.loginRL != nil {
		s.loginRL.StartCleanup(ctx, 5*time.Minute, 10*time.Minute)
	}
}

// handleToken is an OAuth2 password-style login: form-encoded username and
// password in, bearer token out.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if len(username) < 3 || len(username) > 64 {
		writeError(w, http.StatusBadRequest, "username must be 3-64 characters")
		return
	}

	token, err := s.loginProvider.Login(r.Context(), username, password)
	if err != nil {
		s.logger.Warn("login failed", "username", username)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	expiresIn := int64(3600)
	if s.builtin != nil {
		expiresIn = int64(s.builtin.TokenExpiry().Seconds())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   expiresIn,
	})
}

func (s *Server) handleTestToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": s.builtin.TestToken(),
		"token_type":   "bearer",
	})
}

// handleSendMessage pushes a message to every connected WebSocket client.
// The body is an arbitrary JSON object; the gateway stamps timestamp,
// requestId, and the sending user before fan-out.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identity := getIdentityFromContext(r.Context())
	body["timestamp"] = protocol.Now()
	if _, ok := body["requestId"]; !ok {
		body["requestId"] = uuid.New().String()
	}
	body["user"] = identity.Username

	n := s.router.Registry().BroadcastAll(body)
	s.logger.Info("rest broadcast", "user", identity.Username, "connections", n)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "broadcast",
		"connections": n,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startTime).Truncate(time.Second).String(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
