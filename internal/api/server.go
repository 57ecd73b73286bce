// Package api exposes a read-only HTTP surface over the session engine:
// health/monitoring plus JSON views of the current poll, the history log,
// and the roster. All mutation happens over the WebSocket channel.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"pollroom/internal/session"
	"pollroom/internal/websocket"
)

// Server handles the HTTP API endpoints.
type Server struct {
	engine   *session.Engine
	registry *websocket.Registry
	router   *mux.Router
	started  time.Time
}

// NewServer creates the API server and sets up its routes.
func NewServer(engine *session.Engine, registry *websocket.Registry) *Server {
	s := &Server{
		engine:   engine,
		registry: registry,
		router:   mux.NewRouter(),
		started:  time.Now(),
	}

	s.router.Use(s.corsMiddleware)
	// OPTIONS is listed so preflight requests reach the CORS middleware; mux
	// skips route middleware on method mismatches.
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/api/poll", s.handleCurrentPoll).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/api/history", s.handleHistory).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/api/roster", s.handleRoster).Methods(http.MethodGet, http.MethodOptions)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.registry.Stats()
	_, pollActive := s.engine.CurrentPoll()

	s.respond(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"connections":    stats["connections"],
		"students":       stats["students"],
		"teachers":       stats["teachers"],
		"poll_active":    pollActive,
	})
}

func (s *Server) handleCurrentPoll(w http.ResponseWriter, r *http.Request) {
	poll, ok := s.engine.CurrentPoll()
	if !ok {
		s.respondError(w, http.StatusNotFound, "no active poll")
		return
	}
	s.respond(w, http.StatusOK, poll)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.engine.History())
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.engine.Roster())
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respond(w, status, map[string]string{"error": message})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
