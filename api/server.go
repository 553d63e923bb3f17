package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wricardo/chess-relay/game/chess"
	"github.com/wricardo/chess-relay/game/session"
	"github.com/wricardo/chess-relay/transport/websocket"
)

// SessionStore is the read side of the session registry.
type SessionStore interface {
	Get(id string) (session.Session, error)
	List() []session.Session
	Count() int
}

// SessionListing describes a session in GET /api/sessions. It carries no
// session code: a code is all it takes to join a waiting game or move in one.
type SessionListing struct {
	FirstSide      string     `json:"first_side"`
	SecondSide     string     `json:"second_side,omitempty"`
	Full           bool       `json:"full"`
	ActiveSide     chess.Side `json:"active_side"`
	MoveCount      int        `json:"move_count"`
	Connections    int        `json:"connections"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
}

// SessionSummary is one session looked up by code. Neither form includes the
// board, which only the two participants receive.
type SessionSummary struct {
	ID string `json:"id"`
	SessionListing
}

// Stats is the response of GET /api/stats.
type Stats struct {
	Sessions    int `json:"sessions"`
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

// Server represents the HTTP surface: the websocket endpoint plus a
// read-only REST API over live sessions.
type Server struct {
	sessions SessionStore
	hub      *websocket.Hub
	router   *mux.Router
	logger   *zap.Logger
}

// NewServer creates a new API server
func NewServer(sessions SessionStore, hub *websocket.Hub, logger *zap.Logger) *Server {
	s := &Server{
		sessions: sessions,
		hub:      hub,
		router:   mux.NewRouter(),
		logger:   logger,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.originMiddleware)

	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.hub.ServeWS)
}

// originMiddleware applies the hub's origin allow-list to browser requests
// and answers allowed ones with CORS headers.
func (s *Server) originMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		if !s.hub.CheckOrigin(r) {
			s.logger.Debug("origin rejected",
				zap.String("origin", origin),
				zap.String("path", r.URL.Path),
			)
			respondError(w, http.StatusForbidden, "origin not allowed")
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
		next.ServeHTTP(w, r)
	})
}

// Handle mounts an extra handler on the router.
func (s *Server) Handle(path string, handler http.Handler) {
	s.router.Handle(path, handler)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) listing(sess session.Session) SessionListing {
	return SessionListing{
		FirstSide:      sess.FirstParticipant,
		SecondSide:     sess.SecondParticipant,
		Full:           sess.Joined,
		ActiveSide:     sess.ActiveSide,
		MoveCount:      sess.MoveCount,
		Connections:    s.hub.RoomSize(sess.ID),
		CreatedAt:      sess.CreatedAt,
		LastActivityAt: sess.LastActivityAt,
	}
}

func (s *Server) summarize(sess session.Session) SessionSummary {
	return SessionSummary{ID: sess.ID, SessionListing: s.listing(sess)}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.List()

	query := r.URL.Query()
	sortBy := query.Get("sort")    // "created", "activity" (default)
	order := query.Get("order")    // "asc", "desc" (default)
	limitStr := query.Get("limit") // number of sessions to return

	if sortBy == "" {
		sortBy = "activity"
	}
	if order == "" {
		order = "desc"
	}
	if sortBy != "created" && sortBy != "activity" {
		respondError(w, http.StatusBadRequest, "sort must be one of: created, activity")
		return
	}
	if order != "asc" && order != "desc" {
		respondError(w, http.StatusBadRequest, "order must be one of: asc, desc")
		return
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = sessions[i].CreatedAt, sessions[j].CreatedAt
		} else {
			ti, tj = sessions[i].LastActivityAt, sessions[j].LastActivityAt
		}

		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	total := len(sessions)
	limit := total
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < total {
			limit = l
		}
	}
	sessions = sessions[:limit]

	listings := make([]SessionListing, 0, len(sessions))
	for _, sess := range sessions {
		listings = append(listings, s.listing(sess))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(listings),
		"total":    total,
		"sessions": listings,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("session lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "session lookup failed")
		return
	}

	respondJSON(w, http.StatusOK, s.summarize(sess))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, Stats{
		Sessions:    s.sessions.Count(),
		Connections: s.hub.ConnectionCount(),
		Rooms:       s.hub.RoomCount(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
