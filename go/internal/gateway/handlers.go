package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cardroom/go/internal/game"
	"github.com/mcdev12/cardroom/go/internal/models"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistorySource serves archived round results.
type HistorySource interface {
	RecentRounds(ctx context.Context, room string, limit int) ([]models.RoundResult, error)
}

// Server exposes the websocket endpoint and the read-only HTTP routes.
type Server struct {
	reg         *game.Registry
	connections *ConnectionManager
	history     HistorySource
	checks      []namedCheck
}

// NewServer builds the gateway. history may be nil when archiving is off.
func NewServer(reg *game.Registry, config ConnectionConfig, history HistorySource) *Server {
	return &Server{
		reg:         reg,
		connections: NewConnectionManager(config, NewDispatcher(reg)),
		history:     history,
	}
}

func (s *Server) Connections() *ConnectionManager { return s.connections }

// RegisterRoutes registers the gateway routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.HandleHealth)
	mux.HandleFunc("GET /ws", s.HandleWebSocket)
	mux.HandleFunc("GET /stats", s.HandleStats)
	mux.HandleFunc("GET /rooms/{id}/history", s.HandleHistory)
}

// HandleWebSocket handles GET /ws
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := s.connections.UpgradeConnection(w, r); err != nil {
		// the upgrader has already replied
		return
	}
}

type statsResponse struct {
	game.Stats
	Connections map[string]interface{} `json:"connections"`
}

// HandleStats handles GET /stats
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.reg.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to collect stats")
		http.Error(w, "Failed to collect stats", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Stats:       stats,
		Connections: s.connections.GetConnectionStats(),
	})
}

// HandleHistory handles GET /rooms/{id}/history?limit=N
func (s *Server) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.NotFound(w, r)
		return
	}
	room := r.PathValue("id")
	if room == "" {
		http.Error(w, "Room ID is required", http.StatusBadRequest)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	rounds, err := s.history.RecentRounds(r.Context(), room, limit)
	if err != nil {
		log.Error().Err(err).Str("room_id", room).Msg("failed to load round history")
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	if rounds == nil {
		rounds = []models.RoundResult{}
	}
	writeJSON(w, http.StatusOK, rounds)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
