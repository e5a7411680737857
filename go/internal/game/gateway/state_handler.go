package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/geoguess/go/internal/game/registry"
	"github.com/mcdev12/geoguess/go/internal/game/session"
	"github.com/rs/zerolog/log"
)

// StateProvider serves the state a reconnecting client needs to redraw.
type StateProvider interface {
	SessionState(ctx context.Context, id uuid.UUID) (*session.Snapshot, error)
	ActiveSessions(ctx context.Context) ([]session.Snapshot, error)
}

// GameStateResponse is a snapshot plus the seconds left on the current phase.
type GameStateResponse struct {
	session.Snapshot
	TimeRemaining *int `json:"time_remaining_sec,omitempty"`
}

// StateHandler handles HTTP requests for game state
type StateHandler struct {
	stateProvider StateProvider
	now           func() time.Time
}

func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
		now:           time.Now,
	}
}

// HandleGetGameState handles GET /api/games/{id}/state
func (h *StateHandler) HandleGetGameState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	idStr := extractSessionIDFromPath(r.URL.Path)
	if idStr == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}
	sessionID, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "Invalid session ID format", http.StatusBadRequest)
		return
	}

	snap, err := h.stateProvider.SessionState(r.Context(), sessionID)
	if errors.Is(err, registry.ErrSessionNotFound) {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to get game state")
		http.Error(w, "Failed to get game state", http.StatusInternalServerError)
		return
	}

	resp := GameStateResponse{Snapshot: *snap}
	if !snap.Deadline.IsZero() {
		if remaining := int(snap.Deadline.Sub(h.now()).Seconds()); remaining > 0 {
			resp.TimeRemaining = &remaining
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode game state response")
	}
}

// HandleGetActiveGames handles GET /api/games/active
func (h *StateHandler) HandleGetActiveGames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	games, err := h.stateProvider.ActiveSessions(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get active games")
		http.Error(w, "Failed to get active games", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(games); err != nil {
		log.Error().Err(err).Msg("failed to encode active games response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/games/active", h.HandleGetActiveGames)
	mux.HandleFunc("/api/games/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/state") {
			h.HandleGetGameState(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// extractSessionIDFromPath extracts the id from /api/games/{id}/state
func extractSessionIDFromPath(path string) string {
	const prefix = "/api/games/"
	const suffix = "/state"

	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return ""
	}
	if len(path) <= len(prefix)+len(suffix) {
		return ""
	}
	return path[len(prefix) : len(path)-len(suffix)]
}
