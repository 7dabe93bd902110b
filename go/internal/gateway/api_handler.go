package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/JacquesBronk/FreeScrumPoker/go/internal/models"
	"github.com/JacquesBronk/FreeScrumPoker/go/internal/room"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// RoomFetcher returns a room snapshot, creating the room if needed.
type RoomFetcher interface {
	Room(ctx context.Context, code, teamKey string) (*models.Room, error)
}

// TeamDefaultsStore reads and writes stored team defaults.
type TeamDefaultsStore interface {
	Lookup(teamKey string) (models.TeamDefaults, bool)
	Set(teamKey string, d models.TeamDefaults)
}

// Counter reports a current count.
type Counter func() int

// APIHandler serves the REST endpoints.
type APIHandler struct {
	rooms       RoomFetcher
	defaults    TeamDefaultsStore
	roomCount   Counter
	connCount   Counter
	clock       clockwork.Clock
	startedAt   time.Time
	maxBodySize int64
}

func NewAPIHandler(rooms RoomFetcher, defaults TeamDefaultsStore, roomCount, connCount Counter, clock clockwork.Clock) *APIHandler {
	return &APIHandler{
		rooms:       rooms,
		defaults:    defaults,
		roomCount:   roomCount,
		connCount:   connCount,
		clock:       clock,
		startedAt:   clock.Now(),
		maxBodySize: 256 * 1024,
	}
}

// Routes mounts the API on r.
func (h *APIHandler) Routes(r chi.Router) {
	r.Get("/health", h.health)
	r.Get("/room/{roomId}", h.getRoom)
	r.Get("/cardsets", h.cardSets)
	r.Get("/templates", h.templates)
	r.Get("/teams/{teamKey}/defaults", h.getTeamDefaults)
	r.Put("/teams/{teamKey}/defaults", h.putTeamDefaults)
}

func (h *APIHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"uptime":      h.clock.Since(h.startedAt).Seconds(),
		"rooms":       h.roomCount(),
		"connections": h.connCount(),
		"version":     Version,
	})
}

func (h *APIHandler) getRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "roomId")
	team := r.URL.Query().Get("team")

	snapshot, err := h.rooms.Room(r.Context(), code, team)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, room.ErrValidation) {
			status = http.StatusBadRequest
		}
		log.Error().Err(err).Str("room_id", code).Msg("failed to fetch room")
		writeJSON(w, status, map[string]any{"success": false, "error": "failed to fetch room"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "room": snapshot})
}

func (h *APIHandler) cardSets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "cardSets": room.CardSets()})
}

func (h *APIHandler) templates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "templates": room.Templates()})
}

func (h *APIHandler) getTeamDefaults(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "teamKey"))
	d, ok := h.defaults.Lookup(key)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "team not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "defaults": d})
}

func (h *APIHandler) putTeamDefaults(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "teamKey"))
	if key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "team key is required"})
		return
	}

	var d models.TeamDefaults
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid team defaults"})
		return
	}

	h.defaults.Set(key, d)
	log.Info().Str("team_key", key).Msg("team defaults updated")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
