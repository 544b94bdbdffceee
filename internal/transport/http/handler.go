package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/cwrk-planet/race-service/internal/domain"
	"github.com/cwrk-planet/race-service/internal/tracking"
	"github.com/cwrk-planet/race-service/pkg/logger"
)

// RaceReader exposes the live state of race rooms.
type RaceReader interface {
	Leaderboard(raceID string) ([]tracking.LeaderboardEntry, bool)
	Presence(raceID string) ([]tracking.PresenceItem, bool)
	Status(raceID string) (domain.RaceStatus, bool)
}

type Handler struct {
	races RaceReader
}

func NewHandler(races RaceReader) *Handler {
	return &Handler{races: races}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type LeaderboardResponse struct {
	RaceID      string                      `json:"raceId"`
	Status      domain.RaceStatus           `json:"status"`
	Leaderboard []tracking.LeaderboardEntry `json:"leaderboard"`
}

type PresenceResponse struct {
	RaceID       string                  `json:"raceId"`
	Status       domain.RaceStatus       `json:"status"`
	Participants []tracking.PresenceItem `json:"participants"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("handler.writeJSON:", slog.Any("err", err))
	}
}

// GET /races/{id}/leaderboard
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	raceID := chi.URLParam(r, "id")

	board, ok := h.races.Leaderboard(raceID)
	if !ok {
		logger.FromContext(r.Context()).Debug("handler.Leaderboard: unknown race", "race_id", raceID)
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: domain.ErrRaceNotFound.Error()})
		return
	}
	status, _ := h.races.Status(raceID)
	if board == nil {
		board = []tracking.LeaderboardEntry{}
	}

	writeJSON(w, http.StatusOK, LeaderboardResponse{RaceID: raceID, Status: status, Leaderboard: board})
}

// GET /races/{id}/presence
func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	raceID := chi.URLParam(r, "id")

	items, ok := h.races.Presence(raceID)
	if !ok {
		logger.FromContext(r.Context()).Debug("handler.Presence: unknown race", "race_id", raceID)
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: domain.ErrRaceNotFound.Error()})
		return
	}
	status, _ := h.races.Status(raceID)
	if items == nil {
		items = []tracking.PresenceItem{}
	}

	writeJSON(w, http.StatusOK, PresenceResponse{RaceID: raceID, Status: status, Participants: items})
}
