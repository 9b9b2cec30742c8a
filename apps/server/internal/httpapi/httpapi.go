// Package httpapi is a thin HTTP surface alongside the websocket
// dispatcher: health checks, a leaderboard read, and deck statistics. It
// carries no game logic.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"towerplane/apps/server/internal/store"
	"towerplane/deck"
)

type Handler struct {
	leaderboard store.LeaderboardStore
	design      *deck.Design
	startedAt   string
}

func New(leaderboard store.LeaderboardStore, design *deck.Design, startedAt string) *Handler {
	return &Handler{leaderboard: leaderboard, design: design, startedAt: startedAt}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.HandleFunc("/leaderboard/top", h.handleLeaderboardTop)
	mux.HandleFunc("/design/stats", h.handleDesignStats)
}

type healthResponse struct {
	Status    string `json:"status"`
	StartedAt string `json:"startedAt"`
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", StartedAt: h.startedAt})
}

type leaderboardEntryResponse struct {
	PlayerID    string `json:"playerId"`
	TotalPoints int    `json:"totalPoints"`
	GamesPlayed int    `json:"gamesPlayed"`
	GamesWon    int    `json:"gamesWon"`
}

func (h *Handler) handleLeaderboardTop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	count := 10
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid count")
			return
		}
		count = n
	}

	entries, err := h.leaderboard.GetTop(r.Context(), count)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "leaderboard query failed")
		return
	}
	out := make([]leaderboardEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = leaderboardEntryResponse{
			PlayerID:    string(e.PlayerID),
			TotalPoints: e.TotalPoints,
			GamesPlayed: e.GamesPlayed,
			GamesWon:    e.GamesWon,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleDesignStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.design.Stats())
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
