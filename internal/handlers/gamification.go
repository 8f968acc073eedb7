package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"focusflow-backend/internal/middleware"
	"focusflow-backend/internal/services"
)

type GamificationHandler struct {
	gamification *services.GamificationService
	leaderboards *services.LeaderboardService
}

func NewGamificationHandler(gamification *services.GamificationService, leaderboards *services.LeaderboardService) *GamificationHandler {
	return &GamificationHandler{gamification: gamification, leaderboards: leaderboards}
}

func (h *GamificationHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	scope, clanID, ok := leaderboardParams(w, r)
	if !ok {
		return
	}

	lb, err := h.leaderboards.Get(r.Context(), scope, clanID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, lb)
}

func (h *GamificationHandler) Rank(w http.ResponseWriter, r *http.Request) {
	scope, clanID, ok := leaderboardParams(w, r)
	if !ok {
		return
	}

	rank, err := h.leaderboards.UserRank(r.Context(), scope, clanID, middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rank)
}

func (h *GamificationHandler) Hearts(w http.ResponseWriter, r *http.Request) {
	hearts, err := h.gamification.Hearts(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, hearts)
}

func (h *GamificationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.gamification.Stats(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *GamificationHandler) Achievements(w http.ResponseWriter, r *http.Request) {
	achievements, err := h.gamification.Achievements(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"achievements": achievements})
}

func leaderboardParams(w http.ResponseWriter, r *http.Request) (string, *uuid.UUID, bool) {
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = "daily"
	}

	var clanID *uuid.UUID
	if raw := r.URL.Query().Get("clan_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid clan ID", r))
			return "", nil, false
		}
		clanID = &id
	}
	return scope, clanID, true
}
