package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TIROK547/telegram-study-bot/internal/engine"
	"github.com/TIROK547/telegram-study-bot/internal/models"
	"github.com/TIROK547/telegram-study-bot/internal/repository"
	"github.com/TIROK547/telegram-study-bot/internal/stats"
)

type StatsHandler struct {
	reader   *stats.Reader
	engine   *engine.Engine
	userRepo UserStore
}

func NewStatsHandler(reader *stats.Reader, eng *engine.Engine, userRepo UserStore) *StatsHandler {
	return &StatsHandler{reader: reader, engine: eng, userRepo: userRepo}
}

// Leaderboard serves the ranked board for the current daily, weekly, or
// monthly bucket.
func (h *StatsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	g := models.Granularity(chi.URLParam(r, "granularity"))
	switch g {
	case models.GranularityDaily, models.GranularityWeekly, models.GranularityMonthly:
	default:
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "granularity must be daily, weekly, or monthly", r))
		return
	}

	entries, err := h.reader.Leaderboard(r.Context(), g)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResp("STORE_UNAVAILABLE", "Failed to read leaderboard", r))
		return
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"granularity": g,
		"entries":     entries,
	})
}

// UserStats serves a user's profile with daily/weekly/monthly/all-time
// totals, resolved by display name. The user's session is swept first
// so a board read never sees time still parked on yesterday.
func (h *StatsHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	user, err := h.userRepo.GetByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "User not found", r))
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, errorResp("STORE_UNAVAILABLE", "Failed to read user", r))
		return
	}

	if err := h.engine.SweepUser(r.Context(), user.ID); err != nil {
		handleEngineError(w, r, err)
		return
	}

	ps, err := h.reader.PersonalStats(r.Context(), user.ID)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResp("STORE_UNAVAILABLE", "Failed to read stats", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":  user,
		"stats": ps,
	})
}
