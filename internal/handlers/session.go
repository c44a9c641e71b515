package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/TIROK547/telegram-study-bot/internal/engine"
	"github.com/TIROK547/telegram-study-bot/internal/middleware"
	"github.com/TIROK547/telegram-study-bot/internal/models"
	"github.com/TIROK547/telegram-study-bot/internal/repository"
)

type SessionHandler struct {
	engine   *engine.Engine
	userRepo UserStore
}

func NewSessionHandler(eng *engine.Engine, userRepo UserStore) *SessionHandler {
	return &SessionHandler{engine: eng, userRepo: userRepo}
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "name is required", r))
		return
	}

	// Refresh the profile's display name on every contact, the way the
	// chat layer re-reports it.
	if err := h.userRepo.Upsert(r.Context(), userID, req.Name); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResp("STORE_UNAVAILABLE", "Failed to save user", r))
		return
	}

	if err := h.engine.Start(r.Context(), userID); err != nil {
		handleEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"message": "Session started"})
}

func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.engine.Pause(r.Context(), userID); err != nil {
		handleEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Session paused"})
}

func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.engine.Resume(r.Context(), userID); err != nil {
		handleEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Session resumed"})
}

func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	result, err := h.engine.End(r.Context(), userID)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Live reports the open session's elapsed seconds without mutating
// anything; 0 when idle.
func (h *SessionHandler) Live(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	elapsed, err := h.engine.GetLiveElapsed(r.Context(), userID)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"elapsed_seconds": elapsed})
}

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func handleEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var storeErr *engine.StoreError

	switch {
	case errors.Is(err, engine.ErrAlreadyInSession):
		writeJSON(w, http.StatusConflict, errorResp("ALREADY_IN_SESSION", "A session is already in progress", r))
	case errors.Is(err, engine.ErrNotActive):
		writeJSON(w, http.StatusConflict, errorResp("NOT_ACTIVE", "Session is not active", r))
	case errors.Is(err, engine.ErrNotPaused):
		writeJSON(w, http.StatusConflict, errorResp("NOT_PAUSED", "Session is not paused", r))
	case errors.Is(err, engine.ErrNoSession):
		writeJSON(w, http.StatusConflict, errorResp("NO_SESSION", "No session in progress", r))
	case errors.Is(err, repository.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "User not found", r))
	case errors.As(err, &storeErr):
		writeJSON(w, http.StatusServiceUnavailable, errorResp("STORE_UNAVAILABLE", "Storage temporarily unavailable", r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
