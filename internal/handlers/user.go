package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/TIROK547/telegram-study-bot/internal/middleware"
	"github.com/TIROK547/telegram-study-bot/internal/models"
	"github.com/TIROK547/telegram-study-bot/internal/repository"
)

// UserStore is what the facade needs from the profile subsystem.
type UserStore interface {
	Upsert(ctx context.Context, userID, name string) error
	GetByID(ctx context.Context, userID string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Search(ctx context.Context, query string) ([]*models.User, error)
	UpdateProfile(ctx context.Context, userID, field string, grade int) error
}

type UserHandler struct {
	userRepo UserStore
}

func NewUserHandler(userRepo UserStore) *UserHandler {
	return &UserHandler{userRepo: userRepo}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userRepo.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResp("STORE_UNAVAILABLE", "Failed to list users", r))
		return
	}
	if users == nil {
		users = []*models.User{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "q is required", r))
		return
	}

	users, err := h.userRepo.Search(r.Context(), query)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResp("STORE_UNAVAILABLE", "Failed to search users", r))
		return
	}
	if users == nil {
		users = []*models.User{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"results": users})
}

// UpdateProfile saves field-of-study and grade for the acting user.
// Grade bounds follow the study group's conventions: university terms
// run 1-22, school grades 6-12, and honarestan students carry their
// branch in the field value with grade 0.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		Field string `json:"field"`
		Grade int    `json:"grade"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if msg := validateProfile(req.Field, req.Grade); msg != "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", msg, r))
		return
	}

	if err := h.userRepo.UpdateProfile(r.Context(), userID, req.Field, req.Grade); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "User not found", r))
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, errorResp("STORE_UNAVAILABLE", "Failed to update profile", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Profile updated"})
}

func validateProfile(field string, grade int) string {
	switch {
	case field == models.FieldDaneshgah:
		if grade < 1 || grade > 22 {
			return "grade must be between 1 and 22 for daneshgah"
		}
	case field == models.FieldRiazi, field == models.FieldEnsani, field == models.FieldTajrobi:
		if grade < 6 || grade > 12 {
			return "grade must be between 6 and 12"
		}
	case strings.HasPrefix(field, models.FieldHonarestan+":"):
		if strings.TrimPrefix(field, models.FieldHonarestan+":") == "" {
			return "honarestan field requires a branch"
		}
	default:
		return "unknown field"
	}
	return ""
}
