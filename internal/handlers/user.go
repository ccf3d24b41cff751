package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"parking-bot/internal/middleware"
	"parking-bot/internal/repository"
	"parking-bot/internal/services"

	"github.com/rs/zerolog/log"
)

// PushTokenStore saves device tokens
type PushTokenStore interface {
	SetPushToken(ctx context.Context, id int64, pushToken *string) error
}

// TokenRequest is the body of POST /api/v1/tokens
type TokenRequest struct {
	UserID int64 `json:"user_id"`
}

// TokenResponse carries a client token
type TokenResponse struct {
	Token string `json:"token"`
}

// PushTokenRequest is the body of PUT /api/v1/push-token
type PushTokenRequest struct {
	PushToken string `json:"push_token"`
}

// UserHandler handles client tokens and device registration
type UserHandler struct {
	tokens *services.TokenService
	users  PushTokenStore
}

// NewUserHandler creates a new user handler
func NewUserHandler(tokens *services.TokenService, users PushTokenStore) *UserHandler {
	return &UserHandler{
		tokens: tokens,
		users:  users,
	}
}

// IssueToken handles POST /api/v1/tokens
func (h *UserHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		respondError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	token, err := h.tokens.GenerateJWT(req.UserID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", req.UserID).Msg("Failed to issue token")
		respondError(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	log.Info().Int64("user_id", req.UserID).Msg("Client token issued")
	respondJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// SetPushToken handles PUT /api/v1/push-token. An empty token unregisters the device.
func (h *UserHandler) SetPushToken(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req PushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var token *string
	if req.PushToken != "" {
		token = &req.PushToken
	}
	if err := h.users.SetPushToken(r.Context(), userID, token); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, "User not registered", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to save push token")
		respondError(w, "Failed to save push token", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
