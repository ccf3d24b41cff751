package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"parking-bot/internal/services"

	"github.com/rs/zerolog/log"
)

const maxUpdateBytes = 5 << 20

// UpdateProcessor turns an inbound update into replies
type UpdateProcessor interface {
	Handle(ctx context.Context, upd services.Update) ([]services.Reply, error)
}

// UpdatesResponse is the body returned to the chat gateway
type UpdatesResponse struct {
	Replies []services.Reply `json:"replies"`
	Menu    []string         `json:"menu,omitempty"`
}

// UpdateHandler receives updates forwarded by the chat gateway
type UpdateHandler struct {
	bot UpdateProcessor
}

// NewUpdateHandler creates a new update handler
func NewUpdateHandler(bot UpdateProcessor) *UpdateHandler {
	return &UpdateHandler{bot: bot}
}

// HandleUpdate handles POST /api/v1/updates
func (h *UpdateHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var upd services.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBytes)).Decode(&upd); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	replies, err := h.bot.Handle(r.Context(), upd)
	if err != nil {
		if errors.Is(err, services.ErrNoSender) {
			respondError(w, "from.id is required", http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Msg("Failed to handle update")
		respondError(w, "Failed to handle update", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, newUpdatesResponse(replies))
}

func newUpdatesResponse(replies []services.Reply) UpdatesResponse {
	resp := UpdatesResponse{Replies: replies}
	if resp.Replies == nil {
		resp.Replies = []services.Reply{}
	}
	for _, reply := range replies {
		if reply.Menu {
			resp.Menu = services.MenuLabels()
			break
		}
	}
	return resp
}
