package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"parking-bot/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler handles WebSocket connections of resident clients
type WebSocketHandler struct {
	hub    *services.WSHub
	tokens *services.TokenService
	bot    UpdateProcessor
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.WSHub, tokens *services.TokenService, bot UpdateProcessor) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		tokens: tokens,
		bot:    bot,
	}
}

// HandleWebSocket handles GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	userID, err := h.tokens.ValidateJWT(token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.hub.Register(userID, conn)
	defer h.hub.Unregister(userID, conn)

	ctx := r.Context()
	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Int64("user_id", userID).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to parse WebSocket message")
			h.sendError(userID, "Invalid message format")
			continue
		}

		h.handleMessage(ctx, userID, msg)
	}
}

// handleMessage runs a client message through the bot and sends the replies back
func (h *WebSocketHandler) handleMessage(ctx context.Context, userID int64, msg services.WSMessage) {
	upd := services.Update{
		Chat: services.ChatPrivate,
		From: services.Sender{ID: userID},
	}
	switch msg.Type {
	case "message":
		upd.Kind = services.UpdateMessage
		upd.Text = msg.Text
	case "action":
		upd.Kind = services.UpdateAction
		upd.Data = msg.Data
	case "document":
		upd.Kind = services.UpdateDocument
		upd.Document = msg.Document
	default:
		h.sendError(userID, "Unknown message type")
		return
	}

	replies, err := h.bot.Handle(ctx, upd)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Str("type", msg.Type).Msg("Failed to handle message")
		h.sendError(userID, "Failed to handle message")
		return
	}

	resp := newUpdatesResponse(replies)
	out := services.WSMessage{Type: "replies", Replies: resp.Replies, Menu: resp.Menu}
	if err := h.hub.SendToUser(userID, out); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to send replies")
	}
}

// sendError sends an error message to a user
func (h *WebSocketHandler) sendError(userID int64, message string) {
	msg := services.WSMessage{
		Type:    "error",
		Message: message,
	}
	if err := h.hub.SendToUser(userID, msg); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to send error")
	}
}
