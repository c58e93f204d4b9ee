package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/d4l-data4life/go-chat-gateway/pkg/models"
	"github.com/d4l-data4life/go-chat-gateway/pkg/relay"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// MessagesHandler handles message endpoints
type MessagesHandler struct {
	db       *gorm.DB
	engine   *relay.Engine
	upgrader websocket.Upgrader
}

// NewMessagesHandler creates a new messages handler
func NewMessagesHandler(db *gorm.DB, engine *relay.Engine) *MessagesHandler {
	return &MessagesHandler{
		db:     db,
		engine: engine,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // CORS is enforced on the HTTP routes
			},
		},
	}
}

// Routes returns message routes
func (h *MessagesHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListMessages)
	r.Post("/", h.SendMessage)
	r.Get("/stream", h.StreamMessages)

	return r
}

// SendMessageRequest represents a request to send a message
type SendMessageRequest struct {
	Content      string     `json:"content"`
	SystemPrompt string     `json:"systemPrompt,omitempty"`
	ModelID      *uuid.UUID `json:"modelId,omitempty"`
}

// ListMessages returns all messages in a conversation
func (h *MessagesHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())

	convID, ok := h.ownedConversationID(w, r, userID)
	if !ok {
		return
	}

	var messages []models.Message
	err := h.db.Where("conversation_id = ?", convID).
		Order(models.MessageOrder).
		Find(&messages).Error

	if err != nil {
		logging.LogErrorf(err, "Failed to list messages")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to list messages"})
		return
	}

	render.JSON(w, r, messages)
}

// SendMessage relays a user turn and streams the reply back as raw UTF-8
// fragments with an event-stream content type. The response status is
// committed before the first upstream token, so mid-stream failures simply
// truncate the body.
func (h *MessagesHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid request body"})
		return
	}
	if req.Content == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Message content is required"})
		return
	}

	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid conversation ID"})
		return
	}

	events, err := h.engine.Relay(r.Context(), relay.Request{
		ConversationID: convID,
		UserID:         userID,
		Content:        req.Content,
		SystemPrompt:   req.SystemPrompt,
		ModelConfigID:  req.ModelID,
	})
	if err != nil {
		status, message := relayErrorResponse(err)
		render.Status(r, status)
		render.JSON(w, r, map[string]string{"error": message})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		if event.Err != nil {
			logging.LogErrorfCtx(r.Context(), event.Err, "Relay stream aborted")
			return
		}
		if event.Content != "" {
			if _, err := w.Write([]byte(event.Content)); err != nil {
				logging.LogDebugf("Client disconnected during stream: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}

// StreamMessages handles streaming message exchanges over a WebSocket
func (h *MessagesHandler) StreamMessages(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())

	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	var conversation models.Conversation
	if err := h.db.Where("id = ? AND user_id = ?", convID, userID).First(&conversation).Error; err != nil {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.LogErrorf(err, "Failed to upgrade to WebSocket")
		return
	}
	defer conn.Close()

	logging.LogDebugf("WebSocket connection established: conversation=%s user=%s", convID, userID)

	for {
		var req SendMessageRequest
		err := conn.ReadJSON(&req)
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.LogDebugf("WebSocket closed normally")
			} else {
				logging.LogErrorf(err, "WebSocket read error")
			}
			break
		}

		if req.Content == "" {
			_ = conn.WriteJSON(map[string]string{"error": "Message content is required"})
			continue
		}

		events, err := h.engine.Relay(r.Context(), relay.Request{
			ConversationID: convID,
			UserID:         userID,
			Content:        req.Content,
			SystemPrompt:   req.SystemPrompt,
			ModelConfigID:  req.ModelID,
		})
		if err != nil {
			_, message := relayErrorResponse(err)
			_ = conn.WriteJSON(map[string]string{"error": message})
			continue
		}

		for event := range events {
			switch {
			case event.Err != nil:
				_ = conn.WriteJSON(map[string]interface{}{
					"type":  "error",
					"error": shortenUserError(event.Err),
				})
			case event.Done:
				_ = conn.WriteJSON(map[string]interface{}{
					"type": "done",
				})
			case event.Content != "":
				_ = conn.WriteJSON(map[string]interface{}{
					"type":    "content",
					"content": event.Content,
				})
			}
		}
	}
}

func (h *MessagesHandler) ownedConversationID(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (uuid.UUID, bool) {
	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid conversation ID"})
		return uuid.Nil, false
	}

	var conversation models.Conversation
	if err := h.db.Where("id = ? AND user_id = ?", convID, userID).First(&conversation).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Conversation not found"})
		} else {
			logging.LogErrorf(err, "Failed to get conversation")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to get conversation"})
		}
		return uuid.Nil, false
	}

	return convID, true
}

// relayErrorResponse maps relay setup errors onto HTTP status and a message
// safe to show to the user.
func relayErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, relay.ErrConversationNotFound):
		return http.StatusNotFound, "Conversation not found"
	case errors.Is(err, relay.ErrNoEnabledModel):
		return http.StatusInternalServerError, "No model is configured. Please contact your administrator."
	case errors.Is(err, relay.ErrModelDisabled):
		return http.StatusBadRequest, "The requested model is disabled"
	default:
		return http.StatusInternalServerError, "The model service is unavailable. Please try again."
	}
}

// shortenUserError trims upstream error text to something a chat client can
// show inline.
func shortenUserError(err error) string {
	if err == nil {
		return "Unexpected error"
	}
	msg := err.Error()
	if len(msg) > 140 {
		msg = msg[:140] + "…"
	}
	return msg
}
