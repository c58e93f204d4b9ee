package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d4l-data4life/go-chat-gateway/pkg/models"
	"github.com/d4l-data4life/go-chat-gateway/pkg/relay"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// ConversationsHandler handles conversation endpoints
type ConversationsHandler struct {
	db     *gorm.DB
	titles *relay.TitleGenerator
}

// NewConversationsHandler creates a new conversations handler
func NewConversationsHandler(db *gorm.DB, titles *relay.TitleGenerator) *ConversationsHandler {
	return &ConversationsHandler{
		db:     db,
		titles: titles,
	}
}

// Routes returns conversation routes
func (h *ConversationsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListConversations)
	r.Post("/", h.CreateConversation)
	r.Get("/{id}", h.GetConversation)
	r.Patch("/{id}", h.UpdateConversation)
	r.Delete("/{id}", h.DeleteConversation)
	r.Post("/{id}/title", h.SetTitle)
	r.Post("/{id}/generate-title", h.GenerateTitle)

	return r
}

// CreateConversationRequest represents a request to create a conversation
type CreateConversationRequest struct {
	Title string `json:"title"`
}

// UpdateConversationRequest represents a request to update a conversation
type UpdateConversationRequest struct {
	Title string `json:"title"`
}

// ListConversations returns all conversations for the current user
func (h *ConversationsHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())

	var conversations []models.Conversation
	err := h.db.Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&conversations).Error

	if err != nil {
		logging.LogErrorf(err, "Failed to list conversations")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to list conversations"})
		return
	}

	render.JSON(w, r, conversations)
}

// CreateConversation creates a new conversation
func (h *ConversationsHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())

	var req CreateConversationRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}
	}

	conversation := models.Conversation{
		ID:     uuid.New(),
		UserID: userID,
		Title:  req.Title,
	}

	if err := h.db.Create(&conversation).Error; err != nil {
		logging.LogErrorf(err, "Failed to create conversation")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to create conversation"})
		return
	}

	logging.LogDebugf("Created conversation: %s for user: %s", conversation.ID, userID)

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, conversation)
}

// GetConversation returns a specific conversation
func (h *ConversationsHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())

	conversation, ok := h.ownedConversation(w, r, userID)
	if !ok {
		return
	}

	render.JSON(w, r, conversation)
}

// UpdateConversation renames a conversation
func (h *ConversationsHandler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())

	var req UpdateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid request body"})
		return
	}
	if req.Title == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Title is required"})
		return
	}

	conversation, ok := h.ownedConversation(w, r, userID)
	if !ok {
		return
	}

	conversation.Title = req.Title
	if err := h.db.Save(&conversation).Error; err != nil {
		logging.LogErrorf(err, "Failed to update conversation")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to update conversation"})
		return
	}

	logging.LogDebugf("Updated conversation: %s", conversation.ID)

	render.JSON(w, r, conversation)
}

// DeleteConversation deletes a conversation and its messages
func (h *ConversationsHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())
	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid conversation ID"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", convID, userID).
			Delete(&models.Conversation{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("conversation_id = ?", convID).
			Delete(&models.Message{}).Error
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Conversation not found"})
			return
		}
		logging.LogErrorf(err, "Failed to delete conversation")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to delete conversation"})
		return
	}

	logging.LogDebugf("Deleted conversation: %s", convID)

	render.NoContent(w, r)
}

// SetTitle overwrites the conversation title. Repeated calls are harmless,
// the last writer wins.
func (h *ConversationsHandler) SetTitle(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())

	var req UpdateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid request body"})
		return
	}
	if req.Title == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Title is required"})
		return
	}

	conversation, ok := h.ownedConversation(w, r, userID)
	if !ok {
		return
	}

	if err := h.db.Model(&conversation).Update("title", req.Title).Error; err != nil {
		logging.LogErrorf(err, "Failed to update conversation title")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to update conversation title"})
		return
	}

	render.NoContent(w, r)
}

// GenerateTitle re-runs the background title generation for a conversation
func (h *ConversationsHandler) GenerateTitle(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())

	conversation, ok := h.ownedConversation(w, r, userID)
	if !ok {
		return
	}

	var messageCount int64
	if err := h.db.Model(&models.Message{}).
		Where("conversation_id = ?", conversation.ID).
		Count(&messageCount).Error; err != nil {
		logging.LogErrorf(err, "Failed to count messages")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to generate title"})
		return
	}
	if messageCount == 0 {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Conversation has no messages"})
		return
	}

	go h.titles.Generate(context.Background(), conversation.ID)

	render.NoContent(w, r)
}

// ownedConversation loads the conversation addressed by the route while
// enforcing ownership. It writes the error response itself.
func (h *ConversationsHandler) ownedConversation(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (models.Conversation, bool) {
	var conversation models.Conversation

	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid conversation ID"})
		return conversation, false
	}

	err = h.db.Where("id = ? AND user_id = ?", convID, userID).First(&conversation).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Conversation not found"})
		} else {
			logging.LogErrorf(err, "Failed to get conversation")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to get conversation"})
		}
		return conversation, false
	}

	return conversation, true
}
