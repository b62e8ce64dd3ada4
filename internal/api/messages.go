package api

import (
	"net/http"

	"github.com/google/uuid"

	"gwi.com/chatbot-backend/internal/errs"
	"gwi.com/chatbot-backend/internal/store"
)

// CreateMessageRequest stores a message as-is. message_count is accepted for
// compatibility but the store assigns the sequence number.
type CreateMessageRequest struct {
	ConversationID string  `json:"conversation_id" validate:"required,uuid"`
	Role           string  `json:"role" validate:"required,oneof=system ai user"`
	Content        *string `json:"content"`
	TokenCount     int     `json:"token_count" validate:"gte=0"`
	MessageCount   int     `json:"message_count" validate:"gte=0"`
	Provider       *string `json:"provider" validate:"omitempty,max=64"`
	Model          *string `json:"model" validate:"omitempty,max=128"`
}

func (h *APIHandler) CreateMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	var req CreateMessageRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	msg := &store.Message{
		ConversationID: uuid.MustParse(req.ConversationID),
		Role:           store.MessageRole(req.Role),
		Content:        req.Content,
		TokenCount:     req.TokenCount,
		Provider:       req.Provider,
		Model:          req.Model,
	}
	if err := h.chatService.CreateMessage(r.Context(), userID, msg); err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, msg)
}

func (h *APIHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	convID, err := uuid.Parse(r.URL.Query().Get("conversation_id"))
	if err != nil {
		h.fail(w, r, errs.Wrap(errs.ErrInvalidArgument, err, "conversation_id must be a valid UUID"))
		return
	}
	page, err := h.parsePagination(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	messages, err := h.chatService.ListMessages(r.Context(), userID, convID, page.Skip, page.Limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, messages)
}

func (h *APIHandler) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	convID, err := urlUUID(r, "conversationID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	msgID, err := urlUUID(r, "messageID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.chatService.DeleteMessage(r.Context(), userID, convID, msgID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
