package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"gwi.com/chatbot-backend/internal/core"
	"gwi.com/chatbot-backend/internal/errs"
	"gwi.com/chatbot-backend/internal/store"
)

type CreateConversationRequest struct {
	Title string `json:"title" validate:"required,max=255"`
}

type CreateConversationResponse struct {
	Status         string    `json:"status"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
}

type ConversationSummary struct {
	ID        uuid.UUID                `json:"id"`
	Title     string                   `json:"title"`
	Status    store.ConversationStatus `json:"status"`
	CreatedAt time.Time                `json:"created_at"`
}

type UpdateConversationRequest struct {
	Title  *string `json:"title" validate:"omitempty,min=1,max=255"`
	Status *string `json:"status" validate:"omitempty,oneof=active archived"`
}

func (h *APIHandler) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	var req CreateConversationRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		h.fail(w, r, errs.Newf(errs.ErrInvalidArgument, "title must not be blank"))
		return
	}

	conv, err := h.chatService.CreateConversation(r.Context(), userID, req.Title)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusCreated, CreateConversationResponse{
		Status:         "success",
		ConversationID: conv.ID,
		Title:          conv.Title,
		CreatedAt:      conv.CreatedAt,
	})
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	page, err := h.parsePagination(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	convs, err := h.chatService.ListConversations(r.Context(), userID, page.Skip, page.Limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]ConversationSummary, len(convs))
	for i, c := range convs {
		out[i] = ConversationSummary{ID: c.ID, Title: c.Title, Status: c.Status, CreatedAt: c.CreatedAt}
	}
	h.JSON(w, http.StatusOK, out)
}

func (h *APIHandler) UpdateConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	convID, err := urlUUID(r, "conversationID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req UpdateConversationRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var update store.ConversationUpdate
	update.Title = req.Title
	if req.Status != nil {
		status := store.ConversationStatus(*req.Status)
		update.Status = &status
	}

	conv, err := h.chatService.UpdateConversation(r.Context(), userID, convID, update)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, conv)
}

func (h *APIHandler) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	convID, err := urlUUID(r, "conversationID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.chatService.DeleteConversation(r.Context(), userID, convID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type PostChatRequest struct {
	Content  string `json:"content" validate:"required"`
	Provider string `json:"provider" validate:"omitempty,max=64"`
	Model    string `json:"model" validate:"omitempty,max=128"`
}

type PostChatResponse struct {
	Reply       string         `json:"reply"`
	UserMessage *store.Message `json:"user_message"`
	AIMessage   *store.Message `json:"ai_message"`
}

func (h *APIHandler) PostChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	convID, err := urlUUID(r, "conversationID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req PostChatRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.chatService.Chat(r.Context(), userID, convID, core.ChatRequest{
		Content:  req.Content,
		Provider: req.Provider,
		Model:    req.Model,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, PostChatResponse{
		Reply:       result.Reply,
		UserMessage: result.UserMessage,
		AIMessage:   result.AIMessage,
	})
}
