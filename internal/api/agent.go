package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/supportdesk/internal/chat"
	"github.com/ashureev/supportdesk/internal/domain"
	"github.com/ashureev/supportdesk/internal/identity"
)

// AgentHandler serves the dashboard routes. Every route requires a verified agent.
type AgentHandler struct {
	*Handler
}

// NewAgentHandler creates an agent handler.
func NewAgentHandler(base *Handler) *AgentHandler {
	return &AgentHandler{Handler: base}
}

// RegisterRoutes registers agent routes on r.
func (h *AgentHandler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.GetMe)
	r.Get("/conversations", h.ListConversations)
	r.Get("/conversations/{id}/messages", h.ListMessages)
	r.Post("/conversations/{id}/messages", h.PostMessage)
	r.Patch("/conversations/{id}/status", h.UpdateStatus)
	r.Post("/conversations/{id}/read", h.MarkRead)
	r.Post("/conversations/{id}/members", h.AddMember)
	r.Post("/typing", h.Typing)
	r.Get("/notifications", h.ListNotifications)
	r.Patch("/notifications", h.MarkNotificationsRead)
}

type agentMessageRequest struct {
	Content         string `json:"content" validate:"required,max=10000"`
	ClientMessageID string `json:"clientMessageId" validate:"max=128"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE PENDING CLOSED"`
}

type conversationReadRequest struct {
	MessageIDs []string `json:"messageIds" validate:"max=500,dive,required"`
}

type memberRequest struct {
	UserID string `json:"userId" validate:"required,max=256"`
}

type agentTypingRequest struct {
	ConversationID string `json:"conversationId" validate:"required"`
	IsTyping       bool   `json:"isTyping"`
}

type notificationsReadRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500,dive,required"`
}

// GetMe returns the current agent and the websites they own.
func (h *AgentHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}
	websites, err := h.repo.ListWebsitesByOwner(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if websites == nil {
		websites = []*domain.Website{}
	}
	JSON(w, http.StatusOK, map[string]any{
		"user":     user,
		"name":     user.DisplayName(),
		"websites": websites,
	})
}

// ListConversations lists every conversation the agent can access.
func (h *AgentHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.svc.ListConversations(r.Context(), identity.UserIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if convs == nil {
		convs = []*domain.ConversationSummary{}
	}
	JSON(w, http.StatusOK, convs)
}

// ListMessages returns a conversation's messages in delivery order.
func (h *AgentHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.svc.ListMessages(r.Context(), identity.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	JSON(w, http.StatusOK, msgs)
}

// PostMessage sends an agent reply.
func (h *AgentHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req agentMessageRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	msg, err := h.svc.SendAgentMessage(r.Context(), chat.AgentMessage{
		UserID:          identity.UserIDFromContext(r.Context()),
		ConversationID:  chi.URLParam(r, "id"),
		Content:         req.Content,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, msg)
}

// UpdateStatus changes a conversation's status.
func (h *AgentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	conv, err := h.svc.UpdateStatus(r.Context(), identity.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), domain.ConversationStatus(req.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, conv)
}

// MarkRead marks visitor messages of the conversation read. An empty body marks all of them.
func (h *AgentHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req conversationReadRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.MarkConversationRead(r.Context(), identity.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), req.MessageIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// AddMember shares a conversation with another agent.
func (h *AgentHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.AddConversationMember(r.Context(), identity.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), req.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Typing relays the agent's typing state to the conversation's website.
func (h *AgentHandler) Typing(w http.ResponseWriter, r *http.Request) {
	var req agentTypingRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.SetAgentTyping(r.Context(), identity.UserIDFromContext(r.Context()), req.ConversationID, req.IsTyping); err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ListNotifications returns the agent's notifications, newest first.
func (h *AgentHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	list, err := h.svc.ListNotifications(r.Context(), identity.UserIDFromContext(r.Context()), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.Notification{}
	}
	JSON(w, http.StatusOK, list)
}

// MarkNotificationsRead marks the given notifications of the agent read.
func (h *AgentHandler) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	var req notificationsReadRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := h.svc.MarkNotificationsRead(r.Context(), identity.UserIDFromContext(r.Context()), req.IDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int64{"count": n})
}
