package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/supportdesk/internal/chat"
	"github.com/ashureev/supportdesk/internal/domain"
	"github.com/ashureev/supportdesk/internal/identity"
)

const multipartMemory = 8 << 20

// WidgetHandler serves the anonymous routes used by the embeddable widget.
type WidgetHandler struct {
	*Handler
}

// NewWidgetHandler creates a widget handler.
func NewWidgetHandler(base *Handler) *WidgetHandler {
	return &WidgetHandler{Handler: base}
}

// RegisterRoutes registers widget routes on r.
func (h *WidgetHandler) RegisterRoutes(r chi.Router) {
	r.Post("/messages", h.PostMessage)
	r.Get("/messages", h.GetMessages)
	r.Post("/messages/read", h.MarkRead)
	r.Post("/typing", h.Typing)
	r.Post("/upload", h.Upload)
}

type widgetMessageRequest struct {
	WebsiteID       string `json:"websiteId" validate:"required"`
	VisitorID       string `json:"visitorId"`
	Content         string `json:"content" validate:"max=10000"`
	ClientMessageID string `json:"clientMessageId" validate:"max=128"`
}

type widgetTypingRequest struct {
	WebsiteID string `json:"websiteId" validate:"required"`
	VisitorID string `json:"visitorId"`
	IsTyping  bool   `json:"isTyping"`
}

type widgetReadRequest struct {
	WebsiteID  string   `json:"websiteId" validate:"required"`
	VisitorID  string   `json:"visitorId"`
	MessageIDs []string `json:"messageIds" validate:"required,min=1,max=500,dive,required"`
}

type widgetHistoryResponse struct {
	ConversationID string                    `json:"conversationId,omitempty"`
	Status         domain.ConversationStatus `json:"status,omitempty"`
	Messages       []*domain.Message         `json:"messages"`
}

// visitorID prefers the body value and falls back to the X-Visitor-ID header.
func visitorID(r *http.Request, fromBody string) string {
	if v := strings.TrimSpace(fromBody); v != "" {
		return v
	}
	return identity.VisitorIDFromRequest(r)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// PostMessage accepts a visitor message as JSON, or as multipart form data
// with an optional "file" part.
func (h *WidgetHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	if isMultipart(r) {
		h.postMultipartMessage(w, r)
		return
	}
	var req widgetMessageRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.svc.SendVisitorMessage(r.Context(), chat.VisitorMessage{
		WebsiteID:       req.WebsiteID,
		VisitorID:       visitorID(r, req.VisitorID),
		IPAddress:       identity.IPFromRequest(r),
		Content:         req.Content,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, msg)
}

func (h *WidgetHandler) postMultipartMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload()+maxJSONBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := widgetMessageRequest{
		WebsiteID:       r.FormValue("websiteId"),
		VisitorID:       r.FormValue("visitorId"),
		Content:         r.FormValue("content"),
		ClientMessageID: r.FormValue("clientMessageId"),
	}
	if err := validate.Struct(req); err != nil {
		Error(w, http.StatusBadRequest, validationError(err).Error())
		return
	}
	in := chat.VisitorMessage{
		WebsiteID:       req.WebsiteID,
		VisitorID:       visitorID(r, req.VisitorID),
		IPAddress:       identity.IPFromRequest(r),
		Content:         req.Content,
		ClientMessageID: req.ClientMessageID,
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		msg, err := h.svc.SendVisitorMessage(r.Context(), in)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		JSON(w, http.StatusCreated, msg)
		return
	case err != nil:
		Error(w, http.StatusBadRequest, "invalid file part")
		return
	}
	defer func() { _ = file.Close() }()

	msg, err := h.svc.SendVisitorMessageWithFile(r.Context(), in, header.Filename, file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, msg)
}

// GetMessages returns the visitor's current conversation history.
func (h *WidgetHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	websiteID := r.URL.Query().Get("websiteId")
	visitor := visitorID(r, r.URL.Query().Get("visitorId"))
	if websiteID == "" || visitor == "" {
		Error(w, http.StatusBadRequest, "websiteId and visitorId are required")
		return
	}

	conv, msgs, err := h.svc.VisitorHistory(r.Context(), websiteID, visitor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := widgetHistoryResponse{Messages: msgs}
	if conv != nil {
		resp.ConversationID = conv.ID
		resp.Status = conv.Status
	}
	JSON(w, http.StatusOK, resp)
}

// MarkRead records that the visitor has seen agent-facing messages.
func (h *WidgetHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req widgetReadRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.MarkReadByVisitor(r.Context(), req.WebsiteID, visitorID(r, req.VisitorID), req.MessageIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// Typing relays the visitor's typing state.
func (h *WidgetHandler) Typing(w http.ResponseWriter, r *http.Request) {
	var req widgetTypingRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.SetTyping(r.Context(), req.WebsiteID, visitorID(r, req.VisitorID), req.IsTyping); err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Upload stores a file and returns its attachment descriptor without sending a message.
func (h *WidgetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload()+maxJSONBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	att, err := h.svc.UploadVisitorFile(r.Context(), r.FormValue("websiteId"), visitorID(r, r.FormValue("visitorId")), header.Filename, file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, att)
}

func (h *WidgetHandler) maxUpload() int64 {
	if u := h.svc.Uploader(); u != nil {
		return u.MaxBytes()
	}
	return 5 << 20
}
