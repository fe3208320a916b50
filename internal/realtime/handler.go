package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/supportdesk/internal/identity"
)

// HandlerConfig controls transport timing.
type HandlerConfig struct {
	KeepaliveInterval time.Duration
	RetryDelay        time.Duration
	AllowedOrigins    []string
}

// Handler serves the realtime HTTP endpoints: channel authorization, SSE and WebSocket.
type Handler struct {
	hub    *Hub
	auth   *Authorizer
	cfg    HandlerConfig
	logger *slog.Logger
}

// NewHandler creates the realtime endpoints over a hub.
func NewHandler(hub *Hub, auth *Authorizer, cfg HandlerConfig, logger *slog.Logger) *Handler {
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = 10 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{hub: hub, auth: auth, cfg: cfg, logger: logger.With("component", "realtime")}
}

type authRequest struct {
	SocketID    string `json:"socket_id"`
	ChannelName string `json:"channel_name"`
}

// HandleAuth grants a verified agent access to a private channel.
// POST /realtime/auth {socket_id, channel_name} -> {auth}
func (h *Handler) HandleAuth(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req authRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid form"})
			return
		}
		req.SocketID = r.PostForm.Get("socket_id")
		req.ChannelName = r.PostForm.Get("channel_name")
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.SocketID == "" || req.ChannelName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "socket_id and channel_name are required"})
		return
	}

	grant, err := h.auth.Authorize(r.Context(), userID, req.SocketID, req.ChannelName)
	switch {
	case errors.Is(err, ErrForbidden):
		h.logger.Warn("Channel authorization denied", "user_id", userID, "channel", req.ChannelName)
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	case errors.Is(err, ErrUnknownChan):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown channel"})
		return
	case err != nil:
		h.logger.Error("Channel authorization failed", "user_id", userID, "channel", req.ChannelName, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "authorization failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"auth": grant})
}

// subscribe verifies and joins every requested channel, returning missed envelopes.
func (h *Handler) subscribe(sub *Subscriber, socketID string, channels, grants []string, afterID int64) ([]Envelope, error) {
	byChannel := make(map[string]string, len(grants))
	for _, g := range grants {
		if ch, err := h.auth.GrantChannel(g); err == nil {
			byChannel[ch] = g
		}
	}
	for _, ch := range channels {
		if err := h.auth.VerifySubscription(byChannel[ch], socketID, ch); err != nil {
			return nil, err
		}
	}

	batches := make([][]Envelope, 0, len(channels))
	for _, ch := range channels {
		batches = append(batches, h.hub.Join(sub, ch, afterID))
	}
	return mergeMissed(batches...), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
