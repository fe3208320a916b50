package realtime

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/supportdesk/internal/metrics"
)

// HandleSSE streams channel events as Server-Sent Events.
//
// GET /realtime/sse?socket_id=..&channel=..&channel=..&auth=..
//
// Private channels need a matching grant from /realtime/auth. Reconnecting
// clients send Last-Event-ID (or lastEventId) and receive the buffered events
// they missed before the live stream resumes.
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	channels := q["channel"]
	socketID := q.Get("socket_id")
	if len(channels) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at least one channel is required"})
		return
	}

	lastEventID := int64(0)
	idHeader := r.Header.Get("Last-Event-ID")
	if idHeader == "" {
		idHeader = q.Get("lastEventId")
	}
	if idHeader != "" {
		if parsed, err := strconv.ParseInt(idHeader, 10, 64); err == nil {
			lastEventID = parsed
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	sub := h.hub.NewSubscriber()
	missed, err := h.subscribe(sub, socketID, channels, q["auth"], lastEventID)
	if err != nil {
		h.hub.Remove(sub)
		h.logger.Warn("SSE subscription rejected", "socket_id", socketID, "channels", channels, "error", err)
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "subscription rejected"})
		return
	}
	defer h.hub.Remove(sub)

	metrics.Subscribers.WithLabelValues("sse").Inc()
	defer metrics.Subscribers.WithLabelValues("sse").Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", h.cfg.RetryDelay.Milliseconds()); err != nil {
		return
	}
	if len(missed) > 0 {
		h.logger.Info("Replaying missed events", "socket_id", socketID, "count", len(missed), "last_event_id", lastEventID)
	}
	for _, env := range missed {
		if err := writeEnvelope(w, env); err != nil {
			return
		}
	}
	connected, err := json.Marshal(sseConnected{Status: "connected", SocketID: socketID, SubscriberID: sub.ID})
	if err != nil {
		return
	}
	if err := writeSSE(w, "connected", string(connected)); err != nil {
		return
	}
	flusher.Flush()

	h.logger.Info("SSE subscriber connected", "socket_id", socketID, "subscriber_id", sub.ID, "channels", channels, "reconnect", lastEventID > 0)

	keepalive := time.NewTicker(h.cfg.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("SSE subscriber disconnected", "socket_id", socketID, "subscriber_id", sub.ID)
			return
		case <-sub.Done():
			h.logger.Info("SSE subscriber evicted", "socket_id", socketID, "subscriber_id", sub.ID)
			return
		case env := <-sub.C:
			if err := writeEnvelope(w, env); err != nil {
				h.logger.Warn("Failed to write SSE event", "subscriber_id", sub.ID, "error", err)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

type sseConnected struct {
	Status       string `json:"status"`
	SocketID     string `json:"socket_id"`
	SubscriberID int64  `json:"subscriber_id"`
}

type sseFrame struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// writeEnvelope writes the envelope with its channel so one stream can carry many channels.
func writeEnvelope(w io.Writer, env Envelope) error {
	data, err := json.Marshal(sseFrame{Channel: env.Channel, Data: env.Data})
	if err != nil {
		return fmt.Errorf("marshal sse event: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", env.ID, env.Event, data)
	return err
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
