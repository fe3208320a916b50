package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/supportdesk/internal/metrics"
)

// wsMessage is the frame format in both directions.
type wsMessage struct {
	Type     string          `json:"type"`
	Channel  string          `json:"channel,omitempty"`
	Auth     string          `json:"auth,omitempty"`
	Event    string          `json:"event,omitempty"`
	ID       int64           `json:"id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	SocketID string          `json:"socket_id,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Frame types.
const (
	wsSubscribe    = "subscribe"
	wsUnsubscribe  = "unsubscribe"
	wsSubscribed   = "subscribed"
	wsUnsubscribed = "unsubscribed"
	wsEvent        = "event"
	wsError        = "error"
	wsConnected    = "connected"
)

// HandleWS upgrades to a WebSocket. Channels given as query parameters are
// joined up front; more can be joined or left with subscribe/unsubscribe frames.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	socketID := q.Get("socket_id")

	patterns := h.cfg.AllowedOrigins
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: patterns})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "socket_id", socketID)
		return
	}
	defer func() {
		_ = ws.Close(websocket.StatusNormalClosure, "subscription ended")
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := h.hub.NewSubscriber()
	defer h.hub.Remove(sub)

	metrics.Subscribers.WithLabelValues("ws").Inc()
	defer metrics.Subscribers.WithLabelValues("ws").Dec()

	afterID, _ := strconv.ParseInt(q.Get("lastEventId"), 10, 64)
	if channels := q["channel"]; len(channels) > 0 {
		missed, err := h.subscribe(sub, socketID, channels, q["auth"], afterID)
		if err != nil {
			_ = writeWS(ctx, ws, wsMessage{Type: wsError, Error: "subscription rejected"})
			return
		}
		for _, env := range missed {
			if err := writeWS(ctx, ws, eventFrame(env)); err != nil {
				return
			}
		}
	}

	if err := writeWS(ctx, ws, wsMessage{Type: wsConnected, SocketID: socketID, ID: sub.ID}); err != nil {
		return
	}
	h.logger.Info("WebSocket subscriber connected", "socket_id", socketID, "subscriber_id", sub.ID)

	go h.wsReadLoop(ctx, cancel, ws, sub, socketID)

	keepalive := time.NewTicker(h.cfg.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket subscriber disconnected", "socket_id", socketID, "subscriber_id", sub.ID)
			return
		case <-sub.Done():
			_ = ws.Close(websocket.StatusTryAgainLater, "subscriber too slow")
			return
		case env := <-sub.C:
			if err := writeWS(ctx, ws, eventFrame(env)); err != nil {
				h.logger.Debug("WebSocket write error", "subscriber_id", sub.ID, "error", err)
				return
			}
		case <-keepalive.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, h.cfg.KeepaliveInterval)
			err := ws.Ping(pingCtx)
			pingCancel()
			if err != nil {
				h.logger.Debug("WebSocket ping failed", "subscriber_id", sub.ID, "error", err)
				return
			}
		}
	}
}

func (h *Handler) wsReadLoop(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, sub *Subscriber, socketID string) {
	defer cancel()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Warn("WebSocket read error", "error", err, "subscriber_id", sub.ID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = writeWS(ctx, ws, wsMessage{Type: wsError, Error: "invalid frame"})
			continue
		}

		switch msg.Type {
		case wsSubscribe:
			if err := h.auth.VerifySubscription(msg.Auth, socketID, msg.Channel); err != nil {
				_ = writeWS(ctx, ws, wsMessage{Type: wsError, Channel: msg.Channel, Error: "subscription rejected"})
				continue
			}
			missed := h.hub.Join(sub, msg.Channel, msg.ID)
			_ = writeWS(ctx, ws, wsMessage{Type: wsSubscribed, Channel: msg.Channel})
			for _, env := range missed {
				_ = writeWS(ctx, ws, eventFrame(env))
			}
		case wsUnsubscribe:
			h.hub.Leave(sub, msg.Channel)
			_ = writeWS(ctx, ws, wsMessage{Type: wsUnsubscribed, Channel: msg.Channel})
		default:
			_ = writeWS(ctx, ws, wsMessage{Type: wsError, Error: "unknown frame type"})
		}
	}
}

func eventFrame(env Envelope) wsMessage {
	return wsMessage{Type: wsEvent, ID: env.ID, Channel: env.Channel, Event: env.Event, Data: env.Data}
}

func writeWS(ctx context.Context, ws *websocket.Conn, msg wsMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
