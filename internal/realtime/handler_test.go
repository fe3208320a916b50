package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/supportdesk/internal/identity"
)

func newTestHandler(t *testing.T) (*Handler, *Hub) {
	t.Helper()
	hub := NewHub(HubConfig{}, nil)
	h := NewHandler(hub, newTestAuthorizer(), HandlerConfig{KeepaliveInterval: time.Hour, RetryDelay: 3 * time.Second}, nil)
	return h, hub
}

func asAgent(r *http.Request, userID string) *http.Request {
	return r.WithContext(identity.WithClaims(r.Context(), &identity.Claims{Subject: userID}))
}

func TestHandleAuth(t *testing.T) {
	h, _ := newTestHandler(t)

	body := `{"socket_id":"sock-1","channel_name":"private-admin-site-1"}`
	req := asAgent(httptest.NewRequest(http.MethodPost, "/realtime/auth", strings.NewReader(body)), "agent-1")
	rec := httptest.NewRecorder()
	h.HandleAuth(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NoError(t, h.auth.VerifySubscription(resp["auth"], "sock-1", "private-admin-site-1"))

	form := url.Values{"socket_id": {"sock-1"}, "channel_name": {"private-admin-site-1"}}
	req = asAgent(httptest.NewRequest(http.MethodPost, "/realtime/auth", strings.NewReader(form.Encode())), "agent-2")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	h.HandleAuth(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleAuth(rec, httptest.NewRequest(http.MethodPost, "/realtime/auth", strings.NewReader(body)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = asAgent(httptest.NewRequest(http.MethodPost, "/realtime/auth", strings.NewReader(`{"socket_id":"s"}`)), "agent-1")
	rec = httptest.NewRecorder()
	h.HandleAuth(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type sseEvent struct {
	id    string
	event string
	data  string
}

func readSSEEvent(t *testing.T, sc *bufio.Scanner) sseEvent {
	t.Helper()
	var ev sseEvent
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if ev.event != "" {
				return ev
			}
		case strings.HasPrefix(line, "id: "):
			ev.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			ev.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return ev
}

func TestHandleSSEStreamsAndReplays(t *testing.T) {
	h, hub := newTestHandler(t)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleSSE))
	defer srv.Close()

	missedID := hub.Deliver(Envelope{Channel: "chat-site-1", Event: EventMessage, Data: json.RawMessage(`{"n":1}`)}).ID
	hub.Deliver(Envelope{Channel: "chat-site-1", Event: EventMessage, Data: json.RawMessage(`{"n":2}`)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?socket_id=s1&channel=chat-site-1", nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	require.True(t, sc.Scan())
	require.Equal(t, "retry: 3000", sc.Text())

	replayed := readSSEEvent(t, sc)
	require.Equal(t, EventMessage, replayed.event)
	require.NotEqual(t, "1", replayed.id)
	require.JSONEq(t, `{"channel":"chat-site-1","data":{"n":2}}`, replayed.data)
	require.Equal(t, int64(1), missedID)

	require.Equal(t, "connected", readSSEEvent(t, sc).event)

	require.Eventually(t, func() bool { return hub.SubscriberCount("chat-site-1") == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Publish(context.Background(), "chat-site-1", EventTyping, map[string]any{"isTyping": true}))

	live := readSSEEvent(t, sc)
	require.Equal(t, EventTyping, live.event)
	require.JSONEq(t, `{"channel":"chat-site-1","data":{"isTyping":true}}`, live.data)
}

func TestHandleSSEEscapesQueryValues(t *testing.T) {
	h, hub := newTestHandler(t)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleSSE))
	defer srv.Close()

	channel := "chat-site\x01\xff"
	hub.Deliver(Envelope{Channel: channel, Event: EventMessage, Data: json.RawMessage(`{}`)})
	hub.Deliver(Envelope{Channel: channel, Event: EventMessage, Data: json.RawMessage(`{"n":2}`)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := url.Values{"socket_id": {"s\x01\"1"}, "channel": {channel}, "lastEventId": {"1"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?"+q.Encode(), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sc := bufio.NewScanner(resp.Body)
	replayed := readSSEEvent(t, sc)
	require.True(t, json.Valid([]byte(replayed.data)), replayed.data)

	connected := readSSEEvent(t, sc)
	require.Equal(t, "connected", connected.event)
	require.True(t, json.Valid([]byte(connected.data)), connected.data)
	var payload struct {
		SocketID string `json:"socket_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(connected.data), &payload))
	require.Equal(t, "s\x01\"1", payload.SocketID)
}

func TestHandleSSERejectsPrivateWithoutGrant(t *testing.T) {
	h, hub := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.HandleSSE(rec, httptest.NewRequest(http.MethodGet, "/realtime/sse?socket_id=s&channel=private-admin-site-1", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, 0, hub.SubscriberCount("private-admin-site-1"))

	rec = httptest.NewRecorder()
	h.HandleSSE(rec, httptest.NewRequest(http.MethodGet, "/realtime/sse", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSSEPrivateWithGrant(t *testing.T) {
	h, hub := newTestHandler(t)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleSSE))
	defer srv.Close()

	grant, err := h.auth.Authorize(context.Background(), "agent-1", "s1", AdminChannel("site-1"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := url.Values{"socket_id": {"s1"}, "channel": {AdminChannel("site-1"), VisitorChannel("site-1")}, "auth": {grant}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?"+q.Encode(), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sc := bufio.NewScanner(resp.Body)
	require.Equal(t, "connected", readSSEEvent(t, sc).event)
	require.Equal(t, 1, hub.SubscriberCount(AdminChannel("site-1")))
	require.Equal(t, 1, hub.SubscriberCount(VisitorChannel("site-1")))
}

func TestHandleWSSubscribeAndReceive(t *testing.T) {
	h, hub := newTestHandler(t)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?socket_id=s1&channel=chat-site-1"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	read := func() wsMessage {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var m wsMessage
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	}

	require.Equal(t, wsConnected, read().Type)

	grant, err := h.auth.Authorize(ctx, "agent-1", "s1", UserChannel("agent-1"))
	require.NoError(t, err)
	frame, _ := json.Marshal(wsMessage{Type: wsSubscribe, Channel: UserChannel("agent-1"), Auth: grant})
	require.NoError(t, conn.Write(ctx, websocket.MessageText, frame))
	require.Equal(t, wsSubscribed, read().Type)

	frame, _ = json.Marshal(wsMessage{Type: wsSubscribe, Channel: AdminChannel("site-1")})
	require.NoError(t, conn.Write(ctx, websocket.MessageText, frame))
	rejected := read()
	require.Equal(t, wsError, rejected.Type)
	require.Equal(t, AdminChannel("site-1"), rejected.Channel)

	require.NoError(t, hub.Publish(ctx, UserChannel("agent-1"), EventNotification, map[string]string{"type": "NEW_MESSAGE"}))
	ev := read()
	require.Equal(t, wsEvent, ev.Type)
	require.Equal(t, EventNotification, ev.Event)
	require.Equal(t, UserChannel("agent-1"), ev.Channel)
	require.JSONEq(t, `{"type":"NEW_MESSAGE"}`, string(ev.Data))

	frame, _ = json.Marshal(wsMessage{Type: wsUnsubscribe, Channel: "chat-site-1"})
	require.NoError(t, conn.Write(ctx, websocket.MessageText, frame))
	require.Equal(t, wsUnsubscribed, read().Type)
	require.Equal(t, 0, hub.SubscriberCount("chat-site-1"))
}
