package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashureev/supportdesk/internal/domain"
	"github.com/ashureev/supportdesk/internal/typing"
)

type capturedRequest struct {
	method  string
	path    string
	visitor string
	body    map[string]any
	form    map[string]string
	file    []byte
}

func newWidgetServer(t *testing.T, status int, response string) (*httptest.Server, func() capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var last capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := capturedRequest{method: r.Method, path: r.URL.Path, visitor: r.Header.Get("X-Visitor-ID")}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			c.form = map[string]string{}
			for k, v := range r.MultipartForm.Value {
				c.form[k] = v[0]
			}
			f, _, err := r.FormFile("file")
			if err == nil {
				c.file, _ = io.ReadAll(f)
				_ = f.Close()
			}
		} else if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			if len(data) > 0 {
				_ = json.Unmarshal(data, &c.body)
			}
		}
		mu.Lock()
		last = c
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, func() capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func TestClientSend(t *testing.T) {
	srv, last := newWidgetServer(t, http.StatusCreated, `{"id":"m1","conversationId":"c1","senderType":"VISITOR","content":"hi"}`)
	c := NewClient(srv.URL+"/", "site-1", "alice")

	msg, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "m1", msg.ID)
	require.Equal(t, "c1", msg.ConversationID)

	req := last()
	require.Equal(t, http.MethodPost, req.method)
	require.Equal(t, "/api/widget/messages", req.path)
	require.Equal(t, "alice", req.visitor)
	require.Equal(t, "site-1", req.body["websiteId"])
	require.Equal(t, "hi", req.body["content"])
	require.True(t, strings.HasPrefix(req.body["clientMessageId"].(string), "cli-"))
}

func TestClientSendFile(t *testing.T) {
	srv, last := newWidgetServer(t, http.StatusCreated, `{"id":"m2","attachment":{"url":"/uploads/x.png","filename":"x.png"}}`)
	c := NewClient(srv.URL, "site-1", "alice")

	msg, err := c.SendFile(context.Background(), "see attached", "x.png", bytes.NewReader([]byte("png-bytes")))
	require.NoError(t, err)
	require.Equal(t, "x.png", msg.Attachment.Filename)

	req := last()
	require.Equal(t, "site-1", req.form["websiteId"])
	require.Equal(t, "see attached", req.form["content"])
	require.Equal(t, []byte("png-bytes"), req.file)
}

func TestClientSurfacesAPIError(t *testing.T) {
	srv, _ := newWidgetServer(t, http.StatusNotFound, `{"error":"website not found"}`)
	c := NewClient(srv.URL, "missing", "alice")

	_, err := c.History(context.Background())
	require.ErrorContains(t, err, "website not found")

	err = c.Typing(context.Background(), true)
	require.ErrorContains(t, err, "404")
}

func TestStreamURL(t *testing.T) {
	c := NewClient("https://desk.example.com/", "site-1", "alice")
	require.Equal(t, "wss://desk.example.com/realtime/ws?channel=chat-site-1&socket_id=s1", c.StreamURL("s1"))
}

func TestSessionFiltersFrames(t *testing.T) {
	var out bytes.Buffer
	var mu sync.Mutex
	var typingChanges []bool
	sess := &session{out: &out}
	sess.indicator = typing.NewIndicator(nil, func(_ string, on bool) {
		mu.Lock()
		defer mu.Unlock()
		typingChanges = append(typingChanges, on)
	})
	sess.setConversation("c1")

	event := func(name string, v any) frame {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		return frame{Type: "event", Event: name, Data: data}
	}
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	sess.handleFrame(event("typing", typingPayload{VisitorID: "agent", IsTyping: true}))
	sess.handleFrame(event("typing", typingPayload{VisitorID: "bob", IsTyping: true}))
	require.True(t, sess.indicator.IsTyping("agent"))
	require.False(t, sess.indicator.IsTyping("bob"))

	sess.handleFrame(event("message", domain.Message{ID: "m1", ConversationID: "c1", SenderType: domain.SenderUser, SenderName: "Olivia", Content: "Hello!", CreatedAt: at}))
	sess.handleFrame(event("message", domain.Message{ID: "m2", ConversationID: "c2", SenderType: domain.SenderUser, Content: "not yours", CreatedAt: at}))
	sess.handleFrame(event("message", domain.Message{ID: "m3", ConversationID: "c1", SenderType: domain.SenderVisitor, Content: "echo", CreatedAt: at}))

	require.Contains(t, out.String(), "Olivia:")
	require.Contains(t, out.String(), "Hello!")
	require.NotContains(t, out.String(), "not yours")
	require.NotContains(t, out.String(), "echo")
	require.False(t, sess.indicator.IsTyping("agent"), "a reply clears the typing indicator")

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []bool{true, false}, typingChanges)
}
