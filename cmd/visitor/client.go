package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/ashureev/supportdesk/internal/domain"
	"github.com/ashureev/supportdesk/internal/identity"
)

// Client calls the widget API on behalf of one visitor of one website.
type Client struct {
	http      *resty.Client
	baseURL   string
	websiteID string
	visitorID string
}

// History is the visitor's current conversation.
type History struct {
	ConversationID string                    `json:"conversationId"`
	Status         domain.ConversationStatus `json:"status"`
	Messages       []*domain.Message         `json:"messages"`
}

type apiError struct {
	Error string `json:"error"`
}

// NewClient creates a widget client.
func NewClient(baseURL, websiteID, visitorID string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(15*time.Second).
			SetHeader(identity.VisitorHeaderName, visitorID).
			SetRetryCount(2).
			SetRetryWaitTime(200 * time.Millisecond),
		baseURL:   baseURL,
		websiteID: websiteID,
		visitorID: visitorID,
	}
}

// VisitorID returns the visitor token the client sends.
func (c *Client) VisitorID() string { return c.visitorID }

// Send posts a text message.
func (c *Client) Send(ctx context.Context, content string) (*domain.Message, error) {
	var msg domain.Message
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"websiteId":       c.websiteID,
			"visitorId":       c.visitorID,
			"content":         content,
			"clientMessageId": newClientMessageID(),
		}).
		SetResult(&msg).
		Post("/api/widget/messages")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendFile posts a message with an attachment.
func (c *Client) SendFile(ctx context.Context, content, filename string, file io.Reader) (*domain.Message, error) {
	var msg domain.Message
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"websiteId":       c.websiteID,
			"visitorId":       c.visitorID,
			"content":         content,
			"clientMessageId": newClientMessageID(),
		}).
		SetFileReader("file", filename, file).
		SetResult(&msg).
		Post("/api/widget/messages")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return &msg, nil
}

// History fetches the current conversation.
func (c *Client) History(ctx context.Context) (*History, error) {
	var h History
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"websiteId": c.websiteID, "visitorId": c.visitorID}).
		SetResult(&h).
		Get("/api/widget/messages")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return &h, nil
}

// Typing reports the visitor's typing state.
func (c *Client) Typing(ctx context.Context, isTyping bool) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"websiteId": c.websiteID, "visitorId": c.visitorID, "isTyping": isTyping}).
		Post("/api/widget/typing")
	return checkResponse(resp, err)
}

// StreamURL returns the WebSocket URL subscribed to the website's visitor channel.
func (c *Client) StreamURL(socketID string) string {
	u := c.baseURL + "/realtime/ws"
	u = strings.Replace(u, "http://", "ws://", 1)
	u = strings.Replace(u, "https://", "wss://", 1)
	q := url.Values{}
	q.Set("channel", "chat-"+c.websiteID)
	q.Set("socket_id", socketID)
	return u + "?" + q.Encode()
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	var body apiError
	if jsonErr := json.Unmarshal(resp.Body(), &body); jsonErr == nil && body.Error != "" {
		return fmt.Errorf("%s: %s", resp.Status(), body.Error)
	}
	return fmt.Errorf("unexpected status %s", resp.Status())
}

func newClientMessageID() string {
	return "cli-" + uuid.NewString()
}
