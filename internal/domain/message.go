package domain

import (
	"strings"
	"time"
)

// SenderType identifies which party authored a message.
type SenderType string

// Sender types.
const (
	SenderUser    SenderType = "USER"
	SenderVisitor SenderType = "VISITOR"
)

// Attachment is a file stored in the blob store and referenced by URL.
type Attachment struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
}

// Sender describes the author of a new message.
// ID is the agent user ID for USER and the visitor token for VISITOR.
type Sender struct {
	Type SenderType
	ID   string
}

// AgentSender returns a USER sender.
func AgentSender(userID string) Sender { return Sender{Type: SenderUser, ID: userID} }

// VisitorSender returns a VISITOR sender.
func VisitorSender(visitorID string) Sender { return Sender{Type: SenderVisitor, ID: visitorID} }

// Message is a single chat entry. CreatedAt never changes; ReadAt is set at most once.
type Message struct {
	ID              string      `json:"id"`
	ConversationID  string      `json:"conversationId"`
	Content         string      `json:"content"`
	SenderType      SenderType  `json:"senderType"`
	SenderID        string      `json:"senderId,omitempty"`
	SenderName      string      `json:"senderName,omitempty"`
	VisitorID       string      `json:"visitorId,omitempty"`
	Attachment      *Attachment `json:"attachment,omitempty"`
	ClientMessageID string      `json:"clientMessageId,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	ReadAt          *time.Time  `json:"readAt,omitempty"`
}

// HasBody reports whether the message carries text or a file.
func (m *Message) HasBody() bool {
	return strings.TrimSpace(m.Content) != "" || m.Attachment != nil
}
