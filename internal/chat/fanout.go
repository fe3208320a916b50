package chat

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashureev/supportdesk/internal/domain"
	"github.com/ashureev/supportdesk/internal/metrics"
	"github.com/ashureev/supportdesk/internal/realtime"
)

// MessageEvent is the message payload on the visitor channel. It has no
// address fields so they cannot leak to the public channel.
type MessageEvent struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversationId"`
	Content        string             `json:"content"`
	CreatedAt      time.Time          `json:"createdAt"`
	SenderType     domain.SenderType  `json:"senderType"`
	SenderID       string             `json:"senderId,omitempty"`
	SenderName     string             `json:"senderName,omitempty"`
	VisitorID      string             `json:"visitorId,omitempty"`
	Attachment     *domain.Attachment `json:"attachment,omitempty"`
}

// AdminMessageEvent is the message payload on the admin channel.
// Address fields are set for visitor messages only.
type AdminMessageEvent struct {
	MessageEvent
	IPAddress string `json:"ipAddress,omitempty"`
	Country   string `json:"country,omitempty"`
}

// TypingEvent is published to both channels of a website.
type TypingEvent struct {
	VisitorID string `json:"visitorId"`
	IsTyping  bool   `json:"isTyping"`
}

// ReadEvent reports visitor messages that an agent has seen.
type ReadEvent struct {
	MessageIDs     []string  `json:"messageIds"`
	ReadAt         time.Time `json:"readAt"`
	VisitorID      string    `json:"visitorId"`
	ConversationID string    `json:"conversationId,omitempty"`
}

func newMessageEvent(m *domain.Message) MessageEvent {
	ev := MessageEvent{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
		SenderType:     m.SenderType,
		Attachment:     m.Attachment,
	}
	switch m.SenderType {
	case domain.SenderUser:
		ev.SenderID = m.SenderID
		ev.SenderName = m.SenderName
	case domain.SenderVisitor:
		ev.VisitorID = m.VisitorID
	}
	return ev
}

func newAdminMessageEvent(m *domain.Message, conv *domain.Conversation) AdminMessageEvent {
	ev := AdminMessageEvent{MessageEvent: newMessageEvent(m)}
	if m.SenderType == domain.SenderVisitor && conv != nil {
		ev.IPAddress = conv.IPAddress
		ev.Country = conv.Country
	}
	return ev
}

type send struct {
	channel string
	event   string
	payload any
}

// fanOut publishes the sends concurrently. It runs detached from the caller's
// context with a bounded timeout and never fails the caller: errors are logged
// and counted, and the first one is returned for the caller's logs.
func (s *Service) fanOut(ctx context.Context, sends ...send) error {
	if s.publisher == nil {
		return nil
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var g errgroup.Group
	for _, snd := range sends {
		g.Go(func() error {
			if err := s.publisher.Publish(pubCtx, snd.channel, snd.event, snd.payload); err != nil {
				metrics.PublishFailures.WithLabelValues(snd.event).Inc()
				s.logger.Error("Failed to publish event", "channel", snd.channel, "event", snd.event, "error", err)
				return err
			}
			metrics.EventsPublished.WithLabelValues(snd.event).Inc()
			return nil
		})
	}
	return g.Wait()
}

// publishMessage sends a persisted message to the admin and visitor channels of its website.
func (s *Service) publishMessage(ctx context.Context, conv *domain.Conversation, m *domain.Message) error {
	return s.fanOut(ctx,
		send{realtime.AdminChannel(conv.WebsiteID), realtime.EventMessage, newAdminMessageEvent(m, conv)},
		send{realtime.VisitorChannel(conv.WebsiteID), realtime.EventMessage, newMessageEvent(m)},
	)
}
