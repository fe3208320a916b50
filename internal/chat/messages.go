package chat

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/ashureev/supportdesk/internal/domain"
	"github.com/ashureev/supportdesk/internal/identity"
	"github.com/ashureev/supportdesk/internal/metrics"
)

const maxClientMessageIDLen = 128

// NewMessage is the input of Append.
type NewMessage struct {
	ConversationID  string
	Sender          domain.Sender
	Content         string
	Attachment      *domain.Attachment
	ClientMessageID string
}

// AppendResult is a persisted message and whether it was a repeated send.
type AppendResult struct {
	Message   *domain.Message
	Duplicate bool
}

// Append validates and persists a message. It does not publish.
func (s *Service) Append(ctx context.Context, in NewMessage) (*AppendResult, error) {
	if err := validateNewMessage(in); err != nil {
		return nil, err
	}

	conv, err := s.repo.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return nil, newError(ErrorNotFound, "conversation not found", nil)
	}

	msg := &domain.Message{
		ID:              uuid.NewString(),
		ConversationID:  conv.ID,
		Content:         in.Content,
		SenderType:      in.Sender.Type,
		Attachment:      in.Attachment,
		ClientMessageID: in.ClientMessageID,
		CreatedAt:       s.now(),
	}
	switch in.Sender.Type {
	case domain.SenderUser:
		msg.SenderID = in.Sender.ID
	case domain.SenderVisitor:
		msg.VisitorID = in.Sender.ID
	}

	duplicate, err := s.repo.AppendMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	if duplicate {
		metrics.DuplicateMessages.Inc()
		s.logger.Info("Duplicate message send", "conversation_id", conv.ID, "message_id", msg.ID, "client_message_id", in.ClientMessageID)
		return &AppendResult{Message: msg, Duplicate: true}, nil
	}

	metrics.MessagesAppended.WithLabelValues(string(msg.SenderType)).Inc()
	if s.transcript != nil {
		s.transcript.Append(conv.ID, msg)
	}
	return &AppendResult{Message: msg}, nil
}

func validateNewMessage(in NewMessage) error {
	if in.ConversationID == "" {
		return newError(ErrorValidation, "conversationId is required", nil)
	}
	switch in.Sender.Type {
	case domain.SenderUser:
		if in.Sender.ID == "" {
			return newError(ErrorUnauthorized, "agent identity required", nil)
		}
	case domain.SenderVisitor:
		if !identity.ValidVisitorID(in.Sender.ID) {
			return newError(ErrorValidation, "invalid visitorId", nil)
		}
	default:
		return newError(ErrorValidation, "unknown sender type", nil)
	}
	body := domain.Message{Content: in.Content, Attachment: in.Attachment}
	if !body.HasBody() {
		return newError(ErrorValidation, "message content or attachment is required", nil)
	}
	if len(in.ClientMessageID) > maxClientMessageIDLen {
		return newError(ErrorValidation, "clientMessageId is too long", nil)
	}
	return nil
}

// VisitorMessage is a message sent from the widget.
type VisitorMessage struct {
	WebsiteID       string
	VisitorID       string
	IPAddress       string
	Content         string
	Attachment      *domain.Attachment
	ClientMessageID string
}

// SendVisitorMessage resolves the visitor's conversation, persists the message
// and publishes it to the website's admin and visitor channels.
func (s *Service) SendVisitorMessage(ctx context.Context, in VisitorMessage) (*domain.Message, error) {
	body := domain.Message{Content: in.Content, Attachment: in.Attachment}
	if !body.HasBody() {
		return nil, newError(ErrorValidation, "message content or attachment is required", nil)
	}
	conv, err := s.FindOrCreateConversation(ctx, in.WebsiteID, in.VisitorID, in.IPAddress)
	if err != nil {
		return nil, err
	}

	res, err := s.Append(ctx, NewMessage{
		ConversationID:  conv.ID,
		Sender:          domain.VisitorSender(in.VisitorID),
		Content:         in.Content,
		Attachment:      in.Attachment,
		ClientMessageID: in.ClientMessageID,
	})
	if err != nil {
		return nil, err
	}
	if !res.Duplicate {
		_ = s.publishMessage(ctx, conv, res.Message)
	}
	return res.Message, nil
}

// UploadVisitorFile stores a widget attachment. Nothing is persisted when it fails.
func (s *Service) UploadVisitorFile(ctx context.Context, websiteID, visitorID, filename string, r io.Reader) (*domain.Attachment, error) {
	if s.uploader == nil {
		return nil, newError(ErrorDownstream, "uploads are disabled", nil)
	}
	if websiteID == "" {
		return nil, newError(ErrorValidation, "websiteId is required", nil)
	}
	if !identity.ValidVisitorID(visitorID) {
		return nil, newError(ErrorValidation, "invalid visitorId", nil)
	}
	if _, err := s.requireWebsite(ctx, websiteID); err != nil {
		return nil, err
	}
	return s.upload(ctx, websiteID, visitorID, filename, r)
}

// VisitorHistory returns the messages of the visitor's ACTIVE conversation, or
// of the most recent one when none is active. No conversation yields an empty list.
func (s *Service) VisitorHistory(ctx context.Context, websiteID, visitorID string) (*domain.Conversation, []*domain.Message, error) {
	if websiteID == "" {
		return nil, nil, newError(ErrorValidation, "websiteId is required", nil)
	}
	if !identity.ValidVisitorID(visitorID) {
		return nil, nil, newError(ErrorValidation, "invalid visitorId", nil)
	}
	conv, err := s.repo.FindLatestConversation(ctx, websiteID, visitorID)
	if err != nil {
		return nil, nil, fmt.Errorf("find conversation: %w", err)
	}
	if conv == nil {
		return nil, []*domain.Message{}, nil
	}
	msgs, err := s.repo.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list messages: %w", err)
	}
	return conv, msgs, nil
}

// AgentMessage is a reply sent from the dashboard.
type AgentMessage struct {
	UserID          string
	ConversationID  string
	Content         string
	ClientMessageID string
}

// SendAgentMessage persists an agent reply and publishes it to both channels.
func (s *Service) SendAgentMessage(ctx context.Context, in AgentMessage) (*domain.Message, error) {
	conv, err := s.GetConversation(ctx, in.UserID, in.ConversationID)
	if err != nil {
		return nil, err
	}
	res, err := s.Append(ctx, NewMessage{
		ConversationID:  conv.ID,
		Sender:          domain.AgentSender(in.UserID),
		Content:         in.Content,
		ClientMessageID: in.ClientMessageID,
	})
	if err != nil {
		return nil, err
	}
	if !res.Duplicate {
		_ = s.publishMessage(ctx, conv, res.Message)
	}
	return res.Message, nil
}

// ListMessages returns a conversation's messages in ascending order for an agent with access.
func (s *Service) ListMessages(ctx context.Context, userID, conversationID string) ([]*domain.Message, error) {
	if err := s.authorizeConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}
