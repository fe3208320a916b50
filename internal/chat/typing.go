package chat

import (
	"context"

	"github.com/ashureev/supportdesk/internal/identity"
	"github.com/ashureev/supportdesk/internal/realtime"
)

// SetTyping broadcasts a typing state to the website's admin and visitor channels.
// participant is a visitor ID or identity.AgentTypingToken. Nothing is stored, so
// a publish failure is the only failure and is returned as DOWNSTREAM.
func (s *Service) SetTyping(ctx context.Context, websiteID, participant string, isTyping bool) error {
	if websiteID == "" {
		return newError(ErrorValidation, "websiteId is required", nil)
	}
	if participant != identity.AgentTypingToken && !identity.ValidVisitorID(participant) {
		return newError(ErrorValidation, "invalid visitorId", nil)
	}
	if _, err := s.requireWebsite(ctx, websiteID); err != nil {
		return err
	}
	ev := TypingEvent{VisitorID: participant, IsTyping: isTyping}
	err := s.fanOut(ctx,
		send{realtime.AdminChannel(websiteID), realtime.EventTyping, ev},
		send{realtime.VisitorChannel(websiteID), realtime.EventTyping, ev},
	)
	if err != nil {
		return newError(ErrorDownstream, "typing publish failed", err)
	}
	return nil
}

// SetAgentTyping broadcasts an agent's typing state on a conversation's website.
func (s *Service) SetAgentTyping(ctx context.Context, userID, conversationID string, isTyping bool) error {
	conv, err := s.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	return s.SetTyping(ctx, conv.WebsiteID, identity.AgentTypingToken, isTyping)
}
