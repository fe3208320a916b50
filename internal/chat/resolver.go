package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ashureev/supportdesk/internal/domain"
	"github.com/ashureev/supportdesk/internal/identity"
	"github.com/ashureev/supportdesk/internal/metrics"
	"github.com/ashureev/supportdesk/internal/store"
)

// FindOrCreateConversation returns the visitor's ACTIVE conversation on the
// website, creating one when none exists. A changed client address updates the
// stored address and country. Two concurrent first messages may both create a
// conversation; the later lookup picks the most recently updated one.
func (s *Service) FindOrCreateConversation(ctx context.Context, websiteID, visitorID, ipAddress string) (*domain.Conversation, error) {
	if websiteID == "" {
		return nil, newError(ErrorValidation, "websiteId is required", nil)
	}
	if !identity.ValidVisitorID(visitorID) {
		return nil, newError(ErrorValidation, "invalid visitorId", nil)
	}

	conv, err := s.repo.FindActiveConversation(ctx, websiteID, visitorID)
	if err != nil {
		return nil, fmt.Errorf("find active conversation: %w", err)
	}
	if conv != nil {
		if ipAddress == "" || ipAddress == conv.IPAddress {
			return conv, nil
		}
		country := s.locator.Lookup(ctx, ipAddress)
		now := s.now()
		if err := s.repo.UpdateConversationLocation(ctx, conv.ID, ipAddress, country, now); err != nil {
			// The location is advisory; keep delivering with the stale values.
			s.logger.Warn("Failed to update conversation location", "conversation_id", conv.ID, "error", err)
			return conv, nil
		}
		conv.IPAddress = ipAddress
		conv.Country = country
		conv.UpdatedAt = now
		return conv, nil
	}

	website, err := s.requireWebsite(ctx, websiteID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	conv = &domain.Conversation{
		ID:        uuid.NewString(),
		WebsiteID: websiteID,
		VisitorID: visitorID,
		Status:    domain.StatusActive,
		Title:     domain.DefaultConversationTitle,
		IPAddress: ipAddress,
		Country:   domain.UnknownCountry,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ipAddress != "" {
		conv.Country = s.locator.Lookup(ctx, ipAddress)
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	metrics.ConversationsCreated.Inc()
	s.logger.Info("Conversation created", "conversation_id", conv.ID, "website_id", websiteID, "visitor_id", visitorID, "country", conv.Country)

	if _, err := s.CreateNotification(ctx, website.OwnerID, domain.NotificationNewConversation,
		fmt.Sprintf("New conversation on %s", website.Name), websiteID); err != nil {
		s.logger.Warn("Failed to notify website owner", "website_id", websiteID, "user_id", website.OwnerID, "error", err)
	}
	return conv, nil
}

// UpdateStatus sets a conversation's status. Any status may be set at any time,
// including re-opening a closed conversation.
func (s *Service) UpdateStatus(ctx context.Context, userID, conversationID string, status domain.ConversationStatus) (*domain.Conversation, error) {
	if _, err := domain.ParseConversationStatus(string(status)); err != nil {
		return nil, newError(ErrorValidation, "invalid status", err)
	}
	if err := s.authorizeConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	err := s.repo.UpdateConversationStatus(ctx, conversationID, status, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(ErrorNotFound, "conversation not found", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("update conversation status: %w", err)
	}
	s.logger.Info("Conversation status updated", "conversation_id", conversationID, "user_id", userID, "status", status)

	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("reload conversation: %w", err)
	}
	if conv == nil {
		return nil, newError(ErrorNotFound, "conversation not found", nil)
	}
	return conv, nil
}

// GetConversation returns a conversation the agent can access.
func (s *Service) GetConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	if err := s.authorizeConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return nil, newError(ErrorNotFound, "conversation not found", nil)
	}
	return conv, nil
}

// ListConversations returns the conversations visible to an agent.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]*domain.ConversationSummary, error) {
	if userID == "" {
		return nil, newError(ErrorUnauthorized, "agent identity required", nil)
	}
	convs, err := s.repo.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// authorizeConversation hides existence of conversations the agent cannot access.
func (s *Service) authorizeConversation(ctx context.Context, userID, conversationID string) error {
	if userID == "" {
		return newError(ErrorUnauthorized, "agent identity required", nil)
	}
	ok, err := s.repo.CanAccessConversation(ctx, userID, conversationID)
	if err != nil {
		return fmt.Errorf("check conversation access: %w", err)
	}
	if !ok {
		return newError(ErrorNotFound, "conversation not found", nil)
	}
	return nil
}
