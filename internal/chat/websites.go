package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ashureev/supportdesk/internal/domain"
	"github.com/ashureev/supportdesk/internal/store"
)

// WebsiteRegistration describes a website and its owning agent.
type WebsiteRegistration struct {
	ID        string
	Name      string
	Domain    string
	OwnerID   string
	OwnerName string
}

// RegisterWebsite creates the website and its owner when they do not exist yet.
// Registering an existing ID returns the stored website unchanged, so it is safe
// to call on every start.
func (s *Service) RegisterWebsite(ctx context.Context, in WebsiteRegistration) (*domain.Website, error) {
	if strings.TrimSpace(in.OwnerID) == "" {
		return nil, newError(ErrorValidation, "ownerId is required", nil)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, newError(ErrorValidation, "website name is required", nil)
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	now := s.now()
	if err := s.repo.UpsertUser(ctx, &domain.User{ID: in.OwnerID, Name: in.OwnerName, CreatedAt: now, UpdatedAt: now}); err != nil {
		return nil, fmt.Errorf("upsert owner: %w", err)
	}

	website := &domain.Website{ID: in.ID, OwnerID: in.OwnerID, Name: in.Name, Domain: in.Domain, CreatedAt: now}
	err := s.repo.CreateWebsite(ctx, website)
	if errors.Is(err, store.ErrAlreadyExists) {
		existing, err := s.requireWebsite(ctx, in.ID)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("Website already registered", "website_id", existing.ID)
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create website: %w", err)
	}
	s.logger.Info("Website registered", "website_id", website.ID, "owner_id", website.OwnerID)
	return website, nil
}

// AddConversationMember gives another agent access to a conversation the
// requesting agent can already see. Adding an existing member is a no-op.
func (s *Service) AddConversationMember(ctx context.Context, userID, conversationID, memberID string) error {
	if strings.TrimSpace(memberID) == "" {
		return newError(ErrorValidation, "userId is required", nil)
	}
	if err := s.authorizeConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	if err := s.repo.AddConversationMember(ctx, conversationID, memberID); err != nil {
		return fmt.Errorf("add conversation member: %w", err)
	}
	s.logger.Info("Conversation member added", "conversation_id", conversationID, "user_id", userID, "member_id", memberID)
	return nil
}

func (s *Service) requireWebsite(ctx context.Context, websiteID string) (*domain.Website, error) {
	website, err := s.repo.GetWebsite(ctx, websiteID)
	if err != nil {
		return nil, fmt.Errorf("get website: %w", err)
	}
	if website == nil {
		return nil, newError(ErrorNotFound, "website not found", nil)
	}
	return website, nil
}
