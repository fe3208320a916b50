// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/supportdesk/internal/domain"
)

var (
	// ErrNotFound is returned by updates that matched no row.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned by inserts that hit a unique key.
	ErrAlreadyExists = errors.New("already exists")
)

// ReadScope restricts which messages MarkMessagesRead may touch.
// WebsiteID is required. VisitorID and ConversationID narrow the scope further.
// An empty MessageIDs marks every unread visitor message in scope.
type ReadScope struct {
	WebsiteID      string
	VisitorID      string
	ConversationID string
	MessageIDs     []string
}

// Repository defines the interface for persisting conversations and their messages.
// Get and Find methods return (nil, nil) when no row matches.
type Repository interface {
	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error

	// UpsertUser creates or refreshes an agent record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// GetUser retrieves an agent by ID.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// CreateWebsite inserts a website. An existing ID yields ErrAlreadyExists.
	CreateWebsite(ctx context.Context, website *domain.Website) error

	// GetWebsite retrieves a website by ID.
	GetWebsite(ctx context.Context, websiteID string) (*domain.Website, error)

	// ListWebsitesByOwner returns the websites owned by a user.
	ListWebsitesByOwner(ctx context.Context, ownerID string) ([]*domain.Website, error)

	// AddConversationMember grants a user direct access to a conversation.
	AddConversationMember(ctx context.Context, conversationID, userID string) error

	// CanAccessWebsite reports whether the user owns the website or belongs to one of its conversations.
	CanAccessWebsite(ctx context.Context, userID, websiteID string) (bool, error)

	// CanAccessConversation reports whether the user owns the conversation's website or is a member.
	CanAccessConversation(ctx context.Context, userID, conversationID string) (bool, error)

	// CreateConversation inserts a conversation.
	CreateConversation(ctx context.Context, conv *domain.Conversation) error

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)

	// FindActiveConversation returns the most recently updated ACTIVE conversation for the pair.
	FindActiveConversation(ctx context.Context, websiteID, visitorID string) (*domain.Conversation, error)

	// FindLatestConversation returns the ACTIVE conversation for the pair, else the most recent one.
	FindLatestConversation(ctx context.Context, websiteID, visitorID string) (*domain.Conversation, error)

	// UpdateConversationLocation stores a new client address and country.
	UpdateConversationLocation(ctx context.Context, conversationID, ipAddress, country string, at time.Time) error

	// UpdateConversationStatus sets the status. Returns ErrNotFound if the conversation does not exist.
	UpdateConversationStatus(ctx context.Context, conversationID string, status domain.ConversationStatus, at time.Time) error

	// ListConversationsForUser returns conversations visible to the user, most recently updated first.
	ListConversationsForUser(ctx context.Context, userID string) ([]*domain.ConversationSummary, error)

	// AppendMessage persists msg and bumps the conversation's updated_at.
	// When the same sender already used msg.ClientMessageID in the conversation, msg is
	// overwritten with the stored row and duplicate is true.
	AppendMessage(ctx context.Context, msg *domain.Message) (duplicate bool, err error)

	// ListMessages returns all messages of a conversation in ascending creation order.
	ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error)

	// MarkMessagesRead sets read_at on unread VISITOR messages within scope and returns the updated IDs.
	MarkMessagesRead(ctx context.Context, scope ReadScope, at time.Time) ([]string, error)

	// CreateNotification inserts a notification.
	CreateNotification(ctx context.Context, n *domain.Notification) error

	// ListNotifications returns a user's notifications, newest first.
	ListNotifications(ctx context.Context, userID string, limit int) ([]*domain.Notification, error)

	// MarkNotificationsRead marks the given notifications read for their owner only.
	MarkNotificationsRead(ctx context.Context, userID string, ids []string) (int64, error)
}
