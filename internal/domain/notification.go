package domain

import "time"

// NotificationNewConversation is sent to a website owner when a visitor opens a conversation.
const NotificationNewConversation = "NEW_CONVERSATION"

// Notification is a per-agent alert. Read only moves from false to true.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	WebsiteID string    `json:"websiteId,omitempty"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}
