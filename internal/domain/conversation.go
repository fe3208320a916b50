package domain

import (
	"fmt"
	"time"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

// Conversation statuses.
const (
	StatusActive  ConversationStatus = "ACTIVE"
	StatusPending ConversationStatus = "PENDING"
	StatusClosed  ConversationStatus = "CLOSED"
)

// DefaultConversationTitle is assigned to conversations opened by the widget.
const DefaultConversationTitle = "New Conversation"

// UnknownCountry is stored when geolocation cannot resolve an address.
const UnknownCountry = "Unknown"

// ParseConversationStatus validates a status string.
func ParseConversationStatus(s string) (ConversationStatus, error) {
	switch st := ConversationStatus(s); st {
	case StatusActive, StatusPending, StatusClosed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown conversation status %q", s)
	}
}

// Conversation is a thread between one visitor and the agents of a website.
type Conversation struct {
	ID        string             `json:"id"`
	WebsiteID string             `json:"websiteId"`
	VisitorID string             `json:"visitorId"`
	Status    ConversationStatus `json:"status"`
	Title     string             `json:"title"`
	IPAddress string             `json:"ipAddress,omitempty"`
	Country   string             `json:"country,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// ConversationSummary is a conversation as listed on the agent dashboard.
type ConversationSummary struct {
	Conversation
	Website     *Website `json:"website,omitempty"`
	LastMessage *Message `json:"lastMessage,omitempty"`
}
