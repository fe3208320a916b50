// Package realtime is the publish/subscribe provider: an in-process hub with
// per-channel replay, SSE and WebSocket transports, channel authorization and
// an optional Redis relay between instances.
package realtime

import "strings"

// Event names.
const (
	EventMessage      = "message"
	EventTyping       = "typing"
	EventMessagesRead = "messages-read"
	EventNotification = "notification"
)

const (
	adminPrefix   = "private-admin-"
	visitorPrefix = "chat-"
	userPrefix    = "private-user-"
	privatePrefix = "private-"
)

// ChannelKind classifies a channel name.
type ChannelKind int

// Channel kinds.
const (
	ChannelUnknown ChannelKind = iota
	ChannelAdmin
	ChannelVisitor
	ChannelUser
)

// AdminChannel carries a website's events for its agents, including visitor IP data.
func AdminChannel(websiteID string) string { return adminPrefix + websiteID }

// VisitorChannel is the public per-website broadcast channel the widget listens on.
// Clients filter by visitorId; payloads never include IP data.
func VisitorChannel(websiteID string) string { return visitorPrefix + websiteID }

// UserChannel carries notifications for one agent.
func UserChannel(userID string) string { return userPrefix + userID }

// ParseChannel returns the kind of a channel and the website or user ID it names.
func ParseChannel(name string) (ChannelKind, string) {
	switch {
	case strings.HasPrefix(name, adminPrefix):
		return nonEmpty(ChannelAdmin, strings.TrimPrefix(name, adminPrefix))
	case strings.HasPrefix(name, userPrefix):
		return nonEmpty(ChannelUser, strings.TrimPrefix(name, userPrefix))
	case strings.HasPrefix(name, visitorPrefix):
		return nonEmpty(ChannelVisitor, strings.TrimPrefix(name, visitorPrefix))
	default:
		return ChannelUnknown, ""
	}
}

// IsPrivate reports whether subscribing to the channel requires a grant.
func IsPrivate(name string) bool {
	return strings.HasPrefix(name, privatePrefix)
}

func nonEmpty(kind ChannelKind, id string) (ChannelKind, string) {
	if id == "" {
		return ChannelUnknown, ""
	}
	return kind, id
}
