package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/ashureev/supportdesk/internal/identity"
	"github.com/ashureev/supportdesk/internal/realtime"
	"github.com/ashureev/supportdesk/internal/store"
)

const maxReadBatch = 500

// ReadResult reports how many messages a read receipt actually changed.
type ReadResult struct {
	Count      int      `json:"count"`
	MessageIDs []string `json:"messageIds"`
}

// MarkRead sets readAt on unread VISITOR messages within scope and returns the
// IDs it changed. Messages outside the scope or already read are ignored.
func (s *Service) MarkRead(ctx context.Context, scope store.ReadScope) (*ReadResult, error) {
	return s.markReadAt(ctx, scope, s.now())
}

// MarkReadByVisitor handles the widget read receipt. When any message changed,
// messages-read goes to the admin channel.
func (s *Service) MarkReadByVisitor(ctx context.Context, websiteID, visitorID string, messageIDs []string) (*ReadResult, error) {
	if !identity.ValidVisitorID(visitorID) {
		return nil, newError(ErrorValidation, "invalid visitorId", nil)
	}
	if len(messageIDs) == 0 {
		return nil, newError(ErrorValidation, "messageIds is required", nil)
	}
	at := s.now()
	res, err := s.markReadAt(ctx, store.ReadScope{WebsiteID: websiteID, VisitorID: visitorID, MessageIDs: messageIDs}, at)
	if err != nil || res.Count == 0 {
		return res, err
	}

	_ = s.fanOut(ctx, send{realtime.AdminChannel(websiteID), realtime.EventMessagesRead, ReadEvent{
		MessageIDs: res.MessageIDs,
		ReadAt:     at,
		VisitorID:  visitorID,
	}})
	return res, nil
}

// MarkConversationRead marks visitor messages of a conversation read on behalf
// of an agent. Empty messageIDs means every unread visitor message. Both
// channels are notified so the widget can show the receipt.
func (s *Service) MarkConversationRead(ctx context.Context, userID, conversationID string, messageIDs []string) (*ReadResult, error) {
	conv, err := s.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	at := s.now()
	res, err := s.markReadAt(ctx, store.ReadScope{
		WebsiteID:      conv.WebsiteID,
		ConversationID: conv.ID,
		MessageIDs:     messageIDs,
	}, at)
	if err != nil || res.Count == 0 {
		return res, err
	}

	ev := ReadEvent{MessageIDs: res.MessageIDs, ReadAt: at, VisitorID: conv.VisitorID, ConversationID: conv.ID}
	_ = s.fanOut(ctx,
		send{realtime.AdminChannel(conv.WebsiteID), realtime.EventMessagesRead, ev},
		send{realtime.VisitorChannel(conv.WebsiteID), realtime.EventMessagesRead, ev},
	)
	return res, nil
}

func (s *Service) markReadAt(ctx context.Context, scope store.ReadScope, at time.Time) (*ReadResult, error) {
	if scope.WebsiteID == "" {
		return nil, newError(ErrorValidation, "websiteId is required", nil)
	}
	scope.MessageIDs = lo.Uniq(lo.Compact(scope.MessageIDs))
	if len(scope.MessageIDs) > maxReadBatch {
		return nil, newError(ErrorValidation, fmt.Sprintf("at most %d message ids per request", maxReadBatch), nil)
	}
	ids, err := s.repo.MarkMessagesRead(ctx, scope, at)
	if err != nil {
		return nil, fmt.Errorf("mark messages read: %w", err)
	}
	return &ReadResult{Count: len(ids), MessageIDs: ids}, nil
}
