package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ashureev/supportdesk/internal/domain"
	"github.com/ashureev/supportdesk/internal/realtime"
)

const defaultNotificationLimit = 50

// CreateNotification persists a notification and pushes it to the user's private channel.
// A publish failure is logged; the stored notification is still returned.
func (s *Service) CreateNotification(ctx context.Context, userID, notificationType, message, websiteID string) (*domain.Notification, error) {
	if userID == "" {
		return nil, newError(ErrorValidation, "userId is required", nil)
	}
	if notificationType == "" {
		return nil, newError(ErrorValidation, "notification type is required", nil)
	}
	n := &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		WebsiteID: websiteID,
		Type:      notificationType,
		Message:   message,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	_ = s.fanOut(ctx, send{realtime.UserChannel(userID), realtime.EventNotification, n})
	return n, nil
}

// ListNotifications returns the user's notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	if userID == "" {
		return nil, newError(ErrorUnauthorized, "agent identity required", nil)
	}
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	list, err := s.repo.ListNotifications(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

// MarkNotificationsRead marks notifications read. Only rows owned by userID
// change, whatever IDs the client sends.
func (s *Service) MarkNotificationsRead(ctx context.Context, userID string, ids []string) (int64, error) {
	if userID == "" {
		return 0, newError(ErrorUnauthorized, "agent identity required", nil)
	}
	ids = lo.Uniq(lo.Compact(ids))
	if len(ids) == 0 {
		return 0, newError(ErrorValidation, "notificationIds is required", nil)
	}
	n, err := s.repo.MarkNotificationsRead(ctx, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return n, nil
}
