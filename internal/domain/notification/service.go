package notification

import (
	"context"
	"fmt"
)

type Service struct {
	notifications NotificationRepository
}

func NewService(n NotificationRepository) *Service {
	return &Service{notifications: n}
}

var validTypes = map[string]bool{
	TypeInfo: true, TypeSuccess: true, TypeWarning: true, TypeError: true,
}

func (s *Service) CreateNotification(ctx context.Context, n *Notification) error {
	if n.Title == "" {
		return fmt.Errorf("title is required")
	}
	if n.Message == "" {
		return fmt.Errorf("message is required")
	}
	if n.Type == "" {
		n.Type = TypeInfo
	}
	if !validTypes[n.Type] {
		return fmt.Errorf("invalid type: %s", n.Type)
	}
	return s.notifications.Create(ctx, n)
}

func (s *Service) GetNotification(ctx context.Context, id int64) (*Notification, error) {
	return s.notifications.GetByID(ctx, id)
}

func (s *Service) ListNotifications(ctx context.Context, limit, offset int) ([]*Notification, int, error) {
	return s.notifications.List(ctx, limit, offset)
}

func (s *Service) CountUnread(ctx context.Context) (int, error) {
	return s.notifications.CountUnread(ctx)
}

func (s *Service) MarkRead(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("id is required")
	}
	return s.notifications.MarkRead(ctx, id)
}

func (s *Service) MarkAllRead(ctx context.Context) error {
	return s.notifications.MarkAllRead(ctx)
}

func (s *Service) DeleteNotification(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("id is required")
	}
	return s.notifications.Delete(ctx, id)
}
