package notification

import "context"

// NotificationRepository is the storage contract for notifications.
// Lookups return nil without an error when no row matches.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id int64) (*Notification, error)
	List(ctx context.Context, limit, offset int) ([]*Notification, int, error)
	CountUnread(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id int64) error
}
