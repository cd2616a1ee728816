package notification

import (
	"context"
	"database/sql"

	"github.com/skylab/dashboard/internal/platform/db"
)

type queryable interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type notificationRepoMySQL struct{ store *db.Store }

func NewNotificationRepoMySQL(store *db.Store) NotificationRepository {
	return &notificationRepoMySQL{store: store}
}

func (r *notificationRepoMySQL) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.store
}

const notificationCols = `id, title, message, link, type, is_read, created_at`

func (r *notificationRepoMySQL) Create(ctx context.Context, n *Notification) error {
	res, err := r.conn(ctx).ExecContext(ctx, `
		INSERT INTO notifications (title, message, link, type)
		VALUES (?, ?, ?, ?)`,
		n.Title, n.Message, n.Link, n.Type)
	if err != nil {
		return db.Wrap("create notification", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return db.Wrap("create notification", err)
	}
	n.ID = id
	return nil
}

func (r *notificationRepoMySQL) GetByID(ctx context.Context, id int64) (*Notification, error) {
	var n Notification
	err := r.conn(ctx).GetContext(ctx, &n,
		`SELECT `+notificationCols+` FROM notifications WHERE id = ?`, id)
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, db.Wrap("get notification", err)
	}
	return &n, nil
}

func (r *notificationRepoMySQL) List(ctx context.Context, limit, offset int) ([]*Notification, int, error) {
	var total int
	if err := r.conn(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications`); err != nil {
		return nil, 0, db.Wrap("count notifications", err)
	}
	var items []*Notification
	err := r.conn(ctx).SelectContext(ctx, &items,
		`SELECT `+notificationCols+` FROM notifications ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, db.Wrap("list notifications", err)
	}
	return items, total, nil
}

func (r *notificationRepoMySQL) CountUnread(ctx context.Context) (int, error) {
	var total int
	err := r.conn(ctx).GetContext(ctx, &total,
		`SELECT COUNT(*) FROM notifications WHERE is_read = FALSE`)
	if err != nil {
		return 0, db.Wrap("count unread notifications", err)
	}
	return total, nil
}

func (r *notificationRepoMySQL) MarkRead(ctx context.Context, id int64) error {
	_, err := r.conn(ctx).ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = ?`, id)
	return db.Wrap("mark notification read", err)
}

func (r *notificationRepoMySQL) MarkAllRead(ctx context.Context) error {
	_, err := r.conn(ctx).ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE is_read = FALSE`)
	return db.Wrap("mark all notifications read", err)
}

func (r *notificationRepoMySQL) Delete(ctx context.Context, id int64) error {
	_, err := r.conn(ctx).ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	return db.Wrap("delete notification", err)
}
