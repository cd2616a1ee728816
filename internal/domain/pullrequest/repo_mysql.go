package pullrequest

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

type pullRequestRepoMySQL struct{ store *db.Store }

func NewPullRequestRepoMySQL(store *db.Store) PullRequestRepository {
	return &pullRequestRepoMySQL{store: store}
}

func (r *pullRequestRepoMySQL) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.store
}

const pullRequestCols = `id, pull_request_number, repository, title, author, status, created_at, updated_at`

func (r *pullRequestRepoMySQL) Create(ctx context.Context, pr *PullRequest) error {
	res, err := r.conn(ctx).ExecContext(ctx, `
		INSERT INTO pull_requests (pull_request_number, repository, title, author, status)
		VALUES (?, ?, ?, ?, ?)`,
		pr.PullRequestNumber, pr.Repository, pr.Title, pr.Author, pr.Status)
	if err != nil {
		return db.Wrap("create pull request", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return db.Wrap("create pull request", err)
	}
	pr.ID = id
	return nil
}

func (r *pullRequestRepoMySQL) GetByID(ctx context.Context, id int64) (*PullRequest, error) {
	var pr PullRequest
	err := r.conn(ctx).GetContext(ctx, &pr,
		`SELECT `+pullRequestCols+` FROM pull_requests WHERE id = ?`, id)
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, db.Wrap("get pull request", err)
	}
	return &pr, nil
}

func (r *pullRequestRepoMySQL) List(ctx context.Context, limit, offset int) ([]*PullRequest, int, error) {
	var total int
	if err := r.conn(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM pull_requests`); err != nil {
		return nil, 0, db.Wrap("count pull requests", err)
	}
	var items []*PullRequest
	err := r.conn(ctx).SelectContext(ctx, &items,
		`SELECT `+pullRequestCols+` FROM pull_requests ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, db.Wrap("list pull requests", err)
	}
	return items, total, nil
}

func (r *pullRequestRepoMySQL) Delete(ctx context.Context, id int64) error {
	_, err := r.conn(ctx).ExecContext(ctx, `DELETE FROM pull_requests WHERE id = ?`, id)
	return db.Wrap("delete pull request", err)
}
