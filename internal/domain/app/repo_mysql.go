package app

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

type appRepoMySQL struct{ store *db.Store }

func NewAppRepoMySQL(store *db.Store) AppRepository {
	return &appRepoMySQL{store: store}
}

func (r *appRepoMySQL) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.store
}

const appCols = `id, name, code, pipeline_url, e2e_trigger_configuration, watching, created_at, updated_at`

func (r *appRepoMySQL) Create(ctx context.Context, a *App) error {
	res, err := r.conn(ctx).ExecContext(ctx, `
		INSERT INTO apps (name, code, pipeline_url, e2e_trigger_configuration, watching)
		VALUES (?, ?, ?, ?, ?)`,
		a.Name, a.Code, a.PipelineURL, a.E2ETriggerConfiguration, a.Watching)
	if err != nil {
		return db.Wrap("create app", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return db.Wrap("create app", err)
	}
	a.ID = id
	return nil
}

func (r *appRepoMySQL) GetByID(ctx context.Context, id int64) (*App, error) {
	var a App
	err := r.conn(ctx).GetContext(ctx, &a, `SELECT `+appCols+` FROM apps WHERE id = ?`, id)
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, db.Wrap("get app", err)
	}
	return &a, nil
}

func (r *appRepoMySQL) GetByCode(ctx context.Context, code string) (*App, error) {
	var a App
	err := r.conn(ctx).GetContext(ctx, &a, `SELECT `+appCols+` FROM apps WHERE code = ?`, code)
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, db.Wrap("get app by code", err)
	}
	return &a, nil
}

func (r *appRepoMySQL) List(ctx context.Context, limit, offset int) ([]*App, int, error) {
	var total int
	if err := r.conn(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM apps`); err != nil {
		return nil, 0, db.Wrap("count apps", err)
	}
	var items []*App
	err := r.conn(ctx).SelectContext(ctx, &items,
		`SELECT `+appCols+` FROM apps ORDER BY name ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, db.Wrap("list apps", err)
	}
	return items, total, nil
}

func (r *appRepoMySQL) GetWatching(ctx context.Context) ([]*App, error) {
	var items []*App
	err := r.conn(ctx).SelectContext(ctx, &items,
		`SELECT `+appCols+` FROM apps WHERE watching = TRUE ORDER BY name ASC`)
	if err != nil {
		return nil, db.Wrap("list watching apps", err)
	}
	return items, nil
}

func (r *appRepoMySQL) Update(ctx context.Context, a *App) error {
	_, err := r.conn(ctx).ExecContext(ctx, `
		UPDATE apps SET name = ?, pipeline_url = ?, e2e_trigger_configuration = ?, watching = ?
		WHERE id = ?`,
		a.Name, a.PipelineURL, a.E2ETriggerConfiguration, a.Watching, a.ID)
	return db.Wrap("update app", err)
}

func (r *appRepoMySQL) Delete(ctx context.Context, id int64) error {
	_, err := r.conn(ctx).ExecContext(ctx, `DELETE FROM apps WHERE id = ?`, id)
	return db.Wrap("delete app", err)
}
