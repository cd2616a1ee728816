package app

import "context"

// AppRepository is the storage contract for apps. Lookups return nil
// without an error when no row matches.
type AppRepository interface {
	Create(ctx context.Context, a *App) error
	GetByID(ctx context.Context, id int64) (*App, error)
	GetByCode(ctx context.Context, code string) (*App, error)
	List(ctx context.Context, limit, offset int) ([]*App, int, error)
	GetWatching(ctx context.Context) ([]*App, error)
	Update(ctx context.Context, a *App) error
	Delete(ctx context.Context, id int64) error
}
