package app

import (
	"context"
	"fmt"

	"github.com/skylab/dashboard/internal/platform/db"
)

type Service struct {
	apps AppRepository
}

func NewService(apps AppRepository) *Service {
	return &Service{apps: apps}
}

func (s *Service) CreateApp(ctx context.Context, a *App) error {
	if a.Name == "" {
		return fmt.Errorf("name is required")
	}
	if a.Code == "" {
		return fmt.Errorf("code is required")
	}
	if err := s.apps.Create(ctx, a); err != nil {
		if db.IsDuplicateEntry(err) {
			return fmt.Errorf("app code %q already exists", a.Code)
		}
		return err
	}
	return nil
}

func (s *Service) GetApp(ctx context.Context, id int64) (*App, error) {
	return s.apps.GetByID(ctx, id)
}

func (s *Service) GetAppByCode(ctx context.Context, code string) (*App, error) {
	return s.apps.GetByCode(ctx, code)
}

func (s *Service) ListApps(ctx context.Context, limit, offset int) ([]*App, int, error) {
	return s.apps.List(ctx, limit, offset)
}

// GetWatchingApps returns the apps included in daily report builds.
func (s *Service) GetWatchingApps(ctx context.Context) ([]*App, error) {
	return s.apps.GetWatching(ctx)
}

func (s *Service) UpdateApp(ctx context.Context, a *App) error {
	if a.ID == 0 {
		return fmt.Errorf("id is required")
	}
	if a.Name == "" {
		return fmt.Errorf("name is required")
	}
	return s.apps.Update(ctx, a)
}

func (s *Service) DeleteApp(ctx context.Context, id int64) error {
	return s.apps.Delete(ctx, id)
}
