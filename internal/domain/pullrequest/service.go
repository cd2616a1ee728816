package pullrequest

import (
	"context"
	"fmt"

	"github.com/skylab/dashboard/internal/platform/db"
)

const StatusOpen = "open"

type Service struct {
	pullRequests PullRequestRepository
}

func NewService(pr PullRequestRepository) *Service {
	return &Service{pullRequests: pr}
}

func (s *Service) CreatePullRequest(ctx context.Context, pr *PullRequest) error {
	if pr.PullRequestNumber <= 0 {
		return fmt.Errorf("pull_request_number is required")
	}
	if pr.Repository == "" {
		return fmt.Errorf("repository is required")
	}
	if pr.Status == "" {
		pr.Status = StatusOpen
	}
	if err := s.pullRequests.Create(ctx, pr); err != nil {
		if db.IsDuplicateEntry(err) {
			return fmt.Errorf("pull request %s#%d already exists", pr.Repository, pr.PullRequestNumber)
		}
		return err
	}
	return nil
}

func (s *Service) GetPullRequest(ctx context.Context, id int64) (*PullRequest, error) {
	return s.pullRequests.GetByID(ctx, id)
}

func (s *Service) ListPullRequests(ctx context.Context, limit, offset int) ([]*PullRequest, int, error) {
	return s.pullRequests.List(ctx, limit, offset)
}

// DeletePullRequest removes a tracked pull request. It is the terminal
// step of the deletion pipeline and is safe to call for rows that are
// already gone.
func (s *Service) DeletePullRequest(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("id is required")
	}
	return s.pullRequests.Delete(ctx, id)
}
