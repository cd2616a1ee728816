package pullrequest

import "context"

// PullRequestRepository defines storage operations for tracked pull
// requests. Lookups return nil without an error when no row matches.
type PullRequestRepository interface {
	Create(ctx context.Context, pr *PullRequest) error
	GetByID(ctx context.Context, id int64) (*PullRequest, error)
	List(ctx context.Context, limit, offset int) ([]*PullRequest, int, error)
	Delete(ctx context.Context, id int64) error
}
