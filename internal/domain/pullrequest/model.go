package pullrequest

import "time"

// PullRequest is a tracked pull request awaiting cleanup once it is
// merged or closed upstream.
type PullRequest struct {
	ID                int64     `db:"id" json:"id"`
	PullRequestNumber int       `db:"pull_request_number" json:"pull_request_number"`
	Repository        string    `db:"repository" json:"repository"`
	Title             string    `db:"title" json:"title"`
	Author            string    `db:"author" json:"author"`
	Status            string    `db:"status" json:"status"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}
