// Package pipeline runs the asynchronous job machinery: processors
// subscribed to bus channels, the durable report queue with its retry
// wheel and dead-letter list, and the publish helpers producers use to
// emit work.
package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Channel names and queue keys shared by producers and processors.
const (
	ChannelE2EReport         = "e2e:report:generate"
	ChannelNotification      = "notification:create"
	ChannelPullRequestDelete = "pull-request:delete"

	KeyE2EQueue  = "e2e:report:queue"
	KeyE2ERetry  = "e2e:report:retry"
	KeyE2EFailed = "e2e:report:failed"
)

// E2EReportMessage requests the report for one calendar date. AppIDs is
// set by internal callers only; everyone else gets the watching set.
type E2EReportMessage struct {
	Date       string  `json:"date"`
	RequestID  string  `json:"requestId,omitempty"`
	RetryCount int     `json:"retryCount,omitempty"`
	AppIDs     []int64 `json:"appIds,omitempty"`
}

func (m *E2EReportMessage) Validate() error {
	if m.Date == "" {
		return fmt.Errorf("date is required")
	}
	if _, err := time.Parse("2006-01-02", m.Date); err != nil {
		return fmt.Errorf("invalid date %q, want YYYY-MM-DD", m.Date)
	}
	if m.RetryCount < 0 {
		return fmt.Errorf("retryCount must not be negative")
	}
	return nil
}

// NotificationInput is the payload of the notification channel.
type NotificationInput struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
	Type    string `json:"type"`
}

func (n *NotificationInput) Validate() error {
	if n.Title == "" {
		return fmt.Errorf("title is required")
	}
	if n.Message == "" {
		return fmt.Errorf("message is required")
	}
	if n.Type == "" {
		return fmt.Errorf("type is required")
	}
	return nil
}

// PullRequestDeletionRequest asks the reaper to remove one tracked
// pull request row.
type PullRequestDeletionRequest struct {
	ID                int64  `json:"id"`
	PullRequestNumber int    `json:"pullRequestNumber"`
	Repository        string `json:"repository"`
	Reason            string `json:"reason,omitempty"`
}

func (r *PullRequestDeletionRequest) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("id is required")
	}
	if r.PullRequestNumber <= 0 {
		return fmt.Errorf("pullRequestNumber is required")
	}
	if r.Repository == "" {
		return fmt.Errorf("repository is required")
	}
	return nil
}

// RetryEntry is one member of the retry set: the re-queued payload, its
// due time and the error that put it there.
type RetryEntry struct {
	Payload json.RawMessage `json:"payload"`
	RetryAt int64           `json:"retryAt"`
	Error   string          `json:"error"`
}

// DeadLetter wraps a message that exhausted its retries, kept for
// operator inspection.
type DeadLetter struct {
	Payload    json.RawMessage `json:"payload"`
	Error      string          `json:"error"`
	RetryCount int             `json:"retryCount"`
	Date       string          `json:"date"`
	Timestamp  int64           `json:"timestamp"`
}

// decodeStrict unmarshals into v rejecting unknown fields, so a payload
// published with a mistyped field name fails loudly instead of being
// half-read.
func decodeStrict(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func decodeE2EReportMessage(data []byte) (*E2EReportMessage, error) {
	var m E2EReportMessage
	if err := decodeStrict(data, &m); err != nil {
		return nil, fmt.Errorf("decode report request: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func decodeNotificationInput(data []byte) (*NotificationInput, error) {
	var n NotificationInput
	if err := decodeStrict(data, &n); err != nil {
		return nil, fmt.Errorf("decode notification input: %w", err)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

func decodePullRequestDeletionRequest(data []byte) (*PullRequestDeletionRequest, error) {
	var r PullRequestDeletionRequest
	if err := decodeStrict(data, &r); err != nil {
		return nil, fmt.Errorf("decode pull request deletion: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}
