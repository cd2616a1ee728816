package pipeline

import (
	"context"

	"github.com/rs/zerolog"
)

// NotificationWriter persists one notification row.
type NotificationWriter interface {
	Write(ctx context.Context, input *NotificationInput) error
}

// NewNotificationHandler returns the handler for the notification
// channel. Failures are logged and swallowed: the producer side is
// fire-and-forget and notifications are not retried.
func NewNotificationHandler(w NotificationWriter, logger zerolog.Logger) Handler {
	log := logger.With().Str("component", "notification_writer").Logger()
	return HandlerFunc(func(ctx context.Context, payload []byte) error {
		input, err := decodeNotificationInput(payload)
		if err != nil {
			log.Warn().Err(err).Msg("dropping undecodable notification")
			return nil
		}
		if err := w.Write(ctx, input); err != nil {
			log.Error().Err(err).Str("title", input.Title).Msg("failed to write notification")
			return nil
		}
		log.Debug().Str("title", input.Title).Str("type", input.Type).Msg("notification written")
		return nil
	})
}

// PullRequestRemover deletes one tracked pull request.
type PullRequestRemover interface {
	Remove(ctx context.Context, id int64) error
}

// NewPullRequestHandler returns the handler for the deletion channel.
// The outcome is logged either way; errors are swallowed.
func NewPullRequestHandler(r PullRequestRemover, logger zerolog.Logger) Handler {
	log := logger.With().Str("component", "pull_request_reaper").Logger()
	return HandlerFunc(func(ctx context.Context, payload []byte) error {
		req, err := decodePullRequestDeletionRequest(payload)
		if err != nil {
			log.Warn().Err(err).Msg("dropping undecodable deletion request")
			return nil
		}
		if err := r.Remove(ctx, req.ID); err != nil {
			log.Error().Err(err).Int64("id", req.ID).Str("repository", req.Repository).
				Msg("failed to delete pull request")
			return nil
		}
		log.Info().Int64("id", req.ID).Str("repository", req.Repository).
			Int("number", req.PullRequestNumber).Str("reason", req.Reason).
			Msg("pull request deleted")
		return nil
	})
}
