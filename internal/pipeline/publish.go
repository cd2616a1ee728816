package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skylab/dashboard/internal/platform/bus"
)

// Publisher emits work onto the bus for the processors. Validation
// stops at required-field presence; the consumers are the source of
// truth for everything else.
type Publisher struct {
	bus    bus.Bus
	logger zerolog.Logger
}

func NewPublisher(b bus.Bus, logger zerolog.Logger) *Publisher {
	return &Publisher{bus: b, logger: logger.With().Str("component", "publisher").Logger()}
}

// PublishE2EReport requests a report build for date. A request id is
// generated when the caller does not supply one; the id used is
// returned either way so callers can correlate logs.
func (p *Publisher) PublishE2EReport(ctx context.Context, date, requestID string) (string, error) {
	if date == "" {
		return "", fmt.Errorf("date is required")
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	data, err := json.Marshal(&E2EReportMessage{Date: date, RequestID: requestID})
	if err != nil {
		return "", fmt.Errorf("encode report request: %w", err)
	}
	if err := p.bus.Publish(ctx, ChannelE2EReport, data); err != nil {
		return "", err
	}
	p.logger.Info().Str("date", date).Str("request_id", requestID).Msg("report build requested")
	return requestID, nil
}

// PublishNotification emits a notification for the writer.
func (p *Publisher) PublishNotification(ctx context.Context, input *NotificationInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encode notification input: %w", err)
	}
	return p.bus.Publish(ctx, ChannelNotification, data)
}

// PublishPullRequestDeletion emits a deletion request for the reaper.
func (p *Publisher) PublishPullRequestDeletion(ctx context.Context, req *PullRequestDeletionRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode deletion request: %w", err)
	}
	return p.bus.Publish(ctx, ChannelPullRequestDelete, data)
}
