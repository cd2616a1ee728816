package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/skylab/dashboard/internal/platform/bus"
)

const (
	defaultMaxRetries    = 3
	defaultBaseDelay     = 5 * time.Second
	defaultWheelInterval = 2 * time.Second
	wheelBatchSize       = 10
)

// BuildFunc runs one report build for a decoded request.
type BuildFunc func(ctx context.Context, msg *E2EReportMessage) error

// Engine owns the durable report queue. Incoming requests are pushed
// onto a FIFO list and drained one at a time; failed builds are parked
// in a score-ordered retry set with exponential backoff and promoted
// back onto the queue by a periodic wheel, until retries are exhausted
// and the message lands on the dead-letter list.
type Engine struct {
	bus    bus.Bus
	build  BuildFunc
	logger zerolog.Logger

	maxRetries    int
	baseDelay     time.Duration
	wheelInterval time.Duration

	draining atomic.Bool

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	done    chan struct{}

	now func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxRetries overrides how many times a failed build is retried
// before it is dead-lettered.
func WithMaxRetries(n int) EngineOption {
	return func(e *Engine) { e.maxRetries = n }
}

// WithBaseDelay overrides the first retry delay. Subsequent delays
// double per failed attempt.
func WithBaseDelay(d time.Duration) EngineOption {
	return func(e *Engine) { e.baseDelay = d }
}

// WithWheelInterval overrides how often due retries are promoted.
func WithWheelInterval(d time.Duration) EngineOption {
	return func(e *Engine) { e.wheelInterval = d }
}

func NewEngine(b bus.Bus, build BuildFunc, logger zerolog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		bus:           b,
		build:         build,
		logger:        logger.With().Str("component", "queue_engine").Logger(),
		maxRetries:    defaultMaxRetries,
		baseDelay:     defaultBaseDelay,
		wheelInterval: defaultWheelInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleMessage is the report channel handler: it enqueues the request
// and drains the queue in the same call. Undecodable payloads are
// poison input and are dropped without retry.
func (e *Engine) HandleMessage(ctx context.Context, payload []byte) error {
	msg, err := decodeE2EReportMessage(payload)
	if err != nil {
		e.logger.Warn().Err(err).Msg("dropping undecodable report request")
		return nil
	}
	if err := e.Enqueue(ctx, msg); err != nil {
		return err
	}
	e.Drain(ctx)
	return nil
}

// Enqueue pushes a report request onto the durable work queue.
func (e *Engine) Enqueue(ctx context.Context, msg *E2EReportMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode report request: %w", err)
	}
	if err := e.bus.RPush(ctx, KeyE2EQueue, data); err != nil {
		return fmt.Errorf("enqueue report request: %w", err)
	}
	return nil
}

// Drain pops queued requests and runs the builder until the queue is
// empty. At most one drain pass runs at a time; a concurrent call
// returns immediately. After releasing the flag the running pass
// re-checks the queue depth, so a request pushed in that window is
// still picked up rather than stranded until the next trigger.
func (e *Engine) Drain(ctx context.Context) {
	for {
		if !e.draining.CompareAndSwap(false, true) {
			return
		}
		e.drainOnce(ctx)
		e.draining.Store(false)

		n, err := e.bus.LLen(ctx, KeyE2EQueue)
		if err != nil || n == 0 {
			return
		}
	}
}

func (e *Engine) drainOnce(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		data, err := e.bus.LPop(ctx, KeyE2EQueue)
		if err != nil {
			e.logger.Error().Err(err).Msg("queue pop failed, stopping drain pass")
			return
		}
		if data == nil {
			return
		}
		msg, err := decodeE2EReportMessage(data)
		if err != nil {
			e.logger.Warn().Err(err).Msg("dropping undecodable queued request")
			continue
		}
		if err := e.build(ctx, msg); err != nil {
			e.retryOrDeadLetter(ctx, msg, data, err)
		}
	}
}

func (e *Engine) retryOrDeadLetter(ctx context.Context, msg *E2EReportMessage, raw []byte, cause error) {
	if msg.RetryCount < e.maxRetries {
		if err := e.scheduleRetry(ctx, msg, cause); err != nil {
			e.logger.Error().Err(err).Str("date", msg.Date).Msg("failed to schedule retry")
		}
		return
	}
	if err := e.deadLetter(ctx, raw, msg, cause); err != nil {
		e.logger.Error().Err(err).Str("date", msg.Date).Msg("failed to dead-letter message")
	}
}

// scheduleRetry parks the request in the retry set. The stored payload
// carries the incremented retry count; the delay doubles with each
// failed attempt, 5s then 10s then 20s at the default base delay.
func (e *Engine) scheduleRetry(ctx context.Context, msg *E2EReportMessage, cause error) error {
	delay := e.baseDelay << uint(msg.RetryCount)
	next := *msg
	next.RetryCount = msg.RetryCount + 1
	payload, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode retry payload: %w", err)
	}
	retryAt := e.now().Add(delay).UnixMilli()
	entry, err := json.Marshal(RetryEntry{Payload: payload, RetryAt: retryAt, Error: cause.Error()})
	if err != nil {
		return fmt.Errorf("encode retry entry: %w", err)
	}
	e.logger.Warn().Err(cause).Str("date", msg.Date).Int("retry_count", msg.RetryCount).
		Dur("delay", delay).Msg("build failed, scheduling retry")
	if err := e.bus.ZAdd(ctx, KeyE2ERetry, float64(retryAt), entry); err != nil {
		return fmt.Errorf("park retry entry: %w", err)
	}
	return nil
}

// deadLetter appends the raw message and its failure metadata to the
// terminal list. Dead letters are operator inspected, never consumed
// automatically.
func (e *Engine) deadLetter(ctx context.Context, raw []byte, msg *E2EReportMessage, cause error) error {
	entry, err := json.Marshal(DeadLetter{
		Payload:    raw,
		Error:      cause.Error(),
		RetryCount: msg.RetryCount,
		Date:       msg.Date,
		Timestamp:  e.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}
	e.logger.Error().Err(cause).Str("date", msg.Date).Int("retry_count", msg.RetryCount).
		Msg("retries exhausted, dead-lettering message")
	if err := e.bus.RPush(ctx, KeyE2EFailed, entry); err != nil {
		return fmt.Errorf("append dead letter: %w", err)
	}
	return nil
}

// StartWheel launches the retry promoter. Idempotent.
func (e *Engine) StartWheel(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	go e.runWheel(ctx, e.stopCh, e.done)
}

// StopWheel stops the promoter and waits for the current tick to end.
func (e *Engine) StopWheel() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	close(e.stopCh)
	done := e.done
	e.mu.Unlock()
	<-done
}

func (e *Engine) runWheel(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.wheelInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.PromoteDue(ctx) > 0 {
				e.Drain(ctx)
			}
		}
	}
}

// PromoteDue moves one batch of due entries from the retry set back
// onto the work queue and reports how many it moved. An entry that no
// longer parses is removed and dropped instead of being re-queued.
func (e *Engine) PromoteDue(ctx context.Context) int {
	due := float64(e.now().UnixMilli())
	entries, err := e.bus.ZRangeByScore(ctx, KeyE2ERetry, due, wheelBatchSize)
	if err != nil {
		e.logger.Error().Err(err).Msg("retry scan failed")
		return 0
	}
	promoted := 0
	for _, raw := range entries {
		if err := e.bus.ZRem(ctx, KeyE2ERetry, raw); err != nil {
			e.logger.Error().Err(err).Msg("retry remove failed")
			continue
		}
		var entry RetryEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			e.logger.Warn().Err(err).Msg("dropping unparseable retry entry")
			continue
		}
		if err := e.bus.RPush(ctx, KeyE2EQueue, entry.Payload); err != nil {
			e.logger.Error().Err(err).Msg("retry requeue failed")
			continue
		}
		promoted++
	}
	return promoted
}

// Stats reports queue depths for the ops surface.
type Stats struct {
	QueueDepth      int64 `json:"queue_depth"`
	RetryDepth      int64 `json:"retry_depth"`
	DeadLetterDepth int64 `json:"dead_letter_depth"`
	Draining        bool  `json:"draining"`
}

func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	queue, err := e.bus.LLen(ctx, KeyE2EQueue)
	if err != nil {
		return nil, err
	}
	retry, err := e.bus.ZCard(ctx, KeyE2ERetry)
	if err != nil {
		return nil, err
	}
	dead, err := e.bus.LLen(ctx, KeyE2EFailed)
	if err != nil {
		return nil, err
	}
	return &Stats{
		QueueDepth:      queue,
		RetryDepth:      retry,
		DeadLetterDepth: dead,
		Draining:        e.draining.Load(),
	}, nil
}

// PeekDeadLetters returns up to limit dead letters without consuming
// them.
func (e *Engine) PeekDeadLetters(ctx context.Context, limit int64) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 20
	}
	raw, err := e.bus.LRange(ctx, KeyE2EFailed, 0, limit-1)
	if err != nil {
		return nil, err
	}
	out := make([]DeadLetter, 0, len(raw))
	for _, r := range raw {
		var d DeadLetter
		if err := json.Unmarshal(r, &d); err != nil {
			e.logger.Warn().Err(err).Msg("skipping unparseable dead letter")
			continue
		}
		out = append(out, d)
	}
	return out, nil
}
