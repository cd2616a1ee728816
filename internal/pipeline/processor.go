package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/skylab/dashboard/internal/platform/bus"
)

// Handler consumes one raw message payload. Decoding is the handler's
// business; a handler that cannot decode its payload drops it.
type Handler interface {
	Handle(ctx context.Context, payload []byte) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, payload []byte) error

func (f HandlerFunc) Handle(ctx context.Context, payload []byte) error { return f(ctx, payload) }

// Processor binds one bus channel to a handler. Each processor owns a
// single consumer goroutine, so handle calls never overlap: a message
// is fully handled before the next one is read.
type Processor struct {
	name    string
	channel string
	bus     bus.Bus
	handler Handler
	logger  zerolog.Logger

	mu      sync.Mutex
	started bool
	sub     bus.Subscription
	stopCh  chan struct{}
	done    chan struct{}
}

func NewProcessor(name, channel string, b bus.Bus, h Handler, logger zerolog.Logger) *Processor {
	return &Processor{
		name:    name,
		channel: channel,
		bus:     b,
		handler: h,
		logger:  logger.With().Str("processor", name).Logger(),
	}
}

// Start subscribes to the channel and launches the consumer. Starting a
// running processor is a no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	sub, err := p.bus.Subscribe(ctx, p.channel)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", p.channel, err)
	}
	p.sub = sub
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	p.started = true
	go p.consume(ctx, sub, p.stopCh, p.done)
	p.logger.Info().Str("channel", p.channel).Msg("processor started")
	return nil
}

// Stop unsubscribes and waits for the consumer to finish. The stop
// signal is only checked between messages, so an in-flight handle call
// always runs to completion.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	sub := p.sub
	done := p.done
	p.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
	<-done
	p.logger.Info().Msg("processor stopped")
}

func (p *Processor) consume(ctx context.Context, sub bus.Subscription, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			if err := p.handler.Handle(ctx, msg); err != nil {
				p.logger.Error().Err(err).Msg("message handling failed")
			}
		}
	}
}
