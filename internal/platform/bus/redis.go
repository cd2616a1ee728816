package bus

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis is the live Bus implementation. It keeps two connections the way
// the dashboard always has: one client for commands and publishes, one
// dedicated to subscriptions, so a write-path reconnect never tears down
// the subscriber.
type Redis struct {
	logger zerolog.Logger
	opts   *redis.Options

	mu  sync.RWMutex
	cmd *redis.Client
	sub *redis.Client
}

// NewRedis parses url, dials the server and verifies it with a ping.
// Failed attempts are retried indefinitely with a linearly growing wait,
// capped at two seconds, until the context is cancelled.
func NewRedis(ctx context.Context, url string, logger zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	b := &Redis{
		logger: logger.With().Str("component", "bus").Logger(),
		opts:   opts,
	}
	if err := b.connect(ctx); err != nil {
		return nil, err
	}
	b.sub = redis.NewClient(opts)
	return b, nil
}

// connect dials until a ping succeeds or the context is cancelled.
func (b *Redis) connect(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		client := redis.NewClient(b.opts)
		err := client.Ping(ctx).Err()
		if err == nil {
			b.mu.Lock()
			b.cmd = client
			b.mu.Unlock()
			if attempt > 1 {
				b.logger.Info().Int("attempt", attempt).Msg("redis connected")
			}
			return nil
		}
		client.Close()

		wait := connectBackoff(attempt)
		b.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).
			Msg("redis connection failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("connect redis: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
}

// connectBackoff returns the wait before connection attempt n+1: linear
// in the attempt number, capped at two seconds.
func connectBackoff(attempt int) time.Duration {
	wait := time.Duration(attempt) * 50 * time.Millisecond
	if wait > 2*time.Second {
		wait = 2 * time.Second
	}
	return wait
}

// isReadOnlyReplica reports whether err is the reply of a Redis replica
// that cannot accept writes, which is what the old primary returns after
// a failover.
func isReadOnlyReplica(err error) bool {
	return err != nil && strings.Contains(err.Error(), "READONLY")
}

func (b *Redis) client() *redis.Client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cmd
}

// reconnect swaps in a fresh lazily-dialing client so the next command
// reaches the new primary instead of the demoted replica.
func (b *Redis) reconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cmd != nil {
		b.cmd.Close()
	}
	b.cmd = redis.NewClient(b.opts)
}

// check wraps a command error and forces a reconnect when the server
// reports it has become a read-only replica.
func (b *Redis) check(op string, err error) error {
	if err == nil {
		return nil
	}
	if isReadOnlyReplica(err) {
		b.logger.Warn().Err(err).Str("op", op).Msg("redis is read-only, reconnecting")
		b.reconnect()
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (b *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.check("publish "+channel, b.client().Publish(ctx, channel, payload).Err())
}

func (b *Redis) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	b.mu.RLock()
	sub := b.sub
	b.mu.RUnlock()

	ps := sub.Subscribe(ctx, channel)
	// Force the SUBSCRIBE onto the wire before returning.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	s := &redisSubscription{ps: ps, out: make(chan []byte, 64)}
	go s.pump()
	return s, nil
}

type redisSubscription struct {
	ps  *redis.PubSub
	out chan []byte
}

func (s *redisSubscription) pump() {
	defer close(s.out)
	for msg := range s.ps.Channel() {
		s.out <- []byte(msg.Payload)
	}
}

func (s *redisSubscription) Messages() <-chan []byte { return s.out }

func (s *redisSubscription) Close() error { return s.ps.Close() }

func (b *Redis) RPush(ctx context.Context, key string, payload []byte) error {
	return b.check("rpush "+key, b.client().RPush(ctx, key, payload).Err())
}

func (b *Redis) LPop(ctx context.Context, key string) ([]byte, error) {
	val, err := b.client().LPop(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, b.check("lpop "+key, err)
	}
	return val, nil
}

func (b *Redis) LLen(ctx context.Context, key string) (int64, error) {
	n, err := b.client().LLen(ctx, key).Result()
	if err != nil {
		return 0, b.check("llen "+key, err)
	}
	return n, nil
}

func (b *Redis) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	vals, err := b.client().LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, b.check("lrange "+key, err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (b *Redis) ZAdd(ctx context.Context, key string, score float64, member []byte) error {
	err := b.client().ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
	return b.check("zadd "+key, err)
}

func (b *Redis) ZRangeByScore(ctx context.Context, key string, max float64, limit int64) ([][]byte, error) {
	rng := &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(max, 'f', -1, 64),
		Count: limit,
	}
	vals, err := b.client().ZRangeByScore(ctx, key, rng).Result()
	if err != nil {
		return nil, b.check("zrangebyscore "+key, err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (b *Redis) ZRem(ctx context.Context, key string, member []byte) error {
	return b.check("zrem "+key, b.client().ZRem(ctx, key, member).Err())
}

func (b *Redis) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := b.client().ZCard(ctx, key).Result()
	if err != nil {
		return 0, b.check("zcard "+key, err)
	}
	return n, nil
}

func (b *Redis) Ping(ctx context.Context) error {
	return b.check("ping", b.client().Ping(ctx).Err())
}

func (b *Redis) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	if b.cmd != nil {
		if err := b.cmd.Close(); err != nil {
			firstErr = err
		}
		b.cmd = nil
	}
	if b.sub != nil {
		if err := b.sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		b.sub = nil
	}
	return firstErr
}
