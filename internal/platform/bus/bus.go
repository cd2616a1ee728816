// Package bus provides the message fabric the async pipeline runs on:
// pub/sub channels for work distribution, FIFO lists for queues and
// score-ordered sets for delayed retries. The live implementation talks
// to Redis; Memory is an in-process stand-in with the same visible
// semantics for tests and local development.
package bus

import "context"

// Subscription is a live pub/sub subscription. Messages delivers raw
// payloads until Close is called or the connection goes away, at which
// point the channel is closed.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// Bus is the capability set the pipeline depends on.
type Bus interface {
	// Publish sends payload to every current subscriber of channel.
	// Delivery is best-effort fan-out.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe registers for messages published to channel.
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	// RPush appends payload to the tail of the list at key.
	RPush(ctx context.Context, key string, payload []byte) error

	// LPop removes and returns the head of the list at key. It returns
	// nil with no error when the list is empty or missing.
	LPop(ctx context.Context, key string) ([]byte, error)

	// LLen returns the length of the list at key.
	LLen(ctx context.Context, key string) (int64, error)

	// LRange returns the list elements between start and stop inclusive,
	// with Redis index semantics (negative indices count from the tail).
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)

	// ZAdd adds member to the sorted set at key, or updates its score if
	// it is already present.
	ZAdd(ctx context.Context, key string, score float64, member []byte) error

	// ZRangeByScore returns up to limit members with score <= max, in
	// ascending score order. A limit of 0 or less means no limit.
	ZRangeByScore(ctx context.Context, key string, max float64, limit int64) ([][]byte, error)

	// ZRem removes member from the sorted set at key.
	ZRem(ctx context.Context, key string, member []byte) error

	// ZCard returns the cardinality of the sorted set at key.
	ZCard(ctx context.Context, key string) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close tears down all connections and subscriptions.
	Close() error
}
