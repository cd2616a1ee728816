package bus

import (
	"context"
	"sort"
	"sync"
)

// subscriberBuffer is the per-subscription channel capacity. Publishes to
// a subscriber whose buffer is full are dropped rather than blocking the
// publisher.
const subscriberBuffer = 256

// Memory is an in-process Bus with the same visible semantics as the
// Redis implementation: fan-out pub/sub, FIFO lists and score-ordered
// sets. It backs tests and local development without a live server.
type Memory struct {
	mu    sync.RWMutex
	subs  map[string][]*memorySubscription
	lists map[string][][]byte
	zsets map[string][]zentry
}

type zentry struct {
	score  float64
	member string
}

// NewMemory creates an empty in-memory bus.
func NewMemory() *Memory {
	return &Memory{
		subs:  make(map[string][]*memorySubscription),
		lists: make(map[string][][]byte),
		zsets: make(map[string][]zentry),
	}
}

// ---------------------------------------------------------------------------
// Pub/sub
// ---------------------------------------------------------------------------

type memorySubscription struct {
	bus     *Memory
	channel string
	ch      chan []byte
	once    sync.Once
}

func (s *memorySubscription) Messages() <-chan []byte { return s.ch }

// Close unregisters the subscription first so no publisher can still see
// it, then closes the channel exactly once.
func (s *memorySubscription) Close() error {
	s.bus.remove(s)
	s.once.Do(func() { close(s.ch) })
	return nil
}

func (m *Memory) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.subs[channel] {
		select {
		case sub.ch <- payload:
		default:
			// Slow subscriber, drop instead of blocking the publisher.
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	sub := &memorySubscription{
		bus:     m,
		channel: channel,
		ch:      make(chan []byte, subscriberBuffer),
	}
	m.mu.Lock()
	m.subs[channel] = append(m.subs[channel], sub)
	m.mu.Unlock()
	return sub, nil
}

// remove takes sub out of the channel's subscriber list. Publishers hold
// the read lock for the whole fan-out, so once remove returns no send on
// sub.ch can still be in flight.
func (m *Memory) remove(sub *memorySubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[sub.channel]
	for i, s := range list {
		if s == sub {
			m.subs[sub.channel] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// ---------------------------------------------------------------------------
// Lists
// ---------------------------------------------------------------------------

func (m *Memory) RPush(ctx context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append(m.lists[key], payload)
	return nil
}

func (m *Memory) LPop(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.lists[key]
	if len(list) == 0 {
		return nil, nil
	}
	head := list[0]
	m.lists[key] = list[1:]
	return head, nil
}

func (m *Memory) LLen(ctx context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.lists[key])), nil
}

func (m *Memory) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.lists[key]
	n := int64(len(list))

	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return nil, nil
	}

	out := make([][]byte, 0, stop-start+1)
	for _, v := range list[start : stop+1] {
		out = append(out, v)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Sorted sets
// ---------------------------------------------------------------------------

func (m *Memory) ZAdd(ctx context.Context, key string, score float64, member []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.zsets[key]
	for i, e := range entries {
		if e.member == string(member) {
			entries[i].score = score
			return nil
		}
	}
	m.zsets[key] = append(entries, zentry{score: score, member: string(member)})
	return nil
}

func (m *Memory) ZRangeByScore(ctx context.Context, key string, max float64, limit int64) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]zentry, len(m.zsets[key]))
	copy(entries, m.zsets[key])
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score < entries[j].score
		}
		return entries[i].member < entries[j].member
	})

	var out [][]byte
	for _, e := range entries {
		if e.score > max {
			break
		}
		out = append(out, []byte(e.member))
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) ZRem(ctx context.Context, key string, member []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.zsets[key]
	for i, e := range entries {
		if e.member == string(member) {
			m.zsets[key] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) ZCard(ctx context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.zsets[key])), nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (m *Memory) Ping(ctx context.Context) error { return nil }

// Close closes every open subscription.
func (m *Memory) Close() error {
	m.mu.Lock()
	var all []*memorySubscription
	for _, list := range m.subs {
		all = append(all, list...)
	}
	m.subs = make(map[string][]*memorySubscription)
	m.mu.Unlock()

	for _, sub := range all {
		sub.once.Do(func() { close(sub.ch) })
	}
	return nil
}
