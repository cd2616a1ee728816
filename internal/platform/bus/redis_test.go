package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
)

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	b, err := NewRedis(context.Background(), "redis://"+mr.Addr(), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-redis-url", zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestNewRedis_GivesUpWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// Port 1 refuses connections, so the dial loop retries until the
	// context deadline stops it.
	_, err := NewRedis(ctx, "redis://127.0.0.1:1", zerolog.Nop())
	if err == nil {
		t.Fatal("expected error when context is cancelled")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context deadline error, got %v", err)
	}
}

func TestRedis_ListRoundTrip(t *testing.T) {
	b := newTestRedis(t)
	ctx := context.Background()

	for _, v := range []string{"one", "two"} {
		if err := b.RPush(ctx, "e2e:report:queue", []byte(v)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	n, err := b.LLen(ctx, "e2e:report:queue")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected length 2, got %d", n)
	}

	got, err := b.LPop(ctx, "e2e:report:queue")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "one" {
		t.Errorf("expected %q, got %q", "one", got)
	}

	got, err = b.LPop(ctx, "e2e:report:queue")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "two" {
		t.Errorf("expected %q, got %q", "two", got)
	}

	got, err = b.LPop(ctx, "e2e:report:queue")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil on empty list, got %q", got)
	}
}

func TestRedis_SortedSetRoundTrip(t *testing.T) {
	b := newTestRedis(t)
	ctx := context.Background()

	b.ZAdd(ctx, "e2e:report:retry", 300, []byte("c"))
	b.ZAdd(ctx, "e2e:report:retry", 100, []byte("a"))
	b.ZAdd(ctx, "e2e:report:retry", 200, []byte("b"))

	due, err := b.ZRangeByScore(ctx, "e2e:report:retry", 250, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due members, got %d", len(due))
	}
	if string(due[0]) != "a" || string(due[1]) != "b" {
		t.Errorf("unexpected order: %q, %q", due[0], due[1])
	}

	if err := b.ZRem(ctx, "e2e:report:retry", []byte("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, err := b.ZCard(ctx, "e2e:report:retry")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected cardinality 2 after removal, got %d", n)
	}
}

func TestRedis_PublishSubscribe(t *testing.T) {
	b := newTestRedis(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "e2e:report:generate")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sub.Close()

	if err := b.Publish(ctx, "e2e:report:generate", []byte(`{"date":"2025-10-08"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := receiveOne(t, sub)
	if string(got) != `{"date":"2025-10-08"}` {
		t.Errorf("unexpected payload: %s", got)
	}
}

func TestRedis_Ping(t *testing.T) {
	b := newTestRedis(t)
	if err := b.Ping(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConnectBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 50 * time.Millisecond},
		{2, 100 * time.Millisecond},
		{10, 500 * time.Millisecond},
		{40, 2 * time.Second},
		{41, 2 * time.Second},
		{1000, 2 * time.Second},
	}
	for _, tt := range tests {
		if got := connectBackoff(tt.attempt); got != tt.want {
			t.Errorf("connectBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestIsReadOnlyReplica(t *testing.T) {
	err := errors.New("READONLY You can't write against a read only replica.")
	if !isReadOnlyReplica(err) {
		t.Error("expected true for READONLY error")
	}
	if isReadOnlyReplica(errors.New("connection refused")) {
		t.Error("expected false for unrelated error")
	}
	if isReadOnlyReplica(nil) {
		t.Error("expected false for nil")
	}
}
