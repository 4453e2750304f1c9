package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/event"
	"github.com/Jiyabhaviksadaria/smartqueue/history"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/staff"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// Compile-time interface checks.
var (
	_ token.Store           = (*Store)(nil)
	_ token.NumberAllocator = (*Store)(nil)
	_ queue.Store           = (*Store)(nil)
	_ staff.Store           = (*Store)(nil)
	_ history.Store         = (*Store)(nil)
	_ event.Store           = (*Store)(nil)
)

// DefaultJournalMaxLen caps the status change stream.
const DefaultJournalMaxLen = 100_000

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithJournalMaxLen sets the approximate length the change stream is
// trimmed to. Zero disables trimming.
func WithJournalMaxLen(n int64) Option {
	return func(s *Store) { s.journalMaxLen = n }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client        goredis.Cmdable
	logger        *slog.Logger
	journalMaxLen int64
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default(), journalMaxLen: DefaultJournalMaxLen}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op. The caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

// NextNumber implements token.NumberAllocator with INCR.
func (s *Store) NextNumber(ctx context.Context, _ smartqueue.Domain) (uint64, error) {
	n, err := s.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return 0, fmt.Errorf("smartqueue/redis: next number: %w", err)
	}
	return uint64(n), nil
}

// getJSON loads key into dst. It returns notFound when the key is missing.
func (s *Store) getJSON(ctx context.Context, key string, dst any, notFound error) error {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return notFound
	}
	if err != nil {
		return fmt.Errorf("smartqueue/redis: get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("smartqueue/redis: decode %s: %w", key, err)
	}
	return nil
}

// loadAll fetches keys with MGET and decodes each hit with decode.
// Missing keys are skipped; they belong to entities removed concurrently.
func loadAll[T any](ctx context.Context, c goredis.Cmdable, keys []string) ([]*T, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("smartqueue/redis: mget: %w", err)
	}
	out := make([]*T, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var item T
		if err := json.Unmarshal([]byte(str), &item); err != nil {
			return nil, fmt.Errorf("smartqueue/redis: decode %s: %w", keys[i], err)
		}
		out = append(out, &item)
	}
	return out, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
