package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Jiyabhaviksadaria/smartqueue/event"
	"github.com/Jiyabhaviksadaria/smartqueue/history"
)

// ──────────────────────────────────────────────────
// History
// ──────────────────────────────────────────────────

// AppendRecord pushes a record onto the history list.
func (s *Store) AppendRecord(ctx context.Context, r *history.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("smartqueue/redis: encode record: %w", err)
	}
	if err := s.client.RPush(ctx, historyKey, data).Err(); err != nil {
		return fmt.Errorf("smartqueue/redis: append record: %w", err)
	}
	return nil
}

// ListRecords returns records oldest first.
func (s *Store) ListRecords(ctx context.Context, opts history.ListOpts) ([]*history.Record, error) {
	all, err := s.records(ctx, opts)
	if err != nil {
		return nil, err
	}
	return page(all, opts.Offset, opts.Limit), nil
}

// CountRecords returns the number of records matching opts.
func (s *Store) CountRecords(ctx context.Context, opts history.ListOpts) (int64, error) {
	if opts.QueueID.IsNil() && opts.Domain == "" && opts.Since.IsZero() {
		n, err := s.client.LLen(ctx, historyKey).Result()
		if err != nil {
			return 0, fmt.Errorf("smartqueue/redis: count records: %w", err)
		}
		return n, nil
	}
	all, err := s.records(ctx, opts)
	if err != nil {
		return 0, err
	}
	return int64(len(all)), nil
}

func (s *Store) records(ctx context.Context, opts history.ListOpts) ([]*history.Record, error) {
	raw, err := s.client.LRange(ctx, historyKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("smartqueue/redis: list records: %w", err)
	}
	out := make([]*history.Record, 0, len(raw))
	for _, item := range raw {
		var r history.Record
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("smartqueue/redis: decode record: %w", err)
		}
		if !opts.QueueID.IsNil() && r.QueueID.String() != opts.QueueID.String() {
			continue
		}
		if opts.Domain != "" && r.Domain != opts.Domain {
			continue
		}
		if !opts.Since.IsZero() && r.CreatedAt.Before(opts.Since) {
			continue
		}
		out = append(out, &r)
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

// ──────────────────────────────────────────────────
// Status change journal
// ──────────────────────────────────────────────────

// AppendChange adds the change to the journal stream.
func (s *Store) AppendChange(ctx context.Context, c *event.StatusChange) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("smartqueue/redis: encode change: %w", err)
	}
	args := &goredis.XAddArgs{
		Stream: changesKey,
		Values: map[string]interface{}{"data": string(data)},
	}
	if s.journalMaxLen > 0 {
		args.MaxLen = s.journalMaxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("smartqueue/redis: append change: %w", err)
	}
	return nil
}

// ListChanges scans the journal stream oldest first.
func (s *Store) ListChanges(ctx context.Context, opts event.ListOpts) ([]*event.StatusChange, error) {
	msgs, err := s.client.XRange(ctx, changesKey, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("smartqueue/redis: list changes: %w", err)
	}
	out := make([]*event.StatusChange, 0)
	for _, msg := range msgs {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var c event.StatusChange
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("smartqueue/redis: decode change %s: %w", msg.ID, err)
		}
		if !opts.QueueID.IsNil() && c.QueueID.String() != opts.QueueID.String() {
			continue
		}
		if !opts.TokenID.IsNil() && c.TokenID.String() != opts.TokenID.String() {
			continue
		}
		if !opts.Since.IsZero() && !c.At.After(opts.Since) {
			continue
		}
		out = append(out, &c)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}
