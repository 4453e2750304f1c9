package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/staff"
)

// ──────────────────────────────────────────────────
// Queues
// ──────────────────────────────────────────────────

// CreateQueue stores a new queue.
func (s *Store) CreateQueue(ctx context.Context, q *queue.Queue) error {
	return s.create(ctx, queueKey(q.ID.String()), queueIDsKey, q.ID.String(), q, smartqueue.ErrQueueAlreadyExists)
}

// GetQueue retrieves a queue by ID.
func (s *Store) GetQueue(ctx context.Context, queueID id.QueueID) (*queue.Queue, error) {
	var q queue.Queue
	if err := s.getJSON(ctx, queueKey(queueID.String()), &q, smartqueue.ErrQueueNotFound); err != nil {
		return nil, err
	}
	return &q, nil
}

// UpdateQueue overwrites an existing queue.
func (s *Store) UpdateQueue(ctx context.Context, q *queue.Queue) error {
	return s.update(ctx, queueKey(q.ID.String()), q, smartqueue.ErrQueueNotFound)
}

// ListQueues returns queues matching opts ordered by name.
func (s *Store) ListQueues(ctx context.Context, opts queue.ListOpts) ([]*queue.Queue, error) {
	all, err := listSet[queue.Queue](ctx, s, queueIDsKey, queueKey)
	if err != nil {
		return nil, err
	}
	result := make([]*queue.Queue, 0, len(all))
	for _, q := range all {
		if opts.Domain != "" && q.Domain != opts.Domain {
			continue
		}
		if opts.Department != "" && q.Department != opts.Department {
			continue
		}
		if opts.ActiveOnly && !q.Active {
			continue
		}
		result = append(result, q)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].Name < result[k].Name })
	return result, nil
}

// ──────────────────────────────────────────────────
// Staff
// ──────────────────────────────────────────────────

// CreateStaff stores a new staff member.
func (s *Store) CreateStaff(ctx context.Context, st *staff.Staff) error {
	return s.create(ctx, staffKey(st.ID.String()), staffIDsKey, st.ID.String(), st, smartqueue.ErrStaffAlreadyExists)
}

// GetStaff retrieves a staff member by ID.
func (s *Store) GetStaff(ctx context.Context, staffID id.StaffID) (*staff.Staff, error) {
	var st staff.Staff
	if err := s.getJSON(ctx, staffKey(staffID.String()), &st, smartqueue.ErrStaffNotFound); err != nil {
		return nil, err
	}
	return &st, nil
}

// UpdateStaff overwrites an existing staff member.
func (s *Store) UpdateStaff(ctx context.Context, st *staff.Staff) error {
	return s.update(ctx, staffKey(st.ID.String()), st, smartqueue.ErrStaffNotFound)
}

// ListStaff returns staff matching opts ordered by name.
func (s *Store) ListStaff(ctx context.Context, opts staff.ListOpts) ([]*staff.Staff, error) {
	all, err := listSet[staff.Staff](ctx, s, staffIDsKey, staffKey)
	if err != nil {
		return nil, err
	}
	result := make([]*staff.Staff, 0, len(all))
	for _, st := range all {
		if opts.Domain != "" && st.Domain != opts.Domain {
			continue
		}
		if opts.Department != "" && st.Department != opts.Department {
			continue
		}
		if opts.AvailableOnly && !st.Available {
			continue
		}
		result = append(result, st)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].Name < result[k].Name })
	return result, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (s *Store) create(ctx context.Context, key, idsKey, member string, v any, exists error) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("smartqueue/redis: encode %s: %w", key, err)
	}
	ok, err := s.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return fmt.Errorf("smartqueue/redis: create %s: %w", key, err)
	}
	if !ok {
		return exists
	}
	if err := s.client.SAdd(ctx, idsKey, member).Err(); err != nil {
		return fmt.Errorf("smartqueue/redis: index %s: %w", key, err)
	}
	return nil
}

func (s *Store) update(ctx context.Context, key string, v any, notFound error) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("smartqueue/redis: encode %s: %w", key, err)
	}
	ok, err := s.client.SetXX(ctx, key, data, 0).Result()
	if err != nil {
		return fmt.Errorf("smartqueue/redis: update %s: %w", key, err)
	}
	if !ok {
		return notFound
	}
	return nil
}

func listSet[T any](ctx context.Context, s *Store, idsKey string, keyFn func(string) string) ([]*T, error) {
	ids, err := s.client.SMembers(ctx, idsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("smartqueue/redis: list %s: %w", idsKey, err)
	}
	keys := make([]string, len(ids))
	for i, m := range ids {
		keys[i] = keyFn(m)
	}
	return loadAll[T](ctx, s.client, keys)
}
