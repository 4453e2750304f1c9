package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Jiyabhaviksadaria/smartqueue"
	audithook "github.com/Jiyabhaviksadaria/smartqueue/audit_hook"
	"github.com/Jiyabhaviksadaria/smartqueue/event"
	"github.com/Jiyabhaviksadaria/smartqueue/history"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/staff"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ token.Store        = (*Store)(nil)
	_ queue.Store        = (*Store)(nil)
	_ staff.Store        = (*Store)(nil)
	_ history.Store      = (*Store)(nil)
	_ event.Store        = (*Store)(nil)
	_ audithook.Recorder = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	tokens  map[string]*token.Token
	numbers map[string]string // display number -> token ID
	queues  map[string]*queue.Queue
	staff   map[string]*staff.Staff
	records []*history.Record
	changes []*event.StatusChange
	audits  []*audithook.AuditEvent
	closed  bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		tokens:  make(map[string]*token.Token),
		numbers: make(map[string]string),
		queues:  make(map[string]*queue.Queue),
		staff:   make(map[string]*staff.Staff),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate, Ping, Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping fails only after Close.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return smartqueue.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Data stays readable.
func (m *Store) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// ──────────────────────────────────────────────────
// Token Store
// ──────────────────────────────────────────────────

// CreateToken persists a new token.
func (m *Store) CreateToken(_ context.Context, t *token.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.ID.String()
	if _, exists := m.tokens[key]; exists {
		return smartqueue.ErrTokenAlreadyExists
	}
	if t.Number != "" {
		if _, taken := m.numbers[t.Number]; taken {
			return smartqueue.ErrTokenAlreadyExists
		}
		m.numbers[t.Number] = key
	}
	m.tokens[key] = t.Clone()
	return nil
}

// GetToken retrieves a token by ID.
func (m *Store) GetToken(_ context.Context, tokenID id.TokenID) (*token.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tokens[tokenID.String()]
	if !ok {
		return nil, smartqueue.ErrTokenNotFound
	}
	return t.Clone(), nil
}

// GetTokenByNumber retrieves a token by its display number.
func (m *Store) GetTokenByNumber(_ context.Context, number string) (*token.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.numbers[number]
	if !ok {
		return nil, smartqueue.ErrTokenNotFound
	}
	return m.tokens[key].Clone(), nil
}

// UpdateToken persists changes to an existing token.
func (m *Store) UpdateToken(_ context.Context, t *token.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.ID.String()
	if _, ok := m.tokens[key]; !ok {
		return smartqueue.ErrTokenNotFound
	}
	m.tokens[key] = t.Clone()
	return nil
}

// ListActiveTokens returns the active tokens of a queue ordered by
// admission.
func (m *Store) ListActiveTokens(_ context.Context, queueID id.QueueID) ([]*token.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	qid := queueID.String()
	result := make([]*token.Token, 0)
	for _, t := range m.tokens {
		if t.State != token.StateActive || t.QueueID.String() != qid {
			continue
		}
		result = append(result, t.Clone())
	}
	sort.Slice(result, func(i, k int) bool {
		if !result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].CreatedAt.Before(result[k].CreatedAt)
		}
		return result[i].Seq < result[k].Seq
	})
	return result, nil
}

// ListTokens returns tokens matching opts, newest first.
func (m *Store) ListTokens(_ context.Context, opts token.ListOpts) ([]*token.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*token.Token, 0, len(m.tokens))
	for _, t := range m.tokens {
		if !opts.QueueID.IsNil() && t.QueueID.String() != opts.QueueID.String() {
			continue
		}
		if opts.State != "" && t.State != opts.State {
			continue
		}
		result = append(result, t.Clone())
	}
	sortNewestFirst(result)
	return page(result, opts.Offset, opts.Limit), nil
}

// ListUserTokens returns a user's tokens, newest first.
func (m *Store) ListUserTokens(_ context.Context, userID id.UserID) ([]*token.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uid := userID.String()
	result := make([]*token.Token, 0)
	for _, t := range m.tokens {
		if t.UserID.String() == uid {
			result = append(result, t.Clone())
		}
	}
	sortNewestFirst(result)
	return result, nil
}

// MaxSeq returns the highest stored sequence number.
func (m *Store) MaxSeq(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var highest uint64
	for _, t := range m.tokens {
		highest = max(highest, t.Seq)
	}
	return highest, nil
}

func sortNewestFirst(ts []*token.Token) {
	sort.Slice(ts, func(i, k int) bool {
		if !ts[i].CreatedAt.Equal(ts[k].CreatedAt) {
			return ts[i].CreatedAt.After(ts[k].CreatedAt)
		}
		return ts[i].Seq > ts[k].Seq
	})
}

// ──────────────────────────────────────────────────
// Queue Store
// ──────────────────────────────────────────────────

// CreateQueue persists a new queue.
func (m *Store) CreateQueue(_ context.Context, q *queue.Queue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := q.ID.String()
	if _, exists := m.queues[key]; exists {
		return smartqueue.ErrQueueAlreadyExists
	}
	cp := *q
	m.queues[key] = &cp
	return nil
}

// GetQueue retrieves a queue by ID.
func (m *Store) GetQueue(_ context.Context, queueID id.QueueID) (*queue.Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.queues[queueID.String()]
	if !ok {
		return nil, smartqueue.ErrQueueNotFound
	}
	cp := *q
	return &cp, nil
}

// UpdateQueue persists changes to an existing queue.
func (m *Store) UpdateQueue(_ context.Context, q *queue.Queue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := q.ID.String()
	if _, ok := m.queues[key]; !ok {
		return smartqueue.ErrQueueNotFound
	}
	cp := *q
	m.queues[key] = &cp
	return nil
}

// ListQueues returns queues matching opts ordered by name.
func (m *Store) ListQueues(_ context.Context, opts queue.ListOpts) ([]*queue.Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*queue.Queue, 0, len(m.queues))
	for _, q := range m.queues {
		if opts.Domain != "" && q.Domain != opts.Domain {
			continue
		}
		if opts.Department != "" && q.Department != opts.Department {
			continue
		}
		if opts.ActiveOnly && !q.Active {
			continue
		}
		cp := *q
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].Name < result[k].Name })
	return result, nil
}

// ──────────────────────────────────────────────────
// Staff Store
// ──────────────────────────────────────────────────

// CreateStaff persists a new staff member.
func (m *Store) CreateStaff(_ context.Context, s *staff.Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := s.ID.String()
	if _, exists := m.staff[key]; exists {
		return smartqueue.ErrStaffAlreadyExists
	}
	cp := *s
	m.staff[key] = &cp
	return nil
}

// GetStaff retrieves a staff member by ID.
func (m *Store) GetStaff(_ context.Context, staffID id.StaffID) (*staff.Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.staff[staffID.String()]
	if !ok {
		return nil, smartqueue.ErrStaffNotFound
	}
	cp := *s
	return &cp, nil
}

// UpdateStaff persists changes to an existing staff member.
func (m *Store) UpdateStaff(_ context.Context, s *staff.Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := s.ID.String()
	if _, ok := m.staff[key]; !ok {
		return smartqueue.ErrStaffNotFound
	}
	cp := *s
	m.staff[key] = &cp
	return nil
}

// ListStaff returns staff matching opts ordered by name.
func (m *Store) ListStaff(_ context.Context, opts staff.ListOpts) ([]*staff.Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*staff.Staff, 0, len(m.staff))
	for _, s := range m.staff {
		if opts.Domain != "" && s.Domain != opts.Domain {
			continue
		}
		if opts.Department != "" && s.Department != opts.Department {
			continue
		}
		if opts.AvailableOnly && !s.Available {
			continue
		}
		cp := *s
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].Name < result[k].Name })
	return result, nil
}

// ──────────────────────────────────────────────────
// History Store
// ──────────────────────────────────────────────────

// AppendRecord persists a new record. Records are kept in append order.
func (m *Store) AppendRecord(_ context.Context, r *history.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	m.records = append(m.records, &cp)
	return nil
}

// ListRecords returns records oldest first.
func (m *Store) ListRecords(_ context.Context, opts history.ListOpts) ([]*history.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*history.Record, 0, len(m.records))
	for _, r := range m.records {
		if matchRecord(r, opts) {
			cp := *r
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(i, k int) bool { return result[i].CreatedAt.Before(result[k].CreatedAt) })
	return page(result, opts.Offset, opts.Limit), nil
}

// CountRecords returns the number of records matching opts.
func (m *Store) CountRecords(_ context.Context, opts history.ListOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, r := range m.records {
		if matchRecord(r, opts) {
			n++
		}
	}
	return n, nil
}

func matchRecord(r *history.Record, opts history.ListOpts) bool {
	if !opts.QueueID.IsNil() && r.QueueID.String() != opts.QueueID.String() {
		return false
	}
	if opts.Domain != "" && r.Domain != opts.Domain {
		return false
	}
	if !opts.Since.IsZero() && r.CreatedAt.Before(opts.Since) {
		return false
	}
	return true
}

// ──────────────────────────────────────────────────
// Event Store
// ──────────────────────────────────────────────────

// AppendChange persists a status change.
func (m *Store) AppendChange(_ context.Context, c *event.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	m.changes = append(m.changes, &cp)
	return nil
}

// ListChanges returns changes matching opts, oldest first.
func (m *Store) ListChanges(_ context.Context, opts event.ListOpts) ([]*event.StatusChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*event.StatusChange, 0)
	for _, c := range m.changes {
		if !opts.QueueID.IsNil() && c.QueueID.String() != opts.QueueID.String() {
			continue
		}
		if !opts.TokenID.IsNil() && c.TokenID.String() != opts.TokenID.String() {
			continue
		}
		if !opts.Since.IsZero() && !c.At.After(opts.Since) {
			continue
		}
		cp := *c
		result = append(result, &cp)
		if opts.Limit > 0 && len(result) == opts.Limit {
			break
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Audit Recorder
// ──────────────────────────────────────────────────

// Record appends an audit event.
func (m *Store) Record(_ context.Context, evt *audithook.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *evt
	m.audits = append(m.audits, &cp)
	return nil
}

// AuditEvents returns the recorded audit events in order.
func (m *Store) AuditEvents() []*audithook.AuditEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*audithook.AuditEvent, len(m.audits))
	for i, e := range m.audits {
		cp := *e
		result[i] = &cp
	}
	return result
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
