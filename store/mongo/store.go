package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Jiyabhaviksadaria/smartqueue/event"
	"github.com/Jiyabhaviksadaria/smartqueue/history"
)

// Collection name constants.
const (
	colHistory = "smartqueue_history"
	colChanges = "smartqueue_changes"
)

// Ensure Store implements the corpus interfaces at compile time.
var (
	_ history.Store = (*Store)(nil)
	_ event.Store   = (*Store)(nil)
)

// Store keeps history records and status changes in MongoDB.
type Store struct {
	db     *mongod.Database
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store over db. The caller owns the client lifecycle.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Database returns the underlying database handle.
func (s *Store) Database() *mongod.Database { return s.db }

// Migrate creates the collection indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("smartqueue/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error { return nil }

func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colHistory: {
			{Keys: bson.D{{Key: "queue_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "domain", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colChanges: {
			{Keys: bson.D{{Key: "queue_id", Value: 1}, {Key: "at", Value: 1}}},
			{Keys: bson.D{{Key: "token_id", Value: 1}, {Key: "at", Value: 1}}},
		},
	}
}

// ── History ───────────────────────────────────────────────────────

// AppendRecord inserts a history record.
func (s *Store) AppendRecord(ctx context.Context, r *history.Record) error {
	if _, err := s.db.Collection(colHistory).InsertOne(ctx, toRecordModel(r)); err != nil {
		return fmt.Errorf("smartqueue/mongo: append record: %w", err)
	}
	return nil
}

// ListRecords returns records oldest first.
func (s *Store) ListRecords(ctx context.Context, opts history.ListOpts) ([]*history.Record, error) {
	find := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Offset > 0 {
		find.SetSkip(int64(opts.Offset))
	}
	if opts.Limit > 0 {
		find.SetLimit(int64(opts.Limit))
	}
	cur, err := s.db.Collection(colHistory).Find(ctx, historyFilter(opts), find)
	if err != nil {
		return nil, fmt.Errorf("smartqueue/mongo: list records: %w", err)
	}
	var models []recordModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("smartqueue/mongo: decode records: %w", err)
	}
	out := make([]*history.Record, 0, len(models))
	for i := range models {
		r, err := fromRecordModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// CountRecords returns the number of records matching opts.
func (s *Store) CountRecords(ctx context.Context, opts history.ListOpts) (int64, error) {
	n, err := s.db.Collection(colHistory).CountDocuments(ctx, historyFilter(opts))
	if err != nil {
		return 0, fmt.Errorf("smartqueue/mongo: count records: %w", err)
	}
	return n, nil
}

func historyFilter(opts history.ListOpts) bson.M {
	f := bson.M{}
	if !opts.QueueID.IsNil() {
		f["queue_id"] = opts.QueueID.String()
	}
	if opts.Domain != "" {
		f["domain"] = string(opts.Domain)
	}
	if !opts.Since.IsZero() {
		f["created_at"] = bson.M{"$gte": opts.Since}
	}
	return f
}

// ── Status change journal ─────────────────────────────────────────

// AppendChange inserts a status change.
func (s *Store) AppendChange(ctx context.Context, c *event.StatusChange) error {
	if _, err := s.db.Collection(colChanges).InsertOne(ctx, toChangeModel(c)); err != nil {
		return fmt.Errorf("smartqueue/mongo: append change: %w", err)
	}
	return nil
}

// ListChanges returns changes matching opts, oldest first.
func (s *Store) ListChanges(ctx context.Context, opts event.ListOpts) ([]*event.StatusChange, error) {
	f := bson.M{}
	if !opts.QueueID.IsNil() {
		f["queue_id"] = opts.QueueID.String()
	}
	if !opts.TokenID.IsNil() {
		f["token_id"] = opts.TokenID.String()
	}
	if !opts.Since.IsZero() {
		f["at"] = bson.M{"$gt": opts.Since}
	}
	find := options.Find().SetSort(bson.D{{Key: "at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		find.SetLimit(int64(opts.Limit))
	}

	cur, err := s.db.Collection(colChanges).Find(ctx, f, find)
	if err != nil {
		return nil, fmt.Errorf("smartqueue/mongo: list changes: %w", err)
	}
	var models []changeModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("smartqueue/mongo: decode changes: %w", err)
	}
	out := make([]*event.StatusChange, 0, len(models))
	for i := range models {
		c, err := fromChangeModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
