package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue/estimator"
	"github.com/Jiyabhaviksadaria/smartqueue/event"
	"github.com/Jiyabhaviksadaria/smartqueue/ext"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
)

// Compile-time interface checks.
var (
	_ ext.Extension     = (*Broker)(nil)
	_ ext.StatusChanged = (*Broker)(nil)
	_ ext.QueueChanged  = (*Broker)(nil)
	_ ext.ModelTrained  = (*Broker)(nil)
	_ ext.Shutdown      = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker fans status changes out to subscribers. It is registered as an
// extension so every transition the engine commits reaches it.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	subscribers sync.Map // subscriberID → *Subscriber

	totalPublished atomic.Int64
	totalDropped   atomic.Int64

	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to more topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	sub, ok := b.GetSubscriber(subscriberID)
	if !ok {
		return
	}
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    b.totalDropped.Load(),
	}
}

// Publish broadcasts an event to every matching topic.
func (b *Broker) Publish(evt *Event) {
	delivered, dropped := b.topics.Broadcast(EventTopics(evt), evt)
	b.totalPublished.Add(int64(delivered))
	b.totalDropped.Add(int64(dropped))
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// TokenEvent builds the stream event of a status change.
func TokenEvent(c *event.StatusChange) *Event {
	evtType, ok := tokenEventTypes[c.Action]
	if !ok {
		evtType = EventType("token." + string(c.Action))
	}
	evt := &Event{
		Type:      evtType,
		Timestamp: c.At,
		Topic:     TokenTopic(c.TokenID.String()),
		Data: mustMarshal(TokenEventData{
			TokenID:     c.TokenID.String(),
			TokenNumber: c.TokenNumber,
			QueueID:     c.QueueID.String(),
			UserID:      c.UserID.String(),
			From:        c.From,
			To:          c.To,
			Called:      c.Called,
			Position:    c.Position,
			Positions:   c.Positions,
		}),
		Also: []string{QueueTopic(c.QueueID.String())},
	}
	if !c.UserID.IsNil() {
		evt.Also = append(evt.Also, UserTopic(c.UserID.String()))
	}
	return evt
}

// QueueEvent builds the stream event of a queue change.
func QueueEvent(q *queue.Queue) *Event {
	return &Event{
		Type:      EventQueueUpdated,
		Timestamp: q.UpdatedAt,
		Topic:     QueueTopic(q.ID.String()),
		Data: mustMarshal(QueueEventData{
			QueueID:  q.ID.String(),
			Name:     q.Name,
			Domain:   string(q.Domain),
			Capacity: q.Capacity,
			Active:   q.Active,
		}),
	}
}

// ModelEvent builds the stream event of an estimator retrain.
func ModelEvent(res estimator.TrainResult, at time.Time) *Event {
	return &Event{
		Type:      EventModelTrained,
		Timestamp: at,
		Data: mustMarshal(ModelEventData{
			Trained:  res.Trained,
			Version:  res.Version,
			Samples:  res.Samples,
			RSquared: res.RSquared,
		}),
	}
}

// ── Hooks ───────────────────────────────────────────

func (b *Broker) OnStatusChanged(_ context.Context, c *event.StatusChange) error {
	b.Publish(TokenEvent(c))
	return nil
}

func (b *Broker) OnQueueChanged(_ context.Context, q *queue.Queue) error {
	b.Publish(QueueEvent(q))
	return nil
}

func (b *Broker) OnModelTrained(_ context.Context, res estimator.TrainResult) error {
	b.Publish(ModelEvent(res, time.Now().UTC()))
	return nil
}

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		value.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
