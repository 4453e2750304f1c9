package mqtthook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue/event"
	"github.com/Jiyabhaviksadaria/smartqueue/ext"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// Compile-time interface checks.
var (
	_ ext.Extension     = (*Extension)(nil)
	_ ext.StatusChanged = (*Extension)(nil)
	_ ext.QueueChanged  = (*Extension)(nil)
)

// Board is the retained display state of one queue, as shown on waiting
// room screens.
type Board struct {
	QueueID     string    `json:"queue_id"`
	Name        string    `json:"name,omitempty"`
	Active      bool      `json:"active"`
	NowServing  string    `json:"now_serving,omitempty"`
	Waiting     int       `json:"waiting"`
	Called      int       `json:"called"`
	LastUpdated time.Time `json:"last_updated"`
}

// TokenStatus is the retained status of one token.
type TokenStatus struct {
	TokenID  string      `json:"token_id"`
	Number   string      `json:"number"`
	State    token.State `json:"state"`
	Called   bool        `json:"called"`
	Position *int        `json:"position,omitempty"`
	At       time.Time   `json:"at"`
}

// Extension publishes queue boards and token statuses as retained MQTT
// messages:
//
//	<prefix>/queues/<queueID>/board
//	<prefix>/tokens/<tokenID>
type Extension struct {
	publisher Publisher
	prefix    string
	qos       byte
	logger    *slog.Logger

	mu     sync.Mutex
	boards map[string]*Board
}

// Option configures an Extension.
type Option func(*Extension)

// WithPrefix sets the topic prefix. Default "smartqueue".
func WithPrefix(p string) Option { return func(e *Extension) { e.prefix = p } }

// WithQoS sets the publish QoS. Default 1.
func WithQoS(qos byte) Option { return func(e *Extension) { e.qos = qos } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Extension) { e.logger = l } }

// New creates an Extension publishing through p.
func New(p Publisher, opts ...Option) *Extension {
	e := &Extension{
		publisher: p,
		prefix:    "smartqueue",
		qos:       1,
		logger:    slog.Default(),
		boards:    make(map[string]*Board),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "mqtt-hook" }

// BoardTopic returns the board topic of a queue.
func (e *Extension) BoardTopic(queueID string) string {
	return fmt.Sprintf("%s/queues/%s/board", e.prefix, queueID)
}

// TokenTopic returns the status topic of a token.
func (e *Extension) TokenTopic(tokenID string) string {
	return fmt.Sprintf("%s/tokens/%s", e.prefix, tokenID)
}

// OnStatusChanged implements ext.StatusChanged.
func (e *Extension) OnStatusChanged(_ context.Context, c *event.StatusChange) error {
	status := TokenStatus{
		TokenID:  c.TokenID.String(),
		Number:   c.TokenNumber,
		State:    c.To,
		Called:   c.Called,
		Position: c.Position,
		At:       c.At,
	}
	if err := e.publish(e.TokenTopic(status.TokenID), status); err != nil {
		return err
	}

	board := e.updateBoard(c.QueueID.String(), func(b *Board) {
		b.Waiting, b.Called = 0, 0
		for _, pos := range c.Positions {
			if pos == 0 {
				b.Called++
			} else {
				b.Waiting++
			}
		}
		if c.Action == token.ActionCall {
			b.NowServing = c.TokenNumber
		}
		b.LastUpdated = c.At
	})
	return e.publish(e.BoardTopic(board.QueueID), board)
}

// OnQueueChanged implements ext.QueueChanged.
func (e *Extension) OnQueueChanged(_ context.Context, q *queue.Queue) error {
	board := e.updateBoard(q.ID.String(), func(b *Board) {
		b.Name = q.Name
		b.Active = q.Active
		b.LastUpdated = q.UpdatedAt
	})
	return e.publish(e.BoardTopic(board.QueueID), board)
}

// Board returns a copy of the last published board of a queue.
func (e *Extension) Board(queueID string) (Board, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.boards[queueID]
	if !ok {
		return Board{}, false
	}
	return *b, true
}

func (e *Extension) updateBoard(queueID string, fn func(*Board)) Board {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.boards[queueID]
	if !ok {
		b = &Board{QueueID: queueID, Active: true}
		e.boards[queueID] = b
	}
	fn(b)
	return *b
}

func (e *Extension) publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mqtthook: encode %s: %w", topic, err)
	}
	return e.publisher.Publish(topic, e.qos, true, payload)
}
