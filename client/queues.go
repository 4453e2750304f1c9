package client

import (
	"context"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue/dwp"
	"github.com/Jiyabhaviksadaria/smartqueue/engine"
	"github.com/Jiyabhaviksadaria/smartqueue/estimator"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// CallNext calls the next token of a queue for serverID, which may be
// empty on queues not bound to one server. It returns nil when the line is
// empty.
func (c *Client) CallNext(ctx context.Context, queueID, serverID string) (*token.Token, error) {
	resp, err := call[dwp.CallNextResponse](ctx, c, dwp.MethodQueueCallNext, dwp.CallNextRequest{
		QueueID:  queueID,
		ServerID: serverID,
	})
	if err != nil {
		return nil, err
	}
	return resp.Token, nil
}

// GetQueue retrieves a queue.
func (c *Client) GetQueue(ctx context.Context, queueID string) (*queue.Queue, error) {
	return call[queue.Queue](ctx, c, dwp.MethodQueueGet, dwp.QueueRequest{QueueID: queueID})
}

// ListQueues lists queues matching req.
func (c *Client) ListQueues(ctx context.Context, req dwp.QueueListRequest) ([]*queue.Queue, error) {
	queues, err := call[[]*queue.Queue](ctx, c, dwp.MethodQueueList, req)
	if err != nil {
		return nil, err
	}
	return *queues, nil
}

// Positions returns the current position of every token in a queue's
// line, keyed by token ID. Called tokens are at position 0.
func (c *Client) Positions(ctx context.Context, queueID string) (map[string]int, error) {
	resp, err := call[dwp.PositionsResponse](ctx, c, dwp.MethodQueuePositions, dwp.QueueRequest{QueueID: queueID})
	if err != nil {
		return nil, err
	}
	return resp.Positions, nil
}

// Analytics summarises one UTC day of a queue. A zero day means today.
func (c *Client) Analytics(ctx context.Context, queueID string, day time.Time) (*engine.Analytics, error) {
	req := dwp.AnalyticsRequest{QueueID: queueID}
	if !day.IsZero() {
		req.Day = day.UTC().Format(time.DateOnly)
	}
	return call[engine.Analytics](ctx, c, dwp.MethodQueueAnalytics, req)
}

// PredictWait estimates the wait of a token joining the queue now.
func (c *Client) PredictWait(ctx context.Context, queueID string) (*estimator.Prediction, error) {
	return call[estimator.Prediction](ctx, c, dwp.MethodEstimatePredict, dwp.QueueRequest{QueueID: queueID})
}
