package client

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Jiyabhaviksadaria/smartqueue/dwp"
	"github.com/Jiyabhaviksadaria/smartqueue/stream"
)

// subscriptionBuffer is the per-channel event buffer. Events beyond it
// are dropped for that subscription.
const subscriptionBuffer = 64

type subscription struct {
	mu     sync.Mutex
	ch     chan *stream.Event
	closed bool
}

func (s *subscription) deliver(evt *stream.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- evt:
	default:
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Subscribe subscribes to a stream topic and returns a channel of events.
// The channel is closed when the client closes, reconnection is abandoned
// or Unsubscribe is called. Subscriptions survive reconnects.
//
// Topics:
//   - "token:<tokenID>"  events of one token
//   - "queue:<queueID>"  events of one queue, with the new positions
//   - "user:<userID>"    events of every token a user holds
//   - "tokens", "queues" all token or queue events
//   - "firehose"         everything
func (c *Client) Subscribe(ctx context.Context, channel string) (<-chan *stream.Event, error) {
	if _, err := c.request(ctx, dwp.MethodSubscribe, dwp.SubscribeRequest{Channel: channel}); err != nil {
		return nil, err
	}

	sub := &subscription{ch: make(chan *stream.Event, subscriptionBuffer)}
	if prev, loaded := c.subs.Swap(channel, sub); loaded {
		prev.(*subscription).close() //nolint:errcheck // subs map always stores *subscription
	}
	return sub.ch, nil
}

// Unsubscribe removes a subscription and closes its channel.
func (c *Client) Unsubscribe(ctx context.Context, channel string) error {
	_, err := c.request(ctx, dwp.MethodUnsubscribe, dwp.UnsubscribeRequest{Channel: channel})

	// Close and remove the local channel regardless.
	if val, ok := c.subs.LoadAndDelete(channel); ok {
		val.(*subscription).close() //nolint:errcheck // subs map always stores *subscription
	}
	return err
}

// WatchToken subscribes to the events of one token.
func (c *Client) WatchToken(ctx context.Context, tokenID string) (<-chan *stream.Event, error) {
	return c.Subscribe(ctx, stream.TokenTopic(tokenID))
}

// WatchQueue subscribes to the events of one queue.
func (c *Client) WatchQueue(ctx context.Context, queueID string) (<-chan *stream.Event, error) {
	return c.Subscribe(ctx, stream.QueueTopic(queueID))
}

// route hands an event to every local subscription whose topic it was
// published on.
func (c *Client) route(evt *stream.Event) {
	for _, topic := range stream.EventTopics(evt) {
		if val, ok := c.subs.Load(topic); ok {
			val.(*subscription).deliver(evt) //nolint:errcheck // subs map always stores *subscription
		}
	}
}

// resubscribe restores every subscription on a fresh connection.
func (c *Client) resubscribe(ctx context.Context) {
	c.subs.Range(func(key, _ any) bool {
		channel, _ := key.(string)
		if _, err := c.request(ctx, dwp.MethodSubscribe, dwp.SubscribeRequest{Channel: channel}); err != nil {
			c.logger.Warn("smartqueue client: resubscribe failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
		return true
	})
}

func (c *Client) closeSubscriptions() {
	c.subs.Range(func(key, val any) bool {
		val.(*subscription).close() //nolint:errcheck // subs map always stores *subscription
		c.subs.Delete(key)
		return true
	})
}

// Stats retrieves broker, connection and line statistics from the server.
func (c *Client) Stats(ctx context.Context) (*dwp.Stats, error) {
	return call[dwp.Stats](ctx, c, dwp.MethodStats, nil)
}
