package client

import (
	"log/slog"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue/backoff"
)

// Option configures a Client.
type Option func(*Client)

// WithToken sets the credential sent in the auth frame: an API key or a
// JWT.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithFormat sets the wire format for frame encoding.
// Supported values: "json" (default), "msgpack".
func WithFormat(format string) Option {
	return func(c *Client) { c.format = format }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithAuthTimeout bounds the auth handshake when the dial context has no
// deadline. Default is 10s.
func WithAuthTimeout(d time.Duration) Option {
	return func(c *Client) { c.authTimeout = d }
}

// WithReconnect enables automatic reconnection. Delays grow exponentially
// with jitter from baseDelay unless WithBackoff sets another strategy.
func WithReconnect(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.reconnect = true
		c.maxRetries = maxRetries
		c.baseDelay = baseDelay
	}
}

// WithBackoff sets the delay strategy between reconnection attempts.
func WithBackoff(s backoff.Strategy) Option {
	return func(c *Client) { c.strategy = s }
}
