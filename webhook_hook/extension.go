package webhookhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Jiyabhaviksadaria/smartqueue/event"
	"github.com/Jiyabhaviksadaria/smartqueue/ext"
	"github.com/Jiyabhaviksadaria/smartqueue/stream"
)

// Compile-time interface checks.
var (
	_ ext.Extension     = (*Extension)(nil)
	_ ext.StatusChanged = (*Extension)(nil)
)

// Header names set on every delivery.
const (
	HeaderEvent     = "X-SmartQueue-Event"
	HeaderSignature = "X-SmartQueue-Signature"
)

// Extension POSTs token status changes to configured endpoints. The body
// is the stream event envelope. When a secret is set, the body is signed
// with HMAC-SHA256 in [HeaderSignature] as "sha256=<hex>".
type Extension struct {
	client  *resty.Client
	urls    []string
	secret  []byte
	enabled map[stream.EventType]bool // nil = all enabled
	logger  *slog.Logger
}

// Option configures an Extension.
type Option func(*Extension)

// WithSecret signs deliveries with secret.
func WithSecret(secret string) Option {
	return func(e *Extension) { e.secret = []byte(secret) }
}

// WithEvents restricts deliveries to the listed event types.
func WithEvents(types ...stream.EventType) Option {
	return func(e *Extension) {
		e.enabled = make(map[stream.EventType]bool, len(types))
		for _, t := range types {
			e.enabled[t] = true
		}
	}
}

// WithRetry sets the retry count and wait bounds.
func WithRetry(count int, wait, maxWait time.Duration) Option {
	return func(e *Extension) {
		e.client.SetRetryCount(count).
			SetRetryWaitTime(wait).
			SetRetryMaxWaitTime(maxWait)
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Extension) { e.client.SetTimeout(d) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) { e.logger = l }
}

// New creates an Extension delivering to urls.
func New(urls []string, opts ...Option) *Extension {
	client := resty.New().
		SetTimeout(5*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})

	e := &Extension{
		client: client,
		urls:   urls,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "webhook-hook" }

// OnStatusChanged implements ext.StatusChanged. It returns the joined
// errors of every endpoint that did not accept the delivery.
func (e *Extension) OnStatusChanged(ctx context.Context, c *event.StatusChange) error {
	evt := stream.TokenEvent(c)
	if e.enabled != nil && !e.enabled[evt.Type] {
		return nil
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("webhookhook: encode: %w", err)
	}

	var errs []error
	for _, url := range e.urls {
		if err := e.deliver(ctx, url, string(evt.Type), body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Extension) deliver(ctx context.Context, url, eventType string, body []byte) error {
	req := e.client.R().
		SetContext(ctx).
		SetHeader(HeaderEvent, eventType).
		SetBody(body)
	if len(e.secret) > 0 {
		req.SetHeader(HeaderSignature, "sha256="+Sign(e.secret, body))
	}

	resp, err := req.Post(url)
	if err != nil {
		return fmt.Errorf("webhookhook: post %s: %w", url, err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhookhook: post %s: status %d", url, resp.StatusCode())
	}
	e.logger.Debug("webhook delivered",
		slog.String("url", url),
		slog.String("event", eventType),
		slog.Int("attempts", resp.Request.Attempt),
	)
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
