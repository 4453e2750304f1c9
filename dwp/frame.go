// Package dwp implements the SmartQueue wire protocol, a frame-based
// protocol between queue clients (kiosks, staff consoles, display boards)
// and the scheduling engine. It is transported over WebSocket (primary),
// SSE (read-only fallback) and HTTP (one-shot RPC).
package dwp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Jiyabhaviksadaria/smartqueue/history"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// FrameType identifies the frame category.
type FrameType string

const (
	FrameRequest  FrameType = "request"
	FrameResponse FrameType = "response"
	FrameEvent    FrameType = "event"
	FrameErr      FrameType = "error"
	FramePing     FrameType = "ping"
	FramePong     FrameType = "pong"
)

// Frame is the message envelope. Every message exchanged over the
// protocol is a Frame.
type Frame struct {
	// ID uniquely identifies this frame.
	ID string `json:"id" msgpack:"id"`

	// Type categorizes the frame.
	Type FrameType `json:"type" msgpack:"type"`

	// Method names the operation for request frames (e.g., "token.admit").
	Method string `json:"method,omitempty" msgpack:"method,omitempty"`

	// CorrelID links a response to its originating request.
	CorrelID string `json:"correl_id,omitempty" msgpack:"correl_id,omitempty"`

	// Token carries auth credentials (typically only on the auth frame).
	Token string `json:"token,omitempty" msgpack:"token,omitempty"`

	// Data carries the method-specific payload.
	Data json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"`

	// Error carries error details for error frames.
	Error *ErrorDetail `json:"error,omitempty" msgpack:"error,omitempty"`

	// Channel identifies the subscription topic for event frames.
	Channel string `json:"channel,omitempty" msgpack:"channel,omitempty"`

	// Credits replenishes flow-control credits.
	Credits int `json:"credits,omitempty" msgpack:"credits,omitempty"`

	Timestamp time.Time `json:"ts" msgpack:"ts"`
}

// ErrorDetail describes an error in an error frame.
type ErrorDetail struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
	Details string `json:"details,omitempty" msgpack:"details,omitempty"`
}

// Error implements error so clients can return the detail directly.
func (e *ErrorDetail) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// ── Well-known methods ──────────────────────────────

const (
	MethodAuth = "auth"

	// Token methods.
	MethodTokenAdmit    = "token.admit"
	MethodTokenGet      = "token.get"
	MethodTokenByNumber = "token.by_number"
	MethodTokenList     = "token.list"
	MethodTokenCancel   = "token.cancel"
	MethodTokenStart    = "token.start"
	MethodTokenComplete = "token.complete"
	MethodTokenExpire   = "token.expire"

	// Queue methods.
	MethodQueueCallNext   = "queue.call_next"
	MethodQueueGet        = "queue.get"
	MethodQueueList       = "queue.list"
	MethodQueuePositions  = "queue.positions"
	MethodQueueAnalytics  = "queue.analytics"
	MethodEstimatePredict = "estimate.predict"

	// Subscription methods.
	MethodSubscribe   = "subscribe"
	MethodUnsubscribe = "unsubscribe"

	MethodStats = "stats"
)

// ── Well-known error codes ──────────────────────────

const (
	ErrCodeBadRequest      = 400
	ErrCodeUnauthorized    = 401
	ErrCodeForbidden       = 403
	ErrCodeNotFound        = 404
	ErrCodeMethodNotFound  = 405
	ErrCodeConflict        = 409
	ErrCodeTooManyRequests = 429
	ErrCodeInternal        = 500
	ErrCodeUnavailable     = 503
)

// ── Request/Response payloads ───────────────────────

// AuthRequest is sent by clients to authenticate.
type AuthRequest struct {
	Token  string `json:"token"`
	Format string `json:"format,omitempty"` // "json" (default) or "msgpack"
}

// AuthResponse is returned after successful authentication.
type AuthResponse struct {
	Format    string `json:"format"`
	SessionID string `json:"session_id"`
	Subject   string `json:"subject"`
	Role      string `json:"role,omitempty"`
}

// TokenRequest addresses a single token.
type TokenRequest struct {
	TokenID string `json:"token_id"`
}

// TokenByNumberRequest looks a token up by its display number.
type TokenByNumberRequest struct {
	Number string `json:"number"`
}

// TokenListRequest lists a user's tokens. An empty UserID means the caller.
type TokenListRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// CompleteResponse carries the completed token and its history record.
// Record is nil when recording failed.
type CompleteResponse struct {
	Token  *token.Token    `json:"token"`
	Record *history.Record `json:"record,omitempty"`
}

// CallNextRequest asks a server for the next token of a queue.
type CallNextRequest struct {
	QueueID  string `json:"queue_id"`
	ServerID string `json:"server_id,omitempty"`
}

// CallNextResponse carries the called token, or nothing when the line is
// empty.
type CallNextResponse struct {
	Empty bool         `json:"empty"`
	Token *token.Token `json:"token,omitempty"`
}

// QueueRequest addresses a single queue.
type QueueRequest struct {
	QueueID string `json:"queue_id"`
}

// QueueListRequest filters queue listings.
type QueueListRequest struct {
	Domain     string `json:"domain,omitempty"`
	ActiveOnly bool   `json:"active_only,omitempty"`
}

// PositionsResponse lists the positions of a queue's line.
type PositionsResponse struct {
	QueueID   string         `json:"queue_id"`
	Positions map[string]int `json:"positions"`
}

// AnalyticsRequest asks for one day of a queue. Day is YYYY-MM-DD in UTC;
// empty means today.
type AnalyticsRequest struct {
	QueueID string `json:"queue_id"`
	Day     string `json:"day,omitempty"`
}

// SubscribeRequest subscribes to a topic channel.
type SubscribeRequest struct {
	Channel string `json:"channel"`
	Credits int    `json:"credits,omitempty"` // initial credits, 0 keeps the default
}

// UnsubscribeRequest removes a subscription.
type UnsubscribeRequest struct {
	Channel string `json:"channel"`
}

// SubscribeResponse acknowledges a subscription change.
type SubscribeResponse struct {
	Channel string `json:"channel"`
	Status  string `json:"status"`
}

// NewRequestFrame creates a new request frame.
func NewRequestFrame(id, method string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        id,
		Type:      FrameRequest,
		Method:    method,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewResponseFrame creates a response to a request.
func NewResponseFrame(correlID string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        NewFrameID(),
		Type:      FrameResponse,
		CorrelID:  correlID,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewErrorFrame creates an error response to a request.
func NewErrorFrame(correlID string, code int, message string) *Frame {
	return &Frame{
		ID:        NewFrameID(),
		Type:      FrameErr,
		CorrelID:  correlID,
		Error:     &ErrorDetail{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	}
}

// NewEventFrame creates an event frame for a subscription channel.
func NewEventFrame(channel string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        NewFrameID(),
		Type:      FrameEvent,
		Channel:   channel,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewFrameID returns a new random frame ID.
func NewFrameID() string { return uuid.NewString() }
