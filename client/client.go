// Package client provides a Go client for a remote SmartQueue server over
// WebSocket.
//
// Usage:
//
//	c, err := client.Dial("wss://queue.example.com/dwp",
//	    client.WithToken(jwt),
//	    client.WithReconnect(10, time.Second),
//	)
//	defer c.Close()
//
//	// Take a token and follow it.
//	tok, err := c.Admit(ctx, engine.AdmitRequest{QueueID: queueID})
//	events, err := c.WatchToken(ctx, tok.ID.String())
//	for evt := range events {
//	    fmt.Println(evt.Type)
//	}
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/Jiyabhaviksadaria/smartqueue/backoff"
	"github.com/Jiyabhaviksadaria/smartqueue/dwp"
	"github.com/Jiyabhaviksadaria/smartqueue/stream"
)

// ErrClosed is returned by requests made after Close.
var ErrClosed = errors.New("smartqueue/client: closed")

// Client talks to a remote SmartQueue server.
type Client struct {
	url         string
	token       string
	format      string
	logger      *slog.Logger
	authTimeout time.Duration

	// Reconnection.
	reconnect  bool
	maxRetries int
	baseDelay  time.Duration
	strategy   backoff.Strategy

	// Connection state.
	conn      net.Conn
	codec     dwp.Codec
	sessionID string
	mu        sync.Mutex
	closed    atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc

	// Request-response correlation.
	pending sync.Map // frameID → chan *dwp.Frame

	// Subscriptions.
	subs sync.Map // channel → *subscription
}

// Dial connects to a server and authenticates.
func Dial(url string, opts ...Option) (*Client, error) {
	return DialContext(context.Background(), url, opts...)
}

// DialContext connects to a server with a context.
func DialContext(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c := &Client{
		url:         url,
		format:      dwp.CodecNameJSON,
		logger:      slog.Default(),
		authTimeout: 10 * time.Second,
		maxRetries:  5,
		baseDelay:   time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.strategy == nil {
		c.strategy = backoff.NewExponentialWithJitter(c.baseDelay, 30*time.Second)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	conn, codec, sessionID, err := c.connect(ctx)
	if err != nil {
		c.cancel()
		return nil, fmt.Errorf("smartqueue/client: dial: %w", err)
	}
	c.setConn(conn, codec, sessionID)

	go c.readLoop(conn, codec)
	return c, nil
}

func (c *Client) setConn(conn net.Conn, codec dwp.Codec, sessionID string) {
	c.mu.Lock()
	c.conn, c.codec, c.sessionID = conn, codec, sessionID
	c.mu.Unlock()
}

// connect establishes the WebSocket connection and runs the auth
// handshake. The auth exchange is always JSON; the negotiated codec
// applies to every later frame.
func (c *Client) connect(ctx context.Context) (net.Conn, dwp.Codec, string, error) {
	conn, br, _, err := ws.Dial(ctx, c.url)
	if err != nil {
		return nil, nil, "", fmt.Errorf("websocket dial: %w", err)
	}
	if br != nil {
		ws.PutReader(br)
	}

	authFrame, err := dwp.NewRequestFrame(dwp.NewFrameID(), dwp.MethodAuth, dwp.AuthRequest{
		Token:  c.token,
		Format: c.format,
	})
	if err != nil {
		_ = conn.Close()
		return nil, nil, "", fmt.Errorf("marshal auth request: %w", err)
	}
	jsonCodec := &dwp.JSONCodec{}
	data, err := jsonCodec.Encode(authFrame)
	if err == nil {
		err = wsutil.WriteClientText(conn, data)
	}
	if err != nil {
		_ = conn.Close()
		return nil, nil, "", fmt.Errorf("write auth frame: %w", err)
	}

	// The read loop is not running yet, so read the reply inline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else if c.authTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.authTimeout))
	}
	reply, err := wsutil.ReadServerText(conn)
	if err != nil {
		_ = conn.Close()
		return nil, nil, "", fmt.Errorf("read auth response: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	resp, err := jsonCodec.Decode(reply)
	if err != nil {
		_ = conn.Close()
		return nil, nil, "", fmt.Errorf("unmarshal auth response: %w", err)
	}
	if resp.Type == dwp.FrameErr {
		_ = conn.Close()
		if resp.Error != nil {
			return nil, nil, "", fmt.Errorf("auth failed: %w", resp.Error)
		}
		return nil, nil, "", errors.New("auth failed")
	}

	var authResp dwp.AuthResponse
	if err := json.Unmarshal(resp.Data, &authResp); err != nil {
		_ = conn.Close()
		return nil, nil, "", fmt.Errorf("unmarshal auth response: %w", err)
	}
	c.logger.Info("smartqueue client connected",
		slog.String("session_id", authResp.SessionID),
		slog.String("format", authResp.Format),
		slog.String("role", authResp.Role),
	)
	return conn, dwp.GetCodec(authResp.Format), authResp.SessionID, nil
}

// readLoop reads frames from conn and routes them until the connection
// fails.
func (c *Client) readLoop(conn net.Conn, codec dwp.Codec) {
	for {
		data, _, err := wsutil.ReadServerData(conn)
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Warn("smartqueue client read error", slog.String("error", err.Error()))
			c.failPending()
			if c.reconnect {
				c.tryReconnect()
			}
			return
		}

		frame, err := codec.Decode(data)
		if err != nil {
			c.logger.Warn("smartqueue client: invalid frame", slog.String("error", err.Error()))
			continue
		}

		switch frame.Type {
		case dwp.FrameResponse, dwp.FrameErr, dwp.FramePong:
			if val, ok := c.pending.Load(frame.CorrelID); ok {
				ch := val.(chan *dwp.Frame) //nolint:errcheck // pending map always stores chan *dwp.Frame
				select {
				case ch <- frame:
				default:
				}
			}
		case dwp.FrameEvent:
			var evt stream.Event
			if err := json.Unmarshal(frame.Data, &evt); err != nil {
				continue
			}
			c.route(&evt)
		}
	}
}

// failPending answers every in-flight request with a connection error.
func (c *Client) failPending() {
	c.pending.Range(func(key, val any) bool {
		ch := val.(chan *dwp.Frame) //nolint:errcheck // pending map always stores chan *dwp.Frame
		frameID, _ := key.(string)
		select {
		case ch <- dwp.NewErrorFrame(frameID, dwp.ErrCodeUnavailable, "connection lost"):
		default:
		}
		return true
	})
}

// tryReconnect redials with backoff, restores subscriptions and restarts
// the read loop.
func (c *Client) tryReconnect() {
	attempt := 0
	err := backoff.Retry(c.ctx, c.strategy, c.maxRetries, func(ctx context.Context) error {
		attempt++
		c.logger.Info("smartqueue client reconnecting", slog.Int("attempt", attempt))

		conn, codec, sessionID, err := c.connect(ctx)
		if err != nil {
			c.logger.Warn("smartqueue client reconnect failed", slog.String("error", err.Error()))
			return err
		}
		if c.closed.Load() {
			_ = conn.Close()
			return nil
		}
		c.mu.Lock()
		c.conn, c.codec = conn, codec
		c.mu.Unlock()
		go c.readLoop(conn, codec)

		c.resubscribe(ctx)

		c.mu.Lock()
		c.sessionID = sessionID
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		c.logger.Error("smartqueue client: reconnection abandoned", slog.String("error", err.Error()))
		c.closeSubscriptions()
		return
	}
	c.logger.Info("smartqueue client reconnected")
}

// request sends a request frame and waits for the correlated response.
// Error frames are returned as *dwp.ErrorDetail.
func (c *Client) request(ctx context.Context, method string, data any) (*dwp.Frame, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	frame := &dwp.Frame{
		ID:        dwp.NewFrameID(),
		Type:      dwp.FrameRequest,
		Method:    method,
		Timestamp: time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal request data: %w", err)
		}
		frame.Data = raw
	}
	return c.roundTrip(ctx, frame)
}

func (c *Client) roundTrip(ctx context.Context, frame *dwp.Frame) (*dwp.Frame, error) {
	respCh := make(chan *dwp.Frame, 1)
	c.pending.Store(frame.ID, respCh)
	defer c.pending.Delete(frame.ID)

	if err := c.writeFrame(frame); err != nil {
		return nil, err
	}

	select {
	case resp := <-respCh:
		if resp.Type == dwp.FrameErr {
			if resp.Error == nil {
				return nil, fmt.Errorf("%s: unknown error", frame.Method)
			}
			return nil, fmt.Errorf("%s: %w", frame.Method, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// decode unmarshals a response payload into v.
func decode[T any](resp *dwp.Frame) (*T, error) {
	var v T
	if err := json.Unmarshal(resp.Data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &v, nil
}

// call runs a request and decodes its payload.
func call[T any](ctx context.Context, c *Client, method string, data any) (*T, error) {
	resp, err := c.request(ctx, method, data)
	if err != nil {
		return nil, err
	}
	return decode[T](resp)
}

// writeFrame encodes and sends a frame with the negotiated codec.
func (c *Client) writeFrame(frame *dwp.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := c.codec.Encode(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	op := ws.OpBinary
	if c.codec.Name() == dwp.CodecNameJSON {
		op = ws.OpText
	}
	return wsutil.WriteClientMessage(c.conn, op, data)
}

// Ping measures a protocol round trip.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	_, err := c.roundTrip(ctx, &dwp.Frame{ID: dwp.NewFrameID(), Type: dwp.FramePing, Timestamp: start.UTC()})
	return time.Since(start), err
}

// AddCredits replenishes the server-side flow-control credits of this
// connection's event stream.
func (c *Client) AddCredits(n int) error {
	return c.writeFrame(&dwp.Frame{ID: dwp.NewFrameID(), Type: dwp.FrameRequest, Credits: n, Timestamp: time.Now().UTC()})
}

// SessionID returns the session ID assigned by the server. It changes
// after a reconnect.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Close closes the client connection and every subscription channel.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.cancel()
	c.closeSubscriptions()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
