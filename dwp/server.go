package dwp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/Jiyabhaviksadaria/smartqueue/stream"
)

// Server handles WebSocket, SSE and HTTP RPC connections. It feeds
// request frames to a Handler and forwards stream broker events to
// subscribed clients.
type Server struct {
	broker       *stream.Broker
	handler      *Handler
	auth         Authenticator
	defaultCodec Codec
	conns        *ConnectionManager
	logger       *slog.Logger
	basePath     string
	authTimeout  time.Duration
	writeTimeout time.Duration
}

// NewServer creates a new server.
func NewServer(broker *stream.Broker, handler *Handler, opts ...Option) *Server {
	s := &Server{
		broker:       broker,
		handler:      handler,
		defaultCodec: &JSONCodec{},
		conns:        NewConnectionManager(),
		logger:       slog.Default(),
		basePath:     "/dwp",
		authTimeout:  10 * time.Second,
		writeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.auth == nil {
		s.auth = &NoopAuthenticator{}
	}
	handler.conns = s.conns
	return s
}

// Broker returns the underlying stream broker.
func (s *Server) Broker() *stream.Broker { return s.broker }

// Connections returns the connection manager.
func (s *Server) Connections() *ConnectionManager { return s.conns }

// RegisterRoutes mounts the endpoints on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Primary: WebSocket
	mux.HandleFunc("GET "+s.basePath, s.handleWebSocket)

	// Fallback: SSE for read-only subscriptions
	mux.HandleFunc("GET "+s.basePath+"/sse", s.handleSSE)

	// One-shot: HTTP RPC
	mux.HandleFunc("POST "+s.basePath+"/rpc", s.handleHTTPRPC)
}

// Handler returns an http.Handler serving only the protocol endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Close disconnects every WebSocket client. http.Server.Shutdown does not
// track hijacked connections, so call Close after it.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.conns.All() {
		if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// wsConn serialises writes from the frame loop and the event forwarder.
type wsConn struct {
	net.Conn
	mu      sync.Mutex
	timeout time.Duration
}

func (c *wsConn) write(codec Codec, frame *Frame) error {
	data, err := codec.Encode(frame)
	if err != nil {
		return err
	}
	op := ws.OpBinary
	if codec.Name() == CodecNameJSON {
		op = ws.OpText
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(c.timeout)) //nolint:errcheck // surfaced by the write
	}
	return wsutil.WriteServerMessage(c.Conn, op, data)
}

// Read and Write make wsConn usable by wsutil readers, whose control
// frame replies must not interleave with data frames.
func (c *wsConn) Read(p []byte) (int, error) { return c.Conn.Read(p) }

func (c *wsConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.Write(p)
}

// handleWebSocket upgrades the request and runs the connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	raw, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	conn := &wsConn{Conn: raw, timeout: s.writeTimeout}
	defer conn.Close() //nolint:errcheck // best-effort close

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := s.serveWebSocket(ctx, conn, r.RemoteAddr); err != nil {
		s.logger.Debug("websocket closed", slog.String("error", err.Error()))
	}
}

// serveWebSocket runs the auth handshake and the frame loop.
func (s *Server) serveWebSocket(ctx context.Context, conn *wsConn, remote string) error {
	connID := NewFrameID()
	s.logger.Info("client connected", slog.String("conn_id", connID), slog.String("remote", remote))

	// Wait for auth frame.
	if s.authTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.authTimeout)) //nolint:errcheck // surfaced by the read
	}
	authData, _, err := wsutil.ReadClientData(conn)
	if err != nil {
		return fmt.Errorf("dwp: read auth frame: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{}) //nolint:errcheck // clears the auth deadline

	// Auth frames are always JSON (before codec negotiation).
	jsonCodec := &JSONCodec{}
	authFrame, err := jsonCodec.Decode(authData)
	if err != nil {
		//nolint:errcheck // best-effort error response before disconnect
		conn.write(jsonCodec, NewErrorFrame("", ErrCodeBadRequest, "invalid auth frame"))
		return fmt.Errorf("dwp: unmarshal auth frame: %w", err)
	}
	if authFrame.Method != MethodAuth {
		//nolint:errcheck // best-effort error response before disconnect
		conn.write(jsonCodec, NewErrorFrame(authFrame.ID, ErrCodeBadRequest, "first frame must be auth"))
		return fmt.Errorf("dwp: expected auth frame, got %q", authFrame.Method)
	}

	var authReq AuthRequest
	if len(authFrame.Data) > 0 {
		if err := json.Unmarshal(authFrame.Data, &authReq); err != nil {
			//nolint:errcheck // best-effort error response before disconnect
			conn.write(jsonCodec, NewErrorFrame(authFrame.ID, ErrCodeBadRequest, "invalid auth data"))
			return err
		}
	}

	credential := authReq.Token
	if credential == "" {
		credential = authFrame.Token
	}
	identity, err := s.auth.Authenticate(ctx, credential)
	if err != nil {
		//nolint:errcheck // best-effort error response before disconnect
		conn.write(jsonCodec, NewErrorFrame(authFrame.ID, ErrCodeUnauthorized, "authentication failed"))
		return fmt.Errorf("dwp: auth failed: %w", err)
	}

	// Negotiate codec.
	codec := s.defaultCodec
	if authReq.Format != "" {
		codec = GetCodec(authReq.Format)
	}

	dwpConn := NewConnection(connID, identity, codec)
	dwpConn.RemoteAddr = remote
	dwpConn.closer = conn
	s.conns.Add(dwpConn)
	defer func() {
		s.broker.RemoveSubscriber(connID)
		s.conns.Remove(connID)
		s.logger.Info("client disconnected", slog.String("conn_id", connID))
	}()

	// The auth response goes out in JSON; the negotiated codec applies after.
	resp, err := NewResponseFrame(authFrame.ID, AuthResponse{
		Format:    codec.Name(),
		SessionID: connID,
		Subject:   identity.Subject,
		Role:      string(identity.Role),
	})
	if err != nil {
		return fmt.Errorf("dwp: marshal auth response: %w", err)
	}
	if err := conn.write(jsonCodec, resp); err != nil {
		return err
	}

	s.logger.Info("client authenticated",
		slog.String("conn_id", connID),
		slog.String("subject", identity.Subject),
		slog.String("role", string(identity.Role)),
		slog.String("codec", codec.Name()),
	)

	sub := s.broker.Subscribe(connID)
	go s.forwardEvents(conn, codec, sub)

	for {
		data, _, err := wsutil.ReadClientData(conn)
		if err != nil {
			return nil // Connection closed.
		}
		dwpConn.Touch()

		frame, err := codec.Decode(data)
		if err != nil {
			s.reply(conn, codec, NewErrorFrame("", ErrCodeBadRequest, "invalid frame: "+err.Error()))
			continue
		}

		if frame.Type == FramePing {
			s.reply(conn, codec, &Frame{
				ID:        NewFrameID(),
				Type:      FramePong,
				CorrelID:  frame.ID,
				Timestamp: frame.Timestamp,
			})
			continue
		}

		if frame.Method != "" {
			if scope := RequiredScope(frame.Method); scope != "" && !identity.HasScope(scope) {
				s.reply(conn, codec, NewErrorFrame(frame.ID, ErrCodeForbidden, "insufficient permissions"))
				continue
			}
		}

		// Credit-only frames replenish flow control.
		if frame.Credits > 0 && frame.Method == "" {
			sub.AddCredits(int64(frame.Credits))
			continue
		}

		respFrame := s.handler.Handle(ctx, frame, dwpConn)
		if respFrame == nil {
			continue
		}
		if respFrame.Type == FrameResponse {
			s.applySubscription(frame, dwpConn, sub)
		}
		s.reply(conn, codec, respFrame)
	}
}

// applySubscription performs the broker side of a successful subscribe or
// unsubscribe.
func (s *Server) applySubscription(frame *Frame, conn *Connection, sub *stream.Subscriber) {
	switch frame.Method {
	case MethodSubscribe:
		var req SubscribeRequest
		if json.Unmarshal(frame.Data, &req) != nil {
			return
		}
		s.broker.SubscribeTo(conn.ID, req.Channel)
		conn.AddSubscription(req.Channel)
		if req.Credits > 0 {
			sub.AddCredits(int64(req.Credits))
		}
	case MethodUnsubscribe:
		var req UnsubscribeRequest
		if json.Unmarshal(frame.Data, &req) != nil {
			return
		}
		s.broker.Unsubscribe(conn.ID, req.Channel)
		conn.RemoveSubscription(req.Channel)
	}
}

func (s *Server) reply(conn *wsConn, codec Codec, frame *Frame) {
	if err := conn.write(codec, frame); err != nil {
		s.logger.Warn("failed to write frame",
			slog.String("type", string(frame.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// forwardEvents writes broker events to the connection until the
// subscriber is closed or a write fails.
func (s *Server) forwardEvents(conn *wsConn, codec Codec, sub *stream.Subscriber) {
	for evt := range sub.C() {
		evtFrame, err := NewEventFrame(evt.Topic, evt)
		if err != nil {
			continue
		}
		if err := conn.write(codec, evtFrame); err != nil {
			return // Connection gone.
		}
	}
}

// credential reads the caller credential of a plain HTTP request.
func credential(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	return r.Header.Get("Authorization")
}

// handleSSE serves read-only Server-Sent Events for clients that cannot
// establish WebSocket connections. Channels are given as repeated
// "channel" query parameters.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	identity, err := s.auth.Authenticate(r.Context(), credential(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !identity.HasScope(ScopeSubscribe) {
		http.Error(w, "insufficient permissions", http.StatusForbidden)
		return
	}

	channels := r.URL.Query()["channel"]
	if len(channels) == 0 {
		http.Error(w, "channel parameter required", http.StatusBadRequest)
		return
	}
	for _, ch := range channels {
		if err := stream.ValidateTopic(ch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !identity.CanFollow(ch) {
			http.Error(w, "cannot subscribe to another user", http.StatusForbidden)
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	connID := "sse-" + NewFrameID()
	sub := s.broker.Subscribe(connID, channels...)
	defer s.broker.RemoveSubscriber(connID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case evt, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// handleHTTPRPC handles one-shot HTTP RPC requests.
func (s *Server) handleHTTPRPC(w http.ResponseWriter, r *http.Request) {
	var frame Frame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		writeJSON(w, http.StatusBadRequest, NewErrorFrame("", ErrCodeBadRequest, "invalid request body"))
		return
	}

	tok := frame.Token
	if tok == "" {
		tok = r.Header.Get("Authorization")
	}
	identity, err := s.auth.Authenticate(r.Context(), tok)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, NewErrorFrame(frame.ID, ErrCodeUnauthorized, "unauthorized"))
		return
	}

	if frame.Method == MethodSubscribe || frame.Method == MethodUnsubscribe {
		writeJSON(w, http.StatusBadRequest, NewErrorFrame(frame.ID, ErrCodeBadRequest, "subscriptions need a streaming transport"))
		return
	}
	if scope := RequiredScope(frame.Method); scope != "" && !identity.HasScope(scope) {
		writeJSON(w, http.StatusForbidden, NewErrorFrame(frame.ID, ErrCodeForbidden, "forbidden"))
		return
	}

	conn := NewConnection("rpc-"+NewFrameID(), identity, &JSONCodec{})
	conn.RemoteAddr = r.RemoteAddr

	resp := s.handler.Handle(r.Context(), &frame, conn)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	status := http.StatusOK
	if resp.Type == FrameErr && resp.Error != nil {
		status = resp.Error.Code
		if status < 100 || status > 599 {
			status = http.StatusInternalServerError
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client gone
}
