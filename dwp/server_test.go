package dwp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/engine"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/store/memory"
	"github.com/Jiyabhaviksadaria/smartqueue/stream"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var epoch = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	eng    *engine.Engine
	broker *stream.Broker
	clock  *smartqueue.ManualClock
}

// setupTestEngine creates a memory-backed engine with a stream broker.
func setupTestEngine(t *testing.T) *testEnv {
	t.Helper()
	clk := smartqueue.NewManualClock(epoch)
	rt, err := smartqueue.New(
		smartqueue.WithStore(memory.New()),
		smartqueue.WithClock(clk),
		smartqueue.WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("smartqueue.New: %v", err)
	}
	broker := stream.NewBroker(testLogger())
	eng, err := engine.Build(rt, engine.WithExtension(broker))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	return &testEnv{eng: eng, broker: broker, clock: clk}
}

func (env *testEnv) queue(t *testing.T, capacity int) *queue.Queue {
	t.Helper()
	q := &queue.Queue{
		Name:     "General OPD",
		Domain:   smartqueue.DomainHealthcare,
		Capacity: capacity,
		Active:   true,
	}
	if err := env.eng.CreateQueue(context.Background(), q); err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	return q
}

func (env *testEnv) admit(t *testing.T, q *queue.Queue, userID id.UserID) *token.Token {
	t.Helper()
	tok, err := env.eng.AdmitToken(context.Background(), engine.AdmitRequest{QueueID: q.ID, UserID: userID})
	if err != nil {
		t.Fatalf("AdmitToken: %v", err)
	}
	return tok
}

// setupTestServer starts an httptest server exposing the protocol.
func setupTestServer(t *testing.T, env *testEnv, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	opts = append([]Option{WithLogger(testLogger())}, opts...)
	srv := NewServer(env.broker, NewHandler(env.eng, env.broker, testLogger()), opts...)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Close()
		hs.Close()
	})
	return srv, hs
}

// dial opens a WebSocket to the test server.
func dial(t *testing.T, hs *httptest.Server) net.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/dwp"
	conn, br, _, err := ws.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("ws.Dial: %v", err)
	}
	if br != nil {
		ws.PutReader(br)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func send(t *testing.T, conn net.Conn, codec Codec, frame *Frame) {
	t.Helper()
	data, err := codec.Encode(frame)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	op := ws.OpText
	if codec.Name() != CodecNameJSON {
		op = ws.OpBinary
	}
	if err := wsutil.WriteClientMessage(conn, op, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func receive(t *testing.T, conn net.Conn, codec Codec) *Frame {
	t.Helper()
	data, _, err := wsutil.ReadServerData(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	frame, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return frame
}

// receiveResponse skips event frames until the frame correlated with reqID.
func receiveResponse(t *testing.T, conn net.Conn, codec Codec, reqID string) *Frame {
	t.Helper()
	for {
		f := receive(t, conn, codec)
		if f.CorrelID == reqID {
			return f
		}
	}
}

func request(t *testing.T, reqID, method string, data any) *Frame {
	t.Helper()
	f, err := NewRequestFrame(reqID, method, data)
	if err != nil {
		t.Fatalf("NewRequestFrame: %v", err)
	}
	return f
}

func authenticate(t *testing.T, conn net.Conn, credential, format string) AuthResponse {
	t.Helper()
	send(t, conn, &JSONCodec{}, request(t, "auth-1", MethodAuth, AuthRequest{Token: credential, Format: format}))
	resp := receive(t, conn, &JSONCodec{})
	if resp.Type != FrameResponse {
		t.Fatalf("auth response type = %q (%+v)", resp.Type, resp.Error)
	}
	var ar AuthResponse
	if err := json.Unmarshal(resp.Data, &ar); err != nil {
		t.Fatalf("unmarshal auth response: %v", err)
	}
	return ar
}

// ──────────────────────────────────────────────────
// WebSocket
// ──────────────────────────────────────────────────

func TestServer_WebSocketAdmit(t *testing.T) {
	t.Parallel()

	env := setupTestEngine(t)
	q := env.queue(t, 10)
	srv, hs := setupTestServer(t, env)
	conn := dial(t, hs)

	ar := authenticate(t, conn, "", "")
	if ar.Format != CodecNameJSON {
		t.Errorf("Format = %q, want json", ar.Format)
	}
	if ar.SessionID == "" {
		t.Error("SessionID should not be empty")
	}

	send(t, conn, &JSONCodec{}, request(t, "req-1", MethodTokenAdmit, map[string]any{
		"queue_id": q.ID.String(),
		"user_id":  id.NewUserID().String(),
	}))
	resp := receiveResponse(t, conn, &JSONCodec{}, "req-1")
	if resp.Type != FrameResponse {
		t.Fatalf("Type = %q, error = %+v", resp.Type, resp.Error)
	}

	var tok token.Token
	if err := json.Unmarshal(resp.Data, &tok); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	if tok.Number == "" {
		t.Error("token number should be assigned")
	}
	if tok.Position == nil || *tok.Position != 1 {
		t.Errorf("Position = %v, want 1", tok.Position)
	}
	if srv.Connections().Count() != 1 {
		t.Errorf("Connections = %d, want 1", srv.Connections().Count())
	}
}

func TestServer_WebSocketFirstFrameMustBeAuth(t *testing.T) {
	t.Parallel()

	env := setupTestEngine(t)
	_, hs := setupTestServer(t, env)
	conn := dial(t, hs)

	send(t, conn, &JSONCodec{}, request(t, "req-1", MethodStats, nil))
	resp := receive(t, conn, &JSONCodec{})
	if resp.Type != FrameErr || resp.Error.Code != ErrCodeBadRequest {
		t.Fatalf("got %+v, want bad request error", resp)
	}
}

func TestServer_WebSocketRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	env := setupTestEngine(t)
	auth := NewAPIKeyAuthenticator(APIKeyEntry{
		Key:      "kiosk-key",
		Identity: Identity{Subject: "kiosk-1", Role: smartqueue.RolePatient},
	})
	_, hs := setupTestServer(t, env, WithAuth(auth))
	conn := dial(t, hs)

	send(t, conn, &JSONCodec{}, request(t, "auth-1", MethodAuth, AuthRequest{Token: "wrong"}))
	resp := receive(t, conn, &JSONCodec{})
	if resp.Type != FrameErr || resp.Error.Code != ErrCodeUnauthorized {
		t.Fatalf("got %+v, want unauthorized error", resp)
	}
}

func TestServer_WebSocketScopeCheck(t *testing.T) {
	t.Parallel()

	env := setupTestEngine(t)
	q := env.queue(t, 10)
	auth := NewAPIKeyAuthenticator(APIKeyEntry{
		Key:      "kiosk-key",
		Identity: Identity{Subject: "kiosk-1", Role: smartqueue.RolePatient},
	})
	_, hs := setupTestServer(t, env, WithAuth(auth))
	conn := dial(t, hs)
	authenticate(t, conn, "Bearer kiosk-key", "")

	send(t, conn, &JSONCodec{}, request(t, "req-1", MethodQueueCallNext, CallNextRequest{QueueID: q.ID.String()}))
	resp := receiveResponse(t, conn, &JSONCodec{}, "req-1")
	if resp.Type != FrameErr || resp.Error.Code != ErrCodeForbidden {
		t.Fatalf("got %+v, want forbidden error", resp)
	}
}

func TestServer_WebSocketPingPong(t *testing.T) {
	t.Parallel()

	env := setupTestEngine(t)
	_, hs := setupTestServer(t, env)
	conn := dial(t, hs)
	authenticate(t, conn, "", "")

	send(t, conn, &JSONCodec{}, &Frame{ID: "ping-1", Type: FramePing, Timestamp: time.Now().UTC()})
	resp := receiveResponse(t, conn, &JSONCodec{}, "ping-1")
	if resp.Type != FramePong {
		t.Errorf("Type = %q, want pong", resp.Type)
	}
}

func TestServer_WebSocketSubscribeReceivesEvents(t *testing.T) {
	t.Parallel()

	env := setupTestEngine(t)
	q := env.queue(t, 10)
	_, hs := setupTestServer(t, env)
	conn := dial(t, hs)
	authenticate(t, conn, "", "")

	channel := stream.QueueTopic(q.ID.String())
	send(t, conn, &JSONCodec{}, request(t, "sub-1", MethodSubscribe, SubscribeRequest{Channel: channel}))
	resp := receiveResponse(t, conn, &JSONCodec{}, "sub-1")
	if resp.Type != FrameResponse {
		t.Fatalf("subscribe failed: %+v", resp.Error)
	}

	tok := env.admit(t, q, id.NewUserID())

	evtFrame := receive(t, conn, &JSONCodec{})
	if evtFrame.Type != FrameEvent {
		t.Fatalf("Type = %q, want event", evtFrame.Type)
	}
	var evt stream.Event
	if err := json.Unmarshal(evtFrame.Data, &evt); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if evt.Type != stream.EventTokenAdmitted {
		t.Errorf("event type = %q, want %q", evt.Type, stream.EventTokenAdmitted)
	}
	var data stream.TokenEventData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		t.Fatalf("unmarshal event data: %v", err)
	}
	if data.TokenID != tok.ID.String() {
		t.Errorf("TokenID = %q, want %q", data.TokenID, tok.ID)
	}
	if data.Positions[tok.ID.String()] != 1 {
		t.Errorf("positions = %v, want token at 1", data.Positions)
	}
}

func TestServer_WebSocketMsgpack(t *testing.T) {
	t.Parallel()

	env := setupTestEngine(t)
	_, hs := setupTestServer(t, env)
	conn := dial(t, hs)

	ar := authenticate(t, conn, "", CodecNameMsgpack)
	if ar.Format != CodecNameMsgpack {
		t.Fatalf("Format = %q, want msgpack", ar.Format)
	}

	codec := &MsgpackCodec{}
	send(t, conn, codec, request(t, "req-1", MethodStats, nil))
	data, op, err := wsutil.ReadServerData(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if op != ws.OpBinary {
		t.Errorf("op = %v, want binary", op)
	}
	var resp Frame
	if err := msgpack.Unmarshal(data, &resp); err != nil {
		t.Fatalf("msgpack decode: %v", err)
	}
	if resp.Type != FrameResponse || resp.CorrelID != "req-1" {
		t.Fatalf("got %+v, want stats response", resp)
	}
}

func TestServer_CloseDisconnectsClients(t *testing.T) {
	t.Parallel()

	env := setupTestEngine(t)
	srv, hs := setupTestServer(t, env)
	conn := dial(t, hs)
	authenticate(t, conn, "", "")

	if err := srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := wsutil.ReadServerData(conn); err == nil {
		t.Fatal("expected read error after server close")
	}
}

// ──────────────────────────────────────────────────
// HTTP RPC
// ──────────────────────────────────────────────────

func postRPC(t *testing.T, hs *httptest.Server, frame *Frame, authHeader string) (*http.Response, *Frame) {
	t.Helper()
	body, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, hs.URL+"/dwp/rpc", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := hs.Client().Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	var out Frame
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp, &out
}

func TestServer_HTTPRPC(t *testing.T) {
	t.Parallel()

	env := setupTestEngine(t)
	q := env.queue(t, 10)
	env.admit(t, q, id.NewUserID())

	auth := NewAPIKeyAuthenticator(
		APIKeyEntry{Key: "board", Identity: Identity{Subject: "board-1", Role: smartqueue.RoleCustomer}},
	)
	_, hs := setupTestServer(t, env, WithAuth(auth))

	t.Run("positions", func(t *testing.T) {
		resp, frame := postRPC(t, hs, request(t, "r1", MethodQueuePositions, QueueRequest{QueueID: q.ID.String()}), "board")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d (%+v)", resp.StatusCode, frame.Error)
		}
		var pr PositionsResponse
		if err := json.Unmarshal(frame.Data, &pr); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if len(pr.Positions) != 1 {
			t.Errorf("positions = %v, want one entry", pr.Positions)
		}
	})

	t.Run("unauthorized", func(t *testing.T) {
		resp, _ := postRPC(t, hs, request(t, "r2", MethodStats, nil), "nope")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("not found", func(t *testing.T) {
		resp, frame := postRPC(t, hs, request(t, "r3", MethodTokenGet, TokenRequest{TokenID: id.NewTokenID().String()}), "board")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
		if frame.CorrelID != "r3" {
			t.Errorf("CorrelID = %q, want r3", frame.CorrelID)
		}
	})

	t.Run("subscribe needs streaming", func(t *testing.T) {
		resp, _ := postRPC(t, hs, request(t, "r4", MethodSubscribe, SubscribeRequest{Channel: "tokens"}), "board")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("scope", func(t *testing.T) {
		resp, _ := postRPC(t, hs, request(t, "r5", MethodStats, nil), "board")
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("status = %d, want 403", resp.StatusCode)
		}
	})
}

// ──────────────────────────────────────────────────
// SSE
// ──────────────────────────────────────────────────

func TestServer_SSE(t *testing.T) {
	t.Parallel()

	env := setupTestEngine(t)
	_, hs := setupTestServer(t, env)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hs.URL+"/dwp/sse?channel="+stream.TopicQueues, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := hs.Client().Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	env.queue(t, 10)

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: "+string(stream.EventQueueUpdated) {
			return
		}
	}
	t.Fatalf("no queue event received: %v", scanner.Err())
}

func TestServer_SSERequiresChannel(t *testing.T) {
	t.Parallel()

	env := setupTestEngine(t)
	_, hs := setupTestServer(t, env)

	resp, err := hs.Client().Get(hs.URL + "/dwp/sse")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
