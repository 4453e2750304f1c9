package dwp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/engine"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func patientConn(userID id.UserID) *Connection {
	return NewConnection("conn-patient", &Identity{
		Subject: userID.String(),
		UserID:  userID,
		Role:    smartqueue.RolePatient,
		Scopes:  ScopesForRole(smartqueue.RolePatient),
	}, &JSONCodec{})
}

func staffConn() *Connection {
	return NewConnection("conn-staff", &Identity{
		Subject: "dr-rao",
		UserID:  id.NewUserID(),
		Role:    smartqueue.RoleDoctor,
		Scopes:  ScopesForRole(smartqueue.RoleDoctor),
	}, &JSONCodec{})
}

func call(t *testing.T, h *Handler, conn *Connection, method string, data any) *Frame {
	t.Helper()
	frame := &Frame{ID: "req-1", Type: FrameRequest, Method: method, Data: mustJSON(data)}
	resp := h.Handle(context.Background(), frame, conn)
	if resp == nil {
		t.Fatal("expected response")
	}
	if resp.CorrelID != "req-1" {
		t.Errorf("CorrelID = %q, want req-1", resp.CorrelID)
	}
	return resp
}

func decodeResponse[T any](t *testing.T, resp *Frame) T {
	t.Helper()
	var out T
	if resp.Type != FrameResponse {
		t.Fatalf("Type = %q, error = %+v", resp.Type, resp.Error)
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func wantError(t *testing.T, resp *Frame, code int) {
	t.Helper()
	if resp.Type != FrameErr || resp.Error == nil {
		t.Fatalf("Type = %q, want error frame", resp.Type)
	}
	if resp.Error.Code != code {
		t.Errorf("code = %d (%s), want %d", resp.Error.Code, resp.Error.Message, code)
	}
}

// ──────────────────────────────────────────────────
// Tokens
// ──────────────────────────────────────────────────

func TestHandler_AdmitAndGet(t *testing.T) {
	t.Parallel()

	env := setupTestEngine(t)
	q := env.queue(t, 10)
	h := NewHandler(env.eng, env.broker, testLogger())
	userID := id.NewUserID()
	conn := patientConn(userID)

	tok := decodeResponse[token.Token](t, call(t, h, conn, MethodTokenAdmit, map[string]any{
		"queue_id":       q.ID.String(),
		"severity_score": 3,
	}))
	if tok.UserID.String() != userID.String() {
		t.Errorf("UserID = %s, want caller %s", tok.UserID, userID)
	}
	if tok.State != token.StateActive {
		t.Errorf("State = %q, want active", tok.State)
	}

	got := decodeResponse[token.Token](t, call(t, h, conn, MethodTokenGet, TokenRequest{TokenID: tok.ID.String()}))
	if got.Number != tok.Number {
		t.Errorf("Number = %q, want %q", got.Number, tok.Number)
	}

	byNumber := decodeResponse[token.Token](t, call(t, h, conn, MethodTokenByNumber, TokenByNumberRequest{Number: tok.Number}))
	if byNumber.ID.String() != tok.ID.String() {
		t.Errorf("ID = %s, want %s", byNumber.ID, tok.ID)
	}

	list := decodeResponse[[]token.Token](t, call(t, h, conn, MethodTokenList, TokenListRequest{}))
	if len(list) != 1 {
		t.Errorf("len(list) = %d, want 1", len(list))
	}
}

func TestHandler_ServeLifecycle(t *testing.T) {
	t.Parallel()

	env := setupTestEngine(t)
	q := env.queue(t, 10)
	h := NewHandler(env.eng, env.broker, testLogger())
	staff := staffConn()
	tok := env.admit(t, q, id.NewUserID())

	env.clock.Advance(4 * time.Minute)
	called := decodeResponse[CallNextResponse](t, call(t, h, staff, MethodQueueCallNext, CallNextRequest{QueueID: q.ID.String()}))
	if called.Empty || called.Token == nil {
		t.Fatal("expected a called token")
	}
	if called.Token.ID.String() != tok.ID.String() {
		t.Errorf("called %s, want %s", called.Token.ID, tok.ID)
	}

	started := decodeResponse[token.Token](t, call(t, h, staff, MethodTokenStart, TokenRequest{TokenID: tok.ID.String()}))
	if started.State != token.StateInService {
		t.Errorf("State = %q, want in_service", started.State)
	}

	env.clock.Advance(10 * time.Minute)
	done := decodeResponse[CompleteResponse](t, call(t, h, staff, MethodTokenComplete, TokenRequest{TokenID: tok.ID.String()}))
	if done.Token.State != token.StateCompleted {
		t.Errorf("State = %q, want completed", done.Token.State)
	}
	if done.Record == nil {
		t.Fatal("expected a history record")
	}
	if done.Record.ServiceTime != 10 {
		t.Errorf("ServiceTime = %d, want 10", done.Record.ServiceTime)
	}

	empty := decodeResponse[CallNextResponse](t, call(t, h, staff, MethodQueueCallNext, CallNextRequest{QueueID: q.ID.String()}))
	if !empty.Empty {
		t.Error("expected an empty line")
	}
}

func TestHandler_CancelAndExpire(t *testing.T) {
	t.Parallel()

	env := setupTestEngine(t)
	q := env.queue(t, 10)
	h := NewHandler(env.eng, env.broker, testLogger())
	owner := id.NewUserID()
	mine := env.admit(t, q, owner)
	theirs := env.admit(t, q, id.NewUserID())

	wantError(t, call(t, h, patientConn(owner), MethodTokenCancel, TokenRequest{TokenID: theirs.ID.String()}), ErrCodeForbidden)

	cancelled := decodeResponse[token.Token](t, call(t, h, patientConn(owner), MethodTokenCancel, TokenRequest{TokenID: mine.ID.String()}))
	if cancelled.State != token.StateCancelled {
		t.Errorf("State = %q, want cancelled", cancelled.State)
	}

	// Expiring a waiting token is not a valid transition.
	wantError(t, call(t, h, staffConn(), MethodTokenExpire, TokenRequest{TokenID: theirs.ID.String()}), ErrCodeConflict)

	decodeResponse[CallNextResponse](t, call(t, h, staffConn(), MethodQueueCallNext, CallNextRequest{QueueID: q.ID.String()}))
	expired := decodeResponse[token.Token](t, call(t, h, staffConn(), MethodTokenExpire, TokenRequest{TokenID: theirs.ID.String()}))
	if expired.State != token.StateExpired {
		t.Errorf("State = %q, want expired", expired.State)
	}
}

func TestHandler_TokenListOwnership(t *testing.T) {
	t.Parallel()

	env := setupTestEngine(t)
	q := env.queue(t, 10)
	h := NewHandler(env.eng, env.broker, testLogger())
	other := id.NewUserID()
	env.admit(t, q, other)

	wantError(t, call(t, h, patientConn(id.NewUserID()), MethodTokenList, TokenListRequest{UserID: other.String()}), ErrCodeForbidden)

	list := decodeResponse[[]token.Token](t, call(t, h, staffConn(), MethodTokenList, TokenListRequest{UserID: other.String()}))
	if len(list) != 1 {
		t.Errorf("len(list) = %d, want 1", len(list))
	}
}

// ──────────────────────────────────────────────────
// Queues
// ──────────────────────────────────────────────────

func TestHandler_QueueReads(t *testing.T) {
	t.Parallel()

	env := setupTestEngine(t)
	q := env.queue(t, 10)
	h := NewHandler(env.eng, env.broker, testLogger())
	conn := patientConn(id.NewUserID())
	for range 3 {
		env.admit(t, q, id.NewUserID())
	}

	pr := decodeResponse[PositionsResponse](t, call(t, h, conn, MethodQueuePositions, QueueRequest{QueueID: q.ID.String()}))
	if len(pr.Positions) != 3 {
		t.Errorf("positions = %v, want 3 entries", pr.Positions)
	}

	p := decodeResponse[struct {
		Minutes    int     `json:"minutes"`
		Confidence float64 `json:"confidence"`
	}](t, call(t, h, conn, MethodEstimatePredict, QueueRequest{QueueID: q.ID.String()}))
	if p.Minutes != 15 || p.Confidence != 0 {
		t.Errorf("prediction = %+v, want fallback 15 minutes", p)
	}

	queues := decodeResponse[[]map[string]any](t, call(t, h, conn, MethodQueueList, QueueListRequest{Domain: "healthcare"}))
	if len(queues) != 1 {
		t.Errorf("len(queues) = %d, want 1", len(queues))
	}

	a := decodeResponse[engine.Analytics](t, call(t, h, staffConn(), MethodQueueAnalytics, AnalyticsRequest{QueueID: q.ID.String(), Day: "2026-03-10"}))
	if a.TotalTokens != 3 || a.CurrentLength != 3 {
		t.Errorf("analytics = %+v, want 3 tokens", a)
	}

	wantError(t, call(t, h, staffConn(), MethodQueueAnalytics, AnalyticsRequest{QueueID: q.ID.String(), Day: "10/03/2026"}), ErrCodeBadRequest)
}

func TestHandler_Errors(t *testing.T) {
	t.Parallel()

	env := setupTestEngine(t)
	full := env.queue(t, 1)
	env.admit(t, full, id.NewUserID())
	h := NewHandler(env.eng, env.broker, testLogger())
	conn := patientConn(id.NewUserID())

	tests := []struct {
		name   string
		method string
		data   any
		code   int
	}{
		{"unknown method", "token.teleport", nil, ErrCodeMethodNotFound},
		{"malformed token ID", MethodTokenGet, TokenRequest{TokenID: "nope"}, ErrCodeBadRequest},
		{"missing token", MethodTokenGet, TokenRequest{TokenID: id.NewTokenID().String()}, ErrCodeNotFound},
		{"missing queue", MethodQueueGet, QueueRequest{QueueID: id.NewQueueID().String()}, ErrCodeNotFound},
		{"queue full", MethodTokenAdmit, map[string]any{"queue_id": full.ID.String()}, ErrCodeConflict},
		{"admit without queue", MethodTokenAdmit, map[string]any{}, ErrCodeBadRequest},
		{"patient calls next", MethodQueueCallNext, CallNextRequest{QueueID: full.ID.String()}, ErrCodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantError(t, call(t, h, conn, tt.method, tt.data), tt.code)
		})
	}
}

func TestErrorCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("get: %w", smartqueue.ErrTokenNotFound), ErrCodeNotFound},
		{smartqueue.ErrQueueFull, ErrCodeConflict},
		{&smartqueue.TransitionError{From: "completed", Action: "cancel"}, ErrCodeConflict},
		{smartqueue.ErrAdmissionThrottled, ErrCodeTooManyRequests},
		{smartqueue.ErrServerUnavailable, ErrCodeUnavailable},
		{smartqueue.ErrInvalidDomain, ErrCodeBadRequest},
		{smartqueue.ErrForbidden, ErrCodeForbidden},
		{errors.New("boom"), ErrCodeInternal},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

// ──────────────────────────────────────────────────
// Subscriptions and stats
// ──────────────────────────────────────────────────

func TestHandler_Subscribe(t *testing.T) {
	t.Parallel()

	h := &Handler{logger: testLogger()}
	userID := id.NewUserID()
	conn := patientConn(userID)

	resp := decodeResponse[SubscribeResponse](t, call(t, h, conn, MethodSubscribe, SubscribeRequest{Channel: "user:" + userID.String()}))
	if resp.Status != "subscribed" {
		t.Errorf("Status = %q, want subscribed", resp.Status)
	}

	wantError(t, call(t, h, conn, MethodSubscribe, SubscribeRequest{Channel: "jobs:1"}), ErrCodeBadRequest)
	wantError(t, call(t, h, conn, MethodSubscribe, SubscribeRequest{Channel: "user:" + id.NewUserID().String()}), ErrCodeForbidden)

	resp = decodeResponse[SubscribeResponse](t, call(t, h, conn, MethodUnsubscribe, UnsubscribeRequest{Channel: "tokens"}))
	if resp.Status != "unsubscribed" {
		t.Errorf("Status = %q, want unsubscribed", resp.Status)
	}
}

func TestHandler_Stats(t *testing.T) {
	t.Parallel()

	env := setupTestEngine(t)
	q := env.queue(t, 10)
	h := NewHandler(env.eng, env.broker, testLogger())
	h.conns = NewConnectionManager()
	h.conns.Add(staffConn())

	stats := decodeResponse[Stats](t, call(t, h, staffConn(), MethodStats, nil))
	if stats.Connections != 1 {
		t.Errorf("Connections = %d, want 1", stats.Connections)
	}
	if len(stats.ActiveQueues) != 1 || stats.ActiveQueues[0] != q.ID.String() {
		t.Errorf("ActiveQueues = %v, want [%s]", stats.ActiveQueues, q.ID)
	}
}
