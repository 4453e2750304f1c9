package dwp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/engine"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/stream"
)

// Handler dispatches request frames to engine operations.
type Handler struct {
	eng    *engine.Engine
	broker *stream.Broker
	conns  *ConnectionManager
	logger *slog.Logger
}

// NewHandler creates a new method handler.
func NewHandler(eng *engine.Engine, broker *stream.Broker, logger *slog.Logger) *Handler {
	return &Handler{eng: eng, broker: broker, logger: logger}
}

// Handle processes a single request frame and returns a response. The
// connection identity becomes the engine actor for the call.
func (h *Handler) Handle(ctx context.Context, frame *Frame, conn *Connection) *Frame {
	if conn.Identity != nil {
		ctx = smartqueue.WithActor(ctx, conn.Identity.Actor(conn.RemoteAddr))
	}

	switch frame.Method {
	case MethodTokenAdmit:
		return h.handleTokenAdmit(ctx, frame)
	case MethodTokenGet:
		return h.handleTokenGet(ctx, frame)
	case MethodTokenByNumber:
		return h.handleTokenByNumber(ctx, frame)
	case MethodTokenList:
		return h.handleTokenList(ctx, frame, conn)
	case MethodTokenCancel:
		return h.handleTokenCancel(ctx, frame)
	case MethodTokenStart:
		return h.handleTokenStart(ctx, frame)
	case MethodTokenComplete:
		return h.handleTokenComplete(ctx, frame)
	case MethodTokenExpire:
		return h.handleTokenExpire(ctx, frame)
	case MethodQueueCallNext:
		return h.handleCallNext(ctx, frame)
	case MethodQueueGet:
		return h.handleQueueGet(ctx, frame)
	case MethodQueueList:
		return h.handleQueueList(ctx, frame)
	case MethodQueuePositions:
		return h.handleQueuePositions(ctx, frame)
	case MethodQueueAnalytics:
		return h.handleQueueAnalytics(ctx, frame)
	case MethodEstimatePredict:
		return h.handlePredict(ctx, frame)
	case MethodSubscribe:
		return h.handleSubscribe(frame, conn)
	case MethodUnsubscribe:
		return h.handleUnsubscribe(frame)
	case MethodStats:
		return h.handleStats(frame)
	default:
		return NewErrorFrame(frame.ID, ErrCodeMethodNotFound, "unknown method: "+frame.Method)
	}
}

// mustResponseFrame creates a response frame, returning an error frame on marshal failure.
func mustResponseFrame(frameID string, data any) *Frame {
	resp, err := NewResponseFrame(frameID, data)
	if err != nil {
		return NewErrorFrame(frameID, ErrCodeInternal, "marshal response: "+err.Error())
	}
	return resp
}

// errorFrame maps an engine error onto a protocol error code.
func errorFrame(frameID, op string, err error) *Frame {
	return NewErrorFrame(frameID, ErrorCode(err), op+": "+err.Error())
}

// ErrorCode returns the protocol error code for an engine error.
func ErrorCode(err error) int {
	switch {
	case errors.Is(err, smartqueue.ErrTokenNotFound),
		errors.Is(err, smartqueue.ErrQueueNotFound),
		errors.Is(err, smartqueue.ErrStaffNotFound),
		errors.Is(err, smartqueue.ErrHistoryNotFound):
		return ErrCodeNotFound
	case errors.Is(err, smartqueue.ErrForbidden):
		return ErrCodeForbidden
	case errors.Is(err, smartqueue.ErrQueueFull),
		errors.Is(err, smartqueue.ErrQueueInactive),
		errors.Is(err, smartqueue.ErrInvalidTransition),
		errors.Is(err, smartqueue.ErrTokenAlreadyExists),
		errors.Is(err, smartqueue.ErrQueueAlreadyExists):
		return ErrCodeConflict
	case errors.Is(err, smartqueue.ErrInvalidDomain):
		return ErrCodeBadRequest
	case errors.Is(err, smartqueue.ErrAdmissionThrottled):
		return ErrCodeTooManyRequests
	case errors.Is(err, smartqueue.ErrServerUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return ErrCodeUnavailable
	default:
		return ErrCodeInternal
	}
}

func decode(frame *Frame, v any) *Frame {
	if err := json.Unmarshal(frame.Data, v); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}
	return nil
}

func parseToken(frame *Frame) (id.TokenID, *Frame) {
	var req TokenRequest
	if ef := decode(frame, &req); ef != nil {
		return id.Nil, ef
	}
	tokenID, err := id.ParseTokenID(req.TokenID)
	if err != nil {
		return id.Nil, NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid token ID: "+err.Error())
	}
	return tokenID, nil
}

func parseQueue(frame *Frame) (id.QueueID, *Frame) {
	var req QueueRequest
	if ef := decode(frame, &req); ef != nil {
		return id.Nil, ef
	}
	queueID, err := id.ParseQueueID(req.QueueID)
	if err != nil {
		return id.Nil, NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid queue ID: "+err.Error())
	}
	return queueID, nil
}

// ── Tokens ──────────────────────────────────────────

func (h *Handler) handleTokenAdmit(ctx context.Context, frame *Frame) *Frame {
	var req engine.AdmitRequest
	if ef := decode(frame, &req); ef != nil {
		return ef
	}
	if req.QueueID.IsNil() {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "queue_id is required")
	}
	tok, err := h.eng.AdmitToken(ctx, req)
	if err != nil {
		return errorFrame(frame.ID, "admit failed", err)
	}
	return mustResponseFrame(frame.ID, tok)
}

func (h *Handler) handleTokenGet(ctx context.Context, frame *Frame) *Frame {
	tokenID, ef := parseToken(frame)
	if ef != nil {
		return ef
	}
	tok, err := h.eng.GetToken(ctx, tokenID)
	if err != nil {
		return errorFrame(frame.ID, "get failed", err)
	}
	return mustResponseFrame(frame.ID, tok)
}

func (h *Handler) handleTokenByNumber(ctx context.Context, frame *Frame) *Frame {
	var req TokenByNumberRequest
	if ef := decode(frame, &req); ef != nil {
		return ef
	}
	tok, err := h.eng.GetTokenByNumber(ctx, req.Number)
	if err != nil {
		return errorFrame(frame.ID, "lookup failed", err)
	}
	return mustResponseFrame(frame.ID, tok)
}

func (h *Handler) handleTokenList(ctx context.Context, frame *Frame, conn *Connection) *Frame {
	var req TokenListRequest
	if len(frame.Data) > 0 {
		if ef := decode(frame, &req); ef != nil {
			return ef
		}
	}

	var ident Identity
	if conn.Identity != nil {
		ident = *conn.Identity
	}
	userID := ident.UserID
	if req.UserID != "" {
		parsed, err := id.ParseUserID(req.UserID)
		if err != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid user ID: "+err.Error())
		}
		if !ident.Role.IsStaff() && parsed.String() != ident.UserID.String() {
			return NewErrorFrame(frame.ID, ErrCodeForbidden, "cannot list another user's tokens")
		}
		userID = parsed
	}
	if userID.IsNil() {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "user_id is required")
	}

	tokens, err := h.eng.UserTokens(ctx, userID)
	if err != nil {
		return errorFrame(frame.ID, "list failed", err)
	}
	return mustResponseFrame(frame.ID, tokens)
}

func (h *Handler) handleTokenCancel(ctx context.Context, frame *Frame) *Frame {
	tokenID, ef := parseToken(frame)
	if ef != nil {
		return ef
	}
	tok, err := h.eng.CancelToken(ctx, tokenID)
	if err != nil {
		return errorFrame(frame.ID, "cancel failed", err)
	}
	return mustResponseFrame(frame.ID, tok)
}

func (h *Handler) handleTokenStart(ctx context.Context, frame *Frame) *Frame {
	tokenID, ef := parseToken(frame)
	if ef != nil {
		return ef
	}
	tok, err := h.eng.StartService(ctx, tokenID)
	if err != nil {
		return errorFrame(frame.ID, "start failed", err)
	}
	return mustResponseFrame(frame.ID, tok)
}

func (h *Handler) handleTokenComplete(ctx context.Context, frame *Frame) *Frame {
	tokenID, ef := parseToken(frame)
	if ef != nil {
		return ef
	}
	tok, rec, err := h.eng.CompleteService(ctx, tokenID)
	if err != nil {
		return errorFrame(frame.ID, "complete failed", err)
	}
	return mustResponseFrame(frame.ID, CompleteResponse{Token: tok, Record: rec})
}

func (h *Handler) handleTokenExpire(ctx context.Context, frame *Frame) *Frame {
	tokenID, ef := parseToken(frame)
	if ef != nil {
		return ef
	}
	tok, err := h.eng.ExpireToken(ctx, tokenID)
	if err != nil {
		return errorFrame(frame.ID, "expire failed", err)
	}
	return mustResponseFrame(frame.ID, tok)
}

// ── Queues ──────────────────────────────────────────

func (h *Handler) handleCallNext(ctx context.Context, frame *Frame) *Frame {
	var req CallNextRequest
	if ef := decode(frame, &req); ef != nil {
		return ef
	}
	queueID, err := id.ParseQueueID(req.QueueID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid queue ID: "+err.Error())
	}
	serverID := id.Nil
	if req.ServerID != "" {
		if serverID, err = id.ParseStaffID(req.ServerID); err != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid server ID: "+err.Error())
		}
	}

	tok, err := h.eng.CallNext(ctx, queueID, serverID)
	if err != nil {
		return errorFrame(frame.ID, "call next failed", err)
	}
	return mustResponseFrame(frame.ID, CallNextResponse{Empty: tok == nil, Token: tok})
}

func (h *Handler) handleQueueGet(ctx context.Context, frame *Frame) *Frame {
	queueID, ef := parseQueue(frame)
	if ef != nil {
		return ef
	}
	q, err := h.eng.GetQueue(ctx, queueID)
	if err != nil {
		return errorFrame(frame.ID, "get failed", err)
	}
	return mustResponseFrame(frame.ID, q)
}

func (h *Handler) handleQueueList(ctx context.Context, frame *Frame) *Frame {
	var req QueueListRequest
	if len(frame.Data) > 0 {
		if ef := decode(frame, &req); ef != nil {
			return ef
		}
	}
	queues, err := h.eng.ListQueues(ctx, queue.ListOpts{
		Domain:     smartqueue.Domain(req.Domain),
		ActiveOnly: req.ActiveOnly,
	})
	if err != nil {
		return errorFrame(frame.ID, "list failed", err)
	}
	return mustResponseFrame(frame.ID, queues)
}

func (h *Handler) handleQueuePositions(ctx context.Context, frame *Frame) *Frame {
	queueID, ef := parseQueue(frame)
	if ef != nil {
		return ef
	}
	positions, err := h.eng.QueuePositions(ctx, queueID)
	if err != nil {
		return errorFrame(frame.ID, "positions failed", err)
	}
	return mustResponseFrame(frame.ID, PositionsResponse{
		QueueID:   queueID.String(),
		Positions: positions,
	})
}

func (h *Handler) handleQueueAnalytics(ctx context.Context, frame *Frame) *Frame {
	var req AnalyticsRequest
	if ef := decode(frame, &req); ef != nil {
		return ef
	}
	queueID, err := id.ParseQueueID(req.QueueID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid queue ID: "+err.Error())
	}
	day := h.eng.Runtime().Now()
	if req.Day != "" {
		if day, err = time.Parse(time.DateOnly, req.Day); err != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid day: "+err.Error())
		}
	}

	a, err := h.eng.QueueAnalytics(ctx, queueID, day)
	if err != nil {
		return errorFrame(frame.ID, "analytics failed", err)
	}
	return mustResponseFrame(frame.ID, a)
}

func (h *Handler) handlePredict(ctx context.Context, frame *Frame) *Frame {
	queueID, ef := parseQueue(frame)
	if ef != nil {
		return ef
	}
	p, err := h.eng.PredictWait(ctx, queueID)
	if err != nil {
		return errorFrame(frame.ID, "predict failed", err)
	}
	return mustResponseFrame(frame.ID, p)
}

// ── Subscriptions ───────────────────────────────────

func (h *Handler) handleSubscribe(frame *Frame, conn *Connection) *Frame {
	var req SubscribeRequest
	if ef := decode(frame, &req); ef != nil {
		return ef
	}
	if err := stream.ValidateTopic(req.Channel); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, err.Error())
	}

	if !conn.Identity.CanFollow(req.Channel) {
		return NewErrorFrame(frame.ID, ErrCodeForbidden, "cannot subscribe to another user")
	}

	// Actual subscription is done in the server loop after response is sent.
	return mustResponseFrame(frame.ID, SubscribeResponse{Channel: req.Channel, Status: "subscribed"})
}

func (h *Handler) handleUnsubscribe(frame *Frame) *Frame {
	var req UnsubscribeRequest
	if ef := decode(frame, &req); ef != nil {
		return ef
	}

	// Actual unsubscription is done in the server loop after response is sent.
	return mustResponseFrame(frame.ID, SubscribeResponse{Channel: req.Channel, Status: "unsubscribed"})
}

// Stats summarises the transport and the engine.
type Stats struct {
	Broker       stream.BrokerStats `json:"broker"`
	Connections  int                `json:"connections"`
	ActiveQueues []string           `json:"active_queues"`
	ModelVersion string             `json:"model_version,omitempty"`
}

func (h *Handler) handleStats(frame *Frame) *Frame {
	stats := Stats{ActiveQueues: []string{}}
	if h.broker != nil {
		stats.Broker = h.broker.Stats()
	}
	if h.conns != nil {
		stats.Connections = h.conns.Count()
	}
	if h.eng != nil {
		for _, qid := range h.eng.Lines().QueueIDs() {
			stats.ActiveQueues = append(stats.ActiveQueues, qid.String())
		}
		if m := h.eng.Estimator().Model(); m != nil {
			stats.ModelVersion = m.Version
		}
	}
	return mustResponseFrame(frame.ID, stats)
}
