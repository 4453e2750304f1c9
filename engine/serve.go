package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/history"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	mw "github.com/Jiyabhaviksadaria/smartqueue/middleware"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// CallNext calls the first waiting token of a queue and binds it to
// serverID. It returns nil, nil when nobody is waiting. A nil serverID
// resolves to the queue's bound server; unbound queues may then be called
// anonymously.
func (eng *Engine) CallNext(ctx context.Context, queueID id.QueueID, serverID id.StaffID) (*token.Token, error) {
	var (
		tok       *token.Token
		positions map[string]int
	)
	op := &mw.Op{Name: "call_next", QueueID: queueID.String(), StaffOnly: true}
	err := eng.run(ctx, op, func(ctx context.Context) error {
		q, err := eng.line(ctx, queueID)
		if err != nil {
			return err
		}
		server, err := eng.resolveServer(ctx, q, serverID)
		if err != nil {
			return err
		}
		return eng.lines.Do(queueID, func(l *queue.Line) error {
			entry, ok := l.Next()
			if !ok {
				return nil
			}
			before, err := l.Positions()
			if err != nil {
				return err
			}
			t, err := eng.store.GetToken(ctx, entry.TokenID)
			if err != nil {
				return err
			}
			if err := t.Call(eng.rt.Now(), server); err != nil {
				return err
			}
			if err := l.MarkCalled(t.ID); err != nil {
				return err
			}
			after, err := l.Positions()
			if err != nil {
				return err
			}
			if err := eng.store.UpdateToken(ctx, t); err != nil {
				l.Remove(t.ID)
				l.Restore(entry, false)
				return fmt.Errorf("persist token: %w", err)
			}
			eng.syncPositions(ctx, l, before, after, t.ID)
			tok, positions = t, after
			return nil
		})
	})
	if err != nil || tok == nil {
		return nil, err
	}

	eng.emit(ctx, tok, token.ActionCall, token.StateActive, positions)
	eng.extensions.EmitTokenCalled(ctx, tok, tok.ServerID)
	return tok, nil
}

// resolveServer returns the staff member calling for q. Bound queues only
// accept their own available server.
func (eng *Engine) resolveServer(ctx context.Context, q *queue.Queue, serverID id.StaffID) (id.StaffID, error) {
	if serverID.IsNil() {
		if !q.Bound() {
			n, err := eng.activeServers(ctx, q)
			if err != nil {
				return id.Nil, err
			}
			if n == 0 {
				eng.logger.Debug("calling without an available server", slog.String("queue_id", q.ID.String()))
			}
			return id.Nil, nil
		}
		serverID = q.ServerID
	}
	s, err := eng.store.GetStaff(ctx, serverID)
	if errors.Is(err, smartqueue.ErrStaffNotFound) {
		return id.Nil, fmt.Errorf("%w: %s is not registered", smartqueue.ErrServerUnavailable, serverID)
	}
	if err != nil {
		return id.Nil, err
	}
	if !s.Serves(q.Domain, q.Department, q.ServerID) {
		return id.Nil, fmt.Errorf("%w: %s cannot serve queue %s", smartqueue.ErrServerUnavailable, serverID, q.ID)
	}
	return s.ID, nil
}

// StartService begins serving a called token.
func (eng *Engine) StartService(ctx context.Context, tokenID id.TokenID) (*token.Token, error) {
	tok, _, _, err := eng.transition(ctx, tokenID, token.ActionStart, true)
	if err != nil {
		return nil, err
	}
	eng.extensions.EmitServiceStarted(ctx, tok)
	return tok, nil
}

// CompleteService finishes serving a token and records its history.
func (eng *Engine) CompleteService(ctx context.Context, tokenID id.TokenID) (*token.Token, *history.Record, error) {
	tok, q, _, err := eng.transition(ctx, tokenID, token.ActionComplete, true)
	if err != nil {
		return nil, nil, err
	}
	// The token is already completed; a failed append only costs a
	// training sample.
	rec, err := eng.recorder.Record(ctx, tok, q, eng.rt.Now())
	if err != nil {
		eng.logger.Error("failed to record service history",
			slog.String("token_id", tok.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	eng.extensions.EmitServiceCompleted(ctx, tok, rec)
	return tok, rec, nil
}

// CancelToken withdraws an active or in-service token.
func (eng *Engine) CancelToken(ctx context.Context, tokenID id.TokenID) (*token.Token, error) {
	tok, from, err := eng.cancel(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	eng.extensions.EmitTokenCancelled(ctx, tok, from)
	return tok, nil
}

func (eng *Engine) cancel(ctx context.Context, tokenID id.TokenID) (*token.Token, token.State, error) {
	cur, err := eng.store.GetToken(ctx, tokenID)
	if err != nil {
		return nil, "", err
	}
	if err := eng.authorizeOwner(ctx, cur); err != nil {
		return nil, "", err
	}
	tok, _, from, err := eng.transition(ctx, tokenID, token.ActionCancel, false)
	if err != nil {
		return nil, "", err
	}
	return tok, from, nil
}

// authorizeOwner lets staff cancel any token and other callers only their
// own.
func (eng *Engine) authorizeOwner(ctx context.Context, t *token.Token) error {
	a, ok := smartqueue.ActorFromContext(ctx)
	if !ok || a.Staff() {
		return nil
	}
	if a.UserID.String() != t.UserID.String() {
		return fmt.Errorf("cancel token %s: %w", t.ID, smartqueue.ErrForbidden)
	}
	return nil
}

// ExpireToken expires a called token that never started service.
func (eng *Engine) ExpireToken(ctx context.Context, tokenID id.TokenID) (*token.Token, error) {
	tok, _, _, err := eng.transition(ctx, tokenID, token.ActionExpire, true)
	if err != nil {
		return nil, err
	}
	eng.extensions.EmitTokenExpired(ctx, tok)
	return tok, nil
}

// ExpireOverdue expires every called token whose grace period has passed
// and returns how many it expired.
func (eng *Engine) ExpireOverdue(ctx context.Context) (int, error) {
	grace := eng.rt.Config().ExpiryGrace
	expired := 0
	var errs []error
	for _, queueID := range eng.lines.QueueIDs() {
		var overdue []id.TokenID
		err := eng.lines.Do(queueID, func(l *queue.Line) error {
			if l.PositionsStale() {
				positions, err := l.Positions()
				if err != nil {
					return err
				}
				eng.syncPositions(ctx, l, nil, positions, id.Nil)
			}
			now := eng.rt.Now()
			for _, tokenID := range l.CalledTokens() {
				t, err := eng.store.GetToken(ctx, tokenID)
				if err != nil {
					return err
				}
				if t.Overdue(now, grace) {
					overdue = append(overdue, tokenID)
				}
			}
			return nil
		})
		if err != nil && !errors.Is(err, smartqueue.ErrQueueNotFound) {
			errs = append(errs, err)
			continue
		}
		for _, tokenID := range overdue {
			_, err := eng.ExpireToken(ctx, tokenID)
			switch {
			case err == nil:
				expired++
			case errors.Is(err, smartqueue.ErrInvalidTransition):
				// Service started after the scan.
			default:
				errs = append(errs, err)
			}
		}
	}
	if expired > 0 {
		eng.logger.Info("expired overdue tokens", slog.Int("count", expired))
	}
	return expired, errors.Join(errs...)
}

// transition applies a lifecycle action to a token inside its queue's
// critical section, removes it from the line when it leaves the line,
// persists it and emits the status change.
func (eng *Engine) transition(ctx context.Context, tokenID id.TokenID, action token.Action, staffOnly bool) (*token.Token, *queue.Queue, token.State, error) {
	var (
		tok       *token.Token
		q         *queue.Queue
		from      token.State
		positions map[string]int
	)
	op := &mw.Op{Name: string(action), TokenID: tokenID.String(), StaffOnly: staffOnly}
	err := eng.run(ctx, op, func(ctx context.Context) error {
		cur, err := eng.store.GetToken(ctx, tokenID)
		if err != nil {
			return err
		}
		op.QueueID = cur.QueueID.String()
		q, err = eng.line(ctx, cur.QueueID)
		if err != nil {
			return err
		}
		return eng.lines.Do(cur.QueueID, func(l *queue.Line) error {
			// Re-read under the lock; the token may have moved since.
			t, err := eng.store.GetToken(ctx, tokenID)
			if err != nil {
				return err
			}
			from = t.State
			if err := apply(t, action, eng.rt.Now()); err != nil {
				return err
			}

			before, err := l.Positions()
			if err != nil {
				return err
			}
			var (
				entry   queue.Entry
				called  bool
				removed bool
			)
			if !t.Queued() {
				entry, called, _ = l.Entry(t.ID)
				removed = l.Remove(t.ID)
			}
			after, err := l.Positions()
			if err != nil {
				return err
			}

			if err := eng.store.UpdateToken(ctx, t); err != nil {
				if removed {
					l.Restore(entry, called)
				}
				return fmt.Errorf("persist token: %w", err)
			}
			eng.syncPositions(ctx, l, before, after, t.ID)
			tok, positions = t, after
			return nil
		})
	})
	if err != nil {
		return nil, nil, "", err
	}

	eng.emit(ctx, tok, action, from, positions)
	return tok, q, from, nil
}

func apply(t *token.Token, action token.Action, now time.Time) error {
	switch action {
	case token.ActionStart:
		return t.StartService(now)
	case token.ActionComplete:
		return t.Complete(now)
	case token.ActionCancel:
		return t.Cancel(now)
	case token.ActionExpire:
		return t.Expire(now)
	default:
		return fmt.Errorf("engine: unsupported action %q", action)
	}
}
