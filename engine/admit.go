package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/estimator"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	mw "github.com/Jiyabhaviksadaria/smartqueue/middleware"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/staff"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// AdmitRequest carries the domain fields of an admission.
type AdmitRequest struct {
	QueueID id.QueueID `json:"queue_id"`

	// UserID owns the token. Defaults to the actor on the context.
	UserID id.UserID `json:"user_id,omitempty"`

	// Domain must match the queue's domain. Empty means the queue's.
	Domain smartqueue.Domain `json:"domain,omitempty"`

	SeverityScore    int        `json:"severity_score,omitempty"`
	Symptoms         string     `json:"symptoms,omitempty"`
	ConsultationType string     `json:"consultation_type,omitempty"`
	ServiceName      string     `json:"service_name,omitempty"`
	AppointmentAt    *time.Time `json:"appointment_at,omitempty"`

	// Emergency, VIP and Senior raise the priority. VIP and Senior are
	// also taken from the actor.
	Emergency bool `json:"emergency,omitempty"`
	VIP       bool `json:"vip,omitempty"`
	Senior    bool `json:"senior,omitempty"`

	// Priority is an explicit request, honoured only from staff callers.
	Priority token.Priority `json:"priority,omitempty"`
}

// AdmitToken admits a new token into a queue and returns it with its
// position and wait estimate.
func (eng *Engine) AdmitToken(ctx context.Context, req AdmitRequest) (*token.Token, error) {
	var (
		tok       *token.Token
		positions map[string]int
	)
	op := &mw.Op{Name: "admit_token", QueueID: req.QueueID.String()}
	err := eng.run(ctx, op, func(ctx context.Context) error {
		var err error
		tok, positions, err = eng.admit(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	eng.emit(ctx, tok, token.ActionAdmit, token.StateCreated, positions)
	eng.extensions.EmitTokenAdmitted(ctx, tok)
	return tok, nil
}

func (eng *Engine) admit(ctx context.Context, req AdmitRequest) (*token.Token, map[string]int, error) {
	q, err := eng.line(ctx, req.QueueID)
	if err != nil {
		return nil, nil, err
	}
	if !q.Active {
		return nil, nil, smartqueue.ErrQueueInactive
	}
	domain := req.Domain
	if domain == "" {
		domain = q.Domain
	}
	if !domain.Valid() || domain != q.Domain {
		return nil, nil, fmt.Errorf("%w: %q for %s queue", smartqueue.ErrInvalidDomain, domain, q.Domain)
	}
	if !eng.lines.Allow(q.ID) {
		return nil, nil, smartqueue.ErrAdmissionThrottled
	}

	actor, _ := smartqueue.ActorFromContext(ctx)
	userID := req.UserID
	if userID.IsNil() {
		userID = actor.UserID
	}

	servers, err := eng.activeServers(ctx, q)
	if err != nil {
		return nil, nil, err
	}

	seq, err := eng.numbers.NextNumber(ctx, domain)
	if err != nil {
		return nil, nil, fmt.Errorf("allocate token number: %w", err)
	}

	tok := token.New(q.ID, userID, domain, eng.rt.Now())
	tok.Seq = seq
	tok.Number = token.FormatNumber(domain, seq)
	tok.Priority = eng.policy.Derive(token.Classification{
		Domain:         domain,
		SeverityScore:  req.SeverityScore,
		EmergencyQueue: req.Emergency || q.Kind == queue.KindEmergency,
		VIP:            req.VIP || actor.VIP,
		Senior:         req.Senior || actor.Senior,
		Requested:      req.Priority,
		RequestedBy:    actor.Role,
	})
	if domain == smartqueue.DomainHealthcare {
		tok.SeverityScore = req.SeverityScore
	}
	tok.Symptoms = req.Symptoms
	tok.ConsultationType = req.ConsultationType
	tok.ServiceName = req.ServiceName
	if tok.ServiceName == "" {
		tok.ServiceName = q.ServiceName
	}
	tok.AppointmentAt = req.AppointmentAt

	var positions map[string]int
	err = eng.lines.Do(q.ID, func(l *queue.Line) error {
		before, err := l.Positions()
		if err != nil {
			return err
		}

		now := eng.rt.Now()
		queueLength := l.Waiting()
		entry := queue.Entry{
			TokenID: tok.ID,
			Key:     queue.Key{Rank: tok.Priority.Rank(), CreatedAt: now, Seq: seq},
		}
		if err := l.Insert(entry); err != nil {
			return err
		}

		pred := eng.estimator.PredictFeatures(estimator.FeaturesAt(queueLength, servers, now))
		tok.QueueLengthAtAdmission = queueLength
		tok.ActiveServersAtAdmission = servers
		if err := tok.Admit(now, token.Estimate{
			Minutes:      pred.Minutes,
			Confidence:   pred.Confidence,
			ModelVersion: pred.ModelVersion,
		}); err != nil {
			l.Remove(tok.ID)
			return err
		}

		positions, err = l.Positions()
		if err != nil {
			l.Remove(tok.ID)
			return err
		}
		tok.SetPosition(positions[tok.ID.String()])

		if err := eng.store.CreateToken(ctx, tok); err != nil {
			l.Remove(tok.ID)
			return fmt.Errorf("persist token: %w", err)
		}
		eng.syncPositions(ctx, l, before, positions, tok.ID)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return tok, positions, nil
}

func staffFilter(q *queue.Queue) staff.ListOpts {
	return staff.ListOpts{Domain: q.Domain, AvailableOnly: true}
}
