package engine

import (
	"context"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue/estimator"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	mw "github.com/Jiyabhaviksadaria/smartqueue/middleware"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// GetToken returns a token.
func (eng *Engine) GetToken(ctx context.Context, tokenID id.TokenID) (*token.Token, error) {
	return eng.store.GetToken(ctx, tokenID)
}

// GetTokenByNumber returns a token by its display number.
func (eng *Engine) GetTokenByNumber(ctx context.Context, number string) (*token.Token, error) {
	return eng.store.GetTokenByNumber(ctx, number)
}

// UserTokens returns a user's tokens, newest first.
func (eng *Engine) UserTokens(ctx context.Context, userID id.UserID) ([]*token.Token, error) {
	return eng.store.ListUserTokens(ctx, userID)
}

// QueuePositions returns the current position of every token in a queue's
// line, keyed by token ID.
func (eng *Engine) QueuePositions(ctx context.Context, queueID id.QueueID) (map[string]int, error) {
	if _, err := eng.line(ctx, queueID); err != nil {
		return nil, err
	}
	var positions map[string]int
	err := eng.lines.Do(queueID, func(l *queue.Line) error {
		var err error
		positions, err = l.Positions()
		return err
	})
	return positions, err
}

// PredictWait estimates the wait of a token joining the queue now.
func (eng *Engine) PredictWait(ctx context.Context, queueID id.QueueID) (estimator.Prediction, error) {
	q, err := eng.line(ctx, queueID)
	if err != nil {
		return estimator.Prediction{}, err
	}
	servers, err := eng.activeServers(ctx, q)
	if err != nil {
		return estimator.Prediction{}, err
	}
	waiting := 0
	_ = eng.lines.Do(queueID, func(l *queue.Line) error { //nolint:errcheck // line opened above
		waiting = l.Waiting()
		return nil
	})
	return eng.estimator.PredictFeatures(estimator.FeaturesAt(waiting, servers, eng.rt.Now())), nil
}

// Retrain refits the wait estimator from the full service history. It
// reads a history snapshot and never holds a queue line lock.
func (eng *Engine) Retrain(ctx context.Context) (estimator.TrainResult, error) {
	var res estimator.TrainResult
	op := &mw.Op{Name: "retrain"}
	err := eng.run(ctx, op, func(ctx context.Context) error {
		obs, err := eng.recorder.Observations(ctx)
		if err != nil {
			return err
		}
		res, err = eng.estimator.Train(obs)
		return err
	})
	if err != nil {
		return res, err
	}
	if res.Trained {
		eng.extensions.EmitModelTrained(ctx, res)
	}
	return res, nil
}

// Analytics summarises one day of a queue.
type Analytics struct {
	QueueID   id.QueueID `json:"queue_id"`
	QueueName string     `json:"queue_name"`
	Day       time.Time  `json:"day"`

	// TotalTokens counts tokens created on Day.
	TotalTokens int `json:"total_tokens"`

	// AvgWait and AvgService average the completed tokens, in minutes.
	AvgWait    float64 `json:"avg_wait"`
	AvgService float64 `json:"avg_service"`

	// PeakHour is the hour with the most tokens created; nil when none.
	PeakHour *int `json:"peak_hour,omitempty"`

	CurrentLength int `json:"current_length"`
}

// QueueAnalytics summarises the tokens a queue created on the UTC day
// containing day.
func (eng *Engine) QueueAnalytics(ctx context.Context, queueID id.QueueID, day time.Time) (*Analytics, error) {
	q, err := eng.line(ctx, queueID)
	if err != nil {
		return nil, err
	}
	tokens, err := eng.store.ListTokens(ctx, token.ListOpts{QueueID: queueID})
	if err != nil {
		return nil, err
	}

	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)
	a := &Analytics{
		QueueID:       q.ID,
		QueueName:     q.Name,
		Day:           start,
		CurrentLength: eng.lines.ActiveCount(queueID),
	}

	var (
		perHour         [24]int
		completed       int
		waitSum, svcSum int
	)
	for _, t := range tokens {
		created := t.CreatedAt.UTC()
		if created.Before(start) || !created.Before(end) {
			continue
		}
		a.TotalTokens++
		perHour[created.Hour()]++
		if t.State == token.StateCompleted && t.ActualWait != nil && t.ActualService != nil {
			completed++
			waitSum += *t.ActualWait
			svcSum += *t.ActualService
		}
	}
	if completed > 0 {
		a.AvgWait = float64(waitSum) / float64(completed)
		a.AvgService = float64(svcSum) / float64(completed)
	}
	if a.TotalTokens > 0 {
		peak := 0
		for h := 1; h < 24; h++ {
			if perHour[h] > perHour[peak] {
				peak = h
			}
		}
		a.PeakHour = &peak
	}
	return a, nil
}
