package engine

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/queue"
)

// Restore rebuilds every queue line from the store and moves the number
// sequence past the highest number in use. Call it once before serving.
func (eng *Engine) Restore(ctx context.Context) error {
	queues, err := eng.store.ListQueues(ctx, queue.ListOpts{})
	if err != nil {
		return fmt.Errorf("restore: list queues: %w", err)
	}

	maxSeq, err := eng.store.MaxSeq(ctx)
	if err != nil {
		return fmt.Errorf("restore: max seq: %w", err)
	}
	eng.seq.AdvanceTo(maxSeq)

	g, gctx := errgroup.WithContext(ctx)
	if eng.restoreConcurrency > 0 {
		g.SetLimit(eng.restoreConcurrency)
	}
	for _, q := range queues {
		g.Go(func() error {
			n, err := eng.restoreQueue(gctx, q)
			if err != nil {
				return fmt.Errorf("restore queue %s: %w", q.ID, err)
			}
			if n > 0 {
				eng.logger.Info("queue line restored",
					slog.String("queue_id", q.ID.String()),
					slog.Int("tokens", n),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// restoreQueue opens q's line and, unless another caller already did,
// fills it with the queue's active tokens and rewrites any stored position
// that disagrees with the line. The tokens are read under the line lock.
// It returns the number of tokens placed.
func (eng *Engine) restoreQueue(ctx context.Context, q *queue.Queue) (int, error) {
	n := 0
	_, err := eng.lines.Load(q.LineConfig(), func(l *queue.Line) error {
		tokens, err := eng.store.ListActiveTokens(ctx, q.ID)
		if err != nil {
			return err
		}
		stored := make(map[string]int, len(tokens))
		for _, t := range tokens {
			eng.seq.AdvanceTo(t.Seq)
			l.Restore(queue.Entry{
				TokenID: t.ID,
				Key:     queue.Key{Rank: t.Priority.Rank(), CreatedAt: t.CreatedAt, Seq: t.Seq},
			}, t.Called)
			if t.Position != nil {
				stored[t.ID.String()] = *t.Position
			}
		}
		positions, err := l.Positions()
		if err != nil {
			return err
		}
		eng.syncPositions(ctx, l, stored, positions, id.Nil)
		n = len(tokens)
		return nil
	})
	return n, err
}
