package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// listBatch is the ZREVRANGE window used when a filter may discard members.
const listBatch = 256

// CreateToken stores the token and indexes it by number, user and queue.
func (s *Store) CreateToken(ctx context.Context, t *token.Token) error {
	tID := t.ID.String()
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("smartqueue/redis: encode token: %w", err)
	}

	ok, err := s.client.SetNX(ctx, tokenKey(tID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("smartqueue/redis: create token: %w", err)
	}
	if !ok {
		return smartqueue.ErrTokenAlreadyExists
	}
	if t.Number != "" {
		claimed, err := s.client.HSetNX(ctx, tokenNumbersKey, t.Number, tID).Result()
		if err != nil {
			return fmt.Errorf("smartqueue/redis: claim number: %w", err)
		}
		if !claimed {
			s.client.Del(ctx, tokenKey(tID))
			return smartqueue.ErrTokenAlreadyExists
		}
	}

	score := float64(t.Seq)
	created := createdScore(t)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, tokensKey, goredis.Z{Score: created, Member: tID})
	pipe.ZAdd(ctx, queueTokensKey(t.QueueID.String()), goredis.Z{Score: created, Member: tID})
	pipe.ZAdd(ctx, seqsKey, goredis.Z{Score: score, Member: tID})
	pipe.ZAdd(ctx, userTokensKey(t.UserID.String()), goredis.Z{Score: score, Member: tID})
	if t.State == token.StateActive {
		pipe.ZAdd(ctx, activeKey(t.QueueID.String()), goredis.Z{Score: score, Member: tID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("smartqueue/redis: index token: %w", err)
	}
	return nil
}

// GetToken retrieves a token by ID.
func (s *Store) GetToken(ctx context.Context, tokenID id.TokenID) (*token.Token, error) {
	var t token.Token
	if err := s.getJSON(ctx, tokenKey(tokenID.String()), &t, smartqueue.ErrTokenNotFound); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTokenByNumber resolves the number index and loads the token.
func (s *Store) GetTokenByNumber(ctx context.Context, number string) (*token.Token, error) {
	tID, err := s.client.HGet(ctx, tokenNumbersKey, number).Result()
	if isRedisNil(err) {
		return nil, smartqueue.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("smartqueue/redis: get token by number: %w", err)
	}
	var t token.Token
	if err := s.getJSON(ctx, tokenKey(tID), &t, smartqueue.ErrTokenNotFound); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateToken overwrites an existing token and moves it in or out of its
// queue's active set.
func (s *Store) UpdateToken(ctx context.Context, t *token.Token) error {
	tID := t.ID.String()
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("smartqueue/redis: encode token: %w", err)
	}
	ok, err := s.client.SetXX(ctx, tokenKey(tID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("smartqueue/redis: update token: %w", err)
	}
	if !ok {
		return smartqueue.ErrTokenNotFound
	}

	ak := activeKey(t.QueueID.String())
	if t.State == token.StateActive {
		err = s.client.ZAdd(ctx, ak, goredis.Z{Score: float64(t.Seq), Member: tID}).Err()
	} else {
		err = s.client.ZRem(ctx, ak, tID).Err()
	}
	if err != nil {
		return fmt.Errorf("smartqueue/redis: reindex token: %w", err)
	}
	return nil
}

// ListActiveTokens returns the active tokens of a queue ordered by
// admission.
func (s *Store) ListActiveTokens(ctx context.Context, queueID id.QueueID) ([]*token.Token, error) {
	tokens, err := s.tokensIn(ctx, activeKey(queueID.String()))
	if err != nil {
		return nil, err
	}
	sort.Slice(tokens, func(i, k int) bool {
		if !tokens[i].CreatedAt.Equal(tokens[k].CreatedAt) {
			return tokens[i].CreatedAt.Before(tokens[k].CreatedAt)
		}
		return tokens[i].Seq < tokens[k].Seq
	})
	return tokens, nil
}

// ListTokens returns tokens matching opts, newest first. Unfiltered pages
// come straight from ZREVRANGE; state filters walk the set in batches until
// the page is full.
func (s *Store) ListTokens(ctx context.Context, opts token.ListOpts) ([]*token.Token, error) {
	set := tokensKey
	if !opts.QueueID.IsNil() {
		set = queueTokensKey(opts.QueueID.String())
	}

	if opts.State == "" {
		stop := int64(-1)
		if opts.Limit > 0 {
			stop = int64(opts.Offset + opts.Limit - 1)
		}
		return s.newestIn(ctx, set, int64(opts.Offset), stop)
	}

	var matched []*token.Token
	for start := int64(0); ; start += listBatch {
		batch, err := s.newestIn(ctx, set, start, start+listBatch-1)
		if err != nil {
			return nil, err
		}
		for _, t := range batch {
			if t.State == opts.State {
				matched = append(matched, t)
			}
		}
		if len(batch) < listBatch || (opts.Limit > 0 && len(matched) >= opts.Offset+opts.Limit) {
			break
		}
	}
	return page(matched, opts.Offset, opts.Limit), nil
}

// ListUserTokens returns a user's tokens, newest first.
func (s *Store) ListUserTokens(ctx context.Context, userID id.UserID) ([]*token.Token, error) {
	tokens, err := s.tokensIn(ctx, userTokensKey(userID.String()))
	if err != nil {
		return nil, err
	}
	sortNewestFirst(tokens)
	return tokens, nil
}

func (s *Store) tokensIn(ctx context.Context, set string) ([]*token.Token, error) {
	ids, err := s.client.ZRange(ctx, set, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("smartqueue/redis: list %s: %w", set, err)
	}
	return s.load(ctx, ids)
}

// MaxSeq returns the highest stored sequence number.
func (s *Store) MaxSeq(ctx context.Context) (uint64, error) {
	top, err := s.client.ZRevRangeWithScores(ctx, seqsKey, 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("smartqueue/redis: max seq: %w", err)
	}
	if len(top) == 0 {
		return 0, nil
	}
	return uint64(top[0].Score), nil
}

// newestIn loads the members of a creation-time set between start and stop,
// newest first. Members sharing a microsecond are ordered by seq.
func (s *Store) newestIn(ctx context.Context, set string, start, stop int64) ([]*token.Token, error) {
	ids, err := s.client.ZRevRange(ctx, set, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("smartqueue/redis: list %s: %w", set, err)
	}
	tokens, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(tokens)
	return tokens, nil
}

func (s *Store) load(ctx context.Context, ids []string) ([]*token.Token, error) {
	keys := make([]string, len(ids))
	for i, tID := range ids {
		keys[i] = tokenKey(tID)
	}
	return loadAll[token.Token](ctx, s.client, keys)
}

// createdScore is the creation time in microseconds, exact in a float64.
func createdScore(t *token.Token) float64 { return float64(t.CreatedAt.UnixMicro()) }

func sortNewestFirst(ts []*token.Token) {
	sort.Slice(ts, func(i, k int) bool {
		if !ts[i].CreatedAt.Equal(ts[k].CreatedAt) {
			return ts[i].CreatedAt.After(ts[k].CreatedAt)
		}
		return ts[i].Seq > ts[k].Seq
	})
}

func isRedisNil(err error) bool { return errors.Is(err, goredis.Nil) }
