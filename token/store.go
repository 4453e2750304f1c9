package token

import (
	"context"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
)

// ListOpts controls pagination and filtering for token list queries.
type ListOpts struct {
	// Limit is the maximum number of tokens to return. Zero means no limit.
	Limit int
	// Offset is the number of tokens to skip.
	Offset int
	// QueueID filters by queue. Nil means all queues.
	QueueID id.QueueID
	// State filters by state. Empty means all states.
	State State
}

// Store defines the persistence contract for tokens.
type Store interface {
	// CreateToken persists a new token.
	CreateToken(ctx context.Context, t *Token) error

	// GetToken retrieves a token by ID.
	GetToken(ctx context.Context, tokenID id.TokenID) (*Token, error)

	// GetTokenByNumber retrieves a token by its display number.
	GetTokenByNumber(ctx context.Context, number string) (*Token, error)

	// UpdateToken persists changes to an existing token.
	UpdateToken(ctx context.Context, t *Token) error

	// ListActiveTokens returns the active tokens of a queue ordered by
	// admission (created_at, then seq).
	ListActiveTokens(ctx context.Context, queueID id.QueueID) ([]*Token, error)

	// ListTokens returns tokens matching opts, newest first.
	ListTokens(ctx context.Context, opts ListOpts) ([]*Token, error)

	// ListUserTokens returns a user's tokens, newest first.
	ListUserTokens(ctx context.Context, userID id.UserID) ([]*Token, error)

	// MaxSeq returns the highest sequence number of any stored token, or
	// zero when there are none.
	MaxSeq(ctx context.Context) (uint64, error)
}

// NumberAllocator hands out collision-free admission sequence numbers.
// Implementations must be safe for concurrent use.
type NumberAllocator interface {
	NextNumber(ctx context.Context, domain smartqueue.Domain) (uint64, error)
}
