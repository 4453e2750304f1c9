package client

import (
	"context"

	"github.com/Jiyabhaviksadaria/smartqueue/dwp"
	"github.com/Jiyabhaviksadaria/smartqueue/engine"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

// Admit takes a token in a queue. An empty UserID admits the caller.
func (c *Client) Admit(ctx context.Context, req engine.AdmitRequest) (*token.Token, error) {
	return call[token.Token](ctx, c, dwp.MethodTokenAdmit, req)
}

// GetToken retrieves a token by ID.
func (c *Client) GetToken(ctx context.Context, tokenID string) (*token.Token, error) {
	return call[token.Token](ctx, c, dwp.MethodTokenGet, dwp.TokenRequest{TokenID: tokenID})
}

// TokenByNumber retrieves a token by its display number.
func (c *Client) TokenByNumber(ctx context.Context, number string) (*token.Token, error) {
	return call[token.Token](ctx, c, dwp.MethodTokenByNumber, dwp.TokenByNumberRequest{Number: number})
}

// MyTokens lists the caller's tokens, newest first.
func (c *Client) MyTokens(ctx context.Context) ([]*token.Token, error) {
	return c.UserTokens(ctx, "")
}

// UserTokens lists a user's tokens, newest first. Only staff may list
// other users.
func (c *Client) UserTokens(ctx context.Context, userID string) ([]*token.Token, error) {
	tokens, err := call[[]*token.Token](ctx, c, dwp.MethodTokenList, dwp.TokenListRequest{UserID: userID})
	if err != nil {
		return nil, err
	}
	return *tokens, nil
}

// CancelToken cancels a waiting or called token.
func (c *Client) CancelToken(ctx context.Context, tokenID string) (*token.Token, error) {
	return call[token.Token](ctx, c, dwp.MethodTokenCancel, dwp.TokenRequest{TokenID: tokenID})
}

// StartService starts serving a called token.
func (c *Client) StartService(ctx context.Context, tokenID string) (*token.Token, error) {
	return call[token.Token](ctx, c, dwp.MethodTokenStart, dwp.TokenRequest{TokenID: tokenID})
}

// CompleteService completes a token in service and returns it with its
// history record.
func (c *Client) CompleteService(ctx context.Context, tokenID string) (*dwp.CompleteResponse, error) {
	return call[dwp.CompleteResponse](ctx, c, dwp.MethodTokenComplete, dwp.TokenRequest{TokenID: tokenID})
}

// ExpireToken expires a called token whose holder never showed up.
func (c *Client) ExpireToken(ctx context.Context, tokenID string) (*token.Token, error) {
	return call[token.Token](ctx, c, dwp.MethodTokenExpire, dwp.TokenRequest{TokenID: tokenID})
}
