package session

import (
	"context"

	"github.com/xenking/ticket-admin/internal/domain/apperr"
	"github.com/xenking/ticket-admin/internal/domain/auth"
)

var _ Provider = Chain{}

// Chain routes token-shaped credentials to Tokens and everything else to
// Keys. A nil provider rejects its credentials.
type Chain struct {
	Tokens Provider
	Keys   Provider
}

func (c Chain) Session(ctx context.Context, credential string) (*auth.Session, error) {
	next := c.Keys
	if looksLikeToken(credential) {
		next = c.Tokens
	}
	if next == nil {
		return nil, apperr.ErrUnauthorized
	}
	return next.Session(ctx, credential)
}
