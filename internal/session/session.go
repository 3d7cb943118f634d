// Package session authenticates admin callers. A credential is either an API
// key (looked up by its HMAC hash) or a signed session token issued by Login.
package session

import (
	"context"
	"strings"

	"github.com/xenking/ticket-admin/internal/domain/auth"
)

// Provider resolves a raw credential into a Session. Implementations return an
// error matching apperr.ErrUnauthorized when the credential is not accepted.
type Provider interface {
	Session(ctx context.Context, credential string) (*auth.Session, error)
}

type ctxKey struct{}

// With returns a copy of ctx carrying s.
func With(ctx context.Context, s *auth.Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// From returns the session stored in ctx, if any.
func From(ctx context.Context) (*auth.Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*auth.Session)
	return s, ok && s != nil
}

// looksLikeToken reports whether credential has the three dot-separated
// segments of a compact JWS.
func looksLikeToken(credential string) bool {
	return strings.Count(credential, ".") == 2
}
