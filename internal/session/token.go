package session

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/ticket-admin/internal/domain/apperr"
	"github.com/xenking/ticket-admin/internal/domain/auth"
)

var _ Provider = (*TokenProvider)(nil)

type claims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes,omitempty"`
}

// TokenProvider issues and verifies HS256 session tokens.
type TokenProvider struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenProvider creates a TokenProvider. Tokens expire after ttl.
func NewTokenProvider(key []byte, issuer string, ttl time.Duration) *TokenProvider {
	return &TokenProvider{
		key:    key,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for subject.
func (p *TokenProvider) Issue(subject string, scopes []string) (string, time.Time, error) {
	now := p.now()
	expires := now.Add(p.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Scopes: scopes,
	})
	signed, err := token.SignedString(p.key)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}
	return signed, expires, nil
}

// Session verifies the signature, issuer and expiry of a token.
func (p *TokenProvider) Session(_ context.Context, credential string) (*auth.Session, error) {
	var c claims
	_, err := jwt.ParseWithClaims(credential, &c,
		func(*jwt.Token) (any, error) { return p.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, errors.Wrap(apperr.ErrUnauthorized, err.Error())
	}
	if c.Subject == "" {
		return nil, apperr.ErrUnauthorized
	}

	s := &auth.Session{
		Subject: c.Subject,
		Method:  auth.MethodToken,
		Scopes:  c.Scopes,
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s, nil
}
