package session

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/ticket-admin/internal/domain/apperr"
	"github.com/xenking/ticket-admin/internal/domain/auth"
)

// Grant is the result of a successful login.
type Grant struct {
	Token     string
	ExpiresAt time.Time
	Subject   string
}

// Login exchanges operator credentials for a session token.
type Login struct {
	operators auth.OperatorRepository
	tokens    *TokenProvider
}

// NewLogin creates a Login service.
func NewLogin(operators auth.OperatorRepository, tokens *TokenProvider) *Login {
	return &Login{operators: operators, tokens: tokens}
}

// Login checks the password against the operator's bcrypt hash. Unknown users
// and wrong passwords are indistinguishable to the caller.
func (l *Login) Login(ctx context.Context, username, password string) (*Grant, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.Invalidf("username and password are required")
	}

	lg := zctx.From(ctx).With(zap.String("username", username))

	op, err := l.operators.FindByUsername(ctx, username)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		lg.Info("Login rejected", zap.String("reason", "unknown operator"))
		return nil, apperr.ErrUnauthorized
	case err != nil:
		return nil, errors.Wrap(err, "find operator")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		lg.Info("Login rejected", zap.String("reason", "wrong password"))
		return nil, apperr.ErrUnauthorized
	}

	token, expires, err := l.tokens.Issue(op.Username, []string{op.Role})
	if err != nil {
		return nil, err
	}
	lg.Info("Operator logged in")

	return &Grant{Token: token, ExpiresAt: expires, Subject: op.Username}, nil
}

// HashPassword returns the bcrypt hash stored for an operator password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(hash), nil
}
