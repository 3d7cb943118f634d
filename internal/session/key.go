package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/go-faster/errors"

	"github.com/xenking/ticket-admin/internal/domain/apperr"
	"github.com/xenking/ticket-admin/internal/domain/auth"
)

var _ Provider = (*KeyProvider)(nil)

// KeyProvider authenticates API keys stored as HMAC-SHA256 hashes.
type KeyProvider struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewKeyProvider creates a KeyProvider with the given API key repository and
// HMAC pepper.
func NewKeyProvider(apikeys auth.Repository, pepper []byte) *KeyProvider {
	return &KeyProvider{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Hash returns the hex HMAC-SHA256 of key, the form stored in api_keys.
func (p *KeyProvider) Hash(key string) string {
	return hex.EncodeToString(p.sum(key))
}

func (p *KeyProvider) sum(key string) []byte {
	mac := hmac.New(sha256.New, p.pepper)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// Session looks the key up by hash and compares the stored hash in constant
// time.
func (p *KeyProvider) Session(ctx context.Context, credential string) (*auth.Session, error) {
	if credential == "" {
		return nil, apperr.ErrUnauthorized
	}
	hash := p.sum(credential)

	info, err := p.apikeys.FindByHash(ctx, hex.EncodeToString(hash))
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return nil, apperr.ErrUnauthorized
	case err != nil:
		return nil, errors.Wrap(err, "find api key")
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, apperr.ErrUnauthorized
	}

	return &auth.Session{
		Subject: info.Name,
		Method:  auth.MethodAPIKey,
		Scopes:  info.Scopes,
	}, nil
}
