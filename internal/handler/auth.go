package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/ticket-admin/internal/domain/apperr"
	"github.com/xenking/ticket-admin/internal/session"
)

// credential returns the bearer token, or the api_key header when no
// Authorization header is sent.
func credential(r *http.Request) string {
	if v := r.Header.Get("Authorization"); v != "" {
		scheme, token, ok := strings.Cut(v, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.Header.Get("api_key")
}

// authenticated resolves the caller's session before next runs; requests
// without a valid session never reach the data layer.
func (h *Handler) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		cred := credential(r)
		if cred == "" {
			writeError(ctx, w, apperr.ErrUnauthorized)
			return
		}
		s, err := h.sessions.Session(ctx, cred)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindUnauthorized {
				zctx.From(ctx).Info("Session rejected", zap.Error(err))
			}
			writeError(ctx, w, err)
			return
		}

		next(w, r.WithContext(session.With(ctx, s)))
	})
}
