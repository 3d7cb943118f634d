package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// createSession logs an operator in and returns a bearer token.
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := decodeLogin(w, r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	grant, err := h.login.Login(ctx, body.Username, body.Password)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeData(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("token", func(e *jx.Encoder) { e.Str(grant.Token) })
			e.Field("tokenType", func(e *jx.Encoder) { e.Str("Bearer") })
			e.Field("subject", func(e *jx.Encoder) { e.Str(grant.Subject) })
			e.Field("expiresAt", func(e *jx.Encoder) { encodeValue(e, grant.ExpiresAt) })
		})
	})
}
