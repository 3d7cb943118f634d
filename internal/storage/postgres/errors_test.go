package postgres

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/ticket-admin/internal/domain/apperr"
)

func TestClassify(t *testing.T) {
	pg := func(code string) error {
		return &pgconn.PgError{Code: code, Message: "boom"}
	}

	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"unique", pg(pgerrcode.UniqueViolation), apperr.KindConflict},
		{"foreign key", pg(pgerrcode.ForeignKeyViolation), apperr.KindDataIntegrity},
		{"undefined column", pg(pgerrcode.UndefinedColumn), apperr.KindDataIntegrity},
		{"undefined table", pg(pgerrcode.UndefinedTable), apperr.KindDataIntegrity},
		{"check", pg(pgerrcode.CheckViolation), apperr.KindDataIntegrity},
		{"canceled", pg(pgerrcode.QueryCanceled), apperr.KindTimeout},
		{"lock", pg(pgerrcode.LockNotAvailable), apperr.KindTimeout},
		{"deadline", errors.Wrap(context.DeadlineExceeded, "query"), apperr.KindTimeout},
		{"other pg", pg(pgerrcode.DiskFull), apperr.KindUnexpected},
		{"plain", errors.New("connection reset"), apperr.KindUnexpected},
		{"already classified", &apperr.NotFoundError{Entity: "ticket", Key: "1"}, apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err, "op")
			require.Error(t, err)
			assert.Equal(t, tt.want, apperr.KindOf(err))
			assert.Contains(t, err.Error(), "op: ")
		})
	}

	assert.NoError(t, classify(nil, "op"))
}

func TestClassify_KeepsStockDetails(t *testing.T) {
	err := classify(&apperr.InsufficientStockError{ProductCode: "P1", Available: 1, Requested: 2}, "decrement")

	var stockErr *apperr.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 1, stockErr.Available)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&pgconn.PgError{Code: pgerrcode.SerializationFailure}))
	assert.True(t, retryable(errors.Wrap(&pgconn.PgError{Code: pgerrcode.DeadlockDetected}, "commit")))
	assert.False(t, retryable(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
	assert.False(t, retryable(errors.New("boom")))
}

func TestIdent(t *testing.T) {
	assert.Equal(t, `"producto"`, ident("producto"))
	assert.Equal(t, `"Precio unitario"`, ident("Precio unitario"))
	assert.Equal(t, `"a""b"`, ident(`a"b`))
}
