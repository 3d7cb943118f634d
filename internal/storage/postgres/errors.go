package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xenking/ticket-admin/internal/domain/apperr"
)

// classify maps driver errors onto the application taxonomy. Errors that
// already carry a Kind, and errors it does not recognize, are returned as is.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.KindUnexpected {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if kind := kindOfCode(pgErr.Code); kind != nil {
			return fmt.Errorf("%s: %w: %s", op, kind, pgErr.Message)
		}
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, apperr.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func kindOfCode(code string) error {
	switch code {
	case pgerrcode.UniqueViolation:
		return apperr.ErrConflict
	case pgerrcode.ForeignKeyViolation,
		pgerrcode.NotNullViolation,
		pgerrcode.CheckViolation,
		pgerrcode.UndefinedTable,
		pgerrcode.UndefinedColumn,
		pgerrcode.DatatypeMismatch,
		pgerrcode.InvalidTextRepresentation,
		pgerrcode.NumericValueOutOfRange:
		return apperr.ErrDataIntegrity
	case pgerrcode.QueryCanceled, pgerrcode.LockNotAvailable:
		return apperr.ErrTimeout
	default:
		return nil
	}
}

// retryable reports whether a failed transaction can be run again from the
// start.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
}
