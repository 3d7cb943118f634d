package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/ticket-admin/internal/domain/apperr"
	"github.com/xenking/ticket-admin/internal/domain/auth"
)

const (
	getOperatorSQL = `SELECT id, username, password_hash, role
		FROM operators WHERE username = $1 AND active = TRUE`

	saveOperatorSQL = `INSERT INTO operators (username, password_hash, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role, active = TRUE
		RETURNING id`
)

var _ auth.OperatorRepository = (*OperatorRepository)(nil)

// OperatorRepository stores admin operators.
type OperatorRepository struct {
	pool *pgxpool.Pool
}

// NewOperatorRepository returns an OperatorRepository that uses the given pool.
func NewOperatorRepository(pool *pgxpool.Pool) *OperatorRepository {
	return &OperatorRepository{pool: pool}
}

// FindByUsername returns an active operator.
func (r *OperatorRepository) FindByUsername(ctx context.Context, username string) (*auth.Operator, error) {
	var op auth.Operator
	err := r.pool.QueryRow(ctx, getOperatorSQL, username).Scan(
		&op.ID, &op.Username, &op.PasswordHash, &op.Role,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperr.NotFoundError{Entity: "operator", Key: username}
		}
		return nil, classify(err, fmt.Sprintf("finding operator %q", username))
	}
	return &op, nil
}

// Save creates the operator or resets its password and role.
func (r *OperatorRepository) Save(ctx context.Context, op *auth.Operator) error {
	if err := r.pool.QueryRow(ctx, saveOperatorSQL, op.Username, op.PasswordHash, op.Role).Scan(&op.ID); err != nil {
		return classify(err, fmt.Sprintf("saving operator %q", op.Username))
	}
	return nil
}
