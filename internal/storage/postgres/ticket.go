package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/ticket-admin/internal/domain/apperr"
	"github.com/xenking/ticket-admin/internal/domain/product"
	"github.com/xenking/ticket-admin/internal/domain/ticket"
)

const (
	createTicketSQL = `INSERT INTO ticket_venta DEFAULT VALUES
		RETURNING id, total, created_at`

	getTicketSQL = `SELECT id, total, created_at FROM ticket_venta WHERE id = $1`

	lockTicketSQL = getTicketSQL + ` FOR UPDATE`

	listLineItemsSQL = `SELECT ticket_venta_id, codigo_producto, cantidad, precio_unitario, subtotal
		FROM detalle_venta WHERE ticket_venta_id = $1 ORDER BY codigo_producto`

	// The unit price of an existing row is kept: it is the snapshot taken
	// when the product was first added.
	upsertLineItemSQL = `INSERT INTO detalle_venta
		(ticket_venta_id, codigo_producto, cantidad, precio_unitario, subtotal)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ticket_venta_id, codigo_producto) DO UPDATE
		SET cantidad = detalle_venta.cantidad + EXCLUDED.cantidad,
			subtotal = detalle_venta.subtotal + EXCLUDED.subtotal`

	recomputeTotalSQL = `UPDATE ticket_venta
		SET total = (SELECT COALESCE(SUM(subtotal), 0) FROM detalle_venta WHERE ticket_venta_id = $1)
		WHERE id = $1
		RETURNING total`
)

// TicketConfig tunes transaction retries.
type TicketConfig struct {
	// MaxRetries is how many times a transaction aborted by a serialization
	// failure or deadlock is run again.
	MaxRetries uint64
	// RetryInterval is the initial backoff between attempts.
	RetryInterval time.Duration
}

var _ ticket.Repository = (*TicketRepository)(nil)

// TicketRepository implements ticket.Repository backed by PostgreSQL.
type TicketRepository struct {
	pool *pgxpool.Pool
	cfg  TicketConfig

	lockProductSQL    string
	decrementStockSQL string
	stockSQL          string
}

// NewTicketRepository returns a TicketRepository that uses the given pool.
// cols locates the catalog table the reconciler locks and decrements.
func NewTicketRepository(pool *pgxpool.Pool, cols product.Columns, cfg TicketConfig) *TicketRepository {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 20 * time.Millisecond
	}
	table, code, stock := ident(cols.Table), ident(cols.Code), ident(cols.Stock)

	return &TicketRepository{
		pool:           pool,
		cfg:            cfg,
		lockProductSQL: fmt.Sprintf("SELECT * FROM %s WHERE %s = $1 FOR UPDATE", table, code),
		decrementStockSQL: fmt.Sprintf("UPDATE %s SET %s = %s - $1 WHERE %s = $2 AND %s >= $1",
			table, stock, stock, code, stock),
		stockSQL: fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", stock, table, code),
	}
}

// Create inserts an empty ticket.
func (r *TicketRepository) Create(ctx context.Context) (*ticket.Ticket, error) {
	var t ticket.Ticket
	if err := r.pool.QueryRow(ctx, createTicketSQL).Scan(&t.ID, &t.Total, &t.CreatedAt); err != nil {
		return nil, classify(err, "creating ticket")
	}
	return &t, nil
}

// Get returns a ticket and its line items ordered by product code.
func (r *TicketRepository) Get(ctx context.Context, id int64) (*ticket.Ticket, error) {
	var t ticket.Ticket
	err := r.pool.QueryRow(ctx, getTicketSQL, id).Scan(&t.ID, &t.Total, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ticketNotFound(id)
		}
		return nil, classify(err, fmt.Sprintf("getting ticket %d", id))
	}

	rows, err := r.pool.Query(ctx, listLineItemsSQL, id)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("listing items of ticket %d", id))
	}
	t.Items, err = pgx.CollectRows(rows, pgx.RowToStructByPos[ticket.LineItem])
	if err != nil {
		return nil, classify(err, fmt.Sprintf("listing items of ticket %d", id))
	}
	return &t, nil
}

// InTx runs fn in a read-committed transaction. Row locks taken by the Tx
// serialize concurrent reconciliations; attempts aborted by a serialization
// failure or deadlock are retried with exponential backoff.
func (r *TicketRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx ticket.Tx) error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(r.cfg.RetryInterval),
		backoff.WithMaxElapsedTime(0),
	), r.cfg.MaxRetries), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := r.runTx(ctx, fn)
		if err == nil || retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, b, func(err error, wait time.Duration) {
		zctx.From(ctx).Warn("Retrying ticket transaction",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil && retryable(err) {
		return fmt.Errorf("%w: transaction aborted after %d attempts: %w", apperr.ErrConflict, attempt, err)
	}
	return err
}

func (r *TicketRepository) runTx(ctx context.Context, fn func(ctx context.Context, tx ticket.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err := fn(ctx, &ticketTx{tx: tx, repo: r}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(err, "committing transaction")
	}
	return nil
}

type ticketTx struct {
	tx   pgx.Tx
	repo *TicketRepository
}

func (t *ticketTx) LockTicket(ctx context.Context, id int64) (*ticket.Ticket, error) {
	var tk ticket.Ticket
	err := t.tx.QueryRow(ctx, lockTicketSQL, id).Scan(&tk.ID, &tk.Total, &tk.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ticketNotFound(id)
		}
		return nil, classify(err, fmt.Sprintf("locking ticket %d", id))
	}
	return &tk, nil
}

func (t *ticketTx) LockProduct(ctx context.Context, code string) (product.Record, error) {
	rows, err := t.tx.Query(ctx, t.repo.lockProductSQL, code)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("locking product %q", code))
	}
	rec, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperr.NotFoundError{Entity: "product", Key: code}
		}
		return nil, classify(err, fmt.Sprintf("locking product %q", code))
	}
	return rec, nil
}

func (t *ticketTx) UpsertLineItem(ctx context.Context, item ticket.LineItem) error {
	_, err := t.tx.Exec(ctx, upsertLineItemSQL,
		item.TicketID, item.ProductCode, item.Quantity, item.UnitPrice, item.Subtotal)
	if err != nil {
		return classify(err, "upserting line item")
	}
	return nil
}

func (t *ticketTx) RecomputeTotal(ctx context.Context, ticketID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := t.tx.QueryRow(ctx, recomputeTotalSQL, ticketID).Scan(&total); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ticketNotFound(ticketID)
		}
		return decimal.Zero, classify(err, "recomputing ticket total")
	}
	return total, nil
}

func (t *ticketTx) DecrementStock(ctx context.Context, code string, qty int) error {
	tag, err := t.tx.Exec(ctx, t.repo.decrementStockSQL, qty, code)
	if err != nil {
		return classify(err, "decrementing stock")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var available int
	if err := t.tx.QueryRow(ctx, t.repo.stockSQL, code).Scan(&available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &apperr.NotFoundError{Entity: "product", Key: code}
		}
		return classify(err, "reading stock")
	}
	return &apperr.InsufficientStockError{ProductCode: code, Available: available, Requested: qty}
}

func ticketNotFound(id int64) error {
	return &apperr.NotFoundError{Entity: "ticket", Key: strconv.FormatInt(id, 10)}
}
