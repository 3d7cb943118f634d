package ticket

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/ticket-admin/internal/domain/product"
)

// Ticket is a sales ticket. Total always equals the sum of its line items'
// subtotals and is only ever written by recomputation.
type Ticket struct {
	ID        int64
	Total     decimal.Decimal
	CreatedAt time.Time
	Items     []LineItem
}

// LineItem is the (ticket, product) pairing. UnitPrice is captured when the
// item is first inserted and never follows later catalog price changes.
type LineItem struct {
	TicketID    int64
	ProductCode string
	Quantity    int
	UnitPrice   decimal.Decimal
	Subtotal    decimal.Decimal
}

// Tx is the set of statements the reconciler runs inside one database
// transaction. Lock methods take row locks held until commit or rollback.
type Tx interface {
	// LockTicket returns an *apperr.NotFoundError when the ticket is absent.
	LockTicket(ctx context.Context, id int64) (*Ticket, error)
	// LockProduct returns the raw catalog row, or an *apperr.NotFoundError.
	LockProduct(ctx context.Context, code string) (product.Record, error)
	// UpsertLineItem inserts item or adds its quantity and subtotal to the
	// existing row for the same (ticket, product) pair.
	UpsertLineItem(ctx context.Context, item LineItem) error
	// RecomputeTotal sets the ticket total to the sum of its subtotals.
	RecomputeTotal(ctx context.Context, ticketID int64) (decimal.Decimal, error)
	// DecrementStock lowers stock by qty only if at least qty is available;
	// otherwise it returns an *apperr.InsufficientStockError.
	DecrementStock(ctx context.Context, code string, qty int) error
}

// Repository defines ticket persistence.
type Repository interface {
	Create(ctx context.Context) (*Ticket, error)
	// Get returns the ticket with its line items ordered by product code.
	Get(ctx context.Context, id int64) (*Ticket, error)
	// InTx runs fn in a transaction, committing only when fn returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
