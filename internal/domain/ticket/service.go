package ticket

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/ticket-admin/internal/domain/apperr"
	"github.com/xenking/ticket-admin/internal/domain/product"
)

const instrumentationName = "github.com/xenking/ticket-admin/internal/domain/ticket"

// DefaultTimeout bounds one add-product unit when ServiceConfig.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// AddProductRequest asks to add Quantity units of ProductCode to a ticket.
type AddProductRequest struct {
	TicketID    int64
	ProductCode string
	Quantity    int
}

// Validate checks the request before any data access.
func (r AddProductRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.ProductCode, validation.Required),
		validation.Field(&r.Quantity, validation.Required, validation.Min(1)),
	)
	return apperr.Invalid(err)
}

// ServiceConfig holds non-repository dependencies of the Service.
type ServiceConfig struct {
	Columns        product.Columns
	Timeout        time.Duration
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Service reconciles ticket line items with the catalog.
type Service struct {
	repo    Repository
	columns product.Columns
	timeout time.Duration
	tracer  trace.Tracer
	calls   metric.Int64Counter
}

// NewService creates a ticket Service. Nil telemetry providers fall back to
// no-op implementations.
func NewService(repo Repository, cfg ServiceConfig) (*Service, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = tracenoop.NewTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = metricnoop.NewMeterProvider()
	}

	calls, err := cfg.MeterProvider.Meter(instrumentationName).Int64Counter("ticket.add_product.calls",
		metric.WithDescription("Add-product reconciliations by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create add_product counter")
	}

	return &Service{
		repo:    repo,
		columns: cfg.Columns,
		timeout: cfg.Timeout,
		tracer:  cfg.TracerProvider.Tracer(instrumentationName),
		calls:   calls,
	}, nil
}

// Create opens a new empty ticket.
func (s *Service) Create(ctx context.Context) (*Ticket, error) {
	t, err := s.repo.Create(ctx)
	if err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Ticket created", zap.Int64("ticket_id", t.ID))
	return t, nil
}

// Get returns a ticket with its line items.
func (s *Service) Get(ctx context.Context, id int64) (*Ticket, error) {
	return s.repo.Get(ctx, id)
}

// AddProduct adds req.Quantity units of a product to a ticket as one atomic
// unit: the line item upsert, the ticket total and the stock decrement either
// all commit or none do.
//
// The unit runs detached from the caller's cancellation and bounded by the
// service timeout, so a client disconnect cannot leave it half applied.
func (s *Service) AddProduct(ctx context.Context, req AddProductRequest) (_ *LineItem, rerr error) {
	req.ProductCode = strings.TrimSpace(req.ProductCode)

	ctx, span := s.tracer.Start(ctx, "ticket.AddProduct", trace.WithAttributes(
		attribute.Int64("ticket.id", req.TicketID),
		attribute.String("product.code", req.ProductCode),
		attribute.Int("quantity", req.Quantity),
	))
	defer func() {
		outcome := "ok"
		if rerr != nil {
			outcome = string(apperr.KindOf(rerr))
			span.RecordError(rerr)
			span.SetStatus(codes.Error, outcome)
		}
		s.calls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		span.End()
	}()

	lg := zctx.From(ctx).With(
		zap.Int64("ticket_id", req.TicketID),
		zap.String("product_code", req.ProductCode),
		zap.Int("quantity", req.Quantity),
	)

	if err := req.Validate(); err != nil {
		lg.Info("Add product rejected", zap.Error(err))
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var applied LineItem
	err := s.repo.InTx(txCtx, func(ctx context.Context, tx Tx) error {
		item, err := s.reconcile(ctx, tx, req)
		if err != nil {
			return err
		}
		applied = item
		return nil
	})
	if err != nil {
		var stockErr *apperr.InsufficientStockError
		switch kind := apperr.KindOf(err); {
		case errors.As(err, &stockErr):
			lg.Info("Stock check failed",
				zap.Int("available", stockErr.Available),
				zap.Int("requested", stockErr.Requested),
			)
		case kind == apperr.KindUnexpected || kind == apperr.KindDataIntegrity || kind == apperr.KindTimeout:
			lg.Error("Add product failed", zap.String("kind", string(kind)), zap.Error(err))
		default:
			lg.Info("Add product rejected", zap.String("kind", string(kind)), zap.Error(err))
		}
		return nil, err
	}

	lg.Info("Product added to ticket",
		zap.String("unit_price", applied.UnitPrice.String()),
		zap.String("subtotal", applied.Subtotal.String()),
	)
	return &applied, nil
}

// reconcile runs the add-product steps inside tx. Ticket and product rows are
// locked before the stock check, so concurrent calls for the same product
// observe each other's decrements.
func (s *Service) reconcile(ctx context.Context, tx Tx, req AddProductRequest) (LineItem, error) {
	if _, err := tx.LockTicket(ctx, req.TicketID); err != nil {
		return LineItem{}, err
	}

	rec, err := tx.LockProduct(ctx, req.ProductCode)
	if err != nil {
		return LineItem{}, err
	}

	p, priceOK := s.columns.Decode(rec)
	if !priceOK {
		return LineItem{}, errors.Wrapf(apperr.ErrDataIntegrity, "product %s has no resolvable unit price", req.ProductCode)
	}
	if p.UnitPrice.IsNegative() {
		return LineItem{}, errors.Wrapf(apperr.ErrDataIntegrity, "product %s has negative unit price", req.ProductCode)
	}
	stock, ok := s.columns.StockOf(rec)
	if !ok {
		return LineItem{}, errors.Wrapf(apperr.ErrDataIntegrity, "product %s has no resolvable stock quantity", req.ProductCode)
	}

	subtotal := p.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))

	if stock < req.Quantity {
		return LineItem{}, &apperr.InsufficientStockError{
			ProductCode: req.ProductCode,
			Available:   stock,
			Requested:   req.Quantity,
		}
	}

	item := LineItem{
		TicketID:    req.TicketID,
		ProductCode: req.ProductCode,
		Quantity:    req.Quantity,
		UnitPrice:   p.UnitPrice,
		Subtotal:    subtotal,
	}
	if err := tx.UpsertLineItem(ctx, item); err != nil {
		return LineItem{}, errors.Wrap(err, "upsert line item")
	}
	if _, err := tx.RecomputeTotal(ctx, req.TicketID); err != nil {
		return LineItem{}, errors.Wrap(err, "recompute total")
	}
	if err := tx.DecrementStock(ctx, req.ProductCode, req.Quantity); err != nil {
		return LineItem{}, errors.Wrap(err, "decrement stock")
	}

	return item, nil
}

// ParseID parses a ticket identifier from a path segment.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalidf("ticket id %q must be a positive integer", s)
	}
	return id, nil
}
