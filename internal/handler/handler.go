// Package handler serves the admin JSON API over net/http.
package handler

import (
	"context"
	"net/http"

	"github.com/xenking/ticket-admin/internal/domain/product"
	"github.com/xenking/ticket-admin/internal/domain/ticket"
	"github.com/xenking/ticket-admin/internal/session"
	"github.com/xenking/ticket-admin/internal/storage/postgres"
)

// Tickets is the ticket service used by the handlers.
type Tickets interface {
	Create(ctx context.Context) (*ticket.Ticket, error)
	Get(ctx context.Context, id int64) (*ticket.Ticket, error)
	AddProduct(ctx context.Context, req ticket.AddProductRequest) (*ticket.LineItem, error)
}

// Authenticator exchanges operator credentials for a session token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*session.Grant, error)
}

// Inspector reads database metadata for the debug endpoints.
type Inspector interface {
	Ping(ctx context.Context) error
	Columns(ctx context.Context, table string) ([]postgres.Column, error)
	Tables(ctx context.Context) ([]postgres.Table, error)
	Sample(ctx context.Context, table string, limit int) ([]map[string]any, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// CatalogTable is the product table shown by the database debug endpoint.
	CatalogTable string
	// Debug exposes the /api/debug routes.
	Debug bool
	// SampleRows bounds the rows returned by the debug endpoints.
	SampleRows int
}

// Handler serves the /api routes.
type Handler struct {
	products  product.Repository
	tickets   Tickets
	sessions  session.Provider
	login     Authenticator
	inspector Inspector
	cfg       Config
}

// New constructs a Handler. login may be nil when token sessions are off and
// inspector may be nil when debug routes are off.
func New(
	cfg Config,
	products product.Repository,
	tickets Tickets,
	sessions session.Provider,
	login Authenticator,
	inspector Inspector,
) *Handler {
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = 5
	}
	return &Handler{
		products:  products,
		tickets:   tickets,
		sessions:  sessions,
		login:     login,
		inspector: inspector,
		cfg:       cfg,
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h.login != nil {
		mux.HandleFunc("POST /api/sessions", h.createSession)
	}

	mux.Handle("GET /api/products", h.authenticated(h.listProducts))
	mux.Handle("POST /api/products", h.authenticated(h.createProduct))
	mux.Handle("POST /api/tickets", h.authenticated(h.createTicket))
	mux.Handle("GET /api/tickets/{id}", h.authenticated(h.getTicket))
	mux.Handle("POST /api/tickets/{id}/products", h.authenticated(h.addProductToTicket))

	if h.cfg.Debug && h.inspector != nil {
		mux.Handle("GET /api/debug/db", h.authenticated(h.debugDB))
		mux.Handle("GET /api/debug/tables", h.authenticated(h.debugTables))
	}
}
