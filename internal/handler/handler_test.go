package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/ticket-admin/internal/domain/apperr"
	"github.com/xenking/ticket-admin/internal/domain/auth"
	"github.com/xenking/ticket-admin/internal/domain/product"
	"github.com/xenking/ticket-admin/internal/domain/ticket"
	"github.com/xenking/ticket-admin/internal/session"
	"github.com/xenking/ticket-admin/internal/storage/postgres"
)

const testKey = "test-key"

// --- Mock implementations ---

type mockProductRepo struct {
	products  []product.Product
	created   []product.Product
	listErr   error
	createErr error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return m.products, m.listErr
}

func (m *mockProductRepo) Create(_ context.Context, p product.Product) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, p)
	return nil
}

func (m *mockProductRepo) Upsert(ctx context.Context, p product.Product) error {
	return m.Create(ctx, p)
}

type mockTickets struct {
	ticket *ticket.Ticket
	item   *ticket.LineItem
	err    error
	calls  []ticket.AddProductRequest
}

func (m *mockTickets) Create(_ context.Context) (*ticket.Ticket, error) {
	return m.ticket, m.err
}

func (m *mockTickets) Get(_ context.Context, _ int64) (*ticket.Ticket, error) {
	return m.ticket, m.err
}

func (m *mockTickets) AddProduct(_ context.Context, req ticket.AddProductRequest) (*ticket.LineItem, error) {
	m.calls = append(m.calls, req)
	return m.item, m.err
}

type mockSessions struct{}

func (mockSessions) Session(_ context.Context, credential string) (*auth.Session, error) {
	if credential != testKey {
		return nil, apperr.ErrUnauthorized
	}
	return &auth.Session{Subject: "tester", Method: auth.MethodAPIKey}, nil
}

type mockLogin struct {
	grant *session.Grant
	err   error
}

func (m *mockLogin) Login(_ context.Context, _, _ string) (*session.Grant, error) {
	return m.grant, m.err
}

type mockInspector struct {
	pingErr error
}

func (m *mockInspector) Ping(_ context.Context) error { return m.pingErr }

func (m *mockInspector) Columns(_ context.Context, table string) ([]postgres.Column, error) {
	return []postgres.Column{
		{Table: table, Name: "codigo", DataType: "text"},
		{Table: table, Name: "precio_unitario", DataType: "numeric"},
	}, nil
}

func (m *mockInspector) Tables(_ context.Context) ([]postgres.Table, error) {
	return []postgres.Table{
		{Name: "operators", Columns: []postgres.Column{{Table: "operators", Name: "password_hash", DataType: "text"}}},
		{Name: "producto", Columns: []postgres.Column{{Table: "producto", Name: "codigo", DataType: "text"}}},
	}, nil
}

func (m *mockInspector) Sample(_ context.Context, table string, _ int) ([]map[string]any, error) {
	if table == "operators" {
		return []map[string]any{{"username": "ana", "password_hash": "$2a$10$secret"}}, nil
	}
	return []map[string]any{{"codigo": "P1", "precio_unitario": decimal.RequireFromString("10.50"), "cantidad": int32(4)}}, nil
}

// --- Helpers ---

type fixture struct {
	products *mockProductRepo
	tickets  *mockTickets
	login    *mockLogin
	mux      *http.ServeMux
}

func newFixture(cfg Config) *fixture {
	f := &fixture{
		products: &mockProductRepo{},
		tickets:  &mockTickets{},
		login:    &mockLogin{},
		mux:      http.NewServeMux(),
	}
	cfg.CatalogTable = "producto"
	New(cfg, f.products, f.tickets, mockSessions{}, f.login, &mockInspector{}).Register(f.mux)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		r.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, r)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(w.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func authed(t *testing.T, f *fixture, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	return f.do(t, method, path, body, "api_key", testKey)
}

// --- Tests ---

func TestAuthentication(t *testing.T) {
	f := newFixture(Config{})

	w, body := f.do(t, http.MethodGet, "/api/products", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "unauthorized", body["kind"])

	w, _ = f.do(t, http.MethodGet, "/api/products", "", "api_key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = f.do(t, http.MethodGet, "/api/products", "", "Authorization", "Bearer "+testKey)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(t, http.MethodGet, "/api/products", "", "Authorization", "Basic "+testKey)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthentication_BeforeDataAccess(t *testing.T) {
	f := newFixture(Config{})

	w, _ := f.do(t, http.MethodPost, "/api/tickets/1/products", `{"productCode":"P1","quantity":1}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, f.tickets.calls)
}

func TestListProducts(t *testing.T) {
	f := newFixture(Config{})
	f.products.products = []product.Product{
		{Code: "P1", Name: "Cuaderno", UnitPrice: decimal.RequireFromString("10.50"), Stock: 3, Kind: "papeleria"},
		{Code: "P2", Name: "Product P2", UnitPrice: decimal.Zero, Stock: 0},
	}

	w, _ := authed(t, f, http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "P1", list[0]["code"])
	assert.Equal(t, "Cuaderno", list[0]["name"])
	assert.InDelta(t, 10.5, list[0]["unitPrice"], 1e-9)
	assert.InDelta(t, 3, list[0]["stockQuantity"], 1e-9)
	assert.Equal(t, "papeleria", list[0]["kind"])
	assert.InDelta(t, 0, list[1]["unitPrice"], 1e-9)
}

func TestListProducts_Error(t *testing.T) {
	f := newFixture(Config{})
	f.products.listErr = errors.New("db down")

	w, body := authed(t, f, http.MethodGet, "/api/products", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "unexpected", body["kind"])
	assert.Equal(t, "internal server error", body["message"])
}

func TestCreateProduct(t *testing.T) {
	f := newFixture(Config{})

	w, body := authed(t, f, http.MethodPost, "/api/products",
		`{"codigo":"P9","nombre":"Regla","precio":"2.75","stock":4,"tipo":"papeleria"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, body["success"])
	require.Len(t, f.products.created, 1)
	assert.Equal(t, "P9", f.products.created[0].Code)
	assert.True(t, decimal.RequireFromString("2.75").Equal(f.products.created[0].UnitPrice))

	w, body = authed(t, f, http.MethodPost, "/api/products", `{"code":"","name":"x","unitPrice":1,"stockQuantity":1,"kind":"k"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", body["kind"])

	w, _ = authed(t, f, http.MethodPost, "/api/products", `{"code":"P1","name":"x","unitPrice":-1,"stockQuantity":1,"kind":"k"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.products.createErr = errors.Wrap(apperr.ErrConflict, "duplicate")
	w, body = authed(t, f, http.MethodPost, "/api/products", `{"code":"P1","name":"x","unitPrice":1,"stockQuantity":1,"kind":"k"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", body["kind"])
}

func TestAddProductToTicket(t *testing.T) {
	f := newFixture(Config{})
	f.tickets.item = &ticket.LineItem{
		TicketID:    7,
		ProductCode: "P1",
		Quantity:    2,
		UnitPrice:   decimal.NewFromInt(10),
		Subtotal:    decimal.NewFromInt(20),
	}

	w, body := authed(t, f, http.MethodPost, "/api/tickets/7/products", `{"productCode":"P1","quantity":2}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 7, data["ticketId"], 1e-9)
	assert.Equal(t, "P1", data["productCode"])
	assert.InDelta(t, 2, data["quantity"], 1e-9)
	assert.InDelta(t, 10, data["unitPrice"], 1e-9)
	assert.InDelta(t, 20, data["subtotal"], 1e-9)

	require.Len(t, f.tickets.calls, 1)
	assert.Equal(t, ticket.AddProductRequest{TicketID: 7, ProductCode: "P1", Quantity: 2}, f.tickets.calls[0])
}

func TestAddProductToTicket_LegacyFields(t *testing.T) {
	f := newFixture(Config{})
	f.tickets.item = &ticket.LineItem{TicketID: 3, ProductCode: "P1", Quantity: 5}

	w, _ := authed(t, f, http.MethodPost, "/api/tickets/3/products", `{"codigoProducto":"P1","cantidad":"5","extra":[1,2]}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.tickets.calls, 1)
	assert.Equal(t, 5, f.tickets.calls[0].Quantity)
	assert.Equal(t, "P1", f.tickets.calls[0].ProductCode)
}

func TestAddProductToTicket_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{"non-numeric id", "/api/tickets/abc/products", `{"productCode":"P1","quantity":1}`},
		{"zero id", "/api/tickets/0/products", `{"productCode":"P1","quantity":1}`},
		{"malformed json", "/api/tickets/1/products", `{"productCode":`},
		{"not an object", "/api/tickets/1/products", `[1]`},
		{"fractional quantity", "/api/tickets/1/products", `{"productCode":"P1","quantity":1.5}`},
		{"bool quantity", "/api/tickets/1/products", `{"productCode":"P1","quantity":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Config{})
			w, body := authed(t, f, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid_input", body["kind"])
			assert.Empty(t, f.tickets.calls)
		})
	}
}

func TestAddProductToTicket_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		kind    string
		message string
	}{
		{"invalid", apperr.Invalidf("quantity must be positive"), http.StatusBadRequest, "invalid_input", ""},
		{"ticket missing", &apperr.NotFoundError{Entity: "ticket", Key: "1"}, http.StatusNotFound, "not_found", "ticket 1 not found"},
		{"product missing", &apperr.NotFoundError{Entity: "product", Key: "X"}, http.StatusNotFound, "not_found", "product X not found"},
		{"integrity", errors.Wrap(apperr.ErrDataIntegrity, "price column"), http.StatusInternalServerError, "data_integrity", "catalog data is inconsistent"},
		{"timeout", errors.Wrap(context.DeadlineExceeded, "tx"), http.StatusGatewayTimeout, "timeout", "operation timed out"},
		{"conflict", errors.Wrap(apperr.ErrConflict, "retries"), http.StatusConflict, "conflict", ""},
		{"unexpected", errors.New("connection reset by peer"), http.StatusInternalServerError, "unexpected", "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Config{})
			f.tickets.err = tt.err

			w, body := authed(t, f, http.MethodPost, "/api/tickets/1/products", `{"productCode":"P1","quantity":1}`)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.kind, body["kind"])
			if tt.message != "" {
				assert.Equal(t, tt.message, body["message"])
			}
		})
	}
}

func TestAddProductToTicket_InsufficientStock(t *testing.T) {
	f := newFixture(Config{})
	f.tickets.err = errors.Wrap(&apperr.InsufficientStockError{ProductCode: "P1", Available: 3, Requested: 5}, "reconcile")

	w, body := authed(t, f, http.MethodPost, "/api/tickets/1/products", `{"productCode":"P1","quantity":5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "insufficient_stock", body["kind"])
	assert.InDelta(t, 3, body["available"], 1e-9)
	assert.InDelta(t, 5, body["requested"], 1e-9)
}

func TestTickets(t *testing.T) {
	f := newFixture(Config{})
	f.tickets.ticket = &ticket.Ticket{
		ID:        4,
		Total:     decimal.RequireFromString("30.00"),
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Items: []ticket.LineItem{
			{TicketID: 4, ProductCode: "P1", Quantity: 3, UnitPrice: decimal.NewFromInt(10), Subtotal: decimal.NewFromInt(30)},
		},
	}

	w, body := authed(t, f, http.MethodPost, "/api/tickets", "")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, body["success"])

	w, body = authed(t, f, http.MethodGet, "/api/tickets/4", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.InDelta(t, 4, data["id"], 1e-9)
	assert.InDelta(t, 30, data["total"], 1e-9)
	assert.Equal(t, "2024-05-01T12:00:00Z", data["createdAt"])
	items := data["items"].([]any)
	require.Len(t, items, 1)

	f.tickets.err = &apperr.NotFoundError{Entity: "ticket", Key: "9"}
	w, _ = authed(t, f, http.MethodGet, "/api/tickets/9", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSession(t *testing.T) {
	f := newFixture(Config{})
	f.login.grant = &session.Grant{Token: "a.b.c", Subject: "ana", ExpiresAt: time.Now().Add(time.Hour)}

	w, body := f.do(t, http.MethodPost, "/api/sessions", `{"username":"ana","password":"pw"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "a.b.c", data["token"])
	assert.Equal(t, "Bearer", data["tokenType"])

	f.login.err = apperr.ErrUnauthorized
	w, body = f.do(t, http.MethodPost, "/api/sessions", `{"username":"ana","password":"bad"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", body["kind"])
}

func TestDebugRoutes(t *testing.T) {
	off := newFixture(Config{})
	w, _ := authed(t, off, http.MethodGet, "/api/debug/db", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	on := newFixture(Config{Debug: true})
	w, _ = on.do(t, http.MethodGet, "/api/debug/db", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body := authed(t, on, http.MethodGet, "/api/debug/db", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["connection"])
	assert.Equal(t, "producto", data["table"])
	assert.Len(t, data["columns"], 2)
	sample := data["sample"].([]any)
	require.Len(t, sample, 1)
	assert.InDelta(t, 10.5, sample[0].(map[string]any)["precio_unitario"], 1e-9)

	w, body = authed(t, on, http.MethodGet, "/api/debug/tables", "")
	require.Equal(t, http.StatusOK, w.Code)
	tables := body["data"].([]any)
	require.Len(t, tables, 2)
	ops := tables[0].(map[string]any)
	assert.Equal(t, "operators", ops["name"])
	assert.Equal(t, "[redacted]", ops["sample"].(map[string]any)["password_hash"])
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusOf(apperr.KindInvalidInput))
	assert.Equal(t, http.StatusBadRequest, statusOf(apperr.KindInsufficientStock))
	assert.Equal(t, http.StatusUnauthorized, statusOf(apperr.KindUnauthorized))
	assert.Equal(t, http.StatusNotFound, statusOf(apperr.KindNotFound))
	assert.Equal(t, http.StatusConflict, statusOf(apperr.KindConflict))
	assert.Equal(t, http.StatusGatewayTimeout, statusOf(apperr.KindTimeout))
	assert.Equal(t, http.StatusInternalServerError, statusOf(apperr.KindDataIntegrity))
	assert.Equal(t, http.StatusInternalServerError, statusOf(apperr.KindUnexpected))
}
