package ticket

import (
	"context"
	"maps"
	"sort"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xenking/ticket-admin/internal/domain/apperr"
	"github.com/xenking/ticket-admin/internal/domain/product"
)

type itemKey struct {
	ticketID int64
	code     string
}

// memState is the full contents of the fake database. Transactions work on a
// clone and swap it in on commit.
type memState struct {
	tickets  map[int64]decimal.Decimal
	products map[string]product.Record
	items    map[itemKey]LineItem
}

func (s memState) clone() memState {
	products := make(map[string]product.Record, len(s.products))
	for code, rec := range s.products {
		products[code] = maps.Clone(rec)
	}
	return memState{
		tickets:  maps.Clone(s.tickets),
		products: products,
		items:    maps.Clone(s.items),
	}
}

// memStore is a serializable in-memory Repository: one transaction at a time,
// all-or-nothing commit.
type memStore struct {
	mu     sync.Mutex
	state  memState
	nextID int64
	// failOn makes the named Tx step fail, to exercise rollback.
	failOn string
}

func newMemStore() *memStore {
	return &memStore{
		state: memState{
			tickets:  make(map[int64]decimal.Decimal),
			products: make(map[string]product.Record),
			items:    make(map[itemKey]LineItem),
		},
	}
}

func (m *memStore) addProduct(code string, price string, stock int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.products[code] = product.Record{
		"codigo":          code,
		"nombre":          "Product " + code,
		"precio_unitario": decimal.RequireFromString(price),
		"cantidad":        int32(stock),
	}
}

func (m *memStore) addRecord(code string, rec product.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.products[code] = rec
}

func (m *memStore) stock(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _ := product.DefaultColumns().StockOf(m.state.products[code])
	return n
}

func (m *memStore) item(ticketID int64, code string) (LineItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.state.items[itemKey{ticketID, code}]
	return it, ok
}

func (m *memStore) total(ticketID int64) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.tickets[ticketID]
}

func (m *memStore) Create(_ context.Context) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.state.tickets[m.nextID] = decimal.Zero
	return &Ticket{ID: m.nextID, Total: decimal.Zero}, nil
}

func (m *memStore) Get(_ context.Context, id int64) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total, ok := m.state.tickets[id]
	if !ok {
		return nil, &apperr.NotFoundError{Entity: "ticket", Key: strconv.FormatInt(id, 10)}
	}
	t := &Ticket{ID: id, Total: total}
	for k, it := range m.state.items {
		if k.ticketID == id {
			t.Items = append(t.Items, it)
		}
	}
	sort.Slice(t.Items, func(i, j int) bool { return t.Items[i].ProductCode < t.Items[j].ProductCode })
	return t, nil
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{state: m.state.clone(), failOn: m.failOn}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

type memTx struct {
	state  memState
	failOn string
}

func (t *memTx) fail(step string) error {
	if t.failOn == step {
		return apperr.ErrConflict
	}
	return nil
}

func (t *memTx) LockTicket(_ context.Context, id int64) (*Ticket, error) {
	total, ok := t.state.tickets[id]
	if !ok {
		return nil, &apperr.NotFoundError{Entity: "ticket", Key: strconv.FormatInt(id, 10)}
	}
	return &Ticket{ID: id, Total: total}, nil
}

func (t *memTx) LockProduct(_ context.Context, code string) (product.Record, error) {
	rec, ok := t.state.products[code]
	if !ok {
		return nil, &apperr.NotFoundError{Entity: "product", Key: code}
	}
	return maps.Clone(rec), nil
}

func (t *memTx) UpsertLineItem(_ context.Context, item LineItem) error {
	if err := t.fail("upsert"); err != nil {
		return err
	}
	k := itemKey{item.TicketID, item.ProductCode}
	if cur, ok := t.state.items[k]; ok {
		cur.Quantity += item.Quantity
		cur.Subtotal = cur.Subtotal.Add(item.Subtotal)
		t.state.items[k] = cur
		return nil
	}
	t.state.items[k] = item
	return nil
}

func (t *memTx) RecomputeTotal(_ context.Context, ticketID int64) (decimal.Decimal, error) {
	if err := t.fail("total"); err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for k, it := range t.state.items {
		if k.ticketID == ticketID {
			sum = sum.Add(it.Subtotal)
		}
	}
	t.state.tickets[ticketID] = sum
	return sum, nil
}

func (t *memTx) DecrementStock(_ context.Context, code string, qty int) error {
	if err := t.fail("stock"); err != nil {
		return err
	}
	cols := product.DefaultColumns()
	rec := t.state.products[code]
	stock, _ := cols.StockOf(rec)
	if stock < qty {
		return &apperr.InsufficientStockError{ProductCode: code, Available: stock, Requested: qty}
	}
	rec[cols.Stock] = int32(stock - qty)
	return nil
}
