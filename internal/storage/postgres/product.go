package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/ticket-admin/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository over a catalog table whose
// column names come from product.Columns.
type ProductRepository struct {
	pool *pgxpool.Pool
	cols product.Columns

	listSQL   string
	insertSQL string
	upsertSQL string
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool, cols product.Columns) *ProductRepository {
	table, code := ident(cols.Table), ident(cols.Code)

	names := []string{code}
	for _, c := range []string{cols.NameColumn(), cols.PriceColumn(), cols.Stock, cols.KindColumn()} {
		if c != "" {
			names = append(names, ident(c))
		}
	}
	params := make([]string, len(names))
	updates := make([]string, 0, len(names)-1)
	for i, n := range names {
		params[i] = fmt.Sprintf("$%d", i+1)
		if i > 0 {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", n, n))
		}
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(names, ", "), strings.Join(params, ", "))

	return &ProductRepository{
		pool:      pool,
		cols:      cols,
		listSQL:   fmt.Sprintf("SELECT * FROM %s ORDER BY %s", table, code),
		insertSQL: insert,
		upsertSQL: fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s", insert, code, strings.Join(updates, ", ")),
	}
}

// List returns every catalog row resolved through the column aliases.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, r.listSQL)
	if err != nil {
		return nil, classify(err, "listing products")
	}
	recs, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, classify(err, "listing products")
	}

	products := make([]product.Product, 0, len(recs))
	for _, rec := range recs {
		p, _ := r.cols.Decode(rec)
		products = append(products, p)
	}
	return products, nil
}

// Create inserts a new product. A duplicate code classifies as a conflict.
func (r *ProductRepository) Create(ctx context.Context, p product.Product) error {
	if _, err := r.pool.Exec(ctx, r.insertSQL, r.args(p)...); err != nil {
		return classify(err, fmt.Sprintf("creating product %q", p.Code))
	}
	return nil
}

// Upsert inserts p or overwrites every field of the existing row.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	if _, err := r.pool.Exec(ctx, r.upsertSQL, r.args(p)...); err != nil {
		return classify(err, fmt.Sprintf("upserting product %q", p.Code))
	}
	return nil
}

func (r *ProductRepository) args(p product.Product) []any {
	args := []any{p.Code}
	if r.cols.NameColumn() != "" {
		args = append(args, p.Name)
	}
	if r.cols.PriceColumn() != "" {
		args = append(args, p.UnitPrice)
	}
	if r.cols.Stock != "" {
		args = append(args, p.Stock)
	}
	if r.cols.KindColumn() != "" {
		args = append(args, p.Kind)
	}
	return args
}
