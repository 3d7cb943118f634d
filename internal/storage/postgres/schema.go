package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	listColumnsSQL = `SELECT table_name::text, column_name::text, data_type::text, is_nullable::text = 'YES'
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		ORDER BY table_name, ordinal_position`

	tableColumnsSQL = `SELECT table_name::text, column_name::text, data_type::text, is_nullable::text = 'YES'
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`
)

// Column describes one column of a table in the current schema.
type Column struct {
	Table    string
	Name     string
	DataType string
	Nullable bool
}

// Table is a table with its columns in ordinal order.
type Table struct {
	Name    string
	Columns []Column
}

// Inspector reads catalog metadata for diagnostics.
type Inspector struct {
	pool *pgxpool.Pool
}

// NewInspector returns an Inspector that uses the given pool.
func NewInspector(pool *pgxpool.Pool) *Inspector {
	return &Inspector{pool: pool}
}

// Ping checks that a connection can be acquired and used.
func (i *Inspector) Ping(ctx context.Context) error {
	if err := i.pool.Ping(ctx); err != nil {
		return classify(err, "pinging database")
	}
	return nil
}

// Columns lists the columns of table. An empty result means the table does
// not exist in the current schema.
func (i *Inspector) Columns(ctx context.Context, table string) ([]Column, error) {
	rows, err := i.pool.Query(ctx, tableColumnsSQL, table)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("listing columns of %q", table))
	}
	cols, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Column])
	if err != nil {
		return nil, classify(err, fmt.Sprintf("listing columns of %q", table))
	}
	return cols, nil
}

// Tables lists every table of the current schema with its columns.
func (i *Inspector) Tables(ctx context.Context) ([]Table, error) {
	rows, err := i.pool.Query(ctx, listColumnsSQL)
	if err != nil {
		return nil, classify(err, "listing tables")
	}
	cols, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Column])
	if err != nil {
		return nil, classify(err, "listing tables")
	}

	var tables []Table
	for _, c := range cols {
		if n := len(tables); n == 0 || tables[n-1].Name != c.Table {
			tables = append(tables, Table{Name: c.Table})
		}
		last := &tables[len(tables)-1]
		last.Columns = append(last.Columns, c)
	}
	return tables, nil
}

// Sample returns up to limit raw rows of table.
func (i *Inspector) Sample(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	rows, err := i.pool.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT $1", ident(table)), limit)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("sampling %q", table))
	}
	recs, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("sampling %q", table))
	}
	return recs, nil
}
