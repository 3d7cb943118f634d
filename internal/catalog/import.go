// Package catalog bulk-loads products from gzip-compressed CSV exports.
//
// Files are decoded concurrently, duplicate codes collapse to the row read
// last (later files win over earlier ones, later lines over earlier lines)
// and the surviving rows are upserted through a product.Repository.
package catalog

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/ticket-admin/internal/domain/product"
)

// Columns is the expected CSV layout. A first line equal to it is a header.
var Columns = []string{"code", "name", "unitPrice", "stockQuantity", "kind"}

const (
	defaultWorkers = 4
	bloomFPR       = 0.001
)

// Stats summarizes one import.
type Stats struct {
	Files      int
	Rows       int
	Duplicates int
	Rejected   int
	Upserted   int
}

// Options tunes an Importer.
type Options struct {
	// Workers bounds concurrent upserts. Defaults to 4.
	Workers int
}

// Importer loads CSV files into the catalog.
type Importer struct {
	repo    product.Repository
	workers int
}

// NewImporter returns an Importer writing to repo.
func NewImporter(repo product.Repository, opts Options) *Importer {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	return &Importer{repo: repo, workers: opts.Workers}
}

// row is a decoded CSV line.
type row struct {
	line    int
	product product.Product
	err     error
}

// Import reads files concurrently and upserts the deduplicated rows. Rows
// that fail to parse or validate are logged and counted, not fatal.
func (im *Importer) Import(ctx context.Context, files []string) (Stats, error) {
	lg := zctx.From(ctx)
	stats := Stats{Files: len(files)}

	parsed := make([][]row, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			rows, err := readFile(gctx, path)
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			parsed[i] = rows
			lg.Info("Catalog file decoded", zap.String("file", path), zap.Int("rows", len(rows)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	var total int
	for _, rows := range parsed {
		total += len(rows)
	}
	stats.Rows = total

	products, dups, rejected := dedupe(lg, files, parsed, total)
	stats.Duplicates = dups
	stats.Rejected = rejected

	var upserted atomic.Int64
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for _, p := range products {
		g.Go(func() error {
			if err := im.repo.Upsert(gctx, p); err != nil {
				return errors.Wrapf(err, "upsert %s", p.Code)
			}
			upserted.Add(1)
			return nil
		})
	}
	err := g.Wait()
	stats.Upserted = int(upserted.Load())
	return stats, err
}

// dedupe walks rows newest first and keeps the first valid occurrence of
// each code. The bloom filter answers "never seen" without touching the
// exact set; only its positives are confirmed there.
func dedupe(lg *zap.Logger, files []string, parsed [][]row, total int) (out []product.Product, dups, rejected int) {
	filter := bloom.NewWithEstimates(uint(max(total, 1)), bloomFPR)
	seen := make(map[string]struct{}, total)

	for f := len(parsed) - 1; f >= 0; f-- {
		rows := parsed[f]
		for i := len(rows) - 1; i >= 0; i-- {
			r := rows[i]
			if r.err == nil {
				r.err = r.product.Validate()
			}
			if r.err != nil {
				rejected++
				lg.Warn("Catalog row rejected",
					zap.String("file", files[f]),
					zap.Int("line", r.line),
					zap.Error(r.err),
				)
				continue
			}

			code := r.product.Code
			if filter.TestString(code) {
				if _, ok := seen[code]; ok {
					dups++
					continue
				}
			}
			filter.AddString(code)
			seen[code] = struct{}{}
			out = append(out, r.product)
		}
	}
	return out, dups, rejected
}

// readFile decodes one gzip-compressed CSV file.
func readFile(ctx context.Context, path string) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "gzip")
	}
	defer func() { _ = gz.Close() }()

	return decode(ctx, gz)
}

func decode(ctx context.Context, r io.Reader) ([]row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var rows []row
	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		p, err := parseRecord(rec)
		rows = append(rows, row{line: line, product: p, err: err})
	}
}

func isHeader(rec []string) bool {
	if len(rec) != len(Columns) {
		return false
	}
	for i, c := range Columns {
		if !strings.EqualFold(strings.TrimSpace(rec[i]), c) {
			return false
		}
	}
	return true
}

func parseRecord(rec []string) (product.Product, error) {
	if len(rec) != len(Columns) {
		return product.Product{}, errors.Errorf("expected %d fields, got %d", len(Columns), len(rec))
	}
	price, err := decimal.NewFromString(strings.TrimSpace(rec[2]))
	if err != nil {
		return product.Product{}, errors.Wrap(err, "unitPrice")
	}
	stock, err := strconv.Atoi(strings.TrimSpace(rec[3]))
	if err != nil {
		return product.Product{}, errors.Wrap(err, "stockQuantity")
	}
	return product.Product{
		Code:      strings.TrimSpace(rec[0]),
		Name:      strings.TrimSpace(rec[1]),
		UnitPrice: price,
		Stock:     stock,
		Kind:      strings.TrimSpace(rec[4]),
	}, nil
}
