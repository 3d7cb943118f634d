package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"github.com/xenking/ticket-admin/internal/catalog"
	"github.com/xenking/ticket-admin/internal/domain/product"
	"github.com/xenking/ticket-admin/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		table       string
		workers     int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory scanned for *.csv.gz when no files are given")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&table, "table", "producto", "product table name")
	flag.IntVar(&workers, "workers", 4, "concurrent upserts")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("TICKETS_DATABASE_URL")
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	files := flag.Args()
	if len(files) == 0 {
		matches, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
		if err != nil {
			slog.Error("scan data dir", slog.String("error", err.Error()))
			os.Exit(1)
		}
		files = matches
	}
	if len(files) == 0 {
		slog.Error("no input files", slog.String("data_dir", dataDir))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, table, workers, files); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, table string, workers int, files []string) error {
	pool, err := postgres.NewPool(ctx, databaseURL, postgres.PoolConfig{
		MaxConns:        int32(max(workers, 1)),
		ApplicationName: "catalog-import",
	})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	cols := product.DefaultColumns()
	cols.Table = table

	// Row-level rejections are reported by the importer through zctx.
	lg := zap.Must(zap.NewProduction())
	defer func() { _ = lg.Sync() }()
	ctx = zctx.Base(ctx, lg)

	slog.Info("importing catalog", slog.Int("files", len(files)), slog.String("table", table))

	im := catalog.NewImporter(postgres.NewProductRepository(pool, cols), catalog.Options{Workers: workers})
	stats, err := im.Import(ctx, files)
	slog.Info("catalog import finished",
		slog.Int("files", stats.Files),
		slog.Int("rows", stats.Rows),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("rejected", stats.Rejected),
		slog.Int("upserted", stats.Upserted),
	)
	return err
}
