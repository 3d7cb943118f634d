package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	_ "github.com/joho/godotenv/autoload"
	"github.com/shopspring/decimal"

	"github.com/xenking/ticket-admin/db"
	"github.com/xenking/ticket-admin/internal/domain/auth"
	"github.com/xenking/ticket-admin/internal/domain/product"
	"github.com/xenking/ticket-admin/internal/domain/ticket"
	"github.com/xenking/ticket-admin/internal/session"
	"github.com/xenking/ticket-admin/internal/storage/postgres"
)

type productJSON struct {
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	StockQuantity int             `json:"stockQuantity"`
	Kind          string          `json:"kind"`
}

type options struct {
	databaseURL  string
	productsFile string
	apiKey       string
	apiKeyPepper string
	operator     string
	password     string
	demoTicket   bool
}

func main() {
	var o options
	flag.StringVar(&o.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&o.productsFile, "products-file", "", "path to products JSON file; empty uses the embedded catalog")
	flag.StringVar(&o.apiKey, "api-key", "", "API key to seed (or TICKETS_SEED_API_KEY env)")
	flag.StringVar(&o.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or TICKETS_SESSION_API_KEY_PEPPER env)")
	flag.StringVar(&o.operator, "operator", "admin", "operator username to seed")
	flag.StringVar(&o.password, "operator-password", "", "operator password (or TICKETS_SEED_OPERATOR_PASSWORD env); empty skips the operator")
	flag.BoolVar(&o.demoTicket, "demo-ticket", false, "create a demo ticket with the first two products")
	flag.Parse()

	o.databaseURL = orEnv(o.databaseURL, "TICKETS_DATABASE_URL", "DATABASE_URL")
	o.apiKey = orEnv(o.apiKey, "TICKETS_SEED_API_KEY")
	o.apiKeyPepper = orEnv(o.apiKeyPepper, "TICKETS_SESSION_API_KEY_PEPPER")
	o.password = orEnv(o.password, "TICKETS_SEED_OPERATOR_PASSWORD")

	if o.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if o.apiKey == "" {
		slog.Error("API key is required: set --api-key or TICKETS_SEED_API_KEY")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, o); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed successfully")
}

func orEnv(v string, keys ...string) string {
	for _, k := range keys {
		if v != "" {
			break
		}
		v = os.Getenv(k)
	}
	return v
}

func run(ctx context.Context, o options) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, o.databaseURL, postgres.PoolConfig{ApplicationName: "seed-db"})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	cols := product.DefaultColumns()
	products := postgres.NewProductRepository(pool, cols)

	codes, err := seedProducts(ctx, products, o.productsFile)
	if err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), o.apiKey, o.apiKeyPepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	if o.password != "" {
		if err := seedOperator(ctx, postgres.NewOperatorRepository(pool), o.operator, o.password); err != nil {
			return errors.Wrap(err, "seed operator")
		}
	}
	if o.demoTicket && len(codes) >= 2 {
		svc, err := ticket.NewService(postgres.NewTicketRepository(pool, cols, postgres.TicketConfig{}), ticket.ServiceConfig{Columns: cols})
		if err != nil {
			return errors.Wrap(err, "create ticket service")
		}
		if err := seedTicket(ctx, svc, codes[:2]); err != nil {
			return errors.Wrap(err, "seed demo ticket")
		}
	}
	return nil
}

func seedProducts(ctx context.Context, repo product.Repository, productsFile string) ([]string, error) {
	data := db.Products
	if productsFile != "" {
		slog.Info("reading products file", slog.String("path", productsFile))

		var err error
		if data, err = os.ReadFile(productsFile); err != nil {
			return nil, errors.Wrap(err, "read products file")
		}
	}
	var items []productJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(items)))

	codes := make([]string, 0, len(items))
	for _, it := range items {
		p := product.Product{
			Code:      it.Code,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Stock:     it.StockQuantity,
			Kind:      it.Kind,
		}
		if err := p.Validate(); err != nil {
			return nil, errors.Wrapf(err, "product %s", it.Code)
		}
		if err := repo.Upsert(ctx, p); err != nil {
			return nil, errors.Wrapf(err, "upsert product %s", it.Code)
		}
		codes = append(codes, p.Code)
		slog.Info("upserted product", slog.String("code", p.Code), slog.String("name", p.Name))
	}
	return codes, nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	keys := session.NewKeyProvider(repo, []byte(pepper))
	if err := repo.Save(ctx, auth.APIKeyInfo{
		ID:      "default",
		KeyHash: keys.Hash(apiKey),
		Name:    "Default admin key",
		Scopes:  []string{"admin"},
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"))
	return nil
}

func seedOperator(ctx context.Context, repo *postgres.OperatorRepository, username, password string) error {
	hash, err := session.HashPassword(password)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	op := &auth.Operator{Username: username, PasswordHash: hash, Role: "admin"}
	if err := repo.Save(ctx, op); err != nil {
		return errors.Wrap(err, "upsert operator")
	}

	slog.Info("upserted operator", slog.String("username", username), slog.Int64("id", op.ID))
	return nil
}

func seedTicket(ctx context.Context, svc *ticket.Service, codes []string) error {
	t, err := svc.Create(ctx)
	if err != nil {
		return err
	}
	for _, code := range codes {
		if _, err := svc.AddProduct(ctx, ticket.AddProductRequest{TicketID: t.ID, ProductCode: code, Quantity: 1}); err != nil {
			return errors.Wrapf(err, "add %s", code)
		}
	}

	t, err = svc.Get(ctx, t.ID)
	if err != nil {
		return err
	}
	slog.Info("created demo ticket", slog.Int64("id", t.ID), slog.String("total", t.Total.String()))
	return nil
}
