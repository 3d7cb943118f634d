package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/ticket-admin/internal/domain/ticket"
	"github.com/xenking/ticket-admin/internal/handler"
	"github.com/xenking/ticket-admin/internal/session"
	"github.com/xenking/ticket-admin/internal/storage/postgres"
	"github.com/xenking/ticket-admin/pkg/health"
	"github.com/xenking/ticket-admin/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("catalog_table", cfg.Catalog.Table),
		zap.Bool("debug", cfg.Debug.Enabled),
	)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		ApplicationName: "ticket-admin",
	})
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	svc, err := wire(ctx, lg, m, cfg, pool)
	if err != nil {
		return err
	}
	svc.health.Start(ctx, 10*time.Second)
	svc.health.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Reconcile.Timeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           svc.handler,
	}

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		svc.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		svc.health.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// columnNames adapts the inspector to the health column lister.
func columnNames(i *postgres.Inspector) health.ColumnLister {
	return func(ctx context.Context, table string) ([]string, error) {
		cols, err := i.Columns(ctx, table)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(cols))
		for n, c := range cols {
			names[n] = c.Name
		}
		return names, nil
	}
}

// service is the HTTP surface built by wire.
type service struct {
	handler http.Handler
	health  *health.Service
}

// wire builds repositories, services and the middleware chain on pool.
// Health probes are registered but not started.
func wire(
	ctx context.Context,
	lg *zap.Logger,
	tel httpmiddleware.Telemetry,
	cfg *Config,
	pool *pgxpool.Pool,
) (*service, error) {
	cols := cfg.Catalog.Columns()
	inspector := postgres.NewInspector(pool)

	healthSvc := health.New(lg.Named("health"))
	healthSvc.AddReadiness(health.Check{
		Name:    "postgres",
		Timeout: 5 * time.Second,
		Func:    inspector.Ping,
	})
	healthSvc.AddReadiness(health.Check{
		Name:    "catalog",
		Timeout: 5 * time.Second,
		Func: health.ColumnsCheck(columnNames(inspector), cols.Table,
			[]string{cols.Code}, []string{cols.Stock}, cols.Price),
	})
	healthSvc.AddLiveness(health.Check{
		Name: "goroutines",
		Func: health.GoroutineCountCheck(10000),
	})

	productRepo := postgres.NewProductRepository(pool, cols)
	ticketRepo := postgres.NewTicketRepository(pool, cols, postgres.TicketConfig{
		MaxRetries:    cfg.Reconcile.MaxRetries,
		RetryInterval: cfg.Reconcile.RetryInterval,
	})
	apikeyRepo := postgres.NewAPIKeyRepository(pool)
	operatorRepo := postgres.NewOperatorRepository(pool)

	ticketSvc, err := ticket.NewService(ticketRepo, ticket.ServiceConfig{
		Columns:        cols,
		Timeout:        cfg.Reconcile.Timeout,
		TracerProvider: tel.TracerProvider(),
		MeterProvider:  tel.MeterProvider(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create ticket service")
	}

	sessions := session.Chain{
		Keys: session.NewKeyProvider(apikeyRepo, []byte(cfg.Session.APIKeyPepper)),
	}
	var login handler.Authenticator
	if cfg.Session.TokenKey != "" {
		tokens := session.NewTokenProvider([]byte(cfg.Session.TokenKey), cfg.Session.Issuer, cfg.Session.TTL)
		sessions.Tokens = tokens
		login = session.NewLogin(operatorRepo, tokens)
	} else {
		lg.Warn("Session token key not set, operator login disabled")
	}

	h := handler.New(
		handler.Config{
			CatalogTable: cols.Table,
			Debug:        cfg.Debug.Enabled,
			SampleRows:   cfg.Debug.SampleRows,
		},
		productRepo,
		ticketSvc,
		sessions,
		login,
		inspector,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	return &service{
		health: healthSvc,
		handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "api_key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument("ticket-admin", routeFinder, tel),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}, nil
}
