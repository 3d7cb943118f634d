// Command api-server serves the ticket admin HTTP API.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	tickets "github.com/xenking/ticket-admin/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := tickets.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "config")
		}
		return tickets.Run(ctx, lg.Named("tickets"), m, cfg)
	})
}
