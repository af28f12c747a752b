// Package app wires and runs a relay instance.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/mirokugang/mukon/internal/client/client"
	"github.com/mirokugang/mukon/internal/common"
	"github.com/mirokugang/mukon/internal/logging"
	"github.com/mirokugang/mukon/internal/relay"
	"github.com/mirokugang/mukon/internal/relay/config"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	server  *relay.Server
	closers []func() error
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, c.LogFormat, c.LogLevel)
	app := &App{config: c, logger: logger}

	secret := []byte(c.Secret)
	if len(secret) == 0 {
		var err error
		if secret, err = common.RandomBytes(32); err != nil {
			return nil, fmt.Errorf("challenge secret: %w", err)
		}
	}

	var authorizer relay.Authorizer = relay.NewDerivedAuthorizer(c.SchemaVersion)
	if c.LedgerAddr != "" {
		lc, err := client.NewLedgerClient(c.LedgerAddr, c.SchemaVersion, client.DefaultRetryPolicy())
		if err != nil {
			return nil, fmt.Errorf("ledger client: %w", err)
		}
		app.closers = append(app.closers, lc.Close)
		authorizer = relay.NewLedgerAuthorizer(lc)
	}

	var broker relay.Broker = relay.LocalBroker{}
	if c.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			app.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		app.closers = append(app.closers, rdb.Close)
		broker = relay.NewRedisBroker(rdb, uuid.NewString())
	}

	app.server = relay.NewServer(relay.Options{
		Secret:          secret,
		AuthTimeout:     c.AuthTimeout,
		MaxAuthFailures: c.MaxAuthFailures,
		SendQueue:       c.SendQueue,
		MaxMessageSize:  c.MaxMessageSize,
	}, authorizer, broker, logger)

	return app, nil
}

func (app *App) close() {
	for _, c := range app.closers {
		_ = c()
	}
}

// Run serves until SIGINT/SIGTERM or ctx cancellation.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	defer app.close()

	app.logger.Info(ctx, "Starting relay...",
		"ledger", app.config.LedgerAddr,
		"redis", app.config.RedisAddr,
	)
	return app.server.Run(ctx, app.config.EndpointAddr)
}
