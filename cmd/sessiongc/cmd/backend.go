package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/sessionstore/pkg/pg"
	redisconn "github.com/dmitrymomot/sessionstore/pkg/redis"
	"github.com/dmitrymomot/sessionstore/pkg/session"
	"github.com/dmitrymomot/sessionstore/pkg/session/pgstore"
	"github.com/dmitrymomot/sessionstore/pkg/session/redisstore"
)

const (
	backendPostgres = "postgres"
	backendRedis    = "redis"
)

type backend struct {
	name  string
	store session.Store
	caps  session.Capabilities
	ping  func(ctx context.Context) error
	close func()
}

// openBackend connects to the named storage. With migrate set the Postgres
// schema is brought up to date first.
func openBackend(ctx context.Context, name string, migrate bool, log *slog.Logger) (*backend, error) {
	switch name {
	case backendPostgres:
		var cfg pg.Config
		if err := loadEnv(&cfg); err != nil {
			return nil, err
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := pgstore.Migrate(ctx, pool, cfg, log); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &backend{name: name, store: pgstore.New(pool), caps: pgstore.Capabilities, ping: pool.Ping, close: pool.Close}, nil

	case backendRedis:
		var cfg redisconn.Config
		if err := loadEnv(&cfg); err != nil {
			return nil, err
		}
		client, err := redisconn.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &backend{
			name:  name,
			store: redisstore.New(client, redisstore.WithPrefix(cfg.KeyPrefix)),
			caps:  redisstore.Capabilities,
			ping:  func(ctx context.Context) error { return client.Ping(ctx).Err() },
			close: func() { _ = client.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unknown backend %q, want %s or %s", name, backendPostgres, backendRedis)
}
