// Package pg connects to PostgreSQL with pgx/v5 and applies goose
// migrations from an embedded filesystem.
//
// Config is populated from PG_* environment variables via
// github.com/caarlos0/env. Connect retries until the server answers a ping;
// Migrate runs against the same pool through pgx's database/sql bridge:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, migrations, "migrations", cfg, slog.Default()); err != nil {
//		return err
//	}
//
// IsDuplicateKeyError and IsNotFoundError classify driver errors.
package pg
