package app

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rodweleo/guess-my-valentine/cmd/internal/migrations"
)

// NewDBPool builds a pgxpool with sane defaults and validates connectivity.
// Migrations run separately, see MigrateDB.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

// MigrateDB applies the embedded schema migrations when auto-migrate is on.
func MigrateDB(ctx context.Context, pool *pgxpool.Pool, cfg Config, log Logger) error {
	if !cfg.DBAutoMigrate {
		log.Info("db.migrate.skipped", "schema", cfg.DBSchema)
		return nil
	}
	mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return migrations.Apply(mctx, pool, cfg.DBSchema, log)
}
