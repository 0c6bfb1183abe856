package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/report-hub/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "gpse.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore connects, applies migrations and, when seed is set, loads the
// KPI library plus demo data per config. Callers must Close the store.
func openStore(ctx context.Context, seed bool) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	if seed {
		if err := store.Seed(ctx, st, cfg.Seed.Demo); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
	}
	zap.L().Debug("store ready",
		zap.String("driver", cfg.Store.Driver),
		zap.Bool("seeded", seed),
	)
	return st, nil
}
