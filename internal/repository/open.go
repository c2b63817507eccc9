package repository

import (
	"context"
	"fmt"

	"telegram-points-bot/internal/config"
	"telegram-points-bot/internal/pkg/db"
)

// Open connects the backend selected by cfg. The caller owns the returned
// store and must Close it.
func Open(ctx context.Context, cfg *config.StoreConfig) (ScoreStore, error) {
	switch driver := cfg.ResolvedDriver(); driver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(pool), nil
	case config.DriverMongo:
		store, err := NewMongoStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverSQLite:
		store, err := NewSQLiteStore(cfg.URI)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
