package aggregator

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/sqlite"
)

// Open connects the backend selected by cfg.Store and migrates it. Store
// "none" returns a nil Store.
func Open(ctx context.Context, cfg config.AnalyticsConfig, pg config.PostgresConfig) (*Store, func() error, error) {
	switch cfg.Store {
	case "none", "":
		return nil, func() error { return nil }, nil
	case "postgres":
		client, err := postgres.New(ctx, pg)
		if err != nil {
			return nil, nil, err
		}
		s := NewStore(client.DB, Postgres)
		if err := s.Migrate(ctx); err != nil {
			client.Close()
			return nil, nil, err
		}
		return s, client.Close, nil
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		s := NewStore(db, SQLite)
		if err := s.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown analytics store %q", cfg.Store)
	}
}

// Ping checks the backing database.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
