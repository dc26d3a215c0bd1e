package aggregator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/sqlite"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "analytics.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	s := NewStore(db, SQLite)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSaveAndList(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	latest, err := s.LatestSnapshot(ctx)
	if err != nil || latest != nil {
		t.Fatalf("empty store: %v %v", latest, err)
	}
	for i := 1; i <= 3; i++ {
		if err := s.SaveSnapshot(ctx, analytics.Stats{TotalQueries: int64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	latest, err = s.LatestSnapshot(ctx)
	if err != nil || latest.TotalQueries != 3 || latest.CapturedAt.IsZero() {
		t.Fatalf("latest = %+v, %v", latest, err)
	}
	list, err := s.ListSnapshots(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].TotalQueries != 3 || list[1].TotalQueries != 2 {
		t.Errorf("list = %+v", list)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestBindPlaceholders(t *testing.T) {
	pg := &Store{dialect: Postgres}
	if got := pg.bind("VALUES (?, ?)"); got != "VALUES ($1, $2)" {
		t.Errorf("postgres bind = %s", got)
	}
	lite := &Store{dialect: SQLite}
	if got := lite.bind("LIMIT ?"); got != "LIMIT ?" {
		t.Errorf("sqlite bind = %s", got)
	}
}

func TestPeriodicSaveWritesFinalSnapshot(t *testing.T) {
	s := newSQLiteStore(t)
	agg := analytics.NewAggregator()
	agg.Record(analytics.QueryEvent{Op: analytics.OpSearch, Total: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := s.StartPeriodicSave(ctx, agg, time.Hour)
	cancel()
	<-done

	latest, err := s.LatestSnapshot(context.Background())
	if err != nil || latest == nil || latest.TotalQueries != 1 {
		t.Fatalf("final snapshot missing: %+v %v", latest, err)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	s, closeFn, err := Open(ctx, config.AnalyticsConfig{Store: "none"}, config.PostgresConfig{})
	if err != nil || s != nil || closeFn() != nil {
		t.Fatalf("none: %v %v", s, err)
	}

	path := filepath.Join(t.TempDir(), "a.db")
	s, closeFn, err = Open(ctx, config.AnalyticsConfig{Store: "sqlite", SQLitePath: path}, config.PostgresConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if err := s.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}

	if _, _, err := Open(ctx, config.AnalyticsConfig{Store: "mongo"}, config.PostgresConfig{}); err == nil {
		t.Error("unknown backend must fail")
	}
}
