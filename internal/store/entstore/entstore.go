// Package entstore provides a store.Driver backed by plain SQL executed
// through database/sql with OTEL instrumentation via otelsql.
//
// It uses the same Postgres schema as the sqlx driver but accesses it through
// the standard database/sql interface, which is the approach ent uses under
// the hood. When full ent schema codegen is added the raw queries below can
// be replaced by ent client calls.
package entstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq" // postgres driver
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/MitchForest/settlers-sub000/internal/clock"
	"github.com/MitchForest/settlers-sub000/internal/config"
	"github.com/MitchForest/settlers-sub000/internal/store"
)

// closerFunc adapts a func() error into an io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func init() {
	store.Register("sql", openSQL)
}

// openSQL is the store.Driver for the "sql" backend.
func openSQL(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &store.Repositories{
		Games:   NewGameRepo(db, clk),
		Players: NewPlayerRepo(db, clk),
		Events:  NewEventStore(db, clk),
		Closer:  closerFunc(db.Close),
		Ping:    db.PingContext,
	}, nil
}

// Connect opens and verifies a Postgres connection via database/sql with
// OTEL instrumentation.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.DSN()

	db, err := otelsql.Open("postgres", dsn,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}
