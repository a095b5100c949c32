package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Postgres implements the Storage interface using PostgreSQL.
type Postgres struct {
	*sqlStore
}

var _ Storage = (*Postgres)(nil)

// NewPostgres connects to the database at dsn and applies pending migrations.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db, postgresMigrations, "INSERT INTO schema_migrations (version) VALUES ($1)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewPostgresFromDB(db), nil
}

// NewPostgresFromDB wraps an already migrated connection pool.
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{sqlStore: &sqlStore{db: db, d: postgresDialect}}
}
