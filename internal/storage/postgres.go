package storage

import (
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// PostgresStore keeps history in a shared PostgreSQL database
type PostgresStore struct {
	sqlStore
}

// NewPostgresStore creates a new PostgreSQL history store
func NewPostgresStore(dsn string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &PostgresStore{sqlStore{db: db, logger: logger, backend: "postgres"}}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS relationship_history (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID NOT NULL,
			engine TEXT NOT NULL,
			source TEXT NOT NULL,
			target TEXT NOT NULL,
			changed_at TIMESTAMPTZ NOT NULL,
			operation TEXT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL,
			UNIQUE (engine, source, target, changed_at, operation)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_engine ON relationship_history(engine, source, target)`,
		`CREATE INDEX IF NOT EXISTS idx_history_run ON relationship_history(run_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
