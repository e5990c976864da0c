package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SQLiteStore keeps history in a local SQLite file
type SQLiteStore struct {
	sqlStore
}

// NewSQLiteStore creates a new SQLite history store
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	db.Exec("PRAGMA journal_mode = WAL")

	store := &SQLiteStore{sqlStore{db: db, logger: logger, backend: "sqlite"}}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS relationship_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		engine TEXT NOT NULL,
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		changed_at DATETIME NOT NULL,
		operation TEXT NOT NULL,
		recorded_at DATETIME NOT NULL,
		UNIQUE (engine, source, target, changed_at, operation)
	);

	CREATE INDEX IF NOT EXISTS idx_history_engine ON relationship_history(engine, source, target);
	CREATE INDEX IF NOT EXISTS idx_history_run ON relationship_history(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}
