// Package storage keeps a queryable history of relationship changes next to
// the CSV dataset.
package storage

import (
	"context"
	"strings"
	"time"

	"github.com/ahn-nath/confevo/internal/models"
	"github.com/sirupsen/logrus"
)

// HistoryStore indexes every record a run appended
type HistoryStore interface {
	SaveRecords(ctx context.Context, runID string, records []models.Record) error
	LatestBySource(ctx context.Context, engine string) ([]Relationship, error)
	CountByEngine(ctx context.Context) ([]EngineCount, error)
	Close() error
}

// Relationship is the latest known state of one source→target pair
type Relationship struct {
	Source    string    `db:"source"`
	Target    string    `db:"target"`
	Operation string    `db:"operation"`
	ChangedAt time.Time `db:"changed_at"`
}

// Active reports whether the pair was last added rather than removed
func (r Relationship) Active() bool {
	return r.Operation == models.Added.String()
}

// EngineCount summarizes the recorded changes of one engine
type EngineCount struct {
	Engine  string `db:"engine"`
	Changes int64  `db:"changes"`
	Added   int64  `db:"added"`
	Removed int64  `db:"removed"`
}

// historyRow is the stored form of a models.Record
type historyRow struct {
	RunID      string    `db:"run_id"`
	Engine     string    `db:"engine"`
	Source     string    `db:"source"`
	Target     string    `db:"target"`
	ChangedAt  time.Time `db:"changed_at"`
	Operation  string    `db:"operation"`
	RecordedAt time.Time `db:"recorded_at"`
}

// Open selects a backend from the DSN: postgres:// and postgresql:// URLs
// use PostgreSQL, anything else is a SQLite file path (optionally sqlite://).
func Open(dsn string, logger *logrus.Logger) (HistoryStore, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		store, err := NewPostgresStore(dsn, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := NewSQLiteStore(strings.TrimPrefix(dsn, "sqlite://"), logger)
	if err != nil {
		return nil, err
	}
	return store, nil
}
