package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ahn-nath/confevo/internal/errors"
	"github.com/ahn-nath/confevo/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// sqlStore holds the queries shared by both backends. Placeholders are
// written with '?' and rebound per driver.
type sqlStore struct {
	db      *sqlx.DB
	logger  *logrus.Logger
	backend string
}

func (s *sqlStore) SaveRecords(ctx context.Context, runID string, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.StorageError(err, "begin history transaction")
	}
	defer tx.Rollback()

	// Re-scanned commits after an interrupted run must not duplicate history
	query := `
		INSERT INTO relationship_history (run_id, engine, source, target, changed_at, operation, recorded_at)
		VALUES (:run_id, :engine, :source, :target, :changed_at, :operation, :recorded_at)
		ON CONFLICT (engine, source, target, changed_at, operation) DO NOTHING
	`

	now := time.Now().UTC()
	for _, record := range records {
		row := historyRow{
			RunID:      runID,
			Engine:     record.Engine,
			Source:     record.Source,
			Target:     record.Target,
			ChangedAt:  record.Timestamp.UTC(),
			Operation:  record.Operation.String(),
			RecordedAt: now,
		}
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return errors.StorageError(err, "insert history record").
				WithContext("engine", record.Engine).
				WithContext("source", record.Source)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StorageError(err, "commit history transaction")
	}

	s.logger.WithFields(logrus.Fields{
		"backend": s.backend,
		"run_id":  runID,
		"records": len(records),
	}).Debug("History records saved")
	return nil
}

func (s *sqlStore) LatestBySource(ctx context.Context, engine string) ([]Relationship, error) {
	query := s.db.Rebind(`
		SELECT h.source, h.target, h.operation, h.changed_at
		FROM relationship_history h
		WHERE h.engine = ?
		  AND h.id = (
			SELECT MAX(h2.id) FROM relationship_history h2
			WHERE h2.engine = h.engine AND h2.source = h.source AND h2.target = h.target
		  )
		ORDER BY h.source, h.target
	`)

	var relationships []Relationship
	if err := s.db.SelectContext(ctx, &relationships, query, engine); err != nil {
		return nil, errors.StorageError(err, fmt.Sprintf("query relationships of %s", engine))
	}
	return relationships, nil
}

func (s *sqlStore) CountByEngine(ctx context.Context) ([]EngineCount, error) {
	query := `
		SELECT engine,
			COUNT(*) AS changes,
			SUM(CASE WHEN operation = 'added' THEN 1 ELSE 0 END) AS added,
			SUM(CASE WHEN operation = 'removed' THEN 1 ELSE 0 END) AS removed
		FROM relationship_history
		GROUP BY engine
		ORDER BY engine
	`

	var counts []EngineCount
	if err := s.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, errors.StorageError(err, "count history by engine")
	}
	return counts, nil
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	return s.db.Close()
}
