// Package cursor persists the resumable "last processed timestamp" between runs.
package cursor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/ahn-nath/confevo/internal/errors"
	"github.com/ahn-nath/confevo/internal/models"
	"github.com/sirupsen/logrus"
)

// Skew is added to the newest commit date so the next run's inclusive
// "since" filter does not return that commit again.
const Skew = time.Second

var validTimestamp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d+Z$`)

// file is the on-disk form: {"last_date": "<ISO-8601>" | null}
type file struct {
	LastDate *string `json:"last_date"`
}

// Store reads and writes the cursor file
type Store struct {
	path   string
	logger *logrus.Logger
}

// NewStore creates a cursor store for path
func NewStore(path string, logger *logrus.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the cursor file location
func (s *Store) Path() string {
	return s.path
}

// IsValid reports whether value is an ISO-8601 UTC instant with sub-second precision
func IsValid(value string) bool {
	if !validTimestamp.MatchString(value) {
		return false
	}
	_, err := time.Parse(time.RFC3339Nano, value)
	return err == nil
}

// Load returns the stored cursor. Any read or validation failure yields an
// absent cursor so the caller falls back to a full re-scan.
func (s *Store) Load() models.Cursor {
	c, err := s.load()
	if err != nil {
		s.logger.WithError(err).WithField("path", s.path).Warn("Cursor unavailable, re-scanning from epoch")
		return models.Cursor{}
	}
	return c
}

func (s *Store) load() (models.Cursor, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.Cursor{}, nil
		}
		return models.Cursor{}, errors.CursorReadError(err, "read cursor file")
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return models.Cursor{}, errors.CursorReadError(err, "decode cursor file")
	}

	if f.LastDate == nil {
		return models.Cursor{}, nil
	}
	if !IsValid(*f.LastDate) {
		return models.Cursor{}, errors.CursorReadError(fmt.Errorf("%q is not an ISO-8601 UTC timestamp", *f.LastDate), "validate cursor")
	}

	t, _ := time.Parse(time.RFC3339Nano, *f.LastDate)
	t = t.UTC()
	return models.Cursor{LastDate: &t}, nil
}

// Save overwrites the cursor file atomically
func (s *Store) Save(c models.Cursor) error {
	var f file
	if c.LastDate != nil {
		value := models.FormatTimestamp(*c.LastDate)
		f.LastDate = &value
	}

	data, err := json.Marshal(f)
	if err != nil {
		return errors.FileSystemError(err, "encode cursor")
	}

	if err := writeAtomic(s.path, data); err != nil {
		return errors.FileSystemErrorf(err, "write cursor %s", s.path)
	}

	s.logger.WithField("last_date", c.LastDate).Debug("Cursor saved")
	return nil
}

// Advance returns the cursor for a run whose newest commit is at last
func Advance(last time.Time) models.Cursor {
	next := last.Add(Skew).UTC().Truncate(time.Millisecond)
	return models.Cursor{LastDate: &next}
}

// writeAtomic writes data to a temp file beside path and renames it into place
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
