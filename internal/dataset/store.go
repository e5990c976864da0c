// Package dataset reads and rewrites the append-only CSV dataset.
package dataset

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/ahn-nath/confevo/internal/errors"
	"github.com/sirupsen/logrus"
)

// Dataset headers
const (
	HeaderRelationships = "engine,source,target,timestamp,operation\n"
	HeaderLegacy        = "city,temperature,timestamp\n"
)

// Store reads and writes the dataset file. The whole file is rewritten on
// every append; the dataset is small enough that streaming is unnecessary.
type Store struct {
	path   string
	header string
	logger *logrus.Logger
}

// NewStore creates a dataset store for path using header on first run
func NewStore(path, header string, logger *logrus.Logger) *Store {
	return &Store{path: path, header: header, logger: logger}
}

// Path returns the dataset file location
func (s *Store) Path() string {
	return s.path
}

// Header returns the header written on first run
func (s *Store) Header() string {
	return s.header
}

// Exists reports whether the dataset file is present
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load returns the current dataset content, or just the header if the file is absent
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.WithField("path", s.path).Debug("Dataset not found, starting with header")
			return s.header, nil
		}
		return "", errors.FileSystemErrorf(err, "read dataset %s", s.path)
	}
	return string(data), nil
}

// Write replaces the dataset with content atomically
func (s *Store) Write(content string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.FileSystemErrorf(err, "create dataset directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*")
	if err != nil {
		return errors.FileSystemErrorf(err, "create temp dataset in %s", dir)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return errors.FileSystemErrorf(err, "write dataset %s", s.path)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.FileSystemErrorf(err, "sync dataset %s", s.path)
	}
	if err := tmp.Close(); err != nil {
		return errors.FileSystemErrorf(err, "close dataset %s", s.path)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.FileSystemErrorf(err, "replace dataset %s", s.path)
	}
	return nil
}

// Remove deletes the dataset file. A missing file is not an error.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.FileSystemErrorf(err, "remove dataset %s", s.path)
	}
	return nil
}

// Append writes existing followed by newRows
func (s *Store) Append(existing, newRows string) error {
	if err := s.Write(existing + newRows); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"path": s.path,
		"rows": CountLines(newRows),
	}).Debug("Dataset appended")
	return nil
}

// FormatRow joins fields with commas and terminates the line.
// Fields containing a delimiter or quote are quoted; plain fields are written verbatim.
func FormatRow(fields ...string) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	// Writing to a bytes.Buffer cannot fail
	w.Write(fields)
	w.Flush()
	return buf.String()
}

// CountLines counts newline-terminated lines in rows
func CountLines(rows string) int {
	return strings.Count(rows, "\n")
}

// CountRows counts data rows in content, excluding the header line
func CountRows(content string) int {
	n := CountLines(content)
	if n == 0 {
		return 0
	}
	return n - 1
}
