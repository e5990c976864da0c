// Package cache keeps commit file lists on disk between runs.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ahn-nath/confevo/internal/models"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const bucketName = "commit_files"

// Manager caches the full file list of each commit, keyed by SHA.
// Commit contents never change, so entries never expire.
type Manager struct {
	db     *bolt.DB
	logger *logrus.Logger
}

// Open opens (or creates) the cache database at path
func Open(path string, logger *logrus.Logger) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache bucket: %w", err)
	}

	logger.WithField("path", path).Debug("Commit cache opened")
	return &Manager{db: db, logger: logger}, nil
}

// Get returns the cached files for sha and whether an entry exists
func (m *Manager) Get(sha string) ([]models.ChangedFile, bool, error) {
	var files []models.ChangedFile
	found := false

	err := m.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return bolt.ErrBucketNotFound
		}
		data := bucket.Get([]byte(sha))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &files)
	})
	if err != nil {
		return nil, false, fmt.Errorf("read cached commit %s: %w", sha, err)
	}

	return files, found, nil
}

// Put stores the files of sha
func (m *Manager) Put(sha string, files []models.ChangedFile) error {
	data, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("encode commit %s: %w", sha, err)
	}

	return m.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(sha), data)
	})
}

// Len returns the number of cached commits
func (m *Manager) Len() (int, error) {
	n := 0
	err := m.db.View(func(tx *bolt.Tx) error {
		if bucket := tx.Bucket([]byte(bucketName)); bucket != nil {
			n = bucket.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// Clear drops every cached commit
func (m *Manager) Clear() error {
	m.logger.Info("Clearing commit cache")
	return m.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
}

// Close closes the cache database
func (m *Manager) Close() error {
	return m.db.Close()
}
