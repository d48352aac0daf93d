// Package database wraps a bitcask key/value store holding the download
// history: one JSON-encoded models.HistoryEntry per model version ID.
package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"

	"go-civitai-fetch/internal/models"
)

// ErrNotFound is returned when a key is not found in the database.
var ErrNotFound = errors.New("key not found")

// DB wraps the bitcask instance and provides helper methods.
type DB struct {
	db *bitcask.Bitcask
}

// Open initializes and returns a DB instance, creating parent directories
// as needed.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := bitcask.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}

	log.Debugf("Download history database opened at %s", path)
	return &DB{db: db}, nil
}

// Get retrieves the raw value for a key.
func (d *DB) Get(key []byte) ([]byte, error) {
	value, err := d.db.Get(key)
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// Put stores a raw value under a key.
func (d *DB) Put(key, value []byte) error {
	return d.db.Put(key, value)
}

// Fold iterates every key/value pair in the store.
func (d *DB) Fold(fn func(key, value []byte) error) error {
	return d.db.Fold(func(key []byte) error {
		value, err := d.db.Get(key)
		if err != nil {
			return err
		}
		return fn(key, value)
	})
}

// Close syncs and closes the store.
func (d *DB) Close() error {
	return d.db.Close()
}

// VersionKey builds the history key for a model version ID.
func VersionKey(versionID int) []byte {
	return []byte("v_" + strconv.Itoa(versionID))
}

// PutEntry stores a history entry under its version key.
func (d *DB) PutEntry(entry models.HistoryEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry for version %d: %w", entry.VersionID, err)
	}
	return d.Put(VersionKey(entry.VersionID), raw)
}

// GetEntry loads the history entry for a version ID.
func (d *DB) GetEntry(versionID int) (models.HistoryEntry, error) {
	raw, err := d.Get(VersionKey(versionID))
	if err != nil {
		return models.HistoryEntry{}, err
	}
	var entry models.HistoryEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return models.HistoryEntry{}, fmt.Errorf("failed to unmarshal history entry for version %d: %w", versionID, err)
	}
	return entry, nil
}

// FoldEntries iterates every decodable history entry. Undecodable values
// are logged and skipped rather than aborting the fold.
func (d *DB) FoldEntries(fn func(entry models.HistoryEntry) error) error {
	return d.Fold(func(key, value []byte) error {
		var entry models.HistoryEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			log.WithError(err).Warnf("Skipping undecodable history entry %s", string(key))
			return nil
		}
		return fn(entry)
	})
}
