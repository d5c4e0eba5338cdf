package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLite db implementation. It keeps the same key layout as Badger in a
// single key/value table.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (or creates) the SQLite database at dbPath
func NewSQLite(dbPath string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite db %s: %w", dbPath, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db at path %s: %w", dbPath, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT    PRIMARY KEY,
			value      BLOB    NOT NULL,
			expires_at INTEGER
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Close the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) get(key []byte) ([]byte, error) {
	var val []byte
	err := s.db.QueryRow(
		`SELECT value FROM kv WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		string(key), s.now().Unix(),
	).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	return val, err
}

func (s *SQLite) set(key []byte, val []byte, ttl time.Duration) error {
	var expiresAt interface{}
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).Unix()
	}

	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, string(key), val, expiresAt)

	return err
}

// LoadReminders from the database. A missing list is an empty one.
func (s *SQLite) LoadReminders() ([]*Reminder, error) {
	val, err := s.get([]byte(RemindersKey))
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", RemindersKey, err)
	}

	if val == nil {
		return nil, nil
	}

	return decodeReminders(val)
}

// SaveReminders replaces the stored reminder list
func (s *SQLite) SaveReminders(reminders []*Reminder) error {
	data, err := encodeReminders(reminders)
	if err != nil {
		return err
	}

	if err = s.set([]byte(RemindersKey), data, 0); err != nil {
		return fmt.Errorf("failed to save %s: %w", RemindersKey, err)
	}

	return nil
}

// LastNotified returns the day key of the last delivery for the slot, or an
// empty string if there is none
func (s *SQLite) LastNotified(id uuid.UUID, slot string) (string, error) {
	val, err := s.get(lastNotifiedKey(id, slot))
	if err != nil {
		return "", fmt.Errorf("failed to get delivery record for reminder %s slot %s: %w", id, slot, err)
	}

	return string(val), nil
}

// MarkNotified records a delivery for the slot on the given day
func (s *SQLite) MarkNotified(id uuid.UUID, slot string, day string) error {
	if err := s.set(lastNotifiedKey(id, slot), []byte(day), MarkerTTL); err != nil {
		return fmt.Errorf("failed to record delivery for reminder %s slot %s: %w", id, slot, err)
	}

	return nil
}

// ClearNotified removes every delivery record of the reminder, along with any
// expired record left behind by other reminders
func (s *SQLite) ClearNotified(id uuid.UUID) error {
	_, err := s.db.Exec(
		`DELETE FROM kv WHERE substr(key, 1, ?) = ? OR (expires_at IS NOT NULL AND expires_at <= ?)`,
		len(lastNotifiedPrefixForReminder(id)), string(lastNotifiedPrefixForReminder(id)), s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to clear delivery records for reminder %s: %w", id, err)
	}

	return nil
}
