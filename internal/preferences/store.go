package preferences

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Keys written by the agent. They match the names the mobile client used.
const (
	KeyIsSignedIn = "isSignedIn"
	KeyUserID     = "userId"
	KeyName       = "name"
	KeyImage      = "image"
	KeyFCMToken   = "fcmToken"
	KeyDeviceID   = "deviceId"
)

const schema = `
CREATE TABLE IF NOT EXISTS preferences (
  key        TEXT PRIMARY KEY,
  value      TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);
`

// Store is the local configuration store: string and boolean values that
// survive restarts, plus a clear-all used at sign-out.
type Store struct {
	db        *sql.DB
	deviceMu  sync.Mutex
	closeOnce sync.Once
}

// Open opens (or creates) the SQLite file at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create preferences directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open preferences database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping preferences database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply preferences schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	var closeErr error
	s.closeOnce.Do(func() {
		closeErr = s.db.Close()
	})
	return closeErr
}

func (s *Store) PutString(key string, value string) error {
	if key == "" {
		return errors.New("preference key is required")
	}
	_, err := s.db.Exec(
		`INSERT INTO preferences (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		value,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put preference %q: %w", key, err)
	}
	return nil
}

// GetString returns "" for a key that was never written.
func (s *Store) GetString(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get preference %q: %w", key, err)
	}
	return value, nil
}

func (s *Store) PutBool(key string, value bool) error {
	return s.PutString(key, strconv.FormatBool(value))
}

func (s *Store) GetBool(key string) (bool, error) {
	value, err := s.GetString(key)
	if err != nil || value == "" {
		return false, err
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parse preference %q: %w", key, err)
	}
	return parsed, nil
}

// Clear drops the signed in user's values. The device id identifies the
// installation, not the account, and is kept.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM preferences WHERE key <> ?`, KeyDeviceID); err != nil {
		return fmt.Errorf("clear preferences: %w", err)
	}
	return nil
}

// DeviceID returns the identifier this agent registers with the push relay,
// generating one on first use.
func (s *Store) DeviceID() (string, error) {
	s.deviceMu.Lock()
	defer s.deviceMu.Unlock()

	id, err := s.GetString(KeyDeviceID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := s.PutString(KeyDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}
