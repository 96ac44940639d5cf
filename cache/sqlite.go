package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteStore implements Store using a SQLite database file.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSqlite opens or creates a SQLite cache at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite cache: %w", err)
	}

	store := &SqliteStore{db: db, now: time.Now}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return store, nil
}

// OpenSqliteInMemory creates an in-memory cache (useful for testing).
func OpenSqliteInMemory() (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite cache: %w", err)
	}

	store := &SqliteStore{db: db, now: time.Now}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return store, nil
}

// WithClock overrides the time source. Used by tests to control expiry.
func (s *SqliteStore) WithClock(now func() time.Time) *SqliteStore {
	s.now = now
	return s
}

// Close closes the database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_cache_expires
		ON cache_entries(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the cached value for key. Expired entries are deleted on read
// and reported as absent.
func (s *SqliteStore) Get(key string) (string, bool, error) {
	var value string
	var expiresAt int64
	err := s.db.QueryRow(
		"SELECT value, expires_at FROM cache_entries WHERE key = ?", key,
	).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if s.now().Unix() >= expiresAt {
		if err := s.Delete(key); err != nil {
			return "", false, err
		}
		return "", false, nil
	}

	return value, true, nil
}

// Set stores value under key, replacing any existing entry.
func (s *SqliteStore) Set(key, value string, ttlSeconds int) error {
	expiresAt := s.now().Unix() + int64(ttlSeconds)
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)",
		key, value, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Delete removes an entry if present.
func (s *SqliteStore) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM cache_entries WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Purge removes every expired entry. Callers may run it periodically; Get
// already drops expired entries lazily.
func (s *SqliteStore) Purge() (int64, error) {
	res, err := s.db.Exec(
		"DELETE FROM cache_entries WHERE expires_at <= ?", s.now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	return res.RowsAffected()
}

var _ Store = (*SqliteStore)(nil)
