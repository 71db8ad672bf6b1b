package cache

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Schema for the listing_cache table. Applied by NewSQLiteStore.
const Schema = `
CREATE TABLE IF NOT EXISTS listing_cache (
	key        TEXT PRIMARY KEY,
	ts         INTEGER NOT NULL,
	refreshing INTEGER NOT NULL DEFAULT 0,
	payload    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_listing_cache_ts ON listing_cache(ts);
`

// OpenDB opens (creating if needed) the SQLite database backing the
// durable caches.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: ping sqlite %q: %w", path, err)
	}
	return db, nil
}

// SQLiteStore is the durable Store backend. Writes are read-modify-write
// without cross-process locking; the cache component serializes writers
// within the process.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps the given database connection and applies the
// schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("cache: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(key string) (*Entry, bool, error) {
	row := s.db.QueryRow(`SELECT ts, refreshing, payload FROM listing_cache WHERE key = ?`, key)

	var e Entry
	var refreshing int
	if err := row.Scan(&e.Timestamp, &refreshing, &e.Payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: get %q: %w", key, err)
	}
	e.Refreshing = refreshing != 0
	return &e, true, nil
}

func (s *SQLiteStore) Set(key string, e *Entry) error {
	refreshing := 0
	if e.Refreshing {
		refreshing = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO listing_cache (key, ts, refreshing, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET ts = excluded.ts, refreshing = excluded.refreshing, payload = excluded.payload
	`, key, e.Timestamp, refreshing, []byte(e.Payload))
	if err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM listing_cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("cache: delete %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Keys() ([]KeyInfo, error) {
	rows, err := s.db.Query(`SELECT key, ts, length(payload) FROM listing_cache ORDER BY ts`)
	if err != nil {
		return nil, fmt.Errorf("cache: keys: %w", err)
	}
	defer rows.Close()

	var infos []KeyInfo
	for rows.Next() {
		var info KeyInfo
		if err := rows.Scan(&info.Key, &info.Timestamp, &info.Size); err != nil {
			return nil, fmt.Errorf("cache: scan key: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM listing_cache`); err != nil {
		return fmt.Errorf("cache: clear: %w", err)
	}
	return nil
}
