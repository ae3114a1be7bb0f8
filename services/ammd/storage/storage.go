package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	_ "github.com/glebarez/sqlite"
)

// Storage is the sqlite-backed key/value store behind the engine. Values are
// RLP-encoded; list keys accumulate append-only rows.
type Storage struct {
	db *sql.DB
}

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("ammd storage path must be configured")

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(dsn string) (*Storage, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// KVPut stores the RLP encoding of value under key, replacing any previous
// value.
func (s *Storage) KVPut(key []byte, value interface{}) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	_, err = s.db.Exec(`
        INSERT INTO kv_records(key, value) VALUES(?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value
    `, key, encoded)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

// KVGet loads the value stored under key into out. Reports false when the
// key is absent.
func (s *Storage) KVGet(key []byte, out interface{}) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("storage not configured")
	}
	row := s.db.QueryRow(`SELECT value FROM kv_records WHERE key = ?`, key)
	var encoded []byte
	if err := row.Scan(&encoded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query record: %w", err)
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, fmt.Errorf("decode value: %w", err)
	}
	return true, nil
}

// KVAppend adds an entry to the list stored under key.
func (s *Storage) KVAppend(key []byte, value []byte) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if _, err := s.db.Exec(`INSERT INTO kv_lists(key, value) VALUES(?, ?)`, key, value); err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

// KVGetList loads every entry appended under key, in insertion order, into
// out (a pointer to a slice of byte slices).
func (s *Storage) KVGetList(key []byte, out interface{}) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	rows, err := s.db.Query(`SELECT value FROM kv_lists WHERE key = ? ORDER BY id ASC`, key)
	if err != nil {
		return fmt.Errorf("query list: %w", err)
	}
	defer rows.Close()
	var entries [][]byte
	for rows.Next() {
		var value []byte
		if err := rows.Scan(&value); err != nil {
			return fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, value)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate list: %w", err)
	}
	encoded, err := rlp.EncodeToBytes(entries)
	if err != nil {
		return fmt.Errorf("encode list: %w", err)
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS kv_records (
    key BLOB PRIMARY KEY,
    value BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS kv_lists (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    key BLOB NOT NULL,
    value BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_kv_lists_key ON kv_lists(key, id);
`
