package ops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sqlitelib "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteKV is the durable KV backend. Version bumps and first-writer-wins
// creates ride on sqlite's own transactional guarantees, so concurrent
// processes sharing the file observe the same CAS semantics as MemoryKV.
type SQLiteKV struct {
	db   *sql.DB
	path string
}

// OpenSQLiteKV creates or opens the KV database under dir.
func OpenSQLiteKV(dir string) (*SQLiteKV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create kv dir: %w", err)
	}
	path := filepath.Join(dir, "ops_kv.db")
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open kv: %w", err)
	}
	kv := &SQLiteKV{db: db, path: path}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv_entries (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			version INTEGER NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize kv schema: %w", err)
	}
	return kv, nil
}

// Close closes the underlying database.
func (kv *SQLiteKV) Close() error {
	return kv.db.Close()
}

func (kv *SQLiteKV) Get(ctx context.Context, key string) ([]byte, int64, bool, error) {
	var value []byte
	var version int64
	err := kv.db.QueryRowContext(ctx,
		`SELECT value, version FROM kv_entries WHERE key = ?`, key,
	).Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, version, true, nil
}

func (kv *SQLiteKV) Create(ctx context.Context, key string, value []byte) error {
	_, err := kv.db.ExecContext(ctx,
		`INSERT INTO kv_entries (key, value, version) VALUES (?, ?, 1)`, key, value)
	if isConstraintViolation(err) {
		return ErrKeyExists
	}
	if err != nil {
		return fmt.Errorf("kv create %s: %w", key, err)
	}
	return nil
}

func (kv *SQLiteKV) Update(ctx context.Context, key string, value []byte, expectedVersion int64) error {
	res, err := kv.db.ExecContext(ctx,
		`UPDATE kv_entries SET value = ?, version = version + 1
		 WHERE key = ? AND version = ?`,
		value, key, expectedVersion)
	if err != nil {
		return fmt.Errorf("kv update %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("kv update %s: %w", key, err)
	}
	if affected == 0 {
		return ErrVersionMismatch
	}
	return nil
}

func isConstraintViolation(err error) bool {
	var se *sqlitelib.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT ||
			code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
