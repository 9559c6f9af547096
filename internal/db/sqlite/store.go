// Package sqlite implements db.Store on a single-file SQLite database.
//
// It is the zero-infrastructure driver: collections live under a local data
// directory and survive restarts without an external server. KNN search is
// an exact cosine scan, which is fine at corpus scale (thousands of chunks).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kailas-cloud/docqa/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Config holds parameters for a SQLite store.
type Config struct {
	// DataDir is the root directory for the database file. Created if absent.
	DataDir string
	// Filename overrides the database file name (default "docqa.db").
	Filename string
}

// Store implements db.Store on modernc.org/sqlite.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS hash_fields (
	key   TEXT NOT NULL,
	field TEXT NOT NULL,
	value BLOB NOT NULL,
	PRIMARY KEY (key, field)
);
CREATE TABLE IF NOT EXISTS indexes (
	name       TEXT PRIMARY KEY,
	definition TEXT NOT NULL
);
`

// NewStore opens (or creates) the database file under cfg.DataDir.
func NewStore(cfg Config) (*Store, error) {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	filename := cfg.Filename
	if filename == "" {
		filename = "docqa.db"
	}
	dbPath := filepath.Join(dataDir, filename)

	sqlDB, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: sqlDB, path: dbPath}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ping checks database availability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() {
	_ = s.db.Close()
}

// WaitForReady polls Ping until the store responds or timeout expires.
// A local file is ready immediately in practice; the loop keeps the driver
// interchangeable with networked stores.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := s.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// --- HashStore ---

// HSet sets hash fields.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	if err := hsetTx(ctx, tx, key, fields); err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	return nil
}

// HSetMulti stores multiple hashes in one transaction.
func (s *Store) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	for _, item := range items {
		if err := hsetTx(ctx, tx, item.Key, item.Fields); err != nil {
			return &db.Error{Op: db.OpHSet, Err: fmt.Errorf("key %s: %w", item.Key, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	return nil
}

func hsetTx(ctx context.Context, tx *sql.Tx, key string, fields map[string]string) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hash_fields (key, field, value) VALUES (?, ?, ?)
		ON CONFLICT (key, field) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for f, v := range fields {
		if _, err := stmt.ExecContext(ctx, key, f, []byte(v)); err != nil {
			return err
		}
	}
	return nil
}

// HGetAll returns all fields of a hash. A missing key yields an empty map,
// matching Redis HGETALL semantics.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, value FROM hash_fields WHERE key = ?`, key)
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}
	defer func() { _ = rows.Close() }()

	m := make(map[string]string)
	for rows.Next() {
		var field string
		var value []byte
		if err := rows.Scan(&field, &value); err != nil {
			return nil, &db.Error{Op: db.OpHGetAll, Err: err}
		}
		m[field] = string(value)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}
	return m, nil
}

// Del deletes a key from both the hash and kv tables.
func (s *Store) Del(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM hash_fields WHERE key = ?`, key); err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}

// Exists checks if a key exists in either table.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT key FROM hash_fields WHERE key = ?
			UNION SELECT key FROM kv WHERE key = ?
		)`, key, key).Scan(&n)
	if err != nil {
		return false, &db.Error{Op: db.OpExists, Err: err}
	}
	return n > 0, nil
}

// Scan returns distinct keys matching a glob-style pattern (* wildcard).
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	like := globToLike(pattern)
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT key FROM hash_fields WHERE key LIKE ? ESCAPE '\'
		UNION SELECT key FROM kv WHERE key LIKE ? ESCAPE '\'`, like, like)
	if err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}
	return keys, nil
}

// globToLike converts a Redis MATCH-style glob to a SQL LIKE pattern.
func globToLike(pattern string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(pattern)
	return strings.ReplaceAll(escaped, "*", "%")
}

// --- KVStore ---

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return value, nil
}

// Set stores a value at the given key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}

// --- IndexManager ---

// CreateIndex records an index definition. KNN search resolves prefixes and
// the vector dimension from it.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}

	data, err := json.Marshal(def)
	if err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO indexes (name, definition) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
		def.Name, string(data))
	if err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return db.ErrIndexExists
	}
	return nil
}

// DropIndex removes an index definition.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM indexes WHERE name = ?`, name)
	if err != nil {
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return db.ErrIndexNotFound
	}
	return nil
}

// IndexExists checks if an index definition is present.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM indexes WHERE name = ?`, name).Scan(&n); err != nil {
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return n > 0, nil
}

func (s *Store) indexDefinition(ctx context.Context, name string) (*db.IndexDefinition, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT definition FROM indexes WHERE name = ?`, name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, db.ErrIndexNotFound
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpIndexInfo, Err: err}
	}

	var def db.IndexDefinition
	if err := json.Unmarshal([]byte(data), &def); err != nil {
		return nil, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return &def, nil
}
