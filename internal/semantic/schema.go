// Package semantic stores embeddings of thread summaries and snippets in
// SQLite and answers nearest-neighbour queries by brute-force cosine
// similarity.
package semantic

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DirName is the index directory inside the home directory.
const DirName = "semantic-index"

const dbFileName = "index.db"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS items (
	id            TEXT PRIMARY KEY,
	thread_id     TEXT NOT NULL,
	kind          TEXT NOT NULL,
	snippet_index INTEGER NOT NULL DEFAULT -1,
	text          TEXT NOT NULL DEFAULT '',
	timestamp     TEXT NOT NULL DEFAULT '',
	embedding     BLOB NOT NULL,
	dims          INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_thread ON items(thread_id);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Index is a lazily opened semantic index. The database is created on the
// first write; read-only probes such as Exists never create it.
type Index struct {
	dir string

	mu   sync.Mutex
	conn *sql.DB
}

// New returns an Index stored under dir.
func New(dir string) *Index {
	return &Index{dir: dir}
}

// Dir returns the index directory.
func (ix *Index) Dir() string { return ix.dir }

// Path returns the database file.
func (ix *Index) Path() string { return filepath.Join(ix.dir, dbFileName) }

// Exists reports whether the index has been built.
func (ix *Index) Exists() bool {
	_, err := os.Stat(ix.Path())
	return err == nil
}

// Close releases the database handle if one was opened.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.conn == nil {
		return nil
	}
	err := ix.conn.Close()
	ix.conn = nil
	return err
}

func (ix *Index) db(ctx context.Context, create bool) (*sql.DB, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.conn != nil {
		return ix.conn, nil
	}
	if !create && !ix.Exists() {
		return nil, ErrNotBuilt
	}
	if err := os.MkdirAll(ix.dir, 0o700); err != nil {
		return nil, fmt.Errorf("semantic: create dir: %w", err)
	}
	conn, err := sql.Open("sqlite3", ix.Path()+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("semantic: open db: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("semantic: ping: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("semantic: apply schema: %w", err)
	}
	if err := os.Chmod(ix.Path(), 0o600); err != nil && !errors.Is(err, fs.ErrNotExist) {
		conn.Close()
		return nil, fmt.Errorf("semantic: chmod: %w", err)
	}
	ix.conn = conn
	return conn, nil
}
