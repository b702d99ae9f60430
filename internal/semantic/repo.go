package semantic

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotBuilt is returned by reads against an index that was never built.
var ErrNotBuilt = errors.New("semantic index not built")

// Kind distinguishes what an item embeds.
type Kind string

const (
	KindSummary Kind = "summary"
	KindSnippet Kind = "snippet"
)

// previewLength bounds the text kept alongside each vector.
const previewLength = 200

const lastUpdatedKey = "last_updated"

// Item is one embedded text.
type Item struct {
	ID       string
	ThreadID string
	Kind     Kind
	// SnippetIndex is -1 for summaries.
	SnippetIndex int
	Text         string
	Timestamp    time.Time
	Vector       []float32
}

// Match is a search hit. Vector is not populated.
type Match struct {
	Item
	Score float64
}

// Stats summarizes the index contents.
type Stats struct {
	TotalItems  int       `json:"total_items"`
	Threads     int       `json:"threads"`
	Summaries   int       `json:"summaries"`
	Snippets    int       `json:"snippets"`
	LastUpdated time.Time `json:"last_updated,omitzero"`
}

// AddItem stores one item, creating the index if needed.
func (ix *Index) AddItem(ctx context.Context, item Item) error {
	return ix.AddItems(ctx, []Item{item})
}

// AddItems stores items in a single transaction.
func (ix *Index) AddItems(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	conn, err := ix.db(ctx, true)
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("semantic: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (id, thread_id, kind, snippet_index, text, timestamp, embedding, dims)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			thread_id     = excluded.thread_id,
			kind          = excluded.kind,
			snippet_index = excluded.snippet_index,
			text          = excluded.text,
			timestamp     = excluded.timestamp,
			embedding     = excluded.embedding,
			dims          = excluded.dims
	`)
	if err != nil {
		return fmt.Errorf("semantic: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		if len(it.Vector) == 0 {
			return fmt.Errorf("semantic: item for %q has no vector", it.ThreadID)
		}
		id := it.ID
		if id == "" {
			id = uuid.NewString()
		}
		idx := it.SnippetIndex
		if it.Kind == KindSummary {
			idx = -1
		}
		vec := normalize(it.Vector)
		if _, err := stmt.ExecContext(ctx, id, it.ThreadID, string(it.Kind), idx,
			preview(it.Text), formatTime(it.Timestamp), encodeVector(vec), len(vec)); err != nil {
			return fmt.Errorf("semantic: insert item: %w", err)
		}
	}
	if err := touch(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Search returns the k items most similar to vec, best first. Items whose
// dimension differs from vec are skipped.
func (ix *Index) Search(ctx context.Context, vec []float32, k int) ([]Match, error) {
	if k <= 0 {
		k = 10
	}
	conn, err := ix.db(ctx, false)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, `SELECT id, thread_id, kind, snippet_index, text, timestamp, embedding, dims FROM items`)
	if err != nil {
		return nil, fmt.Errorf("semantic: query items: %w", err)
	}
	defer rows.Close()

	query := normalize(vec)
	h := &topK{k: k}
	for rows.Next() {
		var (
			m    Match
			kind string
			ts   string
			blob []byte
			dims int
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &kind, &m.SnippetIndex, &m.Text, &ts, &blob, &dims); err != nil {
			return nil, fmt.Errorf("semantic: scan item: %w", err)
		}
		if dims != len(query) {
			continue
		}
		m.Kind = Kind(kind)
		m.Timestamp = parseTime(ts)
		m.Score = dot(query, decodeVector(blob, dims))
		h.offer(m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("semantic: iterate items: %w", err)
	}
	return h.sorted(), nil
}

// DeleteThread removes every item of threadID and returns how many were
// removed. A missing index removes nothing.
func (ix *Index) DeleteThread(ctx context.Context, threadID string) (int, error) {
	if !ix.Exists() {
		return 0, nil
	}
	conn, err := ix.db(ctx, false)
	if err != nil {
		return 0, err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("semantic: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE thread_id = ?`, threadID)
	if err != nil {
		return 0, fmt.Errorf("semantic: delete thread: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		if err := touch(ctx, tx); err != nil {
			return 0, err
		}
	}
	return int(n), tx.Commit()
}

// RenameThread moves every item of from to to.
func (ix *Index) RenameThread(ctx context.Context, from, to string) (int, error) {
	if !ix.Exists() {
		return 0, nil
	}
	conn, err := ix.db(ctx, false)
	if err != nil {
		return 0, err
	}
	res, err := conn.ExecContext(ctx, `UPDATE items SET thread_id = ? WHERE thread_id = ?`, to, from)
	if err != nil {
		return 0, fmt.Errorf("semantic: rename thread: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Clear removes every item, creating an empty index if none exists.
func (ix *Index) Clear(ctx context.Context) error {
	conn, err := ix.db(ctx, true)
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("semantic: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("semantic: clear: %w", err)
	}
	if err := touch(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// LastUpdated returns when the index last changed. ok is false when the
// index was never built or carries no timestamp.
func (ix *Index) LastUpdated(ctx context.Context) (t time.Time, ok bool, err error) {
	if !ix.Exists() {
		return time.Time{}, false, nil
	}
	conn, err := ix.db(ctx, false)
	if err != nil {
		return time.Time{}, false, err
	}
	var v string
	err = conn.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, lastUpdatedKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("semantic: read last update: %w", err)
	}
	t = parseTime(v)
	return t, !t.IsZero(), nil
}

// IsStale reports whether ref (the thread index modification time) is
// newer than the last index update. An index without a timestamp is stale.
func (ix *Index) IsStale(ctx context.Context, ref time.Time) (bool, error) {
	last, ok, err := ix.LastUpdated(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return ref.After(last), nil
}

// Stats counts items by kind and thread.
func (ix *Index) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if !ix.Exists() {
		return st, ErrNotBuilt
	}
	conn, err := ix.db(ctx, false)
	if err != nil {
		return st, err
	}
	err = conn.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT thread_id),
			COALESCE(SUM(CASE WHEN kind = 'summary' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'snippet' THEN 1 ELSE 0 END), 0)
		FROM items
	`).Scan(&st.TotalItems, &st.Threads, &st.Summaries, &st.Snippets)
	if err != nil {
		return st, fmt.Errorf("semantic: stats: %w", err)
	}
	st.LastUpdated, _, err = ix.LastUpdated(ctx)
	return st, err
}

func touch(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, lastUpdatedKey, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("semantic: touch: %w", err)
	}
	return nil
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLength {
		return s
	}
	return string(r[:previewLength])
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
