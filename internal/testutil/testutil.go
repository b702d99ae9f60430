// Package testutil provides shared test helpers for setting up homes and
// embedders.
package testutil

import (
	"context"
	"hash/fnv"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode"

	"github.com/starford/threadlinking/internal/storage"
)

// Locker returns lock timing suited to tests: generous timeout, fast retries.
func Locker() storage.Locker {
	return storage.Locker{
		Timeout:         10 * time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

// Home creates a temporary home directory that is automatically cleaned up.
func Home(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Dims is the vector size produced by Embedder.
const Dims = 64

// Embedder is a deterministic bag-of-words embedder: texts sharing words
// get similar vectors.
type Embedder struct {
	// Err, when set, is returned by every call.
	Err   error
	calls atomic.Int64
}

// Calls returns how many Embed calls were made.
func (e *Embedder) Calls() int { return int(e.calls.Load()) }

// Embed implements embedding.Embedder.
func (e *Embedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = Vector(text)
	}
	return out, nil
}

// Vector returns the embedding Embedder produces for text.
func Vector(text string) []float32 {
	v := make([]float32, Dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%Dims]++
	}
	return v
}
