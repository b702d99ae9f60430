package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/threadlinking/internal/apperr"
)

type counters map[string]int

func testDoc(t *testing.T) *Document[counters] {
	t.Helper()
	return &Document[counters]{
		Path:    filepath.Join(t.TempDir(), "counters.json"),
		Default: func() counters { return counters{} },
		Normalize: func(c counters) counters {
			if c == nil {
				return counters{}
			}
			return c
		},
		Locker: Locker{Timeout: 10 * time.Second, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
	}
}

func increment(key string) func(counters) Result[counters] {
	return func(c counters) Result[counters] {
		c[key]++
		return Replace(c)
	}
}

func TestLoadMissingReturnsDefault(t *testing.T) {
	doc := testDoc(t)
	got, err := doc.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
	_, statErr := os.Stat(doc.Path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "Load must not create the document")
}

func TestUpdatePersists(t *testing.T) {
	doc := testDoc(t)
	got, err := doc.Update(context.Background(), increment("a"))
	require.NoError(t, err)
	assert.Equal(t, 1, got["a"])

	loaded, err := doc.Load()
	require.NoError(t, err)
	assert.Equal(t, counters{"a": 1}, loaded)
}

func TestLoadCorruptBacksUp(t *testing.T) {
	doc := testDoc(t)
	corrupt := []byte(`{"a": 1,,,`)
	require.NoError(t, os.WriteFile(doc.Path, corrupt, 0o600))

	got, err := doc.Load()
	require.NoError(t, err)
	assert.Empty(t, got)

	backup, err := os.ReadFile(doc.BackupPath())
	require.NoError(t, err)
	assert.Equal(t, corrupt, backup)
}

func TestLoadNullIsCorrupt(t *testing.T) {
	doc := testDoc(t)
	require.NoError(t, os.WriteFile(doc.Path, []byte("null\n"), 0o600))

	got, err := doc.Load()
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.FileExists(t, doc.BackupPath())
}

func TestUpdateOnCorruptStartsFromDefault(t *testing.T) {
	doc := testDoc(t)
	corrupt := []byte("not json at all")
	require.NoError(t, os.WriteFile(doc.Path, corrupt, 0o600))

	got, err := doc.Update(context.Background(), increment("a"))
	require.NoError(t, err)
	assert.Equal(t, counters{"a": 1}, got)

	backup, err := os.ReadFile(doc.BackupPath())
	require.NoError(t, err)
	assert.Equal(t, corrupt, backup)
}

func TestRejectLeavesBytesUnchanged(t *testing.T) {
	doc := testDoc(t)
	_, err := doc.Update(context.Background(), increment("a"))
	require.NoError(t, err)
	before, err := os.ReadFile(doc.Path)
	require.NoError(t, err)

	reason := apperr.NotFound(apperr.CodeThreadNotFound, "missing")
	_, err = doc.Update(context.Background(), func(c counters) Result[counters] {
		c["a"] = 99
		return Reject[counters](reason)
	})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	after, err := os.ReadFile(doc.Path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestKeepDoesNotCreateFile(t *testing.T) {
	doc := testDoc(t)
	_, err := doc.Update(context.Background(), func(c counters) Result[counters] {
		return Keep[counters]()
	})
	require.NoError(t, err)
	assert.NoFileExists(t, doc.Path)
}

func TestPanickingTransformReleasesLock(t *testing.T) {
	doc := testDoc(t)
	func() {
		defer func() { _ = recover() }()
		_, _ = doc.Update(context.Background(), func(c counters) Result[counters] {
			panic("boom")
		})
	}()

	doc.Locker.Timeout = 200 * time.Millisecond
	_, err := doc.Update(context.Background(), increment("a"))
	require.NoError(t, err)
}

func TestConcurrentUpdatesNoLostIncrements(t *testing.T) {
	doc := testDoc(t)
	const n = 40

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := doc.Update(context.Background(), increment("hits"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := doc.Load()
	require.NoError(t, err)
	assert.Equal(t, n, got["hits"])
}

func TestConcurrentTransformsSerialize(t *testing.T) {
	for i := 0; i < 10; i++ {
		doc := testDoc(t)
		_, err := doc.Update(context.Background(), func(c counters) Result[counters] {
			c["x"] = 1
			return Replace(c)
		})
		require.NoError(t, err)

		double := func(c counters) Result[counters] { c["x"] *= 2; return Replace(c) }
		addThree := func(c counters) Result[counters] { c["x"] += 3; return Replace(c) }

		var wg sync.WaitGroup
		for _, fn := range []func(counters) Result[counters]{double, addThree} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := doc.Update(context.Background(), fn)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := doc.Load()
		require.NoError(t, err)
		// (1*2)+3 = 5 or (1+3)*2 = 8
		assert.Contains(t, []int{5, 8}, got["x"])
	}
}

func TestUpdateLockTimeout(t *testing.T) {
	doc := testDoc(t)
	unlock, err := doc.Locker.Acquire(context.Background(), doc.Path)
	require.NoError(t, err)
	defer unlock()

	doc.Locker.Timeout = 30 * time.Millisecond
	called := false
	_, err = doc.Update(context.Background(), func(c counters) Result[counters] {
		called = true
		return Replace(c)
	})
	require.ErrorIs(t, err, apperr.ErrLockTimeout)
	assert.False(t, called)
}
