package pending

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/threadlinking/internal/models"
	"github.com/starford/threadlinking/internal/storage"
)

var testLocker = storage.Locker{Timeout: 10 * time.Second, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

func TestTrackInsertsThenIncrements(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := New(t.TempDir(), testLocker, nil, WithClock(func() time.Time { return t0.Add(time.Minute) }))

	first, err := s.Track(context.Background(), "/src/a.go", t0)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Count)

	second, err := s.Track(context.Background(), "/src/a.go", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Count)
	assert.Equal(t, t0, second.FirstSeen)
	assert.Equal(t, t0.Add(time.Minute), second.LastModified)
}

func TestConcurrentTracksCountEveryEdit(t *testing.T) {
	s := New(t.TempDir(), testLocker, nil)
	const n = 30

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Track(context.Background(), "/src/hot.go", time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := s.Load()
	require.NoError(t, err)
	require.Len(t, st.Tracked, 1)
	assert.Equal(t, n, st.Tracked[0].Count)
}

func TestExpiredEntriesDropped(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	home := t.TempDir()
	s := New(home, testLocker, nil, WithClock(func() time.Time { return now }), WithExpiry(24*time.Hour))

	_, err := s.Track(context.Background(), "/old.go", now.Add(-48*time.Hour))
	require.NoError(t, err)
	_, err = s.Track(context.Background(), "/new.go", now.Add(-time.Hour))
	require.NoError(t, err)

	st, err := s.Load()
	require.NoError(t, err)
	require.Len(t, st.Tracked, 1)
	assert.Equal(t, "/new.go", st.Tracked[0].Path)
}

func TestRemove(t *testing.T) {
	s := New(t.TempDir(), testLocker, nil)
	_, err := s.Track(context.Background(), "/a", time.Now())
	require.NoError(t, err)
	_, err = s.Track(context.Background(), "/b", time.Now())
	require.NoError(t, err)

	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	removed, err := s.Remove(context.Background(), "/missing")
	require.NoError(t, err)
	assert.False(t, removed)
	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	removed, err = s.Remove(context.Background(), "/a")
	require.NoError(t, err)
	assert.True(t, removed)

	st, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"/b"}, paths(st))
}

func TestClear(t *testing.T) {
	s := New(t.TempDir(), testLocker, nil)
	for _, p := range []string{"/a", "/b", "/c"} {
		_, err := s.Track(context.Background(), p, time.Now())
		require.NoError(t, err)
	}
	n, err := s.Clear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	st, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, st.Tracked)
}

func TestMissingTrackedKeyTreatedAsEmpty(t *testing.T) {
	s := New(t.TempDir(), testLocker, nil)
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{}`), 0o600))

	st, err := s.Load()
	require.NoError(t, err)
	assert.NotNil(t, st.Tracked)
	assert.Empty(t, st.Tracked)
}

func paths(st models.PendingState) []string {
	out := make([]string, 0, len(st.Tracked))
	for _, f := range st.Tracked {
		out = append(out, f.Path)
	}
	return out
}
