package watch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/starford/threadlinking/internal/testutil"
)

// recorder collects reported values.
type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) add(v string) {
	r.mu.Lock()
	r.seen = append(r.seen, v)
	r.mu.Unlock()
}

func (r *recorder) count(v string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.seen {
		if s == v {
			n++
		}
	}
	return n
}

func (r *recorder) has(v string) bool { return r.count(v) > 0 }

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatch(t *testing.T, root string, ignore []string, debounce time.Duration) *recorder {
	t.Helper()
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := watch(ctx, root, ignore, debounce, testutil.Logger(), rec.add); err != nil {
			t.Errorf("watch: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
	return rec
}

func TestWatch_NewFileReported(t *testing.T) {
	root := t.TempDir()
	rec := startWatch(t, root, nil, 20*time.Millisecond)

	p := filepath.Join(root, "main.go")
	if err := os.WriteFile(p, []byte("package main"), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(p)
	}, "new file not reported")
}

func TestWatch_BurstDebounced(t *testing.T) {
	root := t.TempDir()
	rec := startWatch(t, root, nil, 150*time.Millisecond)

	p := filepath.Join(root, "notes.txt")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	for range 5 {
		if _, err := f.WriteString("line\n"); err != nil {
			t.Fatal(err)
		}
	}
	f.Close()

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(p)
	}, "written file not reported")
	time.Sleep(300 * time.Millisecond)
	if n := rec.count(p); n != 1 {
		t.Errorf("reports = %d, want 1", n)
	}
}

func TestWatch_NewDirWatched(t *testing.T) {
	root := t.TempDir()
	rec := startWatch(t, root, nil, 20*time.Millisecond)

	sub := filepath.Join(root, "pkg", "deep")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	p := filepath.Join(sub, "deep.go")
	if err := os.WriteFile(p, []byte("package deep"), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(p)
	}, "file in new subdir not reported")
}

func TestWatch_IgnoredPathsSkipped(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	rec := startWatch(t, root, []string{"**/.git/**", "**/*.tmp"}, 20*time.Millisecond)

	ignoredGit := filepath.Join(root, ".git", "HEAD")
	ignoredTmp := filepath.Join(root, "scratch.tmp")
	kept := filepath.Join(root, "kept.md")
	for _, p := range []string{ignoredGit, ignoredTmp, kept} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(kept)
	}, "kept file not reported")
	time.Sleep(100 * time.Millisecond)
	if rec.has(ignoredGit) || rec.has(ignoredTmp) {
		t.Error("ignored paths reported")
	}
}

func TestWatch_InvalidPattern(t *testing.T) {
	err := Watch(context.Background(), t.TempDir(), []string{"[unclosed"}, testutil.Logger(), nil)
	if err == nil {
		t.Fatal("expected pattern error")
	}
}

func TestMatcher(t *testing.T) {
	m, err := NewMatcher([]string{"**/node_modules/**", "**/*.log"})
	if err != nil {
		t.Fatal(err)
	}
	cases := map[string]bool{
		"node_modules/x/index.js": true,
		"a/b/node_modules/y.js":   true,
		"logs/app.log":            true,
		"src/main.go":             false,
	}
	for p, want := range cases {
		if got := m.Match(p); got != want {
			t.Errorf("Match(%q) = %v, want %v", p, got, want)
		}
	}
	if !m.MatchDir("web/node_modules") {
		t.Error("MatchDir(web/node_modules) = false, want true")
	}
}

func TestWatchHome_ReportsStoreChanges(t *testing.T) {
	home := t.TempDir()
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = watchHome(ctx, home, 20*time.Millisecond, testutil.Logger(), rec.add)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(home, "thread_index.json"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, "unrelated.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(KindThreads)
	}, "threads change not reported")

	if err := os.WriteFile(filepath.Join(home, "pending.json"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(KindPending)
	}, "pending change not reported")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if slices.Contains(rec.seen, "unrelated.txt") {
		t.Errorf("unexpected report: %v", rec.seen)
	}
}
