package pending

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperHomeEnv = "THREADLINKING_PENDING_HELPER_HOME"

// TestTrackHelperProcess is the body run by each child of
// TestTracksAcrossProcesses. It does nothing in a normal test run.
func TestTrackHelperProcess(t *testing.T) {
	home := os.Getenv(helperHomeEnv)
	if home == "" {
		t.Skip("helper process only")
	}
	s := New(home, testLocker, nil)
	_, err := s.Track(context.Background(), "/src/shared.go", time.Now())
	require.NoError(t, err)
}

func TestTracksAcrossProcesses(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns processes")
	}
	home := t.TempDir()
	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cmd := exec.Command(os.Args[0], "-test.run=^TestTrackHelperProcess$", "-test.count=1")
			cmd.Env = append(os.Environ(), helperHomeEnv+"="+home)
			out, err := cmd.CombinedOutput()
			assert.NoError(t, err, "helper output: %s", out)
		}()
	}
	wg.Wait()

	st, err := New(home, testLocker, nil).Load()
	require.NoError(t, err)
	require.Len(t, st.Tracked, 1)
	assert.Equal(t, n, st.Tracked[0].Count)
}
