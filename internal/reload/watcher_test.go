package reload

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestWatcher_ResetsOnceAfterBurst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kb.pl")
	writeFile(t, path, "a.\n")

	var resets int32
	w, err := NewWatcher(path, 100*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&resets, 1)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	for i := 0; i < 5; i++ {
		writeFile(t, path, "a.\nb.\n")
		time.Sleep(10 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&resets) == 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&resets), "a burst of writes resets once")
	assert.Equal(t, 1, w.Stats().Reloads)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kb.pl")
	writeFile(t, path, "a.\n")

	var resets int32
	w, err := NewWatcher(path, 50*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&resets, 1)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "notes.txt"), "hello")
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&resets))
}

func TestWatcher_CountsFailedResets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kb.pl")
	writeFile(t, path, "a.\n")

	w, err := NewWatcher(path, 50*time.Millisecond, func(context.Context) error {
		return assert.AnError
	})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeFile(t, path, "broken(")
	assert.Eventually(t, func() bool { return w.Stats().Errors == 1 }, 2*time.Second, 20*time.Millisecond)
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "kb.pl"), 0, func(context.Context) error { return nil })
	require.NoError(t, err)
	w.Stop()
}

func TestWatcher_StartFailsForMissingDir(t *testing.T) {
	w, err := NewWatcher("/nonexistent/dir/kb.pl", 0, func(context.Context) error { return nil })
	require.NoError(t, err)
	defer w.Stop()
	assert.Error(t, w.Start(context.Background()))
}

func TestWatcher_StopJoinsGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "kb.pl")
	writeFile(t, path, "a.\n")

	w, err := NewWatcher(path, 10*time.Millisecond, func(context.Context) error { return nil })
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
}
