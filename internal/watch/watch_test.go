package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"

	"github.com/chinarulezzz/repqlite/internal/core"
)

func writeEvent(path string) fsnotify.Event {
	return fsnotify.Event{Name: path, Op: fsnotify.Write}
}

// TestSameNameEventsNeverOverlap fires two passes for the same database
// name back-to-back and asserts they never run concurrently, the
// property spec.md §5 demands ("two events for the same database must
// not overlap").
func TestSameNameEventsNeverOverlap(t *testing.T) {
	var active int32
	var maxActive int32
	var mu sync.Mutex

	run := func(ctx context.Context, root, name string) error {
		n := atomic.AddInt32(&active, 1)
		mu.Lock()
		if n > maxActive {
			maxActive = n
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	}

	w := New(t.TempDir(), core.EventModify, run, 4)

	var g sync.WaitGroup
	for i := 0; i < 5; i++ {
		g.Add(1)
		go func() {
			defer g.Done()
			w.dispatch(context.Background(), "same.db")
		}()
	}
	g.Wait()
	_ = w.wait()

	require.Equal(t, int32(1), maxActive)
}

// TestDistinctNamesRunConcurrently asserts bounded concurrency is
// actually exercised across distinct database names.
func TestDistinctNamesRunConcurrently(t *testing.T) {
	var active int32
	var maxActive int32
	var mu sync.Mutex
	started := make(chan struct{}, 3)

	run := func(ctx context.Context, root, name string) error {
		n := atomic.AddInt32(&active, 1)
		mu.Lock()
		if n > maxActive {
			maxActive = n
		}
		mu.Unlock()
		started <- struct{}{}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	}

	w := New(t.TempDir(), core.EventModify, run, 4)

	for _, name := range []string{"a.db", "b.db", "c.db"} {
		w.dispatch(context.Background(), name)
	}
	for i := 0; i < 3; i++ {
		<-started
	}
	_ = w.wait()

	require.Greater(t, maxActive, int32(1))
}

func TestTriggerNameExcludesBackupAndPatches(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "backup"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "patches"), 0o755))

	w := New(root, core.EventCloseWrite, nil, 4)

	_, ok := w.triggerName(writeEvent(filepath.Join(root, "backup", "t.db")))
	require.False(t, ok)

	_, ok = w.triggerName(writeEvent(filepath.Join(root, "patches", "t.db")))
	require.False(t, ok)

	name, ok := w.triggerName(writeEvent(filepath.Join(root, "t.db")))
	require.True(t, ok)
	require.Equal(t, "t.db", name)
}
