// Package watch implements component L: a filesystem-event loop that
// turns writes under a watch root into serialized pass invocations, one
// database at a time, with bounded concurrency across databases.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/chinarulezzz/repqlite/internal/core"
)

// closeWriteSettle is how long the watcher waits after the last Write
// event for a database before treating the write as finished, per
// spec.md §5's "250 ms for non-close events" settling delay.
const closeWriteSettle = 250 * time.Millisecond

// PassFunc runs one pass for the database named name, rooted at root.
type PassFunc func(ctx context.Context, root, name string) error

// Watcher serializes pass invocations per database name while letting
// distinct databases run concurrently, bounded by maxConcurrent.
type Watcher struct {
	root          string
	event         core.EventKind
	run           PassFunc
	maxConcurrent int

	g errgroup.Group

	mu       sync.Mutex
	inFlight map[string]*sync.Mutex
}

// New constructs a Watcher rooted at root, dispatching triggered passes
// to run. maxConcurrent bounds how many distinct databases may be
// diffed at once; values <= 0 default to 4.
func New(root string, event core.EventKind, run PassFunc, maxConcurrent int) *Watcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	w := &Watcher{
		root:          root,
		event:         event,
		run:           run,
		maxConcurrent: maxConcurrent,
		inFlight:      make(map[string]*sync.Mutex),
	}
	w.g.SetLimit(maxConcurrent)
	return w
}

// Run watches the root directory (excluding its backup/ and patches/
// subdirectories) until ctx is cancelled, dispatching a bounded-
// concurrency pass per triggered database event.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}

	settling := make(map[string]*time.Timer)
	var settleMu sync.Mutex

	for {
		select {
		case <-ctx.Done():
			w.flushSettling(&settleMu, settling)
			return w.wait()

		case err, ok := <-fw.Errors:
			if !ok {
				w.flushSettling(&settleMu, settling)
				return w.wait()
			}
			return fmt.Errorf("watch: %w", err)

		case ev, ok := <-fw.Events:
			if !ok {
				w.flushSettling(&settleMu, settling)
				return w.wait()
			}
			name, ok := w.triggerName(ev)
			if !ok {
				continue
			}

			if w.event == core.EventModify {
				w.dispatch(ctx, name)
				continue
			}

			settleMu.Lock()
			if t, exists := settling[name]; exists {
				t.Stop()
			}
			settling[name] = time.AfterFunc(closeWriteSettle, func() {
				w.dispatch(ctx, name)
			})
			settleMu.Unlock()
		}
	}
}

// triggerName reports the database name a qualifying event names, and
// whether the event matches the configured trigger kind at all.
// Entries under backup/ and patches/ never trigger a pass.
func (w *Watcher) triggerName(ev fsnotify.Event) (string, bool) {
	if ev.Op&fsnotify.Write == 0 {
		return "", false
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." {
		return "", false
	}
	first := rel
	if i := indexSeparator(rel); i >= 0 {
		first = rel[:i]
	}
	if first == "backup" || first == "patches" {
		return "", false
	}
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		return "", false
	}
	return rel, true
}

func indexSeparator(p string) int {
	for i := 0; i < len(p); i++ {
		if p[i] == filepath.Separator {
			return i
		}
	}
	return -1
}

// flushSettling stops every still-pending close_write settle timer and
// dispatches its database immediately, using a background context so a
// write queued right before shutdown still reaches the backup instead
// of being silently dropped because its timer never got to fire.
func (w *Watcher) flushSettling(mu *sync.Mutex, settling map[string]*time.Timer) {
	mu.Lock()
	defer mu.Unlock()
	for name, t := range settling {
		if t.Stop() {
			w.dispatch(context.Background(), name)
		}
		delete(settling, name)
	}
}

// dispatch enqueues one pass for name, serialized against any other
// in-flight pass for the same name, bounded by the errgroup's limit
// across distinct names.
func (w *Watcher) dispatch(ctx context.Context, name string) {
	lock := w.nameLock(name)
	w.g.Go(func() error {
		lock.Lock()
		defer lock.Unlock()
		return w.run(ctx, w.root, name)
	})
}

func (w *Watcher) nameLock(name string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	lock, ok := w.inFlight[name]
	if !ok {
		lock = &sync.Mutex{}
		w.inFlight[name] = lock
	}
	return lock
}

func (w *Watcher) wait() error {
	if err := w.g.Wait(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}
