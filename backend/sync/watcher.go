package sync

import (
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"taskbridge/internal/utils"
)

const watchDebounce = 500 * time.Millisecond

// Watcher observes the local task document and invokes a callback when
// it changes on disk. Bursts of events (editors write-then-rename) are
// coalesced into one callback. The watcher is a hint for opportunistic
// syncing only; correctness never depends on it.
type Watcher struct {
	path     string
	onChange func()

	fs   *fsnotify.Watcher
	stop chan struct{}
	wg   gosync.WaitGroup
}

// NewWatcher creates a watcher on the file at path. The parent directory
// is watched because atomic rename-style writes replace the inode.
func NewWatcher(path string, onChange func()) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(filepath.Dir(path)); err != nil {
		fs.Close()
		return nil, err
	}
	return &Watcher{
		path:     path,
		onChange: onChange,
		fs:       fs,
		stop:     make(chan struct{}),
	}, nil
}

// Start launches the event loop.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		var debounce *time.Timer
		var debounceC <-chan time.Time

		for {
			select {
			case ev, ok := <-w.fs.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounce == nil {
					debounce = time.NewTimer(watchDebounce)
					debounceC = debounce.C
				} else {
					debounce.Reset(watchDebounce)
				}

			case <-debounceC:
				debounce = nil
				debounceC = nil
				utils.Debugf("task file changed, triggering reconcile")
				w.onChange()

			case err, ok := <-w.fs.Errors:
				if !ok {
					return
				}
				utils.Warnf("file watcher error: %v", err)

			case <-w.stop:
				return
			}
		}
	}()
}

// Close stops the event loop and releases the underlying watcher.
func (w *Watcher) Close() error {
	close(w.stop)
	err := w.fs.Close()
	w.wg.Wait()
	return err
}
