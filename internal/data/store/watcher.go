package store

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/keisuke-w/tokenwatch/internal/util"
)

// watcher marks the session index dirty whenever the data directory changes
// and pushes a coalesced notification for live consumers.
type watcher struct {
	fs     *fsnotify.Watcher
	dirty  atomic.Bool
	notify chan struct{}
	done   chan struct{}
}

// Watch starts watching the data directory. Calling it on a missing
// directory is an error; call it only after the first successful listing if
// the directory may not exist yet.
func (s *Store) Watch() error {
	if s.watcher != nil {
		return nil
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fs.Add(s.dataDir); err != nil {
		fs.Close()
		return err
	}

	w := &watcher{fs: fs, notify: make(chan struct{}, 1), done: make(chan struct{})}
	go w.run()
	s.watcher = w

	util.LogDebugf("Watching data directory %s", s.dataDir)
	return nil
}

// Changes delivers one (coalesced) signal per burst of data directory
// changes. Returns nil when Watch was never started.
func (s *Store) Changes() <-chan struct{} {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.notify
}

func (w *watcher) run() {
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.dirty.Store(true)
				select {
				case w.notify <- struct{}{}:
				default:
				}
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			util.LogDebugf("Data directory watch error: %v", err)
		case <-w.done:
			return
		}
	}
}

// consumeDirty reports whether a change happened since the last call and
// resets the flag.
func (w *watcher) consumeDirty() bool {
	return w.dirty.Swap(false)
}

func (w *watcher) stop() {
	close(w.done)
	w.fs.Close()
}
