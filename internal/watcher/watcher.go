// Package watcher turns raw filesystem notifications for registered
// documents into debounced file_changed events.
package watcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alicanerdogan/livemarkdown/internal/errors"
	"github.com/alicanerdogan/livemarkdown/internal/event"
	"github.com/alicanerdogan/livemarkdown/internal/logging"
)

// DefaultDebounce is the quiet period after which a burst of writes to one
// file is reported as a single change.
const DefaultDebounce = 300 * time.Millisecond

// relevantOps are the operations that count as a content change. Chmod is
// ignored.
const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove

// Resolver maps a watched path back to its document id at delivery time.
type Resolver interface {
	Resolve(path string) (string, bool)
}

// Publisher receives file_changed events.
type Publisher interface {
	Publish(event.DocumentEvent)
}

type Options struct {
	Debounce time.Duration
	Logger   logging.Logger
}

// Stats reports current watcher counters.
type Stats struct {
	ActiveFiles     int    `json:"active_files"`
	ActiveDirs      int    `json:"active_dirs"`
	PendingFlushes  int    `json:"pending_flushes"`
	EventsDelivered uint64 `json:"events_delivered"`
	EventsCoalesced uint64 `json:"events_coalesced"`
	EventsDropped   uint64 `json:"events_dropped"`
	Errors          uint64 `json:"errors"`
}

// ChangeWatcher watches individual files. The OS watch is placed on each
// file's parent directory, so editors that save by writing a temp file and
// renaming it over the original keep being observed.
type ChangeWatcher struct {
	watcher   *fsnotify.Watcher
	resolver  Resolver
	publisher Publisher
	logger    logging.Logger

	mutex     sync.Mutex
	files     map[string]int
	dirs      map[string]int
	debouncer *debouncer
	closed    bool
	done      chan struct{}

	eventsDelivered atomic.Uint64
	eventsCoalesced atomic.Uint64
	eventsDropped   atomic.Uint64
	errorCount      atomic.Uint64
}

// New starts a ChangeWatcher. Call Close to release the OS resources.
func New(resolver Resolver, publisher Publisher, opts Options) (*ChangeWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeWatchAttach, "cannot create filesystem watcher", err)
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	w := &ChangeWatcher{
		watcher:   fsw,
		resolver:  resolver,
		publisher: publisher,
		logger:    logger.WithComponent("watcher"),
		files:     make(map[string]int),
		dirs:      make(map[string]int),
		debouncer: newDebouncer(debounce),
		done:      make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Watch starts observing path. Watching the same path twice is reference
// counted and needs two Unwatch calls.
func (w *ChangeWatcher) Watch(path string) error {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)

	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return errors.NewInternalError(errors.ErrCodeWatchAttach, "watcher is closed", nil).WithPath(path)
	}
	if w.files[path] > 0 {
		w.files[path]++
		return nil
	}
	if w.dirs[dir] == 0 {
		if err := w.watcher.Add(dir); err != nil {
			return errors.NewIOError(errors.ErrCodeWatchAttach, "cannot watch directory", err).WithPath(dir)
		}
	}
	w.dirs[dir]++
	w.files[path] = 1

	w.logger.Debug(context.Background(), "watch started", "path", path, "dir", dir)
	return nil
}

// Unwatch stops observing path and drops any pending notification for it.
func (w *ChangeWatcher) Unwatch(path string) error {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)

	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return nil
	}
	count, ok := w.files[path]
	if !ok {
		return fmt.Errorf("unwatch %s: not watched", path)
	}
	if count > 1 {
		w.files[path] = count - 1
		return nil
	}
	delete(w.files, path)
	w.debouncer.cancel(path)

	w.dirs[dir]--
	if w.dirs[dir] > 0 {
		return nil
	}
	delete(w.dirs, dir)

	w.logger.Debug(context.Background(), "watch stopped", "path", path, "dir", dir)
	// The directory may already be gone, in which case the kernel dropped
	// the watch itself.
	if err := w.watcher.Remove(dir); err != nil && !isGone(err) {
		return errors.NewIOError(errors.ErrCodeWatchAttach, "cannot stop watching directory", err).WithPath(dir)
	}
	return nil
}

func isGone(err error) bool {
	return stderrors.Is(err, fsnotify.ErrNonExistentWatch) || stderrors.Is(err, fsnotify.ErrClosed)
}

func (w *ChangeWatcher) run() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.errorCount.Add(1)
			w.logger.Warn(context.Background(), err, "filesystem watcher error")
		case <-w.done:
			return
		}
	}
}

func (w *ChangeWatcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&relevantOps == 0 {
		return
	}
	path := filepath.Clean(ev.Name)

	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed || w.files[path] == 0 {
		return
	}
	if w.debouncer.schedule(path, ev.Op, w.flush) {
		w.eventsCoalesced.Add(1)
	}
}

// flush runs on the timer goroutine. It must not hold the watcher lock while
// calling the resolver or publisher, since the registry calls Watch and
// Unwatch with its own lock held.
func (w *ChangeWatcher) flush(path string) {
	w.mutex.Lock()
	if w.closed {
		w.mutex.Unlock()
		return
	}
	op, ok := w.debouncer.pop(path)
	w.mutex.Unlock()
	if !ok {
		return
	}

	id, ok := w.resolver.Resolve(path)
	if !ok {
		w.eventsDropped.Add(1)
		w.logger.Debug(context.Background(), "change for unregistered path dropped", "path", path)
		return
	}

	w.publisher.Publish(event.NewFileChanged(id))
	w.eventsDelivered.Add(1)
	w.logger.Debug(context.Background(), "file changed", "document_id", id, "path", path, "op", op.String())
}

func (w *ChangeWatcher) Stats() Stats {
	w.mutex.Lock()
	stats := Stats{
		ActiveFiles:    len(w.files),
		ActiveDirs:     len(w.dirs),
		PendingFlushes: w.debouncer.pending(),
	}
	w.mutex.Unlock()

	stats.EventsDelivered = w.eventsDelivered.Load()
	stats.EventsCoalesced = w.eventsCoalesced.Load()
	stats.EventsDropped = w.eventsDropped.Load()
	stats.Errors = w.errorCount.Load()
	return stats
}

// Close stops all timers and the underlying watcher. It is safe to call more
// than once.
func (w *ChangeWatcher) Close() error {
	w.mutex.Lock()
	if w.closed {
		w.mutex.Unlock()
		return nil
	}
	w.closed = true
	w.debouncer.stop()
	w.mutex.Unlock()

	close(w.done)
	return w.watcher.Close()
}
