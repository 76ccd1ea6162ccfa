package watcher

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

type debounceEntry struct {
	timer *time.Timer
	op    fsnotify.Op
}

// debouncer keeps one trailing-edge timer per path. It is not safe for
// concurrent use; ChangeWatcher guards it with its own mutex.
type debouncer struct {
	duration time.Duration
	entries  map[string]debounceEntry
}

func newDebouncer(duration time.Duration) *debouncer {
	return &debouncer{
		duration: duration,
		entries:  make(map[string]debounceEntry),
	}
}

// schedule arms or re-arms the timer for path. It reports whether a pending
// notification was absorbed into this one.
func (d *debouncer) schedule(path string, op fsnotify.Op, flush func(string)) bool {
	entry, pending := d.entries[path]
	entry.op |= op
	if !pending {
		entry.timer = time.AfterFunc(d.duration, func() {
			flush(path)
		})
	} else {
		entry.timer.Reset(d.duration)
	}
	d.entries[path] = entry
	return pending
}

func (d *debouncer) pop(path string) (fsnotify.Op, bool) {
	entry, ok := d.entries[path]
	if !ok {
		return 0, false
	}
	delete(d.entries, path)
	return entry.op, true
}

func (d *debouncer) cancel(path string) {
	if entry, ok := d.entries[path]; ok {
		entry.timer.Stop()
		delete(d.entries, path)
	}
}

func (d *debouncer) pending() int {
	return len(d.entries)
}

func (d *debouncer) stop() {
	for _, entry := range d.entries {
		entry.timer.Stop()
	}
	d.entries = make(map[string]debounceEntry)
}
