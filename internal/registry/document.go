// Package registry owns the set of registered markdown documents: the
// bidirectional id/path index and each document's cursor position.
package registry

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/alicanerdogan/livemarkdown/internal/errors"
	"github.com/alicanerdogan/livemarkdown/internal/event"
	"github.com/alicanerdogan/livemarkdown/internal/identity"
	"github.com/alicanerdogan/livemarkdown/internal/logging"
)

// DefaultPosition is the cursor range every document starts with.
const DefaultPosition = "1:1-1:1"

// Document is a snapshot of one registered document.
type Document struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Position string `json:"position"`
}

// Publisher receives position updates. *event.Bus satisfies it.
type Publisher interface {
	Publish(event.DocumentEvent)
}

// WatchController starts and stops filesystem watches for registered paths.
type WatchController interface {
	Watch(path string) error
	Unwatch(path string) error
}

type entry struct {
	path     string
	position string
}

// DocumentRegistry is safe for concurrent use. Every method runs in a single
// critical section so the two indexes are never observed half updated.
type DocumentRegistry struct {
	mutex     sync.RWMutex
	byID      map[string]*entry
	byPath    map[string]string
	publisher Publisher
	watcher   WatchController
	logger    logging.Logger
}

// NewDocumentRegistry creates an empty registry publishing position updates
// to publisher. A nil publisher discards them.
func NewDocumentRegistry(publisher Publisher, logger logging.Logger) *DocumentRegistry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &DocumentRegistry{
		byID:      make(map[string]*entry),
		byPath:    make(map[string]string),
		publisher: publisher,
		logger:    logger.WithComponent("registry"),
	}
}

// UseWatcher attaches the filesystem watcher. Documents registered before the
// watcher existed get their watch started now.
func (r *DocumentRegistry) UseWatcher(w WatchController) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.watcher = w
	for id, e := range r.byID {
		r.startWatchLocked(id, e.path)
	}
}

// Resolve returns the id registered for path, if any.
func (r *DocumentRegistry) Resolve(path string) (string, bool) {
	canonical := identity.Canonicalize(path)

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	id, ok := r.byPath[canonical]
	return id, ok
}

// Locate returns the canonical path of document id, if registered.
func (r *DocumentRegistry) Locate(id string) (string, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	e, ok := r.byID[id]
	if !ok {
		return "", false
	}
	return e.path, true
}

// Register adds path and returns its id. Registering a path twice returns the
// existing id without starting a second watch.
func (r *DocumentRegistry) Register(path string) string {
	canonical := identity.Canonicalize(path)

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if id, ok := r.byPath[canonical]; ok {
		return id
	}

	id := r.uniqueIDLocked(identity.DeriveID(canonical))
	r.byID[id] = &entry{path: canonical, position: DefaultPosition}
	r.byPath[canonical] = id

	r.logger.Info(context.Background(), "document registered", "document_id", id, "path", canonical)
	r.startWatchLocked(id, canonical)

	return id
}

// uniqueIDLocked guards against two canonical paths hashing to the same id.
func (r *DocumentRegistry) uniqueIDLocked(id string) string {
	if _, taken := r.byID[id]; !taken {
		return id
	}
	r.logger.Warn(context.Background(), nil, "document id collision", "document_id", id)
	for n := 2; ; n++ {
		candidate := id + "-" + strconv.Itoa(n)
		if _, taken := r.byID[candidate]; !taken {
			return candidate
		}
	}
}

// Remove deletes document id and stops its watch. It returns the removed
// path, or false when the id is unknown.
func (r *DocumentRegistry) Remove(id string) (string, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return "", false
	}
	delete(r.byID, id)
	delete(r.byPath, e.path)

	r.logger.Info(context.Background(), "document removed", "document_id", id, "path", e.path)
	if r.watcher != nil {
		if err := r.watcher.Unwatch(e.path); err != nil {
			r.logger.Warn(context.Background(), err, "failed to stop watch", "document_id", id, "path", e.path)
		}
	}

	return e.path, true
}

// UpdatePosition stores position for id and publishes a position event.
// Updates for one id reach the publisher in the order they were stored.
func (r *DocumentRegistry) UpdatePosition(id, position string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return errors.NewNotFoundError(id)
	}
	e.position = position

	if r.publisher != nil {
		r.publisher.Publish(event.NewPositionUpdate(id, position))
	}
	return nil
}

// CurrentPosition returns the stored position for id, or DefaultPosition.
func (r *DocumentRegistry) CurrentPosition(id string) string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if e, ok := r.byID[id]; ok {
		return e.position
	}
	return DefaultPosition
}

// ListAll returns a snapshot of every document sorted by id.
func (r *DocumentRegistry) ListAll() []Document {
	r.mutex.RLock()
	docs := make([]Document, 0, len(r.byID))
	for id, e := range r.byID {
		docs = append(docs, Document{ID: id, Path: e.path, Position: e.position})
	}
	r.mutex.RUnlock()

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

// Len returns the number of registered documents.
func (r *DocumentRegistry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.byID)
}

// startWatchLocked is best effort: a document whose watch failed is still
// registered, it just never sees file_changed events.
func (r *DocumentRegistry) startWatchLocked(id, path string) {
	if r.watcher == nil {
		return
	}
	if err := r.watcher.Watch(path); err != nil {
		r.logger.Warn(context.Background(),
			errors.NewIOError(errors.ErrCodeWatchAttach, "cannot watch document", err).WithPath(path),
			"watch attach failed", "document_id", id)
	}
}
