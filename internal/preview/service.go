// Package preview is the boundary the HTTP and CLI layers talk to. It owns
// the event bus, the document registry and the change watcher and wires them
// together.
package preview

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicanerdogan/livemarkdown/internal/errors"
	"github.com/alicanerdogan/livemarkdown/internal/event"
	"github.com/alicanerdogan/livemarkdown/internal/logging"
	"github.com/alicanerdogan/livemarkdown/internal/registry"
	"github.com/alicanerdogan/livemarkdown/internal/renderer"
	"github.com/alicanerdogan/livemarkdown/internal/session"
	"github.com/alicanerdogan/livemarkdown/internal/watcher"
)

type Options struct {
	Debounce   time.Duration
	BufferSize int
	KeepAlive  time.Duration
	Logger     logging.Logger
	Markdown   *renderer.Markdown
}

// Page is a rendered document ready to be wrapped in renderer.Page.
type Page struct {
	Title string
	Body  string
}

// Stats aggregates the counters of the owned components.
type Stats struct {
	Documents int           `json:"documents"`
	Sessions  int           `json:"sessions"`
	Bus       event.Stats   `json:"bus"`
	Watcher   watcher.Stats `json:"watcher"`
}

// Service coordinates the live preview core.
//
// Construction order matters: the bus is created first, then the registry
// publishing to it, then the watcher resolving paths through the registry,
// and finally the watcher is attached back to the registry so registrations
// start watches.
//
// Invariants:
//   - every registered document has at most one watch
//   - sessions only ever see events for their own document
//   - Close happens exactly once and closes every open session stream
type Service struct {
	bus       *event.Bus[event.DocumentEvent]
	registry  *registry.DocumentRegistry
	watcher   *watcher.ChangeWatcher
	markdown  *renderer.Markdown
	keepAlive time.Duration
	logger    logging.Logger

	sessions atomic.Int64

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New builds and wires a Service.
func New(opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	md := opts.Markdown
	if md == nil {
		md = renderer.NewMarkdown()
	}

	ctx, cancel := context.WithCancel(context.Background())
	bus := event.NewBus[event.DocumentEvent](ctx, event.BusOptions{
		Name:                 "documents",
		SubscriberBufferSize: opts.BufferSize,
		Logger:               logger,
	})
	reg := registry.NewDocumentRegistry(bus, logger)

	w, err := watcher.New(reg, bus, watcher.Options{Debounce: opts.Debounce, Logger: logger})
	if err != nil {
		cancel()
		return nil, err
	}
	reg.UseWatcher(w)

	return &Service{
		bus:       bus,
		registry:  reg,
		watcher:   w,
		markdown:  md,
		keepAlive: opts.KeepAlive,
		logger:    logger.WithComponent("preview"),
		cancel:    cancel,
	}, nil
}

// Register adds the document at path and returns its id. It is idempotent.
func (s *Service) Register(path string) string {
	return s.registry.Register(path)
}

// Remove forgets document id. Sessions already streaming it stay open until
// their clients go away but receive no further file changes.
func (s *Service) Remove(id string) error {
	if _, ok := s.registry.Remove(id); !ok {
		return errors.NewNotFoundError(id)
	}
	return nil
}

func (s *Service) UpdatePosition(id, position string) error {
	return s.registry.UpdatePosition(id, position)
}

// OpenSession subscribes a new session to document id. The caller must Run
// or Close it.
func (s *Service) OpenSession(id string) (*session.Session, error) {
	sess, err := session.New(id, session.Dependencies{
		Documents:   s.registry,
		Bus:         s.bus,
		Load:        s.load,
		Placeholder: renderer.ErrorPlaceholder,
		KeepAlive:   s.keepAlive,
		Logger:      s.logger,
		OnClose:     func() { s.sessions.Add(-1) },
	})
	if err != nil {
		return nil, err
	}
	s.sessions.Add(1)
	return sess, nil
}

func (s *Service) load(_ context.Context, path string) (string, error) {
	return s.markdown.RenderFile(path)
}

func (s *Service) ListAll() []registry.Document {
	return s.registry.ListAll()
}

func (s *Service) Locate(id string) (string, bool) {
	return s.registry.Locate(id)
}

func (s *Service) Resolve(path string) (string, bool) {
	return s.registry.Resolve(path)
}

func (s *Service) CurrentPosition(id string) string {
	return s.registry.CurrentPosition(id)
}

// RenderDocument reads and renders document id. It returns a NotFound error
// for unknown ids and an IO error when the file cannot be read.
func (s *Service) RenderDocument(id string) (Page, error) {
	path, ok := s.registry.Locate(id)
	if !ok {
		return Page{}, errors.NewNotFoundError(id)
	}
	body, err := s.markdown.RenderFile(path)
	if err != nil {
		return Page{}, err
	}
	return Page{Title: renderer.Title(body, renderer.DefaultTitle), Body: body}, nil
}

func (s *Service) Stats() Stats {
	return Stats{
		Documents: s.registry.Len(),
		Sessions:  int(s.sessions.Load()),
		Bus:       s.bus.Stats(),
		Watcher:   s.watcher.Stats(),
	}
}

// Close stops the watcher and closes the bus, which ends every running
// session.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.watcher.Close()
		s.bus.Close()
		s.cancel()
		s.logger.Debug(context.Background(), "preview service closed")
	})
	return err
}
