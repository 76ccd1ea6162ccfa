// Package session implements the per-connection stream for one document:
// a position snapshot followed by every matching bus event, with keep-alive
// probes while the stream is idle.
package session

import (
	"context"
	"fmt"
	"html"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/alicanerdogan/livemarkdown/internal/errors"
	"github.com/alicanerdogan/livemarkdown/internal/event"
	"github.com/alicanerdogan/livemarkdown/internal/logging"
)

// DefaultKeepAlive is the idle period after which a liveness probe is sent.
const DefaultKeepAlive = 30 * time.Second

const (
	MessagePosition    = "position"
	MessageFileChanged = "file_changed"
)

// Message is one item on the wire. Exactly one of Sourcepos or HTML is set,
// depending on Type.
type Message struct {
	Type      string `json:"type"`
	Sourcepos string `json:"sourcepos,omitempty"`
	HTML      string `json:"html,omitempty"`
}

// Sink is the transport a session writes to.
type Sink interface {
	Send(ctx context.Context, msg Message) error
	KeepAlive(ctx context.Context) error
}

// DocumentSource is the read side of the document registry.
type DocumentSource interface {
	Locate(id string) (string, bool)
	CurrentPosition(id string) string
}

// ContentLoader reads and renders the document at path.
type ContentLoader func(ctx context.Context, path string) (string, error)

type Dependencies struct {
	Documents   DocumentSource
	Bus         *event.Bus[event.DocumentEvent]
	Load        ContentLoader
	Placeholder func(error) string
	KeepAlive   time.Duration
	Logger      logging.Logger
	// OnClose runs once when the session closes.
	OnClose     func()
}

// State is a session's position in its lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateSnapshotSent
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSnapshotSent:
		return "snapshot_sent"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session streams events for one document to one client.
type Session struct {
	id         ulid.ULID
	documentID string
	deps       Dependencies
	logger     logging.Logger

	events <-chan event.DocumentEvent
	cancel func()

	state     atomic.Int32
	closeOnce sync.Once
}

// New opens a session for documentID. It fails with a NotFound error when the
// document is not registered. The bus subscription is taken here, before the
// snapshot is read in Run, so no update can slip between the two.
func New(documentID string, deps Dependencies) (*Session, error) {
	if deps.Documents == nil || deps.Bus == nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "session dependencies missing", nil)
	}
	if _, ok := deps.Documents.Locate(documentID); !ok {
		return nil, errors.NewNotFoundError(documentID)
	}
	if deps.KeepAlive <= 0 {
		deps.KeepAlive = DefaultKeepAlive
	}
	if deps.Placeholder == nil {
		deps.Placeholder = DefaultPlaceholder
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}

	id := ulid.Make()
	events, cancel := deps.Bus.SubscribeFiltered(event.ForDocument(documentID))

	return &Session{
		id:         id,
		documentID: documentID,
		deps:       deps,
		logger: deps.Logger.WithComponent("session").
			With("session_id", id.String(), "document_id", documentID),
		events: events,
		cancel: cancel,
	}, nil
}

func (s *Session) ID() string {
	return s.id.String()
}

func (s *Session) DocumentID() string {
	return s.documentID
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Run sends the snapshot and then relays events to sink until ctx is done,
// the sink fails or the bus shuts down. The session is closed on return.
// A cancelled context is a normal disconnect and yields a nil error.
func (s *Session) Run(ctx context.Context, sink Sink) error {
	defer s.Close()

	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateSnapshotSent)) {
		return fmt.Errorf("session %s: run called in state %s", s.ID(), s.State())
	}
	s.logger.Debug(ctx, "session opened")

	snapshot := Message{Type: MessagePosition, Sourcepos: s.deps.Documents.CurrentPosition(s.documentID)}
	if err := sink.Send(ctx, snapshot); err != nil {
		return s.streamEnded(ctx, err)
	}

	if !s.state.CompareAndSwap(int32(StateSnapshotSent), int32(StateStreaming)) {
		return nil
	}

	idle := time.NewTimer(s.deps.KeepAlive)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.streamEnded(ctx, nil)
		case ev, ok := <-s.events:
			if !ok {
				s.logger.Debug(ctx, "event stream closed")
				return nil
			}
			if err := sink.Send(ctx, s.messageFor(ctx, ev)); err != nil {
				return s.streamEnded(ctx, err)
			}
		case <-idle.C:
			if err := sink.KeepAlive(ctx); err != nil {
				return s.streamEnded(ctx, err)
			}
		}
		resetTimer(idle, s.deps.KeepAlive)
	}
}

func (s *Session) messageFor(ctx context.Context, ev event.DocumentEvent) Message {
	if ev.Kind == event.KindPositionUpdate {
		return Message{Type: MessagePosition, Sourcepos: ev.Position}
	}

	path, ok := s.deps.Documents.Locate(s.documentID)
	if !ok {
		return Message{Type: MessageFileChanged, HTML: s.deps.Placeholder(errors.NewNotFoundError(s.documentID))}
	}
	if s.deps.Load == nil {
		return Message{Type: MessageFileChanged}
	}

	body, err := s.deps.Load(ctx, path)
	if err != nil {
		s.logger.Warn(ctx, err, "reload failed, sending placeholder", "path", path)
		body = s.deps.Placeholder(err)
	}
	return Message{Type: MessageFileChanged, HTML: body}
}

func (s *Session) streamEnded(ctx context.Context, err error) error {
	if err != nil && ctx.Err() == nil {
		s.logger.Debug(ctx, "sink failed, closing session", "error", err.Error())
		return err
	}
	return nil
}

// Close releases the bus subscription. Closed is terminal.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.cancel()
		if s.deps.OnClose != nil {
			s.deps.OnClose()
		}
		s.logger.Debug(context.Background(), "session closed")
	})
}

// DefaultPlaceholder renders err as a small HTML fragment.
func DefaultPlaceholder(err error) string {
	return fmt.Sprintf(`<div class="livemarkdown-error"><p>Unable to load document: %s</p></div>`,
		html.EscapeString(err.Error()))
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
