package event

import "time"

// Kind discriminates the two document event shapes.
type Kind string

const (
	// KindFileChanged reports that a document's backing file changed on disk.
	KindFileChanged Kind = "file_changed"
	// KindPositionUpdate reports a new cursor range for a document.
	KindPositionUpdate Kind = "position"
)

// DocumentEvent is an immutable notification scoped to one document id.
// Position is only set for KindPositionUpdate.
type DocumentEvent struct {
	Kind       Kind
	DocumentID string
	Position   string
	OccurredAt time.Time
}

func NewFileChanged(documentID string) DocumentEvent {
	return DocumentEvent{
		Kind:       KindFileChanged,
		DocumentID: documentID,
		OccurredAt: time.Now().UTC(),
	}
}

func NewPositionUpdate(documentID, position string) DocumentEvent {
	return DocumentEvent{
		Kind:       KindPositionUpdate,
		DocumentID: documentID,
		Position:   position,
		OccurredAt: time.Now().UTC(),
	}
}

// Type returns the event kind as a string.
func (e DocumentEvent) Type() string {
	return string(e.Kind)
}

func (e DocumentEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// ForDocument returns a filter accepting only events for documentID.
func ForDocument(documentID string) func(DocumentEvent) bool {
	return func(e DocumentEvent) bool {
		return e.DocumentID == documentID
	}
}
