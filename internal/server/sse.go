package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alicanerdogan/livemarkdown/internal/errors"
	"github.com/alicanerdogan/livemarkdown/internal/session"
)

const cacheControlNoStore = "no-store"

type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

func startSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError,
			"sse response writer does not support flushing", nil)
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", cacheControlNoStore)
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher.Flush()
	return &sseWriter{writer: w, flusher: flusher}, nil
}

// WriteRetry tells the browser how long to wait before reconnecting.
func (writer *sseWriter) WriteRetry(retry time.Duration) error {
	if retry <= 0 {
		return nil
	}
	if _, err := io.WriteString(writer.writer, "retry: "+strconv.FormatInt(retry.Milliseconds(), 10)+"\n\n"); err != nil {
		return err
	}
	writer.flusher.Flush()
	return nil
}

func (writer *sseWriter) WriteComment(comment string) error {
	if _, err := io.WriteString(writer.writer, ": "+strings.TrimSpace(comment)+"\n\n"); err != nil {
		return err
	}
	writer.flusher.Flush()
	return nil
}

// WriteEvent writes one event. An empty id or eventName omits that field.
func (writer *sseWriter) WriteEvent(id, eventName string, payload any) error {
	if id != "" {
		if _, err := io.WriteString(writer.writer, "id: "+id+"\n"); err != nil {
			return err
		}
	}
	if eventName != "" {
		if _, err := io.WriteString(writer.writer, "event: "+eventName+"\n"); err != nil {
			return err
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := writeSSEData(writer.writer, data); err != nil {
		return err
	}
	writer.flusher.Flush()
	return nil
}

func writeSSEData(writer io.Writer, data []byte) error {
	if len(data) == 0 {
		_, err := io.WriteString(writer, "data:\n\n")
		return err
	}

	for _, line := range bytes.Split(data, []byte("\n")) {
		if _, err := io.WriteString(writer, "data: "); err != nil {
			return err
		}
		if _, err := writer.Write(line); err != nil {
			return err
		}
		if _, err := io.WriteString(writer, "\n"); err != nil {
			return err
		}
	}
	_, err := io.WriteString(writer, "\n")
	return err
}

// sseSink adapts an sseWriter to session.Sink. Each message is sent as an
// event named after its type so EventSource listeners can subscribe per kind.
// Event ids are the session id followed by a per-session sequence number.
type sseSink struct {
	writer    *sseWriter
	sessionID string
	seq       uint64
}

func (s *sseSink) Send(_ context.Context, msg session.Message) error {
	s.seq++
	return s.writer.WriteEvent(s.sessionID+"-"+strconv.FormatUint(s.seq, 10), msg.Type, msg)
}

func (s *sseSink) KeepAlive(context.Context) error {
	return s.writer.WriteComment("ping")
}
