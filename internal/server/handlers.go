package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/alicanerdogan/livemarkdown/internal/errors"
	"github.com/alicanerdogan/livemarkdown/internal/preview"
	"github.com/alicanerdogan/livemarkdown/internal/renderer"
	"github.com/alicanerdogan/livemarkdown/internal/version"
)

// unknownValue replaces fields of request bodies that cannot be decoded.
const unknownValue = "unknown"

// maxBodySize bounds the JSON bodies accepted by the API.
const maxBodySize = 1 << 20

type createDocumentRequest struct {
	Filepath string `json:"filepath"`
}

type createDocumentResponse struct {
	ID string `json:"id"`
}

type updatePositionRequest struct {
	Sourcepos string `json:"sourcepos"`
}

type healthResponse struct {
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	Timestamp time.Time     `json:"timestamp"`
	Stats     preview.Stats `json:"stats"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderer.Index(s.docs.ListAll()).Render(r.Context(), w); err != nil {
		s.logger.Error(r.Context(), err, "failed to render index")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Version:   version.GetShortVersion(),
		Timestamp: time.Now().UTC(),
		Stats:     s.docs.Stats(),
	})
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := decodeBody(r, &req); err != nil || req.Filepath == "" {
		req.Filepath = unknownValue
	}

	id := s.docs.Register(req.Filepath)
	writeJSON(w, http.StatusCreated, createDocumentResponse{ID: id})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.docs.Remove(id); err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.logger.Info(r.Context(), "document removed", "document_id", id)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleOpenDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.docs.Locate(id); !ok {
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	}

	go s.open(context.WithoutCancel(r.Context()), s.URL("/document/"+id))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	_, _ = io.WriteString(w, "Document opened")
}

func (s *Server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updatePositionRequest
	if err := decodeBody(r, &req); err != nil || req.Sourcepos == "" {
		req.Sourcepos = unknownValue
	}

	if err := s.docs.UpdatePosition(id, req.Sourcepos); err != nil {
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	}
	s.logger.Debug(r.Context(), "position updated", "document_id", id, "sourcepos", req.Sourcepos)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	page, err := s.docs.RenderDocument(id)
	switch {
	case errors.IsNotFound(err):
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	case errors.IsType(err, errors.ErrorTypeIO):
		s.logger.Warn(r.Context(), err, "document file unreadable", "document_id", id)
		http.Error(w, "File not found", http.StatusNotFound)
		return
	case err != nil:
		s.logger.Error(r.Context(), err, "failed to render document", "document_id", id)
		http.Error(w, "Failed to parse markdown", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderer.Page(page.Title, page.Body).Render(r.Context(), w); err != nil {
		s.logger.Error(r.Context(), err, "failed to write document page", "document_id", id)
	}
}

// handleUpdates streams a document's session as server-sent events.
func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := s.docs.OpenSession(id)
	if err != nil {
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	}
	defer sess.Close()

	writer, err := startSSEWriter(w)
	if err != nil {
		s.logger.Error(r.Context(), err, "sse stream unavailable", "document_id", id)
		http.Error(w, "sse stream unavailable", http.StatusInternalServerError)
		return
	}
	if err := writer.WriteRetry(s.config.Session.Retry); err != nil {
		return
	}

	logger := s.logger.With("session_id", sess.ID(), "document_id", id)
	logger.Debug(r.Context(), "sse session started")
	if err := sess.Run(r.Context(), &sseSink{writer: writer, sessionID: sess.ID()}); err != nil {
		logger.Debug(r.Context(), "sse session ended", "error", err.Error())
		return
	}
	logger.Debug(r.Context(), "sse session ended")
}

// handleWebSocket streams a document's session over a WebSocket connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := s.docs.OpenSession(id)
	if err != nil {
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	}
	defer sess.Close()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*", s.config.Server.Host + ":*"},
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket upgrade failed", "document_id", id)
		return
	}
	defer conn.CloseNow()

	// Clients never send data; CloseRead services pings and close frames.
	ctx := conn.CloseRead(r.Context())

	logger := s.logger.With("session_id", sess.ID(), "document_id", id)
	logger.Debug(ctx, "websocket session started")
	if err := sess.Run(ctx, wsSink{conn: conn}); err != nil {
		logger.Debug(ctx, "websocket session ended", "error", err.Error())
		conn.Close(websocket.StatusInternalError, "stream failed")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func decodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
