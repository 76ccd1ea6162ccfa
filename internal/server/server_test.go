package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alicanerdogan/livemarkdown/internal/config"
	"github.com/alicanerdogan/livemarkdown/internal/errors"
	"github.com/alicanerdogan/livemarkdown/internal/logging"
	"github.com/alicanerdogan/livemarkdown/internal/preview"
	"github.com/alicanerdogan/livemarkdown/internal/session"
)

type openRecorder struct {
	mu   sync.Mutex
	urls []string
}

func (o *openRecorder) open(url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.urls = append(o.urls, url)
	return nil
}

func (o *openRecorder) opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.urls...)
}

type fixture struct {
	svc    *preview.Service
	server *Server
	http   *httptest.Server
	opener *openRecorder
	dir    string
}

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Host: "127.0.0.1", Port: 4000},
		Watch:   config.WatchConfig{Debounce: 50 * time.Millisecond},
		Events:  config.EventsConfig{BufferSize: config.DefaultBufferSize},
		Session: config.SessionConfig{KeepAlive: config.DefaultKeepAlive, Retry: time.Second},
		Log:     config.LogConfig{Level: "info", Format: "text"},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newLoggedFixture(t, logging.NewNop())
}

func newLoggedFixture(t *testing.T, logger logging.Logger) *fixture {
	t.Helper()
	cfg := testConfig()

	svc, err := preview.New(preview.Options{
		Debounce:   cfg.Watch.Debounce,
		BufferSize: cfg.Events.BufferSize,
		KeepAlive:  cfg.Session.KeepAlive,
		Logger:     logger,
	})
	require.NoError(t, err)

	opener := &openRecorder{}
	srv := New(cfg, svc, Options{Logger: logger, OpenBrowser: opener.open})
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		_ = svc.Close()
		ts.Close()
	})

	return &fixture{svc: svc, server: srv, http: ts, opener: opener, dir: t.TempDir()}
}

func (f *fixture) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func (f *fixture) register(t *testing.T, path string) string {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/document", `{"filepath":"`+path+`"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out createDocumentResponse
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	return out.ID
}

func TestCreateDocumentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	path := f.writeFile(t, "notes.md", "# Notes\n")

	resp, body := f.do(t, http.MethodPost, "/api/document", `{"filepath":"`+path+`"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var first createDocumentResponse
	require.NoError(t, json.Unmarshal([]byte(body), &first))
	assert.True(t, strings.HasPrefix(first.ID, "notes-md-"))

	assert.Equal(t, first.ID, f.register(t, path))
	assert.Len(t, f.svc.ListAll(), 1)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestCreateDocumentLogsRegistrationOnce(t *testing.T) {
	var out lockedBuffer
	f := newLoggedFixture(t, logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LevelInfo,
		Format: "json",
		Output: &out,
	}))

	f.register(t, f.writeFile(t, "logged.md", "# Logged\n"))
	assert.Equal(t, 1, strings.Count(out.String(), `"msg":"document registered"`))
}

func TestCreateDocumentMalformedBody(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/document", `{not json`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var out createDocumentResponse
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.True(t, strings.HasPrefix(out.ID, "unknown-"))
}

func TestDeleteDocument(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, f.writeFile(t, "a.md", "a"))

	resp, _ := f.do(t, http.MethodDelete, "/api/document/"+id, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/api/document/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, f.svc.ListAll())
}

func TestOpenDocument(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, f.writeFile(t, "a.md", "a"))

	resp, body := f.do(t, http.MethodPost, "/api/document/"+id+"/open", "")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Document opened", body)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	require.Eventually(t, func() bool { return len(f.opener.opened()) == 1 }, time.Second, 10*time.Millisecond)
	assert.True(t, strings.HasSuffix(f.opener.opened()[0], "/document/"+id))

	resp, _ = f.do(t, http.MethodPost, "/api/document/missing/open", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdatePosition(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, f.writeFile(t, "a.md", "a"))

	resp, _ := f.do(t, http.MethodPost, "/api/document/"+id+"/position", `{"sourcepos":"3:1-3:10"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "3:1-3:10", f.svc.CurrentPosition(id))

	resp, _ = f.do(t, http.MethodPost, "/api/document/"+id+"/position", `garbage`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "unknown", f.svc.CurrentPosition(id))

	resp, _ = f.do(t, http.MethodPost, "/api/document/missing/position", `{"sourcepos":"1:1-1:1"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeDocument(t *testing.T) {
	f := newFixture(t)
	path := f.writeFile(t, "guide.md", "# User Guide\n\nHello *world*.\n")
	id := f.register(t, path)

	resp, body := f.do(t, http.MethodGet, "/document/"+id, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "<title>User Guide</title>")
	assert.Contains(t, body, "<em>world</em>")
	assert.Contains(t, body, "EventSource")

	resp, body = f.do(t, http.MethodGet, "/document/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Document not found\n", body)

	require.NoError(t, os.Remove(path))
	resp, body = f.do(t, http.MethodGet, "/document/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "File not found\n", body)
}

func TestIndexListsDocuments(t *testing.T) {
	f := newFixture(t)
	path := f.writeFile(t, "a.md", "a")
	id := f.register(t, path)

	resp, body := f.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<h1>Documents</h1>")
	assert.Contains(t, body, `href="/document/`+id+`"`)

	resp, _ = f.do(t, http.MethodGet, "/nothing-here", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	f.register(t, f.writeFile(t, "a.md", "a"))

	resp, body := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Status string `json:"status"`
		Stats  struct {
			Documents int `json:"documents"`
			Sessions  int `json:"sessions"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, 1, out.Stats.Documents)
	assert.Equal(t, 0, out.Stats.Sessions)
}

func TestHealthCountsOpenStreams(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, f.writeFile(t, "a.md", "a"))

	_, reader := openStream(t, f, id)
	_, _ = reader.ReadString('\n')
	readSSEEvent(t, reader)

	_, body := f.do(t, http.MethodGet, "/health", "")
	var out struct {
		Stats struct {
			Sessions int `json:"sessions"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, 1, out.Stats.Sessions)
}

type sseEvent struct {
	id   string
	name string
	data string
}

func readSSEEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSuffix(line, "\n")
		switch {
		case line == "":
			if ev.data != "" {
				return ev
			}
			ev = sseEvent{}
		case strings.HasPrefix(line, "id: "):
			ev.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data += strings.TrimPrefix(line, "data: ")
		}
	}
}

func openStream(t *testing.T, f *fixture, id string) (*http.Response, *bufio.Reader) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.http.URL+"/document/"+id+"/updates", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp, bufio.NewReader(resp.Body)
}

func TestUpdatesStream(t *testing.T) {
	f := newFixture(t)
	path := f.writeFile(t, "live.md", "# One\n")
	id := f.register(t, path)

	resp, reader := openStream(t, f, id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	retry, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "retry: 1000\n", retry)

	snapshot := readSSEEvent(t, reader)
	assert.Equal(t, "position", snapshot.name)
	assert.JSONEq(t, `{"type":"position","sourcepos":"1:1-1:1"}`, snapshot.data)

	postResp, _ := f.do(t, http.MethodPost, "/api/document/"+id+"/position", `{"sourcepos":"2:1-2:4"}`)
	require.Equal(t, http.StatusCreated, postResp.StatusCode)

	update := readSSEEvent(t, reader)
	assert.Equal(t, "position", update.name)
	assert.JSONEq(t, `{"type":"position","sourcepos":"2:1-2:4"}`, update.data)

	sessionID, seq, ok := strings.Cut(snapshot.id, "-")
	require.True(t, ok, "event id %q", snapshot.id)
	assert.Len(t, sessionID, 26)
	assert.Equal(t, "1", seq)
	assert.Equal(t, sessionID+"-2", update.id)

	require.NoError(t, os.WriteFile(path, []byte("# Two\n"), 0o644))

	changed := readSSEEvent(t, reader)
	assert.Equal(t, "file_changed", changed.name)
	var msg session.Message
	require.NoError(t, json.Unmarshal([]byte(changed.data), &msg))
	assert.Equal(t, session.MessageFileChanged, msg.Type)
	assert.Contains(t, msg.HTML, "Two")
}

func TestUpdatesStreamUnknownDocument(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/document/missing/updates", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Document not found\n", body)
}

func TestUpdatesStreamsAreIsolated(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, f.writeFile(t, "a.md", "a"))
	b := f.register(t, f.writeFile(t, "b.md", "b"))

	_, readerA := openStream(t, f, a)
	_, _ = readerA.ReadString('\n')
	readSSEEvent(t, readerA)

	f.do(t, http.MethodPost, "/api/document/"+b+"/position", `{"sourcepos":"9:9-9:9"}`)
	f.do(t, http.MethodPost, "/api/document/"+a+"/position", `{"sourcepos":"1:2-1:3"}`)

	ev := readSSEEvent(t, readerA)
	assert.JSONEq(t, `{"type":"position","sourcepos":"1:2-1:3"}`, ev.data)
}

func TestWebSocketStream(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, f.writeFile(t, "ws.md", "# WS\n"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/document/" + id + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var snapshot session.Message
	require.NoError(t, wsjson.Read(ctx, conn, &snapshot))
	assert.Equal(t, session.Message{Type: session.MessagePosition, Sourcepos: "1:1-1:1"}, snapshot)

	f.do(t, http.MethodPost, "/api/document/"+id+"/position", `{"sourcepos":"4:1-4:2"}`)

	var update session.Message
	require.NoError(t, wsjson.Read(ctx, conn, &update))
	assert.Equal(t, session.Message{Type: session.MessagePosition, Sourcepos: "4:1-4:2"}, update)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
}

func TestWebSocketUnknownDocument(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/document/missing/ws"
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartPortInUse(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	cfg := testConfig()
	cfg.Server.Port = occupied.Addr().(*net.TCPAddr).Port

	svc, err := preview.New(preview.Options{})
	require.NoError(t, err)
	defer svc.Close()

	err = New(cfg, svc, Options{}).Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNetwork))
	assert.Equal(t, errors.ExitCodePortInUse, errors.ExitCode(err))
}

func TestStartAndShutdownOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = 0
	cfg.Server.Open = true

	svc, err := preview.New(preview.Options{})
	require.NoError(t, err)
	defer svc.Close()

	opener := &openRecorder{}
	srv := New(cfg, svc, Options{OpenBrowser: opener.open})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != "127.0.0.1:0" }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(srv.URL("/health"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool { return len(opener.opened()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, srv.URL("/"), opener.opened()[0])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
