package server

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/alicanerdogan/livemarkdown/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed for a ping to be answered.
	pongWait = 10 * time.Second
)

// wsSink adapts a websocket connection to session.Sink. Messages are JSON
// text frames; keep-alives are protocol pings.
type wsSink struct {
	conn *websocket.Conn
}

func (s wsSink) Send(ctx context.Context, msg session.Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return wsjson.Write(ctx, s.conn, msg)
}

func (s wsSink) KeepAlive(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pongWait)
	defer cancel()
	return s.conn.Ping(ctx)
}
