package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"tenure/core"
)

// Write deadline for a single event frame. Slow consumers are cut off rather
// than allowed to stall the stream.
const wsWriteTimeout = 10 * time.Second

// handleEventsWS upgrades the connection and streams engine events as JSON
// frames. The cursor query parameter resumes after a previously seen sequence.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.node == nil {
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return
	}
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}

	feed := &eventFeed{conn: conn}
	err = feed.run(r.Context(), s.node, cursor)
	if err == nil || websocket.CloseStatus(err) != -1 {
		conn.Close(websocket.StatusNormalClosure, "stream closed")
		return
	}
	conn.Close(websocket.StatusInternalError, "stream error")
}

// eventFeed owns one subscriber connection.
type eventFeed struct {
	conn *websocket.Conn
}

func (f *eventFeed) run(ctx context.Context, node *core.Node, cursor string) error {
	updates, cancel, backlog, err := node.EventsSubscribe(ctx, cursor)
	if err != nil {
		return err
	}
	defer cancel()

	for _, update := range backlog {
		if err := f.send(ctx, update); err != nil {
			return err
		}
	}
	// The subscription closes the channel once ctx is cancelled, so a plain
	// range covers both shutdown and node-side teardown.
	for update := range updates {
		if err := f.send(ctx, update); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (f *eventFeed) send(ctx context.Context, update core.EventUpdate) error {
	frame, err := json.Marshal(update)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return f.conn.Write(writeCtx, websocket.MessageText, frame)
}
