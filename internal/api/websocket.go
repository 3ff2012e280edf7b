package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/randalmurphal/scopesync/internal/connection"
	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4 * 1024
)

// Feed message types.
const (
	MessageBatch = "batch"
	MessageError = "error"
)

// FeedMessage is one websocket frame of the change feed. A subscription
// starts with a batch holding the current connections; an error message
// is always the last frame.
type FeedMessage struct {
	Type   string                   `json:"type"`
	Events []connection.ChangeEvent `json:"events,omitempty"`
	Error  string                   `json:"error,omitempty"`
	Code   string                   `json:"code,omitempty"`
}

// FeedHandler streams the connections change feed over websockets.
type FeedHandler struct {
	upgrader    websocket.Upgrader
	feed        connection.Feed
	connections map[*websocket.Conn]*feedConn
	mu          sync.Mutex
	logger      *slog.Logger
}

// feedConn tracks a single websocket subscriber.
type feedConn struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
}

// NewFeedHandler creates a websocket handler over feed.
func NewFeedHandler(feed connection.Feed, logger *slog.Logger) *FeedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		feed:        feed,
		connections: make(map[*websocket.Conn]*feedConn),
		logger:      logger.With("component", "feed-ws"),
	}
}

// ServeHTTP upgrades the request and subscribes it to the feed.
func (h *FeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	batches, err := h.feed.Subscribe(ctx)
	if err != nil {
		cancel()
		h.logger.Warn("feed subscribe failed", "error", err)
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(errorMessage(err))
		_ = conn.Close()
		return
	}

	c := &feedConn{conn: conn, cancel: cancel}
	h.mu.Lock()
	h.connections[conn] = c
	h.mu.Unlock()

	go h.readPump(c)
	go h.writePump(c, batches)
}

// readPump handles pongs and close frames. Subscribers send nothing else.
func (h *FeedHandler) readPump(c *feedConn) {
	defer c.cancel()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "error", err)
			}
			return
		}
	}
}

// writePump forwards batches until the feed ends.
func (h *FeedHandler) writePump(c *feedConn, batches <-chan connection.Batch) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.closeConnection(c)
	}()

	for {
		select {
		case batch, ok := <-batches:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			msg := FeedMessage{Type: MessageBatch, Events: batch.Events}
			if batch.Err != nil {
				msg = errorMessage(batch.Err)
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *FeedHandler) closeConnection(c *feedConn) {
	c.cancel()
	h.mu.Lock()
	delete(h.connections, c.conn)
	h.mu.Unlock()
	_ = c.conn.Close()
}

// ConnectionCount returns the number of live subscribers.
func (h *FeedHandler) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

// Close ends every subscription. Each subscriber receives a close frame
// once its feed drains.
func (h *FeedHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.connections {
		c.cancel()
	}
}

func errorMessage(err error) FeedMessage {
	msg := FeedMessage{
		Type:  MessageError,
		Error: syncerrors.Message(err, syncerrors.ErrFeedClosed().What),
		Code:  string(syncerrors.CodeFeedClosed),
	}
	if syncErr := syncerrors.AsSyncError(err); syncErr != nil {
		msg.Code = string(syncErr.Code)
	}
	return msg
}

// decodeFeedMessage turns a frame back into a batch.
func decodeFeedMessage(data []byte) (connection.Batch, error) {
	var msg FeedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return connection.Batch{}, err
	}
	switch msg.Type {
	case MessageBatch:
		events := msg.Events
		if events == nil {
			events = []connection.ChangeEvent{}
		}
		return connection.Batch{Events: events}, nil
	case MessageError:
		return connection.Batch{Err: &syncerrors.SyncError{
			Code: syncerrors.Code(msg.Code),
			What: msg.Error,
		}}, nil
	default:
		return connection.Batch{}, syncerrors.ErrInvalidInput("feed message", "unknown type "+msg.Type)
	}
}
