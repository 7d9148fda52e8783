package hub

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"SignalHub/internal/domain/models"
	"SignalHub/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// WSConn adapts a gorilla websocket connection to Conn. Data frames are
// written synchronously so a failed write is reported to the hub.
type WSConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
	once sync.Once
	done chan struct{}
}

func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn, done: make(chan struct{})}
}

func (w *WSConn) WriteMessage(ctx context.Context, msg []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = w.conn.SetWriteDeadline(deadline)
	return w.conn.WriteMessage(websocket.TextMessage, msg)
}

func (w *WSConn) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		_ = w.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
		err = w.conn.Close()
	})
	return err
}

// command is a client to server message.
type command struct {
	Type    string `json:"type"`
	Payload struct {
		Tickers []string `json:"tickers"`
	} `json:"payload"`
}

// Serve runs the read and ping loops of one websocket client until the
// connection drops or ctx ends. It blocks and unregisters the client on exit.
func (h *Hub) Serve(ctx context.Context, c *Client, ws *WSConn, pongWait, pingPeriod time.Duration) {
	defer h.Unregister(c.ID)

	go h.pingLoop(ws, pingPeriod)

	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	ws.conn.SetReadLimit(maxMessageSize)
	_ = ws.conn.SetReadDeadline(time.Now().Add(pongWait))
	ws.conn.SetPongHandler(func(string) error {
		return ws.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("websocket read error", logger.String("client_id", c.ID), logger.Error(err))
			}
			return
		}
		_ = ws.conn.SetReadDeadline(time.Now().Add(pongWait))
		h.HandleCommand(ctx, c, raw)
	}
}

// HandleCommand applies one client command and answers it.
func (h *Hub) HandleCommand(ctx context.Context, c *Client, raw []byte) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		_ = h.SendTo(ctx, c, models.Event{Type: models.EventError, Payload: map[string]string{"message": "invalid command"}})
		return
	}

	tickers := make([]string, 0, len(cmd.Payload.Tickers))
	for _, t := range cmd.Payload.Tickers {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			tickers = append(tickers, t)
		}
	}

	switch cmd.Type {
	case "subscribe":
		c.Subscribe(tickers...)
		_ = h.SendTo(ctx, c, models.Event{Type: models.EventSubscribed, Payload: map[string]interface{}{"tickers": c.Subscriptions()}})
	case "unsubscribe":
		c.Unsubscribe(tickers...)
		_ = h.SendTo(ctx, c, models.Event{Type: models.EventUnsubscribed, Payload: map[string]interface{}{"tickers": c.Subscriptions()}})
	case "ping":
		_ = h.SendTo(ctx, c, models.Event{Type: models.EventPong})
	default:
		_ = h.SendTo(ctx, c, models.Event{Type: models.EventError, Payload: map[string]string{"message": "unknown command " + cmd.Type}})
	}
}

func (h *Hub) pingLoop(ws *WSConn, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ws.done:
			return
		case <-ticker.C:
			if err := ws.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = ws.Close()
				return
			}
		}
	}
}
