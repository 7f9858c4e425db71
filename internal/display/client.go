package display

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Screens sit on the bar LAN; sessions are checked before upgrading.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Client is one customer-facing screen.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	terminalID string
	send       chan []byte
}

// Serve upgrades the request and streams terminalID's events until the
// screen disconnects.
func Serve(hub *Hub, terminalID string, w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return errors.Wrap(err, "upgrade")
	}

	c := &Client{
		hub:        hub,
		conn:       conn,
		terminalID: terminalID,
		send:       make(chan []byte, sendBuffer),
	}
	if err := hub.subscribe(c); err != nil {
		_ = conn.Close()
		return err
	}

	lg := zctx.From(r.Context()).With(zap.String("terminal_id", terminalID))
	go c.writePump(lg)
	go c.readPump(lg)
	return nil
}

// readPump only watches for disconnects; screens never send.
func (c *Client) readPump(lg *zap.Logger) {
	defer func() {
		c.hub.unsubscribe(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				lg.Warn("Display connection error", zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump(lg *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				lg.Debug("Display write failed", zap.Error(err))
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
