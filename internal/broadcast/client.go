package broadcast

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voiceops/pkg/logger"
)

const (
	writeWait  = 2 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Inbound frames carry nothing we act on; keep the limit small.
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from a different origin in development;
	// token auth happens before the upgrade, not via Origin checks.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades a dashboard connection and bridges it to the hub.
// Each connection gets a fresh opaque subscriber id.
func ServeWS(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromGin(c)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error response.
			log.Warn("websocket upgrade failed", "err", err)
			return
		}

		id := uuid.NewString()
		recv := hub.Subscribe(id)

		cl := &client{id: id, hub: hub, conn: conn, recv: recv, log: log}
		go cl.writePump()
		go cl.readPump()
	}
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	recv <-chan Message
	log  *slog.Logger
}

// readPump discards inbound frames and detects disconnects via read errors
// and pong deadlines.
func (c *client) readPump() {
	defer func() {
		c.hub.Unsubscribe(c.id)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read failed", "subscriber_id", c.id, "err", err)
			}
			return
		}
	}
}

// writePump forwards hub messages to the connection with bounded write
// deadlines, and pings to keep the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.recv:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub evicted us or is shutting down.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Warn("websocket write failed", "subscriber_id", c.id, "err", err)
				c.hub.Unsubscribe(c.id)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Unsubscribe(c.id)
				return
			}
		}
	}
}
