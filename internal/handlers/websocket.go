package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	ws "ln-donations/internal/websocket"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = feedPongWait * 9 / 10

	// The feed is push only; clients send nothing but control frames.
	feedMaxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	log *logrus.Entry
	Hub *ws.Hub
}

func NewWebSocketHandler(log *logrus.Entry, hub *ws.Hub) *WebSocketHandler {
	return &WebSocketHandler{log: log, Hub: hub}
}

// ServeFeed streams settled donations to the connected client. The client is
// registered before the handshake completes, so every alert announced after
// the dial returns reaches it.
func (h *WebSocketHandler) ServeFeed(c *gin.Context) {
	client := &ws.Client{
		Hub:  h.Hub,
		Send: make(chan []byte, 256),
		ID:   uuid.NewString(),
	}
	log := h.log.WithFields(logrus.Fields{
		"method": "ServeFeed",
		"client": client.ID,
	})

	if !h.Hub.Join(client) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Live feed is not available"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Debug("failure upgrading connection")
		h.Hub.Leave(client)
		return
	}
	client.Conn = conn

	go h.writePump(client, log)
	go h.readPump(client, log)
}

// writePump owns every write on the connection: alerts, keepalive pings and
// the final close frame once the hub drops the client.
func (h *WebSocketHandler) writePump(client *ws.Client, log *logrus.Entry) {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.WithError(err).Debug("failure writing donation alert")
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains control frames so pongs extend the deadline, and leaves
// the hub once the peer goes away.
func (h *WebSocketHandler) readPump(client *ws.Client, log *logrus.Entry) {
	defer func() {
		client.Hub.Leave(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(feedMaxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(feedPongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).Debug("websocket read failed")
			}
			return
		}
	}
}
