package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS policy is enforced by the HTTP middleware
	},
}

// Message is the websocket envelope.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is one websocket connection joined to a session code. Its ID is the
// respondent identity for answer submission: scoped to this connection, not
// a durable account.
type Client struct {
	ID   string
	Code string

	hub    *Hub
	conn   *websocket.Conn
	send   chan Message
	logger *zap.Logger
}

// SessionChecker reports whether a session code is live. The session
// registry implements it.
type SessionChecker interface {
	Exists(code string) bool
}

// ServeWs handles GET /ws?code=XXXX: validates the code, upgrades, and runs
// the client pumps until disconnect.
func ServeWs(hub *Hub, sessions SessionChecker, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Query("code")
		if code == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code required"})
			return
		}
		if !sessions.Exists(code) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no session with that code exists"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:     uuid.New().String(),
			Code:   code,
			hub:    hub,
			conn:   conn,
			send:   make(chan Message, 256),
			logger: logger,
		}
		hub.register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "GET_STATE":
			// Pull path: a reconnecting client asks for the state it missed.
			if c.hub.state != nil {
				if payload, ok := c.hub.state(c.Code); ok {
					c.hub.sendToClient(c.Code, c.ID, EventCurrentQuestion, payload)
				}
			}
		default:
			// clients only pull; answers go through the command API
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
