package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/campaign-automation/pkg/utils"
)

const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	pingInterval = idleTimeout * 9 / 10

	// subscribers only send pings
	maxInboundBytes = 512
	outboundBuffer  = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origin checks are left to the CORS layer in front of the API
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one subscription to an organization's notification stream
type Client struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`

	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	log  *logrus.Entry
}

// StreamHandler upgrades GET /ws?org_id= into a subscription to the
// organization's in-app notifications
func StreamHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.Query("org_id")
		if orgID == "" {
			utils.SendError(c, http.StatusBadRequest, "org_id is required")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.logger.WithError(err).WithField("org_id", orgID).Warn("Notification stream upgrade failed")
			return
		}

		client := newClient(hub, conn, orgID, c.Request.RemoteAddr)
		select {
		case hub.register <- client:
		case <-hub.done:
			conn.Close()
			return
		}

		go client.transmit()
		go client.receive()
	}
}

func newClient(hub *Hub, conn *websocket.Conn, orgID, remoteAddr string) *Client {
	id := uuid.New().String()
	return &Client{
		ID:          id,
		OrgID:       orgID,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now().UTC(),
		conn:        conn,
		send:        make(chan []byte, outboundBuffer),
		hub:         hub,
		log:         hub.logger.WithFields(logrus.Fields{"client_id": id, "org_id": orgID}),
	}
}

// receive reads until the peer goes away, then leaves the room
func (c *Client) receive() {
	defer c.leave()

	c.conn.SetReadLimit(maxInboundBytes)
	c.extendReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("Notification stream closed unexpectedly")
			}
			return
		}
		c.answer(payload)
	}
}

func (c *Client) leave() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
	c.conn.Close()
}

func (c *Client) extendReadDeadline() {
	_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
}

// transmit owns every write on the connection. The hub closes send when the
// client leaves the room.
func (c *Client) transmit() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, open := <-c.send:
			if !open {
				_ = c.write(websocket.CloseMessage, nil)
				return
			}
			if err := c.write(websocket.TextMessage, payload); err != nil {
				c.log.WithError(err).Debug("Notification write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(messageType int, payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, payload)
}

// answer handles the only inbound message the stream understands
func (c *Client) answer(payload []byte) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.log.WithError(err).Debug("Ignoring unreadable inbound message")
		return
	}
	if msg.Type != MessageTypePing {
		c.log.WithField("message_type", msg.Type).Debug("Ignoring inbound message")
		return
	}
	c.hub.sendTo(c, Message{Type: MessageTypePong, Data: map[string]interface{}{
		"client_id": c.ID,
		"org_id":    c.OrgID,
	}})
}
