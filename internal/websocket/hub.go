package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ConnectionObserver is told about every connect and disconnect
type ConnectionObserver interface {
	RecordWebSocketConnection(action string)
}

type nopConnectionObserver struct{}

func (nopConnectionObserver) RecordWebSocketConnection(string) {}

type orgMessage struct {
	orgID string
	data  []byte
}

type clientMessage struct {
	client *Client
	data   []byte
}

// Hub keeps one room per organization and pushes messages to the clients
// of a room. Room membership is owned by the Run goroutine.
type Hub struct {
	// clients grouped by organization
	rooms map[string]map[*Client]bool

	broadcast  chan orgMessage
	direct     chan clientMessage
	register   chan *Client
	unregister chan *Client

	// closed when Run returns
	done chan struct{}

	logger   *logrus.Logger
	observer ConnectionObserver

	mu    sync.RWMutex
	stats HubStats
}

// HubStats contains hub statistics
type HubStats struct {
	ConnectedClients int       `json:"connected_clients"`
	Rooms            int       `json:"rooms"`
	TotalConnections int64     `json:"total_connections"`
	MessagesSent     int64     `json:"messages_sent"`
	MessagesDropped  int64     `json:"messages_dropped"`
	LastActivity     time.Time `json:"last_activity"`
}

// NewHub creates a new WebSocket hub
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan orgMessage, 256),
		direct:     make(chan clientMessage, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
		observer:   nopConnectionObserver{},
		stats:      HubStats{LastActivity: time.Now()},
	}
}

// SetObserver registers a connection observer; call before Run
func (h *Hub) SetObserver(o ConnectionObserver) {
	if o == nil {
		o = nopConnectionObserver{}
	}
	h.observer = o
}

// Run handles registration and delivery until ctx is done, then closes
// every client
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer close(h.done)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, room := range h.rooms {
				for client := range room {
					h.removeClient(client)
				}
			}
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.broadcast:
			h.deliver(msg)

		case msg := <-h.direct:
			if h.rooms[msg.client.OrgID][msg.client] {
				select {
				case msg.client.send <- msg.data:
				default:
					h.removeClient(msg.client)
				}
			}

		case <-ticker.C:
			h.sendHeartbeat()
		}
	}
}

func (h *Hub) addClient(client *Client) {
	room, ok := h.rooms[client.OrgID]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[client.OrgID] = room
	}
	room[client] = true
	h.observer.RecordWebSocketConnection("connect")

	h.mu.Lock()
	h.stats.TotalConnections++
	h.stats.ConnectedClients++
	h.stats.Rooms = len(h.rooms)
	h.stats.LastActivity = time.Now()
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"client_id":   client.ID,
		"org_id":      client.OrgID,
		"remote_addr": client.RemoteAddr,
	}).Info("WebSocket client connected")

	welcome := Message{
		Type: MessageTypeConnection,
		Data: map[string]interface{}{
			"status":    "connected",
			"client_id": client.ID,
			"org_id":    client.OrgID,
		},
	}
	client.send <- welcome.ToJSON()
}

func (h *Hub) removeClient(client *Client) {
	room, ok := h.rooms[client.OrgID]
	if !ok || !room[client] {
		return
	}
	delete(room, client)
	if len(room) == 0 {
		delete(h.rooms, client.OrgID)
	}
	close(client.send)
	h.observer.RecordWebSocketConnection("disconnect")

	h.mu.Lock()
	h.stats.ConnectedClients--
	h.stats.Rooms = len(h.rooms)
	h.stats.LastActivity = time.Now()
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"client_id": client.ID,
		"org_id":    client.OrgID,
	}).Info("WebSocket client disconnected")
}

// deliver drops clients whose send buffer is full
func (h *Hub) deliver(msg orgMessage) {
	sent := 0
	for client := range h.rooms[msg.orgID] {
		select {
		case client.send <- msg.data:
			sent++
		default:
			h.removeClient(client)
		}
	}

	h.mu.Lock()
	h.stats.MessagesSent += int64(sent)
	h.stats.LastActivity = time.Now()
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"org_id":       msg.orgID,
		"clients_sent": sent,
	}).Debug("Message delivered to organization room")
}

func (h *Hub) sendHeartbeat() {
	heartbeat := Message{Type: MessageTypeHeartbeat, Data: map[string]interface{}{}}
	data := heartbeat.ToJSON()
	for orgID := range h.rooms {
		h.deliver(orgMessage{orgID: orgID, data: data})
	}
}

// BroadcastToOrg queues a message for every client of an organization. It
// never blocks; a full queue drops the message.
func (h *Hub) BroadcastToOrg(orgID string, message Message) {
	select {
	case h.broadcast <- orgMessage{orgID: orgID, data: message.ToJSON()}:
	default:
		h.mu.Lock()
		h.stats.MessagesDropped++
		h.mu.Unlock()
		h.logger.WithField("org_id", orgID).Warn("Broadcast channel is full, message dropped")
	}
}

// sendTo queues a reply for one client without blocking the reader
func (h *Hub) sendTo(client *Client, message Message) {
	select {
	case h.direct <- clientMessage{client: client, data: message.ToJSON()}:
	default:
		h.logger.WithField("client_id", client.ID).Warn("Reply channel is full, message dropped")
	}
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

// GetClientCount returns the current number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats.ConnectedClients
}
