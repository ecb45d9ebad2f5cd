package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/campaign-automation/pkg/logger"
)

type countingObserver struct {
	mu     sync.Mutex
	events map[string]int
}

func (o *countingObserver) RecordWebSocketConnection(action string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.events == nil {
		o.events = make(map[string]int)
	}
	o.events[action]++
}

func (o *countingObserver) count(action string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.events[action]
}

func startHub(t *testing.T) (*Hub, *httptest.Server, *countingObserver) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(logger.Discard())
	observer := &countingObserver{}
	hub.SetObserver(observer)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws", StreamHandler(hub))
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, server, observer
}

func dial(t *testing.T, server *httptest.Server, orgID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?org_id=" + orgID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	welcome := readMessage(t, conn)
	require.Equal(t, MessageTypeConnection, welcome.Type)
	require.Equal(t, orgID, welcome.Data["org_id"])
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_DeliversToOrganizationRoomOnly(t *testing.T) {
	hub, server, observer := startHub(t)

	org1 := dial(t, server, "org-1")
	org2 := dial(t, server, "org-2")
	require.Eventually(t, func() bool { return hub.GetClientCount() == 2 }, time.Second, 10*time.Millisecond)

	hub.BroadcastToOrg("org-1", NotificationMessage("n-1", "rule_triggered", "warning", "High CPA", "paused camp-1", nil))

	msg := readMessage(t, org1)
	assert.Equal(t, MessageTypeNotification, msg.Type)
	assert.Equal(t, "n-1", msg.Data["id"])

	org2.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := org2.ReadMessage()
	assert.Error(t, err, "org-2 must not receive org-1 notifications")

	assert.Equal(t, 2, observer.count("connect"))
	stats := hub.GetStats()
	assert.Equal(t, 2, stats.Rooms)
	assert.EqualValues(t, 1, stats.MessagesSent)
}

func TestHub_PingGetsPong(t *testing.T) {
	_, server, _ := startHub(t)
	conn := dial(t, server, "org-1")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "ping", "timestamp": 1753104374613}))
	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypePong, msg.Type)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, server, observer := startHub(t)
	conn := dial(t, server, "org-1")
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, observer.count("disconnect"))
}

func TestStreamHandler_RequiresOrg(t *testing.T) {
	_, server, _ := startHub(t)

	resp, err := http.Get(server.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
