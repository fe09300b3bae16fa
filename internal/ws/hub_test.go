package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exameye/shield/internal/models"
	"exameye/shield/internal/services"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubBroadcastsViolationAlert(t *testing.T) {
	hub := NewHub(services.NewMetrics())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleAdmin))
	defer srv.Close()

	conn := dialHub(t, srv)
	waitForClients(t, hub, 1)

	snapshot := "https://cdn.example/snap.jpg"
	hub.BroadcastViolationAlert(models.LiveAlert{
		SessionID:     "sess-1",
		StudentName:   "Jane",
		ViolationType: "phone_detected",
		Severity:      "high",
		Message:       "Phone detected",
		SnapshotURL:   &snapshot,
		Timestamp:     time.Now().UTC(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg models.PushMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, models.MsgViolationAlert, msg.Type)

	var alert models.LiveAlert
	require.NoError(t, json.Unmarshal(msg.Data, &alert))
	assert.Equal(t, "Jane", alert.StudentName)
	assert.Equal(t, "phone_detected", alert.ViolationType)
	require.NotNil(t, alert.SnapshotURL)
	assert.Equal(t, snapshot, *alert.SnapshotURL)
}

func TestHubBroadcastsSessionUpdateToAllClients(t *testing.T) {
	hub := NewHub(services.NewMetrics())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleAdmin))
	defer srv.Close()

	conn1 := dialHub(t, srv)
	conn2 := dialHub(t, srv)
	waitForClients(t, hub, 2)

	hub.BroadcastSessionUpdate()

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg models.PushMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, models.MsgSessionUpdate, msg.Type)
		assert.Nil(t, msg.Data)
	}
}

func TestHubRemovesDisconnectedClient(t *testing.T) {
	hub := NewHub(services.NewMetrics())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleAdmin))
	defer srv.Close()

	conn := dialHub(t, srv)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)

	// Broadcasting with nobody connected is harmless.
	hub.BroadcastSessionUpdate()
}

func TestHubCloseAll(t *testing.T) {
	hub := NewHub(services.NewMetrics())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleAdmin))
	defer srv.Close()

	conn := dialHub(t, srv)
	waitForClients(t, hub, 1)

	hub.CloseAll()
	assert.Equal(t, 0, hub.ClientCount())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.ClientCount() == n
	}, 2*time.Second, 10*time.Millisecond)
}
