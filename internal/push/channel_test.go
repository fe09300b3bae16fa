package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exameye/shield/internal/models"
)

// pushServer upgrades connections and lets tests write raw frames.
type pushServer struct {
	srv   *httptest.Server
	dials atomic.Int64

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()

	ps := &pushServer{}
	var upgrader websocket.Upgrader
	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ps.dials.Add(1)
		ps.mu.Lock()
		ps.conns = append(ps.conns, conn)
		ps.mu.Unlock()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ps.srv.Close)
	return ps
}

func (ps *pushServer) url() string {
	return "ws" + strings.TrimPrefix(ps.srv.URL, "http")
}

func (ps *pushServer) write(t *testing.T, frame []byte) {
	t.Helper()
	ps.mu.Lock()
	defer ps.mu.Unlock()
	require.NotEmpty(t, ps.conns)
	conn := ps.conns[len(ps.conns)-1]
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func (ps *pushServer) dropAll() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, conn := range ps.conns {
		conn.Close()
	}
	ps.conns = nil
}

func alertFrame(t *testing.T, alert models.LiveAlert) []byte {
	t.Helper()
	data, err := json.Marshal(alert)
	require.NoError(t, err)
	frame, err := json.Marshal(models.PushMessage{Type: models.MsgViolationAlert, Data: data})
	require.NoError(t, err)
	return frame
}

func TestChannelDispatchesTypedMessages(t *testing.T) {
	ps := newPushServer(t)

	var mu sync.Mutex
	var alerts []models.LiveAlert
	var sessionUpdates, connects int

	ch := open(context.Background(), ps.url(), Handlers{
		OnAlert: func(a models.LiveAlert) {
			mu.Lock()
			alerts = append(alerts, a)
			mu.Unlock()
		},
		OnSessionUpdate: func() {
			mu.Lock()
			sessionUpdates++
			mu.Unlock()
		},
		OnConnected: func() {
			mu.Lock()
			connects++
			mu.Unlock()
		},
	}, 50*time.Millisecond)
	defer ch.Close()

	require.Eventually(t, func() bool { return ps.dials.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	ps.write(t, alertFrame(t, models.LiveAlert{StudentName: "Jane", Message: "Phone detected"}))
	ps.write(t, []byte(`{"type":"session_update"}`))
	ps.write(t, []byte(`{"type":"heartbeat_v2"}`)) // unknown kind, ignored
	ps.write(t, []byte(`{not json`))               // malformed, dropped
	ps.write(t, []byte(`{"type":"session_update"}`))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(alerts) == 1 && sessionUpdates == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "Jane", alerts[0].StudentName)
	// Connected fires once per handshake, not per message.
	assert.Equal(t, 1, connects)
	mu.Unlock()
}

func TestChannelReconnectsAfterDrop(t *testing.T) {
	ps := newPushServer(t)

	var mu sync.Mutex
	var connects, disconnects int

	ch := open(context.Background(), ps.url(), Handlers{
		OnConnected: func() {
			mu.Lock()
			connects++
			mu.Unlock()
		},
		OnDisconnected: func(error) {
			mu.Lock()
			disconnects++
			mu.Unlock()
		},
	}, 50*time.Millisecond)
	defer ch.Close()

	require.Eventually(t, func() bool { return ps.dials.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	ps.dropAll()

	require.Eventually(t, func() bool { return ps.dials.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return connects == 2 && disconnects == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseSuppressesReconnect(t *testing.T) {
	ps := newPushServer(t)

	ch := open(context.Background(), ps.url(), Handlers{}, 50*time.Millisecond)
	require.Eventually(t, func() bool { return ps.dials.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	ch.Close()
	<-ch.Done()

	dialsAtClose := ps.dials.Load()
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, dialsAtClose, ps.dials.Load())

	ch.Close() // safe to call again
}

func TestChannelKeepsDialingWhileServerDown(t *testing.T) {
	ps := newPushServer(t)
	url := ps.url()
	ps.srv.Close()

	ch := open(context.Background(), url, Handlers{}, 20*time.Millisecond)
	defer ch.Close()

	// The loop must keep trying; it never gives up while open.
	time.Sleep(150 * time.Millisecond)
	select {
	case <-ch.Done():
		t.Fatal("channel gave up while still open")
	default:
	}
}

func TestParentContextCancelStopsLoop(t *testing.T) {
	ps := newPushServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	ch := open(ctx, ps.url(), Handlers{}, 50*time.Millisecond)

	require.Eventually(t, func() bool { return ps.dials.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case <-ch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on context cancellation")
	}
}
