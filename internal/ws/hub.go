package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"exameye/shield/internal/models"
	"exameye/shield/internal/services"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

type client struct {
	conn     *websocket.Conn
	clientID string
	send     chan models.PushMessage
}

// Hub broadcasts proctoring events to every connected admin console.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	metrics *services.Metrics
}

func NewHub(metrics *services.Metrics) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		metrics: metrics,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleAdmin upgrades the request and registers the console until it
// disconnects.
func (h *Hub) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = "admin-" + time.Now().Format("20060102150405.000000000")
	}

	c := &client{
		conn:     conn,
		clientID: clientID,
		send:     make(chan models.PushMessage, sendBuffer),
	}

	h.mu.Lock()
	h.clients[clientID] = c
	h.mu.Unlock()
	h.metrics.IncrementConnections()
	h.metrics.SetActiveClients(h.ClientCount())

	log.Printf("Admin console connected: %s", clientID)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c.clientID)
		h.mu.Unlock()
		h.metrics.DecrementConnections()
		h.metrics.SetActiveClients(h.ClientCount())

		c.conn.Close()
		log.Printf("Admin console disconnected: %s", c.clientID)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Consoles are read-only consumers; inbound frames only keep the
	// connection alive.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for %s: %v", c.clientID, err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
			h.metrics.IncrementMessages()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// BroadcastViolationAlert pushes a violation_alert frame to every console.
func (h *Hub) BroadcastViolationAlert(alert models.LiveAlert) {
	data, err := json.Marshal(alert)
	if err != nil {
		log.Printf("Failed to encode violation alert: %v", err)
		h.metrics.IncrementErrors()
		return
	}
	h.broadcast(models.PushMessage{Type: models.MsgViolationAlert, Data: data})
}

// BroadcastSessionUpdate signals consoles to re-fetch active sessions.
func (h *Hub) BroadcastSessionUpdate() {
	h.broadcast(models.PushMessage{Type: models.MsgSessionUpdate})
}

func (h *Hub) broadcast(msg models.PushMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Slow console: drop the frame rather than block the sender.
			log.Printf("Dropping frame for slow client %s", c.clientID)
			h.metrics.IncrementErrors()
		}
	}
	h.metrics.IncrementBroadcasts()
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll tears down every connection on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for clientID, c := range h.clients {
		close(c.send)
		c.conn.Close()
		log.Printf("Closed connection for client: %s", clientID)
	}
	h.clients = make(map[string]*client)
}
