package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"

	"exameye/shield/internal/models"
)

const (
	// ReconnectDelay is the fixed wait between reconnection attempts.
	// No growth, no cap: an operator console must stay live for the
	// whole exam, so it never stops trying while mounted.
	ReconnectDelay = 5 * time.Second

	readWait  = 60 * time.Second
	writeWait = 10 * time.Second
)

// Handlers receives decoded push events. All callbacks are optional and are
// invoked from the channel's own goroutine, in arrival order.
type Handlers struct {
	OnAlert         func(models.LiveAlert)
	OnSessionUpdate func()
	OnConnected     func()
	OnDisconnected  func(error)
}

// Channel owns the single long-lived websocket to /ws/admin and redials it
// until closed.
type Channel struct {
	endpoint string
	handlers Handlers
	dialer   *websocket.Dialer
	delay    time.Duration

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// Open dials the endpoint and starts the read/reconnect loop. The loop is a
// single goroutine that only redials after the previous socket is gone, so
// there is never more than one active connection.
func Open(ctx context.Context, endpoint string, handlers Handlers) *Channel {
	return open(ctx, endpoint, handlers, ReconnectDelay)
}

func open(ctx context.Context, endpoint string, handlers Handlers, delay time.Duration) *Channel {
	ctx, cancel := context.WithCancel(ctx)
	c := &Channel{
		endpoint: endpoint,
		handlers: handlers,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		delay:    delay,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.run(ctx)
	return c
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	backoff := retry.NewConstant(c.delay)
	retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.connectAndRead(ctx)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}

		log.Printf("Push channel lost (%v), reconnecting in %s", err, c.delay)
		if c.handlers.OnDisconnected != nil {
			c.handlers.OnDisconnected(err)
		}
		return retry.RetryableError(err)
	})
}

func (c *Channel) connectAndRead(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.endpoint, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	// Unblock the read when the owning context is torn down.
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	defer close(stop)

	// Connected fires once per successful handshake, not per message.
	log.Printf("Push channel connected: %s", c.endpoint)
	if c.handlers.OnConnected != nil {
		c.handlers.OnConnected()
	}

	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(data)
	}
}

// dispatch decodes one frame. Malformed or unknown frames are dropped; the
// connection stays open.
func (c *Channel) dispatch(data []byte) {
	var msg models.PushMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Dropping malformed push message: %v", err)
		return
	}

	switch msg.Type {
	case models.MsgViolationAlert:
		var alert models.LiveAlert
		if err := json.Unmarshal(msg.Data, &alert); err != nil {
			log.Printf("Dropping malformed violation alert: %v", err)
			return
		}
		if c.handlers.OnAlert != nil {
			c.handlers.OnAlert(alert)
		}

	case models.MsgSessionUpdate:
		if c.handlers.OnSessionUpdate != nil {
			c.handlers.OnSessionUpdate()
		}

	default:
		// Unknown message kinds are tolerated.
	}
}

// Close tears the channel down and suppresses any pending reconnection.
// Safe to call more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		conn.Close()
	}
	<-c.done
}

// Done is closed once the reconnect loop has fully exited.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}
