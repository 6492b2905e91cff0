package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 64 << 10 // signaling offers stay well under this
	sendQueueSize  = 32
)

// Conn wraps a websocket with a buffered outbound queue. All writes go
// through the queue so a single goroutine owns the socket's write side.
type Conn struct {
	id string
	ws *websocket.Conn

	send      chan Envelope
	closeOnce sync.Once
	done      chan struct{}
}

func newConn(id string, ws *websocket.Conn) *Conn {
	return &Conn{
		id:   id,
		ws:   ws,
		send: make(chan Envelope, sendQueueSize),
		done: make(chan struct{}),
	}
}

// enqueue queues env for delivery. A full queue means the client stopped
// reading; the connection is closed rather than blocking the relay.
func (c *Conn) enqueue(env Envelope) {
	select {
	case c.send <- env:
	case <-c.done:
	default:
		c.close()
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with pings. Runs as the sole writer for the socket.
func (c *Conn) writePump(writeTimeout, pongTimeout time.Duration) {
	pingPeriod := pongTimeout * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case env := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump reads envelopes off the socket and hands them to handle until the
// peer goes away.
func (c *Conn) readPump(pongTimeout time.Duration, handle func(*Conn, Envelope)) {
	defer c.close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		var env Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			return
		}
		handle(c, env)
	}
}
