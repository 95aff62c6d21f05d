package notify

import (
	"time"

	"github.com/gorilla/websocket"

	"agentpost/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Client is a single websocket connection held by an agent. The hub never
// writes to the connection directly; everything goes through the send
// channel so a stalled socket cannot block delivery.
type Client struct {
	Agent string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	log  *logger.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, agent string, log *logger.Logger) *Client {
	return &Client{
		Agent: agent,
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, 64),
		log:   log,
	}
}

// Send queues a payload for the client, dropping it if the buffer is full.
func (c *Client) Send(payload []byte) {
	select {
	case c.send <- payload:
	default:
		c.log.Warnf("dropping notification for slow client %s", c.Agent)
	}
}

// Start launches the read and write pumps. The caller must have registered
// the client with the hub first.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump discards inbound frames; the socket is push-only. It exists to
// process control messages and detect the peer going away.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warnf("websocket read error for %s: %v", c.Agent, err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
