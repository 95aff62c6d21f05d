package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"agentpost/internal/domain"
	"agentpost/pkg/logger"
)

// Hub fans delivery events out to connected agents. Delivery of a message
// never waits on a notification: sends to a slow client are dropped.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // agent address -> connections

	register   chan *Client
	unregister chan *Client
	log        *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		log:        log,
	}
}

// Run starts the hub's event loop.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// Register adds a connection for an agent.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister drops a connection.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// deliveredEvent is the wire shape pushed to a recipient on delivery.
type deliveredEvent struct {
	Type      string    `json:"type"`
	MessageID string    `json:"messageId"`
	Sender    string    `json:"sender"`
	SentAt    time.Time `json:"sentAt"`
}

// NotifyDelivered pushes a delivery event to every connection the recipient
// holds. Implements services.Notifier.
func (h *Hub) NotifyDelivered(msg *domain.Message) {
	payload, err := json.Marshal(deliveredEvent{
		Type:      "message.delivered",
		MessageID: msg.ID,
		Sender:    msg.Sender,
		SentAt:    msg.SentAt,
	})
	if err != nil {
		h.log.Errorf("marshaling delivery event: %v", err)
		return
	}

	h.mu.RLock()
	for client := range h.clients[msg.Recipient] {
		client.Send(payload)
	}
	h.mu.RUnlock()
}

// ConnectionCount returns the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.Agent]; !ok {
		h.clients[client.Agent] = make(map[*Client]struct{})
	}
	h.clients[client.Agent][client] = struct{}{}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[client.Agent]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.clients, client.Agent)
	}
	close(client.send)
}
