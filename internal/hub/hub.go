package hub

import (
	"sync"

	"go.uber.org/zap"
)

// Subscription routes messages; a client only receives messages for its
// own agency and user.
type Subscription struct {
	AgencyID string
	UserID   string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

func New(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HasSubscriber reports whether any connected client would receive a
// message routed to meta.
func (h *Hub) HasSubscriber(meta Subscription) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if match(client.Subscription, meta) {
			return true
		}
	}
	return false
}

// Broadcast never blocks: a client whose buffer is full misses the message.
func (h *Hub) Broadcast(payload []byte, meta Subscription) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, client := range h.clients {
		if !match(client.Subscription, meta) {
			continue
		}
		select {
		case client.Send <- payload:
			delivered++
		default:
			h.logger.Warn("drop message for slow client", zap.String("client_id", client.ID))
		}
	}
	return delivered
}

func match(sub Subscription, meta Subscription) bool {
	if sub.AgencyID == "" || sub.AgencyID != meta.AgencyID {
		return false
	}
	if meta.UserID != "" && sub.UserID != meta.UserID {
		return false
	}
	return true
}
