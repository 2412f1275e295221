package chat

import "sync"

// Hub is the process-local presence registry. It maps a user identity
// to at most one live connection and to the partner conversation that
// connection currently has open. A second login from the same identity
// displaces the first mapping (last writer wins).
type Hub struct {
	mu      sync.RWMutex
	clients map[int]*Client
	current map[int]int
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[int]*Client),
		current: make(map[int]int),
	}
}

// Add registers the connection for its user and returns the displaced
// client, if any. The current-chat pointer always starts at none.
func (h *Hub) Add(c *Client) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.clients[c.userID]
	h.clients[c.userID] = c
	h.current[c.userID] = 0
	return old
}

// Remove clears the mapping, but only while c is still the registered
// connection for its user. Reports whether the mapping was cleared.
func (h *Hub) Remove(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] != c {
		return false
	}
	delete(h.clients, c.userID)
	delete(h.current, c.userID)
	return true
}

// Get returns the live connection for userID, or nil when offline.
func (h *Hub) Get(userID int) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[userID]
}

// CurrentChat returns the partner the user has open, 0 for none. The
// value is meaningful only while the user is connected.
func (h *Hub) CurrentChat(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current[userID]
}

// SetCurrentChat records the open conversation partner. It is a no-op
// for users without a live connection.
func (h *Hub) SetCurrentChat(userID, partnerID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[userID]; ok {
		h.current[userID] = partnerID
	}
}

// Each calls fn for every live connection held by this process.
func (h *Hub) Each(fn func(*Client)) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		fn(c)
	}
}
