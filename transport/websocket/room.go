package websocket

import "sync"

// room is the broadcast group of all clients attached to one match. Sends
// happen in the order the server processed the corresponding writes; clients
// too slow to drain their queue miss messages rather than block the room.
type room struct {
	mu      sync.RWMutex
	clients map[*client]bool
}

func newRoom() *room {
	return &room{
		clients: make(map[*client]bool),
	}
}

func (that *room) add(c *client) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.clients[c] = true
}

func (that *room) remove(c *client) {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.clients, c)
}

func (that *room) empty() bool {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.clients) == 0
}

func (that *room) broadcast(raw []byte) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	for c := range that.clients {
		select {
		case c.send <- raw:
		default:
			// slow consumer, drop rather than stall the room
		}
	}
}
