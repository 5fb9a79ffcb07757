package hub

import "sync"

// Client is the interface that hub/room expects from a WebSocket connection.
type Client interface {
	// ID identifies the connection, not the user.
	ID() string
	// Send queues data without blocking; a full queue drops it.
	Send(data []byte)
}

// Room is the set of connections bound to one user id.
type Room struct {
	name    string
	clients map[Client]struct{}
	mu      sync.RWMutex
}

// NewRoom creates an empty room.
func NewRoom(name string) *Room {
	return &Room{
		name:    name,
		clients: make(map[Client]struct{}),
	}
}

// Join adds a client to the room. Joining twice is a no-op.
func (r *Room) Join(c Client) {
	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()
}

// Leave removes a client from the room.
func (r *Room) Leave(c Client) {
	r.mu.Lock()
	delete(r.clients, c)
	r.mu.Unlock()
}

// Broadcast sends data to every client in the room.
func (r *Room) Broadcast(data []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.clients {
		c.Send(data)
	}
}

// ClientCount returns the number of bound connections.
func (r *Room) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.name
}
