package hub

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/devaloi/courier/internal/domain"
	"github.com/devaloi/courier/internal/observability"
)

// Relay carries room emissions to every server instance, this one included.
type Relay interface {
	Publish(ctx context.Context, room string, data []byte) error
}

type joinRequest struct {
	client Client
	room   string
	result chan error
}

// leaveRequest with an empty room unbinds the client from every room.
type leaveRequest struct {
	client Client
	room   string
}

type emitRequest struct {
	room string
	data []byte
}

// Hub binds connections to rooms and fans emissions out to them.
// All membership changes and emissions are serialized through Run.
type Hub struct {
	rooms   map[string]*Room
	mu      sync.RWMutex
	members map[Client]map[string]struct{}

	join  chan joinRequest
	leave chan leaveRequest
	emit  chan emitRequest

	relay    Relay
	log      *zap.Logger
	maxRooms int

	quit     chan struct{}
	stopOnce sync.Once
}

// Option configures a Hub.
type Option func(*Hub)

// WithRelay routes Emit through r instead of delivering locally.
func WithRelay(r Relay) Option {
	return func(h *Hub) { h.relay = r }
}

// WithLogger sets the hub logger.
func WithLogger(log *zap.Logger) Option {
	return func(h *Hub) { h.log = log }
}

// New creates a Hub. maxRooms <= 0 means no limit.
func New(maxRooms int, opts ...Option) *Hub {
	h := &Hub{
		rooms:    make(map[string]*Room),
		members:  make(map[Client]map[string]struct{}),
		join:     make(chan joinRequest, 256),
		leave:    make(chan leaveRequest, 256),
		emit:     make(chan emitRequest, 1024),
		log:      zap.NewNop(),
		maxRooms: maxRooms,
		quit:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run starts the hub's main event loop. Should be called as a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case req := <-h.join:
			req.result <- h.handleJoin(req)
		case req := <-h.leave:
			h.handleLeave(req)
		case req := <-h.emit:
			h.handleEmit(req)
		case <-h.quit:
			return
		}
	}
}

// Stop signals the hub's event loop to exit. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// Join binds c to room and waits for the outcome.
func (h *Hub) Join(c Client, room string) error {
	req := joinRequest{client: c, room: room, result: make(chan error, 1)}
	select {
	case h.join <- req:
	case <-h.quit:
		return fmt.Errorf("%w: hub stopped", domain.ErrUnavailable)
	}
	select {
	case err := <-req.result:
		return err
	case <-h.quit:
		return fmt.Errorf("%w: hub stopped", domain.ErrUnavailable)
	}
}

// Leave unbinds c from room.
func (h *Hub) Leave(c Client, room string) {
	select {
	case h.leave <- leaveRequest{client: c, room: room}:
	case <-h.quit:
	}
}

// Disconnect unbinds c from every room it joined.
func (h *Hub) Disconnect(c Client) {
	h.Leave(c, "")
}

// Emit broadcasts data to every connection bound to room.
// With a relay configured the payload goes through it; a failed publish
// falls back to local delivery.
func (h *Hub) Emit(ctx context.Context, room string, data []byte) {
	if h.relay != nil {
		err := h.relay.Publish(ctx, room, data)
		if err == nil {
			observability.RoomEmissions.WithLabelValues("relay").Inc()
			return
		}
		h.log.Warn("relay publish failed, delivering locally", zap.String("room", room), zap.Error(err))
	}
	h.EmitLocal(room, data)
}

// EmitLocal queues data for the connections bound to room on this instance.
func (h *Hub) EmitLocal(room string, data []byte) {
	select {
	case h.emit <- emitRequest{room: room, data: data}:
	case <-h.quit:
	}
}

// Presence reports the live connections bound to userID's room.
func (h *Hub) Presence(userID string) domain.Presence {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p := domain.Presence{UserID: userID}
	if r, ok := h.rooms[userID]; ok {
		p.Connections = r.ClientCount()
		p.Online = p.Connections > 0
	}
	return p
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) handleJoin(req joinRequest) error {
	h.mu.Lock()
	r, ok := h.rooms[req.room]
	if !ok {
		if h.maxRooms > 0 && len(h.rooms) >= h.maxRooms {
			h.mu.Unlock()
			return fmt.Errorf("%w: max rooms reached", domain.ErrUnavailable)
		}
		r = NewRoom(req.room)
		h.rooms[req.room] = r
		observability.RoomsActive.Set(float64(len(h.rooms)))
		h.log.Debug("room created", zap.String("room", r.Name()))
	}
	h.mu.Unlock()

	r.Join(req.client)
	joined, ok := h.members[req.client]
	if !ok {
		joined = make(map[string]struct{})
		h.members[req.client] = joined
	}
	joined[req.room] = struct{}{}
	return nil
}

func (h *Hub) handleLeave(req leaveRequest) {
	joined := h.members[req.client]
	if req.room == "" {
		for room := range joined {
			h.unbind(req.client, room)
		}
		delete(h.members, req.client)
		return
	}
	if _, ok := joined[req.room]; !ok {
		return
	}
	h.unbind(req.client, req.room)
	delete(joined, req.room)
	if len(joined) == 0 {
		delete(h.members, req.client)
	}
}

func (h *Hub) unbind(c Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[room]
	if !ok {
		return
	}
	r.Leave(c)

	// Auto-cleanup empty rooms.
	if r.ClientCount() == 0 {
		delete(h.rooms, room)
		observability.RoomsActive.Set(float64(len(h.rooms)))
		h.log.Debug("room deleted", zap.String("room", r.Name()))
	}
}

func (h *Hub) handleEmit(req emitRequest) {
	h.mu.RLock()
	r, ok := h.rooms[req.room]
	h.mu.RUnlock()
	if !ok {
		return
	}
	observability.RoomEmissions.WithLabelValues("local").Inc()
	r.Broadcast(req.data)
}
