package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/beatbus/room-sync/pkg/events"
	"github.com/beatbus/room-sync/pkg/protocol"
)

// Hub tracks the channels open on this instance and delivers room events
// from the bus to them.
type Hub struct {
	bus   events.Bus
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	log   *logrus.Entry
}

func NewHub(bus events.Bus) *Hub {
	return &Hub{
		bus:   bus,
		rooms: make(map[string]map[*Client]struct{}),
		log:   logrus.WithField("component", "hub"),
	}
}

// Run delivers bus events until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	h.log.Info("Hub is running")
	err := h.bus.Consume(ctx, h.dispatch)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	h.closeAll()
	h.log.Info("Hub stopped")
	return err
}

func (h *Hub) dispatch(ev events.Event) error {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[ev.RoomID]))
	for c := range h.rooms[ev.RoomID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if ev.Targets(c.username) {
			c.enqueue(ev.Payload, ev.Close)
		}
	}
	return nil
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.roomID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.roomID] = room
	}
	room[c] = struct{}{}
	c.log.Debug("Client registered")
}

// evict ends every other channel of c's user in c's room with a terminal
// error. Evicted clients leave without a user_left since their user is
// still present.
func (h *Hub) evict(c *Client) {
	h.mu.Lock()
	var old []*Client
	for other := range h.rooms[c.roomID] {
		if other != c && other.username == c.username {
			delete(h.rooms[c.roomID], other)
			old = append(old, other)
		}
	}
	h.mu.Unlock()

	if len(old) == 0 {
		return
	}
	frame, err := protocol.EncodeEvent(protocol.Error{
		Code:    protocol.CodeRemoved,
		Message: "Joined the room from another connection",
	})
	for _, other := range old {
		other.log.Info("Client replaced by a newer connection")
		if err != nil {
			other.shutdown()
			continue
		}
		other.enqueue(frame, true)
	}
}

// unregister reports whether c was still registered, i.e. not evicted.
func (h *Hub) unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.roomID]
	if !ok {
		return false
	}
	if _, ok := room[c]; !ok {
		return false
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.roomID)
	}
	c.log.Debug("Client unregistered")
	return true
}

// Clients returns the number of channels open for roomID.
func (h *Hub) Clients(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, room := range h.rooms {
		for c := range room {
			c.shutdown()
		}
	}
}
