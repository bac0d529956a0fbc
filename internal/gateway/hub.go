package gateway

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pointdeck/pointdeck/internal/room"
)

// Hub owns the live connections and their room groupings, and implements
// room.Sink. Emit methods marshal once, snapshot the target set under a
// read lock and push to buffered per-connection send channels without
// blocking, so they are safe to call from inside the engine's per-room
// critical sections. A connection whose buffer is full is evicted rather
// than allowed to stall the round.
type Hub struct {
	mu        sync.RWMutex
	conns     map[string]*Connection
	roomConns map[string]map[string]*Connection
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns:     make(map[string]*Connection),
		roomConns: make(map[string]map[string]*Connection),
	}
}

func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()

	log.Info().Str("connection_id", c.ID).Msg("connection registered")
}

func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	if _, ok := h.conns[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.ID)
	for roomID, members := range h.roomConns {
		if _, ok := members[c.ID]; ok {
			delete(members, c.ID)
			if len(members) == 0 {
				delete(h.roomConns, roomID)
			}
		}
	}
	h.mu.Unlock()

	c.closeSend()
	log.Info().Str("connection_id", c.ID).Msg("connection unregistered")
}

// JoinGroup adds the connection to a room's broadcast group.
func (h *Hub) JoinGroup(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return
	}
	members := h.roomConns[roomID]
	if members == nil {
		members = make(map[string]*Connection)
		h.roomConns[roomID] = members
	}
	members[connID] = c
}

// LeaveGroup removes the connection from a room's broadcast group.
func (h *Hub) LeaveGroup(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.roomConns[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.roomConns, roomID)
		}
	}
}

// EmitRoom sends evt to every connection joined to roomID.
func (h *Hub) EmitRoom(roomID string, evt room.Event) {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.roomConns[roomID]))
	for _, c := range h.roomConns[roomID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.deliver(targets, evt)
}

// EmitAll sends evt to every connection, room member or not.
func (h *Hub) EmitAll(evt room.Event) {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.deliver(targets, evt)
}

// SendTo sends evt to a single connection. Used for originator-only errors
// and on-demand directory requests.
func (h *Hub) SendTo(connID string, evt room.Event) {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.deliver([]*Connection{c}, evt)
}

func (h *Hub) deliver(targets []*Connection, evt room.Event) {
	if len(targets) == 0 {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(evt.Type)).Msg("failed to marshal event")
		return
	}

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			log.Warn().
				Str("connection_id", c.ID).
				Str("event_type", string(evt.Type)).
				Msg("connection send buffer full, closing connection")
			h.unregister(c)
			c.close()
		}
	}

	log.Debug().
		Str("event_type", string(evt.Type)).
		Int("connections", len(targets)).
		Msg("event delivered")
}

// Stats returns connection counts for the stats endpoint.
func (h *Hub) Stats() (totalConnections, activeRooms int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns), len(h.roomConns)
}
