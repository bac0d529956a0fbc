package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pointdeck/pointdeck/internal/room"
)

// Gateway is the WebSocket transport in front of the room engine: it owns
// the upgrade endpoint, decodes and validates the inbound event protocol at
// the boundary, and translates engine errors into originator-only error
// events. Every taxonomy error is terminal for its single inbound event.
type Gateway struct {
	hub       *Hub
	registry  *Registry
	engine    *room.Engine
	directory *room.Directory
	config    Config
	upgrader  websocket.Upgrader
}

// New wires a gateway to the engine and directory.
func New(hub *Hub, engine *room.Engine, directory *room.Directory, config Config) *Gateway {
	return &Gateway{
		hub:       hub,
		registry:  NewRegistry(),
		engine:    engine,
		directory: directory,
		config:    config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
	}
}

// Registry exposes the connection registry, mainly for tests and stats.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// HandleConnection upgrades an HTTP request and runs the connection until
// it drops. Each connection gets an ephemeral uuid that doubles as its
// participant id in every room it joins.
func (g *Gateway) HandleConnection(w http.ResponseWriter, r *http.Request) {
	socket, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	c := &Connection{
		ID:          uuid.New().String(),
		gw:          g,
		conn:        socket,
		send:        make(chan []byte, g.config.SendBufferSize),
		connectedAt: time.Now(),
	}
	g.hub.register(c)

	log.Info().
		Str("connection_id", c.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	go c.writePump()
	c.readPump()
}

// HandleStats reports live connection counts.
func (g *Gateway) HandleStats(w http.ResponseWriter, r *http.Request) {
	conns, rooms := g.hub.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"total_connections": conns,
		"active_rooms":      rooms,
	})
}

// RegisterRoutes registers the WebSocket routes with an HTTP mux.
func (g *Gateway) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", g.HandleConnection)
	mux.HandleFunc("/ws/stats", g.HandleStats)
}

// dispatch routes one inbound message. Malformed envelopes and payloads
// are rejected here with an originator-only error before any engine call,
// so no partial mutation is ever applied.
func (g *Gateway) dispatch(c *Connection, raw []byte) {
	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		g.sendError(c, "invalid message")
		return
	}

	var err error
	switch msg.Type {
	case InboundCreateRoom:
		err = g.handleCreateRoom(c, msg.Payload)
	case InboundJoinRoom:
		err = g.handleJoinRoom(c, msg.Payload)
	case InboundJoinOrCreateRoom:
		err = g.handleJoinOrCreate(c, msg.Payload)
	case InboundVote:
		err = g.handleVote(c, msg.Payload)
	case InboundReveal:
		err = g.handleRoomOp(c, msg.Payload, g.engine.Reveal)
	case InboundReset:
		err = g.handleRoomOp(c, msg.Payload, g.engine.Reset)
	case InboundSetSpectator:
		err = g.handleSetSpectator(c, msg.Payload)
	case InboundSetAutoReveal:
		err = g.handleSetAutoReveal(c, msg.Payload)
	case InboundSetCardScale:
		err = g.handleSetCardScale(c, msg.Payload)
	case InboundLeaveRoom:
		err = g.handleLeaveRoom(c, msg.Payload)
	case InboundRequestPublicRooms:
		g.handleRequestPublicRooms(c)
	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("type", string(msg.Type)).
			Msg("ignoring unknown inbound event")
	}
	if err != nil {
		g.sendError(c, err.Error())
	}
}

func (g *Gateway) handleCreateRoom(c *Connection, raw json.RawMessage) error {
	var p CreateRoomPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		return fmt.Errorf("displayName is required")
	}

	roomID := strings.TrimSpace(p.RoomCode)
	if roomID == "" {
		roomID = room.GenerateRoomCode()
	}

	// Join the broadcast group before the engine mutates, so the creator
	// receives the initial state events emitted during creation.
	g.hub.JoinGroup(c.ID, roomID)
	_, err := g.engine.CreateRoom(room.CreateParams{
		RoomID:     roomID,
		Private:    p.IsPrivate,
		AutoReveal: p.AutoReveal,
		CardScale:  room.CardScale(p.CardScale),
	}, room.Participant{ID: c.ID, Name: name, Role: room.RoleVoter})
	if err != nil {
		g.hub.LeaveGroup(c.ID, roomID)
		return err
	}

	g.registry.Add(c.ID, roomID)
	g.hub.SendTo(c.ID, room.Event{
		Type:    room.EventRoomCreated,
		RoomID:  roomID,
		Payload: room.RoomCreatedPayload{RoomID: roomID},
	})
	return nil
}

func (g *Gateway) handleJoinRoom(c *Connection, raw json.RawMessage) error {
	var p JoinRoomPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	if p.RoomID == "" {
		return fmt.Errorf("roomId is required")
	}
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		return fmt.Errorf("displayName is required")
	}

	g.hub.JoinGroup(c.ID, p.RoomID)
	err := g.engine.Join(p.RoomID, room.Participant{ID: c.ID, Name: name, Role: room.RoleVoter})
	if err != nil {
		g.hub.LeaveGroup(c.ID, p.RoomID)
		return err
	}

	g.registry.Add(c.ID, p.RoomID)
	return nil
}

func (g *Gateway) handleJoinOrCreate(c *Connection, raw json.RawMessage) error {
	var p JoinOrCreateRoomPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	if p.RoomID == "" {
		return fmt.Errorf("roomId is required")
	}
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		return fmt.Errorf("displayName is required")
	}

	// Deep-link visibility hint: explicit private wins, explicit public
	// next, default public.
	private := p.IsPrivate && !p.IsPublic

	g.hub.JoinGroup(c.ID, p.RoomID)
	_, err := g.engine.JoinOrCreate(p.RoomID,
		room.Participant{ID: c.ID, Name: name, Role: room.RoleVoter},
		room.CreateParams{
			RoomID:     p.RoomID,
			Private:    private,
			AutoReveal: p.AutoReveal,
			CardScale:  room.CardScale(p.CardScale),
		})
	if err != nil {
		g.hub.LeaveGroup(c.ID, p.RoomID)
		return err
	}

	g.registry.Add(c.ID, p.RoomID)
	return nil
}

func (g *Gateway) handleVote(c *Connection, raw json.RawMessage) error {
	var p VotePayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	if p.RoomID == "" {
		return fmt.Errorf("roomId is required")
	}
	if p.Value == "" {
		return fmt.Errorf("value is required")
	}
	return g.engine.Vote(p.RoomID, c.ID, p.Value)
}

func (g *Gateway) handleRoomOp(c *Connection, raw json.RawMessage, op func(string) error) error {
	var p RoomPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	if p.RoomID == "" {
		return fmt.Errorf("roomId is required")
	}
	return op(p.RoomID)
}

func (g *Gateway) handleSetSpectator(c *Connection, raw json.RawMessage) error {
	var p SetSpectatorPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	if p.RoomID == "" {
		return fmt.Errorf("roomId is required")
	}
	role := room.RoleVoter
	if p.Spectator {
		role = room.RoleSpectator
	}
	return g.engine.SetRole(p.RoomID, c.ID, role)
}

func (g *Gateway) handleSetAutoReveal(c *Connection, raw json.RawMessage) error {
	var p SetAutoRevealPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	if p.RoomID == "" {
		return fmt.Errorf("roomId is required")
	}
	return g.engine.SetAutoReveal(p.RoomID, p.AutoReveal)
}

func (g *Gateway) handleSetCardScale(c *Connection, raw json.RawMessage) error {
	var p SetCardScalePayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	if p.RoomID == "" {
		return fmt.Errorf("roomId is required")
	}
	scale := room.CardScale(p.Scale)
	if !scale.Valid() {
		return fmt.Errorf("unknown card scale %q", p.Scale)
	}
	return g.engine.SetCardScale(p.RoomID, scale)
}

func (g *Gateway) handleLeaveRoom(c *Connection, raw json.RawMessage) error {
	var p RoomPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	if p.RoomID == "" {
		return fmt.Errorf("roomId is required")
	}

	g.hub.LeaveGroup(c.ID, p.RoomID)
	g.registry.Remove(c.ID, p.RoomID)
	if err := g.engine.Leave(p.RoomID, c.ID); err != nil && !errors.Is(err, room.ErrRoomNotFound) {
		return err
	}
	return nil
}

func (g *Gateway) handleRequestPublicRooms(c *Connection) {
	g.hub.SendTo(c.ID, room.Event{
		Type:    room.EventPublicRoomsUpdated,
		Payload: room.PublicRoomsPayload{Rooms: g.directory.Snapshot()},
	})
}

// handleDisconnect processes a dropped connection as an ordinary leave
// against every room it belonged to, each applied independently.
func (g *Gateway) handleDisconnect(c *Connection) {
	g.hub.unregister(c)

	rooms := g.registry.Drop(c.ID)
	for _, roomID := range rooms {
		if err := g.engine.Leave(roomID, c.ID); err != nil && !errors.Is(err, room.ErrRoomNotFound) {
			log.Error().
				Err(err).
				Str("connection_id", c.ID).
				Str("room_id", roomID).
				Msg("failed to apply disconnect leave")
		}
	}

	log.Info().
		Str("connection_id", c.ID).
		Int("rooms_left", len(rooms)).
		Msg("connection closed")
}

func (g *Gateway) sendError(c *Connection, message string) {
	g.hub.SendTo(c.ID, room.Event{
		Type:    room.EventError,
		Payload: room.ErrorPayload{Message: message},
	})
}
