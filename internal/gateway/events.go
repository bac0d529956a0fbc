package gateway

import (
	"encoding/json"
	"fmt"
)

// Inbound is the envelope every client message arrives in. Payloads are
// decoded per type at the boundary; nothing loosely typed reaches the
// engine.
type Inbound struct {
	Type    InboundType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// InboundType identifies a client event. The set is closed.
type InboundType string

const (
	InboundCreateRoom         InboundType = "create-room"
	InboundJoinRoom           InboundType = "join-room"
	InboundJoinOrCreateRoom   InboundType = "join-or-create-room"
	InboundVote               InboundType = "vote"
	InboundReveal             InboundType = "reveal"
	InboundReset              InboundType = "reset"
	InboundSetSpectator       InboundType = "set-spectator"
	InboundSetAutoReveal      InboundType = "set-auto-reveal"
	InboundSetCardScale       InboundType = "set-card-scale"
	InboundLeaveRoom          InboundType = "leave-room"
	InboundRequestPublicRooms InboundType = "request-public-rooms"
)

// CreateRoomPayload creates a room and joins the creator.
type CreateRoomPayload struct {
	RoomCode    string `json:"roomCode"`
	DisplayName string `json:"displayName"`
	IsPrivate   bool   `json:"isPrivate"`
	AutoReveal  bool   `json:"autoReveal"`
	CardScale   string `json:"cardScale"`
}

// JoinRoomPayload joins an existing room.
type JoinRoomPayload struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
}

// JoinOrCreateRoomPayload joins a room, creating it first if absent. The
// visibility hint applies only when this call creates the room: an explicit
// private flag wins, an explicit public flag next, default public.
type JoinOrCreateRoomPayload struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
	AutoReveal  bool   `json:"autoReveal"`
	CardScale   string `json:"cardScale"`
	IsPrivate   bool   `json:"isPrivate"`
	IsPublic    bool   `json:"isPublic"`
}

// VotePayload casts or replaces the sender's vote.
type VotePayload struct {
	RoomID string `json:"roomId"`
	Value  string `json:"value"`
}

// RoomPayload addresses an operation at a room with no further arguments
// (reveal, reset, leave-room).
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// SetSpectatorPayload toggles the sender between voter and spectator.
type SetSpectatorPayload struct {
	RoomID    string `json:"roomId"`
	Spectator bool   `json:"spectator"`
}

// SetAutoRevealPayload toggles the room's auto-reveal setting.
type SetAutoRevealPayload struct {
	RoomID     string `json:"roomId"`
	AutoReveal bool   `json:"autoReveal"`
}

// SetCardScalePayload switches the room's deck, forfeiting the round.
type SetCardScalePayload struct {
	RoomID string `json:"roomId"`
	Scale  string `json:"scale"`
}

// decodePayload unmarshals an inbound payload into dst, tolerating a
// missing payload for events that carry none.
func decodePayload(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
