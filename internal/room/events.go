package room

// EventType identifies an outbound broadcast event. The set is closed: one
// variant per wire event name.
type EventType string

const (
	EventRoomCreated         EventType = "room-created"
	EventUsersUpdated        EventType = "users-updated"
	EventVotesUpdated        EventType = "votes-updated"
	EventRevealed            EventType = "revealed"
	EventReset               EventType = "reset"
	EventCheatersUpdated     EventType = "cheaters-updated"
	EventRoomSettingsUpdated EventType = "room-settings-updated"
	EventPublicRoomsUpdated  EventType = "public-rooms-updated"
	EventError               EventType = "error"
)

// Event is the envelope every outbound broadcast travels in.
type Event struct {
	Type    EventType   `json:"type"`
	RoomID  string      `json:"room_id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// RoomCreatedPayload acknowledges a successful create-room to the creator.
type RoomCreatedPayload struct {
	RoomID string `json:"room_id"`
}

// UsersUpdatedPayload carries the full participant list after any
// membership or role change.
type UsersUpdatedPayload struct {
	Participants []Participant `json:"participants"`
}

// VotesUpdatedPayload carries the current vote map. While the round is open
// clients render only who has voted; values become meaningful on reveal.
type VotesUpdatedPayload struct {
	Votes    map[string]string `json:"votes"`
	Revealed bool              `json:"revealed"`
}

// RevealedPayload carries the server-computed reveal order. Clients must
// play it back verbatim; recomputing would desynchronize observers.
type RevealedPayload struct {
	RevealOrder []RevealStep `json:"reveal_order"`
}

// CheatersUpdatedPayload carries the flagged participant ids for the
// current revealed period.
type CheatersUpdatedPayload struct {
	Cheaters []string `json:"cheaters"`
}

// SettingsUpdatedPayload carries the room settings after a change.
type SettingsUpdatedPayload struct {
	AutoReveal bool      `json:"auto_reveal"`
	CardScale  CardScale `json:"card_scale"`
}

// DirectoryEntry is one row of the public room directory.
type DirectoryEntry struct {
	RoomID           string `json:"room_id"`
	ParticipantCount int    `json:"participant_count"`
}

// PublicRoomsPayload carries the full public directory, ordered by room id.
type PublicRoomsPayload struct {
	Rooms []DirectoryEntry `json:"rooms"`
}

// ErrorPayload carries an originator-only error message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Sink is where the engine hands off outbound events. EmitRoom is called
// while the room's lock is held, so implementations must not block: the
// WebSocket hub pushes to buffered per-connection channels, the NATS relay
// publishes asynchronously.
type Sink interface {
	// EmitRoom delivers evt to every connection joined to roomID.
	EmitRoom(roomID string, evt Event)
	// EmitAll delivers evt to every connection, room member or not.
	EmitAll(evt Event)
}
