package relay

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/pointdeck/pointdeck/internal/room"
)

// Envelope is the wire shape of a mirrored event.
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType room.EventType  `json:"event_type"`
	RoomID    string          `json:"room_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Publisher is a room.Sink that forwards every event to an inner sink
// (normally the local WebSocket hub) and mirrors it onto NATS. Publish
// failures are logged and never propagated: local delivery is the
// authoritative path, the mirror is best effort.
type Publisher struct {
	inner room.Sink
	nc    *nats.Conn
}

// NewPublisher wraps inner with a NATS mirror.
func NewPublisher(inner room.Sink, nc *nats.Conn) *Publisher {
	return &Publisher{inner: inner, nc: nc}
}

func (p *Publisher) EmitRoom(roomID string, evt room.Event) {
	p.inner.EmitRoom(roomID, evt)
	p.publish(SubjectPrefix+"."+roomID, roomID, evt)
}

func (p *Publisher) EmitAll(evt room.Event) {
	p.inner.EmitAll(evt)
	p.publish(globalSubject, "", evt)
}

func (p *Publisher) publish(subject, roomID string, evt room.Event) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(evt.Type)).Msg("failed to marshal event payload for relay")
		return
	}
	envelope := Envelope{
		EventID:   uuid.New().String(),
		EventType: evt.Type,
		RoomID:    roomID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(evt.Type)).Msg("failed to marshal relay envelope")
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish event to NATS")
	}
}
