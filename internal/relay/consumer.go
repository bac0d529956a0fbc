package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/pointdeck/pointdeck/internal/room"
)

// Consumer subscribes to the mirrored event subjects and replays them into
// a local sink. It is the receiving half for any process that wants to
// follow room activity without hosting the engine itself.
type Consumer struct {
	nc   *nats.Conn
	sink room.Sink
	sub  *nats.Subscription
}

// NewConsumer returns a consumer feeding sink.
func NewConsumer(nc *nats.Conn, sink room.Sink) *Consumer {
	return &Consumer{nc: nc, sink: sink}
}

// Start subscribes to the full room event subject space and forwards
// events until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	sub, err := c.nc.Subscribe(SubjectPrefix+".>", c.handle)
	if err != nil {
		return fmt.Errorf("subscribe to %s.>: %w", SubjectPrefix, err)
	}
	c.sub = sub

	log.Info().Str("subject", SubjectPrefix+".>").Msg("relay consumer started")

	<-ctx.Done()
	return c.Stop()
}

// Stop drains the subscription.
func (c *Consumer) Stop() error {
	if c.sub == nil {
		return nil
	}
	if err := c.sub.Drain(); err != nil {
		return fmt.Errorf("drain subscription: %w", err)
	}
	log.Info().Msg("relay consumer stopped")
	return nil
}

func (c *Consumer) handle(msg *nats.Msg) {
	var envelope Envelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("failed to decode relay envelope")
		return
	}

	evt := room.Event{
		Type:    envelope.EventType,
		RoomID:  envelope.RoomID,
		Payload: envelope.Payload,
	}
	if envelope.RoomID == "" {
		c.sink.EmitAll(evt)
	} else {
		c.sink.EmitRoom(envelope.RoomID, evt)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_type", string(envelope.EventType)).
		Msg("relayed event")
}
