// Package relay mirrors room events onto NATS subjects so that processes
// other than the serving gateway (ops tooling, a future second gateway) can
// observe the event flow. It is strictly a mirror: the engine never depends
// on it, and room state is volatile, so core NATS pub/sub is used rather
// than a durable stream - there is nothing meaningful to replay after a
// restart.
package relay

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	// SubjectPrefix is the root of the room event subject space. Per-room
	// events go to "<prefix>.<roomID>", global events to "<prefix>._all_".
	SubjectPrefix = "room.events"

	globalSubject = SubjectPrefix + "._all_"
)

// Config holds the NATS connection settings.
type Config struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig(url string) Config {
	return Config{
		URL:           url,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Connect dials NATS with reconnect handling wired to the logger.
func Connect(cfg Config) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}
