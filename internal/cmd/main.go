package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pointdeck/pointdeck/internal/gateway"
	"github.com/pointdeck/pointdeck/internal/relay"
	"github.com/pointdeck/pointdeck/internal/room"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().
		Str("addr", cfg.HTTP.Addr).
		Str("nats_url", cfg.NATS.URL).
		Msg("starting pointdeck")

	// Engine wiring: the hub is the authoritative event sink; when NATS is
	// configured, events are additionally mirrored onto relay subjects.
	hub := gateway.NewHub()
	var sink room.Sink = hub
	if cfg.NATS.URL != "" {
		nc, err := relay.Connect(relay.DefaultConfig(cfg.NATS.URL))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to NATS")
		}
		defer nc.Close()
		sink = relay.NewPublisher(hub, nc)
		log.Info().Str("subject_prefix", relay.SubjectPrefix).Msg("NATS event relay enabled")
	}

	store := room.NewMemoryStore()
	clock := clockwork.NewRealClock()
	scheduler := room.NewRevealScheduler(cfg.revealStep(), cfg.revealJitter())
	engine := room.NewEngine(store, sink, scheduler, clock)
	directory := room.NewDirectory(store, sink, clock, cfg.directoryDebounce())
	engine.AttachDirectory(directory)

	gw := gateway.New(hub, engine, directory, gateway.DefaultConfig())
	server := setupServer(cfg.HTTP.Addr, gw, directory)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("stopped")
}
