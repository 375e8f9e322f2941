package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mcdev12/arenatimer/go/clients/arena_timer_client"
	"github.com/mcdev12/arenatimer/go/internal/bridge"
	"github.com/mcdev12/arenatimer/go/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.LoadBridge()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load bridge config")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	device := arena_timer_client.NewArenaTimerClient(cfg.ArenaTimerURL)

	var publisher bridge.Publisher
	if cfg.NATSURL != "" {
		natsCfg := bridge.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.Subject = cfg.NATSSubject

		p, err := bridge.NewNATSPublisher(natsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create NATS publisher")
		}
		defer p.Close()
		publisher = p
	}

	b := bridge.New(bridge.Config{
		FightTimerURL:     cfg.FightTimerURL,
		ReconnectInterval: cfg.ReconnectInterval,
	}, device, publisher, nil)
	checker := bridge.NewChecker(device, cfg.CheckInterval, nil)

	log.Info().
		Str("fight_timer_url", cfg.FightTimerURL).
		Str("arena_timer_url", cfg.ArenaTimerURL).
		Bool("nats_enabled", publisher != nil).
		Msg("starting arena timer bridge")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("bridge stopped")
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		if err := checker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("reachability checker stopped")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-ctx.Done():
	}

	cancel()
	wg.Wait()

	log.Info().Int("last_duration_seconds", b.Duration()).Msg("bridge shutdown complete")
}
